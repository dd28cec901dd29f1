package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/acadflow/docflow-api/api/swagger"
	"github.com/acadflow/docflow-api/internal/handler"
	"github.com/acadflow/docflow-api/internal/middleware"
	"github.com/acadflow/docflow-api/internal/models"
	"github.com/acadflow/docflow-api/internal/repository"
	"github.com/acadflow/docflow-api/internal/service"
	"github.com/acadflow/docflow-api/pkg/cache"
	"github.com/acadflow/docflow-api/pkg/config"
	"github.com/acadflow/docflow-api/pkg/database"
	"github.com/acadflow/docflow-api/pkg/export"
	"github.com/acadflow/docflow-api/pkg/jobs"
	"github.com/acadflow/docflow-api/pkg/logger"
	corsmiddleware "github.com/acadflow/docflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/acadflow/docflow-api/pkg/middleware/requestid"
	"github.com/acadflow/docflow-api/pkg/storage"
)

// @title Docflow API
// @version 1.0.0
// @description Academic document request platform
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	docStorage, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	evidenceStorage, err := storage.NewLocalStorage(cfg.Evidence.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init evidence storage", "error", err)
	}

	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	validationRepo := repository.NewValidationRepository(db)
	evidenceRepo := repository.NewEvidenceRepository(db)
	documentRepo := repository.NewDocumentRepository(db)

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil && cfg.Cache.Enabled {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, true)
	}

	authSvc := service.NewAuthService(userRepo, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "docflow-api",
		Audience:           []string{"docflow"},
	})

	renderer := export.NewPDFRenderer("Université de Docflow")
	docSigner := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)
	evidenceSigner := storage.NewSignedURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL)

	// The render queue and the document service reference each other: the
	// service enqueues jobs, the queue hands them back to the service.
	var documentSvc *service.DocumentService
	renderQueue := jobs.NewQueue("render_documents", func(ctx context.Context, job jobs.Job) error {
		return documentSvc.HandleRenderJob(ctx, job)
	}, jobs.Options{
		Workers: cfg.Documents.WorkerConcurrency,
		Retries: cfg.Documents.WorkerRetries,
		Logger:  logr,
	})
	documentSvc = service.NewDocumentService(documentRepo, requestRepo, validationRepo, userRepo,
		renderer, docStorage, docSigner, renderQueue, metricsSvc, logr,
		service.DocumentServiceConfig{APIPrefix: cfg.APIPrefix})

	validationSvc := service.NewValidationService(requestRepo, validationRepo, userRepo,
		documentSvc, cacheSvc, metricsSvc, logr)
	requestSvc := service.NewRequestService(requestRepo, evidenceRepo, documentRepo,
		validationRepo, userRepo, cacheSvc, logr)
	evidenceSvc := service.NewEvidenceService(evidenceRepo, requestRepo, evidenceStorage,
		evidenceSigner, userRepo, logr, service.EvidenceServiceConfig{
			MaxFileSize:  cfg.Evidence.MaxFileSizeBytes,
			AllowedMIMEs: cfg.Evidence.AllowedMIMEs,
			APIPrefix:    cfg.APIPrefix,
		})

	authHandler := handler.NewAuthHandler(authSvc)
	requestHandler := handler.NewRequestHandler(requestSvc)
	validationHandler := handler.NewValidationHandler(validationSvc)
	evidenceHandler := handler.NewEvidenceHandler(evidenceSvc)
	documentHandler := handler.NewDocumentHandler(documentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/auth/refresh", authHandler.Refresh)

		// Signed-token downloads authenticate through the token itself. The
		// optional JWT only enriches the audit row when a session is present.
		api.GET("/evidences/:id/download",
			middleware.OptionalJWT(authSvc),
			middleware.Audit(userRepo, models.AuditActionEvidenceDownload, "evidences"),
			evidenceHandler.Download)
		api.GET("/documents/:id/download",
			middleware.OptionalJWT(authSvc),
			middleware.Audit(userRepo, models.AuditActionDocumentDownload, "documents"),
			documentHandler.Download)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.POST("/auth/logout", authHandler.Logout)
		authed.GET("/auth/me", authHandler.Me)

		authed.POST("/requests", middleware.RequireRoles(models.RoleStudent), requestHandler.Create)
		authed.GET("/requests", middleware.RequireRoles(models.RoleStudent), requestHandler.List)
		authed.GET("/requests/:id", requestHandler.Get)
		authed.PUT("/requests/:id", middleware.RequireRoles(models.RoleStudent), requestHandler.Update)
		authed.DELETE("/requests/:id", middleware.RequireRoles(models.RoleStudent), requestHandler.Delete)
		authed.POST("/requests/:id/submit", middleware.RequireRoles(models.RoleStudent), requestHandler.Submit)

		authed.POST("/requests/:id/evidences", evidenceHandler.Attach)
		authed.GET("/requests/:id/evidences", evidenceHandler.List)

		authed.POST("/requests/:id/decision", middleware.RequireApprover(), validationHandler.Decide)
		authed.GET("/requests/:id/history", validationHandler.History)
		authed.GET("/validations/pending", middleware.RequireApprover(), validationHandler.Pending)
		authed.GET("/validations/stats", middleware.RequireApprover(), validationHandler.Stats)

		authed.GET("/requests/:id/fiche", documentHandler.SummarySheet)
		authed.GET("/requests/:id/documents", documentHandler.List)
		authed.GET("/documents/:id", documentHandler.Get)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	renderQueue.Start(ctx)
	defer renderQueue.Stop()

	if err := documentSvc.RequeuePending(ctx); err != nil {
		logr.Sugar().Warnw("failed to requeue pending renders", "error", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
