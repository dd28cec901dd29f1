package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/acadflow/docflow-api/internal/dto"
	"github.com/acadflow/docflow-api/internal/models"
	"github.com/acadflow/docflow-api/pkg/export"
	appErrors "github.com/acadflow/docflow-api/pkg/errors"
	"github.com/acadflow/docflow-api/pkg/jobs"
)

type documentStore interface {
	Ensure(ctx context.Context, requestID string, kind models.DocumentKind) (*models.GeneratedDocument, error)
	GetByID(ctx context.Context, id string) (*models.GeneratedDocument, error)
	GetByRequestAndKind(ctx context.Context, requestID string, kind models.DocumentKind) (*models.GeneratedDocument, error)
	ListForRequest(ctx context.Context, requestID string) ([]models.GeneratedDocument, error)
	ListPendingRender(ctx context.Context, limit int) ([]models.GeneratedDocument, error)
	UpdateRenderResult(ctx context.Context, id string, status models.RenderStatus, filePath *string) error
}

type documentUserResolver interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type renderObserver interface {
	RecordRender(kind models.DocumentKind, ok bool)
}

// RenderJobPayload identifies the artifact a queued render job materializes.
type RenderJobPayload struct {
	RequestID string
	Kind      models.DocumentKind
}

// DocumentServiceConfig holds download URL settings.
type DocumentServiceConfig struct {
	APIPrefix string
}

// DocumentService owns the generated artifact registry. Registry rows are
// created by the validation engine (or re-ensured here, idempotently); actual
// PDF rendering happens asynchronously on the job queue.
type DocumentService struct {
	repo     documentStore
	requests evidenceRequestResolver
	history  validationHistoryStore
	users    documentUserResolver
	renderer *export.PDFRenderer
	storage  fileStorage
	signer   signedURLSigner
	queue    jobDispatcher
	metrics  renderObserver
	logger   *zap.Logger
	cfg      DocumentServiceConfig
}

// NewDocumentService constructs the service.
func NewDocumentService(repo documentStore, requests evidenceRequestResolver, history validationHistoryStore, users documentUserResolver, renderer *export.PDFRenderer, storage fileStorage, signer signedURLSigner, queue jobDispatcher, metrics renderObserver, logger *zap.Logger, cfg DocumentServiceConfig) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &DocumentService{
		repo:     repo,
		requests: requests,
		history:  history,
		users:    users,
		renderer: renderer,
		storage:  storage,
		signer:   signer,
		queue:    queue,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// ScheduleRender enqueues render jobs for freshly registered artifacts. Called
// by the validation engine after a transition commits.
func (s *DocumentService) ScheduleRender(requestID string, kinds []models.DocumentKind) {
	if s.queue == nil {
		return
	}
	for _, kind := range kinds {
		if err := s.queue.Enqueue(jobs.Job{
			ID:      fmt.Sprintf("%s/%s", requestID, kind),
			Type:    "render_document",
			Payload: RenderJobPayload{RequestID: requestID, Kind: kind},
		}); err != nil {
			s.logger.Warn("failed to enqueue render job",
				zap.String("request_id", requestID), zap.String("kind", string(kind)), zap.Error(err))
		}
	}
}

// RequeuePending re-enqueues artifacts whose render never finished, typically
// after a restart cut the worker pool off mid-job.
func (s *DocumentService) RequeuePending(ctx context.Context) error {
	pending, err := s.repo.ListPendingRender(ctx, 500)
	if err != nil {
		return fmt.Errorf("list pending renders: %w", err)
	}
	for _, artifact := range pending {
		s.ScheduleRender(artifact.RequestID, []models.DocumentKind{artifact.Kind})
	}
	if len(pending) > 0 {
		s.logger.Info("requeued unfinished renders", zap.Int("count", len(pending)))
	}
	return nil
}

// HandleRenderJob is the queue handler materializing one artifact file. Safe
// to retry: an already rendered artifact is left untouched.
func (s *DocumentService) HandleRenderJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(RenderJobPayload)
	if !ok {
		return fmt.Errorf("render job %s: unexpected payload type", job.ID)
	}

	artifact, err := s.repo.GetByRequestAndKind(ctx, payload.RequestID, payload.Kind)
	if err != nil {
		return fmt.Errorf("render job %s: load artifact: %w", job.ID, err)
	}
	if artifact.Render == models.RenderReady {
		return nil
	}

	content, err := s.render(ctx, payload.RequestID, payload.Kind)
	if err != nil {
		_ = s.repo.UpdateRenderResult(ctx, artifact.ID, models.RenderFailed, nil)
		s.observeRender(payload.Kind, false)
		return fmt.Errorf("render job %s: %w", job.ID, err)
	}

	relPath := filepath.Join(payload.RequestID, string(payload.Kind)+".pdf")
	if _, err := s.storage.SaveStream(relPath, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("render job %s: store file: %w", job.ID, err)
	}
	if err := s.repo.UpdateRenderResult(ctx, artifact.ID, models.RenderReady, &relPath); err != nil {
		return fmt.Errorf("render job %s: record result: %w", job.ID, err)
	}
	s.observeRender(payload.Kind, true)
	s.logger.Info("artifact rendered",
		zap.String("request_id", payload.RequestID), zap.String("kind", string(payload.Kind)))
	return nil
}

// SummarySheet resolves the synthesis sheet for a request once the dean has
// signed off. Re-invocation is idempotent: the registry row is ensured, never
// duplicated.
func (s *DocumentService) SummarySheet(ctx context.Context, requestID string, actor *models.JWTClaims) (*dto.DocumentDownloadResponse, error) {
	request, err := s.accessibleRequest(ctx, requestID, actor)
	if err != nil {
		return nil, err
	}
	if request.Status != models.StatusValidatedDean && request.Status != models.StatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "summary sheet is available once the dean has validated")
	}
	return s.resolveArtifact(ctx, requestID, models.KindFicheSynthese)
}

// AcademicDocument resolves one generated academic document by artifact id.
func (s *DocumentService) AcademicDocument(ctx context.Context, docID string, actor *models.JWTClaims) (*dto.DocumentDownloadResponse, error) {
	artifact, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load artifact")
	}
	request, err := s.accessibleRequest(ctx, artifact.RequestID, actor)
	if err != nil {
		return nil, err
	}
	if artifact.Kind != models.KindFicheSynthese && request.Status != models.StatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "documents are available once the request completes")
	}
	return s.withDownloadURL(artifact), nil
}

// List returns every artifact registered for a request.
func (s *DocumentService) List(ctx context.Context, requestID string, actor *models.JWTClaims) ([]dto.DocumentDownloadResponse, error) {
	if _, err := s.accessibleRequest(ctx, requestID, actor); err != nil {
		return nil, err
	}
	artifacts, err := s.repo.ListForRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list artifacts")
	}
	out := make([]dto.DocumentDownloadResponse, 0, len(artifacts))
	for i := range artifacts {
		out = append(out, *s.withDownloadURL(&artifacts[i]))
	}
	return out, nil
}

// ResolveDownload validates the signed token and opens the rendered file.
func (s *DocumentService) ResolveDownload(ctx context.Context, docID, token string) (*EvidenceDownload, error) {
	tokenID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil || tokenID != docID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	artifact, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load artifact")
	}
	if artifact.FilePath == nil || *artifact.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.storage.Open(*artifact.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open artifact file")
	}
	info, err := file.Stat()
	var size int64
	if err == nil {
		size = info.Size()
	}
	return &EvidenceDownload{
		File:      file,
		Filename:  string(artifact.Kind) + ".pdf",
		MimeType:  "application/pdf",
		SizeBytes: size,
	}, nil
}

func (s *DocumentService) observeRender(kind models.DocumentKind, ok bool) {
	if s.metrics != nil {
		s.metrics.RecordRender(kind, ok)
	}
}

func (s *DocumentService) resolveArtifact(ctx context.Context, requestID string, kind models.DocumentKind) (*dto.DocumentDownloadResponse, error) {
	artifact, err := s.repo.GetByRequestAndKind(ctx, requestID, kind)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load artifact")
		}
		// Registry row missing despite eligible status: re-register and render.
		artifact, err = s.repo.Ensure(ctx, requestID, kind)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register artifact")
		}
		s.ScheduleRender(requestID, []models.DocumentKind{kind})
	}
	return s.withDownloadURL(artifact), nil
}

func (s *DocumentService) withDownloadURL(artifact *models.GeneratedDocument) *dto.DocumentDownloadResponse {
	resp := &dto.DocumentDownloadResponse{GeneratedDocument: *artifact}
	if artifact.Render == models.RenderReady && artifact.FilePath != nil {
		if token, _, err := s.signer.Generate(artifact.ID, *artifact.FilePath); err == nil {
			resp.DownloadURL = fmt.Sprintf("%s/documents/%s/download?token=%s", s.cfg.APIPrefix, artifact.ID, token)
		}
	}
	return resp
}

func (s *DocumentService) accessibleRequest(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if !actor.Role.IsApprover() && request.StudentID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return request, nil
}

func (s *DocumentService) render(ctx context.Context, requestID string, kind models.DocumentKind) ([]byte, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	student, err := s.users.FindByID(ctx, request.StudentID)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}

	labels := make([]string, 0, len(request.DocumentKinds))
	for _, k := range request.Kinds() {
		labels = append(labels, models.DocumentKindLabels[k])
	}
	info := export.RequestInfo{
		RequestID:    request.ID,
		StudentName:  student.FullName,
		StudentEmail: student.Email,
		Motif:        request.Motif,
		CreatedAt:    request.CreatedAt,
		Kinds:        labels,
	}

	if kind == models.KindFicheSynthese {
		history, err := s.history.HistoryFor(ctx, requestID)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		trail := make([]export.TrailEntry, 0, len(history))
		for _, record := range history {
			entry := export.TrailEntry{
				Role:   string(record.Role),
				Action: string(record.Action),
				At:     record.Timestamp,
			}
			if record.Comment != nil {
				entry.Comment = *record.Comment
			}
			trail = append(trail, entry)
		}
		return s.renderer.RenderSummarySheet(info, trail)
	}
	return s.renderer.RenderAcademicDocument(models.DocumentKindLabels[kind], info)
}
