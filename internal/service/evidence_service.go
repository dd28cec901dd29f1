package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acadflow/docflow-api/internal/dto"
	"github.com/acadflow/docflow-api/internal/models"
	"github.com/acadflow/docflow-api/internal/repository"
	appErrors "github.com/acadflow/docflow-api/pkg/errors"
)

type evidenceStore interface {
	CreateInOpenRequest(ctx context.Context, evidence *models.Evidence) error
	GetByID(ctx context.Context, id string) (*models.Evidence, error)
	ListForRequest(ctx context.Context, requestID string) ([]models.Evidence, error)
}

type evidenceRequestResolver interface {
	GetByID(ctx context.Context, id string) (*models.Request, error)
}

type fileStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type signedURLSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (id, relPath string, expiresAt time.Time, err error)
}

// EvidenceUpload carries upload metadata and the stream reader.
type EvidenceUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.Reader
}

// EvidenceDownload bundles file reader metadata for streaming.
type EvidenceDownload struct {
	File      *os.File
	Filename  string
	MimeType  string
	SizeBytes int64
}

// EvidenceServiceConfig holds validation parameters.
type EvidenceServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// EvidenceService manages supporting files attached to requests.
type EvidenceService struct {
	repo     evidenceStore
	requests evidenceRequestResolver
	storage  fileStorage
	signer   signedURLSigner
	audit    auditLogger
	logger   *zap.Logger
	cfg      EvidenceServiceConfig
	mimeSet  map[string]struct{}
}

// NewEvidenceService constructs the service with defaults.
func NewEvidenceService(repo evidenceStore, requests evidenceRequestResolver, storage fileStorage, signer signedURLSigner, audit auditLogger, logger *zap.Logger, cfg EvidenceServiceConfig) *EvidenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf", "image/jpeg", "image/png"}
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(mt)] = struct{}{}
	}
	return &EvidenceService{
		repo:     repo,
		requests: requests,
		storage:  storage,
		signer:   signer,
		audit:    audit,
		logger:   logger,
		cfg:      cfg,
		mimeSet:  mimeSet,
	}
}

// Attach stores the uploaded file and its metadata for the owner's request.
// The metadata insert re-checks the request status under a row lock, so an
// upload racing a terminal transition fails rather than landing on a closed
// request.
func (s *EvidenceService) Attach(ctx context.Context, requestID string, meta dto.AttachEvidencePayload, upload EvidenceUpload, actor *models.JWTClaims) (*models.Evidence, error) {
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
	if request.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request belongs to another student")
	}
	if request.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "request is already closed")
	}
	if !meta.Kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown evidence kind")
	}
	if upload.Size <= 0 || upload.Size > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file size must be between 1 byte and %d bytes", s.cfg.MaxFileSize))
	}
	mime := strings.ToLower(strings.TrimSpace(upload.MimeType))
	if _, ok := s.mimeSet[mime]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported file type: "+mime)
	}

	relPath := filepath.Join(requestID, uuid.NewString()+filepath.Ext(upload.Filename))
	if _, err := s.storage.SaveStream(relPath, upload.Content); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evidence file")
	}

	evidence := &models.Evidence{
		RequestID:   requestID,
		Kind:        meta.Kind,
		Description: strings.TrimSpace(meta.Description),
		FilePath:    relPath,
		Filename:    filepath.Base(upload.Filename),
		MimeType:    mime,
		SizeBytes:   upload.Size,
		UploadedBy:  actor.UserID,
	}
	if err := s.repo.CreateInOpenRequest(ctx, evidence); err != nil {
		if removeErr := s.storage.Delete(relPath); removeErr != nil {
			s.logger.Warn("failed to remove orphaned evidence file", zap.String("path", relPath), zap.Error(removeErr))
		}
		switch {
		case errors.Is(err, repository.ErrRequestClosed):
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "request closed while uploading")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save evidence")
	}

	s.emitAudit(ctx, actor.UserID, evidence)
	return evidence, nil
}

// List returns evidence metadata with signed download URLs.
func (s *EvidenceService) List(ctx context.Context, requestID string, actor *models.JWTClaims) ([]dto.EvidenceDownloadResponse, error) {
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

	records, err := s.repo.ListForRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evidence")
	}
	out := make([]dto.EvidenceDownloadResponse, 0, len(records))
	for _, record := range records {
		item := dto.EvidenceDownloadResponse{Evidence: record}
		if token, _, err := s.signer.Generate(record.ID, record.FilePath); err == nil {
			item.DownloadURL = fmt.Sprintf("%s/evidences/%s/download?token=%s", s.cfg.APIPrefix, record.ID, token)
		}
		out = append(out, item)
	}
	return out, nil
}

// ResolveDownload validates the signed token and opens the stored file.
func (s *EvidenceService) ResolveDownload(ctx context.Context, evidenceID, token string) (*EvidenceDownload, error) {
	tokenID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil || tokenID != evidenceID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	evidence, err := s.repo.GetByID(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evidence")
	}
	if evidence.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.storage.Open(evidence.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open evidence file")
	}
	return &EvidenceDownload{
		File:      file,
		Filename:  evidence.Filename,
		MimeType:  evidence.MimeType,
		SizeBytes: evidence.SizeBytes,
	}, nil
}

func (s *EvidenceService) emitAudit(ctx context.Context, actorID string, evidence *models.Evidence) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionEvidenceAttach,
		Resource:   "evidence",
		ResourceID: &evidence.ID,
		IPAddress:  "system",
		UserAgent:  "evidence-store",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
