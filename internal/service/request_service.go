package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/acadflow/docflow-api/internal/dto"
	"github.com/acadflow/docflow-api/internal/models"
	"github.com/acadflow/docflow-api/internal/repository"
	appErrors "github.com/acadflow/docflow-api/pkg/errors"
)

type requestStore interface {
	Create(ctx context.Context, request *models.Request) error
	GetByID(ctx context.Context, id string) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error)
	UpdateDraft(ctx context.Context, id string, kinds []string, motif string) error
	DeleteDraft(ctx context.Context, id string) error
	ApplyTransition(ctx context.Context, params repository.TransitionParams) (*models.ValidationRecord, error)
}

type evidenceLister interface {
	ListForRequest(ctx context.Context, requestID string) ([]models.Evidence, error)
}

type documentLister interface {
	ListForRequest(ctx context.Context, requestID string) ([]models.GeneratedDocument, error)
}

// RequestService is the ledger for document requests: creation, draft edits,
// submission, and the read paths.
type RequestService struct {
	repo      requestStore
	evidence  evidenceLister
	documents documentLister
	history   validationHistoryStore
	audit     auditLogger
	cache     *CacheService
	logger    *zap.Logger
}

// NewRequestService constructs the service.
func NewRequestService(repo requestStore, evidence evidenceLister, documents documentLister, history validationHistoryStore, audit auditLogger, cache *CacheService, logger *zap.Logger) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{
		repo:      repo,
		evidence:  evidence,
		documents: documents,
		history:   history,
		audit:     audit,
		cache:     cache,
		logger:    logger,
	}
}

// Create opens a new request in draft state for the acting student.
func (s *RequestService) Create(ctx context.Context, req dto.CreateRequestPayload, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students create document requests")
	}
	kinds, err := validateRequestPayload(req.DocumentKinds, req.Motif)
	if err != nil {
		return nil, err
	}

	request := &models.Request{
		StudentID:     actor.UserID,
		DocumentKinds: kinds,
		Motif:         strings.TrimSpace(req.Motif),
		Status:        models.StatusDraft,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	payload, _ := json.Marshal(request)
	s.emitAudit(ctx, actor.UserID, models.AuditActionRequestCreate, request.ID, payload)
	return request, nil
}

// Update edits kinds and motif while the request is still a draft.
func (s *RequestService) Update(ctx context.Context, id string, req dto.UpdateRequestPayload, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.ownedRequest(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if request.Status != models.StatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only drafts can be edited")
	}
	kinds, err := validateRequestPayload(req.DocumentKinds, req.Motif)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateDraft(ctx, id, kinds, strings.TrimSpace(req.Motif)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request left draft state concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request")
	}
	request.DocumentKinds = kinds
	request.Motif = strings.TrimSpace(req.Motif)

	payload, _ := json.Marshal(request)
	s.emitAudit(ctx, actor.UserID, models.AuditActionRequestUpdate, request.ID, payload)
	return request, nil
}

// Delete removes a draft. Submitted requests stay in the ledger forever.
func (s *RequestService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	request, err := s.ownedRequest(ctx, id, actor)
	if err != nil {
		return err
	}
	if request.Status != models.StatusDraft {
		return appErrors.Clone(appErrors.ErrInvalidState, "only drafts can be deleted")
	}
	if err := s.repo.DeleteDraft(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "request left draft state concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete request")
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionRequestDelete, id, nil)
	return nil
}

// Submit moves the owner's draft into the approval chain. The same atomic
// transition write as approver decisions: status flip, history record, nothing
// partial on a lost race.
func (s *RequestService) Submit(ctx context.Context, id string, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.ownedRequest(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if request.Status != models.StatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "request has already been submitted")
	}
	if len(request.DocumentKinds) == 0 || strings.TrimSpace(request.Motif) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "request needs at least one document kind and a motif")
	}

	if _, err := s.repo.ApplyTransition(ctx, repository.TransitionParams{
		RequestID:  request.ID,
		FromStatus: models.StatusDraft,
		ToStatus:   models.StatusSubmitted,
		Record: models.ValidationRecord{
			Role:   models.RoleStudent,
			Action: models.ActionApprove,
		},
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request was submitted concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit request")
	}
	request.Status = models.StatusSubmitted

	if err := s.cache.DeleteByPattern(ctx, "docflow:pending:*"); err != nil {
		s.logger.Warn("failed to invalidate pending queues", zap.Error(err))
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionRequestSubmit, request.ID, nil)
	return request, nil
}

// Get returns the request with joined evidence, artifacts, and history.
func (s *RequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.RequestDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if !actor.Role.IsApprover() && request.StudentID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}

	detail := &dto.RequestDetail{Request: *request}
	if detail.Evidence, err = s.evidence.ListForRequest(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evidence")
	}
	if detail.Documents, err = s.documents.ListForRequest(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load artifacts")
	}
	if detail.History, err = s.history.HistoryFor(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}
	return detail, nil
}

// ListForStudent returns the acting student's own requests.
func (s *RequestService) ListForStudent(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.RequestFilter{
		StudentID: actor.UserID,
		Status:    query.Status,
		Limit:     query.Limit,
		Offset:    query.Offset,
	}
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, nil
}

func (s *RequestService) ownedRequest(ctx context.Context, id string, actor *models.JWTClaims) (*models.Request, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if request.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request belongs to another student")
	}
	return request, nil
}

func (s *RequestService) emitAudit(ctx context.Context, actorID, action, resourceID string, payload []byte) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "request",
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "request-ledger",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func validateRequestPayload(kinds []models.DocumentKind, motif string) ([]string, error) {
	if len(kinds) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one document kind is required")
	}
	if strings.TrimSpace(motif) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "motif is required")
	}
	seen := make(map[models.DocumentKind]struct{}, len(kinds))
	stored := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		if !kind.IsRequestable() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown document kind: "+string(kind))
		}
		if _, dup := seen[kind]; dup {
			continue
		}
		seen[kind] = struct{}{}
		stored = append(stored, string(kind))
	}
	return stored, nil
}
