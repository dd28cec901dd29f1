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

type validationRequestStore interface {
	GetByID(ctx context.Context, id string) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error)
	ApplyTransition(ctx context.Context, params repository.TransitionParams) (*models.ValidationRecord, error)
	CountByStatus(ctx context.Context) (map[models.RequestStatus]int, error)
}

type validationHistoryStore interface {
	HistoryFor(ctx context.Context, requestID string) ([]models.ValidationRecord, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type renderScheduler interface {
	ScheduleRender(requestID string, kinds []models.DocumentKind)
}

type transitionObserver interface {
	RecordTransition(action models.ValidationAction, applied bool)
}

// ValidationService is the state machine governing request lifecycles. Every
// status change in the system flows through Decide or through the ledger's
// submit path; both end in the same atomic transition write.
type ValidationService struct {
	requests validationRequestStore
	history  validationHistoryStore
	audit    auditLogger
	renderer renderScheduler
	cache    *CacheService
	metrics  transitionObserver
	logger   *zap.Logger
}

// NewValidationService constructs the engine.
func NewValidationService(requests validationRequestStore, history validationHistoryStore, audit auditLogger, renderer renderScheduler, cache *CacheService, metrics transitionObserver, logger *zap.Logger) *ValidationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationService{
		requests: requests,
		history:  history,
		audit:    audit,
		renderer: renderer,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
	}
}

// Decide applies an approver's decision on the request whose stage it is.
// Exactly one of two callers racing on the same request wins; the loser gets
// ErrConflict and must re-read before retrying.
func (s *ValidationService) Decide(ctx context.Context, req dto.DecisionPayload, actor *models.JWTClaims) (*dto.DecisionResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if strings.TrimSpace(req.RequestID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requestId is required")
	}
	if !req.Action.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "action must be approve or reject")
	}
	if !actor.Role.IsApprover() {
		return nil, appErrors.ErrForbidden
	}

	request, err := s.requests.GetByID(ctx, req.RequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if request.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "request is already closed")
	}
	stage, ok := models.StageForStatus(request.Status)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "request has not been submitted yet")
	}
	if actor.Role != stage.Role {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request is not at your validation stage")
	}

	next := stage.Next
	if req.Action == models.ActionReject {
		next = models.StatusRejected
	}

	record, err := s.requests.ApplyTransition(ctx, repository.TransitionParams{
		RequestID:  request.ID,
		FromStatus: request.Status,
		ToStatus:   next,
		Record: models.ValidationRecord{
			Role:    actor.Role,
			Action:  req.Action,
			Comment: optionalComment(req.Comment),
		},
		Artifacts: artifactsForStatus(request, next),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.observe(req.Action, false)
			return nil, appErrors.Clone(appErrors.ErrConflict, "request was decided concurrently, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply validation")
	}
	s.observe(req.Action, true)

	s.afterTransition(ctx, request, next, actor.UserID, record)
	return &dto.DecisionResponse{
		RequestID: request.ID,
		Status:    next,
		Action:    req.Action,
		Record:    *record,
	}, nil
}

// ListPending returns the validation queue for a chain role: every request
// whose current status maps to that role in the approval table.
func (s *ValidationService) ListPending(ctx context.Context, actor *models.JWTClaims) ([]models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	status, ok := models.PendingStatusForRole(actor.Role)
	if !ok {
		return nil, appErrors.ErrForbidden
	}

	cacheKey := "docflow:pending:" + string(actor.Role)
	var cached []models.Request
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	requests, err := s.requests.List(ctx, models.RequestFilter{Status: status})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending requests")
	}
	if err := s.cache.Set(ctx, cacheKey, requests, 0); err != nil {
		s.logger.Warn("failed to cache pending queue", zap.Error(err))
	}
	return requests, nil
}

// HistoryFor returns a request's validation trail, oldest first. Visible to
// the owning student and to every chain role.
func (s *ValidationService) HistoryFor(ctx context.Context, requestID string, actor *models.JWTClaims) ([]models.ValidationRecord, error) {
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
	records, err := s.history.HistoryFor(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}
	return records, nil
}

// Stats reports how many requests sit at each lifecycle status. Approver-only.
func (s *ValidationService) Stats(ctx context.Context, actor *models.JWTClaims) (map[models.RequestStatus]int, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.IsApprover() {
		return nil, appErrors.ErrForbidden
	}
	counts, err := s.requests.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count requests")
	}
	return counts, nil
}

func (s *ValidationService) afterTransition(ctx context.Context, request *models.Request, next models.RequestStatus, actorID string, record *models.ValidationRecord) {
	if kinds := artifactsForStatus(request, next); len(kinds) > 0 && s.renderer != nil {
		s.renderer.ScheduleRender(request.ID, kinds)
	}

	s.invalidateQueues(ctx, request)

	payload, _ := json.Marshal(map[string]interface{}{
		"from":   request.Status,
		"to":     next,
		"action": record.Action,
	})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionValidation,
		Resource:   "request",
		ResourceID: &request.ID,
		NewValues:  payload,
	})
}

func (s *ValidationService) invalidateQueues(ctx context.Context, request *models.Request) {
	if err := s.cache.DeleteByPattern(ctx, "docflow:pending:*"); err != nil {
		s.logger.Warn("failed to invalidate pending queues", zap.Error(err))
	}
	if err := s.cache.DeleteByPattern(ctx, "docflow:request:"+request.ID); err != nil {
		s.logger.Warn("failed to invalidate request cache", zap.Error(err))
	}
}

func (s *ValidationService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "validation-engine"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func (s *ValidationService) observe(action models.ValidationAction, applied bool) {
	if s.metrics != nil {
		s.metrics.RecordTransition(action, applied)
	}
}

// artifactsForStatus lists the registry rows a transition materializes: the
// summary sheet when the dean signs off, every requested document on completion.
func artifactsForStatus(request *models.Request, next models.RequestStatus) []models.DocumentKind {
	switch next {
	case models.StatusValidatedDean:
		return []models.DocumentKind{models.KindFicheSynthese}
	case models.StatusCompleted:
		return request.Kinds()
	}
	return nil
}

func optionalComment(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
