package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acadflow/docflow-api/internal/dto"
	"github.com/acadflow/docflow-api/internal/models"
	"github.com/acadflow/docflow-api/internal/repository"
	appErrors "github.com/acadflow/docflow-api/pkg/errors"
)

type requestStoreStub struct {
	requests map[string]*models.Request
	history  map[string][]models.ValidationRecord
	filter   models.RequestFilter
	seq      int

	failTransition error
}

func newRequestStoreStub() *requestStoreStub {
	return &requestStoreStub{
		requests: make(map[string]*models.Request),
		history:  make(map[string][]models.ValidationRecord),
	}
}

func (s *requestStoreStub) add(request *models.Request) *models.Request {
	if request.ID == "" {
		s.seq++
		request.ID = fmt.Sprintf("req-%d", s.seq)
	}
	s.requests[request.ID] = request
	return request
}

func (s *requestStoreStub) Create(ctx context.Context, request *models.Request) error {
	s.seq++
	request.ID = fmt.Sprintf("req-%d", s.seq)
	request.CreatedAt = time.Now().UTC()
	request.UpdatedAt = request.CreatedAt
	s.requests[request.ID] = request
	return nil
}

func (s *requestStoreStub) GetByID(ctx context.Context, id string) (*models.Request, error) {
	if request, ok := s.requests[id]; ok {
		copy := *request
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *requestStoreStub) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error) {
	s.filter = filter
	result := make([]models.Request, 0)
	for _, request := range s.requests {
		if filter.Status != "" && request.Status != filter.Status {
			continue
		}
		if filter.StudentID != "" && request.StudentID != filter.StudentID {
			continue
		}
		result = append(result, *request)
	}
	return result, nil
}

func (s *requestStoreStub) UpdateDraft(ctx context.Context, id string, kinds []string, motif string) error {
	request, ok := s.requests[id]
	if !ok || request.Status != models.StatusDraft {
		return sql.ErrNoRows
	}
	request.DocumentKinds = kinds
	request.Motif = motif
	return nil
}

func (s *requestStoreStub) DeleteDraft(ctx context.Context, id string) error {
	request, ok := s.requests[id]
	if !ok || request.Status != models.StatusDraft {
		return sql.ErrNoRows
	}
	delete(s.requests, id)
	return nil
}

func (s *requestStoreStub) ApplyTransition(ctx context.Context, params repository.TransitionParams) (*models.ValidationRecord, error) {
	if s.failTransition != nil {
		err := s.failTransition
		s.failTransition = nil
		return nil, err
	}
	request, ok := s.requests[params.RequestID]
	if !ok || request.Status != params.FromStatus {
		return nil, sql.ErrNoRows
	}
	request.Status = params.ToStatus
	request.UpdatedAt = time.Now().UTC()

	record := params.Record
	s.seq++
	record.ID = fmt.Sprintf("val-%d", s.seq)
	record.RequestID = params.RequestID
	record.Timestamp = time.Now().UTC()
	s.history[params.RequestID] = append(s.history[params.RequestID], record)
	return &record, nil
}

func (s *requestStoreStub) HistoryFor(ctx context.Context, requestID string) ([]models.ValidationRecord, error) {
	return s.history[requestID], nil
}

func (s *requestStoreStub) CountByStatus(ctx context.Context) (map[models.RequestStatus]int, error) {
	counts := make(map[models.RequestStatus]int)
	for _, request := range s.requests {
		counts[request.Status]++
	}
	return counts, nil
}

type auditLogStub struct {
	logs []*models.AuditLog
}

func (a *auditLogStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type schedulerStub struct {
	calls map[string][]models.DocumentKind
}

func newSchedulerStub() *schedulerStub {
	return &schedulerStub{calls: make(map[string][]models.DocumentKind)}
}

func (s *schedulerStub) ScheduleRender(requestID string, kinds []models.DocumentKind) {
	s.calls[requestID] = append(s.calls[requestID], kinds...)
}

type observerStub struct {
	applied   int
	conflicts int
}

func (o *observerStub) RecordTransition(action models.ValidationAction, applied bool) {
	if applied {
		o.applied++
	} else {
		o.conflicts++
	}
}

func approverClaims(role models.UserRole) *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-" + string(role), Role: role}
}

func submittedRequest(store *requestStoreStub) *models.Request {
	return store.add(&models.Request{
		StudentID:     "student-1",
		DocumentKinds: []string{"releve_notes_l1", "diplome_licence"},
		Motif:         "stage application",
		Status:        models.StatusSubmitted,
	})
}

func TestValidationServiceFullChain(t *testing.T) {
	store := newRequestStoreStub()
	audit := &auditLogStub{}
	scheduler := newSchedulerStub()
	observer := &observerStub{}
	svc := NewValidationService(store, store, audit, scheduler, nil, observer, nil)

	request := submittedRequest(store)

	roles := []models.UserRole{
		models.RoleSecretariat,
		models.RoleLibrary,
		models.RoleLibrarian,
		models.RoleAccountant,
		models.RoleDean,
		models.RoleAcademicOffice,
	}
	for _, role := range roles {
		res, err := svc.Decide(context.Background(), dto.DecisionPayload{
			RequestID: request.ID,
			Action:    models.ActionApprove,
		}, approverClaims(role))
		require.NoError(t, err, "role %s", role)
		require.Equal(t, role, res.Record.Role)
	}

	final, err := store.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, final.Status)
	require.Len(t, store.history[request.ID], len(roles))
	require.Equal(t, len(roles), observer.applied)
	require.Len(t, audit.logs, len(roles))

	// Replaying the recorded history from submission must reproduce the status.
	replayed := append([]models.ValidationRecord{{Role: models.RoleStudent, Action: models.ActionApprove}}, store.history[request.ID]...)
	require.Equal(t, models.StatusCompleted, models.ReplayStatus(replayed))

	// Dean sign-off registers the summary sheet, completion the requested kinds.
	require.Contains(t, scheduler.calls[request.ID], models.KindFicheSynthese)
	require.Contains(t, scheduler.calls[request.ID], models.KindReleveNotesL1)
	require.Contains(t, scheduler.calls[request.ID], models.KindDiplomeLicence)
}

func TestValidationServiceReject(t *testing.T) {
	store := newRequestStoreStub()
	svc := NewValidationService(store, store, &auditLogStub{}, newSchedulerStub(), nil, nil, nil)

	request := submittedRequest(store)

	res, err := svc.Decide(context.Background(), dto.DecisionPayload{
		RequestID: request.ID,
		Action:    models.ActionReject,
		Comment:   "missing payment receipt",
	}, approverClaims(models.RoleSecretariat))
	require.NoError(t, err)
	require.Equal(t, models.StatusRejected, res.Status)
	require.NotNil(t, res.Record.Comment)
	require.Equal(t, "missing payment receipt", *res.Record.Comment)

	final, _ := store.GetByID(context.Background(), request.ID)
	require.Equal(t, models.StatusRejected, final.Status)
}

func TestValidationServiceRejectIsTerminal(t *testing.T) {
	store := newRequestStoreStub()
	svc := NewValidationService(store, store, &auditLogStub{}, newSchedulerStub(), nil, nil, nil)

	request := submittedRequest(store)
	_, err := svc.Decide(context.Background(), dto.DecisionPayload{
		RequestID: request.ID,
		Action:    models.ActionReject,
	}, approverClaims(models.RoleSecretariat))
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), dto.DecisionPayload{
		RequestID: request.ID,
		Action:    models.ActionApprove,
	}, approverClaims(models.RoleSecretariat))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestValidationServiceWrongTurn(t *testing.T) {
	store := newRequestStoreStub()
	svc := NewValidationService(store, store, &auditLogStub{}, newSchedulerStub(), nil, nil, nil)

	request := submittedRequest(store)

	// The dean cannot act while the request sits with the secretariat.
	_, err := svc.Decide(context.Background(), dto.DecisionPayload{
		RequestID: request.ID,
		Action:    models.ActionApprove,
	}, approverClaims(models.RoleDean))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	final, _ := store.GetByID(context.Background(), request.ID)
	require.Equal(t, models.StatusSubmitted, final.Status)
}

func TestValidationServiceStudentCannotDecide(t *testing.T) {
	store := newRequestStoreStub()
	svc := NewValidationService(store, store, &auditLogStub{}, newSchedulerStub(), nil, nil, nil)

	request := submittedRequest(store)
	_, err := svc.Decide(context.Background(), dto.DecisionPayload{
		RequestID: request.ID,
		Action:    models.ActionApprove,
	}, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestValidationServiceDraftNotDecidable(t *testing.T) {
	store := newRequestStoreStub()
	svc := NewValidationService(store, store, &auditLogStub{}, newSchedulerStub(), nil, nil, nil)

	request := store.add(&models.Request{StudentID: "student-1", Status: models.StatusDraft})
	_, err := svc.Decide(context.Background(), dto.DecisionPayload{
		RequestID: request.ID,
		Action:    models.ActionApprove,
	}, approverClaims(models.RoleSecretariat))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestValidationServiceConcurrentDecisionConflict(t *testing.T) {
	store := newRequestStoreStub()
	observer := &observerStub{}
	svc := NewValidationService(store, store, &auditLogStub{}, newSchedulerStub(), nil, observer, nil)

	request := submittedRequest(store)
	store.failTransition = sql.ErrNoRows

	_, err := svc.Decide(context.Background(), dto.DecisionPayload{
		RequestID: request.ID,
		Action:    models.ActionApprove,
	}, approverClaims(models.RoleSecretariat))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	require.Equal(t, 1, observer.conflicts)

	// History gained nothing from the lost race.
	require.Empty(t, store.history[request.ID])
}

func TestValidationServiceNotFound(t *testing.T) {
	store := newRequestStoreStub()
	svc := NewValidationService(store, store, &auditLogStub{}, newSchedulerStub(), nil, nil, nil)

	_, err := svc.Decide(context.Background(), dto.DecisionPayload{
		RequestID: "missing",
		Action:    models.ActionApprove,
	}, approverClaims(models.RoleSecretariat))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestValidationServiceInvalidPayload(t *testing.T) {
	store := newRequestStoreStub()
	svc := NewValidationService(store, store, &auditLogStub{}, newSchedulerStub(), nil, nil, nil)

	_, err := svc.Decide(context.Background(), dto.DecisionPayload{Action: models.ActionApprove}, approverClaims(models.RoleDean))
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Decide(context.Background(), dto.DecisionPayload{RequestID: "req-1", Action: "cancel"}, approverClaims(models.RoleDean))
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Decide(context.Background(), dto.DecisionPayload{RequestID: "req-1", Action: models.ActionApprove}, nil)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestListPendingByRole(t *testing.T) {
	store := newRequestStoreStub()
	svc := NewValidationService(store, store, &auditLogStub{}, newSchedulerStub(), nil, nil, nil)

	submittedRequest(store)
	store.add(&models.Request{StudentID: "student-2", Status: models.StatusValidatedLibrary})

	pending, err := svc.ListPending(context.Background(), approverClaims(models.RoleSecretariat))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, models.StatusSubmitted, pending[0].Status)

	pending, err = svc.ListPending(context.Background(), approverClaims(models.RoleLibrarian))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, models.StatusValidatedLibrary, pending[0].Status)

	_, err = svc.ListPending(context.Background(), &models.JWTClaims{UserID: "s", Role: models.RoleStudent})
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestStats(t *testing.T) {
	store := newRequestStoreStub()
	svc := NewValidationService(store, store, &auditLogStub{}, newSchedulerStub(), nil, nil, nil)

	submittedRequest(store)
	store.add(&models.Request{StudentID: "student-2", Status: models.StatusRejected})

	counts, err := svc.Stats(context.Background(), approverClaims(models.RoleDean))
	require.NoError(t, err)
	require.Equal(t, 1, counts[models.StatusSubmitted])
	require.Equal(t, 1, counts[models.StatusRejected])

	_, err = svc.Stats(context.Background(), studentClaims("student-1"))
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestHistoryForOwnership(t *testing.T) {
	store := newRequestStoreStub()
	svc := NewValidationService(store, store, &auditLogStub{}, newSchedulerStub(), nil, nil, nil)

	request := submittedRequest(store)
	_, err := svc.Decide(context.Background(), dto.DecisionPayload{
		RequestID: request.ID,
		Action:    models.ActionApprove,
	}, approverClaims(models.RoleSecretariat))
	require.NoError(t, err)

	// Owner sees the trail.
	records, err := svc.HistoryFor(context.Background(), request.ID, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	require.NoError(t, err)
	require.Len(t, records, 1)

	// Another student does not.
	_, err = svc.HistoryFor(context.Background(), request.ID, &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent})
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// Any chain role does.
	records, err = svc.HistoryFor(context.Background(), request.ID, approverClaims(models.RoleDean))
	require.NoError(t, err)
	require.Len(t, records, 1)
}
