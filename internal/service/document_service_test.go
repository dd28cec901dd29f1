package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acadflow/docflow-api/internal/models"
	appErrors "github.com/acadflow/docflow-api/pkg/errors"
	"github.com/acadflow/docflow-api/pkg/export"
	"github.com/acadflow/docflow-api/pkg/jobs"
	"github.com/acadflow/docflow-api/pkg/storage"
)

type documentStoreStub struct {
	artifacts map[string]*models.GeneratedDocument
	seq       int
}

func newDocumentStoreStub() *documentStoreStub {
	return &documentStoreStub{artifacts: make(map[string]*models.GeneratedDocument)}
}

func (s *documentStoreStub) key(requestID string, kind models.DocumentKind) string {
	return requestID + "/" + string(kind)
}

func (s *documentStoreStub) Ensure(ctx context.Context, requestID string, kind models.DocumentKind) (*models.GeneratedDocument, error) {
	if artifact, ok := s.artifacts[s.key(requestID, kind)]; ok {
		copy := *artifact
		return &copy, nil
	}
	s.seq++
	artifact := &models.GeneratedDocument{
		ID:          fmt.Sprintf("doc-%d", s.seq),
		RequestID:   requestID,
		Kind:        kind,
		Render:      models.RenderPending,
		GeneratedAt: time.Now().UTC(),
	}
	s.artifacts[s.key(requestID, kind)] = artifact
	copy := *artifact
	return &copy, nil
}

func (s *documentStoreStub) GetByID(ctx context.Context, id string) (*models.GeneratedDocument, error) {
	for _, artifact := range s.artifacts {
		if artifact.ID == id {
			copy := *artifact
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *documentStoreStub) GetByRequestAndKind(ctx context.Context, requestID string, kind models.DocumentKind) (*models.GeneratedDocument, error) {
	if artifact, ok := s.artifacts[s.key(requestID, kind)]; ok {
		copy := *artifact
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *documentStoreStub) ListForRequest(ctx context.Context, requestID string) ([]models.GeneratedDocument, error) {
	result := make([]models.GeneratedDocument, 0)
	for _, artifact := range s.artifacts {
		if artifact.RequestID == requestID {
			result = append(result, *artifact)
		}
	}
	return result, nil
}

func (s *documentStoreStub) ListPendingRender(ctx context.Context, limit int) ([]models.GeneratedDocument, error) {
	result := make([]models.GeneratedDocument, 0)
	for _, artifact := range s.artifacts {
		if artifact.Render == models.RenderPending {
			result = append(result, *artifact)
		}
	}
	return result, nil
}

func (s *documentStoreStub) UpdateRenderResult(ctx context.Context, id string, status models.RenderStatus, filePath *string) error {
	for _, artifact := range s.artifacts {
		if artifact.ID == id {
			artifact.Render = status
			artifact.FilePath = filePath
			return nil
		}
	}
	return sql.ErrNoRows
}

type userResolverStub struct {
	users map[string]*models.User
}

func (s *userResolverStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

type queueStub struct {
	jobs []jobs.Job
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type documentFixture struct {
	svc       *DocumentService
	requests  *requestStoreStub
	artifacts *documentStoreStub
	queue     *queueStub
	files     *storage.LocalStorage
}

func newDocumentFixture(t *testing.T) *documentFixture {
	t.Helper()
	requests := newRequestStoreStub()
	artifacts := newDocumentStoreStub()
	queue := &queueStub{}
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	users := &userResolverStub{users: map[string]*models.User{
		"student-1": {ID: "student-1", Email: "student@univ.example", FullName: "Awa Diallo", Role: models.RoleStudent},
	}}
	svc := NewDocumentService(artifacts, requests, requests, users,
		export.NewPDFRenderer("Test University"), files,
		storage.NewSignedURLSigner("doc-secret", 0), queue, nil, nil,
		DocumentServiceConfig{})
	return &documentFixture{svc: svc, requests: requests, artifacts: artifacts, queue: queue, files: files}
}

func deanValidatedRequest(store *requestStoreStub) *models.Request {
	return store.add(&models.Request{
		StudentID:     "student-1",
		DocumentKinds: []string{"releve_notes_l1"},
		Motif:         "visa application",
		Status:        models.StatusValidatedDean,
	})
}

func TestDocumentScheduleRenderEnqueues(t *testing.T) {
	f := newDocumentFixture(t)
	f.svc.ScheduleRender("req-1", []models.DocumentKind{models.KindFicheSynthese, models.KindReleveNotesL1})
	require.Len(t, f.queue.jobs, 2)
	require.Equal(t, "render_document", f.queue.jobs[0].Type)
}

func TestDocumentRenderJobProducesFile(t *testing.T) {
	f := newDocumentFixture(t)
	request := deanValidatedRequest(f.requests)
	artifact, err := f.artifacts.Ensure(context.Background(), request.ID, models.KindFicheSynthese)
	require.NoError(t, err)

	err = f.svc.HandleRenderJob(context.Background(), jobs.Job{
		ID:      "render-1",
		Type:    "render_document",
		Payload: RenderJobPayload{RequestID: request.ID, Kind: models.KindFicheSynthese},
	})
	require.NoError(t, err)

	rendered, err := f.artifacts.GetByID(context.Background(), artifact.ID)
	require.NoError(t, err)
	require.Equal(t, models.RenderReady, rendered.Render)
	require.NotNil(t, rendered.FilePath)

	file, err := f.files.Open(*rendered.FilePath)
	require.NoError(t, err)
	defer file.Close()
	info, err := file.Stat()
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestDocumentRenderJobIsIdempotent(t *testing.T) {
	f := newDocumentFixture(t)
	request := deanValidatedRequest(f.requests)
	artifact, err := f.artifacts.Ensure(context.Background(), request.ID, models.KindFicheSynthese)
	require.NoError(t, err)

	job := jobs.Job{Payload: RenderJobPayload{RequestID: request.ID, Kind: models.KindFicheSynthese}}
	require.NoError(t, f.svc.HandleRenderJob(context.Background(), job))

	first, err := f.artifacts.GetByID(context.Background(), artifact.ID)
	require.NoError(t, err)

	// A retried job leaves the already rendered artifact untouched.
	require.NoError(t, f.svc.HandleRenderJob(context.Background(), job))
	second, err := f.artifacts.GetByID(context.Background(), artifact.ID)
	require.NoError(t, err)
	require.Equal(t, *first.FilePath, *second.FilePath)
}

func TestSummarySheetGatedToDeanValidation(t *testing.T) {
	f := newDocumentFixture(t)
	request := submittedRequest(f.requests)

	_, err := f.svc.SummarySheet(context.Background(), request.ID, studentClaims("student-1"))
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestSummarySheetReEnsuresMissingArtifact(t *testing.T) {
	f := newDocumentFixture(t)
	request := deanValidatedRequest(f.requests)

	res, err := f.svc.SummarySheet(context.Background(), request.ID, studentClaims("student-1"))
	require.NoError(t, err)
	require.Equal(t, models.KindFicheSynthese, res.Kind)
	require.Equal(t, models.RenderPending, res.Render)
	require.Empty(t, res.DownloadURL)
	require.Len(t, f.queue.jobs, 1)

	// Asking twice never duplicates the registry row.
	_, err = f.svc.SummarySheet(context.Background(), request.ID, studentClaims("student-1"))
	require.NoError(t, err)
	require.Len(t, f.artifacts.artifacts, 1)
}

func TestAcademicDocumentGatedToCompletion(t *testing.T) {
	f := newDocumentFixture(t)
	request := deanValidatedRequest(f.requests)
	artifact, err := f.artifacts.Ensure(context.Background(), request.ID, models.KindReleveNotesL1)
	require.NoError(t, err)

	_, err = f.svc.AcademicDocument(context.Background(), artifact.ID, studentClaims("student-1"))
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	f.requests.requests[request.ID].Status = models.StatusCompleted
	res, err := f.svc.AcademicDocument(context.Background(), artifact.ID, studentClaims("student-1"))
	require.NoError(t, err)
	require.Equal(t, models.KindReleveNotesL1, res.Kind)
}

func TestDocumentDownloadRoundTrip(t *testing.T) {
	f := newDocumentFixture(t)
	request := deanValidatedRequest(f.requests)
	artifact, err := f.artifacts.Ensure(context.Background(), request.ID, models.KindFicheSynthese)
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleRenderJob(context.Background(), jobs.Job{
		Payload: RenderJobPayload{RequestID: request.ID, Kind: models.KindFicheSynthese},
	}))

	res, err := f.svc.SummarySheet(context.Background(), request.ID, studentClaims("student-1"))
	require.NoError(t, err)
	require.NotEmpty(t, res.DownloadURL)

	parts := strings.Split(res.DownloadURL, "token=")
	require.Len(t, parts, 2)
	download, err := f.svc.ResolveDownload(context.Background(), artifact.ID, parts[1])
	require.NoError(t, err)
	defer download.File.Close()
	require.Equal(t, "application/pdf", download.MimeType)
	require.Greater(t, download.SizeBytes, int64(0))

	_, err = f.svc.ResolveDownload(context.Background(), artifact.ID, "tampered")
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRequeuePending(t *testing.T) {
	f := newDocumentFixture(t)
	request := deanValidatedRequest(f.requests)
	_, err := f.artifacts.Ensure(context.Background(), request.ID, models.KindFicheSynthese)
	require.NoError(t, err)

	require.NoError(t, f.svc.RequeuePending(context.Background()))
	require.Len(t, f.queue.jobs, 1)
}

func TestDocumentsHiddenFromOtherStudents(t *testing.T) {
	f := newDocumentFixture(t)
	request := deanValidatedRequest(f.requests)

	_, err := f.svc.List(context.Background(), request.ID, studentClaims("student-2"))
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = f.svc.List(context.Background(), request.ID, approverClaims(models.RoleDean))
	require.NoError(t, err)
}
