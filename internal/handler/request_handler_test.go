package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acadflow/docflow-api/internal/dto"
	"github.com/acadflow/docflow-api/internal/middleware"
	"github.com/acadflow/docflow-api/internal/models"
	appErrors "github.com/acadflow/docflow-api/pkg/errors"
)

type requestServiceMock struct {
	createResp   *models.Request
	createErr    error
	submitResp   *models.Request
	submitErr    error
	listResp     []models.Request
	listErr      error
	deleteErr    error
	lastQuery    dto.RequestQuery
	lastID       string
	createCalled bool
	submitCalled bool
	listCalled   bool
}

func (m *requestServiceMock) Create(ctx context.Context, req dto.CreateRequestPayload, actor *models.JWTClaims) (*models.Request, error) {
	m.createCalled = true
	return m.createResp, m.createErr
}

func (m *requestServiceMock) Update(ctx context.Context, id string, req dto.UpdateRequestPayload, actor *models.JWTClaims) (*models.Request, error) {
	m.lastID = id
	return m.createResp, m.createErr
}

func (m *requestServiceMock) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	m.lastID = id
	return m.deleteErr
}

func (m *requestServiceMock) Submit(ctx context.Context, id string, actor *models.JWTClaims) (*models.Request, error) {
	m.submitCalled = true
	m.lastID = id
	return m.submitResp, m.submitErr
}

func (m *requestServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.RequestDetail, error) {
	m.lastID = id
	return &dto.RequestDetail{}, nil
}

func (m *requestServiceMock) ListForStudent(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.Request, error) {
	m.listCalled = true
	m.lastQuery = query
	return m.listResp, m.listErr
}

func studentContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req, _ = http.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, target, nil)
	}
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	return c, w
}

func TestRequestHandlerCreate(t *testing.T) {
	mockSvc := &requestServiceMock{
		createResp: &models.Request{ID: "req-1", Status: models.StatusDraft},
	}
	handler := NewRequestHandler(mockSvc)

	payload, _ := json.Marshal(dto.CreateRequestPayload{
		DocumentKinds: []models.DocumentKind{models.KindReleveNotesL1},
		Motif:         "visa application",
	})
	c, w := studentContext(t, http.MethodPost, "/requests", payload)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, mockSvc.createCalled)
}

func TestRequestHandlerCreateInvalidBody(t *testing.T) {
	handler := NewRequestHandler(&requestServiceMock{})

	c, w := studentContext(t, http.MethodPost, "/requests", []byte(`{"documentKinds":`))

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerSubmitConflict(t *testing.T) {
	mockSvc := &requestServiceMock{
		submitErr: appErrors.Clone(appErrors.ErrInvalidState, "request already submitted"),
	}
	handler := NewRequestHandler(mockSvc)

	c, w := studentContext(t, http.MethodPost, "/requests/req-1/submit", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Submit(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "req-1", mockSvc.lastID)
}

func TestRequestHandlerListQuery(t *testing.T) {
	mockSvc := &requestServiceMock{
		listResp: []models.Request{{ID: "req-1"}},
	}
	handler := NewRequestHandler(mockSvc)

	c, w := studentContext(t, http.MethodGet, "/requests?status=submitted&limit=10&offset=20", nil)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.listCalled)
	assert.Equal(t, models.StatusSubmitted, mockSvc.lastQuery.Status)
	assert.Equal(t, 10, mockSvc.lastQuery.Limit)
	assert.Equal(t, 20, mockSvc.lastQuery.Offset)
}

func TestRequestHandlerDelete(t *testing.T) {
	mockSvc := &requestServiceMock{}
	handler := NewRequestHandler(mockSvc)

	c, w := studentContext(t, http.MethodDelete, "/requests/req-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "req-1", mockSvc.lastID)
}
