package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/acadflow/docflow-api/internal/dto"
	"github.com/acadflow/docflow-api/internal/models"
	appErrors "github.com/acadflow/docflow-api/pkg/errors"
	"github.com/acadflow/docflow-api/pkg/response"
)

type validationService interface {
	Decide(ctx context.Context, req dto.DecisionPayload, actor *models.JWTClaims) (*dto.DecisionResponse, error)
	ListPending(ctx context.Context, actor *models.JWTClaims) ([]models.Request, error)
	HistoryFor(ctx context.Context, requestID string, actor *models.JWTClaims) ([]models.ValidationRecord, error)
	Stats(ctx context.Context, actor *models.JWTClaims) (map[models.RequestStatus]int, error)
}

// ValidationHandler exposes the approval chain endpoints.
type ValidationHandler struct {
	service validationService
}

// NewValidationHandler creates a new handler.
func NewValidationHandler(svc validationService) *ValidationHandler {
	return &ValidationHandler{service: svc}
}

// Decide godoc
// @Summary Approve or reject a request
// @Description Record the acting approver's decision on the request at their stage
// @Tags Validations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body dto.DecisionPayload true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/decision [post]
func (h *ValidationHandler) Decide(c *gin.Context) {
	var payload dto.DecisionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}
	payload.RequestID = c.Param("id")

	res, err := h.service.Decide(c.Request.Context(), payload, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Pending godoc
// @Summary Pending queue
// @Description List the requests awaiting the acting approver's decision
// @Tags Validations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /validations/pending [get]
func (h *ValidationHandler) Pending(c *gin.Context) {
	requests, err := h.service.ListPending(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Stats godoc
// @Summary Workflow statistics
// @Description Count of requests at each lifecycle status
// @Tags Validations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /validations/stats [get]
func (h *ValidationHandler) Stats(c *gin.Context) {
	counts, err := h.service.Stats(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, counts, nil)
}

// History godoc
// @Summary Validation history
// @Description Chronological validation records for a request
// @Tags Validations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id}/history [get]
func (h *ValidationHandler) History(c *gin.Context) {
	records, err := h.service.HistoryFor(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}
