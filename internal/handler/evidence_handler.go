package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/acadflow/docflow-api/internal/dto"
	"github.com/acadflow/docflow-api/internal/service"
	appErrors "github.com/acadflow/docflow-api/pkg/errors"
	"github.com/acadflow/docflow-api/pkg/response"
)

// EvidenceHandler exposes supporting document endpoints.
type EvidenceHandler struct {
	service *service.EvidenceService
}

// NewEvidenceHandler creates a new handler.
func NewEvidenceHandler(svc *service.EvidenceService) *EvidenceHandler {
	return &EvidenceHandler{service: svc}
}

// Attach godoc
// @Summary Attach evidence
// @Description Upload a supporting document for an open request
// @Tags Evidence
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param kind formData string true "Evidence kind"
// @Param description formData string false "Description"
// @Param file formData file true "Evidence file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/evidences [post]
func (h *EvidenceHandler) Attach(c *gin.Context) {
	var meta dto.AttachEvidencePayload
	if err := c.ShouldBind(&meta); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid evidence metadata"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "evidence file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read uploaded file"))
		return
	}
	defer file.Close()

	upload := service.EvidenceUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Content:  file,
	}

	evidence, err := h.service.Attach(c.Request.Context(), c.Param("id"), meta, upload, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, evidence)
}

// List godoc
// @Summary List evidence
// @Description List the supporting documents attached to a request
// @Tags Evidence
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /requests/{id}/evidences [get]
func (h *EvidenceHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Download godoc
// @Summary Download evidence
// @Description Stream an evidence file using a signed token
// @Tags Evidence
// @Produce octet-stream
// @Param id path string true "Evidence ID"
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /evidences/{id}/download [get]
func (h *EvidenceHandler) Download(c *gin.Context) {
	download, err := h.service.ResolveDownload(c.Request.Context(), c.Param("id"), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	c.Header("Content-Disposition", `attachment; filename="`+download.Filename+`"`)
	c.DataFromReader(http.StatusOK, download.SizeBytes, download.MimeType, download.File, nil)
}
