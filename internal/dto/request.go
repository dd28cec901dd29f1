package dto

import "github.com/acadflow/docflow-api/internal/models"

// CreateRequestPayload is sent by a student opening a new document request.
type CreateRequestPayload struct {
	DocumentKinds []models.DocumentKind `json:"documentKinds"`
	Motif         string                `json:"motif"`
}

// UpdateRequestPayload edits a draft before submission.
type UpdateRequestPayload struct {
	DocumentKinds []models.DocumentKind `json:"documentKinds"`
	Motif         string                `json:"motif"`
}

// RequestDetail joins the request with its evidence and generated artifacts.
type RequestDetail struct {
	models.Request
	Evidence  []models.Evidence          `json:"evidence"`
	Documents []models.GeneratedDocument `json:"documents"`
	History   []models.ValidationRecord  `json:"history"`
}

// RequestQuery mirrors supported listing filters.
type RequestQuery struct {
	Status models.RequestStatus
	Limit  int
	Offset int
}
