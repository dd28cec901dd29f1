package dto

import "github.com/acadflow/docflow-api/internal/models"

// AttachEvidencePayload contains metadata submitted alongside a file upload.
type AttachEvidencePayload struct {
	Kind        models.EvidenceKind `form:"kind" json:"kind"`
	Description string              `form:"description" json:"description"`
}

// EvidenceDownloadResponse enriches metadata with a signed download URL.
type EvidenceDownloadResponse struct {
	models.Evidence
	DownloadURL string `json:"downloadUrl"`
}
