package dto

import "github.com/acadflow/docflow-api/internal/models"

// DocumentDownloadResponse enriches artifact metadata with a signed URL.
type DocumentDownloadResponse struct {
	models.GeneratedDocument
	DownloadURL string `json:"downloadUrl"`
}
