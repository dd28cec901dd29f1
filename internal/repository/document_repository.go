package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acadflow/docflow-api/internal/models"
)

// DocumentRepository persists the generated artifact registry.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Ensure registers an artifact for (request, kind) if it does not exist yet and
// returns the stored row either way. Safe to call repeatedly.
func (r *DocumentRepository) Ensure(ctx context.Context, requestID string, kind models.DocumentKind) (*models.GeneratedDocument, error) {
	const insert = `INSERT INTO generated_documents (id, request_id, kind, render_status, generated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (request_id, kind) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, uuid.NewString(), requestID, kind, models.RenderPending, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("ensure artifact: %w", err)
	}
	return r.GetByRequestAndKind(ctx, requestID, kind)
}

// GetByID retrieves one artifact row.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.GeneratedDocument, error) {
	const query = `SELECT id, request_id, kind, file_path, render_status, generated_at
	FROM generated_documents WHERE id = $1`
	var doc models.GeneratedDocument
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetByRequestAndKind retrieves the artifact for one request and kind.
func (r *DocumentRepository) GetByRequestAndKind(ctx context.Context, requestID string, kind models.DocumentKind) (*models.GeneratedDocument, error) {
	const query = `SELECT id, request_id, kind, file_path, render_status, generated_at
	FROM generated_documents WHERE request_id = $1 AND kind = $2`
	var doc models.GeneratedDocument
	if err := r.db.GetContext(ctx, &doc, query, requestID, kind); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListForRequest returns every artifact registered for a request.
func (r *DocumentRepository) ListForRequest(ctx context.Context, requestID string) ([]models.GeneratedDocument, error) {
	const query = `SELECT id, request_id, kind, file_path, render_status, generated_at
	FROM generated_documents WHERE request_id = $1 ORDER BY generated_at ASC, kind ASC`
	var docs []models.GeneratedDocument
	if err := r.db.SelectContext(ctx, &docs, query, requestID); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return docs, nil
}

// ListPendingRender returns artifacts still waiting for a rendered file.
func (r *DocumentRepository) ListPendingRender(ctx context.Context, limit int) ([]models.GeneratedDocument, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, request_id, kind, file_path, render_status, generated_at
	FROM generated_documents WHERE render_status = $1 ORDER BY generated_at ASC LIMIT $2`
	var docs []models.GeneratedDocument
	if err := r.db.SelectContext(ctx, &docs, query, models.RenderPending, limit); err != nil {
		return nil, fmt.Errorf("list pending artifacts: %w", err)
	}
	return docs, nil
}

// UpdateRenderResult records the outcome of a render job.
func (r *DocumentRepository) UpdateRenderResult(ctx context.Context, id string, status models.RenderStatus, filePath *string) error {
	const query = `UPDATE generated_documents SET render_status = $2, file_path = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, filePath); err != nil {
		return fmt.Errorf("update render result: %w", err)
	}
	return nil
}
