package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acadflow/docflow-api/internal/models"
)

// ErrRequestClosed signals an attach attempt against a terminal request.
var ErrRequestClosed = errors.New("request is in a terminal state")

// EvidenceRepository persists evidence metadata.
type EvidenceRepository struct {
	db *sqlx.DB
}

// NewEvidenceRepository constructs the repository.
func NewEvidenceRepository(db *sqlx.DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

// CreateInOpenRequest inserts evidence metadata after re-checking the owning
// request's status under a row share lock. The lock makes the insert serialize
// with any in-flight transition: evidence can never land on a request that
// just became terminal.
func (r *EvidenceRepository) CreateInOpenRequest(ctx context.Context, evidence *models.Evidence) error {
	if evidence.ID == "" {
		evidence.ID = uuid.NewString()
	}
	if evidence.UploadedAt.IsZero() {
		evidence.UploadedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin evidence attach: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var status models.RequestStatus
	if err := tx.GetContext(ctx, &status,
		`SELECT status FROM requests WHERE id = $1 FOR SHARE`, evidence.RequestID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("lock request for evidence: %w", err)
	}
	if status.IsTerminal() {
		return ErrRequestClosed
	}

	const query = `INSERT INTO evidences
	(id, request_id, kind, description, file_path, filename, mime_type, size_bytes, uploaded_by, uploaded_at)
	VALUES (:id, :request_id, :kind, :description, :file_path, :filename, :mime_type, :size_bytes, :uploaded_by, :uploaded_at)`
	if _, err := tx.NamedExecContext(ctx, query, evidence); err != nil {
		return fmt.Errorf("create evidence: %w", err)
	}
	return tx.Commit()
}

// GetByID retrieves one evidence row.
func (r *EvidenceRepository) GetByID(ctx context.Context, id string) (*models.Evidence, error) {
	const query = `SELECT id, request_id, kind, description, file_path, filename, mime_type, size_bytes, uploaded_by, uploaded_at
	FROM evidences WHERE id = $1`
	var evidence models.Evidence
	if err := r.db.GetContext(ctx, &evidence, query, id); err != nil {
		return nil, err
	}
	return &evidence, nil
}

// ListForRequest returns evidence for a request, oldest upload first.
func (r *EvidenceRepository) ListForRequest(ctx context.Context, requestID string) ([]models.Evidence, error) {
	const query = `SELECT id, request_id, kind, description, file_path, filename, mime_type, size_bytes, uploaded_by, uploaded_at
	FROM evidences WHERE request_id = $1 ORDER BY uploaded_at ASC`
	var records []models.Evidence
	if err := r.db.SelectContext(ctx, &records, query, requestID); err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	return records, nil
}
