package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/acadflow/docflow-api/internal/models"
)

// ValidationRepository reads the append-only validation history. Writes happen
// exclusively inside RequestRepository.ApplyTransition so a history row can
// never exist without its status change.
type ValidationRepository struct {
	db *sqlx.DB
}

// NewValidationRepository constructs the repository.
func NewValidationRepository(db *sqlx.DB) *ValidationRepository {
	return &ValidationRepository{db: db}
}

// HistoryFor returns every validation record of a request, oldest first. The
// ascending order is authoritative for display and for status replay.
func (r *ValidationRepository) HistoryFor(ctx context.Context, requestID string) ([]models.ValidationRecord, error) {
	const query = `SELECT id, request_id, role, action, comment, created_at
	FROM validations WHERE request_id = $1 ORDER BY created_at ASC, id ASC`
	var records []models.ValidationRecord
	if err := r.db.SelectContext(ctx, &records, query, requestID); err != nil {
		return nil, fmt.Errorf("load validation history: %w", err)
	}
	return records, nil
}
