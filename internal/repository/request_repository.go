package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/acadflow/docflow-api/internal/models"
)

// RequestRepository persists document requests and owns the transition write path.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new request row in draft state.
func (r *RequestRepository) Create(ctx context.Context, request *models.Request) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.StatusDraft
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now
	const query = `INSERT INTO requests
	(id, student_id, document_kinds, motif, status, created_at, updated_at)
	VALUES (:id, :student_id, :document_kinds, :motif, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	const query = `SELECT id, student_id, document_kinds, motif, status, created_at, updated_at
	FROM requests WHERE id = $1`
	var request models.Request
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns requests matching the filter (sorted latest first).
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT id, student_id, document_kinds, motif, status, created_at, updated_at FROM requests`)
	args := make([]interface{}, 0, 2)
	conditions := make([]string, 0, 2)

	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

// UpdateDraft edits kinds and motif while the request is still a draft.
// Returns sql.ErrNoRows when the row is missing or no longer a draft.
func (r *RequestRepository) UpdateDraft(ctx context.Context, id string, kinds []string, motif string) error {
	const query = `UPDATE requests SET document_kinds = $2, motif = $3, updated_at = $4
	WHERE id = $1 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, id, pq.StringArray(kinds), motif, time.Now().UTC(), models.StatusDraft)
	if err != nil {
		return fmt.Errorf("update draft request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check draft update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteDraft removes a draft request together with its evidence metadata.
// History rows are never deleted, but drafts have none.
func (r *RequestRepository) DeleteDraft(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete draft: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM evidences WHERE request_id = $1`, id); err != nil {
		return fmt.Errorf("delete draft evidence: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM requests WHERE id = $1 AND status = $2`, id, models.StatusDraft)
	if err != nil {
		return fmt.Errorf("delete draft request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check draft delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// TransitionParams groups everything one lifecycle transition writes.
type TransitionParams struct {
	RequestID  string
	FromStatus models.RequestStatus
	ToStatus   models.RequestStatus
	Record     models.ValidationRecord
	Artifacts  []models.DocumentKind
}

// ApplyTransition performs one atomic lifecycle transition: a compare-and-swap
// on (id, expected status), the history append, and the artifact registry rows
// all commit or roll back together. A lost race surfaces as sql.ErrNoRows from
// the zero-row status update; nothing else is applied in that case.
func (r *RequestRepository) ApplyTransition(ctx context.Context, params TransitionParams) (*models.ValidationRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE requests SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		params.RequestID, params.FromStatus, params.ToStatus, now,
	)
	if err != nil {
		return nil, fmt.Errorf("transition status update: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check transition rows: %w", err)
	}
	if rows == 0 {
		return nil, sql.ErrNoRows
	}

	record := params.Record
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.RequestID = params.RequestID
	record.Timestamp = now
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO validations (id, request_id, role, action, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.RequestID, record.Role, record.Action, record.Comment, record.Timestamp,
	); err != nil {
		return nil, fmt.Errorf("append validation record: %w", err)
	}

	for _, kind := range params.Artifacts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO generated_documents (id, request_id, kind, render_status, generated_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (request_id, kind) DO NOTHING`,
			uuid.NewString(), params.RequestID, kind, models.RenderPending, now,
		); err != nil {
			return nil, fmt.Errorf("register artifact %s: %w", kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return &record, nil
}

// CountByStatus returns how many requests currently sit in each status.
func (r *RequestRepository) CountByStatus(ctx context.Context) (map[models.RequestStatus]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT status, COUNT(*) FROM requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count requests by status: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[models.RequestStatus]int)
	for rows.Next() {
		var status models.RequestStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
