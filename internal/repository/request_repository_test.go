package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/acadflow/docflow-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func requestRows(id string, status models.RequestStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "document_kinds", "motif", "status", "created_at", "updated_at"}).
		AddRow(id, "student-1", `{releve_notes_l1}`, "visa", status, time.Now(), time.Now())
}

func TestRequestRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	request := &models.Request{
		StudentID:     "student-1",
		DocumentKinds: pq.StringArray{"releve_notes_l1"},
		Motif:         "visa",
	}
	require.NoError(t, repo.Create(context.Background(), request))
	require.NotEmpty(t, request.ID)
	require.Equal(t, models.StatusDraft, request.Status)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, document_kinds")).
		WithArgs(request.ID).
		WillReturnRows(requestRows(request.ID, models.StatusDraft))

	found, err := repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, request.ID, found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, document_kinds")).
		WithArgs("student-1", string(models.StatusSubmitted)).
		WillReturnRows(requestRows("req-1", models.StatusSubmitted))

	list, err := repo.List(context.Background(), models.RequestFilter{
		StudentID: "student-1",
		Status:    models.StatusSubmitted,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryUpdateDraftConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET document_kinds")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateDraft(context.Background(), "req-1", []string{"autre"}, "m")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryApplyTransition(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO validations")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO generated_documents")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	record, err := repo.ApplyTransition(context.Background(), TransitionParams{
		RequestID:  "req-1",
		FromStatus: models.StatusValidatedAccounts,
		ToStatus:   models.StatusValidatedDean,
		Record:     models.ValidationRecord{Role: models.RoleDean, Action: models.ActionApprove},
		Artifacts:  []models.DocumentKind{models.KindFicheSynthese},
	})
	require.NoError(t, err)
	require.NotEmpty(t, record.ID)
	require.Equal(t, "req-1", record.RequestID)
	require.False(t, record.Timestamp.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryApplyTransitionLostRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)

	// The CAS update touches zero rows: nothing else runs and the tx rolls back.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.ApplyTransition(context.Background(), TransitionParams{
		RequestID:  "req-1",
		FromStatus: models.StatusSubmitted,
		ToStatus:   models.StatusValidatedSecretary,
		Record:     models.ValidationRecord{Role: models.RoleSecretariat, Action: models.ActionApprove},
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("submitted", 3).
		AddRow("completed", 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) FROM requests")).
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, counts[models.StatusSubmitted])
	require.Equal(t, 2, counts[models.StatusCompleted])
	require.NoError(t, mock.ExpectationsWereMet())
}
