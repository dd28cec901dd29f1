package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/acadflow/docflow-api/internal/models"
)

func TestValidationRepositoryHistoryFor(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewValidationRepository(db)
	base := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"id", "request_id", "role", "action", "comment", "created_at"}).
		AddRow("val-1", "req-1", string(models.RoleStudent), string(models.ActionApprove), nil, base).
		AddRow("val-2", "req-1", string(models.RoleSecretariat), string(models.ActionApprove), "dossier complet", base.Add(time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta("FROM validations WHERE request_id = $1 ORDER BY created_at ASC, id ASC")).
		WithArgs("req-1").
		WillReturnRows(rows)

	history, err := repo.HistoryFor(context.Background(), "req-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, models.RoleStudent, history[0].Role)
	require.Nil(t, history[0].Comment)
	require.Equal(t, models.ActionApprove, history[1].Action)
	require.Equal(t, "dossier complet", *history[1].Comment)
	require.NoError(t, mock.ExpectationsWereMet())
}
