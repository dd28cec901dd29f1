package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/acadflow/docflow-api/internal/models"
)

func paymentReceipt(requestID string) *models.Evidence {
	return &models.Evidence{
		RequestID:  requestID,
		Kind:       models.EvidencePaymentReceipt,
		FilePath:   requestID + "/receipt.pdf",
		Filename:   "receipt.pdf",
		MimeType:   "application/pdf",
		SizeBytes:  1024,
		UploadedBy: "student-1",
	}
}

func TestEvidenceRepositoryCreateInOpenRequest(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEvidenceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM requests WHERE id = $1 FOR SHARE")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(models.StatusSubmitted)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO evidences")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	evidence := paymentReceipt("req-1")
	require.NoError(t, repo.CreateInOpenRequest(context.Background(), evidence))
	require.NotEmpty(t, evidence.ID)
	require.False(t, evidence.UploadedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceRepositoryCreateRejectsClosedRequest(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEvidenceRepository(db)

	// Status re-checked under the lock: terminal requests never gain evidence.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM requests WHERE id = $1 FOR SHARE")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(models.StatusRejected)))
	mock.ExpectRollback()

	err := repo.CreateInOpenRequest(context.Background(), paymentReceipt("req-1"))
	require.ErrorIs(t, err, ErrRequestClosed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceRepositoryCreateUnknownRequest(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEvidenceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM requests WHERE id = $1 FOR SHARE")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.CreateInOpenRequest(context.Background(), paymentReceipt("missing"))
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
