package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-leave-api/internal/models"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
)

func TestODRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewODRepository(db)
	mock.ExpectBegin()
	expectLockStudent(mock, "student-1")
	emptyExceptionDays(mock)
	emptyOverlaps(mock)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO od_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	request := &models.ODRequest{
		StudentID:    "student-1",
		TutorID:      "tutor-1",
		Purpose:      "symposium",
		Destination:  "city campus",
		StartDate:    date("2025-08-08"),
		EndDate:      date("2025-08-11"),
		DurationType: models.DurationFullDay,
		TotalDays:    decimal.RequireFromString("3"),
	}
	require.NoError(t, repo.Create(context.Background(), request))
	require.NotEmpty(t, request.ID)
	require.Equal(t, models.StatusPending, request.Status)
	require.Equal(t, models.CertPendingUpload, request.CertificateStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestODRepositoryApplyStatusChangeArmsCertificate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewODRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE od_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deadline := date("2025-08-14")
	err := repo.ApplyStatusChange(context.Background(), ODStatusChange{
		ID:                    "od-1",
		ExpectedStatus:        models.StatusForwarded,
		NewStatus:             models.StatusApproved,
		SetCertificatePending: true,
		UploadDeadline:        &deadline,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestODRepositoryApplyStatusChangeStale(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewODRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE od_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ApplyStatusChange(context.Background(), ODStatusChange{
		ID:             "od-1",
		ExpectedStatus: models.StatusPending,
		NewStatus:      models.StatusApproved,
	})
	require.ErrorIs(t, err, appErrors.ErrStaleStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestODRepositoryAttachCertificate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewODRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE od_requests")).
		WithArgs("od-1", "od/od-1/cert.pdf", string(models.CertPendingVerification), string(models.CertPendingUpload)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AttachCertificate(context.Background(), "od-1", "od/od-1/cert.pdf"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE od_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.AttachCertificate(context.Background(), "od-1", "od/od-1/cert.pdf")
	require.ErrorIs(t, err, appErrors.ErrStaleStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestODRepositoryAutoReject(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewODRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE od_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.AutoReject(context.Background(), "od-1", "Certificate not submitted within the allowed window")
	require.NoError(t, err)
	require.True(t, ok)

	// A row a concurrent writer already moved is skipped, not an error.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE od_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.AutoReject(context.Background(), "od-1", "Certificate not submitted within the allowed window")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestODRepositoryStampNotification(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewODRepository(db)
	today := date("2025-08-13")
	mock.ExpectExec(regexp.QuoteMeta("UPDATE od_requests")).
		WithArgs("od-1", today, string(models.CertPendingUpload)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.StampNotification(context.Background(), "od-1", today)
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE od_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.StampNotification(context.Background(), "od-1", today)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestODRepositoryMarkOverdue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewODRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE od_requests")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	count, err := repo.MarkOverdue(context.Background(), date("2025-08-15"))
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestODRepositoryListAwaitingCertificate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewODRepository(db)
	columns := []string{"id", "student_id", "tutor_id", "purpose", "destination", "description",
		"start_date", "end_date", "duration_type", "total_days", "status", "cancel_reason",
		"original_status", "certificate_url", "certificate_status", "certificate_reason",
		"upload_deadline", "last_notification_date", "created_at", "updated_at"}
	deadline := date("2025-08-14")
	mock.ExpectQuery("SELECT id, student_id, tutor_id").
		WithArgs(string(models.StatusApproved), string(models.CertPendingUpload), date("2025-08-15")).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("od-1", "student-1", "tutor-1", "symposium", "city campus", "",
				date("2025-08-08"), date("2025-08-11"), "FULL_DAY", "3", "APPROVED", nil,
				nil, nil, "PENDING_UPLOAD", nil, deadline, nil, time.Now(), time.Now()))

	list, err := repo.ListAwaitingCertificate(context.Background(), date("2025-08-15"))
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "od-1", list[0].ID)
	require.NotNil(t, list[0].UploadDeadline)
	require.NoError(t, mock.ExpectationsWereMet())
}
