package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-leave-api/internal/models"
)

func TestStudentRepositoryGetBalance(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id AS student_id, register_number, leave_taken FROM students")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "register_number", "leave_taken"}).
			AddRow("student-1", "21CS042", "4.5"))

	summary, err := repo.GetBalance(context.Background(), "student-1")
	require.NoError(t, err)
	require.Equal(t, "21CS042", summary.RegisterNumber)
	require.Equal(t, "4.5", summary.LeaveTaken.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryRecomputeLeaveTaken(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(total_days), 0)")).
		WithArgs("student-1", string(models.StatusApproved), string(models.StatusCancellationPending)).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("6.5"))

	total, err := repo.RecomputeLeaveTaken(context.Background(), "student-1")
	require.NoError(t, err)
	require.Equal(t, "6.5", total.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindStaffByUserID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, full_name, is_admin, active")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "full_name", "is_admin", "active", "created_at", "updated_at"}).
			AddRow("staff-1", "user-1", "S. Devi", false, true, time.Now(), time.Now()))

	staff, err := repo.FindStaffByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "staff-1", staff.ID)
	require.False(t, staff.IsAdmin)
	require.NoError(t, mock.ExpectationsWereMet())
}
