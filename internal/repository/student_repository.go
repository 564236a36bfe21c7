package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-leave-api/internal/models"
)

// StudentRepository handles persistence for students and staff.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, user_id, full_name, register_number, tutor_id, batch, semester, leave_taken, active, created_at, updated_at`

// FindByID loads a student by identifier.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByUserID resolves the student profile linked to a user account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, `SELECT `+studentColumns+` FROM students WHERE user_id = $1`, userID); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindStaffByUserID resolves the staff profile linked to a user account.
func (r *StudentRepository) FindStaffByUserID(ctx context.Context, userID string) (*models.Staff, error) {
	var staff models.Staff
	const query = `SELECT id, user_id, full_name, is_admin, active, created_at, updated_at FROM staff WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &staff, query, userID); err != nil {
		return nil, err
	}
	return &staff, nil
}

// GetBalance returns the stored leave-balance read model for a student.
func (r *StudentRepository) GetBalance(ctx context.Context, studentID string) (*models.BalanceSummary, error) {
	var summary models.BalanceSummary
	const query = `SELECT id AS student_id, register_number, leave_taken FROM students WHERE id = $1`
	if err := r.db.GetContext(ctx, &summary, query, studentID); err != nil {
		return nil, err
	}
	return &summary, nil
}

// RecomputeLeaveTaken derives the balance from the leave request history:
// the sum of total_days over requests currently in a balance-charged state.
// Approved rows are charged; a pending cancellation of an approved request
// stays charged for its (already partial-reduced) remainder.
func (r *StudentRepository) RecomputeLeaveTaken(ctx context.Context, studentID string) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(total_days), 0)
FROM leave_requests
WHERE student_id = $1
  AND (status = $2 OR (status = $3 AND original_status = $2))`
	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, query, studentID,
		models.StatusApproved, models.StatusCancellationPending)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
