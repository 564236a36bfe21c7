package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-leave-api/internal/models"
)

// SemesterRepository reads the batch/semester date-range oracle.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository constructs the repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

// FindDateRange returns the semester row for a batch + semester number.
func (r *SemesterRepository) FindDateRange(ctx context.Context, batch string, semester int) (*models.Semester, error) {
	const query = `SELECT id, batch, semester, start_date, end_date, created_at, updated_at
FROM semesters WHERE batch = $1 AND semester = $2`
	var row models.Semester
	if err := r.db.GetContext(ctx, &row, query, batch, semester); err != nil {
		return nil, err
	}
	return &row, nil
}
