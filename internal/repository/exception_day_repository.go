package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-leave-api/internal/models"
)

// ExceptionDayRepository manages institution-wide blocked dates.
type ExceptionDayRepository struct {
	db *sqlx.DB
}

// NewExceptionDayRepository constructs the repository.
func NewExceptionDayRepository(db *sqlx.DB) *ExceptionDayRepository {
	return &ExceptionDayRepository{db: db}
}

// Create inserts a blocked date. The date column is unique.
func (r *ExceptionDayRepository) Create(ctx context.Context, day *models.ExceptionDay) error {
	if day.ID == "" {
		day.ID = uuid.NewString()
	}
	if day.CreatedAt.IsZero() {
		day.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO exception_days (id, date, reason, description, created_at)
VALUES (:id, :date, :reason, :description, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, day); err != nil {
		return fmt.Errorf("create exception day: %w", err)
	}
	return nil
}

// List returns blocked dates, optionally constrained to a range.
func (r *ExceptionDayRepository) List(ctx context.Context, from, to *time.Time) ([]models.ExceptionDay, error) {
	query := `SELECT id, date, reason, description, created_at FROM exception_days`
	args := make([]interface{}, 0, 2)
	if from != nil && to != nil {
		query += ` WHERE date BETWEEN $1 AND $2`
		args = append(args, *from, *to)
	}
	query += ` ORDER BY date`

	var days []models.ExceptionDay
	if err := r.db.SelectContext(ctx, &days, query, args...); err != nil {
		return nil, fmt.Errorf("list exception days: %w", err)
	}
	return days, nil
}

// Delete removes a blocked date by identifier.
func (r *ExceptionDayRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM exception_days WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete exception day: %w", err)
	}
	return nil
}
