package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-leave-api/internal/dto"
	"github.com/noah-isme/sma-leave-api/internal/models"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
)

// checkAvailability validates a proposed date range against exception days and
// the student's own active requests. It must run inside the same transaction
// as the insert so that two concurrent submissions cannot both pass the
// overlap check against a not-yet-committed sibling.
func checkAvailability(ctx context.Context, tx *sqlx.Tx, studentID string, start, end time.Time) error {
	type blockedDay struct {
		Date   time.Time `db:"date"`
		Reason string    `db:"reason"`
	}
	var blocked []blockedDay
	const exceptionQuery = `SELECT date, reason FROM exception_days WHERE date BETWEEN $1 AND $2 ORDER BY date`
	if err := tx.SelectContext(ctx, &blocked, exceptionQuery, start, end); err != nil {
		return fmt.Errorf("check exception days: %w", err)
	}
	if len(blocked) > 0 {
		dates := make([]string, len(blocked))
		for i, day := range blocked {
			dates[i] = day.Date.Format(dto.DateLayout)
		}
		return appErrors.WithDetails(appErrors.ErrExceptionDayConflict, map[string]interface{}{"dates": dates})
	}

	type activeRange struct {
		ID        string    `db:"id"`
		StartDate time.Time `db:"start_date"`
		EndDate   time.Time `db:"end_date"`
	}
	var overlaps []activeRange
	// A leave and an OD request on the same day conflict, so both tables are
	// consulted. Rejected and cancelled requests never block.
	const overlapQuery = `SELECT id, start_date, end_date FROM leave_requests
WHERE student_id = $1 AND status = ANY($2) AND start_date <= $4 AND end_date >= $3
UNION ALL
SELECT id, start_date, end_date FROM od_requests
WHERE student_id = $1 AND status = ANY($2) AND start_date <= $4 AND end_date >= $3`
	if err := tx.SelectContext(ctx, &overlaps, overlapQuery, studentID, pq.Array(activeStatusStrings()), start, end); err != nil {
		return fmt.Errorf("check overlapping requests: %w", err)
	}
	if len(overlaps) > 0 {
		ranges := make([]string, len(overlaps))
		for i, o := range overlaps {
			ranges[i] = o.StartDate.Format(dto.DateLayout) + ".." + o.EndDate.Format(dto.DateLayout)
		}
		return appErrors.WithDetails(appErrors.ErrOverlapConflict, map[string]interface{}{"ranges": ranges})
	}

	return nil
}

func activeStatusStrings() []string {
	statuses := make([]string, len(models.ActiveStatuses))
	for i, s := range models.ActiveStatuses {
		statuses[i] = string(s)
	}
	return statuses
}

// lockStudent takes a row lock on the student, serialising concurrent
// submissions and balance writes for the same student.
func lockStudent(ctx context.Context, tx *sqlx.Tx, studentID string) error {
	var id string
	if err := tx.GetContext(ctx, &id, `SELECT id FROM students WHERE id = $1 FOR UPDATE`, studentID); err != nil {
		return err
	}
	return nil
}
