package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-leave-api/internal/models"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
)

// LeaveRepository persists leave requests and owns the leave-balance side
// effects of their status changes.
type LeaveRepository struct {
	db *sqlx.DB
}

// NewLeaveRepository constructs the repository.
func NewLeaveRepository(db *sqlx.DB) *LeaveRepository {
	return &LeaveRepository{db: db}
}

const leaveColumns = `id, student_id, tutor_id, subject, description, start_date, end_date, total_days,
status, cancel_reason, original_status, partial_cancel_start, partial_cancel_end, partial_cancel_days,
created_at, updated_at`

// Create validates availability and inserts the request in one transaction.
func (r *LeaveRepository) Create(ctx context.Context, request *models.LeaveRequest) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin leave create: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockStudent(ctx, tx, request.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return fmt.Errorf("lock student: %w", err)
	}
	if err = checkAvailability(ctx, tx, request.StudentID, request.StartDate, request.EndDate); err != nil {
		return err
	}

	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	request.Status = models.StatusPending
	request.CreatedAt = now
	request.UpdatedAt = now

	const query = `INSERT INTO leave_requests
(id, student_id, tutor_id, subject, description, start_date, end_date, total_days, status, created_at, updated_at)
VALUES (:id, :student_id, :tutor_id, :subject, :description, :start_date, :end_date, :total_days, :status, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("insert leave request: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit leave create: %w", err)
	}
	return nil
}

// GetByID fetches a leave request by identifier.
func (r *LeaveRepository) GetByID(ctx context.Context, id string) (*models.LeaveRequest, error) {
	var request models.LeaveRequest
	if err := r.db.GetContext(ctx, &request, `SELECT `+leaveColumns+` FROM leave_requests WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns leave requests matching the filter (latest first).
func (r *LeaveRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.LeaveRequest, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + leaveColumns + ` FROM leave_requests`)
	args := make([]interface{}, 0, 4)

	conditions := make([]string, 0, 4)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.TutorID != "" {
		args = append(args, filter.TutorID)
		conditions = append(conditions, fmt.Sprintf("tutor_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.MaxCreatedAt != nil {
		args = append(args, *filter.MaxCreatedAt)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
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

	var requests []models.LeaveRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list leave requests: %w", err)
	}
	return requests, nil
}

// PartialCancel captures an applied partial-cancellation sub-range.
type PartialCancel struct {
	Start time.Time
	End   time.Time
	Days  decimal.Decimal
}

// LeaveStatusChange groups all writes for one decision. The balance mutation
// is taken from deltas the caller computed against the stored row, never
// recomputed from dates.
type LeaveStatusChange struct {
	ID             string
	StudentID      string
	ExpectedStatus models.RequestStatus
	NewStatus      models.RequestStatus

	CancelReason        *string
	ClearCancelReason   bool
	SetOriginalStatus   *models.RequestStatus
	ClearOriginalStatus bool
	SetPartial          *PartialCancel
	ClearPartial        bool

	TotalDaysDelta decimal.Decimal
	BalanceDelta   decimal.Decimal
}

// ApplyStatusChange writes status, derived fields and the balance adjustment
// as one atomic unit. A concurrent writer that already moved the row off
// ExpectedStatus loses with ErrStaleStatus.
func (r *LeaveRepository) ApplyStatusChange(ctx context.Context, change LeaveStatusChange) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin leave status change: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockStudent(ctx, tx, change.StudentID); err != nil {
		return fmt.Errorf("lock student: %w", err)
	}

	setParts := []string{"status = :status", "updated_at = :updated_at"}
	params := map[string]interface{}{
		"id":         change.ID,
		"expected":   change.ExpectedStatus,
		"status":     change.NewStatus,
		"updated_at": time.Now().UTC(),
	}
	if change.CancelReason != nil {
		setParts = append(setParts, "cancel_reason = :cancel_reason")
		params["cancel_reason"] = *change.CancelReason
	} else if change.ClearCancelReason {
		setParts = append(setParts, "cancel_reason = NULL")
	}
	if change.SetOriginalStatus != nil {
		setParts = append(setParts, "original_status = :original_status")
		params["original_status"] = *change.SetOriginalStatus
	} else if change.ClearOriginalStatus {
		setParts = append(setParts, "original_status = NULL")
	}
	if change.SetPartial != nil {
		setParts = append(setParts,
			"partial_cancel_start = :partial_start",
			"partial_cancel_end = :partial_end",
			"partial_cancel_days = :partial_days")
		params["partial_start"] = change.SetPartial.Start
		params["partial_end"] = change.SetPartial.End
		params["partial_days"] = change.SetPartial.Days
	} else if change.ClearPartial {
		setParts = append(setParts,
			"partial_cancel_start = NULL",
			"partial_cancel_end = NULL",
			"partial_cancel_days = NULL")
	}
	if !change.TotalDaysDelta.IsZero() {
		setParts = append(setParts, "total_days = total_days + :total_days_delta")
		params["total_days_delta"] = change.TotalDaysDelta
	}

	query := fmt.Sprintf("UPDATE leave_requests SET %s WHERE id = :id AND status = :expected",
		strings.Join(setParts, ", "))
	result, err := tx.NamedExecContext(ctx, query, params)
	if err != nil {
		return fmt.Errorf("update leave status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check leave update rows: %w", err)
	}
	if rows == 0 {
		return appErrors.ErrStaleStatus
	}

	if !change.BalanceDelta.IsZero() {
		const balanceQuery = `UPDATE students SET leave_taken = leave_taken + $1, updated_at = NOW() WHERE id = $2`
		if _, err = tx.ExecContext(ctx, balanceQuery, change.BalanceDelta, change.StudentID); err != nil {
			return fmt.Errorf("adjust leave balance: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit leave status change: %w", err)
	}
	return nil
}
