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

	"github.com/noah-isme/sma-leave-api/internal/models"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
)

// ODRepository persists on-duty requests and their certificate sub-lifecycle.
type ODRepository struct {
	db *sqlx.DB
}

// NewODRepository constructs the repository.
func NewODRepository(db *sqlx.DB) *ODRepository {
	return &ODRepository{db: db}
}

const odColumns = `id, student_id, tutor_id, purpose, destination, description, start_date, end_date,
duration_type, total_days, status, cancel_reason, original_status, certificate_url, certificate_status,
certificate_reason, upload_deadline, last_notification_date, created_at, updated_at`

// Create validates availability and inserts the request in one transaction.
func (r *ODRepository) Create(ctx context.Context, request *models.ODRequest) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin od create: %w", err)
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
	request.CertificateStatus = models.CertPendingUpload
	request.CreatedAt = now
	request.UpdatedAt = now

	const query = `INSERT INTO od_requests
(id, student_id, tutor_id, purpose, destination, description, start_date, end_date, duration_type,
 total_days, status, certificate_status, created_at, updated_at)
VALUES (:id, :student_id, :tutor_id, :purpose, :destination, :description, :start_date, :end_date,
 :duration_type, :total_days, :status, :certificate_status, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("insert od request: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit od create: %w", err)
	}
	return nil
}

// GetByID fetches an OD request by identifier.
func (r *ODRepository) GetByID(ctx context.Context, id string) (*models.ODRequest, error) {
	var request models.ODRequest
	if err := r.db.GetContext(ctx, &request, `SELECT `+odColumns+` FROM od_requests WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns OD requests matching the filter (latest first).
func (r *ODRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.ODRequest, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + odColumns + ` FROM od_requests`)
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
		// Hide very fresh rows only while they are still awaiting the tutor.
		conditions = append(conditions, fmt.Sprintf("(created_at <= $%d OR status <> '%s')", len(args), models.StatusPending))
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

	var requests []models.ODRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list od requests: %w", err)
	}
	return requests, nil
}

// ODStatusChange groups all writes for one decision on an OD request. OD
// requests never charge the leave balance.
type ODStatusChange struct {
	ID             string
	ExpectedStatus models.RequestStatus
	NewStatus      models.RequestStatus

	CancelReason        *string
	ClearCancelReason   bool
	SetOriginalStatus   *models.RequestStatus
	ClearOriginalStatus bool

	// SetCertificatePending arms the certificate sub-lifecycle on approval.
	SetCertificatePending bool
	UploadDeadline        *time.Time
}

// ApplyStatusChange writes status and derived fields guarded by a status
// compare-and-swap; a losing concurrent writer gets ErrStaleStatus.
func (r *ODRepository) ApplyStatusChange(ctx context.Context, change ODStatusChange) error {
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
	if change.SetCertificatePending {
		setParts = append(setParts, "certificate_status = :certificate_status", "upload_deadline = :upload_deadline")
		params["certificate_status"] = models.CertPendingUpload
		params["upload_deadline"] = change.UploadDeadline
	}

	query := fmt.Sprintf("UPDATE od_requests SET %s WHERE id = :id AND status = :expected",
		strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, params)
	if err != nil {
		return fmt.Errorf("update od status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check od update rows: %w", err)
	}
	if rows == 0 {
		return appErrors.ErrStaleStatus
	}
	return nil
}

// AttachCertificate records an upload, moving the certificate to pending
// verification. Only certificates still awaiting upload accept a file.
func (r *ODRepository) AttachCertificate(ctx context.Context, id, url string) error {
	const query = `UPDATE od_requests
SET certificate_url = $2, certificate_status = $3, updated_at = NOW()
WHERE id = $1 AND certificate_status = $4`
	result, err := r.db.ExecContext(ctx, query, id, url, models.CertPendingVerification, models.CertPendingUpload)
	if err != nil {
		return fmt.Errorf("attach certificate: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check certificate attach rows: %w", err)
	}
	if rows == 0 {
		return appErrors.ErrStaleStatus
	}
	return nil
}

// ResolveCertificate finalises verification of an uploaded certificate.
func (r *ODRepository) ResolveCertificate(ctx context.Context, id string, status models.CertificateStatus, reason *string) error {
	const query = `UPDATE od_requests
SET certificate_status = $2, certificate_reason = $3, updated_at = NOW()
WHERE id = $1 AND certificate_status = $4`
	result, err := r.db.ExecContext(ctx, query, id, status, reason, models.CertPendingVerification)
	if err != nil {
		return fmt.Errorf("resolve certificate: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check certificate resolve rows: %w", err)
	}
	if rows == 0 {
		return appErrors.ErrStaleStatus
	}
	return nil
}

// ListAwaitingCertificate returns approved requests still awaiting an upload
// whose range has ended by asOf. The sweep divides them into reminder and
// auto-reject buckets.
func (r *ODRepository) ListAwaitingCertificate(ctx context.Context, asOf time.Time) ([]models.ODRequest, error) {
	const query = `SELECT ` + odColumns + ` FROM od_requests
WHERE status = $1 AND certificate_status = $2 AND end_date <= $3
ORDER BY end_date`
	var requests []models.ODRequest
	if err := r.db.SelectContext(ctx, &requests, query, models.StatusApproved, models.CertPendingUpload, asOf); err != nil {
		return nil, fmt.Errorf("list awaiting certificates: %w", err)
	}
	return requests, nil
}

// AutoReject rejects both the request and its certificate with the system
// reason. Rows already moved by a concurrent writer are skipped.
func (r *ODRepository) AutoReject(ctx context.Context, id, reason string) (bool, error) {
	const query = `UPDATE od_requests
SET status = $2, certificate_status = $3, cancel_reason = $4, certificate_reason = $4, updated_at = NOW()
WHERE id = $1 AND status = $5 AND certificate_status = $6`
	result, err := r.db.ExecContext(ctx, query, id,
		models.StatusRejected, models.CertRejected, reason,
		models.StatusApproved, models.CertPendingUpload)
	if err != nil {
		return false, fmt.Errorf("auto-reject od request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check auto-reject rows: %w", err)
	}
	return rows > 0, nil
}

// StampNotification records that a reminder was produced for the given day.
// At most one stamp lands per day, which keeps sweep re-runs idempotent.
func (r *ODRepository) StampNotification(ctx context.Context, id string, day time.Time) (bool, error) {
	const query = `UPDATE od_requests
SET last_notification_date = $2, updated_at = NOW()
WHERE id = $1 AND certificate_status = $3
  AND (last_notification_date IS NULL OR last_notification_date < $2)`
	result, err := r.db.ExecContext(ctx, query, id, day, models.CertPendingUpload)
	if err != nil {
		return false, fmt.Errorf("stamp notification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check notification rows: %w", err)
	}
	return rows > 0, nil
}

// MarkOverdue flips certificates past their stored upload deadline to
// Overdue without touching the request status. Returns the affected count.
func (r *ODRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	const query = `UPDATE od_requests
SET certificate_status = $2, updated_at = NOW()
WHERE certificate_status = $1 AND upload_deadline IS NOT NULL AND upload_deadline < $3`
	result, err := r.db.ExecContext(ctx, query, models.CertPendingUpload, models.CertOverdue, asOf)
	if err != nil {
		return 0, fmt.Errorf("mark certificates overdue: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check overdue rows: %w", err)
	}
	return rows, nil
}
