package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestKind distinguishes the two absence request tables.
type RequestKind string

const (
	KindLeave RequestKind = "LEAVE"
	KindOD    RequestKind = "OD"
)

// RequestStatus captures the lifecycle states shared by leave and OD requests.
type RequestStatus string

const (
	StatusPending             RequestStatus = "PENDING"
	StatusForwarded           RequestStatus = "FORWARDED"
	StatusApproved            RequestStatus = "APPROVED"
	StatusRejected            RequestStatus = "REJECTED"
	StatusCancelled           RequestStatus = "CANCELLED"
	StatusCancellationPending RequestStatus = "CANCELLATION_PENDING"
	StatusRetried             RequestStatus = "RETRIED"
)

// ActiveStatuses are the states in which a request blocks overlapping
// submissions. Rejected and Cancelled never block.
var ActiveStatuses = []RequestStatus{
	StatusPending,
	StatusForwarded,
	StatusApproved,
	StatusCancellationPending,
	StatusRetried,
}

// requestTransitions is the closed set of legal status edges. Actor
// permissions narrow these further in the approval router; nothing may move a
// request along an edge absent from this table.
var requestTransitions = map[RequestStatus][]RequestStatus{
	StatusPending:             {StatusApproved, StatusRejected, StatusForwarded, StatusCancellationPending},
	StatusForwarded:           {StatusApproved, StatusRejected, StatusCancellationPending},
	StatusRetried:             {StatusApproved, StatusRejected, StatusForwarded},
	StatusApproved:            {StatusRejected, StatusCancellationPending},
	StatusRejected:            {StatusRetried},
	StatusCancellationPending: {StatusCancelled, StatusPending, StatusForwarded, StatusApproved},
	StatusCancelled:           {},
}

// CanTransition reports whether the edge from -> to exists in the lifecycle.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DecisionAction enumerates reviewer verdicts.
type DecisionAction string

const (
	DecisionApprove DecisionAction = "APPROVE"
	DecisionReject  DecisionAction = "REJECT"
	DecisionForward DecisionAction = "FORWARD"
)

// DurationType refines OD requests into full or half day units.
type DurationType string

const (
	DurationFullDay          DurationType = "FULL_DAY"
	DurationHalfDayForenoon  DurationType = "HALF_DAY_FORENOON"
	DurationHalfDayAfternoon DurationType = "HALF_DAY_AFTERNOON"
)

// HalfDay reports whether the duration bills at half rate.
func (d DurationType) HalfDay() bool {
	return d == DurationHalfDayForenoon || d == DurationHalfDayAfternoon
}

// CertificateStatus tracks the OD supporting-certificate sub-lifecycle.
type CertificateStatus string

const (
	CertPendingUpload       CertificateStatus = "PENDING_UPLOAD"
	CertPendingVerification CertificateStatus = "PENDING_VERIFICATION"
	CertApproved            CertificateStatus = "APPROVED"
	CertRejected            CertificateStatus = "REJECTED"
	CertOverdue             CertificateStatus = "OVERDUE"
)

// LeaveRequest is a student's request for ordinary absence. Approving it
// charges TotalDays against the student's leave balance.
type LeaveRequest struct {
	ID                 string           `db:"id" json:"id"`
	StudentID          string           `db:"student_id" json:"student_id"`
	TutorID            string           `db:"tutor_id" json:"tutor_id"`
	Subject            string           `db:"subject" json:"subject"`
	Description        string           `db:"description" json:"description"`
	StartDate          time.Time        `db:"start_date" json:"start_date"`
	EndDate            time.Time        `db:"end_date" json:"end_date"`
	TotalDays          decimal.Decimal  `db:"total_days" json:"total_days"`
	Status             RequestStatus    `db:"status" json:"status"`
	CancelReason       *string          `db:"cancel_reason" json:"cancel_reason,omitempty"`
	OriginalStatus     *RequestStatus   `db:"original_status" json:"original_status,omitempty"`
	PartialCancelStart *time.Time       `db:"partial_cancel_start" json:"partial_cancel_start,omitempty"`
	PartialCancelEnd   *time.Time       `db:"partial_cancel_end" json:"partial_cancel_end,omitempty"`
	PartialCancelDays  *decimal.Decimal `db:"partial_cancel_days" json:"partial_cancel_days,omitempty"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// PartialPending reports whether a partial cancellation is awaiting review.
func (r *LeaveRequest) PartialPending() bool {
	return r.Status == StatusCancellationPending && r.PartialCancelDays != nil
}

// ODRequest is an absence for institutionally sanctioned activity. It never
// charges the leave balance but requires a supporting certificate once
// approved.
type ODRequest struct {
	ID                   string            `db:"id" json:"id"`
	StudentID            string            `db:"student_id" json:"student_id"`
	TutorID              string            `db:"tutor_id" json:"tutor_id"`
	Purpose              string            `db:"purpose" json:"purpose"`
	Destination          string            `db:"destination" json:"destination"`
	Description          string            `db:"description" json:"description"`
	StartDate            time.Time         `db:"start_date" json:"start_date"`
	EndDate              time.Time         `db:"end_date" json:"end_date"`
	DurationType         DurationType      `db:"duration_type" json:"duration_type"`
	TotalDays            decimal.Decimal   `db:"total_days" json:"total_days"`
	Status               RequestStatus     `db:"status" json:"status"`
	CancelReason         *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
	OriginalStatus       *RequestStatus    `db:"original_status" json:"original_status,omitempty"`
	CertificateURL       *string           `db:"certificate_url" json:"certificate_url,omitempty"`
	CertificateStatus    CertificateStatus `db:"certificate_status" json:"certificate_status"`
	CertificateReason    *string           `db:"certificate_reason" json:"certificate_reason,omitempty"`
	UploadDeadline       *time.Time        `db:"upload_deadline" json:"upload_deadline,omitempty"`
	LastNotificationDate *time.Time        `db:"last_notification_date" json:"last_notification_date,omitempty"`
	CreatedAt            time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time         `db:"updated_at" json:"updated_at"`
}

// RequestFilter narrows request listings.
type RequestFilter struct {
	StudentID string
	TutorID   string
	Status    []RequestStatus
	// MaxCreatedAt excludes rows created after the given instant. Admin
	// listings use it to hide very fresh pending OD requests.
	MaxCreatedAt *time.Time
	Limit        int
	Offset       int
}

// SweepResult summarises one certificate sweep run.
type SweepResult struct {
	AutoRejected int `json:"auto_rejected"`
	Reminded     int `json:"reminded"`
}
