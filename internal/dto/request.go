package dto

import (
	"time"

	"github.com/noah-isme/sma-leave-api/internal/models"
)

// DateLayout is the wire format for date-only fields.
const DateLayout = "2006-01-02"

// CreateLeaveRequest payload for submitting a leave request.
type CreateLeaveRequest struct {
	Subject     string `json:"subject" validate:"required"`
	Description string `json:"description"`
	StartDate   string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// CreateODRequest payload for submitting an on-duty request.
type CreateODRequest struct {
	Purpose      string              `json:"purpose" validate:"required"`
	Destination  string              `json:"destination" validate:"required"`
	Description  string              `json:"description"`
	StartDate    string              `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate      string              `json:"end_date" validate:"required,datetime=2006-01-02"`
	DurationType models.DurationType `json:"duration_type" validate:"required,oneof=FULL_DAY HALF_DAY_FORENOON HALF_DAY_AFTERNOON"`
}

// DecisionRequest captures a reviewer verdict on a pending request.
type DecisionRequest struct {
	Action models.DecisionAction `json:"action" validate:"required,oneof=APPROVE REJECT FORWARD"`
	Reason string                `json:"reason"`
}

// CancellationRequest asks to cancel a request in full or, for approved leave
// requests, a contiguous sub-range.
type CancellationRequest struct {
	Reason       string `json:"reason" validate:"required"`
	PartialStart string `json:"partial_start,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PartialEnd   string `json:"partial_end,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Partial reports whether the payload names a sub-range.
func (r CancellationRequest) Partial() bool {
	return r.PartialStart != "" || r.PartialEnd != ""
}

// CancellationDecisionRequest resolves a pending cancellation.
type CancellationDecisionRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

// CertificateVerificationRequest resolves an uploaded OD certificate.
type CertificateVerificationRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

// CreateExceptionDayRequest payload for blocking a date.
type CreateExceptionDayRequest struct {
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Reason      string `json:"reason" validate:"required"`
	Description string `json:"description"`
}

// ParseDate converts a wire date into a UTC midnight time.Time.
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, raw, time.UTC)
}
