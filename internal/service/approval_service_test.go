package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-leave-api/internal/dto"
	"github.com/noah-isme/sma-leave-api/internal/models"
	"github.com/noah-isme/sma-leave-api/internal/repository"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
)

type leaveStoreStub struct {
	requests map[string]*models.LeaveRequest
	balance  decimal.Decimal
}

func newLeaveStoreStub() *leaveStoreStub {
	return &leaveStoreStub{requests: make(map[string]*models.LeaveRequest)}
}

func (s *leaveStoreStub) GetByID(ctx context.Context, id string) (*models.LeaveRequest, error) {
	if req, ok := s.requests[id]; ok {
		copy := *req
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *leaveStoreStub) ApplyStatusChange(ctx context.Context, change repository.LeaveStatusChange) error {
	req, ok := s.requests[change.ID]
	if !ok || req.Status != change.ExpectedStatus {
		return appErrors.ErrStaleStatus
	}
	req.Status = change.NewStatus
	if change.CancelReason != nil {
		req.CancelReason = change.CancelReason
	} else if change.ClearCancelReason {
		req.CancelReason = nil
	}
	if change.SetOriginalStatus != nil {
		req.OriginalStatus = change.SetOriginalStatus
	} else if change.ClearOriginalStatus {
		req.OriginalStatus = nil
	}
	if change.SetPartial != nil {
		start, end, days := change.SetPartial.Start, change.SetPartial.End, change.SetPartial.Days
		req.PartialCancelStart = &start
		req.PartialCancelEnd = &end
		req.PartialCancelDays = &days
	} else if change.ClearPartial {
		req.PartialCancelStart = nil
		req.PartialCancelEnd = nil
		req.PartialCancelDays = nil
	}
	req.TotalDays = req.TotalDays.Add(change.TotalDaysDelta)
	s.balance = s.balance.Add(change.BalanceDelta)
	return nil
}

type odStoreStub struct {
	requests map[string]*models.ODRequest
}

func newODStoreStub() *odStoreStub {
	return &odStoreStub{requests: make(map[string]*models.ODRequest)}
}

func (s *odStoreStub) GetByID(ctx context.Context, id string) (*models.ODRequest, error) {
	if req, ok := s.requests[id]; ok {
		copy := *req
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *odStoreStub) ApplyStatusChange(ctx context.Context, change repository.ODStatusChange) error {
	req, ok := s.requests[change.ID]
	if !ok || req.Status != change.ExpectedStatus {
		return appErrors.ErrStaleStatus
	}
	req.Status = change.NewStatus
	if change.CancelReason != nil {
		req.CancelReason = change.CancelReason
	} else if change.ClearCancelReason {
		req.CancelReason = nil
	}
	if change.SetOriginalStatus != nil {
		req.OriginalStatus = change.SetOriginalStatus
	} else if change.ClearOriginalStatus {
		req.OriginalStatus = nil
	}
	if change.SetCertificatePending {
		req.CertificateStatus = models.CertPendingUpload
		req.UploadDeadline = change.UploadDeadline
	}
	return nil
}

type balanceStub struct {
	invalidated []string
}

func (b *balanceStub) Invalidate(ctx context.Context, studentID string) {
	b.invalidated = append(b.invalidated, studentID)
}

func studentClaims(studentID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "u-" + studentID, Role: models.RoleStudent, StudentID: studentID}
}

func tutorClaims(staffID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "u-" + staffID, Role: models.RoleTutor, StaffID: staffID}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "u-admin", Role: models.RoleAdmin, StaffID: "staff-admin"}
}

func testPolicy() RequestPolicy {
	return RequestPolicy{
		TutorDecisionLimitDays: 2,
		ODAdminDelay:           time.Hour,
		CertUploadGraceDays:    3,
	}
}

func seededLeave(id string, status models.RequestStatus, days string) *models.LeaveRequest {
	return &models.LeaveRequest{
		ID:        id,
		StudentID: "student-1",
		TutorID:   "tutor-1",
		Subject:   "family function",
		StartDate: day("2025-08-05"),
		EndDate:   day("2025-08-07"),
		TotalDays: decimal.RequireFromString(days),
		Status:    status,
	}
}

func seededOD(id string, status models.RequestStatus) *models.ODRequest {
	return &models.ODRequest{
		ID:                id,
		StudentID:         "student-1",
		TutorID:           "tutor-1",
		Purpose:           "symposium",
		Destination:       "city campus",
		StartDate:         day("2025-08-08"),
		EndDate:           day("2025-08-11"),
		DurationType:      models.DurationFullDay,
		TotalDays:         decimal.RequireFromString("3"),
		Status:            status,
		CertificateStatus: models.CertPendingUpload,
	}
}

func TestTutorApprovesSmallLeave(t *testing.T) {
	leaves := newLeaveStoreStub()
	leaves.requests["req-1"] = seededLeave("req-1", models.StatusPending, "2")
	balance := &balanceStub{}
	svc := NewApprovalService(leaves, newODStoreStub(), balance, testPolicy(), nil)

	result, err := svc.DecideLeave(context.Background(), tutorClaims("tutor-1"), "req-1",
		dto.DecisionRequest{Action: models.DecisionApprove})
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, result.Status)
	require.Equal(t, "2", leaves.balance.String())
	require.Equal(t, []string{"student-1"}, balance.invalidated)
}

func TestTutorMustForwardLargeLeave(t *testing.T) {
	leaves := newLeaveStoreStub()
	leaves.requests["req-1"] = seededLeave("req-1", models.StatusPending, "3")
	svc := NewApprovalService(leaves, newODStoreStub(), &balanceStub{}, testPolicy(), nil)

	_, err := svc.DecideLeave(context.Background(), tutorClaims("tutor-1"), "req-1",
		dto.DecisionRequest{Action: models.DecisionApprove})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	require.True(t, leaves.balance.IsZero())

	result, err := svc.DecideLeave(context.Background(), tutorClaims("tutor-1"), "req-1",
		dto.DecisionRequest{Action: models.DecisionForward})
	require.NoError(t, err)
	require.Equal(t, models.StatusForwarded, result.Status)
	require.True(t, leaves.balance.IsZero())
}

func TestTutorCannotActOnForwardedLeave(t *testing.T) {
	leaves := newLeaveStoreStub()
	leaves.requests["req-1"] = seededLeave("req-1", models.StatusForwarded, "1")
	svc := NewApprovalService(leaves, newODStoreStub(), &balanceStub{}, testPolicy(), nil)

	_, err := svc.DecideLeave(context.Background(), tutorClaims("tutor-1"), "req-1",
		dto.DecisionRequest{Action: models.DecisionApprove})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrTransition.Code, appErr.Code)
}

func TestTutorCannotDecideAnotherTutorsRequest(t *testing.T) {
	leaves := newLeaveStoreStub()
	leaves.requests["req-1"] = seededLeave("req-1", models.StatusPending, "1")
	svc := NewApprovalService(leaves, newODStoreStub(), &balanceStub{}, testPolicy(), nil)

	_, err := svc.DecideLeave(context.Background(), tutorClaims("tutor-2"), "req-1",
		dto.DecisionRequest{Action: models.DecisionApprove})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestRejectRequiresReason(t *testing.T) {
	leaves := newLeaveStoreStub()
	leaves.requests["req-1"] = seededLeave("req-1", models.StatusPending, "1")
	svc := NewApprovalService(leaves, newODStoreStub(), &balanceStub{}, testPolicy(), nil)

	_, err := svc.DecideLeave(context.Background(), tutorClaims("tutor-1"), "req-1",
		dto.DecisionRequest{Action: models.DecisionReject})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrReasonRequired.Code, appErr.Code)

	result, err := svc.DecideLeave(context.Background(), tutorClaims("tutor-1"), "req-1",
		dto.DecisionRequest{Action: models.DecisionReject, Reason: "dates clash with exams"})
	require.NoError(t, err)
	require.Equal(t, models.StatusRejected, result.Status)
	require.NotNil(t, result.CancelReason)
	require.True(t, leaves.balance.IsZero())
}

func TestAdminRevokesApprovedLeave(t *testing.T) {
	leaves := newLeaveStoreStub()
	leaves.requests["req-1"] = seededLeave("req-1", models.StatusPending, "3")
	balance := &balanceStub{}
	svc := NewApprovalService(leaves, newODStoreStub(), balance, testPolicy(), nil)

	result, err := svc.DecideLeave(context.Background(), adminClaims(), "req-1",
		dto.DecisionRequest{Action: models.DecisionApprove})
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, result.Status)
	require.Equal(t, "3", leaves.balance.String())

	result, err = svc.DecideLeave(context.Background(), adminClaims(), "req-1",
		dto.DecisionRequest{Action: models.DecisionReject, Reason: "documentation was forged"})
	require.NoError(t, err)
	require.Equal(t, models.StatusRejected, result.Status)
	require.True(t, leaves.balance.IsZero())
	require.Len(t, balance.invalidated, 2)
}

func TestAdminCannotForward(t *testing.T) {
	leaves := newLeaveStoreStub()
	leaves.requests["req-1"] = seededLeave("req-1", models.StatusPending, "1")
	svc := NewApprovalService(leaves, newODStoreStub(), &balanceStub{}, testPolicy(), nil)

	_, err := svc.DecideLeave(context.Background(), adminClaims(), "req-1",
		dto.DecisionRequest{Action: models.DecisionForward})
	require.Error(t, err)
}

func TestTutorForwardOnlyForOD(t *testing.T) {
	ods := newODStoreStub()
	ods.requests["od-1"] = seededOD("od-1", models.StatusPending)
	svc := NewApprovalService(newLeaveStoreStub(), ods, &balanceStub{}, testPolicy(), nil)

	_, err := svc.DecideOD(context.Background(), tutorClaims("tutor-1"), "od-1",
		dto.DecisionRequest{Action: models.DecisionApprove})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	result, err := svc.DecideOD(context.Background(), tutorClaims("tutor-1"), "od-1",
		dto.DecisionRequest{Action: models.DecisionForward})
	require.NoError(t, err)
	require.Equal(t, models.StatusForwarded, result.Status)
}

func TestODApprovalArmsCertificateDeadline(t *testing.T) {
	ods := newODStoreStub()
	ods.requests["od-1"] = seededOD("od-1", models.StatusForwarded)
	svc := NewApprovalService(newLeaveStoreStub(), ods, &balanceStub{}, testPolicy(), nil)

	result, err := svc.DecideOD(context.Background(), adminClaims(), "od-1",
		dto.DecisionRequest{Action: models.DecisionApprove})
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, result.Status)
	require.Equal(t, models.CertPendingUpload, result.CertificateStatus)
	require.NotNil(t, result.UploadDeadline)
	require.Equal(t, day("2025-08-14"), *result.UploadDeadline)
}

func TestRetryWithinWindow(t *testing.T) {
	leaves := newLeaveStoreStub()
	rejected := seededLeave("req-1", models.StatusRejected, "2")
	reason := "incomplete form"
	rejected.CancelReason = &reason
	leaves.requests["req-1"] = rejected
	svc := NewApprovalService(leaves, newODStoreStub(), &balanceStub{}, testPolicy(), nil)
	svc.now = func() time.Time { return day("2025-08-06") }

	result, err := svc.RetryLeave(context.Background(), studentClaims("student-1"), "req-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusRetried, result.Status)
	require.Nil(t, result.CancelReason)
	require.True(t, leaves.balance.IsZero())
}

func TestRetryAfterWindowClosed(t *testing.T) {
	leaves := newLeaveStoreStub()
	leaves.requests["req-1"] = seededLeave("req-1", models.StatusRejected, "2")
	svc := NewApprovalService(leaves, newODStoreStub(), &balanceStub{}, testPolicy(), nil)
	svc.now = func() time.Time { return day("2025-08-20") }

	_, err := svc.RetryLeave(context.Background(), studentClaims("student-1"), "req-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrWindowClosed.Code, appErr.Code)
}

func TestRetryOnlyByOwner(t *testing.T) {
	leaves := newLeaveStoreStub()
	leaves.requests["req-1"] = seededLeave("req-1", models.StatusRejected, "2")
	svc := NewApprovalService(leaves, newODStoreStub(), &balanceStub{}, testPolicy(), nil)
	svc.now = func() time.Time { return day("2025-08-06") }

	_, err := svc.RetryLeave(context.Background(), studentClaims("student-2"), "req-1")
	require.Error(t, err)

	_, err = svc.RetryLeave(context.Background(), tutorClaims("tutor-1"), "req-1")
	require.Error(t, err)
}

func TestDecideLeaveStaleStatus(t *testing.T) {
	leaves := newLeaveStoreStub()
	leaves.requests["req-1"] = seededLeave("req-1", models.StatusPending, "1")
	svc := NewApprovalService(leaves, newODStoreStub(), &balanceStub{}, testPolicy(), nil)

	// Another writer moves the row between the read and the write.
	leaves.requests["req-1"].Status = models.StatusRejected

	err := leaves.ApplyStatusChange(context.Background(), repository.LeaveStatusChange{
		ID:             "req-1",
		StudentID:      "student-1",
		ExpectedStatus: models.StatusPending,
		NewStatus:      models.StatusApproved,
	})
	require.ErrorIs(t, err, appErrors.ErrStaleStatus)

	_, err = svc.DecideLeave(context.Background(), adminClaims(), "req-1",
		dto.DecisionRequest{Action: models.DecisionApprove})
	require.Error(t, err)
}
