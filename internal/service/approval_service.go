package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-leave-api/internal/dto"
	"github.com/noah-isme/sma-leave-api/internal/models"
	"github.com/noah-isme/sma-leave-api/internal/repository"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
)

type leaveDecisionRepository interface {
	GetByID(ctx context.Context, id string) (*models.LeaveRequest, error)
	ApplyStatusChange(ctx context.Context, change repository.LeaveStatusChange) error
}

type odDecisionRepository interface {
	GetByID(ctx context.Context, id string) (*models.ODRequest, error)
	ApplyStatusChange(ctx context.Context, change repository.ODStatusChange) error
}

type balanceInvalidator interface {
	Invalidate(ctx context.Context, studentID string)
}

// ApprovalService routes reviewer decisions through the request lifecycle and
// applies their leave-balance effects.
type ApprovalService struct {
	leaves  leaveDecisionRepository
	ods     odDecisionRepository
	balance balanceInvalidator
	policy  RequestPolicy
	logger  *zap.Logger
	now     func() time.Time
}

// NewApprovalService constructs an ApprovalService instance.
func NewApprovalService(leaves leaveDecisionRepository, ods odDecisionRepository, balance balanceInvalidator, policy RequestPolicy, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		leaves:  leaves,
		ods:     ods,
		balance: balance,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
	}
}

// decidableStatuses are the states a reviewer verdict may act on. Revocation
// of approved requests is the admin-only exception handled separately.
var decidableStatuses = []models.RequestStatus{
	models.StatusPending,
	models.StatusForwarded,
	models.StatusRetried,
}

func isDecidable(status models.RequestStatus) bool {
	for _, s := range decidableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// DecideLeave applies a reviewer verdict to a leave request.
func (s *ApprovalService) DecideLeave(ctx context.Context, claims *models.JWTClaims, id string, req dto.DecisionRequest) (*models.LeaveRequest, error) {
	request, err := s.leaves.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}

	newStatus, err := s.route(claims, models.KindLeave, request.Status, request.TutorID, request.TotalDays, req)
	if err != nil {
		return nil, err
	}

	change := repository.LeaveStatusChange{
		ID:             request.ID,
		StudentID:      request.StudentID,
		ExpectedStatus: request.Status,
		NewStatus:      newStatus,
	}
	if req.Action == models.DecisionReject {
		reason := strings.TrimSpace(req.Reason)
		change.CancelReason = &reason
	}

	// The balance moves only when a verdict crosses the charged boundary.
	switch {
	case newStatus == models.StatusApproved:
		change.BalanceDelta = request.TotalDays
	case newStatus == models.StatusRejected && request.Status == models.StatusApproved:
		change.BalanceDelta = request.TotalDays.Neg()
	}

	if err := s.leaves.ApplyStatusChange(ctx, change); err != nil {
		return nil, err
	}
	if !change.BalanceDelta.IsZero() && s.balance != nil {
		s.balance.Invalidate(ctx, request.StudentID)
	}

	s.logger.Info("leave request decided",
		zap.String("request_id", request.ID),
		zap.String("action", string(req.Action)),
		zap.String("from", string(request.Status)),
		zap.String("to", string(newStatus)))

	return s.leaves.GetByID(ctx, id)
}

// DecideOD applies a reviewer verdict to an OD request. Approval arms the
// certificate sub-lifecycle with an upload deadline.
func (s *ApprovalService) DecideOD(ctx context.Context, claims *models.JWTClaims, id string, req dto.DecisionRequest) (*models.ODRequest, error) {
	request, err := s.ods.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "od request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load od request")
	}

	newStatus, err := s.route(claims, models.KindOD, request.Status, request.TutorID, request.TotalDays, req)
	if err != nil {
		return nil, err
	}

	change := repository.ODStatusChange{
		ID:             request.ID,
		ExpectedStatus: request.Status,
		NewStatus:      newStatus,
	}
	if req.Action == models.DecisionReject {
		reason := strings.TrimSpace(req.Reason)
		change.CancelReason = &reason
	}
	if newStatus == models.StatusApproved {
		deadline := certificateDeadline(request.EndDate, s.policy.CertUploadGraceDays)
		change.SetCertificatePending = true
		change.UploadDeadline = &deadline
	}

	if err := s.ods.ApplyStatusChange(ctx, change); err != nil {
		return nil, err
	}

	s.logger.Info("od request decided",
		zap.String("request_id", request.ID),
		zap.String("action", string(req.Action)),
		zap.String("from", string(request.Status)),
		zap.String("to", string(newStatus)))

	return s.ods.GetByID(ctx, id)
}

// RetryLeave resubmits a rejected leave request while its range is still open.
func (s *ApprovalService) RetryLeave(ctx context.Context, claims *models.JWTClaims, id string) (*models.LeaveRequest, error) {
	request, err := s.leaves.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}
	if err := s.checkRetry(claims, request.StudentID, request.Status, request.EndDate); err != nil {
		return nil, err
	}

	change := repository.LeaveStatusChange{
		ID:                request.ID,
		StudentID:         request.StudentID,
		ExpectedStatus:    models.StatusRejected,
		NewStatus:         models.StatusRetried,
		ClearCancelReason: true,
	}
	if err := s.leaves.ApplyStatusChange(ctx, change); err != nil {
		return nil, err
	}
	return s.leaves.GetByID(ctx, id)
}

// RetryOD resubmits a rejected OD request while its range is still open.
func (s *ApprovalService) RetryOD(ctx context.Context, claims *models.JWTClaims, id string) (*models.ODRequest, error) {
	request, err := s.ods.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "od request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load od request")
	}
	if err := s.checkRetry(claims, request.StudentID, request.Status, request.EndDate); err != nil {
		return nil, err
	}

	change := repository.ODStatusChange{
		ID:                request.ID,
		ExpectedStatus:    models.StatusRejected,
		NewStatus:         models.StatusRetried,
		ClearCancelReason: true,
	}
	if err := s.ods.ApplyStatusChange(ctx, change); err != nil {
		return nil, err
	}
	return s.ods.GetByID(ctx, id)
}

// route validates actor, action and current status, returning the target
// status for a legal verdict.
func (s *ApprovalService) route(claims *models.JWTClaims, kind models.RequestKind, current models.RequestStatus, tutorID string, totalDays decimal.Decimal, req dto.DecisionRequest) (models.RequestStatus, error) {
	if claims == nil {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "missing claims")
	}

	if req.Action == models.DecisionReject && strings.TrimSpace(req.Reason) == "" {
		return "", appErrors.ErrReasonRequired
	}

	var target models.RequestStatus
	switch req.Action {
	case models.DecisionApprove:
		target = models.StatusApproved
	case models.DecisionReject:
		target = models.StatusRejected
	case models.DecisionForward:
		target = models.StatusForwarded
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown decision action")
	}

	switch claims.Role {
	case models.RoleTutor:
		if claims.StaffID != tutorID {
			return "", appErrors.Clone(appErrors.ErrForbidden, "request is assigned to another tutor")
		}
		// Forwarded requests already left the tutor's queue.
		if current != models.StatusPending && current != models.StatusRetried {
			return "", transitionError(current, target)
		}
		if req.Action != models.DecisionForward {
			if kind == models.KindOD {
				return "", appErrors.Clone(appErrors.ErrForbidden, "od requests must be forwarded to an admin")
			}
			limit := decimal.NewFromFloat(s.policy.TutorDecisionLimitDays)
			if totalDays.GreaterThan(limit) {
				return "", appErrors.Clone(appErrors.ErrForbidden,
					fmt.Sprintf("leave requests over %s days must be forwarded to an admin", limit.String()))
			}
		}
	case models.RoleAdmin:
		if req.Action == models.DecisionForward {
			return "", appErrors.Clone(appErrors.ErrForbidden, "admins decide requests instead of forwarding them")
		}
		// Admins may also revoke an approved request by rejecting it.
		if !isDecidable(current) && !(current == models.StatusApproved && req.Action == models.DecisionReject) {
			return "", transitionError(current, target)
		}
	default:
		return "", appErrors.Clone(appErrors.ErrForbidden, "only staff may decide requests")
	}

	if !models.CanTransition(current, target) {
		return "", transitionError(current, target)
	}
	return target, nil
}

func (s *ApprovalService) checkRetry(claims *models.JWTClaims, studentID string, current models.RequestStatus, endDate time.Time) error {
	if claims == nil || claims.Role != models.RoleStudent || claims.StudentID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the owning student may retry a request")
	}
	if current != models.StatusRejected {
		return transitionError(current, models.StatusRetried)
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	if today.After(endDate) {
		return appErrors.ErrWindowClosed
	}
	return nil
}

func transitionError(from, to models.RequestStatus) error {
	return appErrors.WithDetails(appErrors.ErrTransition, map[string]interface{}{
		"from": from,
		"to":   to,
	})
}

// certificateDeadline computes the date by which an approved OD request must
// carry an uploaded certificate.
func certificateDeadline(endDate time.Time, graceDays int) time.Time {
	if graceDays <= 0 {
		graceDays = 3
	}
	return endDate.AddDate(0, 0, graceDays)
}
