package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-leave-api/internal/dto"
	"github.com/noah-isme/sma-leave-api/internal/models"
	"github.com/noah-isme/sma-leave-api/internal/repository"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
)

// CancellationService runs the two-step cancellation flow: a student request
// followed by a staff decision. Partial cancellations of approved leave take
// effect on the balance immediately and only the remainder stays charged.
type CancellationService struct {
	leaves  leaveDecisionRepository
	ods     odDecisionRepository
	balance balanceInvalidator
	policy  RequestPolicy
	logger  *zap.Logger
	now     func() time.Time
}

// NewCancellationService constructs a CancellationService instance.
func NewCancellationService(leaves leaveDecisionRepository, ods odDecisionRepository, balance balanceInvalidator, policy RequestPolicy, logger *zap.Logger) *CancellationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CancellationService{leaves: leaves, ods: ods, balance: balance, policy: policy, logger: logger, now: time.Now}
}

// RequestLeaveCancellation opens a cancellation on a leave request.
func (s *CancellationService) RequestLeaveCancellation(ctx context.Context, claims *models.JWTClaims, id string, req dto.CancellationRequest) (*models.LeaveRequest, error) {
	request, err := s.leaves.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}
	if err := requireOwner(claims, request.StudentID); err != nil {
		return nil, err
	}
	if !models.CanTransition(request.Status, models.StatusCancellationPending) {
		return nil, transitionError(request.Status, models.StatusCancellationPending)
	}
	if s.cancellationWindowClosed(request.EndDate) {
		return nil, appErrors.ErrWindowClosed
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.ErrReasonRequired
	}

	original := request.Status
	change := repository.LeaveStatusChange{
		ID:                request.ID,
		StudentID:         request.StudentID,
		ExpectedStatus:    request.Status,
		NewStatus:         models.StatusCancellationPending,
		CancelReason:      &reason,
		SetOriginalStatus: &original,
	}

	if req.Partial() {
		partial, err := s.buildPartial(request, req)
		if err != nil {
			return nil, err
		}
		// The cancelled sub-range is released right away; only the remainder
		// stays charged while the decision is pending.
		change.SetPartial = partial
		change.TotalDaysDelta = partial.Days.Neg()
		change.BalanceDelta = partial.Days.Neg()
	}

	if err := s.leaves.ApplyStatusChange(ctx, change); err != nil {
		return nil, err
	}
	if !change.BalanceDelta.IsZero() && s.balance != nil {
		s.balance.Invalidate(ctx, request.StudentID)
	}

	s.logger.Info("leave cancellation requested",
		zap.String("request_id", request.ID),
		zap.Bool("partial", req.Partial()))
	return s.leaves.GetByID(ctx, id)
}

// RequestODCancellation opens a full cancellation on an OD request. OD
// requests never support partial cancellation.
func (s *CancellationService) RequestODCancellation(ctx context.Context, claims *models.JWTClaims, id string, req dto.CancellationRequest) (*models.ODRequest, error) {
	if req.Partial() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "od requests can only be cancelled in full")
	}

	request, err := s.ods.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "od request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load od request")
	}
	if err := requireOwner(claims, request.StudentID); err != nil {
		return nil, err
	}
	if !models.CanTransition(request.Status, models.StatusCancellationPending) {
		return nil, transitionError(request.Status, models.StatusCancellationPending)
	}
	if s.cancellationWindowClosed(request.EndDate) {
		return nil, appErrors.ErrWindowClosed
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.ErrReasonRequired
	}

	original := request.Status
	change := repository.ODStatusChange{
		ID:                request.ID,
		ExpectedStatus:    request.Status,
		NewStatus:         models.StatusCancellationPending,
		CancelReason:      &reason,
		SetOriginalStatus: &original,
	}
	if err := s.ods.ApplyStatusChange(ctx, change); err != nil {
		return nil, err
	}

	s.logger.Info("od cancellation requested", zap.String("request_id", request.ID))
	return s.ods.GetByID(ctx, id)
}

// DecideLeaveCancellation resolves a pending leave cancellation.
func (s *CancellationService) DecideLeaveCancellation(ctx context.Context, claims *models.JWTClaims, id string, req dto.CancellationDecisionRequest) (*models.LeaveRequest, error) {
	request, err := s.leaves.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}
	if request.Status != models.StatusCancellationPending || request.OriginalStatus == nil {
		return nil, transitionError(request.Status, models.StatusCancelled)
	}
	if err := s.authorizeCancellationDecision(claims, models.KindLeave, request.TutorID, request.TotalDays); err != nil {
		return nil, err
	}

	change := repository.LeaveStatusChange{
		ID:             request.ID,
		StudentID:      request.StudentID,
		ExpectedStatus: models.StatusCancellationPending,
	}

	switch {
	case req.Approve && request.PartialPending():
		// Partial already took effect on request; the trimmed request simply
		// returns to its approved remainder. The partial fields are consumed
		// here so a later full cancellation starts from a clean slate.
		change.NewStatus = models.StatusApproved
		change.ClearOriginalStatus = true
		change.ClearCancelReason = true
		change.ClearPartial = true
	case req.Approve:
		change.NewStatus = models.StatusCancelled
		if *request.OriginalStatus == models.StatusApproved {
			change.BalanceDelta = request.TotalDays.Neg()
		}
	default:
		// Denying the cancellation puts the request back exactly where it was.
		change.NewStatus = *request.OriginalStatus
		change.ClearOriginalStatus = true
		change.ClearCancelReason = true
		if request.PartialPending() {
			change.ClearPartial = true
			change.TotalDaysDelta = *request.PartialCancelDays
			change.BalanceDelta = *request.PartialCancelDays
		}
	}

	if err := s.leaves.ApplyStatusChange(ctx, change); err != nil {
		return nil, err
	}
	if !change.BalanceDelta.IsZero() && s.balance != nil {
		s.balance.Invalidate(ctx, request.StudentID)
	}

	s.logger.Info("leave cancellation decided",
		zap.String("request_id", request.ID),
		zap.Bool("approved", req.Approve))
	return s.leaves.GetByID(ctx, id)
}

// DecideODCancellation resolves a pending OD cancellation.
func (s *CancellationService) DecideODCancellation(ctx context.Context, claims *models.JWTClaims, id string, req dto.CancellationDecisionRequest) (*models.ODRequest, error) {
	request, err := s.ods.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "od request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load od request")
	}
	if request.Status != models.StatusCancellationPending || request.OriginalStatus == nil {
		return nil, transitionError(request.Status, models.StatusCancelled)
	}
	if err := s.authorizeCancellationDecision(claims, models.KindOD, request.TutorID, request.TotalDays); err != nil {
		return nil, err
	}

	change := repository.ODStatusChange{
		ID:             request.ID,
		ExpectedStatus: models.StatusCancellationPending,
	}
	if req.Approve {
		change.NewStatus = models.StatusCancelled
	} else {
		change.NewStatus = *request.OriginalStatus
		change.ClearOriginalStatus = true
		change.ClearCancelReason = true
	}

	if err := s.ods.ApplyStatusChange(ctx, change); err != nil {
		return nil, err
	}

	s.logger.Info("od cancellation decided",
		zap.String("request_id", request.ID),
		zap.Bool("approved", req.Approve))
	return s.ods.GetByID(ctx, id)
}

func (s *CancellationService) authorizeCancellationDecision(claims *models.JWTClaims, kind models.RequestKind, tutorID string, totalDays decimal.Decimal) error {
	if claims == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing claims")
	}
	switch claims.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTutor:
		if claims.StaffID != tutorID {
			return appErrors.Clone(appErrors.ErrForbidden, "request is assigned to another tutor")
		}
		if kind == models.KindOD {
			return appErrors.Clone(appErrors.ErrForbidden, "od cancellations are decided by an admin")
		}
		limit := decimal.NewFromFloat(s.policy.TutorDecisionLimitDays)
		if totalDays.GreaterThan(limit) {
			return appErrors.Clone(appErrors.ErrForbidden, "cancellations of larger requests are decided by an admin")
		}
		return nil
	default:
		return appErrors.Clone(appErrors.ErrForbidden, "only staff may decide cancellations")
	}
}

func (s *CancellationService) buildPartial(request *models.LeaveRequest, req dto.CancellationRequest) (*repository.PartialCancel, error) {
	if request.Status != models.StatusApproved {
		return nil, appErrors.Clone(appErrors.ErrValidation, "partial cancellation applies to approved requests only")
	}
	if req.PartialStart == "" || req.PartialEnd == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "partial cancellation needs both start and end dates")
	}

	start, end, err := parseRange(req.PartialStart, req.PartialEnd)
	if err != nil {
		return nil, err
	}
	if start.Before(request.StartDate) || end.After(request.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "partial range must lie within the request range")
	}

	days, err := BillableDays(start, end, models.KindLeave, "")
	if err != nil {
		return nil, err
	}
	if days.GreaterThanOrEqual(request.TotalDays) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "partial range covers the whole request, cancel it in full instead")
	}

	return &repository.PartialCancel{Start: start, End: end, Days: days}, nil
}

func (s *CancellationService) cancellationWindowClosed(endDate time.Time) bool {
	today := s.now().UTC().Truncate(24 * time.Hour)
	return today.After(endDate)
}

func requireOwner(claims *models.JWTClaims, studentID string) error {
	if claims == nil || claims.Role != models.RoleStudent || claims.StudentID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the owning student may cancel a request")
	}
	return nil
}
