package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-leave-api/internal/dto"
	"github.com/noah-isme/sma-leave-api/internal/models"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
)

type leaveRequestRepository interface {
	Create(ctx context.Context, request *models.LeaveRequest) error
	GetByID(ctx context.Context, id string) (*models.LeaveRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.LeaveRequest, error)
}

type odRequestRepository interface {
	Create(ctx context.Context, request *models.ODRequest) error
	GetByID(ctx context.Context, id string) (*models.ODRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.ODRequest, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// RequestPolicy bundles the lifecycle knobs shared by the request services.
type RequestPolicy struct {
	// TutorDecisionLimitDays caps the leave size a tutor may decide alone.
	TutorDecisionLimitDays float64
	// ODAdminDelay keeps freshly created pending OD requests out of admin
	// listings so tutors get the first look.
	ODAdminDelay time.Duration
	// CertUploadGraceDays sets the certificate deadline after an OD range ends.
	CertUploadGraceDays int
}

// RequestService handles submission and retrieval of leave and OD requests.
type RequestService struct {
	leaves    leaveRequestRepository
	ods       odRequestRepository
	students  studentReader
	policy    RequestPolicy
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewRequestService constructs a RequestService instance.
func NewRequestService(leaves leaveRequestRepository, ods odRequestRepository, students studentReader, policy RequestPolicy, validate *validator.Validate, logger *zap.Logger) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RequestService{
		leaves:    leaves,
		ods:       ods,
		students:  students,
		policy:    policy,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateLeave submits a new leave request for the authenticated student.
func (s *RequestService) CreateLeave(ctx context.Context, claims *models.JWTClaims, req dto.CreateLeaveRequest) (*models.LeaveRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave request payload")
	}

	student, err := s.requireStudent(ctx, claims)
	if err != nil {
		return nil, err
	}

	start, end, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	total, err := BillableDays(start, end, models.KindLeave, "")
	if err != nil {
		return nil, err
	}

	request := &models.LeaveRequest{
		StudentID:   student.ID,
		TutorID:     student.TutorID,
		Subject:     req.Subject,
		Description: req.Description,
		StartDate:   start,
		EndDate:     end,
		TotalDays:   total,
	}
	if err := s.leaves.Create(ctx, request); err != nil {
		return nil, err
	}

	s.logger.Info("leave request created",
		zap.String("request_id", request.ID),
		zap.String("student_id", student.ID),
		zap.String("total_days", total.String()))
	return request, nil
}

// CreateOD submits a new on-duty request for the authenticated student.
func (s *RequestService) CreateOD(ctx context.Context, claims *models.JWTClaims, req dto.CreateODRequest) (*models.ODRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid od request payload")
	}

	student, err := s.requireStudent(ctx, claims)
	if err != nil {
		return nil, err
	}

	start, end, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	total, err := BillableDays(start, end, models.KindOD, req.DurationType)
	if err != nil {
		return nil, err
	}

	request := &models.ODRequest{
		StudentID:    student.ID,
		TutorID:      student.TutorID,
		Purpose:      req.Purpose,
		Destination:  req.Destination,
		Description:  req.Description,
		StartDate:    start,
		EndDate:      end,
		DurationType: req.DurationType,
		TotalDays:    total,
	}
	if err := s.ods.Create(ctx, request); err != nil {
		return nil, err
	}

	s.logger.Info("od request created",
		zap.String("request_id", request.ID),
		zap.String("student_id", student.ID),
		zap.String("duration_type", string(req.DurationType)))
	return request, nil
}

// ListLeave returns leave requests visible to the caller.
func (s *RequestService) ListLeave(ctx context.Context, claims *models.JWTClaims, filter models.RequestFilter) ([]models.LeaveRequest, error) {
	scoped, err := s.scopeFilter(claims, filter, models.KindLeave)
	if err != nil {
		return nil, err
	}
	return s.leaves.List(ctx, scoped)
}

// ListOD returns OD requests visible to the caller. Admin listings exclude
// pending requests created within the configured visibility delay.
func (s *RequestService) ListOD(ctx context.Context, claims *models.JWTClaims, filter models.RequestFilter) ([]models.ODRequest, error) {
	scoped, err := s.scopeFilter(claims, filter, models.KindOD)
	if err != nil {
		return nil, err
	}
	return s.ods.List(ctx, scoped)
}

// GetLeave loads one leave request, enforcing caller visibility.
func (s *RequestService) GetLeave(ctx context.Context, claims *models.JWTClaims, id string) (*models.LeaveRequest, error) {
	request, err := s.leaves.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}
	if err := s.authorizeView(claims, request.StudentID, request.TutorID); err != nil {
		return nil, err
	}
	return request, nil
}

// GetOD loads one OD request, enforcing caller visibility.
func (s *RequestService) GetOD(ctx context.Context, claims *models.JWTClaims, id string) (*models.ODRequest, error) {
	request, err := s.ods.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "od request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load od request")
	}
	if err := s.authorizeView(claims, request.StudentID, request.TutorID); err != nil {
		return nil, err
	}
	return request, nil
}

func (s *RequestService) requireStudent(ctx context.Context, claims *models.JWTClaims) (*models.Student, error) {
	if claims == nil || claims.Role != models.RoleStudent || claims.StudentID == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may submit requests")
	}
	student, err := s.students.FindByID(ctx, claims.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "student account is inactive")
	}
	return student, nil
}

func (s *RequestService) scopeFilter(claims *models.JWTClaims, filter models.RequestFilter, kind models.RequestKind) (models.RequestFilter, error) {
	if claims == nil {
		return filter, appErrors.Clone(appErrors.ErrUnauthorized, "missing claims")
	}
	switch claims.Role {
	case models.RoleStudent:
		filter.StudentID = claims.StudentID
		filter.TutorID = ""
	case models.RoleTutor:
		filter.TutorID = claims.StaffID
	case models.RoleAdmin:
		if kind == models.KindOD && s.policy.ODAdminDelay > 0 {
			cutoff := s.now().UTC().Add(-s.policy.ODAdminDelay)
			filter.MaxCreatedAt = &cutoff
		}
	default:
		return filter, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}
	return filter, nil
}

func (s *RequestService) authorizeView(claims *models.JWTClaims, studentID, tutorID string) error {
	if claims == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing claims")
	}
	switch claims.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTutor:
		if claims.StaffID == tutorID {
			return nil
		}
	case models.RoleStudent:
		if claims.StudentID == studentID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "request belongs to another account")
}

func parseRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := dto.ParseDate(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid start date")
	}
	end, err := dto.ParseDate(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid end date")
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "start date must not be after end date")
	}
	return start, end, nil
}
