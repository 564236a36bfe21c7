package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-leave-api/internal/dto"
	"github.com/noah-isme/sma-leave-api/internal/models"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
)

type exceptionDayRepository interface {
	Create(ctx context.Context, day *models.ExceptionDay) error
	List(ctx context.Context, from, to *time.Time) ([]models.ExceptionDay, error)
	Delete(ctx context.Context, id string) error
}

type semesterRepository interface {
	FindDateRange(ctx context.Context, batch string, semester int) (*models.Semester, error)
}

// CalendarAdminService manages exception days and serves semester date
// ranges.
type CalendarAdminService struct {
	days      exceptionDayRepository
	semesters semesterRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCalendarAdminService constructs a CalendarAdminService instance.
func NewCalendarAdminService(days exceptionDayRepository, semesters semesterRepository, validate *validator.Validate, logger *zap.Logger) *CalendarAdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CalendarAdminService{days: days, semesters: semesters, validator: validate, logger: logger}
}

// CreateExceptionDay blocks a date for all future submissions.
func (s *CalendarAdminService) CreateExceptionDay(ctx context.Context, req dto.CreateExceptionDayRequest) (*models.ExceptionDay, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exception day payload")
	}

	date, err := dto.ParseDate(req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date")
	}

	day := &models.ExceptionDay{
		Date:        date,
		Reason:      req.Reason,
		Description: req.Description,
	}
	if err := s.days.Create(ctx, day); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, appErrors.Clone(appErrors.ErrConflict, "date is already blocked")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exception day")
	}

	s.logger.Info("exception day created", zap.Time("date", date))
	return day, nil
}

// ListExceptionDays returns blocked dates, optionally constrained to a range.
func (s *CalendarAdminService) ListExceptionDays(ctx context.Context, fromRaw, toRaw string) ([]models.ExceptionDay, error) {
	var from, to *time.Time
	if fromRaw != "" && toRaw != "" {
		f, err := dto.ParseDate(fromRaw)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid from date")
		}
		t, err := dto.ParseDate(toRaw)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid to date")
		}
		from, to = &f, &t
	}
	return s.days.List(ctx, from, to)
}

// DeleteExceptionDay unblocks a date.
func (s *CalendarAdminService) DeleteExceptionDay(ctx context.Context, id string) error {
	return s.days.Delete(ctx, id)
}

// SemesterDateRange resolves the academic range for a batch + semester pair.
func (s *CalendarAdminService) SemesterDateRange(ctx context.Context, batch string, semester int) (*models.Semester, error) {
	if batch == "" || semester <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch and semester are required")
	}
	row, err := s.semesters.FindDateRange(ctx, batch, semester)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	return row, nil
}
