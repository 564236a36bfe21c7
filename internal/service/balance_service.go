package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-leave-api/internal/models"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
)

type balanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	GetBalance(ctx context.Context, studentID string) (*models.BalanceSummary, error)
	RecomputeLeaveTaken(ctx context.Context, studentID string) (decimal.Decimal, error)
}

type balanceCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// BalanceService serves the cached leave-balance read model.
type BalanceService struct {
	students balanceRepository
	cache    balanceCache
	ttl      time.Duration
	logger   *zap.Logger
}

// NewBalanceService constructs a BalanceService instance.
func NewBalanceService(students balanceRepository, cache balanceCache, ttl time.Duration, logger *zap.Logger) *BalanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceService{students: students, cache: cache, ttl: ttl, logger: logger}
}

func balanceCacheKey(studentID string) string {
	return fmt.Sprintf("balance:%s", studentID)
}

// Get returns the leave balance for a student, enforcing caller visibility.
// Students may only read their own balance; tutors only balances of students
// they supervise.
func (s *BalanceService) Get(ctx context.Context, claims *models.JWTClaims, studentID string) (*models.BalanceSummary, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing claims")
	}
	if claims.Role == models.RoleStudent && claims.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "balance belongs to another student")
	}
	if claims.Role == models.RoleTutor {
		student, err := s.students.FindByID(ctx, studentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		if student.TutorID != claims.StaffID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "student is assigned to another tutor")
		}
	}

	key := balanceCacheKey(studentID)
	if s.cache != nil {
		var cached models.BalanceSummary
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("balance cache read failed", zap.Error(err))
		}
	}

	summary, err := s.students.GetBalance(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load balance")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.ttl); err != nil {
			s.logger.Warn("balance cache write failed", zap.Error(err))
		}
	}
	return summary, nil
}

// Invalidate drops the cached balance for a student after a mutation.
func (s *BalanceService) Invalidate(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, balanceCacheKey(studentID)); err != nil {
		s.logger.Warn("balance cache invalidation failed",
			zap.String("student_id", studentID), zap.Error(err))
	}
}

// Recompute derives the balance from the request history, used to detect or
// repair drift of the stored counter.
func (s *BalanceService) Recompute(ctx context.Context, studentID string) (decimal.Decimal, error) {
	total, err := s.students.RecomputeLeaveTaken(ctx, studentID)
	if err != nil {
		return decimal.Zero, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recompute balance")
	}
	return total, nil
}
