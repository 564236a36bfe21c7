package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-leave-api/internal/dto"
	"github.com/noah-isme/sma-leave-api/internal/models"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
)

// autoRejectReason is stamped on requests whose certificate never arrived.
const autoRejectReason = "Certificate not submitted within the allowed window"

type certificateRepository interface {
	GetByID(ctx context.Context, id string) (*models.ODRequest, error)
	AttachCertificate(ctx context.Context, id, url string) error
	ResolveCertificate(ctx context.Context, id string, status models.CertificateStatus, reason *string) error
	ListAwaitingCertificate(ctx context.Context, asOf time.Time) ([]models.ODRequest, error)
	AutoReject(ctx context.Context, id, reason string) (bool, error)
	StampNotification(ctx context.Context, id string, day time.Time) (bool, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

type certificateStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Delete(filename string) error
}

type sweepObserver interface {
	ObserveSweep(result models.SweepResult, duration time.Duration)
}

// CertificateUpload carries one uploaded certificate file.
type CertificateUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// CertificatePolicy bundles the upload constraints.
type CertificatePolicy struct {
	UploadGraceDays  int
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// CertificateService manages the OD certificate sub-lifecycle: upload,
// verification and the deadline sweep.
type CertificateService struct {
	ods     certificateRepository
	store   certificateStore
	metrics sweepObserver
	policy  CertificatePolicy
	logger  *zap.Logger
}

// NewCertificateService constructs a CertificateService instance.
func NewCertificateService(ods certificateRepository, store certificateStore, metrics sweepObserver, policy CertificatePolicy, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateService{ods: ods, store: store, metrics: metrics, policy: policy, logger: logger}
}

// Upload stores a certificate file for an approved OD request and moves it to
// pending verification.
func (s *CertificateService) Upload(ctx context.Context, claims *models.JWTClaims, id string, upload CertificateUpload) (*models.ODRequest, error) {
	request, err := s.ods.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "od request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load od request")
	}
	if claims == nil || claims.Role != models.RoleStudent || claims.StudentID != request.StudentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning student may upload a certificate")
	}
	if request.Status != models.StatusApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict, "certificates attach to approved requests only")
	}
	if request.CertificateStatus != models.CertPendingUpload {
		return nil, appErrors.WithDetails(appErrors.ErrConflict, map[string]interface{}{
			"certificate_status": request.CertificateStatus,
		})
	}
	if err := s.checkFile(upload); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(upload.Filename))
	stored := fmt.Sprintf("od/%s/%s%s", request.ID, uuid.NewString(), ext)
	path, err := s.store.SaveStream(stored, upload.Reader)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
	}

	if err := s.ods.AttachCertificate(ctx, request.ID, path); err != nil {
		// The row moved under us; drop the orphaned file.
		if delErr := s.store.Delete(path); delErr != nil {
			s.logger.Warn("failed to remove orphaned certificate file",
				zap.String("path", path), zap.Error(delErr))
		}
		return nil, err
	}

	s.logger.Info("certificate uploaded",
		zap.String("request_id", request.ID),
		zap.String("path", path))
	return s.ods.GetByID(ctx, id)
}

// Verify resolves an uploaded certificate. Rejection resets nothing on the
// request itself; the student may re-upload only after staff action.
func (s *CertificateService) Verify(ctx context.Context, claims *models.JWTClaims, id string, req dto.CertificateVerificationRequest) (*models.ODRequest, error) {
	request, err := s.ods.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "od request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load od request")
	}
	if err := s.authorizeVerification(claims, request.TutorID); err != nil {
		return nil, err
	}
	if request.CertificateStatus != models.CertPendingVerification {
		return nil, appErrors.WithDetails(appErrors.ErrConflict, map[string]interface{}{
			"certificate_status": request.CertificateStatus,
		})
	}

	status := models.CertApproved
	var reason *string
	if !req.Approve {
		trimmed := strings.TrimSpace(req.Reason)
		if trimmed == "" {
			return nil, appErrors.ErrReasonRequired
		}
		status = models.CertRejected
		reason = &trimmed
	}

	if err := s.ods.ResolveCertificate(ctx, request.ID, status, reason); err != nil {
		return nil, err
	}

	s.logger.Info("certificate verified",
		zap.String("request_id", request.ID),
		zap.String("status", string(status)))
	return s.ods.GetByID(ctx, id)
}

// RunSweep walks approved requests still awaiting a certificate whose range
// has ended. Requests past their upload deadline are auto-rejected; the rest
// get at most one reminder stamp per day, so re-runs are idempotent.
func (s *CertificateService) RunSweep(ctx context.Context, now time.Time) (models.SweepResult, error) {
	started := time.Now()
	today := now.UTC().Truncate(24 * time.Hour)

	pending, err := s.ods.ListAwaitingCertificate(ctx, today)
	if err != nil {
		return models.SweepResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending certificates")
	}

	var result models.SweepResult
	for _, request := range pending {
		deadline := certificateDeadline(request.EndDate, s.policy.UploadGraceDays)
		if request.UploadDeadline != nil {
			deadline = *request.UploadDeadline
		}

		if today.After(deadline) {
			ok, err := s.ods.AutoReject(ctx, request.ID, autoRejectReason)
			if err != nil {
				s.logger.Error("certificate auto-reject failed",
					zap.String("request_id", request.ID), zap.Error(err))
				continue
			}
			if ok {
				result.AutoRejected++
				s.logger.Info("od request auto-rejected",
					zap.String("request_id", request.ID),
					zap.Time("deadline", deadline))
			}
			continue
		}

		ok, err := s.ods.StampNotification(ctx, request.ID, today)
		if err != nil {
			s.logger.Error("certificate reminder stamp failed",
				zap.String("request_id", request.ID), zap.Error(err))
			continue
		}
		if ok {
			result.Reminded++
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveSweep(result, time.Since(started))
	}
	s.logger.Info("certificate sweep finished",
		zap.Int("auto_rejected", result.AutoRejected),
		zap.Int("reminded", result.Reminded),
		zap.Int("scanned", len(pending)))
	return result, nil
}

// MarkOverdue flips certificates past their upload deadline to Overdue
// without rejecting the request, for reporting views.
func (s *CertificateService) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.ods.MarkOverdue(ctx, now.UTC().Truncate(24*time.Hour))
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark certificates overdue")
	}
	if count > 0 {
		s.logger.Info("certificates marked overdue", zap.Int64("count", count))
	}
	return count, nil
}

func (s *CertificateService) authorizeVerification(claims *models.JWTClaims, tutorID string) error {
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
		return appErrors.Clone(appErrors.ErrForbidden, "request is assigned to another tutor")
	default:
		return appErrors.Clone(appErrors.ErrForbidden, "only staff may verify certificates")
	}
}

func (s *CertificateService) checkFile(upload CertificateUpload) error {
	if upload.Reader == nil {
		return appErrors.Clone(appErrors.ErrValidation, "certificate file is required")
	}
	if s.policy.MaxFileSizeBytes > 0 && upload.Size > s.policy.MaxFileSizeBytes {
		return appErrors.WithDetails(appErrors.ErrValidation, map[string]interface{}{
			"max_bytes": s.policy.MaxFileSizeBytes,
			"got_bytes": upload.Size,
		})
	}
	if len(s.policy.AllowedMIMEs) == 0 {
		return nil
	}
	for _, mime := range s.policy.AllowedMIMEs {
		if strings.EqualFold(mime, upload.ContentType) {
			return nil
		}
	}
	return appErrors.WithDetails(appErrors.ErrValidation, map[string]interface{}{
		"content_type": upload.ContentType,
		"allowed":      s.policy.AllowedMIMEs,
	})
}
