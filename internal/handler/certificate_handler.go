package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-leave-api/internal/dto"
	"github.com/noah-isme/sma-leave-api/internal/models"
	"github.com/noah-isme/sma-leave-api/internal/service"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
	"github.com/noah-isme/sma-leave-api/pkg/response"
)

type certificateService interface {
	Upload(ctx context.Context, claims *models.JWTClaims, id string, upload service.CertificateUpload) (*models.ODRequest, error)
	Verify(ctx context.Context, claims *models.JWTClaims, id string, req dto.CertificateVerificationRequest) (*models.ODRequest, error)
	RunSweep(ctx context.Context, now time.Time) (models.SweepResult, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}

// CertificateHandler exposes the OD certificate sub-lifecycle.
type CertificateHandler struct {
	service certificateService
}

// NewCertificateHandler constructs the handler.
func NewCertificateHandler(service certificateService) *CertificateHandler {
	return &CertificateHandler{service: service}
}

// Upload godoc
// @Summary Upload an OD certificate
// @Tags Certificates
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Request ID"
// @Param file formData file true "Certificate file"
// @Success 200 {object} response.Envelope
// @Router /requests/od/{id}/certificate [post]
func (h *CertificateHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "certificate file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read uploaded file"))
		return
	}
	defer file.Close() //nolint:errcheck

	upload := service.CertificateUpload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Reader:      file,
	}
	request, err := h.service.Upload(c.Request.Context(), claims, c.Param("id"), upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Verify godoc
// @Summary Verify an uploaded OD certificate
// @Tags Certificates
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.CertificateVerificationRequest true "Verification payload"
// @Success 200 {object} response.Envelope
// @Router /requests/od/{id}/certificate/verification [post]
func (h *CertificateHandler) Verify(c *gin.Context) {
	var req dto.CertificateVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid verification payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Verify(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Sweep godoc
// @Summary Run the certificate deadline sweep now
// @Tags Certificates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /od/certificates/sweep [post]
func (h *CertificateHandler) Sweep(c *gin.Context) {
	result, err := h.service.RunSweep(c.Request.Context(), time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// MarkOverdue godoc
// @Summary Flip certificates past their deadline to overdue
// @Tags Certificates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /od/certificates/overdue [post]
func (h *CertificateHandler) MarkOverdue(c *gin.Context) {
	count, err := h.service.MarkOverdue(c.Request.Context(), time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"marked_overdue": count}, nil)
}
