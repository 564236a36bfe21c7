package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-leave-api/internal/dto"
	"github.com/noah-isme/sma-leave-api/internal/middleware"
	"github.com/noah-isme/sma-leave-api/internal/models"
	"github.com/noah-isme/sma-leave-api/internal/service"
)

type certificateServiceMock struct {
	od         *models.ODRequest
	lastUpload service.CertificateUpload
	sweep      models.SweepResult
	overdue    int64
	err        error
}

func (m *certificateServiceMock) Upload(ctx context.Context, claims *models.JWTClaims, id string, upload service.CertificateUpload) (*models.ODRequest, error) {
	m.lastUpload = upload
	return m.od, m.err
}

func (m *certificateServiceMock) Verify(ctx context.Context, claims *models.JWTClaims, id string, req dto.CertificateVerificationRequest) (*models.ODRequest, error) {
	return m.od, m.err
}

func (m *certificateServiceMock) RunSweep(ctx context.Context, now time.Time) (models.SweepResult, error) {
	return m.sweep, m.err
}

func (m *certificateServiceMock) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	return m.overdue, m.err
}

func buildCertificateRouter(mock *certificateServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(middleware.ContextUserKey, &models.JWTClaims{
				UserID:    "test-user",
				Role:      models.UserRole(role),
				StudentID: c.GetHeader("X-Test-Student"),
				StaffID:   c.GetHeader("X-Test-Staff"),
			})
		}
		c.Next()
	})

	h := NewCertificateHandler(mock)
	od := router.Group("/requests/od")
	od.POST("/:id/certificate", middleware.RequireRoles(models.RoleStudent), h.Upload)
	od.POST("/:id/certificate/verification", middleware.RequireStaff(), h.Verify)
	admin := router.Group("/od/certificates", middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/sweep", h.Sweep)
	admin.POST("/overdue", h.MarkOverdue)
	return router
}

func multipartFile(t *testing.T, field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="` + field + `"; filename="` + filename + `"`}
	header["Content-Type"] = []string{contentType}
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestCertificateUploadEndpoint(t *testing.T) {
	uploaded := sampleOD()
	uploaded.Status = models.StatusApproved
	uploaded.CertificateStatus = models.CertPendingVerification
	mock := &certificateServiceMock{od: uploaded}
	router := buildCertificateRouter(mock)

	body, contentType := multipartFile(t, "file", "certificate.pdf", "application/pdf", []byte("%PDF-1.4"))
	req, _ := http.NewRequest(http.MethodPost, "/requests/od/od-1/certificate", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Test-Role", string(models.RoleStudent))
	req.Header.Set("X-Test-Student", "student-1")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "certificate.pdf", mock.lastUpload.Filename)
	require.Equal(t, "application/pdf", mock.lastUpload.ContentType)
	require.Contains(t, resp.Body.String(), `"PENDING_VERIFICATION"`)
}

func TestCertificateUploadEndpointMissingFile(t *testing.T) {
	router := buildCertificateRouter(&certificateServiceMock{od: sampleOD()})

	req, _ := http.NewRequest(http.MethodPost, "/requests/od/od-1/certificate", bytes.NewBufferString(""))
	req.Header.Set("X-Test-Role", string(models.RoleStudent))
	resp := performRequest(router, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCertificateVerifyEndpoint(t *testing.T) {
	verified := sampleOD()
	verified.CertificateStatus = models.CertApproved
	router := buildCertificateRouter(&certificateServiceMock{od: verified})

	req, _ := http.NewRequest(http.MethodPost, "/requests/od/od-1/certificate/verification",
		bytes.NewBufferString(`{"approve":true}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleTutor))
	req.Header.Set("X-Test-Staff", "tutor-1")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestCertificateSweepEndpointAdminOnly(t *testing.T) {
	mock := &certificateServiceMock{sweep: models.SweepResult{AutoRejected: 2, Reminded: 3}}
	router := buildCertificateRouter(mock)

	req, _ := http.NewRequest(http.MethodPost, "/od/certificates/sweep", nil)
	req.Header.Set("X-Test-Role", string(models.RoleTutor))
	resp := performRequest(router, req)
	require.Equal(t, http.StatusForbidden, resp.Code)

	req, _ = http.NewRequest(http.MethodPost, "/od/certificates/sweep", nil)
	req.Header.Set("X-Test-Role", string(models.RoleAdmin))
	resp = performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"auto_rejected":2`)
	require.Contains(t, resp.Body.String(), `"reminded":3`)
}

func TestCertificateMarkOverdueEndpoint(t *testing.T) {
	router := buildCertificateRouter(&certificateServiceMock{overdue: 4})

	req, _ := http.NewRequest(http.MethodPost, "/od/certificates/overdue", nil)
	req.Header.Set("X-Test-Role", string(models.RoleAdmin))
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"marked_overdue":4`)
}
