package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-leave-api/internal/dto"
	"github.com/noah-isme/sma-leave-api/internal/middleware"
	"github.com/noah-isme/sma-leave-api/internal/models"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
)

type requestServiceMock struct {
	leave      *models.LeaveRequest
	od         *models.ODRequest
	lastFilter models.RequestFilter
	err        error
}

func (m *requestServiceMock) CreateLeave(ctx context.Context, claims *models.JWTClaims, req dto.CreateLeaveRequest) (*models.LeaveRequest, error) {
	return m.leave, m.err
}

func (m *requestServiceMock) CreateOD(ctx context.Context, claims *models.JWTClaims, req dto.CreateODRequest) (*models.ODRequest, error) {
	return m.od, m.err
}

func (m *requestServiceMock) ListLeave(ctx context.Context, claims *models.JWTClaims, filter models.RequestFilter) ([]models.LeaveRequest, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	return []models.LeaveRequest{*m.leave}, nil
}

func (m *requestServiceMock) ListOD(ctx context.Context, claims *models.JWTClaims, filter models.RequestFilter) ([]models.ODRequest, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	return []models.ODRequest{*m.od}, nil
}

func (m *requestServiceMock) GetLeave(ctx context.Context, claims *models.JWTClaims, id string) (*models.LeaveRequest, error) {
	return m.leave, m.err
}

func (m *requestServiceMock) GetOD(ctx context.Context, claims *models.JWTClaims, id string) (*models.ODRequest, error) {
	return m.od, m.err
}

func sampleLeave() *models.LeaveRequest {
	return &models.LeaveRequest{
		ID:        "req-1",
		StudentID: "student-1",
		TutorID:   "tutor-1",
		Subject:   "family function",
		TotalDays: decimal.RequireFromString("3"),
		Status:    models.StatusPending,
	}
}

func sampleOD() *models.ODRequest {
	return &models.ODRequest{
		ID:                "od-1",
		StudentID:         "student-1",
		TutorID:           "tutor-1",
		Purpose:           "symposium",
		Destination:       "city campus",
		DurationType:      models.DurationFullDay,
		TotalDays:         decimal.RequireFromString("3"),
		Status:            models.StatusPending,
		CertificateStatus: models.CertPendingUpload,
	}
}

func buildRequestRouter(mock *requestServiceMock) *gin.Engine {
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

	h := NewRequestHandler(mock)
	leave := router.Group("/requests/leave")
	leave.POST("", middleware.RequireRoles(models.RoleStudent), h.CreateLeave)
	leave.GET("", h.ListLeave)
	leave.GET("/:id", h.GetLeave)
	od := router.Group("/requests/od")
	od.POST("", middleware.RequireRoles(models.RoleStudent), h.CreateOD)
	od.GET("", h.ListOD)
	od.GET("/:id", h.GetOD)
	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestCreateLeaveEndpoint(t *testing.T) {
	mock := &requestServiceMock{leave: sampleLeave()}
	router := buildRequestRouter(mock)

	payload := `{"subject":"family function","start_date":"2025-08-05","end_date":"2025-08-07"}`
	req, _ := http.NewRequest(http.MethodPost, "/requests/leave", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleStudent))
	req.Header.Set("X-Test-Student", "student-1")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusCreated, resp.Code)
	require.Contains(t, resp.Body.String(), `"req-1"`)
}

func TestCreateLeaveEndpointRejectsStaff(t *testing.T) {
	router := buildRequestRouter(&requestServiceMock{leave: sampleLeave()})

	payload := `{"subject":"x","start_date":"2025-08-05","end_date":"2025-08-07"}`
	req, _ := http.NewRequest(http.MethodPost, "/requests/leave", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleTutor))
	resp := performRequest(router, req)
	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestCreateLeaveEndpointUnauthorized(t *testing.T) {
	router := buildRequestRouter(&requestServiceMock{leave: sampleLeave()})

	req, _ := http.NewRequest(http.MethodPost, "/requests/leave", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestListLeaveEndpointParsesFilter(t *testing.T) {
	mock := &requestServiceMock{leave: sampleLeave()}
	router := buildRequestRouter(mock)

	req, _ := http.NewRequest(http.MethodGet, "/requests/leave?status=pending,approved&limit=10&offset=5", nil)
	req.Header.Set("X-Test-Role", string(models.RoleAdmin))
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, []models.RequestStatus{models.StatusPending, models.StatusApproved}, mock.lastFilter.Status)
	require.Equal(t, 10, mock.lastFilter.Limit)
	require.Equal(t, 5, mock.lastFilter.Offset)
}

func TestGetODEndpointNotFound(t *testing.T) {
	mock := &requestServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "od request not found")}
	router := buildRequestRouter(mock)

	req, _ := http.NewRequest(http.MethodGet, "/requests/od/od-404", nil)
	req.Header.Set("X-Test-Role", string(models.RoleAdmin))
	resp := performRequest(router, req)
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Contains(t, resp.Body.String(), `"NOT_FOUND"`)
}

func TestCreateODEndpoint(t *testing.T) {
	mock := &requestServiceMock{od: sampleOD()}
	router := buildRequestRouter(mock)

	payload := `{"purpose":"symposium","destination":"city campus","start_date":"2025-08-08","end_date":"2025-08-11","duration_type":"FULL_DAY"}`
	req, _ := http.NewRequest(http.MethodPost, "/requests/od", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleStudent))
	req.Header.Set("X-Test-Student", "student-1")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusCreated, resp.Code)
	require.Contains(t, resp.Body.String(), `"PENDING_UPLOAD"`)
}
