package handler

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-leave-api/internal/dto"
	"github.com/noah-isme/sma-leave-api/internal/middleware"
	"github.com/noah-isme/sma-leave-api/internal/models"
	"github.com/noah-isme/sma-leave-api/internal/service"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
)

type approvalServiceMock struct {
	leave      *models.LeaveRequest
	od         *models.ODRequest
	lastAction models.DecisionAction
	err        error
}

func (m *approvalServiceMock) DecideLeave(ctx context.Context, claims *models.JWTClaims, id string, req dto.DecisionRequest) (*models.LeaveRequest, error) {
	m.lastAction = req.Action
	return m.leave, m.err
}

func (m *approvalServiceMock) DecideOD(ctx context.Context, claims *models.JWTClaims, id string, req dto.DecisionRequest) (*models.ODRequest, error) {
	m.lastAction = req.Action
	return m.od, m.err
}

func (m *approvalServiceMock) RetryLeave(ctx context.Context, claims *models.JWTClaims, id string) (*models.LeaveRequest, error) {
	return m.leave, m.err
}

func (m *approvalServiceMock) RetryOD(ctx context.Context, claims *models.JWTClaims, id string) (*models.ODRequest, error) {
	return m.od, m.err
}

type cancellationServiceMock struct {
	leave *models.LeaveRequest
	od    *models.ODRequest
	err   error
}

func (m *cancellationServiceMock) RequestLeaveCancellation(ctx context.Context, claims *models.JWTClaims, id string, req dto.CancellationRequest) (*models.LeaveRequest, error) {
	return m.leave, m.err
}

func (m *cancellationServiceMock) RequestODCancellation(ctx context.Context, claims *models.JWTClaims, id string, req dto.CancellationRequest) (*models.ODRequest, error) {
	return m.od, m.err
}

func (m *cancellationServiceMock) DecideLeaveCancellation(ctx context.Context, claims *models.JWTClaims, id string, req dto.CancellationDecisionRequest) (*models.LeaveRequest, error) {
	return m.leave, m.err
}

func (m *cancellationServiceMock) DecideODCancellation(ctx context.Context, claims *models.JWTClaims, id string, req dto.CancellationDecisionRequest) (*models.ODRequest, error) {
	return m.od, m.err
}

func buildDecisionRouter(approvals *approvalServiceMock, cancellations *cancellationServiceMock) *gin.Engine {
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

	h := NewDecisionHandler(approvals, cancellations, service.NewMetricsService())
	leave := router.Group("/requests/leave")
	leave.POST("/:id/decision", middleware.RequireStaff(), h.DecideLeave)
	leave.POST("/:id/retry", middleware.RequireRoles(models.RoleStudent), h.RetryLeave)
	leave.POST("/:id/cancellation", middleware.RequireRoles(models.RoleStudent), h.CancelLeave)
	leave.POST("/:id/cancellation/decision", middleware.RequireStaff(), h.DecideLeaveCancellation)
	od := router.Group("/requests/od")
	od.POST("/:id/decision", middleware.RequireStaff(), h.DecideOD)
	od.POST("/:id/retry", middleware.RequireRoles(models.RoleStudent), h.RetryOD)
	od.POST("/:id/cancellation", middleware.RequireRoles(models.RoleStudent), h.CancelOD)
	od.POST("/:id/cancellation/decision", middleware.RequireStaff(), h.DecideODCancellation)
	return router
}

func TestDecideLeaveEndpoint(t *testing.T) {
	approved := sampleLeave()
	approved.Status = models.StatusApproved
	approvals := &approvalServiceMock{leave: approved}
	router := buildDecisionRouter(approvals, &cancellationServiceMock{})

	req, _ := http.NewRequest(http.MethodPost, "/requests/leave/req-1/decision",
		bytes.NewBufferString(`{"action":"APPROVE"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleTutor))
	req.Header.Set("X-Test-Staff", "tutor-1")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, models.DecisionApprove, approvals.lastAction)
	require.Contains(t, resp.Body.String(), `"APPROVED"`)
}

func TestDecideLeaveEndpointStudentForbidden(t *testing.T) {
	router := buildDecisionRouter(&approvalServiceMock{leave: sampleLeave()}, &cancellationServiceMock{})

	req, _ := http.NewRequest(http.MethodPost, "/requests/leave/req-1/decision",
		bytes.NewBufferString(`{"action":"APPROVE"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleStudent))
	resp := performRequest(router, req)
	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestDecideLeaveEndpointPropagatesConflict(t *testing.T) {
	approvals := &approvalServiceMock{err: appErrors.ErrStaleStatus}
	router := buildDecisionRouter(approvals, &cancellationServiceMock{})

	req, _ := http.NewRequest(http.MethodPost, "/requests/leave/req-1/decision",
		bytes.NewBufferString(`{"action":"REJECT","reason":"dates clash"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleAdmin))
	resp := performRequest(router, req)
	require.Equal(t, http.StatusConflict, resp.Code)
}

func TestRetryLeaveEndpoint(t *testing.T) {
	retried := sampleLeave()
	retried.Status = models.StatusRetried
	router := buildDecisionRouter(&approvalServiceMock{leave: retried}, &cancellationServiceMock{})

	req, _ := http.NewRequest(http.MethodPost, "/requests/leave/req-1/retry", nil)
	req.Header.Set("X-Test-Role", string(models.RoleStudent))
	req.Header.Set("X-Test-Student", "student-1")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"RETRIED"`)
}

func TestRetryEndpointStaffForbidden(t *testing.T) {
	router := buildDecisionRouter(&approvalServiceMock{leave: sampleLeave()}, &cancellationServiceMock{})

	req, _ := http.NewRequest(http.MethodPost, "/requests/od/od-1/retry", nil)
	req.Header.Set("X-Test-Role", string(models.RoleAdmin))
	resp := performRequest(router, req)
	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestCancelLeaveEndpoint(t *testing.T) {
	pending := sampleLeave()
	pending.Status = models.StatusCancellationPending
	cancellations := &cancellationServiceMock{leave: pending}
	router := buildDecisionRouter(&approvalServiceMock{}, cancellations)

	req, _ := http.NewRequest(http.MethodPost, "/requests/leave/req-1/cancellation",
		bytes.NewBufferString(`{"reason":"plans changed"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleStudent))
	req.Header.Set("X-Test-Student", "student-1")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"CANCELLATION_PENDING"`)
}

func TestDecideODCancellationEndpoint(t *testing.T) {
	cancelled := sampleOD()
	cancelled.Status = models.StatusCancelled
	cancellations := &cancellationServiceMock{od: cancelled}
	router := buildDecisionRouter(&approvalServiceMock{}, cancellations)

	req, _ := http.NewRequest(http.MethodPost, "/requests/od/od-1/cancellation/decision",
		bytes.NewBufferString(`{"approve":true}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleAdmin))
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"CANCELLED"`)
}
