package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-leave-api/internal/dto"
	"github.com/noah-isme/sma-leave-api/internal/models"
	"github.com/noah-isme/sma-leave-api/internal/service"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
	"github.com/noah-isme/sma-leave-api/pkg/response"
)

type approvalService interface {
	DecideLeave(ctx context.Context, claims *models.JWTClaims, id string, req dto.DecisionRequest) (*models.LeaveRequest, error)
	DecideOD(ctx context.Context, claims *models.JWTClaims, id string, req dto.DecisionRequest) (*models.ODRequest, error)
	RetryLeave(ctx context.Context, claims *models.JWTClaims, id string) (*models.LeaveRequest, error)
	RetryOD(ctx context.Context, claims *models.JWTClaims, id string) (*models.ODRequest, error)
}

type cancellationService interface {
	RequestLeaveCancellation(ctx context.Context, claims *models.JWTClaims, id string, req dto.CancellationRequest) (*models.LeaveRequest, error)
	RequestODCancellation(ctx context.Context, claims *models.JWTClaims, id string, req dto.CancellationRequest) (*models.ODRequest, error)
	DecideLeaveCancellation(ctx context.Context, claims *models.JWTClaims, id string, req dto.CancellationDecisionRequest) (*models.LeaveRequest, error)
	DecideODCancellation(ctx context.Context, claims *models.JWTClaims, id string, req dto.CancellationDecisionRequest) (*models.ODRequest, error)
}

// DecisionHandler exposes reviewer decisions, retries and the cancellation
// sub-flow.
type DecisionHandler struct {
	approvals     approvalService
	cancellations cancellationService
	metrics       *service.MetricsService
}

// NewDecisionHandler constructs the handler.
func NewDecisionHandler(approvals approvalService, cancellations cancellationService, metrics *service.MetricsService) *DecisionHandler {
	return &DecisionHandler{approvals: approvals, cancellations: cancellations, metrics: metrics}
}

// DecideLeave godoc
// @Summary Decide a leave request
// @Tags Decisions
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /requests/leave/{id}/decision [post]
func (h *DecisionHandler) DecideLeave(c *gin.Context) {
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.approvals.DecideLeave(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.ObserveDecision(models.KindLeave, req.Action)
	response.JSON(c, http.StatusOK, request, nil)
}

// DecideOD godoc
// @Summary Decide an on-duty request
// @Tags Decisions
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /requests/od/{id}/decision [post]
func (h *DecisionHandler) DecideOD(c *gin.Context) {
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.approvals.DecideOD(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.ObserveDecision(models.KindOD, req.Action)
	response.JSON(c, http.StatusOK, request, nil)
}

// RetryLeave godoc
// @Summary Resubmit a rejected leave request
// @Tags Decisions
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/leave/{id}/retry [post]
func (h *DecisionHandler) RetryLeave(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.approvals.RetryLeave(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// RetryOD godoc
// @Summary Resubmit a rejected on-duty request
// @Tags Decisions
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/od/{id}/retry [post]
func (h *DecisionHandler) RetryOD(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.approvals.RetryOD(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// CancelLeave godoc
// @Summary Request cancellation of a leave request
// @Tags Cancellations
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.CancellationRequest true "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Router /requests/leave/{id}/cancellation [post]
func (h *DecisionHandler) CancelLeave(c *gin.Context) {
	var req dto.CancellationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid cancellation payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.cancellations.RequestLeaveCancellation(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// CancelOD godoc
// @Summary Request cancellation of an on-duty request
// @Tags Cancellations
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.CancellationRequest true "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Router /requests/od/{id}/cancellation [post]
func (h *DecisionHandler) CancelOD(c *gin.Context) {
	var req dto.CancellationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid cancellation payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.cancellations.RequestODCancellation(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// DecideLeaveCancellation godoc
// @Summary Decide a pending leave cancellation
// @Tags Cancellations
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.CancellationDecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /requests/leave/{id}/cancellation/decision [post]
func (h *DecisionHandler) DecideLeaveCancellation(c *gin.Context) {
	var req dto.CancellationDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid cancellation decision payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.cancellations.DecideLeaveCancellation(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// DecideODCancellation godoc
// @Summary Decide a pending on-duty cancellation
// @Tags Cancellations
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.CancellationDecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /requests/od/{id}/cancellation/decision [post]
func (h *DecisionHandler) DecideODCancellation(c *gin.Context) {
	var req dto.CancellationDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid cancellation decision payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.cancellations.DecideODCancellation(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
