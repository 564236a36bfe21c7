package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-leave-api/internal/models"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
	"github.com/noah-isme/sma-leave-api/pkg/response"
)

type balanceService interface {
	Get(ctx context.Context, claims *models.JWTClaims, studentID string) (*models.BalanceSummary, error)
}

// BalanceHandler serves the leave-balance read model.
type BalanceHandler struct {
	service balanceService
}

// NewBalanceHandler constructs the handler.
func NewBalanceHandler(service balanceService) *BalanceHandler {
	return &BalanceHandler{service: service}
}

// Get godoc
// @Summary Get a student's leave balance
// @Tags Balance
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/balance [get]
func (h *BalanceHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
