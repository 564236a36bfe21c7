package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-leave-api/internal/dto"
	"github.com/noah-isme/sma-leave-api/internal/models"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
	"github.com/noah-isme/sma-leave-api/pkg/response"
)

type calendarService interface {
	CreateExceptionDay(ctx context.Context, req dto.CreateExceptionDayRequest) (*models.ExceptionDay, error)
	ListExceptionDays(ctx context.Context, from, to string) ([]models.ExceptionDay, error)
	DeleteExceptionDay(ctx context.Context, id string) error
	SemesterDateRange(ctx context.Context, batch string, semester int) (*models.Semester, error)
}

// CalendarHandler exposes exception-day administration and the semester
// date-range oracle.
type CalendarHandler struct {
	service calendarService
}

// NewCalendarHandler constructs the handler.
func NewCalendarHandler(service calendarService) *CalendarHandler {
	return &CalendarHandler{service: service}
}

// CreateExceptionDay godoc
// @Summary Block a date for all submissions
// @Tags Calendar
// @Accept json
// @Produce json
// @Param payload body dto.CreateExceptionDayRequest true "Exception day payload"
// @Success 201 {object} response.Envelope
// @Router /exception-days [post]
func (h *CalendarHandler) CreateExceptionDay(c *gin.Context) {
	var req dto.CreateExceptionDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid exception day payload"))
		return
	}
	day, err := h.service.CreateExceptionDay(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, day, nil)
}

// ListExceptionDays godoc
// @Summary List blocked dates
// @Tags Calendar
// @Produce json
// @Param from query string false "Range start (YYYY-MM-DD)"
// @Param to query string false "Range end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /exception-days [get]
func (h *CalendarHandler) ListExceptionDays(c *gin.Context) {
	days, err := h.service.ListExceptionDays(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, days, nil)
}

// DeleteExceptionDay godoc
// @Summary Unblock a date
// @Tags Calendar
// @Param id path string true "Exception day ID"
// @Success 204
// @Router /exception-days/{id} [delete]
func (h *CalendarHandler) DeleteExceptionDay(c *gin.Context) {
	if err := h.service.DeleteExceptionDay(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SemesterDateRange godoc
// @Summary Resolve the academic range for a batch and semester
// @Tags Calendar
// @Produce json
// @Param batch query string true "Batch"
// @Param semester query int true "Semester number"
// @Success 200 {object} response.Envelope
// @Router /semesters/date-range [get]
func (h *CalendarHandler) SemesterDateRange(c *gin.Context) {
	semester, err := strconv.Atoi(c.Query("semester"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "semester must be a number"))
		return
	}
	row, err := h.service.SemesterDateRange(c.Request.Context(), c.Query("batch"), semester)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}
