package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-leave-api/internal/models"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
)

func day(value string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestWorkingDaysExcludesSundays(t *testing.T) {
	// Tue 2025-08-05 .. Thu 2025-08-07, no Sunday in range.
	require.Equal(t, 3, WorkingDays(day("2025-08-05"), day("2025-08-07")))

	// Fri 2025-08-08 .. Mon 2025-08-11 spans Sunday 2025-08-10.
	require.Equal(t, 3, WorkingDays(day("2025-08-08"), day("2025-08-11")))

	// Sunday alone counts nothing.
	require.Equal(t, 0, WorkingDays(day("2025-08-10"), day("2025-08-10")))
}

func TestBillableDaysLeave(t *testing.T) {
	total, err := BillableDays(day("2025-08-05"), day("2025-08-07"), models.KindLeave, "")
	require.NoError(t, err)
	require.Equal(t, "3", total.String())
}

func TestBillableDaysHalfDayOD(t *testing.T) {
	total, err := BillableDays(day("2025-08-06"), day("2025-08-06"), models.KindOD, models.DurationHalfDayForenoon)
	require.NoError(t, err)
	require.Equal(t, "0.5", total.String())

	total, err = BillableDays(day("2025-08-06"), day("2025-08-06"), models.KindOD, models.DurationHalfDayAfternoon)
	require.NoError(t, err)
	require.Equal(t, "0.5", total.String())

	// Half rate applies across the whole range, Sundays excluded: Fri..Mon
	// holds three working days.
	total, err = BillableDays(day("2025-08-08"), day("2025-08-11"), models.KindOD, models.DurationHalfDayForenoon)
	require.NoError(t, err)
	require.Equal(t, "1.5", total.String())
}

func TestBillableDaysFullDayODIgnoresHalfRate(t *testing.T) {
	total, err := BillableDays(day("2025-08-05"), day("2025-08-07"), models.KindOD, models.DurationFullDay)
	require.NoError(t, err)
	require.Equal(t, "3", total.String())
}

func TestBillableDaysRejectsSundayOnlyRange(t *testing.T) {
	_, err := BillableDays(day("2025-08-10"), day("2025-08-10"), models.KindLeave, "")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrZeroDays.Code, appErr.Code)
}

func TestBillableDaysRejectsInvertedRange(t *testing.T) {
	_, err := BillableDays(day("2025-08-07"), day("2025-08-05"), models.KindLeave, "")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
