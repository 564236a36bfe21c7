package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-leave-api/internal/models"
	appErrors "github.com/noah-isme/sma-leave-api/pkg/errors"
)

var half = decimal.NewFromFloat(0.5)

// WorkingDays counts calendar days in the inclusive range, excluding Sundays.
// Sunday is the only weekly rest day; exception days never reduce the count,
// they block submission entirely.
func WorkingDays(start, end time.Time) int {
	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Sunday {
			days++
		}
	}
	return days
}

// BillableDays turns a date range and request kind into the day count charged
// for it. Half-day OD requests bill at half rate. The result is always a
// positive multiple of 0.5; ranges with no working days are rejected.
func BillableDays(start, end time.Time, kind models.RequestKind, duration models.DurationType) (decimal.Decimal, error) {
	if start.After(end) {
		return decimal.Zero, appErrors.Clone(appErrors.ErrValidation, "start date must not be after end date")
	}

	working := WorkingDays(start, end)
	if working == 0 {
		return decimal.Zero, appErrors.ErrZeroDays
	}

	total := decimal.NewFromInt(int64(working))
	if kind == models.KindOD && duration.HalfDay() {
		total = total.Mul(half)
	}
	return total, nil
}
