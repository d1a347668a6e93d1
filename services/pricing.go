package services

import (
	"fmt"
	"time"

	"parking-marketplace-server/utils"
)

// Billing granularity: durations are rounded up to the nearest quarter hour
// before multiplying by the hourly rate.
const billingUnit = 15 * time.Minute

// BillableQuarterHours returns the number of 15-minute units a range is billed
// for, rounding partial units up.
func BillableQuarterHours(r utils.TimeRange) int64 {
	d := r.Duration()
	units := int64(d / billingUnit)
	if d%billingUnit != 0 {
		units++
	}
	return units
}

// BillableHours returns the billed duration in hours (multiples of 0.25)
func BillableHours(r utils.TimeRange) float64 {
	return float64(BillableQuarterHours(r)) * 0.25
}

// Cost computes the deterministic price in pence for a range at the given
// hourly rate: quarter-hour units are ceiled first, then the money result is
// rounded half-up at the penny. Extensions must price the increment range with
// this same function rather than subtracting two rounded totals.
func Cost(r utils.TimeRange, hourlyRatePence int64) int64 {
	quarters := BillableQuarterHours(r)
	// quarters * rate / 4, rounded half-up
	return (quarters*hourlyRatePence + 2) / 4
}

// FormatPence renders a pence amount with two-decimal display precision
func FormatPence(pence int64) string {
	sign := ""
	if pence < 0 {
		sign = "-"
		pence = -pence
	}
	return fmt.Sprintf("%s%d.%02d", sign, pence/100, pence%100)
}
