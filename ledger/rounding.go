/*
rounding.go - Monetary rounding and rate conversion

PURPOSE:
  Every amount the engine emits has an explicit rounding contract. This file
  holds the two primitives those contracts are written against:

  RoundHalfUp:       Standard decimal rounding where ties round UP
                     (toward positive infinity), not away from zero.
  YearlyToDailyRate: Converts a yearly rate to a daily one under a
                     day-count convention, rounded to 10 decimal places.

ROUNDING CONTRACT:
  RoundHalfUp is idempotent: RoundHalfUp(RoundHalfUp(x, n), n) == RoundHalfUp(x, n).
  Posting precision is <= 2dp for customer-facing amounts; accrual addresses
  may hold up to 15dp internally.

DAY COUNT:
  "actual" resolves to 366 when the year of the given date is a leap year,
  365 otherwise. The fixed conventions (360, 365, 366) ignore the date.
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/schedule"
)

// =============================================================================
// ROUNDING
// =============================================================================

var half = decimal.New(5, -1)

// RoundHalfUp rounds to the given number of decimal places with ties rounding
// up (toward positive infinity): 0.005 -> 0.01, -0.005 -> 0.00.
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Shift(places).Add(half).Floor().Shift(-places)
}

// =============================================================================
// DAY COUNT & RATE CONVERSION
// =============================================================================

// DayCount selects the denominator used when converting yearly rates to daily.
type DayCount string

const (
	DayCount360    DayCount = "360"
	DayCount365    DayCount = "365"
	DayCount366    DayCount = "366"
	DayCountActual DayCount = "actual"
)

// Days resolves the convention for the year containing at.
func (dc DayCount) Days(at time.Time) int {
	switch dc {
	case DayCount360:
		return 360
	case DayCount366:
		return 366
	case DayCountActual:
		return schedule.DaysInYear(at.Year())
	default:
		return 365
	}
}

// YearlyToDailyRate converts a yearly rate to the daily rate in effect on the
// given date, rounded to 10 decimal places.
func YearlyToDailyRate(at time.Time, yearly decimal.Decimal, dayCount DayCount) decimal.Decimal {
	days := decimal.NewFromInt(int64(dayCount.Days(at)))
	return RoundHalfUp(yearly.Div(days), 10)
}
