/*
Package schedule provides date arithmetic for event schedules.

PURPOSE:
  Lending events fire on day-of-month anchors: "due amounts calculate on the
  28th", "interest accrues daily at midnight". Calendar months are uneven, so
  the arithmetic here answers one awkward question precisely: what is the next
  occurrence of day D, given that D may not exist in the target month?

CLIPPING RULE:
  If the intended day does not exist in the target month, the date clips to
  the last valid day of that month. An intended day of 29 lands on Feb 28 in
  a non-leap year, and must re-anchor to Feb 29 the following leap year. The
  anchor is the intended day, never the clipped result.

MONTHLY LOOKAHEAD:
  For monthly frequency, if the intended day is still ahead within the
  current month, the same-month date is returned instead of advancing:
  "next occurrence of day D on/after tomorrow".
*/
package schedule

import "time"

// =============================================================================
// FREQUENCY
// =============================================================================

type Frequency string

const (
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Annually  Frequency = "annually"
)

// Months returns how many months one period of the frequency spans.
func (f Frequency) Months() int {
	switch f {
	case Quarterly:
		return 3
	case Annually:
		return 12
	default:
		return 1
	}
}

// =============================================================================
// EVENTS
// =============================================================================

// Event identifies a scheduled lifecycle event type.
type Event string

const (
	EventAccrueInterest       Event = "ACCRUE_INTEREST"
	EventDueAmountCalculation Event = "DUE_AMOUNT_CALCULATION"
	EventCheckOverdue         Event = "CHECK_OVERDUE"
	EventCheckDelinquency     Event = "CHECK_DELINQUENCY"
)

// ScheduledEvent pairs an event type with its next run. Schedules are mutated
// only via explicit update directives, never by the engine itself.
type ScheduledEvent struct {
	Event   Event
	NextRun time.Time
	Skip    bool
}

// =============================================================================
// DATE ARITHMETIC
// =============================================================================

// Next returns the next occurrence of intendedDay after start, advancing by
// the frequency. If the intended day does not exist in the target month the
// date clips to the month's last day. For monthly frequency, an intended day
// still ahead within start's own month is returned without advancing.
func Next(start time.Time, f Frequency, intendedDay int) time.Time {
	if f == Monthly {
		sameMonth := onDay(start, start.Year(), start.Month(), intendedDay)
		if sameMonth.After(start) {
			return sameMonth
		}
	}
	// time.AddDate normalises overflow (Jan 31 + 1 month = Mar 2/3), so the
	// target month is derived directly and the intended day placed into it.
	year, month := addMonths(start.Year(), start.Month(), f.Months())
	return onDay(start, year, month, intendedDay)
}

// addMonths advances a (year, month) pair without day normalisation.
func addMonths(year int, month time.Month, n int) (int, time.Month) {
	m := int(month) - 1 + n
	year += m / 12
	m %= 12
	if m < 0 {
		m += 12
		year--
	}
	return year, time.Month(m + 1)
}

// onDay places intendedDay in the given month, clipping to the month end,
// preserving the clock time of ref.
func onDay(ref time.Time, year int, month time.Month, intendedDay int) time.Time {
	day := intendedDay
	if last := LastDay(year, month); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day,
		ref.Hour(), ref.Minute(), ref.Second(), ref.Nanosecond(), ref.Location())
}

// LastDay returns the last valid day of the month.
func LastDay(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsLeapYear reports whether the year has 366 days.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInYear returns 366 for leap years, 365 otherwise.
func DaysInYear(year int) int {
	if IsLeapYear(year) {
		return 366
	}
	return 365
}

// EndOfPreviousDay returns 23:59:59.999999 of the day before t. Daily interest
// accrues on the balance that existed for the entire prior day, so accrual
// reads capital at this instant rather than at t itself.
func EndOfPreviousDay(t time.Time) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return midnight.Add(-time.Microsecond)
}

// MonthsBetween returns the number of whole calendar months elapsed from
// 'from' to 'to'. A partial month does not count: one month has elapsed only
// once the same day-of-month (clipped to month end) has been reached.
func MonthsBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	anniversaryDay := from.Day()
	if last := LastDay(to.Year(), to.Month()); anniversaryDay > last {
		anniversaryDay = last
	}
	if to.Day() < anniversaryDay {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
