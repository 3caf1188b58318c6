/*
accrual.go - Daily interest accrual

PURPOSE:
  Once a day, interest accrues on the capital that existed for the ENTIRE
  prior day: the balance is read at 23:59:59.999999 of the previous day
  relative to the effective time. The accrued amount lands on a holding
  address at full accrual precision and is only rounded to customer-facing
  precision at application time.

EMI ROUTING:
  Accrual posted more than one month before the next due-amount-calculation
  date goes to NON_EMI_ACCRUED_INTEREST. That amount is excluded from the
  EMI-derived principal-due calculation, which keeps the installment constant
  across a re-drawn term.

PENALTIES:
  Overdue balances accrue penalty interest daily onto PENALTIES at
  fulfillment precision, optionally stacking the base rate on top of the
  penalty rate.
*/
package lending

import (
	"fmt"
	"time"

	"github.com/warp/lending-engine/ledger"
	"github.com/warp/lending-engine/schedule"
)

// =============================================================================
// INTEREST ACCRUAL ENGINE
// =============================================================================

type InterestAccrual struct {
	Rate   InterestRate
	Config Config
}

// Accrue computes the daily accrual and routes it to the right holding
// address. nextDueCalc is the next due-amount-calculation date; zero or
// negative computed amounts produce no postings.
func (ia InterestAccrual) Accrue(acct ledger.AccountSnapshot, effective, nextDueCalc time.Time) ([]ledger.PostingInstruction, error) {
	capitalAt := schedule.EndOfPreviousDay(effective)
	snap := acct.Balances.At(capitalAt)
	capital := EffectivePrincipal(snap, acct.Account, ia.Config.Denomination)

	elapsed := schedule.MonthsBetween(acct.CreatedAt, effective)
	yearly, err := ia.Rate.Rate(acct, elapsed, effective)
	if err != nil {
		return nil, err
	}
	daily := ledger.YearlyToDailyRate(effective, yearly, ia.Config.DayCount)
	amount := ledger.RoundHalfUp(capital.Abs().Mul(daily), ia.Config.AccrualPrecision)
	if !amount.IsPositive() {
		return nil, nil
	}

	address := AddressAccruedInterest
	if beyondEMIWindow(effective, nextDueCalc) {
		address = AddressNonEMIAccruedInterest
	}

	pi := newInstruction(schedule.EventAccrueInterest, string(address), acct.Account, effective,
		fmt.Sprintf("Daily interest accrued at %s on capital of %s", daily.String(), capital.String()),
		increase(acct.Account, address, amount, ia.Config.Denomination))
	return []ledger.PostingInstruction{pi}, nil
}

// beyondEMIWindow reports whether effective is more than one month before the
// next due-amount-calculation date.
func beyondEMIWindow(effective, nextDueCalc time.Time) bool {
	if nextDueCalc.IsZero() {
		return false
	}
	return effective.Before(nextDueCalc.AddDate(0, -1, 0))
}

// =============================================================================
// PENALTY INTEREST ACCRUAL ENGINE
// =============================================================================

type PenaltyAccrual struct {
	Rate   InterestRate
	Config Config
}

// Accrue charges daily penalty interest on the overdue balance. The penalty
// lands on PENALTIES at fulfillment precision so it is billable as-is.
func (pa PenaltyAccrual) Accrue(acct ledger.AccountSnapshot, effective time.Time) ([]ledger.PostingInstruction, error) {
	if !pa.Config.PenaltyRate.IsPositive() {
		return nil, nil
	}

	capitalAt := schedule.EndOfPreviousDay(effective)
	snap := acct.Balances.At(capitalAt)
	base := snap.AddressAmount(acct.Account, AddressPrincipalOverdue, pa.Config.Denomination).
		Add(snap.AddressAmount(acct.Account, AddressInterestOverdue, pa.Config.Denomination))

	yearly := pa.Config.PenaltyRate
	if pa.Config.PenaltyIncludesBase {
		elapsed := schedule.MonthsBetween(acct.CreatedAt, effective)
		baseRate, err := pa.Rate.Rate(acct, elapsed, effective)
		if err != nil {
			return nil, err
		}
		yearly = yearly.Add(baseRate)
	}

	daily := ledger.YearlyToDailyRate(effective, yearly, pa.Config.DayCount)
	amount := ledger.RoundHalfUp(base.Abs().Mul(daily), pa.Config.FulfillmentPrecision)
	if !amount.IsPositive() {
		return nil, nil
	}

	pi := newInstruction(schedule.EventAccrueInterest, "PENALTY", acct.Account, effective,
		fmt.Sprintf("Penalty interest accrued on overdue balance of %s", base.String()),
		increase(acct.Account, AddressPenalties, amount, pa.Config.Denomination))
	return []ledger.PostingInstruction{pi}, nil
}

// =============================================================================
// EXPECTED INTEREST SHADOW ACCRUAL
// =============================================================================

// ExpectedAccrual accrues the shadow "interest as if the customer had never
// overpaid" amount used by the overpayment tracker. Capital here is the
// scheduled principal with overpayment effects added back in.
func (ia InterestAccrual) ExpectedAccrual(acct ledger.AccountSnapshot, effective time.Time) ([]ledger.PostingInstruction, error) {
	capitalAt := schedule.EndOfPreviousDay(effective)
	snap := acct.Balances.At(capitalAt)
	capital := snap.AddressAmount(acct.Account, AddressPrincipal, ia.Config.Denomination)

	elapsed := schedule.MonthsBetween(acct.CreatedAt, effective)
	yearly, err := ia.Rate.Rate(acct, elapsed, effective)
	if err != nil {
		return nil, err
	}
	daily := ledger.YearlyToDailyRate(effective, yearly, ia.Config.DayCount)
	amount := ledger.RoundHalfUp(capital.Abs().Mul(daily), ia.Config.AccrualPrecision)
	if !amount.IsPositive() {
		return nil, nil
	}

	pi := newInstruction(schedule.EventAccrueInterest, "EXPECTED", acct.Account, effective,
		"Expected interest accrued ignoring overpayments",
		increase(acct.Account, AddressAccruedExpectedInterest, amount, ia.Config.Denomination))
	return []ledger.PostingInstruction{pi}, nil
}
