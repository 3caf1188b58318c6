/*
amortization.go - EMI calculation and the due-amount cycle

PURPOSE:
  The Equal Monthly Installment is the constant periodic payment amortising a
  declining-balance loan:

      EMI = (P - L/(1+R)^N) * R * (1+R)^N / ((1+R)^N - 1)

  P remaining principal, R monthly rate, N remaining term in months, L an
  optional balloon amount repaid as a lump sum at maturity (L=0 reduces to
  the standard formula).

THE MONTHLY CYCLE:
  Once per period the due-amount calculation:
    1. derives the remaining term from the anchored schedule
    2. reuses the stored EMI unless it is zero or a reamortisation trigger
       fires, in which case the formula recomputes it
    3. bills principal_due = min(EMI - round(accrued interest, 2),
       remaining principal) - the final installment never exceeds what is
       actually owed
    4. emits, in fixed order: EMI store update, principal due, then each
       registered interest-application effect and principal-adjustment
       effect in registration order

  The whole cycle is skipped while the loan is younger than one calendar
  month or a blocking flag (e.g. repayment holiday) is active.
*/
package lending

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/ledger"
	"github.com/warp/lending-engine/schedule"
)

// =============================================================================
// EMI FORMULA
// =============================================================================

var one = decimal.NewFromInt(1)

// EMI computes the constant installment for a declining-balance loan with an
// optional lump sum, rounded to the given precision. Zero for empty terms or
// non-positive principal.
func EMI(principal, monthlyRate decimal.Decimal, termMonths int, lumpSum decimal.Decimal, precision int32) decimal.Decimal {
	if termMonths <= 0 || !principal.IsPositive() {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(termMonths))
	if monthlyRate.IsZero() {
		return ledger.RoundHalfUp(principal.Sub(lumpSum).Div(n), precision)
	}
	factor := one.Add(monthlyRate).Pow(n)
	numerator := principal.Sub(lumpSum.Div(factor)).Mul(monthlyRate).Mul(factor)
	return ledger.RoundHalfUp(numerator.Div(factor.Sub(one)), precision)
}

// =============================================================================
// POSTING EFFECTS - Composable contributions to the due-amount cycle
// =============================================================================

// PostingEffect contributes instructions to a due-amount calculation.
// Registered effects run in registration order after the core postings.
type PostingEffect interface {
	Postings(acct ledger.AccountSnapshot, effective time.Time) []ledger.PostingInstruction
}

// Postings lets InterestApplication register as an application effect.
func (ia InterestApplication) Postings(acct ledger.AccountSnapshot, effective time.Time) []ledger.PostingInstruction {
	return ia.Apply(acct, effective)
}

// =============================================================================
// AMORTISATION ENGINE
// =============================================================================

// Amortisation runs the due-amount-calculation cycle. Triggers, application
// effects and adjustment effects are injected per product configuration.
type Amortisation struct {
	Rate     InterestRate
	Triggers []ReamortisationTrigger

	// Applications bill accrued interest; Adjustments post principal
	// corrections (e.g. overpayment-driven excess). Both run in slice order.
	Applications []PostingEffect
	Adjustments  []PostingEffect

	Config Config
}

// Term is the loan's position within its amortisation schedule.
type Term struct {
	Elapsed   int
	Remaining int
}

// RemainingTerm derives the term from the schedule anchor (account creation).
// The remaining term never drops below one month so the final cycle still
// amortises.
func (a Amortisation) RemainingTerm(acct ledger.AccountSnapshot, effective time.Time) Term {
	elapsed := schedule.MonthsBetween(acct.CreatedAt, effective)
	if elapsed > a.Config.TotalTermMonths {
		elapsed = a.Config.TotalTermMonths
	}
	remaining := a.Config.TotalTermMonths - elapsed
	if remaining < 1 {
		remaining = 1
	}
	return Term{Elapsed: elapsed, Remaining: remaining}
}

// NextDueCalculation returns the next due-amount-calculation date after
// effective. A mid-cycle change of the due day re-derives the occurrence with
// month-rollover logic rather than substituting the day naively.
func (a Amortisation) NextDueCalculation(effective time.Time) time.Time {
	return schedule.Next(effective, schedule.Monthly, a.Config.DueCalculationDay)
}

// CalculateDue runs one due-amount-calculation cycle and returns the posting
// instructions in their fixed emission order. Nil when the cycle is skipped.
func (a Amortisation) CalculateDue(acct ledger.AccountSnapshot, effective time.Time) ([]ledger.PostingInstruction, error) {
	// Skipped entirely while the loan is younger than one calendar month.
	if effective.Before(acct.CreatedAt.AddDate(0, 1, 0)) {
		return nil, nil
	}
	if acct.AnyFlagActive(a.Config.BlockingFlags, effective) {
		return nil, nil
	}

	snap := acct.Balances.At(effective)
	denom := a.Config.Denomination
	term := a.RemainingTerm(acct, effective)
	lastRun, _ := acct.LastExecution(string(schedule.EventDueAmountCalculation))

	remainingPrincipal := EffectivePrincipal(snap, acct.Account, denom)
	storedEMI := snap.AddressAmount(acct.Account, AddressEMI, denom)

	emi := storedEMI
	if storedEMI.IsZero() || a.shouldReamortise(acct, effective, term.Elapsed, lastRun) {
		yearly, err := a.Rate.Rate(acct, term.Elapsed, effective)
		if err != nil {
			return nil, err
		}
		monthly := yearly.Div(decimal.NewFromInt(12))
		emi = EMI(remainingPrincipal, monthly, term.Remaining, a.Config.BalloonAmount, a.Config.FulfillmentPrecision)
	}

	var out []ledger.PostingInstruction

	// (a) EMI store update, only when the stored value changes.
	if !emi.Equal(storedEMI) {
		delta := emi.Sub(storedEMI)
		var postings []ledger.Posting
		if delta.IsPositive() {
			postings = increase(acct.Account, AddressEMI, delta, denom)
		} else {
			postings = reduce(acct.Account, AddressEMI, delta.Neg(), denom)
		}
		out = append(out, newInstruction(schedule.EventDueAmountCalculation, "UPDATE_EMI",
			acct.Account, effective,
			fmt.Sprintf("EMI updated to %s", emi.String()), postings))
	}

	// (b) Principal due, capped so the final installment never exceeds what
	// is actually owed.
	accrued := snap.AddressAmount(acct.Account, AddressAccruedInterest, denom)
	interest := ledger.RoundHalfUp(accrued, a.Config.FulfillmentPrecision)
	principalDue := emi.Sub(interest)
	if principalDue.GreaterThan(remainingPrincipal) {
		principalDue = remainingPrincipal
	}
	if principalDue.IsPositive() {
		postings := ledger.NewPostingPair(principalDue,
			acct.Account, AddressPrincipal,
			acct.Account, AddressPrincipalDue, denom)
		out = append(out, newInstruction(schedule.EventDueAmountCalculation, "PRINCIPAL_DUE",
			acct.Account, effective,
			fmt.Sprintf("Principal due of %s billed", principalDue.String()), postings))
	}

	// (c) interest application effects, then (d) principal adjustments, both
	// in registration order.
	for _, effect := range a.Applications {
		out = append(out, effect.Postings(acct, effective)...)
	}
	for _, effect := range a.Adjustments {
		out = append(out, effect.Postings(acct, effective)...)
	}
	return out, nil
}

// shouldReamortise is a logical OR over the registered triggers.
func (a Amortisation) shouldReamortise(acct ledger.AccountSnapshot, effective time.Time, elapsedMonths int, lastRun time.Time) bool {
	for _, trigger := range a.Triggers {
		if trigger.ShouldTrigger(acct, effective, elapsedMonths, lastRun) {
			return true
		}
	}
	return false
}
