/*
overpayment.go - Overpayment tracking and its EMI effects

PURPOSE:
  When a customer pays more than is due, the excess reduces outstanding
  principal ahead of schedule. What that buys them depends on preference:
  reduce_emi reamortises to a lower installment; reduce_term keeps the EMI
  and lets the term shorten implicitly.

THE SHADOW ACCRUAL:
  The tracker accrues a parallel "expected interest ignoring overpayments"
  balance (see InterestAccrual.ExpectedAccrual). At each due-amount
  calculation the saving materialises:

    excess = round(expected, 2) - round(actual, 2)

  A positive excess posts to EMI_PRINCIPAL_EXCESS, pulling the declining-
  balance schedule forward; the shadow accrual then resets to zero.

CLOSE-OUT:
  All tracker addresses (OVERPAYMENT, EMI_PRINCIPAL_EXCESS,
  ACCRUED_EXPECTED_INTEREST) must be exactly zero before final account
  closure - leaving residue on any of them is a correctness bug.
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
// OVERPAYMENT TRACKER
// =============================================================================

type OverpaymentTracker struct {
	Config Config
}

// Postings implements PostingEffect: registered as a principal-adjustment
// effect on the amortisation engine. It posts the EMI principal excess earned
// since the last cycle and resets the shadow accrual.
func (ot OverpaymentTracker) Postings(acct ledger.AccountSnapshot, effective time.Time) []ledger.PostingInstruction {
	snap := acct.Balances.At(effective)
	denom := ot.Config.Denomination
	expected := snap.AddressAmount(acct.Account, AddressAccruedExpectedInterest, denom)
	actual := snap.AddressAmount(acct.Account, AddressAccruedInterest, denom).
		Add(snap.AddressAmount(acct.Account, AddressNonEMIAccruedInterest, denom))

	var out []ledger.PostingInstruction

	excess := ledger.RoundHalfUp(expected, ot.Config.FulfillmentPrecision).
		Sub(ledger.RoundHalfUp(actual, ot.Config.FulfillmentPrecision))
	if excess.IsPositive() {
		out = append(out, newInstruction(schedule.EventDueAmountCalculation, "PRINCIPAL_EXCESS",
			acct.Account, effective,
			fmt.Sprintf("EMI principal excess of %s from overpayment interest saving", excess.String()),
			increase(acct.Account, AddressEMIPrincipalExcess, excess, denom)))
	}
	if !expected.IsZero() {
		out = append(out, newInstruction(schedule.EventDueAmountCalculation, "FLATTEN_EXPECTED",
			acct.Account, effective,
			"Expected interest accrual reset",
			zeroOut(acct.Account, AddressAccruedExpectedInterest, expected, denom)))
	}
	return out
}

// ShouldTrigger implements ReamortisationTrigger: reamortise when the
// customer overpaid since the last due-amount calculation AND the preference
// is reduce_emi. Under reduce_term the EMI stands and the term shortens by
// itself via the principal excess.
func (ot OverpaymentTracker) ShouldTrigger(acct ledger.AccountSnapshot, effective time.Time, _ int, lastRun time.Time) bool {
	if ot.Config.OverpaymentPreference != ReduceEMI {
		return false
	}
	return ot.OverpaidSince(acct, effective, lastRun).IsPositive()
}

// OverpaidSince returns how much overpayment accumulated since lastRun.
func (ot OverpaymentTracker) OverpaidSince(acct ledger.AccountSnapshot, effective, lastRun time.Time) decimal.Decimal {
	denom := ot.Config.Denomination
	now := acct.Balances.At(effective).AddressAmount(acct.Account, AddressOverpayment, denom)
	prev := acct.Balances.At(lastRun).AddressAmount(acct.Account, AddressOverpayment, denom)
	return now.Sub(prev)
}

// =============================================================================
// OVERPAYMENT FEE
// =============================================================================

// FeeAmount is the charge levied on an overpaid amount.
func (ot OverpaymentTracker) FeeAmount(overpaid decimal.Decimal) decimal.Decimal {
	return ledger.RoundHalfUp(ot.Config.OverpaymentFeeRate.Mul(overpaid), ot.Config.FulfillmentPrecision)
}

// Fee charges the configured percentage of the overpaid principal amount.
// The fee is carved out of the surplus cash already received on the loan
// account, so the customer is never debited a second time. Zero or
// negative fees emit nothing.
func (ot OverpaymentTracker) Fee(acct ledger.AccountSnapshot, effective time.Time, overpaid decimal.Decimal) []ledger.PostingInstruction {
	fee := ot.FeeAmount(overpaid)
	if !fee.IsPositive() {
		return nil
	}
	postings := ledger.NewPostingPair(fee,
		acct.Account, ledger.DefaultAddress,
		ot.Config.OverpaymentFeeAccount, ledger.DefaultAddress,
		ot.Config.Denomination)
	return []ledger.PostingInstruction{newInstruction("POST_POSTING", "OVERPAYMENT_FEE",
		acct.Account, effective,
		fmt.Sprintf("Overpayment fee of %s charged", fee.String()), postings)}
}

// RecordOverpayment books a repayment surplus onto the overpayment address,
// where it offsets effective principal until close-out.
func (ot OverpaymentTracker) RecordOverpayment(account ledger.AccountID, amount decimal.Decimal, effective time.Time) ledger.PostingInstruction {
	if !amount.IsPositive() {
		return ledger.PostingInstruction{}
	}
	return newInstruction("POST_POSTING", "OVERPAYMENT", account, effective,
		fmt.Sprintf("Overpayment of %s recorded", amount.String()),
		increase(account, AddressOverpayment, amount, ot.Config.Denomination))
}

// =============================================================================
// CLOSE-OUT
// =============================================================================

// Closeout drives every tracker address to exactly zero ahead of account
// closure.
func (ot OverpaymentTracker) Closeout(acct ledger.AccountSnapshot, effective time.Time) []ledger.PostingInstruction {
	snap := acct.Balances.At(effective)
	denom := ot.Config.Denomination

	var out []ledger.PostingInstruction
	for _, address := range []ledger.Address{
		AddressOverpayment, AddressEMIPrincipalExcess, AddressAccruedExpectedInterest,
	} {
		raw := snap.AddressAmount(acct.Account, address, denom)
		if raw.IsZero() {
			continue
		}
		out = append(out, newInstruction("DEACTIVATION", string(address),
			acct.Account, effective,
			fmt.Sprintf("%s cleared at close-out", address),
			zeroOut(acct.Account, address, raw, denom)))
	}
	return out
}
