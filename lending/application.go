/*
application.go - Interest application with residual flattening

PURPOSE:
  Application converts accrued-but-unbilled interest into a billed, due
  amount. The accrual addresses carry full decimal precision; the customer is
  billed a 2dp-rounded total. The unrounded residue must not drift, so both
  accrual addresses are driven to EXACTLY zero after every application.

THE ZEROING INVARIANT:
  total_to_apply = round(primary + non_emi, fulfillment precision)

  The billed total is taken from the primary accrual address; what remains
  raw on each address afterwards is its remainder. The rounded sum can over-
  or under-shoot the sum of per-address roundings - either way each address
  is independently reversed by its own remainder: positive -> debit the
  address, negative (applied more than accrued) -> credit it back.
  Post-condition, always: primary == 0 AND non_emi == 0.
*/
package lending

import (
	"fmt"
	"time"

	"github.com/warp/lending-engine/ledger"
	"github.com/warp/lending-engine/schedule"
)

// =============================================================================
// INTEREST APPLICATION ENGINE
// =============================================================================

type InterestApplication struct {
	Config Config
}

// Apply bills the rounded accrued interest to INTEREST_DUE and flattens both
// accrual addresses to zero. Safe to call when nothing has accrued.
func (ia InterestApplication) Apply(acct ledger.AccountSnapshot, effective time.Time) []ledger.PostingInstruction {
	snap := acct.Balances.At(effective)
	denom := ia.Config.Denomination
	primary := snap.AddressAmount(acct.Account, AddressAccruedInterest, denom)
	nonEMI := snap.AddressAmount(acct.Account, AddressNonEMIAccruedInterest, denom)

	var out []ledger.PostingInstruction

	total := ledger.RoundHalfUp(primary.Add(nonEMI), ia.Config.FulfillmentPrecision)
	primaryRemainder := primary
	if total.IsPositive() {
		// Bill the customer: the rounded total moves from the primary accrual
		// address onto the due address.
		postings := ledger.NewPostingPair(total,
			acct.Account, AddressAccruedInterest,
			acct.Account, AddressInterestDue, denom)
		out = append(out, newInstruction(schedule.EventDueAmountCalculation, "APPLY_INTEREST",
			acct.Account, effective,
			fmt.Sprintf("Interest of %s applied", total.String()), postings))
		primaryRemainder = primary.Sub(total)
	}

	// Residual flattening: each accrual address reversed by its own raw
	// remainder. A negative primary remainder means more was applied than had
	// accrued on the address; the reversal then runs the other way.
	if !primaryRemainder.IsZero() {
		out = append(out, newInstruction(schedule.EventDueAmountCalculation, "FLATTEN_ACCRUED",
			acct.Account, effective,
			"Accrued interest remainder reversed",
			zeroOut(acct.Account, AddressAccruedInterest, primaryRemainder, denom)))
	}
	if !nonEMI.IsZero() {
		out = append(out, newInstruction(schedule.EventDueAmountCalculation, "FLATTEN_NON_EMI",
			acct.Account, effective,
			"Non-EMI accrued interest remainder reversed",
			zeroOut(acct.Account, AddressNonEMIAccruedInterest, nonEMI, denom)))
	}
	return out
}
