/*
overdue.go - The overdue/delinquency state machine

PURPOSE:
  Repayment state only moves forward:

      CURRENT -> OVERDUE -> DELINQUENT

  A repayment reduces balances but never programmatically reverses the
  state - un-flagging a delinquent account is an operator action.

TIMING:
  CHECK_OVERDUE fires repayment_period days after the due-amount
  calculation: every positive due balance moves wholesale to its overdue
  address and a flat late fee is charged if configured.

  CHECK_DELINQUENCY fires grace_period days after the overdue check, but
  never fewer than 1 - the ordering guard that keeps delinquency from firing
  before or at the same instant as the overdue check even when the grace
  period is configured as zero.

  Both checks honour the product's blocking flags (repayment holidays).
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
// REPAYMENT STATE
// =============================================================================

type RepaymentState string

const (
	StateCurrent    RepaymentState = "CURRENT"
	StateOverdue    RepaymentState = "OVERDUE"
	StateDelinquent RepaymentState = "DELINQUENT"
)

// =============================================================================
// OVERDUE CHECK
// =============================================================================

type OverdueCheck struct {
	Config Config
}

// StateOf derives the account's repayment state from balances and the
// delinquency flag.
func (oc OverdueCheck) StateOf(acct ledger.AccountSnapshot, effective time.Time) RepaymentState {
	if acct.FlagsOrNone().IsActive(FlagDelinquent, effective) {
		return StateDelinquent
	}
	if oc.lateBalance(acct, effective).IsPositive() {
		return StateOverdue
	}
	return StateCurrent
}

// CheckOverdue moves every positive due balance wholesale to its overdue
// address, then charges the flat late-repayment fee if one is configured.
func (oc OverdueCheck) CheckOverdue(acct ledger.AccountSnapshot, effective time.Time) []ledger.PostingInstruction {
	if acct.AnyFlagActive(oc.Config.BlockingFlags, effective) {
		return nil
	}

	snap := acct.Balances.At(effective)
	denom := oc.Config.Denomination

	var out []ledger.PostingInstruction
	moved := false
	for _, due := range DueAddresses {
		balance := snap.AddressAmount(acct.Account, due, denom)
		if !balance.IsPositive() {
			continue
		}
		moved = true
		overdue := OverdueFor(due)
		postings := ledger.NewPostingPair(balance, acct.Account, due, acct.Account, overdue, denom)
		out = append(out, newInstruction(schedule.EventCheckOverdue, string(overdue),
			acct.Account, effective,
			fmt.Sprintf("%s of %s moved to %s", due, balance.String(), overdue), postings))
	}

	if moved && oc.Config.LateRepaymentFee.IsPositive() {
		out = append(out, newInstruction(schedule.EventCheckOverdue, "LATE_FEE",
			acct.Account, effective,
			fmt.Sprintf("Late repayment fee of %s charged", oc.Config.LateRepaymentFee.String()),
			increase(acct.Account, AddressPenalties, oc.Config.LateRepaymentFee, denom)))
	}
	return out
}

// CheckDelinquency triggers the external delinquency workflow when late
// balances remain and the flag is not already set. The flag itself is set by
// the workflow, not by this check.
func (oc OverdueCheck) CheckDelinquency(acct ledger.AccountSnapshot, effective time.Time) ledger.HookResult {
	if acct.AnyFlagActive(oc.Config.BlockingFlags, effective) {
		return ledger.HookResult{}
	}
	if acct.FlagsOrNone().IsActive(FlagDelinquent, effective) {
		return ledger.HookResult{}
	}
	if !oc.lateBalance(acct, effective).IsPositive() {
		return ledger.HookResult{}
	}
	return ledger.HookResult{
		Notifications: []ledger.Notification{{
			Type: "MARK_DELINQUENT",
			Details: map[string]string{
				"account": string(acct.Account),
				"flag":    FlagDelinquent,
			},
		}},
	}
}

// lateBalance sums everything past its repayment window.
func (oc OverdueCheck) lateBalance(acct ledger.AccountSnapshot, effective time.Time) decimal.Decimal {
	snap := acct.Balances.At(effective)
	denom := oc.Config.Denomination
	return snap.AddressAmount(acct.Account, AddressPrincipalOverdue, denom).
		Add(snap.AddressAmount(acct.Account, AddressInterestOverdue, denom)).
		Add(snap.AddressAmount(acct.Account, AddressPenalties, denom))
}

// =============================================================================
// CHECK TIMING
// =============================================================================

// OverdueAt returns when the overdue check runs for a due-amount calculation
// executed at dueCalc.
func (oc OverdueCheck) OverdueAt(dueCalc time.Time) time.Time {
	return dueCalc.AddDate(0, 0, oc.Config.RepaymentPeriodDays)
}

// DelinquencyAt returns when the delinquency check runs for an overdue check
// executed at overdueAt. At least one day later, always.
func (oc OverdueCheck) DelinquencyAt(overdueAt time.Time) time.Time {
	grace := oc.Config.GracePeriodDays
	if grace < 1 {
		grace = 1
	}
	return overdueAt.AddDate(0, 0, grace)
}
