/*
rate.go - Interest rate variants and reamortisation triggers

PURPOSE:
  A loan's rate behaviour comes in three variants, selected by configuration
  and injected into the engines as one explicit interface:

    FixedRateInterest            constant rate, never reamortises
    VariableRateInterest         follows the variable rate + adjustment
                                 parameters; reamortises when either changed
                                 since the last due-amount calculation
    FixedToVariableRateInterest  fixed for the first N months, variable after

  Triggers are pure predicates: they read the snapshot and report, never
  emitting postings. The amortisation engine composes a list of them and
  recomputes the EMI when ANY fires, so ordering is irrelevant.

TIE RULE:
  A parameter change stamped exactly AT the last execution time does not
  trigger - strictly-after only.
*/
package lending

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/ledger"
)

// =============================================================================
// INTERFACES
// =============================================================================

// InterestRate yields the yearly rate in effect for an account.
type InterestRate interface {
	// Rate returns the yearly interest rate given how many whole months of
	// the term have elapsed.
	Rate(acct ledger.AccountSnapshot, elapsedMonths int, at time.Time) (decimal.Decimal, error)
}

// ReamortisationTrigger decides whether the stored EMI must be recomputed at
// a due-amount calculation. Implementations are side-effect-free predicates.
type ReamortisationTrigger interface {
	// ShouldTrigger reports whether reamortisation is required at effective.
	// lastRun is the previous due-amount-calculation execution time (zero if
	// none).
	ShouldTrigger(acct ledger.AccountSnapshot, effective time.Time, elapsedMonths int, lastRun time.Time) bool
}

// =============================================================================
// FIXED RATE
// =============================================================================

type FixedRateInterest struct{}

func (FixedRateInterest) Rate(acct ledger.AccountSnapshot, _ int, at time.Time) (decimal.Decimal, error) {
	return acct.Params.Decimal(ParamFixedInterestRate, at)
}

// ShouldTrigger is always false: a fixed rate never forces reamortisation.
func (FixedRateInterest) ShouldTrigger(ledger.AccountSnapshot, time.Time, int, time.Time) bool {
	return false
}

// =============================================================================
// VARIABLE RATE
// =============================================================================

type VariableRateInterest struct{}

// Rate is the variable base rate plus the per-account adjustment.
func (VariableRateInterest) Rate(acct ledger.AccountSnapshot, _ int, at time.Time) (decimal.Decimal, error) {
	base, err := acct.Params.Decimal(ParamVariableInterestRate, at)
	if err != nil {
		return decimal.Zero, err
	}
	adj, err := acct.Params.OptDecimal(ParamVariableRateAdjustment, at)
	if err != nil {
		return decimal.Zero, err
	}
	return base.Add(adj.OrElse(decimal.Zero)), nil
}

// ShouldTrigger fires when the rate or its adjustment changed strictly after
// the last execution. Equal timestamps do not trigger.
func (VariableRateInterest) ShouldTrigger(acct ledger.AccountSnapshot, _ time.Time, _ int, lastRun time.Time) bool {
	for _, name := range []string{ParamVariableInterestRate, ParamVariableRateAdjustment} {
		if changed, ok := acct.Params.Params.LastChanged(name); ok && changed.After(lastRun) {
			return true
		}
	}
	return false
}

// =============================================================================
// FIXED TO VARIABLE
// =============================================================================

// FixedToVariableRateInterest behaves as fixed for FixedTermMonths whole
// months, then as variable.
type FixedToVariableRateInterest struct {
	FixedTermMonths int
}

func (f FixedToVariableRateInterest) Rate(acct ledger.AccountSnapshot, elapsedMonths int, at time.Time) (decimal.Decimal, error) {
	if elapsedMonths < f.FixedTermMonths {
		return FixedRateInterest{}.Rate(acct, elapsedMonths, at)
	}
	return VariableRateInterest{}.Rate(acct, elapsedMonths, at)
}

// ShouldTrigger fires exactly at the fixed-to-variable boundary crossing,
// then defers to the variable-rate trigger for the rest of the term.
func (f FixedToVariableRateInterest) ShouldTrigger(acct ledger.AccountSnapshot, effective time.Time, elapsedMonths int, lastRun time.Time) bool {
	if elapsedMonths == f.FixedTermMonths {
		return true
	}
	if elapsedMonths > f.FixedTermMonths {
		return VariableRateInterest{}.ShouldTrigger(acct, effective, elapsedMonths, lastRun)
	}
	return false
}

// =============================================================================
// SELECTION
// =============================================================================

// RateForConfig selects the rate variant the configuration describes.
func RateForConfig(cfg Config) InterestRate {
	switch {
	case cfg.FixedRateTermMonths >= cfg.TotalTermMonths:
		return FixedRateInterest{}
	case cfg.FixedRateTermMonths > 0:
		return FixedToVariableRateInterest{FixedTermMonths: cfg.FixedRateTermMonths}
	default:
		return VariableRateInterest{}
	}
}

// TriggersForConfig composes the reamortisation triggers matching the rate
// variant plus any extra product triggers (e.g. the overpayment tracker).
func TriggersForConfig(cfg Config, extra ...ReamortisationTrigger) []ReamortisationTrigger {
	rate := RateForConfig(cfg)
	triggers := make([]ReamortisationTrigger, 0, 1+len(extra))
	if t, ok := rate.(ReamortisationTrigger); ok {
		triggers = append(triggers, t)
	}
	return append(triggers, extra...)
}
