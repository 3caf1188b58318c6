/*
supervisor.go - Multi-loan supervision for a line of credit

PURPOSE:
  Coordinates a family of drawdown loans under one line-of-credit
  parent account. A repayment made against the line is split across
  all drawdowns at once, and headline totals are aggregated onto the
  parent so it can be read without visiting every child.

REPAYMENT ACROSS LOANS:
  The single-loan repayment hierarchy orders ADDRESSES:
    PRINCIPAL_OVERDUE, INTEREST_OVERDUE, PENALTIES,
    PRINCIPAL_DUE, INTEREST_DUE

  Across loans the same order applies per CATEGORY: all overdue
  principal across every drawdown is cleared before any overdue
  interest anywhere. Within a category, drawdowns are visited in
  registration order (the order they were associated with the line),
  so the oldest drawdown's arrears fill first.

CONSISTENCY:
  The whole distribution is computed against one balance snapshot
  taken at the repayment's effective time. The per-loan posting
  batches that come out are independent: a failure to commit one
  batch never corrupts another loan's books, and the remainder
  carried to the parent is derived from the same snapshot.

AGGREGATION:
  The parent account mirrors the children on its own addresses:
    TOTAL_PRINCIPAL, TOTAL_ARREARS, TOTAL_ACCRUED_INTEREST, TOTAL_EMI
  Aggregate posts only the delta between the mirror and the freshly
  computed totals, so re-running it is idempotent.

SEE ALSO:
  - lending/repayment.go: single-loan distribution algorithm
  - hooks/hooks.go: per-loan lifecycle
*/
package creditline

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/ledger"
	"github.com/warp/lending-engine/lending"
)

// Parent-side mirror addresses.
const (
	AddressTotalPrincipal      ledger.Address = "TOTAL_PRINCIPAL"
	AddressTotalArrears        ledger.Address = "TOTAL_ARREARS"
	AddressTotalAccruedInterest ledger.Address = "TOTAL_ACCRUED_INTEREST"
	AddressTotalEMI            ledger.Address = "TOTAL_EMI"
)

// Supervisor ties a line-of-credit parent account to its drawdown
// loans. Loans holds the drawdowns in registration order; that order
// is the tie-break whenever two loans compete inside one repayment
// category.
type Supervisor struct {
	Parent ledger.AccountID
	Loans  []ledger.AccountID
	Config lending.Config
}

// Register appends a drawdown to the supervised set. Registration
// order is significant for repayment distribution.
func (s *Supervisor) Register(loan ledger.AccountID) {
	s.Loans = append(s.Loans, loan)
}

// Hierarchy builds the cross-loan repayment order: one tier per
// address category, each tier visiting every drawdown in
// registration order.
func (s *Supervisor) Hierarchy() lending.Hierarchy {
	hierarchy := make(lending.Hierarchy, 0, len(lending.RepaymentAddressOrder))
	for _, address := range lending.RepaymentAddressOrder {
		tier := make(lending.Tier, 0, len(s.Loans))
		for _, loan := range s.Loans {
			tier = append(tier, lending.RepaymentTarget{Account: loan, Address: address})
		}
		hierarchy = append(hierarchy, tier)
	}
	return hierarchy
}

// DistributeRepayment splits a repayment received on the line across
// every drawdown's owed balances and returns one posting batch per
// affected loan, plus the amount that no tier could absorb. All
// reads come from the supplied snapshot.
func (s *Supervisor) DistributeRepayment(snap *ledger.Snapshot, amount decimal.Decimal, effective time.Time) ([]ledger.PostingInstruction, decimal.Decimal) {
	dist := lending.Distribute(snap, s.Hierarchy(), amount, s.Config.Denomination)
	return dist.Instructions(effective, s.Config.Denomination), dist.Remaining
}

// Totals is the aggregate view of the supervised drawdowns.
type Totals struct {
	Principal       decimal.Decimal
	Arrears         decimal.Decimal
	AccruedInterest decimal.Decimal
	EMI             decimal.Decimal
}

// ComputeTotals sums the drawdowns' balances from one snapshot.
func (s *Supervisor) ComputeTotals(snap *ledger.Snapshot) Totals {
	denom := s.Config.Denomination
	var t Totals
	for _, loan := range s.Loans {
		t.Principal = t.Principal.Add(lending.EffectivePrincipal(snap, loan, denom))
		for _, address := range []ledger.Address{
			lending.AddressPrincipalOverdue,
			lending.AddressInterestOverdue,
			lending.AddressPenalties,
		} {
			t.Arrears = t.Arrears.Add(snap.AddressAmount(loan, address, denom))
		}
		t.AccruedInterest = t.AccruedInterest.Add(
			snap.AddressAmount(loan, lending.AddressAccruedInterest, denom)).Add(
			snap.AddressAmount(loan, lending.AddressNonEMIAccruedInterest, denom))
		t.EMI = t.EMI.Add(snap.AddressAmount(loan, lending.AddressEMI, denom))
	}
	return t
}

// Aggregate refreshes the parent mirror addresses. Only deltas are
// posted: when the mirror already matches the computed totals the
// result carries no instructions.
func (s *Supervisor) Aggregate(snap *ledger.Snapshot, effective time.Time) []ledger.PostingInstruction {
	totals := s.ComputeTotals(snap)
	denom := s.Config.Denomination

	targets := []struct {
		address ledger.Address
		want    decimal.Decimal
	}{
		{AddressTotalPrincipal, totals.Principal},
		{AddressTotalArrears, totals.Arrears},
		{AddressTotalAccruedInterest, totals.AccruedInterest},
		{AddressTotalEMI, totals.EMI},
	}

	var out []ledger.PostingInstruction
	for _, target := range targets {
		have := snap.AddressAmount(s.Parent, target.address, denom)
		delta := target.want.Sub(have)
		if delta.IsZero() {
			continue
		}
		instruction := lending.MirrorDelta(s.Parent, target.address, delta, denom, effective)
		if !instruction.IsEmpty() {
			out = append(out, instruction)
		}
	}
	return out
}
