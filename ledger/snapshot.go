/*
snapshot.go - Read-only balance views

PURPOSE:
  Every hook computes against one consistent snapshot of balances and returns
  a complete set of directives; it never observes its own writes. When a hook
  needs to chain computations ("what would the balances be after these
  postings?") it derives a NEW snapshot with Apply - the original is never
  mutated.

TWO AVAILABLE-BALANCE OPERATIONS:
  The committed + pending-outgoing sum serves two physically different
  questions and gets two distinct named operations:
    Snapshot.AvailableBalance     - how much can this ACCOUNT spend now
    PostingInstruction.NetDelta   - what does this INSTRUCTION move net
  Both apply the identical numeric rule; only the subject differs.

SEE ALSO:
  - account.go: The full per-account view handed to a hook
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SNAPSHOT - Immutable balance view
// =============================================================================

// Snapshot is a frozen view of balances across one or more accounts as of a
// single instant. Lookups on missing coordinates return zero.
type Snapshot struct {
	asOf     time.Time
	balances map[Coordinate]decimal.Decimal
}

// NewSnapshot copies the given balances into an immutable view.
func NewSnapshot(asOf time.Time, balances map[Coordinate]decimal.Decimal) *Snapshot {
	copied := make(map[Coordinate]decimal.Decimal, len(balances))
	for c, amt := range balances {
		copied[c] = amt
	}
	return &Snapshot{asOf: asOf, balances: copied}
}

func (s *Snapshot) AsOf() time.Time { return s.asOf }

// Amount returns the net amount on a coordinate, zero if absent.
func (s *Snapshot) Amount(c Coordinate) decimal.Decimal {
	return s.balances[c]
}

// AddressAmount returns the committed amount on an account address with the
// default asset - the lookup nearly every engine performs.
func (s *Snapshot) AddressAmount(account AccountID, address Address, denom Denomination) decimal.Decimal {
	return s.balances[Committed(account, address, denom)]
}

// AvailableBalance returns the ACCOUNT-level spendable amount on the default
// address: committed plus pending-outgoing. See the package note about its
// posting-delta sibling.
func (s *Snapshot) AvailableBalance(account AccountID, denom Denomination) decimal.Decimal {
	committed := s.balances[Committed(account, DefaultAddress, denom)]
	pendingOut := s.balances[Coordinate{
		Account:      account,
		Address:      DefaultAddress,
		Asset:        AssetMoney,
		Denomination: denom,
		Phase:        PhasePendingOutgoing,
	}]
	return committed.Add(pendingOut)
}

// Apply derives a new snapshot with the instructions folded in. The receiver
// is unchanged: chained computations always run on explicit derived views,
// never on in-place mutation.
func (s *Snapshot) Apply(instructions ...PostingInstruction) *Snapshot {
	derived := NewSnapshot(s.asOf, s.balances)
	for _, pi := range instructions {
		for _, p := range pi.Postings {
			c := p.Coordinate()
			derived.balances[c] = derived.balances[c].Add(p.Signed())
		}
	}
	return derived
}

// Coordinates returns every coordinate with a recorded amount. Iteration
// order is unspecified; callers needing determinism must sort.
func (s *Snapshot) Coordinates() []Coordinate {
	out := make([]Coordinate, 0, len(s.balances))
	for c := range s.balances {
		out = append(out, c)
	}
	return out
}

// =============================================================================
// BALANCE READER - Historical lookup
// =============================================================================

// BalanceReader provides balance views optionally at a past instant. The host
// implements this over its stored timeline; tests usually use FixedBalances.
type BalanceReader interface {
	// At materialises the balance snapshot as of the given time.
	At(at time.Time) *Snapshot
}

// FixedBalances is a BalanceReader that serves the same snapshot for any
// time. Sufficient whenever a computation only needs current balances.
type FixedBalances struct {
	Snapshot *Snapshot
}

func (f FixedBalances) At(time.Time) *Snapshot { return f.Snapshot }
