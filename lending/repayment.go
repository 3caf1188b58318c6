/*
repayment.go - The repayment distribution waterfall

PURPOSE:
  An incoming repayment fills an ordered hierarchy of debt buckets: a list
  of tiers, each tier an ordered list of (account, address) targets. The
  algorithm is a single deterministic greedy pass - iteration order IS the
  tie-break, so all of account A's tier-1 targets fill before account B's,
  never interleaved by amount.

ROUNDING SEMANTICS:
  Each target's balance is rounded to 2dp before comparison. A balance that
  rounds to 0.00 (e.g. 0.004) is skipped entirely even when repayment amount
  remains. On a full fill the UNROUNDED balance is recorded so the address
  can be zeroed exactly; the rounded take is what is consumed from the
  repayment and posted to the ledger's settlement legs.

INVARIANTS:
  take >= 0, take <= rounded balance, take <= remaining; the remaining
  amount is monotonically non-increasing tier by tier.
*/
package lending

import (
	"fmt"

	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/ledger"
)

// distributionPrecision is the customer-facing 2dp used when comparing and
// consuming repayment amounts.
const distributionPrecision = 2

// =============================================================================
// HIERARCHY
// =============================================================================

// RepaymentTarget is one debt bucket a repayment can fill.
type RepaymentTarget struct {
	Account ledger.AccountID
	Address ledger.Address
}

// Tier is an ordered list of targets considered together before the next
// tier. Registration order within the tier is the tie-break.
type Tier []RepaymentTarget

// Hierarchy is the fixed priority order a repayment is allocated in.
type Hierarchy []Tier

// RepaymentAddressOrder is the standard single-loan waterfall: oldest, most
// penal debt first.
var RepaymentAddressOrder = []ledger.Address{
	AddressPrincipalOverdue,
	AddressInterestOverdue,
	AddressPenalties,
	AddressPrincipalDue,
	AddressInterestDue,
}

// StandardHierarchy builds the single-loan hierarchy: one tier per address
// in the standard order.
func StandardHierarchy(account ledger.AccountID) Hierarchy {
	h := make(Hierarchy, 0, len(RepaymentAddressOrder))
	for _, address := range RepaymentAddressOrder {
		h = append(h, Tier{{Account: account, Address: address}})
	}
	return h
}

// =============================================================================
// DISTRIBUTION
// =============================================================================

// Allocation records what one target received: the unrounded take for exact
// zeroing, the rounded take for what the repayment actually consumed.
type Allocation struct {
	Target    RepaymentTarget
	Unrounded decimal.Decimal
	Rounded   decimal.Decimal
}

// Distribution is the outcome of one waterfall pass.
type Distribution struct {
	Allocations []Allocation

	// Remaining is what the hierarchy could not absorb - an overpayment
	// when positive.
	Remaining decimal.Decimal
}

// Distribute allocates a repayment across the hierarchy in one deterministic
// greedy pass over a single consistent snapshot.
func Distribute(snap *ledger.Snapshot, hierarchy Hierarchy, amount decimal.Decimal, denom ledger.Denomination) Distribution {
	remaining := amount
	var allocations []Allocation

	for _, tier := range hierarchy {
		for _, target := range tier {
			unrounded := snap.AddressAmount(target.Account, target.Address, denom)
			rounded := ledger.RoundHalfUp(unrounded, distributionPrecision)
			take := decimal.Min(rounded, remaining)
			if !take.IsPositive() {
				continue
			}
			unroundedTake := remaining
			if rounded.LessThanOrEqual(remaining) {
				unroundedTake = unrounded
			}
			allocations = append(allocations, Allocation{
				Target:    target,
				Unrounded: unroundedTake,
				Rounded:   take,
			})
			remaining = remaining.Sub(take)
		}
		if remaining.IsZero() {
			break
		}
	}
	return Distribution{Allocations: allocations, Remaining: remaining}
}

// =============================================================================
// POSTINGS
// =============================================================================

// Instructions converts a distribution into per-account posting batches, one
// instruction per account, allocations in fill order. Full fills post the
// unrounded take so addresses land exactly on zero.
func (d Distribution) Instructions(effective time.Time, denom ledger.Denomination) []ledger.PostingInstruction {
	byAccount := make(map[ledger.AccountID][]ledger.Posting)
	var order []ledger.AccountID
	for _, alloc := range d.Allocations {
		account := alloc.Target.Account
		if _, seen := byAccount[account]; !seen {
			order = append(order, account)
		}
		byAccount[account] = append(byAccount[account],
			reduce(account, alloc.Target.Address, alloc.Unrounded, denom)...)
	}

	out := make([]ledger.PostingInstruction, 0, len(order))
	for _, account := range order {
		out = append(out, newInstruction("POST_POSTING", "REPAYMENT",
			account, effective,
			fmt.Sprintf("Repayment distributed across %d allocation(s)", len(byAccount[account])/2),
			byAccount[account]))
	}
	return out
}
