/*
posting.go - Balanced posting pairs and instructions

PURPOSE:
  Components never touch balances directly. They build PostingInstructions:
  atomic, immutable sets of balanced debit/credit legs plus metadata, which
  the host ledger applies exactly once per client-transaction id.

CRITICAL INVARIANTS:
  1. BALANCED: every instruction nets to zero per denomination
  2. POSITIVE: an amount <= 0 yields no postings at all (never an error)
  3. IDEMPOTENT: the client-transaction id is a deterministic function of the
     triggering event, so duplicate delivery has no double effect

SIGN CONVENTION:
  A credit leg increases the net amount on its coordinate, a debit leg
  decreases it. Owed addresses (PRINCIPAL, INTEREST_DUE, ...) are therefore
  credit-positive, with INTERNAL_CONTRA carrying the mirror within the same
  account.

SEE ALSO:
  - snapshot.go: How instructions fold into balance views
  - directives.go: How instructions travel back to the host
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POSTING - One leg of a double-entry movement
// =============================================================================

type Posting struct {
	Account      AccountID
	Address      Address
	Asset        Asset
	Denomination Denomination
	Phase        Phase
	Amount       decimal.Decimal
	Credit       bool
}

// Signed returns the leg's effect on its coordinate: positive for credits,
// negative for debits.
func (p Posting) Signed() decimal.Decimal {
	if p.Credit {
		return p.Amount
	}
	return p.Amount.Neg()
}

// Coordinate returns the balance bucket this leg moves.
func (p Posting) Coordinate() Coordinate {
	return Coordinate{
		Account:      p.Account,
		Address:      p.Address,
		Asset:        p.Asset,
		Denomination: p.Denomination,
		Phase:        p.Phase,
	}
}

// =============================================================================
// POSTING BUILDER
// =============================================================================

// NewPostingPair constructs one balanced debit/credit pair for the amount.
// Amounts <= 0 yield no postings - nothing to do is not an error.
func NewPostingPair(
	amount decimal.Decimal,
	debitAccount AccountID, debitAddress Address,
	creditAccount AccountID, creditAddress Address,
	denomination Denomination,
) []Posting {
	if !amount.IsPositive() {
		return nil
	}
	return []Posting{
		{
			Account: debitAccount, Address: debitAddress,
			Asset: AssetMoney, Denomination: denomination, Phase: PhaseCommitted,
			Amount: amount, Credit: false,
		},
		{
			Account: creditAccount, Address: creditAddress,
			Asset: AssetMoney, Denomination: denomination, Phase: PhaseCommitted,
			Amount: amount, Credit: true,
		},
	}
}

// =============================================================================
// POSTING INSTRUCTION - Atomic set of balanced postings plus metadata
// =============================================================================

type PostingInstruction struct {
	Postings []Posting

	// Human-readable description for statements and audit.
	Description string

	// Machine event tag, e.g. "ACCRUE_INTEREST".
	EventTag string

	// ClientTransactionID is the idempotency key. The host applies at most
	// one effect per unique id, so retried submission is a no-op.
	ClientTransactionID string

	// ValueTimestamp is the effective time of the movement.
	ValueTimestamp time.Time
}

// IsEmpty reports whether the instruction moves nothing.
func (pi PostingInstruction) IsEmpty() bool { return len(pi.Postings) == 0 }

// Balanced reports whether the signed amounts net to zero per denomination.
func (pi PostingInstruction) Balanced() bool {
	nets := make(map[Denomination]decimal.Decimal)
	for _, p := range pi.Postings {
		nets[p.Denomination] = nets[p.Denomination].Add(p.Signed())
	}
	for _, net := range nets {
		if !net.IsZero() {
			return false
		}
	}
	return true
}

// NetDelta returns the instruction's committed + pending-outgoing effect on
// one account in one denomination. This is the POSTING-DELTA sibling of
// Snapshot.AvailableBalance: same numeric rule, applied to an in-flight
// instruction instead of a stored balance view.
func (pi PostingInstruction) NetDelta(account AccountID, denom Denomination) decimal.Decimal {
	net := decimal.Zero
	for _, p := range pi.Postings {
		if p.Account != account || p.Denomination != denom {
			continue
		}
		if p.Phase == PhaseCommitted || p.Phase == PhasePendingOutgoing {
			net = net.Add(p.Signed())
		}
	}
	return net
}

// Denominations returns the distinct denominations the instruction touches.
func (pi PostingInstruction) Denominations() []Denomination {
	seen := make(map[Denomination]bool)
	var out []Denomination
	for _, p := range pi.Postings {
		if !seen[p.Denomination] {
			seen[p.Denomination] = true
			out = append(out, p.Denomination)
		}
	}
	return out
}
