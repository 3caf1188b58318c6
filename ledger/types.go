/*
Package ledger provides the core double-entry types for the lending engine.

PURPOSE:
  This package contains domain-agnostic types and algorithms for expressing
  balance movements as declarative posting directives. Whether the product is
  a single amortising loan or a multi-loan line of credit, the same building
  blocks describe balances, postings and the directives handed back to the
  host ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Coordinate: The full key of one balance bucket
    (account, address, asset, denomination, phase)
  - Address: A named bucket within one account (PRINCIPAL, INTEREST_DUE, ...)
  - Rejection: A structured refusal of a customer action

DESIGN PRINCIPLES:
  1. Immutability: hooks read snapshots and return directives, never mutate
  2. Precision: decimal.Decimal everywhere money or rates appear
  3. Type Safety: closed typed constants instead of raw address strings
  4. Determinism: idempotency keys are pure functions of the triggering event

SEE ALSO:
  - posting.go: Balanced posting pairs and instructions
  - snapshot.go: Read-only balance views and pure application
  - directives.go: What a hook returns to the host
*/
package ledger

import "fmt"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string

// Address is a named balance bucket within one account.
// Concrete products declare their own constants of this type.
type Address string

// DefaultAddress is the transactable bucket customer postings land on.
const DefaultAddress Address = "DEFAULT"

// InternalContra mirrors every internally generated movement so each
// instruction nets to zero within the account.
const InternalContra Address = "INTERNAL_CONTRA"

type Asset string

const AssetMoney Asset = "COMMERCIAL_BANK_MONEY"

type Denomination string

// Phase distinguishes settled funds from in-flight authorisations.
type Phase string

const (
	PhaseCommitted       Phase = "COMMITTED"
	PhasePendingOutgoing Phase = "PENDING_OUTGOING"
	PhasePendingIncoming Phase = "PENDING_INCOMING"
)

// =============================================================================
// COORDINATE - The full key of one balance bucket
// =============================================================================

type Coordinate struct {
	Account      AccountID
	Address      Address
	Asset        Asset
	Denomination Denomination
	Phase        Phase
}

// Committed returns the coordinate for settled funds on an address with the
// default asset. This is the shape nearly every engine reads and writes.
func Committed(account AccountID, address Address, denom Denomination) Coordinate {
	return Coordinate{
		Account:      account,
		Address:      address,
		Asset:        AssetMoney,
		Denomination: denom,
		Phase:        PhaseCommitted,
	}
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", c.Account, c.Address, c.Denomination, c.Phase)
}

// =============================================================================
// REJECTION - Structured refusal of a customer action
// =============================================================================

type RejectionReason string

const (
	RejectionInsufficientFunds RejectionReason = "INSUFFICIENT_FUNDS"
	RejectionAgainstTNC        RejectionReason = "AGAINST_TNC"
	RejectionWrongDenomination RejectionReason = "WRONG_DENOMINATION"
	RejectionCustom            RejectionReason = "CLIENT_CUSTOM_REASON"
)

// Rejection aborts the triggering customer action entirely. It carries a
// human-readable message plus a coarse machine-readable reason code; internal
// state is never exposed.
type Rejection struct {
	Message string
	Reason  RejectionReason
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

// NewRejection builds a rejection with a formatted message.
func NewRejection(reason RejectionReason, format string, args ...any) *Rejection {
	return &Rejection{Message: fmt.Sprintf(format, args...), Reason: reason}
}
