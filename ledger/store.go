/*
store.go - Posting journal persistence interface

PURPOSE:
  The journal records applied posting instructions. Like the host ledger it
  stands in for, it is APPEND-ONLY: no Update, no Delete, ever. Corrections
  are expressed as new reversal instructions.

IDEMPOTENCY:
  Append rejects an instruction whose client-transaction id was already
  journaled. AppendBatch is all-or-nothing.

IMPLEMENTATIONS:
  - ledger/store: in-memory, for tests and the simulator
  - store/sqlite:  SQLite-backed
*/
package ledger

import (
	"context"
	"time"
)

// Store persists applied posting instructions. Append-only.
type Store interface {
	// Append journals one instruction. Returns ErrDuplicateClientTransaction
	// if the client-transaction id was already journaled.
	Append(ctx context.Context, pi PostingInstruction) error

	// AppendBatch journals instructions atomically: all or none.
	AppendBatch(ctx context.Context, batch []PostingInstruction) error

	// Load returns all instructions touching the account, ordered by value
	// timestamp.
	Load(ctx context.Context, account AccountID) ([]PostingInstruction, error)

	// LoadRange returns instructions with value timestamps in [from, to].
	LoadRange(ctx context.Context, account AccountID, from, to time.Time) ([]PostingInstruction, error)

	// Exists reports whether a client-transaction id was already journaled.
	Exists(ctx context.Context, clientTransactionID string) (bool, error)
}

// Replay folds journaled instructions into a balance snapshot as of the given
// time. Instructions with later value timestamps are ignored.
func Replay(instructions []PostingInstruction, asOf time.Time) *Snapshot {
	snapshot := NewSnapshot(asOf, nil)
	var applicable []PostingInstruction
	for _, pi := range instructions {
		if !pi.ValueTimestamp.After(asOf) {
			applicable = append(applicable, pi)
		}
	}
	return snapshot.Apply(applicable...)
}
