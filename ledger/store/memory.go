// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/lending-engine/ledger"
)

// =============================================================================
// MEMORY JOURNAL - In-memory implementation (for testing/simulation)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	instructions []ledger.PostingInstruction
	idempotency  map[string]bool
}

func NewMemory() *Memory {
	return &Memory{idempotency: make(map[string]bool)}
}

// Append journals a single instruction. Append-only.
func (m *Memory) Append(_ context.Context, pi ledger.PostingInstruction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(pi)
}

// AppendBatch journals multiple instructions atomically.
func (m *Memory) AppendBatch(_ context.Context, batch []ledger.PostingInstruction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all idempotency keys first (atomic check)
	for _, pi := range batch {
		if pi.ClientTransactionID != "" && m.idempotency[pi.ClientTransactionID] {
			return ledger.ErrDuplicateClientTransaction
		}
	}
	for _, pi := range batch {
		if err := m.appendLocked(pi); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) appendLocked(pi ledger.PostingInstruction) error {
	if pi.ClientTransactionID != "" && m.idempotency[pi.ClientTransactionID] {
		return ledger.ErrDuplicateClientTransaction
	}
	if !pi.Balanced() {
		return ledger.ErrUnbalancedInstruction
	}

	// Binary search for insertion point keeps the journal time-ordered.
	i := sort.Search(len(m.instructions), func(i int) bool {
		return m.instructions[i].ValueTimestamp.After(pi.ValueTimestamp)
	})
	m.instructions = append(m.instructions, ledger.PostingInstruction{})
	copy(m.instructions[i+1:], m.instructions[i:])
	m.instructions[i] = pi

	if pi.ClientTransactionID != "" {
		m.idempotency[pi.ClientTransactionID] = true
	}
	return nil
}

// Load returns all instructions touching the account, time-ordered.
func (m *Memory) Load(_ context.Context, account ledger.AccountID) ([]ledger.PostingInstruction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.PostingInstruction
	for _, pi := range m.instructions {
		if touches(pi, account) {
			out = append(out, pi)
		}
	}
	return out, nil
}

// LoadRange returns the account's instructions with value timestamps in [from, to].
func (m *Memory) LoadRange(_ context.Context, account ledger.AccountID, from, to time.Time) ([]ledger.PostingInstruction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.PostingInstruction
	for _, pi := range m.instructions {
		if !touches(pi, account) {
			continue
		}
		if pi.ValueTimestamp.Before(from) || pi.ValueTimestamp.After(to) {
			continue
		}
		out = append(out, pi)
	}
	return out, nil
}

// Exists reports whether the client-transaction id was journaled.
func (m *Memory) Exists(_ context.Context, clientTransactionID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[clientTransactionID], nil
}

// At implements ledger.BalanceReader by replaying the whole journal. The
// snapshot spans every journaled account, which is what line-of-credit
// supervision needs.
func (m *Memory) At(at time.Time) *ledger.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ledger.Replay(m.instructions, at)
}

func touches(pi ledger.PostingInstruction, account ledger.AccountID) bool {
	for _, p := range pi.Postings {
		if p.Account == account {
			return true
		}
	}
	return false
}
