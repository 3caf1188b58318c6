/*
Package sqlite provides a SQLite-backed implementation of the posting journal.

PURPOSE:
  Implements ledger.Store using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The journal enforces append-only semantics:
  - No UPDATE statements on the instruction tables
  - No DELETE statements on the instruction tables
  - Corrections via reversal instructions only

KEY TABLES:
  instructions: one row per applied posting instruction
  postings:     the individual debit/credit legs of each instruction

INDEXES:
  - idx_instructions_client_tx: idempotency enforcement (UNIQUE)
  - idx_postings_account:       account-scoped journal reads (hot path)
  - idx_instructions_value_ts:  time-range reads

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  journal, err := sqlite.New("./data/loans.db")
  if err != nil {
      log.Fatal(err)
  }
  defer journal.Close()

  err = journal.Append(ctx, instruction)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: interface definition
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite journal with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Instructions (append-only journal)
	CREATE TABLE IF NOT EXISTS instructions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_transaction_id TEXT,
		event_tag TEXT NOT NULL,
		description TEXT,
		value_timestamp TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Idempotency: a client transaction id is journaled at most once
	CREATE UNIQUE INDEX IF NOT EXISTS idx_instructions_client_tx
		ON instructions(client_transaction_id)
		WHERE client_transaction_id IS NOT NULL AND client_transaction_id != '';

	CREATE INDEX IF NOT EXISTS idx_instructions_value_ts
		ON instructions(value_timestamp);

	-- Posting legs of each instruction
	CREATE TABLE IF NOT EXISTS postings (
		instruction_id INTEGER NOT NULL REFERENCES instructions(id),
		seq INTEGER NOT NULL,
		account TEXT NOT NULL,
		address TEXT NOT NULL,
		asset TEXT NOT NULL,
		denomination TEXT NOT NULL,
		phase TEXT NOT NULL,
		amount TEXT NOT NULL,
		credit BOOLEAN NOT NULL,
		PRIMARY KEY (instruction_id, seq)
	);

	-- Account-scoped reads are the hot path for balance replay
	CREATE INDEX IF NOT EXISTS idx_postings_account
		ON postings(account);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// JOURNAL (ledger.Store interface)
// =============================================================================

// Append journals one instruction.
func (s *Store) Append(ctx context.Context, pi ledger.PostingInstruction) error {
	return s.AppendBatch(ctx, []ledger.PostingInstruction{pi})
}

// AppendBatch journals instructions atomically: all or none.
func (s *Store) AppendBatch(ctx context.Context, batch []ledger.PostingInstruction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicate client transaction ids within the batch first
	seen := make(map[string]bool)
	for _, pi := range batch {
		if pi.ClientTransactionID != "" {
			if seen[pi.ClientTransactionID] {
				return ledger.ErrDuplicateClientTransaction
			}
			seen[pi.ClientTransactionID] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, pi := range batch {
		if err := s.appendTx(ctx, sqlTx, pi); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

func (s *Store) appendTx(ctx context.Context, tx *sql.Tx, pi ledger.PostingInstruction) error {
	if !pi.Balanced() {
		return ledger.ErrUnbalancedInstruction
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO instructions (client_transaction_id, event_tag, description, value_timestamp, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		pi.ClientTransactionID,
		pi.EventTag,
		pi.Description,
		pi.ValueTimestamp.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateClientTransaction
		}
		return fmt.Errorf("failed to append instruction: %w", err)
	}

	instructionID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read instruction id: %w", err)
	}

	for seq, posting := range pi.Postings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO postings (instruction_id, seq, account, address, asset, denomination, phase, amount, credit)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			instructionID, seq,
			string(posting.Account), string(posting.Address), string(posting.Asset),
			string(posting.Denomination), string(posting.Phase),
			posting.Amount.String(), posting.Credit,
		)
		if err != nil {
			return fmt.Errorf("failed to append posting: %w", err)
		}
	}
	return nil
}

// Load returns all instructions touching the account, ordered by value
// timestamp.
func (s *Store) Load(ctx context.Context, account ledger.AccountID) ([]ledger.PostingInstruction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT DISTINCT i.id
		FROM instructions i
		JOIN postings p ON p.instruction_id = i.id
		WHERE p.account = ?
		ORDER BY i.value_timestamp ASC, i.id ASC
	`
	return s.queryInstructions(ctx, query, string(account))
}

// LoadRange returns instructions with value timestamps in [from, to].
func (s *Store) LoadRange(ctx context.Context, account ledger.AccountID, from, to time.Time) ([]ledger.PostingInstruction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT DISTINCT i.id
		FROM instructions i
		JOIN postings p ON p.instruction_id = i.id
		WHERE p.account = ? AND i.value_timestamp >= ? AND i.value_timestamp <= ?
		ORDER BY i.value_timestamp ASC, i.id ASC
	`
	return s.queryInstructions(ctx, query, string(account),
		from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano))
}

// Exists reports whether a client transaction id was already journaled.
func (s *Store) Exists(ctx context.Context, clientTransactionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM instructions WHERE client_transaction_id = ?",
		clientTransactionID,
	).Scan(&count)

	return count > 0, err
}

func (s *Store) queryInstructions(ctx context.Context, idQuery string, args ...any) ([]ledger.PostingInstruction, error) {
	rows, err := s.db.QueryContext(ctx, idQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instructions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan instruction id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	instructions := make([]ledger.PostingInstruction, 0, len(ids))
	for _, id := range ids {
		pi, err := s.loadInstruction(ctx, id)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, pi)
	}
	return instructions, nil
}

func (s *Store) loadInstruction(ctx context.Context, id int64) (ledger.PostingInstruction, error) {
	var (
		pi             ledger.PostingInstruction
		valueTimestamp string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT client_transaction_id, event_tag, description, value_timestamp FROM instructions WHERE id = ?",
		id,
	).Scan(&pi.ClientTransactionID, &pi.EventTag, &pi.Description, &valueTimestamp)
	if err != nil {
		return pi, fmt.Errorf("failed to scan instruction: %w", err)
	}
	pi.ValueTimestamp, err = time.Parse(time.RFC3339Nano, valueTimestamp)
	if err != nil {
		return pi, fmt.Errorf("failed to parse value timestamp: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT account, address, asset, denomination, phase, amount, credit
		 FROM postings WHERE instruction_id = ? ORDER BY seq ASC`,
		id,
	)
	if err != nil {
		return pi, fmt.Errorf("failed to query postings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			posting ledger.Posting
			amount  string
		)
		if err := rows.Scan(&posting.Account, &posting.Address, &posting.Asset,
			&posting.Denomination, &posting.Phase, &amount, &posting.Credit); err != nil {
			return pi, fmt.Errorf("failed to scan posting: %w", err)
		}
		posting.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return pi, fmt.Errorf("failed to parse posting amount: %w", err)
		}
		pi.Postings = append(pi.Postings, posting)
	}
	return pi, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"postings", "instructions"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
