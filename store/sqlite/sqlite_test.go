package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/ledger"
	"github.com/warp/lending-engine/store/sqlite"
)

// =============================================================================
// HELPERS
// =============================================================================

var journalStart = time.Date(2024, time.January, 5, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func instruction(t *testing.T, id string, at time.Time, amount string) ledger.PostingInstruction {
	t.Helper()
	d, err := decimal.NewFromString(amount)
	if err != nil {
		t.Fatalf("bad amount %q: %v", amount, err)
	}
	return ledger.PostingInstruction{
		Postings: ledger.NewPostingPair(d,
			"LOAN_1", ledger.InternalContra,
			"LOAN_1", "PRINCIPAL", "GBP"),
		ClientTransactionID: id,
		EventTag:            "TEST",
		ValueTimestamp:      at,
	}
}

// =============================================================================
// APPEND
// =============================================================================

func TestAppendRoundTripsInstruction(t *testing.T) {
	// GIVEN a journaled instruction
	// WHEN the account is loaded back
	// THEN every field of the instruction and its legs survives the trip
	s := newStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, instruction(t, "tx-1", journalStart, "100.50")); err != nil {
		t.Fatalf("append: %v", err)
	}

	loaded, err := s.Load(ctx, "LOAN_1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d instructions, want 1", len(loaded))
	}

	got := loaded[0]
	if got.ClientTransactionID != "tx-1" {
		t.Errorf("client transaction id = %q", got.ClientTransactionID)
	}
	if got.EventTag != "TEST" {
		t.Errorf("event tag = %q", got.EventTag)
	}
	if !got.ValueTimestamp.Equal(journalStart) {
		t.Errorf("value timestamp = %v, want %v", got.ValueTimestamp, journalStart)
	}
	if len(got.Postings) != 2 {
		t.Fatalf("got %d postings, want 2", len(got.Postings))
	}
	if !got.Balanced() {
		t.Error("round-tripped instruction is no longer balanced")
	}
	if !got.Postings[0].Amount.Equal(decimal.RequireFromString("100.50")) {
		t.Errorf("amount = %s, want 100.50", got.Postings[0].Amount)
	}
}

func TestAppendRejectsDuplicateClientTransaction(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	pi := instruction(t, "tx-1", journalStart, "100")

	if err := s.Append(ctx, pi); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := s.Append(ctx, pi); !errors.Is(err, ledger.ErrDuplicateClientTransaction) {
		t.Fatalf("retry err = %v, want ErrDuplicateClientTransaction", err)
	}

	loaded, _ := s.Load(ctx, "LOAN_1")
	if len(loaded) != 1 {
		t.Errorf("journal holds %d entries, want 1", len(loaded))
	}
}

func TestAppendRejectsUnbalancedInstruction(t *testing.T) {
	s := newStore(t)
	pi := ledger.PostingInstruction{Postings: []ledger.Posting{{
		Account: "LOAN_1", Address: "PRINCIPAL", Asset: ledger.AssetMoney,
		Denomination: "GBP", Phase: ledger.PhaseCommitted,
		Amount: decimal.NewFromInt(5), Credit: true,
	}}}
	if err := s.Append(context.Background(), pi); !errors.Is(err, ledger.ErrUnbalancedInstruction) {
		t.Errorf("err = %v, want ErrUnbalancedInstruction", err)
	}
}

func TestAppendBatchIsAtomicOnDuplicates(t *testing.T) {
	// GIVEN one instruction already journaled
	// WHEN a batch containing a fresh entry AND the duplicate arrives
	// THEN the transaction rolls back and nothing from the batch lands
	s := newStore(t)
	ctx := context.Background()
	if err := s.Append(ctx, instruction(t, "tx-1", journalStart, "100")); err != nil {
		t.Fatalf("seed append: %v", err)
	}

	batch := []ledger.PostingInstruction{
		instruction(t, "tx-2", journalStart.Add(time.Hour), "50"),
		instruction(t, "tx-1", journalStart.Add(2*time.Hour), "25"),
	}
	if err := s.AppendBatch(ctx, batch); !errors.Is(err, ledger.ErrDuplicateClientTransaction) {
		t.Fatalf("batch err = %v, want ErrDuplicateClientTransaction", err)
	}

	loaded, _ := s.Load(ctx, "LOAN_1")
	if len(loaded) != 1 {
		t.Errorf("journal holds %d entries, want 1 (tx-2 must not leak)", len(loaded))
	}
	if ok, _ := s.Exists(ctx, "tx-2"); ok {
		t.Error("tx-2 exists after a rolled-back batch")
	}
}

// =============================================================================
// READS
// =============================================================================

func TestLoadOrdersByValueTimestamp(t *testing.T) {
	// Appended out of order, read back in time order.
	s := newStore(t)
	ctx := context.Background()

	for _, pi := range []ledger.PostingInstruction{
		instruction(t, "tx-late", journalStart.Add(48*time.Hour), "3"),
		instruction(t, "tx-early", journalStart, "1"),
		instruction(t, "tx-mid", journalStart.Add(24*time.Hour), "2"),
	} {
		if err := s.Append(ctx, pi); err != nil {
			t.Fatalf("append %s: %v", pi.ClientTransactionID, err)
		}
	}

	loaded, err := s.Load(ctx, "LOAN_1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"tx-early", "tx-mid", "tx-late"}
	if len(loaded) != len(want) {
		t.Fatalf("loaded %d instructions, want %d", len(loaded), len(want))
	}
	for i, id := range want {
		if loaded[i].ClientTransactionID != id {
			t.Errorf("position %d = %s, want %s", i, loaded[i].ClientTransactionID, id)
		}
	}
}

func TestLoadScopesToAccount(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, instruction(t, "tx-1", journalStart, "100")); err != nil {
		t.Fatalf("append: %v", err)
	}

	loaded, err := s.Load(ctx, "OTHER_LOAN")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("unrelated account sees %d instructions, want 0", len(loaded))
	}
}

func TestLoadRangeIsInclusive(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i, id := range []string{"tx-1", "tx-2", "tx-3"} {
		at := journalStart.Add(time.Duration(i) * 24 * time.Hour)
		if err := s.Append(ctx, instruction(t, id, at, "10")); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	loaded, err := s.LoadRange(ctx, "LOAN_1", journalStart, journalStart.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("load range: %v", err)
	}
	if len(loaded) != 2 {
		t.Errorf("range holds %d instructions, want 2 (both bounds inclusive)", len(loaded))
	}
}

func TestExists(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, instruction(t, "tx-1", journalStart, "100")); err != nil {
		t.Fatalf("append: %v", err)
	}

	if ok, err := s.Exists(ctx, "tx-1"); err != nil || !ok {
		t.Errorf("Exists(tx-1) = %v, %v; want true", ok, err)
	}
	if ok, err := s.Exists(ctx, "tx-404"); err != nil || ok {
		t.Errorf("Exists(tx-404) = %v, %v; want false", ok, err)
	}
}

func TestResetClearsJournal(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, instruction(t, "tx-1", journalStart, "100")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	loaded, _ := s.Load(ctx, "LOAN_1")
	if len(loaded) != 0 {
		t.Errorf("journal holds %d entries after reset, want 0", len(loaded))
	}
	if ok, _ := s.Exists(ctx, "tx-1"); ok {
		t.Error("client transaction survives a reset")
	}
}

// The idempotency index only applies to non-empty ids: internal batches
// without a client transaction id can repeat freely.
func TestEmptyClientTransactionIDsMayRepeat(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		pi := instruction(t, "", journalStart.Add(time.Duration(i)*time.Hour), "10")
		if err := s.Append(ctx, pi); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	loaded, _ := s.Load(ctx, "LOAN_1")
	if len(loaded) != 2 {
		t.Errorf("journal holds %d entries, want 2", len(loaded))
	}
}
