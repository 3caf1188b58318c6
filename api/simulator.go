/*
simulator.go - Virtual-time loan lifecycle host

PURPOSE:
  Runs loan accounts against the lifecycle hooks without a real host
  bank. The simulator owns a virtual clock, the in-memory journal,
  each account's parameter store and schedules, and applies hook
  results the way a production host would: journal the postings,
  update the schedules, collect the notifications.

VIRTUAL TIME:
  Time only moves through AdvanceTo. Scheduled events that fall due
  in the advanced window fire in timestamp order, interleaved across
  accounts, each seeing the journal state left by the runs before it.
  Fired events record their run time so lookback logic (EMI reuse,
  reamortisation triggers) behaves exactly as it would live.

SCHEDULING:
  Interest accrual is a standing daily schedule. Everything else is
  planted by hook results: due calculation replants itself and plants
  the overdue check, the overdue check plants the delinquency check.

SEE ALSO:
  - hooks/hooks.go: the lifecycle being driven
  - handlers.go: HTTP surface over the simulator
*/
package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/hooks"
	"github.com/warp/lending-engine/ledger"
	"github.com/warp/lending-engine/ledger/store"
	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/product"
	"github.com/warp/lending-engine/schedule"
)

// Account is one simulated loan: its hooks, parameters, flags and
// pending schedules.
type Account struct {
	ID        ledger.AccountID
	ProductID string
	CreatedAt time.Time
	Closed    bool

	hooks   hooks.LoanProduct
	params  *ledger.MapParameters
	flags   *ledger.MapFlags
	lastRun map[string]time.Time

	// next run per event; absent means not scheduled
	schedules map[string]time.Time
}

// Notification is a dispatched workflow request tagged with its account.
type Notification struct {
	Account ledger.AccountID    `json:"account"`
	At      time.Time           `json:"at"`
	Type    string              `json:"type"`
	Details map[string]string   `json:"details,omitempty"`
}

// Simulator hosts loan accounts on a virtual clock.
type Simulator struct {
	mu            sync.Mutex
	journal       *store.Memory
	accounts      map[ledger.AccountID]*Account
	order         []ledger.AccountID
	now           time.Time
	notifications []Notification

	// archive mirrors every applied instruction to durable storage
	archive ledger.Store
}

// NewSimulator starts an empty simulation at the given instant.
func NewSimulator(start time.Time) *Simulator {
	return &Simulator{
		journal:  store.NewMemory(),
		accounts: make(map[ledger.AccountID]*Account),
		now:      start,
	}
}

// Now returns the virtual clock.
func (s *Simulator) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Archive mirrors every applied instruction to a durable journal in
// addition to the in-memory one. Set before any activity.
func (s *Simulator) Archive(st ledger.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archive = st
}

// Journal exposes the underlying journal for read-only inspection.
func (s *Simulator) Journal() *store.Memory {
	return s.journal
}

// =============================================================================
// ACCOUNT LIFECYCLE
// =============================================================================

// OpenLoan activates a new loan account against a product at the
// current virtual time: principal is disbursed and the schedules are
// planted.
func (s *Simulator) OpenLoan(id ledger.AccountID, prod *product.Product, opening product.Opening) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[id]; exists {
		return fmt.Errorf("account %s already exists", id)
	}

	params := prod.Parameters(opening, s.now)
	hk, err := prod.HooksFor(params, s.now)
	if err != nil {
		return err
	}

	acct := &Account{
		ID:        id,
		ProductID: prod.ID,
		CreatedAt: s.now,
		hooks:     hk,
		params:    params,
		flags:     ledger.NewMapFlags(),
		lastRun:   make(map[string]time.Time),
		schedules: make(map[string]time.Time),
	}

	result, err := acct.hooks.Activate(s.snapshotLocked(acct), s.now)
	if err != nil {
		return err
	}
	if err := s.applyLocked(acct, result, s.now); err != nil {
		return err
	}

	s.accounts[id] = acct
	s.order = append(s.order, id)
	return nil
}

// CloseLoan deactivates an account. Outstanding debt rejects the close.
func (s *Simulator) CloseLoan(id ledger.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.accountLocked(id)
	if err != nil {
		return err
	}

	result := acct.hooks.Deactivate(s.snapshotLocked(acct), s.now)
	if result.Rejection != nil {
		return result.Rejection
	}
	if err := s.applyLocked(acct, result, s.now); err != nil {
		return err
	}

	acct.Closed = true
	acct.schedules = make(map[string]time.Time)
	return nil
}

// SetFlag activates a flag on an account from now until cleared.
func (s *Simulator) SetFlag(id ledger.AccountID, flag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.accountLocked(id)
	if err != nil {
		return err
	}
	acct.flags.Activate(flag, s.now, time.Time{})
	return nil
}

// SetParameter updates a parameter value at the current virtual time.
// The change time feeds reamortisation triggers.
func (s *Simulator) SetParameter(id ledger.AccountID, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.accountLocked(id)
	if err != nil {
		return err
	}
	acct.params.Set(name, value, s.now)
	return nil
}

// =============================================================================
// REPAYMENTS
// =============================================================================

// Repay submits a repayment against the account at the current virtual
// time. The instruction passes through pre-posting validation, is
// journaled, and the post-posting distribution follows it.
func (s *Simulator) Repay(id ledger.AccountID, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.accountLocked(id)
	if err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("repayment amount must be positive")
	}

	cfg := acct.hooks.Config
	incoming := ledger.PostingInstruction{
		Postings: ledger.NewPostingPair(amount,
			cfg.RepaymentAccount, ledger.DefaultAddress,
			id, ledger.DefaultAddress, cfg.Denomination),
		Description:         fmt.Sprintf("Repayment of %s", amount.String()),
		EventTag:            "REPAYMENT",
		ClientTransactionID: ledger.ClientTransactionID("REPAYMENT", id, ledger.ExecutionID(s.now)),
		ValueTimestamp:      s.now,
	}

	snapshot := s.snapshotLocked(acct)
	if rejection := acct.hooks.PrePosting(snapshot, incoming, s.now); rejection != nil {
		return rejection
	}
	if err := s.journal.Append(context.Background(), incoming); err != nil {
		return err
	}
	if s.archive != nil {
		if err := s.archive.Append(context.Background(), incoming); err != nil {
			return err
		}
	}

	result := acct.hooks.PostPosting(s.snapshotLocked(acct), incoming, s.now)
	return s.applyLocked(acct, result, s.now)
}

// =============================================================================
// VIRTUAL CLOCK
// =============================================================================

type pendingRun struct {
	account ledger.AccountID
	event   string
	at      time.Time
}

// AdvanceTo moves the clock forward, firing every scheduled event that
// falls due on the way in timestamp order.
func (s *Simulator) AdvanceTo(target time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if target.Before(s.now) {
		return fmt.Errorf("cannot advance backwards: %s is before %s", target, s.now)
	}

	for {
		run, ok := s.nextRunLocked(target)
		if !ok {
			break
		}

		acct := s.accounts[run.account]
		delete(acct.schedules, run.event)
		s.now = run.at

		result, err := acct.hooks.OnScheduledEvent(s.snapshotLocked(acct), schedule.Event(run.event), run.at)
		if err != nil {
			return fmt.Errorf("account %s event %s at %s: %w", run.account, run.event, run.at, err)
		}
		if err := s.applyLocked(acct, result, run.at); err != nil {
			return err
		}
		acct.lastRun[run.event] = run.at

		// Accrual is a standing daily schedule unless the hook said otherwise.
		if run.event == string(schedule.EventAccrueInterest) {
			if _, reset := acct.schedules[run.event]; !reset {
				acct.schedules[run.event] = run.at.AddDate(0, 0, 1)
			}
		}
	}

	s.now = target
	return nil
}

// AdvanceDays steps the clock forward by whole days.
func (s *Simulator) AdvanceDays(days int) error {
	return s.AdvanceTo(s.Now().AddDate(0, 0, days))
}

// nextRunLocked finds the earliest pending run at or before target.
// Registration order breaks timestamp ties so runs are deterministic.
func (s *Simulator) nextRunLocked(target time.Time) (pendingRun, bool) {
	var (
		best  pendingRun
		found bool
	)
	for _, id := range s.order {
		acct := s.accounts[id]
		if acct.Closed {
			continue
		}

		events := make([]string, 0, len(acct.schedules))
		for event := range acct.schedules {
			events = append(events, event)
		}
		sort.Strings(events)

		for _, event := range events {
			at := acct.schedules[event]
			if at.After(target) {
				continue
			}
			if !found || at.Before(best.at) {
				best = pendingRun{account: id, event: event, at: at}
				found = true
			}
		}
	}
	return best, found
}

// =============================================================================
// STATE READS
// =============================================================================

// BalancesOf returns the account's address balances at the current
// virtual time. Zero balances are omitted.
func (s *Simulator) BalancesOf(id ledger.AccountID) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.accountLocked(id)
	if err != nil {
		return nil, err
	}

	snap := s.journal.At(s.now)
	out := make(map[string]string)
	for _, coord := range snap.Coordinates() {
		if coord.Account != acct.ID || coord.Phase != ledger.PhaseCommitted {
			continue
		}
		amount := snap.Amount(coord)
		if amount.IsZero() {
			continue
		}
		out[string(coord.Address)] = amount.String()
	}
	return out, nil
}

// StateOf reports the account's repayment state at the current time.
func (s *Simulator) StateOf(id ledger.AccountID) (lending.RepaymentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.accountLocked(id)
	if err != nil {
		return "", err
	}
	return acct.hooks.Overdue.StateOf(s.snapshotLocked(acct), s.now), nil
}

// Notifications returns everything dispatched so far, oldest first.
func (s *Simulator) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.notifications...)
}

// Accounts lists the simulated accounts in registration order.
func (s *Simulator) Accounts() []*Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Account, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.accounts[id])
	}
	return out
}

// =============================================================================
// INTERNAL
// =============================================================================

func (s *Simulator) accountLocked(id ledger.AccountID) (*Account, error) {
	acct, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, ledger.ErrAccountNotFound)
	}
	if acct.Closed {
		return nil, fmt.Errorf("account %s is closed", id)
	}
	return acct, nil
}

func (s *Simulator) snapshotLocked(acct *Account) ledger.AccountSnapshot {
	return ledger.AccountSnapshot{
		Account:   acct.ID,
		CreatedAt: acct.CreatedAt,
		Balances:  s.journal,
		Params:    ledger.Lookup{Params: acct.params},
		Flags:     acct.flags,
		LastRun:   acct.lastRun,
		NextRun:   acct.schedules,
	}
}

// applyLocked commits a hook result: postings to the journal, schedule
// updates to the account, notifications to the log.
func (s *Simulator) applyLocked(acct *Account, result ledger.HookResult, at time.Time) error {
	if result.Rejection != nil {
		return result.Rejection
	}
	if len(result.Instructions) > 0 {
		if err := s.journal.AppendBatch(context.Background(), result.Instructions); err != nil {
			return err
		}
		if s.archive != nil {
			if err := s.archive.AppendBatch(context.Background(), result.Instructions); err != nil {
				return err
			}
		}
	}
	for _, update := range result.ScheduleUpdates {
		if update.Skip {
			delete(acct.schedules, update.Event)
			continue
		}
		acct.schedules[update.Event] = update.NextRun
	}
	for _, n := range result.Notifications {
		s.notifications = append(s.notifications, Notification{
			Account: acct.ID,
			At:      at,
			Type:    n.Type,
			Details: n.Details,
		})
	}
	return nil
}
