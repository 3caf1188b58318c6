package ledger

import "time"

// =============================================================================
// ACCOUNT SNAPSHOT - The read-only view a hook computes against
// =============================================================================

// AccountSnapshot is the immutable per-account view the host hands to a hook:
// balances (with history), parameters, flags, creation date and prior
// schedule executions. The core never mutates it; all mutation is expressed
// as emitted postings the host folds in later.
type AccountSnapshot struct {
	Account   AccountID
	CreatedAt time.Time
	Balances  BalanceReader
	Params    Lookup
	Flags     Flags

	// LastRun holds the prior execution time per scheduled event type.
	LastRun map[string]time.Time

	// NextRun holds the planted next execution time per scheduled event
	// type. Activation can plant the first due calculation more than a
	// month out, so engines must read the planted time rather than derive
	// one from the recurrence.
	NextRun map[string]time.Time
}

// LastExecution returns when the named event last ran, if ever.
func (a AccountSnapshot) LastExecution(event string) (time.Time, bool) {
	t, ok := a.LastRun[event]
	return t, ok
}

// NextExecution returns when the named event is next scheduled to run,
// if planted.
func (a AccountSnapshot) NextExecution(event string) (time.Time, bool) {
	t, ok := a.NextRun[event]
	return t, ok
}

// FlagsOrNone guards against a nil Flags field.
func (a AccountSnapshot) FlagsOrNone() Flags {
	if a.Flags == nil {
		return NoFlags{}
	}
	return a.Flags
}

// AnyFlagActive reports whether any of the given flags is active at the time.
func (a AccountSnapshot) AnyFlagActive(flags []string, at time.Time) bool {
	f := a.FlagsOrNone()
	for _, name := range flags {
		if f.IsActive(name, at) {
			return true
		}
	}
	return false
}
