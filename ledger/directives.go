/*
directives.go - What a hook returns to the host

PURPOSE:
  A hook is a pure function from snapshot to directives. The host - not the
  core - persists balances, runs schedules and applies posting batches
  atomically. Directives are the complete, declarative description of what
  should happen:

    - posting-instruction batches to apply to the ledger
    - schedule updates (event type -> new next-run)
    - notifications to dispatch (fire-and-forget workflows)
    - an optional hard rejection aborting the triggering action

  The host guarantees per-account serialisation, idempotency per
  client-transaction id, and all-or-nothing batch application. The core's
  share of that contract is generating deterministic idempotency keys.
*/
package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// SCHEDULE UPDATE
// =============================================================================

// ScheduleUpdate re-points one scheduled event. Schedules never self-mutate.
type ScheduleUpdate struct {
	Event   string
	NextRun time.Time
	Skip    bool
}

// =============================================================================
// NOTIFICATION
// =============================================================================

// Notification asks the host to dispatch an external workflow. Fire and
// forget: the core never observes the outcome.
type Notification struct {
	Type    string
	Details map[string]string
}

// =============================================================================
// HOOK RESULT
// =============================================================================

// HookResult bundles everything a hook hands back. A non-nil Rejection aborts
// the triggering customer action entirely; the other directives are then
// ignored by the host.
type HookResult struct {
	Instructions    []PostingInstruction
	ScheduleUpdates []ScheduleUpdate
	Notifications   []Notification
	Rejection       *Rejection
}

// Merge appends another result's directives. The first rejection wins.
func (r HookResult) Merge(other HookResult) HookResult {
	merged := HookResult{
		Instructions:    append(r.Instructions, other.Instructions...),
		ScheduleUpdates: append(r.ScheduleUpdates, other.ScheduleUpdates...),
		Notifications:   append(r.Notifications, other.Notifications...),
		Rejection:       r.Rejection,
	}
	if merged.Rejection == nil {
		merged.Rejection = other.Rejection
	}
	return merged
}

// IsEmpty reports whether the result carries no directives at all.
func (r HookResult) IsEmpty() bool {
	return len(r.Instructions) == 0 && len(r.ScheduleUpdates) == 0 &&
		len(r.Notifications) == 0 && r.Rejection == nil
}

// =============================================================================
// IDEMPOTENCY KEYS
// =============================================================================

// ClientTransactionID builds the deterministic idempotency key for one
// logical operation: event type, execution id, and target. Duplicate delivery
// of the same scheduled event therefore produces the same key and a no-op on
// the ledger side.
func ClientTransactionID(event string, account AccountID, executionID string) string {
	return fmt.Sprintf("%s_%s_%s", event, account, executionID)
}

// ExecutionID derives a stable execution id from an effective time. Hosts
// that supply their own execution ids bypass this.
func ExecutionID(effective time.Time) string {
	return effective.UTC().Format("20060102T150405.000000")
}
