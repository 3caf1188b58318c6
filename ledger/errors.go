/*
errors.go - Centralized error types for the ledger package

PURPOSE:
  All sentinel errors in one place. Two families matter:

  1. Configuration errors (missing/malformed parameters) - no safe default
     exists, so they propagate to the host for an operator to fix.
  2. Journal errors (duplicate idempotency key) - expected behaviour for
     retries, checked with errors.Is.

  Zero/negative amounts are NOT errors anywhere in the engine: posting
  builders absorb them and produce nothing.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrParameterMissing is returned when a required parameter has no value.
	ErrParameterMissing = errors.New("parameter missing")

	// ErrDuplicateClientTransaction is returned when an instruction with the
	// same client-transaction id was already journaled. Expected on retries.
	ErrDuplicateClientTransaction = errors.New("duplicate client transaction id")

	// ErrUnbalancedInstruction is returned when an instruction does not net
	// to zero per denomination. Always a bug in the emitting component.
	ErrUnbalancedInstruction = errors.New("posting instruction does not balance")

	// ErrUnknownEvent is returned when a scheduled event has no handler.
	ErrUnknownEvent = errors.New("unknown scheduled event")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ParameterError wraps a configuration failure with the parameter name.
type ParameterError struct {
	Name  string
	Cause error
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("parameter %q: %v", e.Name, e.Cause)
}

func (e *ParameterError) Unwrap() error { return e.Cause }
