/*
params.go - Typed parameter and flag lookup

PURPOSE:
  Product behaviour is driven by parameters stored outside the core: rates,
  terms, fee amounts, blocking-flag sets. The core treats that storage as a
  key-value service queried "as of" a date and never writes to it.

OPTIONALITY:
  A parameter is either required (missing -> configuration error, propagated)
  or optional with an explicit default. Optionality is expressed through the
  Optional result type and its OrElse resolution, not through boolean flags
  and untyped default values.

ERRORS:
  Malformed values (unparseable decimal, invalid JSON) are configuration
  errors for an operator to fix. They propagate; no safe default exists.
*/
package ledger

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PARAMETERS - Read-only key-value service
// =============================================================================

// Parameters is the host-provided parameter store. Values are raw strings;
// typed access goes through Lookup.
type Parameters interface {
	// Value returns the raw value of a parameter as of the given time.
	Value(name string, at time.Time) (string, bool)

	// LastChanged returns when the parameter last changed value. Used by
	// reamortisation triggers to compare against the last execution time.
	LastChanged(name string) (time.Time, bool)
}

// Flags is the host-provided boolean flag timeseries.
type Flags interface {
	// IsActive reports whether the flag is active at the given time.
	IsActive(flag string, at time.Time) bool
}

// NoFlags is a Flags implementation with nothing set.
type NoFlags struct{}

func (NoFlags) IsActive(string, time.Time) bool { return false }

// =============================================================================
// OPTIONAL - Explicit presence instead of sentinel defaults
// =============================================================================

type Optional[T any] struct {
	value T
	set   bool
}

func Some[T any](v T) Optional[T] { return Optional[T]{value: v, set: true} }
func None[T any]() Optional[T]    { return Optional[T]{} }

// Get returns the value and whether one was present.
func (o Optional[T]) Get() (T, bool) { return o.value, o.set }

// OrElse resolves the optional against an explicit default.
func (o Optional[T]) OrElse(def T) T {
	if o.set {
		return o.value
	}
	return def
}

// =============================================================================
// LOOKUP - Typed parameter access
// =============================================================================

// Lookup wraps Parameters with typed getters. Required getters return a
// ParameterError when the parameter is missing or malformed; Opt variants
// return None when missing but still fail on malformed values.
type Lookup struct {
	Params Parameters
}

func (l Lookup) Decimal(name string, at time.Time) (decimal.Decimal, error) {
	raw, ok := l.Params.Value(name, at)
	if !ok {
		return decimal.Zero, &ParameterError{Name: name, Cause: ErrParameterMissing}
	}
	return parseDecimal(name, raw)
}

func (l Lookup) OptDecimal(name string, at time.Time) (Optional[decimal.Decimal], error) {
	raw, ok := l.Params.Value(name, at)
	if !ok {
		return None[decimal.Decimal](), nil
	}
	d, err := parseDecimal(name, raw)
	if err != nil {
		return None[decimal.Decimal](), err
	}
	return Some(d), nil
}

func (l Lookup) Int(name string, at time.Time) (int, error) {
	raw, ok := l.Params.Value(name, at)
	if !ok {
		return 0, &ParameterError{Name: name, Cause: ErrParameterMissing}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ParameterError{Name: name, Cause: err}
	}
	return n, nil
}

func (l Lookup) OptInt(name string, at time.Time) (Optional[int], error) {
	raw, ok := l.Params.Value(name, at)
	if !ok {
		return None[int](), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return None[int](), &ParameterError{Name: name, Cause: err}
	}
	return Some(n), nil
}

func (l Lookup) String(name string, at time.Time) (string, error) {
	raw, ok := l.Params.Value(name, at)
	if !ok {
		return "", &ParameterError{Name: name, Cause: ErrParameterMissing}
	}
	return raw, nil
}

func (l Lookup) OptString(name string, at time.Time) Optional[string] {
	raw, ok := l.Params.Value(name, at)
	if !ok {
		return None[string]()
	}
	return Some(raw)
}

func (l Lookup) Bool(name string, at time.Time) (bool, error) {
	raw, ok := l.Params.Value(name, at)
	if !ok {
		return false, &ParameterError{Name: name, Cause: ErrParameterMissing}
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &ParameterError{Name: name, Cause: err}
	}
	return b, nil
}

// JSON decodes a JSON-valued parameter into v. Missing is an error; callers
// wanting optional JSON check with OptString first.
func (l Lookup) JSON(name string, at time.Time, v any) error {
	raw, ok := l.Params.Value(name, at)
	if !ok {
		return &ParameterError{Name: name, Cause: ErrParameterMissing}
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return &ParameterError{Name: name, Cause: err}
	}
	return nil
}

func parseDecimal(name, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &ParameterError{Name: name, Cause: err}
	}
	return d, nil
}

// =============================================================================
// MAP-BACKED IMPLEMENTATIONS - For the simulator and tests
// =============================================================================

// MapParameters is a Parameters implementation over plain maps. Set records
// the change time so LastChanged works for trigger comparisons.
type MapParameters struct {
	values  map[string]string
	changed map[string]time.Time
}

func NewMapParameters(values map[string]string) *MapParameters {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &MapParameters{values: copied, changed: make(map[string]time.Time)}
}

// Set updates a value, recording at as its change time.
func (m *MapParameters) Set(name, value string, at time.Time) {
	m.values[name] = value
	m.changed[name] = at
}

func (m *MapParameters) Value(name string, _ time.Time) (string, bool) {
	v, ok := m.values[name]
	return v, ok
}

func (m *MapParameters) LastChanged(name string) (time.Time, bool) {
	t, ok := m.changed[name]
	return t, ok
}

// MapFlags is a Flags implementation over activation windows.
type MapFlags struct {
	windows map[string][]flagWindow
}

type flagWindow struct{ from, to time.Time }

func NewMapFlags() *MapFlags {
	return &MapFlags{windows: make(map[string][]flagWindow)}
}

// Activate marks the flag active in [from, to). A zero to means open-ended.
func (m *MapFlags) Activate(flag string, from, to time.Time) {
	m.windows[flag] = append(m.windows[flag], flagWindow{from: from, to: to})
}

func (m *MapFlags) IsActive(flag string, at time.Time) bool {
	for _, w := range m.windows[flag] {
		if at.Before(w.from) {
			continue
		}
		if w.to.IsZero() || at.Before(w.to) {
			return true
		}
	}
	return false
}
