package ledger_test

import (
	"errors"
	"testing"
	"time"

	"github.com/warp/lending-engine/ledger"
)

var paramTime = time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

// =============================================================================
// TYPED LOOKUP
// =============================================================================

func TestLookupRequiredVsOptional(t *testing.T) {
	lookup := ledger.Lookup{Params: ledger.NewMapParameters(map[string]string{
		"fixed_interest_rate": "0.129",
		"total_term":          "12",
	})}

	// Required getters fail on missing parameters.
	if _, err := lookup.Decimal("missing_rate", paramTime); !errors.Is(err, ledger.ErrParameterMissing) {
		t.Errorf("missing required decimal: err = %v, want ErrParameterMissing", err)
	}
	if _, err := lookup.Int("missing_term", paramTime); !errors.Is(err, ledger.ErrParameterMissing) {
		t.Errorf("missing required int: err = %v, want ErrParameterMissing", err)
	}

	// Optional getters resolve missing values to None, never to errors.
	opt, err := lookup.OptDecimal("missing_rate", paramTime)
	if err != nil {
		t.Fatalf("optional missing decimal errored: %v", err)
	}
	if _, set := opt.Get(); set {
		t.Errorf("optional missing decimal should be None")
	}
	if got := opt.OrElse(dec(t, "0.05")); !got.Equal(dec(t, "0.05")) {
		t.Errorf("OrElse = %s, want 0.05", got)
	}

	// Present values parse.
	rate, err := lookup.Decimal("fixed_interest_rate", paramTime)
	if err != nil {
		t.Fatalf("present decimal errored: %v", err)
	}
	if !rate.Equal(dec(t, "0.129")) {
		t.Errorf("rate = %s, want 0.129", rate)
	}
	term, err := lookup.Int("total_term", paramTime)
	if err != nil || term != 12 {
		t.Errorf("term = %d (%v), want 12", term, err)
	}
}

func TestLookupMalformedValuesErrorEvenWhenOptional(t *testing.T) {
	// A malformed value is a configuration error an operator must fix;
	// "optional" only covers absence.
	lookup := ledger.Lookup{Params: ledger.NewMapParameters(map[string]string{
		"balloon_payment_amount": "not-a-number",
	})}
	_, err := lookup.OptDecimal("balloon_payment_amount", paramTime)
	var perr *ledger.ParameterError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *ParameterError", err)
	}
	if perr.Name != "balloon_payment_amount" {
		t.Errorf("error names %q, want balloon_payment_amount", perr.Name)
	}
}

func TestLookupJSON(t *testing.T) {
	lookup := ledger.Lookup{Params: ledger.NewMapParameters(map[string]string{
		"due_amount_blocking_flags": `["REPAYMENT_HOLIDAY","ACCOUNT_FROZEN"]`,
	})}
	var flags []string
	if err := lookup.JSON("due_amount_blocking_flags", paramTime, &flags); err != nil {
		t.Fatalf("JSON lookup errored: %v", err)
	}
	if len(flags) != 2 || flags[0] != "REPAYMENT_HOLIDAY" {
		t.Errorf("flags = %v", flags)
	}
}

// =============================================================================
// CHANGE TRACKING
// =============================================================================

func TestMapParametersTracksChangeTimes(t *testing.T) {
	// GIVEN a parameter seeded at construction and updated later
	// THEN only the update records a change time
	params := ledger.NewMapParameters(map[string]string{"variable_interest_rate": "0.10"})
	if _, ok := params.LastChanged("variable_interest_rate"); ok {
		t.Errorf("seeded value should have no change time")
	}

	changedAt := paramTime.AddDate(0, 3, 0)
	params.Set("variable_interest_rate", "0.11", changedAt)

	got, ok := params.LastChanged("variable_interest_rate")
	if !ok || !got.Equal(changedAt) {
		t.Errorf("LastChanged = %v (%v), want %v", got, ok, changedAt)
	}
	raw, _ := params.Value("variable_interest_rate", changedAt)
	if raw != "0.11" {
		t.Errorf("value = %q, want 0.11", raw)
	}
}

// =============================================================================
// FLAG WINDOWS
// =============================================================================

func TestMapFlagsWindows(t *testing.T) {
	flags := ledger.NewMapFlags()
	from := paramTime
	to := paramTime.AddDate(0, 1, 0)
	flags.Activate("REPAYMENT_HOLIDAY", from, to)

	cases := []struct {
		at   time.Time
		want bool
	}{
		{from.Add(-time.Second), false},
		{from, true},
		{from.AddDate(0, 0, 15), true},
		{to, false}, // half-open window: [from, to)
	}
	for _, c := range cases {
		if got := flags.IsActive("REPAYMENT_HOLIDAY", c.at); got != c.want {
			t.Errorf("IsActive at %v = %v, want %v", c.at, got, c.want)
		}
	}
}

func TestMapFlagsOpenEndedWindow(t *testing.T) {
	flags := ledger.NewMapFlags()
	flags.Activate("ACCOUNT_DELINQUENT", paramTime, time.Time{})
	if !flags.IsActive("ACCOUNT_DELINQUENT", paramTime.AddDate(10, 0, 0)) {
		t.Errorf("open-ended flag should stay active indefinitely")
	}
	if flags.IsActive("NEVER_SET", paramTime) {
		t.Errorf("unknown flag reported active")
	}
}
