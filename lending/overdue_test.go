package lending_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lending-engine/ledger"
	"github.com/warp/lending-engine/lending"
)

var overdueCheckAt = time.Date(2024, time.April, 7, 0, 0, 0, 0, time.UTC)

// =============================================================================
// OVERDUE SWEEP
// =============================================================================

func TestCheckOverdueSweepsDueBalancesAndChargesLateFee(t *testing.T) {
	// GIVEN unpaid principal and interest due and a 15.00 late fee product
	// WHEN the overdue check fires
	// THEN both balances move wholesale to their overdue addresses and the
	//      fee is charged once
	cfg := testConfig()
	cfg.LateRepaymentFee = d("15")
	check := lending.OverdueCheck{Config: cfg}
	acct := loanSnapshot(map[ledger.Address]string{
		lending.AddressPrincipalDue: "95.46",
		lending.AddressInterestDue:  "10.12",
	}, nil)

	out := check.CheckOverdue(acct, overdueCheckAt)
	require.Len(t, out, 3)

	assert.True(t, addressDelta(out, loanAccount, lending.AddressPrincipalDue).Equal(d("-95.46")))
	assert.True(t, addressDelta(out, loanAccount, lending.AddressPrincipalOverdue).Equal(d("95.46")))
	assert.True(t, addressDelta(out, loanAccount, lending.AddressInterestDue).Equal(d("-10.12")))
	assert.True(t, addressDelta(out, loanAccount, lending.AddressInterestOverdue).Equal(d("10.12")))
	assert.True(t, addressDelta(out, loanAccount, lending.AddressPenalties).Equal(d("15")))
}

func TestCheckOverdueNothingDueNoFee(t *testing.T) {
	// The late fee only applies when something actually moved.
	cfg := testConfig()
	cfg.LateRepaymentFee = d("15")
	check := lending.OverdueCheck{Config: cfg}

	out := check.CheckOverdue(loanSnapshot(nil, nil), overdueCheckAt)
	assert.Empty(t, out)
}

func TestCheckOverdueHonoursBlockingFlags(t *testing.T) {
	check := lending.OverdueCheck{Config: testConfig()}
	acct := loanSnapshot(map[ledger.Address]string{
		lending.AddressPrincipalDue: "95.46",
	}, nil)
	flags := ledger.NewMapFlags()
	flags.Activate("REPAYMENT_HOLIDAY", overdueCheckAt.AddDate(0, 0, -1), time.Time{})
	acct.Flags = flags

	assert.Empty(t, check.CheckOverdue(acct, overdueCheckAt))
}

// =============================================================================
// DELINQUENCY
// =============================================================================

func TestCheckDelinquencyNotifiesOnce(t *testing.T) {
	// GIVEN lingering overdue balances and no delinquency flag yet
	// WHEN the delinquency check fires
	// THEN the external workflow is notified; with the flag already set the
	//      check stays silent
	check := lending.OverdueCheck{Config: testConfig()}
	acct := loanSnapshot(map[ledger.Address]string{
		lending.AddressPrincipalOverdue: "95.46",
	}, nil)

	result := check.CheckDelinquency(acct, overdueCheckAt)
	require.Len(t, result.Notifications, 1)
	note := result.Notifications[0]
	assert.Equal(t, "MARK_DELINQUENT", note.Type)
	assert.Equal(t, string(loanAccount), note.Details["account"])
	assert.Equal(t, lending.FlagDelinquent, note.Details["flag"])

	flags := ledger.NewMapFlags()
	flags.Activate(lending.FlagDelinquent, overdueCheckAt, time.Time{})
	acct.Flags = flags
	assert.True(t, check.CheckDelinquency(acct, overdueCheckAt.Add(time.Hour)).IsEmpty())
}

func TestCheckDelinquencySilentWhenNothingLate(t *testing.T) {
	check := lending.OverdueCheck{Config: testConfig()}
	acct := loanSnapshot(map[ledger.Address]string{
		lending.AddressPrincipalDue: "95.46", // due but not yet overdue
	}, nil)
	assert.True(t, check.CheckDelinquency(acct, overdueCheckAt).IsEmpty())
}

// =============================================================================
// STATE DERIVATION
// =============================================================================

func TestStateOfOnlyMovesForward(t *testing.T) {
	check := lending.OverdueCheck{Config: testConfig()}

	current := loanSnapshot(map[ledger.Address]string{
		lending.AddressPrincipalDue: "95.46",
	}, nil)
	assert.Equal(t, lending.StateCurrent, check.StateOf(current, overdueCheckAt),
		"due balances alone do not make the account overdue")

	overdue := loanSnapshot(map[ledger.Address]string{
		lending.AddressInterestOverdue: "10.12",
	}, nil)
	assert.Equal(t, lending.StateOverdue, check.StateOf(overdue, overdueCheckAt))

	// The flag dominates the balances: repaying while flagged does not
	// un-delinquent the account.
	repaid := loanSnapshot(nil, nil)
	flags := ledger.NewMapFlags()
	flags.Activate(lending.FlagDelinquent, overdueCheckAt, time.Time{})
	repaid.Flags = flags
	assert.Equal(t, lending.StateDelinquent, check.StateOf(repaid, overdueCheckAt.Add(time.Hour)))
}

// =============================================================================
// CHECK TIMING
// =============================================================================

func TestOverdueAndDelinquencyTiming(t *testing.T) {
	check := lending.OverdueCheck{Config: testConfig()} // repayment 10d, grace 5d
	dueCalc := time.Date(2024, time.March, 28, 0, 0, 0, 0, time.UTC)

	overdueAt := check.OverdueAt(dueCalc)
	assert.True(t, overdueAt.Equal(dueCalc.AddDate(0, 0, 10)))
	assert.True(t, check.DelinquencyAt(overdueAt).Equal(overdueAt.AddDate(0, 0, 5)))

	// Zero grace still leaves at least a day between the checks.
	zeroGrace := testConfig()
	zeroGrace.GracePeriodDays = 0
	check = lending.OverdueCheck{Config: zeroGrace}
	assert.True(t, check.DelinquencyAt(overdueAt).Equal(overdueAt.AddDate(0, 0, 1)))
}
