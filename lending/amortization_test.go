package lending_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lending-engine/ledger"
	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/schedule"
)

// =============================================================================
// SHARED FIXTURES
// =============================================================================

const loanAccount ledger.AccountID = "LOAN_1"

var openedAt = time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testConfig() lending.Config {
	return lending.Config{
		Denomination:            "GBP",
		AccrualPrecision:        5,
		FulfillmentPrecision:    2,
		DayCount:                ledger.DayCountActual,
		DueCalculationDay:       28,
		TotalTermMonths:         12,
		RepaymentPeriodDays:     10,
		GracePeriodDays:         5,
		OverpaymentPreference:   lending.ReduceTerm,
		BlockingFlags:           []string{"REPAYMENT_HOLIDAY"},
		InterestReceivedAccount: "INTEREST_RECEIVED",
		OverpaymentFeeAccount:   "OVERPAYMENT_FEE_INCOME",
		LateFeeAccount:          "LATE_FEE_INCOME",
		RepaymentAccount:        "CUST_CURRENT",
	}
}

func balancesFor(account ledger.AccountID, amounts map[ledger.Address]string) ledger.BalanceReader {
	m := make(map[ledger.Coordinate]decimal.Decimal, len(amounts))
	for address, raw := range amounts {
		m[ledger.Committed(account, address, "GBP")] = d(raw)
	}
	return ledger.FixedBalances{Snapshot: ledger.NewSnapshot(time.Time{}, m)}
}

// loanSnapshot builds the account view the engines compute against.
func loanSnapshot(amounts map[ledger.Address]string, params map[string]string) ledger.AccountSnapshot {
	return ledger.AccountSnapshot{
		Account:   loanAccount,
		CreatedAt: openedAt,
		Balances:  balancesFor(loanAccount, amounts),
		Params:    ledger.Lookup{Params: ledger.NewMapParameters(params)},
	}
}

// addressDelta sums the signed effect of all instructions on one address.
func addressDelta(instructions []ledger.PostingInstruction, account ledger.AccountID, address ledger.Address) decimal.Decimal {
	net := decimal.Zero
	for _, pi := range instructions {
		for _, p := range pi.Postings {
			if p.Account == account && p.Address == address && p.Phase == ledger.PhaseCommitted {
				net = net.Add(p.Signed())
			}
		}
	}
	return net
}

// findInstruction returns the first instruction whose idempotency key carries
// the qualifier, or nil.
func findInstruction(instructions []ledger.PostingInstruction, qualifier string) *ledger.PostingInstruction {
	for i := range instructions {
		if strings.Contains(instructions[i].ClientTransactionID, qualifier) {
			return &instructions[i]
		}
	}
	return nil
}

// =============================================================================
// EMI FORMULA
// =============================================================================

func TestEMIFormula(t *testing.T) {
	cases := []struct {
		name      string
		principal string
		monthly   string
		term      int
		lump      string
		want      string
	}{
		{"small loan", "100", "0.02", 2, "0", "51.50"},
		{"balloon loan", "100000", "0.0016666666666666666666666666666667", 36, "50000", "1515.46"},
		{"one year at one percent", "1000", "0.01", 10, "0", "105.58"},
		{"zero rate straight line", "100", "0", 4, "20", "20.00"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := lending.EMI(d(c.principal), d(c.monthly), c.term, d(c.lump), 2)
			assert.True(t, got.Equal(d(c.want)), "EMI = %s, want %s", got, c.want)
		})
	}
}

func TestEMIDegenerateInputs(t *testing.T) {
	assert.True(t, lending.EMI(d("0"), d("0.01"), 12, d("0"), 2).IsZero(), "zero principal")
	assert.True(t, lending.EMI(d("-5"), d("0.01"), 12, d("0"), 2).IsZero(), "negative principal")
	assert.True(t, lending.EMI(d("100"), d("0.01"), 0, d("0"), 2).IsZero(), "empty term")
}

// =============================================================================
// REMAINING TERM
// =============================================================================

func TestRemainingTermNeverDropsBelowOneMonth(t *testing.T) {
	engine := lending.Amortisation{Rate: lending.FixedRateInterest{}, Config: testConfig()}
	acct := loanSnapshot(nil, nil)

	// Well past the contractual end of the term.
	term := engine.RemainingTerm(acct, openedAt.AddDate(2, 0, 0))
	assert.Equal(t, testConfig().TotalTermMonths, term.Elapsed)
	assert.Equal(t, 1, term.Remaining, "final cycle must still amortise")

	mid := engine.RemainingTerm(acct, openedAt.AddDate(0, 3, 5))
	assert.Equal(t, 3, mid.Elapsed)
	assert.Equal(t, 9, mid.Remaining)
}

// =============================================================================
// DUE-AMOUNT CALCULATION
// =============================================================================

func TestCalculateDueSkippedInsideFirstMonth(t *testing.T) {
	// GIVEN a loan opened three weeks ago
	// WHEN the due-amount calculation runs
	// THEN nothing is billed: the first cycle waits for a whole calendar
	//      month of life
	engine := lending.Amortisation{Rate: lending.FixedRateInterest{}, Config: testConfig()}
	acct := loanSnapshot(map[ledger.Address]string{
		lending.AddressPrincipal: "1000",
	}, map[string]string{"fixed_interest_rate": "0.12"})

	out, err := engine.CalculateDue(acct, openedAt.AddDate(0, 0, 21))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCalculateDueSkippedUnderBlockingFlag(t *testing.T) {
	engine := lending.Amortisation{Rate: lending.FixedRateInterest{}, Config: testConfig()}
	acct := loanSnapshot(map[ledger.Address]string{
		lending.AddressPrincipal: "1000",
	}, map[string]string{"fixed_interest_rate": "0.12"})

	flags := ledger.NewMapFlags()
	flags.Activate("REPAYMENT_HOLIDAY", openedAt, time.Time{})
	acct.Flags = flags

	out, err := engine.CalculateDue(acct, openedAt.AddDate(0, 2, 0))
	require.NoError(t, err)
	assert.Empty(t, out, "repayment holiday must suppress the whole cycle")
}

func TestCalculateDueFirstCycle(t *testing.T) {
	// GIVEN a fresh 1000 loan at 12% yearly with 10.12345 accrued and no
	//      stored EMI, two whole months into a twelve-month term
	// WHEN the due-amount calculation runs
	// THEN the EMI is computed over the remaining ten months (105.58), the
	//      principal due is EMI minus rounded interest, the rounded interest
	//      is billed and the accrual residue flattened - in that order
	engine := lending.Amortisation{
		Rate:         lending.FixedRateInterest{},
		Applications: []lending.PostingEffect{lending.InterestApplication{Config: testConfig()}},
		Config:       testConfig(),
	}
	acct := loanSnapshot(map[ledger.Address]string{
		lending.AddressPrincipal:       "1000",
		lending.AddressAccruedInterest: "10.12345",
	}, map[string]string{"fixed_interest_rate": "0.12"})

	effective := openedAt.AddDate(0, 2, 0)
	out, err := engine.CalculateDue(acct, effective)
	require.NoError(t, err)
	require.Len(t, out, 4)

	// (a) the EMI store moves from zero to the computed installment
	emiUpdate := findInstruction(out, "UPDATE_EMI")
	require.NotNil(t, emiUpdate)
	assert.Equal(t, &out[0], emiUpdate, "EMI update is emitted first")
	assert.True(t, addressDelta(out[:1], loanAccount, lending.AddressEMI).Equal(d("105.58")))

	// (b) principal due = 105.58 - round(10.12345, 2) = 95.46
	principalDue := findInstruction(out, "PRINCIPAL_DUE")
	require.NotNil(t, principalDue)
	assert.True(t, addressDelta(out, loanAccount, lending.AddressPrincipalDue).Equal(d("95.46")))
	assert.True(t, addressDelta(out, loanAccount, lending.AddressPrincipal).Equal(d("-95.46")))

	// (c) interest application bills 10.12 and flattens the 0.00345 residue
	assert.True(t, addressDelta(out, loanAccount, lending.AddressInterestDue).Equal(d("10.12")))
	assert.True(t, addressDelta(out, loanAccount, lending.AddressAccruedInterest).Equal(d("-10.12345")),
		"accrual address must land exactly on zero")

	require.True(t, out[0].Balanced() && out[1].Balanced())
}

func TestCalculateDueReusesStoredEMI(t *testing.T) {
	// GIVEN a stored EMI and no trigger firing
	// WHEN the calculation runs with NO rate parameter configured
	// THEN the stored EMI is reused without consulting the rate at all
	engine := lending.Amortisation{Rate: lending.FixedRateInterest{}, Config: testConfig()}
	acct := loanSnapshot(map[ledger.Address]string{
		lending.AddressPrincipal: "800",
		lending.AddressEMI:       "105.58",
	}, nil) // a recompute would fail on the missing rate

	out, err := engine.CalculateDue(acct, openedAt.AddDate(0, 3, 0))
	require.NoError(t, err)

	assert.Nil(t, findInstruction(out, "UPDATE_EMI"), "unchanged EMI emits no update")
	assert.True(t, addressDelta(out, loanAccount, lending.AddressPrincipalDue).Equal(d("105.58")),
		"full EMI becomes principal due when nothing accrued")
}

func TestCalculateDueRecomputesWhenTriggerFires(t *testing.T) {
	// GIVEN a variable-rate loan whose rate changed after the last cycle
	// THEN the EMI is recomputed and the delta posted
	cfg := testConfig()
	engine := lending.Amortisation{
		Rate:     lending.VariableRateInterest{},
		Triggers: lending.TriggersForConfig(cfg),
		Config:   cfg,
	}

	params := ledger.NewMapParameters(map[string]string{"variable_interest_rate": "0.12"})
	lastRun := openedAt.AddDate(0, 2, 0)
	params.Set("variable_interest_rate", "0.18", lastRun.AddDate(0, 0, 10))

	acct := loanSnapshot(map[ledger.Address]string{
		lending.AddressPrincipal: "1000",
		lending.AddressEMI:       "105.58",
	}, nil)
	acct.Params = ledger.Lookup{Params: params}
	acct.LastRun = map[string]time.Time{
		string(schedule.EventDueAmountCalculation): lastRun,
	}

	out, err := engine.CalculateDue(acct, openedAt.AddDate(0, 3, 0))
	require.NoError(t, err)
	require.NotNil(t, findInstruction(out, "UPDATE_EMI"), "rate change must reamortise")

	// EMI(1000, 0.015, 9) = 119.61; delta from the stored 105.58 is 14.03.
	assert.True(t, addressDelta(out, loanAccount, lending.AddressEMI).Equal(d("14.03")),
		"EMI delta = %s", addressDelta(out, loanAccount, lending.AddressEMI))
}

func TestCalculateDueCapsFinalInstallmentAtRemainingPrincipal(t *testing.T) {
	// GIVEN only 40 of principal left against a 105.58 stored EMI
	// THEN the billed principal is 40, never more than is owed
	engine := lending.Amortisation{Rate: lending.FixedRateInterest{}, Config: testConfig()}
	acct := loanSnapshot(map[ledger.Address]string{
		lending.AddressPrincipal: "40",
		lending.AddressEMI:       "105.58",
	}, nil)

	out, err := engine.CalculateDue(acct, openedAt.AddDate(0, 11, 18))
	require.NoError(t, err)
	assert.True(t, addressDelta(out, loanAccount, lending.AddressPrincipalDue).Equal(d("40")))
}

func TestNextDueCalculationUsesConfiguredDay(t *testing.T) {
	engine := lending.Amortisation{Config: testConfig()}
	got := engine.NextDueCalculation(time.Date(2024, time.February, 28, 9, 0, 0, 0, time.UTC))
	want := time.Date(2024, time.March, 28, 9, 0, 0, 0, time.UTC)
	assert.True(t, got.Equal(want), "next due calc = %v", got)
}
