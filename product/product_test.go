package product_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lending-engine/ledger"
	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/product"
)

const personalLoanJSON = `{
	"id": "personal-loan-fixed",
	"name": "Personal Loan (Fixed)",
	"denomination": "GBP",
	"fixed_interest_rate": "0.129",
	"total_term_months": 36,
	"fixed_interest_term_months": 36,
	"due_amount_calculation_day": 28,
	"repayment_period_days": 10,
	"grace_period_days": 5,
	"late_repayment_fee": "15",
	"overpayment_fee_rate": "0.05",
	"overpayment_impact_preference": "reduce_term",
	"penalty_interest_rate": "0.24",
	"penalty_includes_base_rate": true,
	"due_amount_blocking_flags": ["REPAYMENT_HOLIDAY"],
	"accounts": {
		"interest_received": "INT_RECV_1",
		"late_fee_income": "LATE_FEES_1"
	}
}`

// =============================================================================
// PARSING
// =============================================================================

func TestParseResolvesFullConfig(t *testing.T) {
	prod, err := product.NewFactory().Parse(personalLoanJSON)
	require.NoError(t, err)

	assert.Equal(t, "personal-loan-fixed", prod.ID)
	assert.Equal(t, "Personal Loan (Fixed)", prod.Name)

	cfg := prod.Config
	assert.Equal(t, ledger.Denomination("GBP"), cfg.Denomination)
	assert.Equal(t, 36, cfg.TotalTermMonths)
	assert.Equal(t, 36, cfg.FixedRateTermMonths)
	assert.Equal(t, 28, cfg.DueCalculationDay)
	assert.Equal(t, 10, cfg.RepaymentPeriodDays)
	assert.Equal(t, 5, cfg.GracePeriodDays)
	assert.True(t, cfg.LateRepaymentFee.Equal(decimal.RequireFromString("15")))
	assert.True(t, cfg.OverpaymentFeeRate.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, lending.ReduceTerm, cfg.OverpaymentPreference)
	assert.True(t, cfg.PenaltyIncludesBase)
	assert.Equal(t, []string{"REPAYMENT_HOLIDAY"}, cfg.BlockingFlags)

	// Named accounts override, unnamed fall back.
	assert.Equal(t, ledger.AccountID("INT_RECV_1"), cfg.InterestReceivedAccount)
	assert.Equal(t, ledger.AccountID("LATE_FEES_1"), cfg.LateFeeAccount)
	assert.Equal(t, ledger.AccountID("OVERPAYMENT_FEE_INCOME"), cfg.OverpaymentFeeAccount)

	// Precisions default when the definition is silent.
	assert.Equal(t, int32(5), cfg.AccrualPrecision)
	assert.Equal(t, int32(2), cfg.FulfillmentPrecision)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := product.NewFactory().Parse(`{"id": `)
	assert.Error(t, err)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestFromJSONValidation(t *testing.T) {
	base := func() product.ProductJSON {
		return product.ProductJSON{
			ID:                      "test-loan",
			Denomination:            "GBP",
			FixedInterestRate:       "0.10",
			TotalTermMonths:         12,
			FixedInterestTermMonths: 12,
			DueAmountCalculationDay: 28,
		}
	}

	cases := []struct {
		name    string
		mutate  func(*product.ProductJSON)
		wantErr string
	}{
		{"valid", func(*product.ProductJSON) {}, ""},
		{"missing id", func(pj *product.ProductJSON) { pj.ID = "" }, "id is required"},
		{"missing denomination", func(pj *product.ProductJSON) { pj.Denomination = "" }, "denomination"},
		{"zero term", func(pj *product.ProductJSON) { pj.TotalTermMonths = 0 }, "total_term_months"},
		{"due day out of range", func(pj *product.ProductJSON) { pj.DueAmountCalculationDay = 32 }, "due_amount_calculation_day"},
		{"no rate at all", func(pj *product.ProductJSON) { pj.FixedInterestRate = "" }, "interest_rate"},
		{"fixed term without variable rate", func(pj *product.ProductJSON) {
			pj.FixedInterestTermMonths = 6
		}, "variable_interest_rate is required"},
		{"fixed term exceeds total", func(pj *product.ProductJSON) {
			pj.FixedInterestTermMonths = 24
		}, "exceeds total_term_months"},
		{"unparseable rate", func(pj *product.ProductJSON) {
			pj.FixedInterestRate = "twelve percent"
		}, "fixed_interest_rate"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			pj := base()
			c.mutate(&pj)
			_, err := product.NewFactory().FromJSON(pj)
			if c.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.wantErr)
			}
		})
	}
}

// =============================================================================
// ACCOUNT OPENING
// =============================================================================

func TestParametersStampOpeningValues(t *testing.T) {
	prod, err := product.NewFactory().Parse(personalLoanJSON)
	require.NoError(t, err)

	openedAt := time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)
	params := prod.Parameters(product.Opening{
		Principal:      decimal.NewFromInt(10000),
		DepositAccount: "CUST_CURRENT_1",
	}, openedAt)

	lookup := ledger.Lookup{Params: params}
	principal, err := lookup.Decimal(lending.ParamPrincipal, openedAt)
	require.NoError(t, err)
	assert.True(t, principal.Equal(decimal.NewFromInt(10000)))

	deposit, err := lookup.String(lending.ParamRepaymentAccount, openedAt)
	require.NoError(t, err)
	assert.Equal(t, "CUST_CURRENT_1", deposit)

	// Product-level values ride along so LoadConfig works per account.
	denom, err := lookup.String(lending.ParamDenomination, openedAt)
	require.NoError(t, err)
	assert.Equal(t, "GBP", denom)

	changed, ok := params.LastChanged(lending.ParamPrincipal)
	assert.True(t, ok)
	assert.True(t, changed.Equal(openedAt))
}

func TestHooksWiring(t *testing.T) {
	prod, err := product.NewFactory().Parse(personalLoanJSON)
	require.NoError(t, err)

	bundle := prod.Hooks()
	assert.Equal(t, prod.Config, bundle.Config)
	assert.IsType(t, lending.FixedRateInterest{}, bundle.Accrual.Rate,
		"a fully fixed term selects the fixed rate variant")
}
