/*
Package product provides JSON to loan product conversion.

PURPOSE:
  Converts JSON product definitions into wired lending engines. This
  enables product configuration without code changes - a product team
  can define a loan product in JSON, and the factory produces the
  parameter set and hook bundle the host runs accounts against.

WHY JSON?
  - Non-developers can define and tune products
  - Easy integration with an admin UI
  - Version control for product definitions
  - Database storage of product configs

JSON SCHEMA:
  {
    "id": "personal-loan-fixed",
    "name": "Personal Loan (Fixed)",
    "denomination": "GBP",
    "fixed_interest_rate": "0.129",
    "total_term_months": 36,
    "due_amount_calculation_day": 28,
    "repayment_period_days": 10,
    "grace_period_days": 5,
    "late_repayment_fee": "15",
    "overpayment_fee_rate": "0.05",
    "overpayment_impact_preference": "reduce_term",
    "penalty_interest_rate": "0.24",
    "penalty_includes_base_rate": true,
    "accounts": {
      "interest_received": "INTEREST_RECEIVED",
      "late_fee_income": "LATE_FEE_INCOME"
    }
  }

  Rates and monetary amounts are JSON strings so no precision is lost
  to float parsing.

USAGE:
  factory := product.NewFactory()
  prod, err := factory.Parse(jsonStr)

  params := prod.Parameters(product.Opening{
      Principal:      decimal.NewFromInt(100000),
      DepositAccount: "CUST_CURRENT_1",
  }, openedAt)

  loan := prod.Hooks()   // hooks.LoanProduct ready to run

SEE ALSO:
  - lending/types.go: parameter names and Config
  - hooks/hooks.go: the lifecycle the product drives
*/
package product

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/hooks"
	"github.com/warp/lending-engine/ledger"
	"github.com/warp/lending-engine/lending"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ProductJSON is the JSON representation of a loan product.
type ProductJSON struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Denomination string `json:"denomination"`

	FixedInterestRate       string `json:"fixed_interest_rate,omitempty"`
	VariableInterestRate    string `json:"variable_interest_rate,omitempty"`
	VariableRateAdjustment  string `json:"variable_rate_adjustment,omitempty"`
	TotalTermMonths         int    `json:"total_term_months"`
	FixedInterestTermMonths int    `json:"fixed_interest_term_months,omitempty"`

	DueAmountCalculationDay int    `json:"due_amount_calculation_day"`
	AccrualPrecision        *int   `json:"accrual_precision,omitempty"`
	FulfillmentPrecision    *int   `json:"fulfillment_precision,omitempty"`
	DayCount                string `json:"interest_accrual_day_count,omitempty"`
	BalloonPaymentAmount    string `json:"balloon_payment_amount,omitempty"`

	RepaymentPeriodDays *int     `json:"repayment_period_days,omitempty"`
	GracePeriodDays     *int     `json:"grace_period_days,omitempty"`
	LateRepaymentFee    string   `json:"late_repayment_fee,omitempty"`
	BlockingFlags       []string `json:"due_amount_blocking_flags,omitempty"`

	OverpaymentFeeRate          string `json:"overpayment_fee_rate,omitempty"`
	OverpaymentImpactPreference string `json:"overpayment_impact_preference,omitempty"`

	PenaltyInterestRate     string `json:"penalty_interest_rate,omitempty"`
	PenaltyIncludesBaseRate bool   `json:"penalty_includes_base_rate,omitempty"`

	Accounts *AccountsJSON `json:"accounts,omitempty"`
}

// AccountsJSON names the internal accounts the product settles against.
type AccountsJSON struct {
	InterestReceived    string `json:"interest_received,omitempty"`
	OverpaymentFeeIncome string `json:"overpayment_fee_income,omitempty"`
	LateFeeIncome       string `json:"late_fee_income,omitempty"`
}

// =============================================================================
// PRODUCT FACTORY
// =============================================================================

// Factory converts JSON product definitions to wired products.
type Factory struct{}

// NewFactory creates a new product factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Product is a validated definition ready to open accounts against.
type Product struct {
	ID     string
	Name   string
	Config lending.Config

	definition ProductJSON
}

// Parse parses and validates a JSON product definition.
func (f *Factory) Parse(jsonStr string) (*Product, error) {
	var pj ProductJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse product JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON validates a ProductJSON and resolves it into a Product. The
// resulting Config carries every product-level value; account-level
// values (principal, deposit account) arrive at opening.
func (f *Factory) FromJSON(pj ProductJSON) (*Product, error) {
	if err := validate(pj); err != nil {
		return nil, err
	}

	// Resolve through the same parameter path accounts use, so product
	// defaults and account defaults can never drift apart.
	seed := f.baseParameters(pj)
	lookup := ledger.Lookup{Params: ledger.NewMapParameters(seed)}
	cfg, err := lending.LoadConfig(lookup, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("product %q: %w", pj.ID, err)
	}

	return &Product{ID: pj.ID, Name: pj.Name, Config: cfg, definition: pj}, nil
}

func validate(pj ProductJSON) error {
	if pj.ID == "" {
		return fmt.Errorf("product id is required")
	}
	if pj.Denomination == "" {
		return fmt.Errorf("product %q: denomination is required", pj.ID)
	}
	if pj.TotalTermMonths <= 0 {
		return fmt.Errorf("product %q: total_term_months must be positive", pj.ID)
	}
	if pj.DueAmountCalculationDay < 1 || pj.DueAmountCalculationDay > 31 {
		return fmt.Errorf("product %q: due_amount_calculation_day must be in 1..31", pj.ID)
	}
	if pj.FixedInterestRate == "" && pj.VariableInterestRate == "" {
		return fmt.Errorf("product %q: at least one of fixed_interest_rate and variable_interest_rate is required", pj.ID)
	}
	if pj.FixedInterestTermMonths > 0 && pj.FixedInterestTermMonths < pj.TotalTermMonths && pj.VariableInterestRate == "" {
		return fmt.Errorf("product %q: variable_interest_rate is required beyond the fixed term", pj.ID)
	}
	if pj.FixedInterestTermMonths > pj.TotalTermMonths {
		return fmt.Errorf("product %q: fixed_interest_term_months exceeds total_term_months", pj.ID)
	}

	for name, raw := range map[string]string{
		"fixed_interest_rate":      pj.FixedInterestRate,
		"variable_interest_rate":   pj.VariableInterestRate,
		"variable_rate_adjustment": pj.VariableRateAdjustment,
		"balloon_payment_amount":   pj.BalloonPaymentAmount,
		"late_repayment_fee":       pj.LateRepaymentFee,
		"overpayment_fee_rate":     pj.OverpaymentFeeRate,
		"penalty_interest_rate":    pj.PenaltyInterestRate,
	} {
		if raw == "" {
			continue
		}
		if _, err := decimal.NewFromString(raw); err != nil {
			return fmt.Errorf("product %q: %s: %w", pj.ID, name, err)
		}
	}
	return nil
}

// baseParameters renders the product-level values as parameter strings.
func (f *Factory) baseParameters(pj ProductJSON) map[string]string {
	params := map[string]string{
		lending.ParamDenomination:      pj.Denomination,
		lending.ParamTotalTerm:         fmt.Sprintf("%d", pj.TotalTermMonths),
		lending.ParamDueCalculationDay: fmt.Sprintf("%d", pj.DueAmountCalculationDay),
	}

	setIf := func(name, value string) {
		if value != "" {
			params[name] = value
		}
	}
	setIf(lending.ParamFixedInterestRate, pj.FixedInterestRate)
	setIf(lending.ParamVariableInterestRate, pj.VariableInterestRate)
	setIf(lending.ParamVariableRateAdjustment, pj.VariableRateAdjustment)
	setIf(lending.ParamDayCount, pj.DayCount)
	setIf(lending.ParamBalloonAmount, pj.BalloonPaymentAmount)
	setIf(lending.ParamLateRepaymentFee, pj.LateRepaymentFee)
	setIf(lending.ParamOverpaymentFeeRate, pj.OverpaymentFeeRate)
	setIf(lending.ParamOverpaymentPreference, pj.OverpaymentImpactPreference)
	setIf(lending.ParamPenaltyRate, pj.PenaltyInterestRate)

	if pj.FixedInterestTermMonths > 0 {
		params[lending.ParamFixedRateTerm] = fmt.Sprintf("%d", pj.FixedInterestTermMonths)
	}
	if pj.AccrualPrecision != nil {
		params[lending.ParamAccrualPrecision] = fmt.Sprintf("%d", *pj.AccrualPrecision)
	}
	if pj.FulfillmentPrecision != nil {
		params[lending.ParamFulfillmentPrecision] = fmt.Sprintf("%d", *pj.FulfillmentPrecision)
	}
	if pj.RepaymentPeriodDays != nil {
		params[lending.ParamRepaymentPeriod] = fmt.Sprintf("%d", *pj.RepaymentPeriodDays)
	}
	if pj.GracePeriodDays != nil {
		params[lending.ParamGracePeriod] = fmt.Sprintf("%d", *pj.GracePeriodDays)
	}
	if pj.PenaltyIncludesBaseRate {
		params[lending.ParamPenaltyIncludesBaseRate] = "true"
	}
	if len(pj.BlockingFlags) > 0 {
		raw, _ := json.Marshal(pj.BlockingFlags)
		params[lending.ParamBlockingFlags] = string(raw)
	}
	if pj.Accounts != nil {
		setIf(lending.ParamInterestReceivedAccount, pj.Accounts.InterestReceived)
		setIf(lending.ParamOverpaymentFeeAccount, pj.Accounts.OverpaymentFeeIncome)
		setIf(lending.ParamLateFeeAccount, pj.Accounts.LateFeeIncome)
	}
	return params
}

// =============================================================================
// ACCOUNT OPENING
// =============================================================================

// Opening carries the per-account values set when a loan is opened.
type Opening struct {
	Principal      decimal.Decimal
	DepositAccount ledger.AccountID
}

// Parameters builds the parameter store for a newly opened account:
// product-level values plus the opening values, all stamped with the
// opening time.
func (p *Product) Parameters(opening Opening, openedAt time.Time) *ledger.MapParameters {
	seed := NewFactory().baseParameters(p.definition)
	params := ledger.NewMapParameters(seed)
	params.Set(lending.ParamPrincipal, opening.Principal.String(), openedAt)
	if opening.DepositAccount != "" {
		params.Set(lending.ParamRepaymentAccount, string(opening.DepositAccount), openedAt)
	}
	return params
}

// Hooks wires the lifecycle hook bundle from the product-level Config.
// Accounts must use HooksFor so opening values (deposit account) are
// resolved in.
func (p *Product) Hooks() hooks.LoanProduct {
	return hooks.NewLoanProduct(p.Config)
}

// HooksFor wires the hook bundle for one account, re-resolving the
// configuration from the account's parameter store so the opening
// values override the product defaults.
func (p *Product) HooksFor(params *ledger.MapParameters, openedAt time.Time) (hooks.LoanProduct, error) {
	cfg, err := lending.LoadConfig(ledger.Lookup{Params: params}, openedAt)
	if err != nil {
		return hooks.LoanProduct{}, fmt.Errorf("product %q: %w", p.ID, err)
	}
	return hooks.NewLoanProduct(cfg), nil
}
