/*
Package lending implements the debt-management engines for amortising loans.

PURPOSE:
  Daily interest accrual, periodic interest application, EMI calculation with
  reamortisation triggers, overpayment tracking, overdue/delinquency checks
  and the repayment distribution waterfall. Every engine is a pure function
  of an account snapshot: it reads balances and parameters and returns
  posting instructions, never touching storage.

ADDRESS MODEL:
  A loan account keeps its debt in named buckets. Owed addresses are
  credit-positive, with INTERNAL_CONTRA carrying the mirror:

    PRINCIPAL                    outstanding scheduled principal
    PRINCIPAL_DUE / INTEREST_DUE billed this cycle, awaiting repayment
    *_OVERDUE                    missed the repayment window
    ACCRUED_INTEREST_RECEIVABLE  daily accrual, full decimal precision
    NON_EMI_ACCRUED_INTEREST     accrual excluded from the EMI-derived
                                 principal-due calculation
    ACCRUED_EXPECTED_INTEREST    shadow accrual ignoring overpayments
    EMI                          the stored constant installment
    OVERPAYMENT                  principal repaid ahead of schedule
    EMI_PRINCIPAL_EXCESS         extra principal pulled forward by
                                 overpayment interest savings
    PENALTIES                    late fees and penalty interest

SEE ALSO:
  - accrual.go, application.go: interest lifecycle
  - amortization.go, rate.go:   EMI and reamortisation
  - overpayment.go, overdue.go: trackers and state machine
  - repayment.go:               the distribution waterfall
*/
package lending

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/ledger"
	"github.com/warp/lending-engine/schedule"
)

// =============================================================================
// ADDRESSES
// =============================================================================

const (
	AddressPrincipal               ledger.Address = "PRINCIPAL"
	AddressPrincipalDue            ledger.Address = "PRINCIPAL_DUE"
	AddressPrincipalOverdue        ledger.Address = "PRINCIPAL_OVERDUE"
	AddressInterestDue             ledger.Address = "INTEREST_DUE"
	AddressInterestOverdue         ledger.Address = "INTEREST_OVERDUE"
	AddressAccruedInterest         ledger.Address = "ACCRUED_INTEREST_RECEIVABLE"
	AddressNonEMIAccruedInterest   ledger.Address = "NON_EMI_ACCRUED_INTEREST"
	AddressAccruedExpectedInterest ledger.Address = "ACCRUED_EXPECTED_INTEREST"
	AddressEMI                     ledger.Address = "EMI"
	AddressOverpayment             ledger.Address = "OVERPAYMENT"
	AddressEMIPrincipalExcess      ledger.Address = "EMI_PRINCIPAL_EXCESS"
	AddressPenalties               ledger.Address = "PENALTIES"
)

// DueAddresses are the buckets filled by the due-amount calculation, in the
// order the overdue check sweeps them.
var DueAddresses = []ledger.Address{AddressPrincipalDue, AddressInterestDue}

// OverdueFor maps a due address to its overdue counterpart.
func OverdueFor(due ledger.Address) ledger.Address {
	if due == AddressPrincipalDue {
		return AddressPrincipalOverdue
	}
	return AddressInterestOverdue
}

// =============================================================================
// FLAGS
// =============================================================================

const FlagDelinquent = "ACCOUNT_DELINQUENT"

// =============================================================================
// PARAMETER NAMES
// =============================================================================

const (
	ParamDenomination            = "denomination"
	ParamPrincipal               = "principal"
	ParamFixedInterestRate       = "fixed_interest_rate"
	ParamVariableInterestRate    = "variable_interest_rate"
	ParamVariableRateAdjustment  = "variable_rate_adjustment"
	ParamTotalTerm               = "total_term"
	ParamFixedRateTerm           = "fixed_interest_term"
	ParamDueCalculationDay       = "due_amount_calculation_day"
	ParamAccrualPrecision        = "accrual_precision"
	ParamFulfillmentPrecision    = "fulfillment_precision"
	ParamDayCount                = "interest_accrual_day_count"
	ParamBalloonAmount           = "balloon_payment_amount"
	ParamRepaymentPeriod         = "repayment_period"
	ParamGracePeriod             = "grace_period"
	ParamLateRepaymentFee        = "late_repayment_fee"
	ParamOverpaymentFeeRate      = "overpayment_fee_rate"
	ParamOverpaymentPreference   = "overpayment_impact_preference"
	ParamPenaltyRate             = "penalty_interest_rate"
	ParamPenaltyIncludesBaseRate = "penalty_includes_base_rate"
	ParamBlockingFlags           = "due_amount_blocking_flags"
	ParamInterestReceivedAccount = "interest_received_account"
	ParamOverpaymentFeeAccount   = "overpayment_fee_income_account"
	ParamLateFeeAccount          = "late_fee_income_account"
	ParamRepaymentAccount        = "deposit_account"
)

// =============================================================================
// OVERPAYMENT PREFERENCE
// =============================================================================

// OverpaymentPreference decides what an overpayment buys the customer: a
// lower installment or a shorter term.
type OverpaymentPreference string

const (
	ReduceEMI  OverpaymentPreference = "reduce_emi"
	ReduceTerm OverpaymentPreference = "reduce_term"
)

// =============================================================================
// CONFIG - Resolved product parameters
// =============================================================================

// Config carries the product parameters the engines need, resolved once per
// hook invocation "as of" the effective time.
type Config struct {
	Denomination          ledger.Denomination
	AccrualPrecision      int32
	FulfillmentPrecision  int32
	DayCount              ledger.DayCount
	DueCalculationDay     int
	TotalTermMonths       int
	FixedRateTermMonths   int
	BalloonAmount         decimal.Decimal
	RepaymentPeriodDays   int
	GracePeriodDays       int
	LateRepaymentFee      decimal.Decimal
	OverpaymentFeeRate    decimal.Decimal
	OverpaymentPreference OverpaymentPreference
	PenaltyRate           decimal.Decimal
	PenaltyIncludesBase   bool
	BlockingFlags         []string

	// Internal accounts the loan settles against.
	InterestReceivedAccount ledger.AccountID
	OverpaymentFeeAccount   ledger.AccountID
	LateFeeAccount          ledger.AccountID
	RepaymentAccount        ledger.AccountID
}

// LoadConfig resolves product configuration from the parameter store as of
// the given time. Required: denomination, rates, term, due day. Everything
// else falls back to explicit defaults.
func LoadConfig(params ledger.Lookup, at time.Time) (Config, error) {
	var cfg Config

	denom, err := params.String(ParamDenomination, at)
	if err != nil {
		return cfg, err
	}
	cfg.Denomination = ledger.Denomination(denom)

	cfg.TotalTermMonths, err = params.Int(ParamTotalTerm, at)
	if err != nil {
		return cfg, err
	}
	cfg.DueCalculationDay, err = params.Int(ParamDueCalculationDay, at)
	if err != nil {
		return cfg, err
	}

	optFixedTerm, err := params.OptInt(ParamFixedRateTerm, at)
	if err != nil {
		return cfg, err
	}
	cfg.FixedRateTermMonths = optFixedTerm.OrElse(0)

	accrualPrec, err := params.OptInt(ParamAccrualPrecision, at)
	if err != nil {
		return cfg, err
	}
	cfg.AccrualPrecision = int32(accrualPrec.OrElse(5))

	fulfillPrec, err := params.OptInt(ParamFulfillmentPrecision, at)
	if err != nil {
		return cfg, err
	}
	cfg.FulfillmentPrecision = int32(fulfillPrec.OrElse(2))

	cfg.DayCount = ledger.DayCount(params.OptString(ParamDayCount, at).OrElse(string(ledger.DayCountActual)))

	optBalloon, err := params.OptDecimal(ParamBalloonAmount, at)
	if err != nil {
		return cfg, err
	}
	cfg.BalloonAmount = optBalloon.OrElse(decimal.Zero)

	repayDays, err := params.OptInt(ParamRepaymentPeriod, at)
	if err != nil {
		return cfg, err
	}
	cfg.RepaymentPeriodDays = repayDays.OrElse(1)

	graceDays, err := params.OptInt(ParamGracePeriod, at)
	if err != nil {
		return cfg, err
	}
	cfg.GracePeriodDays = graceDays.OrElse(1)

	optLateFee, err := params.OptDecimal(ParamLateRepaymentFee, at)
	if err != nil {
		return cfg, err
	}
	cfg.LateRepaymentFee = optLateFee.OrElse(decimal.Zero)

	optOverpayFee, err := params.OptDecimal(ParamOverpaymentFeeRate, at)
	if err != nil {
		return cfg, err
	}
	cfg.OverpaymentFeeRate = optOverpayFee.OrElse(decimal.Zero)

	pref := params.OptString(ParamOverpaymentPreference, at).OrElse(string(ReduceTerm))
	switch OverpaymentPreference(pref) {
	case ReduceEMI, ReduceTerm:
		cfg.OverpaymentPreference = OverpaymentPreference(pref)
	default:
		return cfg, &ledger.ParameterError{
			Name:  ParamOverpaymentPreference,
			Cause: fmt.Errorf("unknown preference %q", pref),
		}
	}

	optPenalty, err := params.OptDecimal(ParamPenaltyRate, at)
	if err != nil {
		return cfg, err
	}
	cfg.PenaltyRate = optPenalty.OrElse(decimal.Zero)

	if raw, ok := params.Params.Value(ParamPenaltyIncludesBaseRate, at); ok && raw != "" {
		cfg.PenaltyIncludesBase, err = params.Bool(ParamPenaltyIncludesBaseRate, at)
		if err != nil {
			return cfg, err
		}
	}

	if raw, ok := params.OptString(ParamBlockingFlags, at).Get(); ok && raw != "" {
		var names []string
		if err := params.JSON(ParamBlockingFlags, at, &names); err != nil {
			return cfg, err
		}
		cfg.BlockingFlags = names
	}

	cfg.InterestReceivedAccount = ledger.AccountID(params.OptString(ParamInterestReceivedAccount, at).OrElse("INTEREST_RECEIVED"))
	cfg.OverpaymentFeeAccount = ledger.AccountID(params.OptString(ParamOverpaymentFeeAccount, at).OrElse("OVERPAYMENT_FEE_INCOME"))
	cfg.LateFeeAccount = ledger.AccountID(params.OptString(ParamLateFeeAccount, at).OrElse("LATE_FEE_INCOME"))
	cfg.RepaymentAccount = ledger.AccountID(params.OptString(ParamRepaymentAccount, at).OrElse("DEPOSIT_ACCOUNT"))

	return cfg, nil
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// EffectivePrincipal is the capital interest actually accrues on: scheduled
// principal less what overpayments and their interest savings have already
// repaid.
func EffectivePrincipal(snap *ledger.Snapshot, account ledger.AccountID, denom ledger.Denomination) decimal.Decimal {
	principal := snap.AddressAmount(account, AddressPrincipal, denom)
	overpaid := snap.AddressAmount(account, AddressOverpayment, denom)
	excess := snap.AddressAmount(account, AddressEMIPrincipalExcess, denom)
	return principal.Sub(overpaid).Sub(excess)
}

// TotalOutstandingDebt sums everything the customer still owes: effective
// principal plus billed, overdue and penalty balances.
func TotalOutstandingDebt(snap *ledger.Snapshot, account ledger.AccountID, denom ledger.Denomination) decimal.Decimal {
	total := EffectivePrincipal(snap, account, denom)
	for _, address := range []ledger.Address{
		AddressPrincipalDue, AddressInterestDue,
		AddressPrincipalOverdue, AddressInterestOverdue,
		AddressPenalties,
	} {
		total = total.Add(snap.AddressAmount(account, address, denom))
	}
	return total
}

// newInstruction wraps postings with the standard metadata. The qualifier
// keeps ids distinct when one event emits several instructions; the id is a
// pure function of (event, qualifier, account, effective time).
func newInstruction(event schedule.Event, qualifier string, account ledger.AccountID,
	effective time.Time, description string, postings []ledger.Posting) ledger.PostingInstruction {

	tag := string(event)
	if qualifier != "" {
		tag = tag + "_" + qualifier
	}
	return ledger.PostingInstruction{
		Postings:            postings,
		Description:         description,
		EventTag:            string(event),
		ClientTransactionID: ledger.ClientTransactionID(tag, account, ledger.ExecutionID(effective)),
		ValueTimestamp:      effective,
	}
}

// MirrorDelta moves a tracking address by delta against the internal
// contra: positive deltas raise the address, negative deltas lower it.
// Used for mirror addresses that shadow balances held elsewhere.
func MirrorDelta(account ledger.AccountID, address ledger.Address, delta decimal.Decimal,
	denom ledger.Denomination, effective time.Time) ledger.PostingInstruction {

	var postings []ledger.Posting
	if delta.IsPositive() {
		postings = increase(account, address, delta, denom)
	} else {
		postings = reduce(account, address, delta.Neg(), denom)
	}
	return newInstruction("SUPERVISOR", "MIRROR_"+string(address), account, effective,
		"Refresh mirrored total "+string(address), postings)
}

// increase builds the pair raising an owed address: credit address, debit
// contra within the same account.
func increase(account ledger.AccountID, address ledger.Address, amount decimal.Decimal, denom ledger.Denomination) []ledger.Posting {
	return ledger.NewPostingPair(amount, account, ledger.InternalContra, account, address, denom)
}

// reduce builds the pair lowering an owed address.
func reduce(account ledger.AccountID, address ledger.Address, amount decimal.Decimal, denom ledger.Denomination) []ledger.Posting {
	return ledger.NewPostingPair(amount, account, address, account, ledger.InternalContra, denom)
}

// zeroOut drives an address to exactly zero from its raw (unrounded) balance,
// in whichever direction the sign requires.
func zeroOut(account ledger.AccountID, address ledger.Address, raw decimal.Decimal, denom ledger.Denomination) []ledger.Posting {
	if raw.IsPositive() {
		return reduce(account, address, raw, denom)
	}
	return increase(account, address, raw.Neg(), denom)
}
