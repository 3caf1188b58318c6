/*
hooks.go - Loan account lifecycle hooks

PURPOSE:
  Binds the lending engines to the five moments a host can call into
  a loan account:

    Activation       - disburse principal, seed the schedules
    OnScheduledEvent - accruals, due calculation, overdue and
                       delinquency checks
    PrePosting       - accept or reject an incoming instruction
    PostPosting      - distribute an accepted repayment
    Deactivation     - settle residuals and clear tracker addresses

  Each hook is pure with respect to the ledger: it reads balances
  through the account snapshot and returns directives (postings,
  schedule updates, notifications, rejections) for the host to apply.

SCHEDULING MODEL:
  Activation plants ACCRUE_INTEREST (daily) and the first
  DUE_AMOUNT_CALCULATION (at least one whole month after opening).
  Each due calculation run then plants its own follow-ups: the next
  due calculation, a CHECK_OVERDUE at the end of the repayment
  period, and CHECK_OVERDUE in turn plants CHECK_DELINQUENCY after
  the grace period.

REJECTIONS:
  PrePosting enforces, in order: denomination, repayment blocks,
  no debits against the loan, and the early-repayment ceiling
  (a payment may never exceed the whole remaining debt plus accrued
  interest).

SEE ALSO:
  - lending/amortization.go: due amount engine
  - lending/repayment.go: distribution algorithm
  - creditline/supervisor.go: the multi-loan analogue of PostPosting
*/
package hooks

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/ledger"
	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/schedule"
)

// LoanProduct aggregates the engines serving one product configuration.
// Build it with NewLoanProduct so the rate strategy, reamortisation
// triggers and posting effects are wired consistently.
type LoanProduct struct {
	Config       lending.Config
	Accrual      lending.InterestAccrual
	Penalty      lending.PenaltyAccrual
	Application  lending.InterestApplication
	Overpayment  lending.OverpaymentTracker
	Overdue      lending.OverdueCheck
	Amortisation lending.Amortisation
}

// NewLoanProduct wires the engines for a configuration. The overpayment
// tracker doubles as a reamortisation trigger and as the post-due
// adjustment effect, matching the order due calculation emits in.
func NewLoanProduct(cfg lending.Config) LoanProduct {
	rate := lending.RateForConfig(cfg)
	application := lending.InterestApplication{Config: cfg}
	tracker := lending.OverpaymentTracker{Config: cfg}

	return LoanProduct{
		Config:      cfg,
		Accrual:     lending.InterestAccrual{Rate: rate, Config: cfg},
		Penalty:     lending.PenaltyAccrual{Rate: rate, Config: cfg},
		Application: application,
		Overpayment: tracker,
		Overdue:     lending.OverdueCheck{Config: cfg},
		Amortisation: lending.Amortisation{
			Rate:         rate,
			Triggers:     lending.TriggersForConfig(cfg, tracker),
			Applications: []lending.PostingEffect{application},
			Adjustments:  []lending.PostingEffect{tracker},
			Config:       cfg,
		},
	}
}

// =============================================================================
// ACTIVATION
// =============================================================================

// Activate disburses the principal and plants the recurring schedules.
// The first due calculation lands at least one full month after opening
// so the opening day never doubles as a billing day.
func (p LoanProduct) Activate(acct ledger.AccountSnapshot, effective time.Time) (ledger.HookResult, error) {
	principal, err := acct.Params.Decimal(lending.ParamPrincipal, effective)
	if err != nil {
		return ledger.HookResult{}, err
	}

	denom := p.Config.Denomination
	debt := ledger.NewPostingPair(principal,
		acct.Account, ledger.InternalContra,
		acct.Account, lending.AddressPrincipal, denom)
	cash := ledger.NewPostingPair(principal,
		acct.Account, ledger.DefaultAddress,
		p.Config.RepaymentAccount, ledger.DefaultAddress, denom)

	disbursement := ledger.PostingInstruction{
		Postings:            append(debt, cash...),
		Description:         fmt.Sprintf("Principal disbursement of %s", principal.String()),
		EventTag:            "ACTIVATION",
		ClientTransactionID: ledger.ClientTransactionID("ACTIVATION", acct.Account, ledger.ExecutionID(effective)),
		ValueTimestamp:      effective,
	}

	tomorrow := effective.AddDate(0, 0, 1)
	firstAccrual := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, tomorrow.Location())
	firstDue := schedule.Next(effective, schedule.Monthly, p.Config.DueCalculationDay)
	if firstDue.Before(effective.AddDate(0, 1, 0)) {
		firstDue = schedule.Next(firstDue, schedule.Monthly, p.Config.DueCalculationDay)
	}

	return ledger.HookResult{
		Instructions: []ledger.PostingInstruction{disbursement},
		ScheduleUpdates: []ledger.ScheduleUpdate{
			{Event: string(schedule.EventAccrueInterest), NextRun: firstAccrual},
			{Event: string(schedule.EventDueAmountCalculation), NextRun: firstDue},
		},
	}, nil
}

// =============================================================================
// SCHEDULED EVENTS
// =============================================================================

// OnScheduledEvent dispatches one scheduled run to the owning engine.
func (p LoanProduct) OnScheduledEvent(acct ledger.AccountSnapshot, event schedule.Event, effective time.Time) (ledger.HookResult, error) {
	switch event {
	case schedule.EventAccrueInterest:
		return p.accrueInterest(acct, effective)
	case schedule.EventDueAmountCalculation:
		return p.calculateDue(acct, effective)
	case schedule.EventCheckOverdue:
		return p.checkOverdue(acct, effective)
	case schedule.EventCheckDelinquency:
		return p.Overdue.CheckDelinquency(acct, effective), nil
	default:
		return ledger.HookResult{}, fmt.Errorf("scheduled event %q: %w", event, ledger.ErrUnknownEvent)
	}
}

func (p LoanProduct) accrueInterest(acct ledger.AccountSnapshot, effective time.Time) (ledger.HookResult, error) {
	// The planted due calculation can sit more than a month out (the first
	// cycle after activation); accrual routing must see that, not a date
	// re-derived from the monthly recurrence.
	nextDueCalc, ok := acct.NextExecution(string(schedule.EventDueAmountCalculation))
	if !ok {
		nextDueCalc = p.Amortisation.NextDueCalculation(effective)
	}

	instructions, err := p.Accrual.Accrue(acct, effective, nextDueCalc)
	if err != nil {
		return ledger.HookResult{}, err
	}
	expected, err := p.Accrual.ExpectedAccrual(acct, effective)
	if err != nil {
		return ledger.HookResult{}, err
	}
	penalties, err := p.Penalty.Accrue(acct, effective)
	if err != nil {
		return ledger.HookResult{}, err
	}

	instructions = append(instructions, expected...)
	instructions = append(instructions, penalties...)
	return ledger.HookResult{Instructions: instructions}, nil
}

func (p LoanProduct) calculateDue(acct ledger.AccountSnapshot, effective time.Time) (ledger.HookResult, error) {
	instructions, err := p.Amortisation.CalculateDue(acct, effective)
	if err != nil {
		return ledger.HookResult{}, err
	}

	return ledger.HookResult{
		Instructions: instructions,
		ScheduleUpdates: []ledger.ScheduleUpdate{
			{Event: string(schedule.EventDueAmountCalculation), NextRun: p.Amortisation.NextDueCalculation(effective)},
			{Event: string(schedule.EventCheckOverdue), NextRun: p.Overdue.OverdueAt(effective)},
		},
	}, nil
}

func (p LoanProduct) checkOverdue(acct ledger.AccountSnapshot, effective time.Time) (ledger.HookResult, error) {
	return ledger.HookResult{
		Instructions: p.Overdue.CheckOverdue(acct, effective),
		ScheduleUpdates: []ledger.ScheduleUpdate{
			{Event: string(schedule.EventCheckDelinquency), NextRun: p.Overdue.DelinquencyAt(effective)},
		},
	}, nil
}

// =============================================================================
// PRE-POSTING
// =============================================================================

// PrePosting vets an incoming instruction before the host commits it.
// A nil return accepts the instruction.
func (p LoanProduct) PrePosting(acct ledger.AccountSnapshot, incoming ledger.PostingInstruction, effective time.Time) *ledger.Rejection {
	denom := p.Config.Denomination
	for _, got := range incoming.Denominations() {
		if got != denom {
			return ledger.NewRejection(ledger.RejectionWrongDenomination,
				"only postings in %s are accepted, got %s", denom, got)
		}
	}

	if acct.AnyFlagActive(p.Config.BlockingFlags, effective) {
		return ledger.NewRejection(ledger.RejectionAgainstTNC,
			"repayments are blocked for this account")
	}

	delta := incoming.NetDelta(acct.Account, denom)
	if delta.IsNegative() {
		return ledger.NewRejection(ledger.RejectionAgainstTNC,
			"debiting from the loan account is not allowed")
	}

	snap := acct.Balances.At(effective)
	ceiling := lending.TotalOutstandingDebt(snap, acct.Account, denom).
		Add(accruedRounded(snap, acct.Account, denom, p.Config.FulfillmentPrecision))
	if delta.GreaterThan(ceiling) {
		return ledger.NewRejection(ledger.RejectionAgainstTNC,
			"cannot pay more than is owed: %s exceeds %s", delta.String(), ceiling.String())
	}
	return nil
}

func accruedRounded(snap *ledger.Snapshot, account ledger.AccountID, denom ledger.Denomination, precision int32) decimal.Decimal {
	accrued := snap.AddressAmount(account, lending.AddressAccruedInterest, denom).
		Add(snap.AddressAmount(account, lending.AddressNonEMIAccruedInterest, denom))
	return ledger.RoundHalfUp(accrued, precision)
}

// =============================================================================
// POST-POSTING
// =============================================================================

// PostPosting distributes an accepted repayment down the address
// hierarchy. Whatever no tier absorbs is an overpayment: the
// configured fee is carved off and the rest lands on the overpayment
// address, reducing effective principal.
func (p LoanProduct) PostPosting(acct ledger.AccountSnapshot, incoming ledger.PostingInstruction, effective time.Time) ledger.HookResult {
	denom := p.Config.Denomination
	amount := incoming.NetDelta(acct.Account, denom)
	if !amount.IsPositive() {
		return ledger.HookResult{}
	}

	snap := acct.Balances.At(effective)
	dist := lending.Distribute(snap, lending.StandardHierarchy(acct.Account), amount, denom)
	instructions := dist.Instructions(effective, denom)

	if dist.Remaining.IsPositive() {
		overpaid := dist.Remaining
		instructions = append(instructions, p.Overpayment.Fee(acct, effective, overpaid)...)

		net := overpaid.Sub(p.Overpayment.FeeAmount(overpaid))
		if record := p.Overpayment.RecordOverpayment(acct.Account, net, effective); !record.IsEmpty() {
			instructions = append(instructions, record)
		}
	}
	return ledger.HookResult{Instructions: instructions}
}

// =============================================================================
// DEACTIVATION
// =============================================================================

// Deactivate settles the account for closure: outstanding debt blocks
// the close, any sub-rounding accrual residue is flattened, and the
// tracker addresses are cleared. Accrued interest that would bill a
// positive amount counts as debt here, so closure never books a due
// amount nobody can collect.
func (p LoanProduct) Deactivate(acct ledger.AccountSnapshot, effective time.Time) ledger.HookResult {
	denom := p.Config.Denomination
	snap := acct.Balances.At(effective)

	debt := lending.TotalOutstandingDebt(snap, acct.Account, denom).
		Add(accruedRounded(snap, acct.Account, denom, p.Config.FulfillmentPrecision))
	if debt.IsPositive() {
		return ledger.HookResult{Rejection: ledger.NewRejection(ledger.RejectionAgainstTNC,
			"cannot close account with outstanding debt of %s", debt.String())}
	}

	instructions := p.Application.Apply(acct, effective)
	instructions = append(instructions, p.Overpayment.Closeout(acct, effective)...)
	return ledger.HookResult{Instructions: instructions}
}
