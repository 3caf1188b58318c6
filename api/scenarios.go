/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the simulator with
  realistic loan histories. Each scenario registers a product, opens
  an account and drives the virtual clock to demonstrate a specific
  behaviour.

AVAILABLE SCENARIOS:
  standard-loan:  Fixed-rate loan, three months of accrual and billing,
                  repaid on time each cycle
  overdue-loan:   Missed payment rolling to overdue and delinquency
  overpayment:    Extra repayment tracked against principal

HOW SCENARIOS WORK:
  1. Reset the simulator (fresh journal, fresh clock)
  2. Register the demo product
  3. Open the loan
  4. Advance the clock, repaying (or not) along the way

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "standard-loan"}

NOTE:
  Loading a scenario discards all existing simulation state. Only use
  in development/demo environments.

SEE ALSO:
  - handlers.go: the endpoints scenarios feed
  - product/product.go: the JSON the demo product is defined in
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/ledger"
	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/product"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes one loadable scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "standard-loan",
		Name:        "Standard Loan",
		Description: "Fixed-rate loan repaid on time for three cycles",
	},
	{
		ID:          "overdue-loan",
		Name:        "Overdue Loan",
		Description: "Missed payment rolling to overdue and delinquency",
	},
	{
		ID:          "overpayment",
		Name:        "Overpayment",
		Description: "Extra repayment tracked against principal",
	},
}

const demoProductJSON = `{
	"id": "demo-personal-loan",
	"name": "Demo Personal Loan",
	"denomination": "GBP",
	"fixed_interest_rate": "0.129",
	"total_term_months": 12,
	"fixed_interest_term_months": 12,
	"due_amount_calculation_day": 28,
	"repayment_period_days": 10,
	"grace_period_days": 5,
	"late_repayment_fee": "15",
	"overpayment_fee_rate": "0.05",
	"penalty_interest_rate": "0.24",
	"penalty_includes_base_rate": true
}`

var scenarioStart = time.Date(2024, time.January, 5, 9, 0, 0, 0, time.UTC)

const demoAccount = ledger.AccountID("LOAN_DEMO_1")

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario resets the simulation and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.loadScenario(req.ScenarioID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) loadScenario(id string) error {
	prod, err := h.Factory.Parse(demoProductJSON)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.Simulator = NewSimulator(scenarioStart)
	h.products = map[string]*product.Product{prod.ID: prod}
	sim := h.Simulator
	h.mu.Unlock()

	if err := sim.OpenLoan(demoAccount, prod, product.Opening{
		Principal:      decimal.NewFromInt(10000),
		DepositAccount: "CUST_CURRENT_1",
	}); err != nil {
		return err
	}

	switch id {
	case "standard-loan":
		return loadStandardLoan(sim)
	case "overdue-loan":
		return loadOverdueLoan(sim)
	case "overpayment":
		return loadOverpayment(sim)
	default:
		return fmt.Errorf("unknown scenario: %s", id)
	}
}

// loadStandardLoan runs three billing cycles, repaying the billed
// amounts the day after each calculation.
func loadStandardLoan(sim *Simulator) error {
	for cycle := 0; cycle < 3; cycle++ {
		if err := advanceToNextBilling(sim); err != nil {
			return err
		}
		due := billedTotal(sim, demoAccount)
		if due.IsPositive() {
			if err := sim.Repay(demoAccount, due); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadOverdueLoan skips the first payment entirely so the dues roll to
// overdue and the delinquency notification fires.
func loadOverdueLoan(sim *Simulator) error {
	if err := advanceToNextBilling(sim); err != nil {
		return err
	}
	// Repayment period (10d) plus grace (5d) with nothing paid.
	return sim.AdvanceDays(20)
}

// loadOverpayment repays the first billing plus an extra lump sum.
func loadOverpayment(sim *Simulator) error {
	if err := advanceToNextBilling(sim); err != nil {
		return err
	}
	due := billedTotal(sim, demoAccount)
	return sim.Repay(demoAccount, due.Add(decimal.NewFromInt(500)))
}

// advanceToNextBilling steps day by day until a due amount appears or
// a safety horizon passes.
func advanceToNextBilling(sim *Simulator) error {
	before := billedTotal(sim, demoAccount)
	for day := 0; day < 62; day++ {
		if err := sim.AdvanceDays(1); err != nil {
			return err
		}
		if billedTotal(sim, demoAccount).GreaterThan(before) {
			// Step past the calculation so repayment lands the next day.
			return sim.AdvanceDays(1)
		}
	}
	return fmt.Errorf("no billing run within the horizon")
}

func billedTotal(sim *Simulator, id ledger.AccountID) decimal.Decimal {
	snap := sim.Journal().At(sim.Now())
	total := decimal.Zero
	for _, address := range lending.DueAddresses {
		total = total.Add(snap.AddressAmount(id, address, "GBP"))
	}
	return total
}
