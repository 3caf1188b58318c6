package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lending-engine/api"
)

func loadScenario(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/scenarios/load",
		`{"scenario_id": "`+id+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func demoBalances(t *testing.T, router http.Handler) api.BalancesResponse {
	t.Helper()
	var balances api.BalancesResponse
	rec := do(t, router, http.MethodGet, "/api/loans/LOAN_DEMO_1/balances", "", &balances)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return balances
}

func TestListScenarios(t *testing.T) {
	router := newTestRouter(t)

	var listed []api.ScenarioDTO
	rec := do(t, router, http.MethodGet, "/api/scenarios", "", &listed)
	require.Equal(t, http.StatusOK, rec.Code)

	ids := make([]string, 0, len(listed))
	for _, s := range listed {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{"standard-loan", "overdue-loan", "overpayment"}, ids)
}

func TestLoadStandardLoanScenario(t *testing.T) {
	// Three cycles billed and repaid on time: dues are clear, principal
	// has amortised, and the account never left CURRENT.
	router := newTestRouter(t)
	loadScenario(t, router, "standard-loan")

	balances := demoBalances(t, router)
	assert.Equal(t, "CURRENT", balances.State)
	assert.NotContains(t, balances.Balances, "PRINCIPAL_DUE")
	assert.NotContains(t, balances.Balances, "INTEREST_DUE")
	assert.NotContains(t, balances.Balances, "PRINCIPAL_OVERDUE")

	principal := balances.Balances["PRINCIPAL"]
	require.NotEmpty(t, principal)
	assert.NotEqual(t, "10000", principal, "three cycles of principal repaid")
}

func TestLoadOverdueLoanScenario(t *testing.T) {
	// The first payment is skipped: dues roll to overdue with a late fee,
	// and the delinquency workflow was asked to flag the account.
	router := newTestRouter(t)
	loadScenario(t, router, "overdue-loan")

	balances := demoBalances(t, router)
	assert.Equal(t, "OVERDUE", balances.State)
	assert.Contains(t, balances.Balances, "PRINCIPAL_OVERDUE")
	assert.Contains(t, balances.Balances, "INTEREST_OVERDUE")
	assert.Contains(t, balances.Balances, "PENALTIES")

	var notifications []api.Notification
	rec := do(t, router, http.MethodGet, "/api/notifications", "", &notifications)
	require.Equal(t, http.StatusOK, rec.Code)

	var delinquent bool
	for _, n := range notifications {
		if n.Type == "MARK_DELINQUENT" {
			delinquent = true
		}
	}
	assert.True(t, delinquent, "delinquency notification dispatched")
}

func TestLoadOverpaymentScenario(t *testing.T) {
	// 500 extra on top of the first bill: 5% fee, the net 475 tracked
	// against principal.
	router := newTestRouter(t)
	loadScenario(t, router, "overpayment")

	balances := demoBalances(t, router)
	assert.Equal(t, "475", balances.Balances["OVERPAYMENT"])
	assert.NotContains(t, balances.Balances, "PRINCIPAL_DUE")
}

func TestLoadUnknownScenario(t *testing.T) {
	router := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load",
		`{"scenario_id": "nope"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
