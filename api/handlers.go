/*
handlers.go - HTTP API handlers for the lending simulation host

PURPOSE:
  Exposes the lending engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the
  simulator and product factory.

ENDPOINTS:
  Products:
    GET    /api/products               List registered products
    POST   /api/products               Register product from JSON
    GET    /api/products/{id}          Get product summary

  Loans:
    GET    /api/loans                  List simulated accounts
    POST   /api/loans                  Open a loan
    GET    /api/loans/{id}/balances    Address balances and state
    POST   /api/loans/{id}/repayments  Submit a repayment
    POST   /api/loans/{id}/flags       Activate a flag
    POST   /api/loans/{id}/parameters  Change a parameter
    DELETE /api/loans/{id}             Close the loan

  Clock:
    GET    /api/clock                  Current virtual time
    POST   /api/clock/advance          Advance, firing schedules

  Notifications:
    GET    /api/notifications          Dispatched workflow requests

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Account or product not found
  - 409: Conflict (idempotency, duplicate account)
  - 422: Hook rejections (wrong denomination, blocked, overpaying)
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware. The simulator is a development tool.

SEE ALSO:
  - dto.go: Request/response data structures
  - simulator.go: Virtual-time lifecycle host
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/ledger"
	"github.com/warp/lending-engine/product"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Simulator *Simulator
	Factory   *product.Factory

	mu       sync.RWMutex
	products map[string]*product.Product
}

// sim returns the current simulator; scenario loads can swap it out.
func (h *Handler) sim() *Simulator {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.Simulator
}

// NewHandler creates a handler hosting a fresh simulation starting now.
func NewHandler(start time.Time) *Handler {
	return &Handler{
		Simulator: NewSimulator(start),
		Factory:   product.NewFactory(),
		products:  make(map[string]*product.Product),
	}
}

// =============================================================================
// PRODUCTS
// =============================================================================

// CreateProduct registers a product definition.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	prod, err := h.Factory.FromJSON(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	h.mu.Lock()
	if _, exists := h.products[prod.ID]; exists {
		h.mu.Unlock()
		writeError(w, http.StatusConflict, errors.New("product already registered: "+prod.ID))
		return
	}
	h.products[prod.ID] = prod
	h.mu.Unlock()

	writeJSON(w, http.StatusCreated, productResponse(prod))
}

// ListProducts returns all registered products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	out := make([]ProductResponse, 0, len(h.products))
	for _, prod := range h.products {
		out = append(out, productResponse(prod))
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

// GetProduct returns one product summary.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	prod, ok := h.products[chi.URLParam(r, "id")]
	h.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("product not found"))
		return
	}
	writeJSON(w, http.StatusOK, productResponse(prod))
}

func productResponse(prod *product.Product) ProductResponse {
	return ProductResponse{
		ID:           prod.ID,
		Name:         prod.Name,
		Denomination: string(prod.Config.Denomination),
		TermMonths:   prod.Config.TotalTermMonths,
	}
}

// =============================================================================
// LOANS
// =============================================================================

// OpenLoan opens and activates a loan account.
func (h *Handler) OpenLoan(w http.ResponseWriter, r *http.Request) {
	var req OpenLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, errors.New("account_id is required"))
		return
	}

	h.mu.RLock()
	prod, ok := h.products[req.ProductID]
	h.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("product not found: "+req.ProductID))
		return
	}

	principal, err := decimal.NewFromString(req.Principal)
	if err != nil || !principal.IsPositive() {
		writeError(w, http.StatusBadRequest, errors.New("principal must be a positive decimal"))
		return
	}

	opening := product.Opening{
		Principal:      principal,
		DepositAccount: ledger.AccountID(req.DepositAccount),
	}
	if err := h.sim().OpenLoan(ledger.AccountID(req.AccountID), prod, opening); err != nil {
		writeHookError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, AccountResponse{
		ID:        req.AccountID,
		ProductID: req.ProductID,
		CreatedAt: h.sim().Now(),
	})
}

// ListLoans returns the simulated accounts in registration order.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	accounts := h.sim().Accounts()
	out := make([]AccountResponse, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, AccountResponse{
			ID:        string(acct.ID),
			ProductID: acct.ProductID,
			CreatedAt: acct.CreatedAt,
			Closed:    acct.Closed,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetBalances returns the account's non-zero balances and state.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	balances, err := h.sim().BalancesOf(id)
	if err != nil {
		writeHookError(w, err)
		return
	}
	state, err := h.sim().StateOf(id)
	if err != nil {
		writeHookError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalancesResponse{
		Account:  string(id),
		AsOf:     h.sim().Now(),
		State:    string(state),
		Balances: balances,
	})
}

// Repay submits a repayment at the current virtual time.
func (h *Handler) Repay(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	var req RepayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("amount must be a decimal"))
		return
	}

	if err := h.sim().Repay(id, amount); err != nil {
		writeHookError(w, err)
		return
	}
	h.GetBalances(w, r)
}

// SetFlag activates a flag on the account.
func (h *Handler) SetFlag(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	var req SetFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Flag == "" {
		writeError(w, http.StatusBadRequest, errors.New("flag is required"))
		return
	}

	if err := h.sim().SetFlag(id, req.Flag); err != nil {
		writeHookError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetParameter changes one parameter value on the account.
func (h *Handler) SetParameter(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	var req SetParameterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}

	if err := h.sim().SetParameter(id, req.Name, req.Value); err != nil {
		writeHookError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CloseLoan deactivates the account.
func (h *Handler) CloseLoan(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))
	if err := h.sim().CloseLoan(id); err != nil {
		writeHookError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CLOCK AND NOTIFICATIONS
// =============================================================================

// GetClock reports the virtual time.
func (h *Handler) GetClock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ClockResponse{Now: h.sim().Now()})
}

// Advance moves the virtual clock, firing due schedules.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	var req AdvanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var err error
	switch {
	case req.Target != "":
		var target time.Time
		target, err = time.Parse(time.RFC3339, req.Target)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("target must be RFC 3339"))
			return
		}
		err = h.sim().AdvanceTo(target)
	case req.Days > 0:
		err = h.sim().AdvanceDays(req.Days)
	default:
		writeError(w, http.StatusBadRequest, errors.New("either days or target is required"))
		return
	}

	if err != nil {
		writeHookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClockResponse{Now: h.sim().Now()})
}

// ListNotifications returns dispatched workflow requests, oldest first.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sim().Notifications())
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// writeHookError maps engine errors to HTTP statuses: rejections are
// unprocessable, missing accounts are 404, duplicates conflict.
func writeHookError(w http.ResponseWriter, err error) {
	var rejection *ledger.Rejection
	switch {
	case errors.As(err, &rejection):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:  rejection.Message,
			Reason: string(rejection.Reason),
		})
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ledger.ErrDuplicateClientTransaction):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}
