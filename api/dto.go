/*
dto.go - Request/response data structures

PURPOSE:
  JSON shapes for the HTTP surface. Kept separate from domain types so
  the wire format can evolve without touching the engines. Monetary
  amounts travel as strings end to end.

SEE ALSO:
  - handlers.go: where these are produced and consumed
*/
package api

import (
	"time"

	"github.com/warp/lending-engine/product"
)

// =============================================================================
// REQUESTS
// =============================================================================

// CreateProductRequest registers a product definition.
// The body is the product JSON itself; see product.ProductJSON.
type CreateProductRequest = product.ProductJSON

// OpenLoanRequest opens a loan account against a registered product.
type OpenLoanRequest struct {
	AccountID      string `json:"account_id"`
	ProductID      string `json:"product_id"`
	Principal      string `json:"principal"`
	DepositAccount string `json:"deposit_account,omitempty"`
}

// RepayRequest submits a repayment at the current virtual time.
type RepayRequest struct {
	Amount string `json:"amount"`
}

// AdvanceRequest moves the virtual clock.
// Either days or a target timestamp, not both.
type AdvanceRequest struct {
	Days   int    `json:"days,omitempty"`
	Target string `json:"target,omitempty"` // RFC 3339
}

// SetFlagRequest activates a flag on an account.
type SetFlagRequest struct {
	Flag string `json:"flag"`
}

// SetParameterRequest changes one parameter value.
type SetParameterRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// ProductResponse summarises a registered product.
type ProductResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Denomination string `json:"denomination"`
	TermMonths   int    `json:"term_months"`
}

// AccountResponse summarises a simulated loan account.
type AccountResponse struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
	Closed    bool      `json:"closed"`
}

// BalancesResponse is the account's non-zero address balances.
type BalancesResponse struct {
	Account  string            `json:"account"`
	AsOf     time.Time         `json:"as_of"`
	State    string            `json:"state"`
	Balances map[string]string `json:"balances"`
}

// ClockResponse reports the virtual clock.
type ClockResponse struct {
	Now time.Time `json:"now"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}
