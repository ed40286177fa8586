// Package api provides the REST client for the bookkeeping backend.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// ErrNoToken is returned before any request is made when the session holds no
// authentication token.
var ErrNoToken = errors.New("no authentication token in session")

// Record is a raw JSON object as returned by the backend.
// Field shapes vary between endpoints, so records are kept untyped and read
// through the ledger package's fallback helpers.
type Record = map[string]any

// Payables represents the response of the vendor-payables and
// expense-payables endpoints.
// Debit holds purchase records, Credit holds separate payment records.
type Payables struct {
	Debit  []Record `json:"debit"`
	Credit []Record `json:"credit"`
}

// Query holds the optional filters shared by the ledger endpoints.
// Empty fields are omitted from the query string.
type Query struct {
	CompanyID string
	FromDate  string // YYYY-MM-DD
	ToDate    string // YYYY-MM-DD
	VendorID  string
	ExpenseID string
	PartyID   string
}

// Values encodes the query. A company id of "null" selects all companies and
// is therefore dropped.
func (q Query) Values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	if q.CompanyID != "null" {
		set("companyId", q.CompanyID)
	}
	set("fromDate", q.FromDate)
	set("toDate", q.ToDate)
	set("vendorId", q.VendorID)
	set("expenseId", q.ExpenseID)
	set("partyId", q.PartyID)
	return v
}

// balanceResponse represents the response from /api/vendors/:id/balance.
type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// errorResponse represents an error body from the backend.
type errorResponse struct {
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Error is returned for any non-2xx response.
type Error struct {
	StatusCode int
	Path       string
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error (status %d) on %s", e.StatusCode, e.Path)
	}
	return fmt.Sprintf("API error (status %d) on %s: %s", e.StatusCode, e.Path, e.Message)
}

// IsAuthError reports whether err means the user has to log in again:
// either no token was stored or the backend rejected the stored one.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrNoToken) {
		return true
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized
	}
	return false
}
