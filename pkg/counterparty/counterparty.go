// Package counterparty holds the list view-model for vendors, expense
// categories and customers: filter state, sorting by last transaction,
// pagination and fetch-on-visible balance loading.
package counterparty

import (
	"context"
	"fmt"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/ledger"
)

// Kind is the ledger a counterparty belongs to.
type Kind string

const (
	KindVendor   Kind = "vendor"
	KindExpense  Kind = "expense"
	KindCustomer Kind = "customer"
)

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindVendor, KindExpense, KindCustomer:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown counterparty kind %q (expected vendor, expense or customer)", s)
}

// Counterparty is a vendor, expense category or customer.
type Counterparty struct {
	ID   string
	Name string
	Kind Kind
}

// AllCompanies is the company id selecting every company.
const AllCompanies = "null"

// Filter is the screen filter state passed down to lists and detail views.
type Filter struct {
	CompanyID string
	Window    ledger.Window
}

// AllCompanies reports whether the filter spans every company.
func (f Filter) AllCompanies() bool {
	return f.CompanyID == "" || f.CompanyID == AllCompanies
}

// Company returns the company id to send to the backend, empty for all.
func (f Filter) Company() string {
	if f.AllCompanies() {
		return ""
	}
	return f.CompanyID
}

// BalanceFetcher loads the balance of one counterparty.
type BalanceFetcher interface {
	FetchBalance(ctx context.Context, cp Counterparty, f Filter) (ledger.Balance, error)
}

// Lister loads the counterparties of a kind.
type Lister interface {
	Counterparties(ctx context.Context, kind Kind, f Filter) ([]Counterparty, error)
}
