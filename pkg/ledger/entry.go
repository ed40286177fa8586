// Package ledger turns raw backend records into ledger entries and aggregates
// them into counterparty balances.
//
// Side convention: a credit is an obligation incurred (purchase or sale), a
// debit is money moving to settle one (payment or receipt). A purchase or sale
// not made on credit settles immediately and so also yields a synthetic debit
// of the same amount.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is a raw JSON object from the backend.
type Record = map[string]any

// Side is the ledger side of an entry.
type Side string

const (
	Debit  Side = "debit"
	Credit Side = "credit"
)

// Source is the kind of backend record an entry was derived from.
type Source string

const (
	SourceSale     Source = "sale"
	SourcePurchase Source = "purchase"
	SourceReceipt  Source = "receipt"
	SourcePayment  Source = "payment"
)

// PaymentMethodCredit marks a purchase or sale left outstanding.
const PaymentMethodCredit = "Credit"

// Entry is a normalized ledger entry.
type Entry struct {
	ID              string
	Date            time.Time // zero when the record carried no usable date
	Side            Side
	Amount          decimal.Decimal
	PaymentMethod   string // empty when absent
	ReferenceNumber string
	Description     string
	Source          Source
	// Synthetic is set on the debit that offsets a purchase or sale settled
	// at the time of the transaction.
	Synthetic bool
}

// HasDate reports whether the entry carries a usable date.
func (e Entry) HasDate() bool {
	return !e.Date.IsZero()
}

// ItemType distinguishes goods from services on a line item.
type ItemType string

const (
	ItemProduct ItemType = "product"
	ItemService ItemType = "service"
)

// LineItem is one line of a sale or purchase document. Line items are only
// fetched when a single entry is opened.
type LineItem struct {
	ItemType  ItemType
	Name      string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Amount    decimal.Decimal
	TaxRate   decimal.Decimal
}
