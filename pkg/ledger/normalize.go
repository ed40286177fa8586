package ledger

import (
	"sort"
	"time"
)

// Normalizer maps heterogeneous backend records to ledger entries.
// It is stateless apart from the location used for date-only values, so the
// same records always normalize to the same entries.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer creates a Normalizer. A nil location means time.Local.
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc}
}

// Location returns the location date-only values are read in.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Entry converts one record. Malformed fields degrade to a zero amount and a
// zero date; it never fails.
func (n *Normalizer) Entry(rec Record, source Source, side Side) Entry {
	return Entry{
		ID:              ID(rec),
		Date:            Date(rec, n.loc),
		Side:            side,
		Amount:          Amount(rec),
		PaymentMethod:   Text(rec, paymentMethodPaths...),
		ReferenceNumber: Text(rec, referencePaths...),
		Description:     Text(rec, descriptionPaths...),
		Source:          source,
	}
}

// Payables normalizes a vendor or expense ledger. debit holds purchases and
// credit holds payment records.
//
// Every purchase is an obligation. The payments made are the purchases
// settled at purchase time plus the separate payment records.
func (n *Normalizer) Payables(debit, credit []Record) []Entry {
	entries := make([]Entry, 0, 2*len(debit)+len(credit))
	for _, rec := range debit {
		entries = append(entries, n.Entry(rec, SourcePurchase, Credit))
	}
	for _, rec := range SettledAtPurchase(debit) {
		entries = append(entries, n.settlement(rec, SourcePurchase))
	}
	for _, rec := range credit {
		entries = append(entries, n.Entry(rec, SourcePayment, Debit))
	}
	return sortByDate(entries)
}

// Customer normalizes a customer ledger from sales and receipts.
func (n *Normalizer) Customer(sales, receipts []Record) []Entry {
	entries := make([]Entry, 0, 2*len(sales)+len(receipts))
	for _, rec := range sales {
		entries = append(entries, n.Entry(rec, SourceSale, Credit))
		if !OnCredit(rec) {
			entries = append(entries, n.settlement(rec, SourceSale))
		}
	}
	for _, rec := range receipts {
		entries = append(entries, n.Entry(rec, SourceReceipt, Debit))
	}
	return sortByDate(entries)
}

// SettledAtPurchase returns the purchases whose payment method is anything
// but Credit, a missing method included.
func SettledAtPurchase(purchases []Record) []Record {
	var settled []Record
	for _, rec := range purchases {
		if !OnCredit(rec) {
			settled = append(settled, rec)
		}
	}
	return settled
}

// OnCredit reports whether a purchase or sale was left outstanding.
func OnCredit(rec Record) bool {
	return Text(rec, paymentMethodPaths...) == PaymentMethodCredit
}

func (n *Normalizer) settlement(rec Record, source Source) Entry {
	e := n.Entry(rec, source, Debit)
	e.Synthetic = true
	return e
}

// sortByDate orders entries oldest first with undated entries last, keeping
// input order among equal dates.
func sortByDate(entries []Entry) []Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.HasDate() || !b.HasDate() {
			return a.HasDate() && !b.HasDate()
		}
		return a.Date.Before(b.Date)
	})
	return entries
}
