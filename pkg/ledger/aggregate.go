package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the day format used by the backend query parameters.
const DateLayout = "2006-01-02"

// Window is an inclusive date range compared at day granularity.
// A zero bound is open. The zero Window is the all-time window and is the only
// one that admits undated entries.
type Window struct {
	From time.Time
	To   time.Time
}

// NewWindow floors from to the start of its day and ceils to to the last
// millisecond of its day, both in loc. Zero arguments stay open.
func NewWindow(from, to time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}

	var w Window
	if !from.IsZero() {
		f := from.In(loc)
		w.From = time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, loc)
	}
	if !to.IsZero() {
		t := to.In(loc)
		w.To = time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
	}
	return w
}

// ParseWindow builds a Window from YYYY-MM-DD strings; empty strings are open.
func ParseWindow(from, to string, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.Local
	}

	var f, t time.Time
	var err error
	if from != "" {
		if f, err = time.ParseInLocation(DateLayout, from, loc); err != nil {
			return Window{}, fmt.Errorf("invalid from date %q: %w", from, err)
		}
	}
	if to != "" {
		if t, err = time.ParseInLocation(DateLayout, to, loc); err != nil {
			return Window{}, fmt.Errorf("invalid to date %q: %w", to, err)
		}
	}
	if !f.IsZero() && !t.IsZero() && t.Before(f) {
		return Window{}, fmt.Errorf("to date %s is before from date %s", to, from)
	}
	return NewWindow(f, t, loc), nil
}

// IsZero reports whether the window is unset.
func (w Window) IsZero() bool {
	return w.From.IsZero() && w.To.IsZero()
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.IsZero() {
		return true
	}
	if t.IsZero() {
		return false
	}
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

// FromDate and ToDate format the bounds for query parameters.
func (w Window) FromDate() string { return formatDay(w.From) }
func (w Window) ToDate() string   { return formatDay(w.To) }

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// Balance is the aggregate of a counterparty's entries over a window.
type Balance struct {
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	// Balance is TotalCredit - TotalDebit.
	Balance decimal.Decimal
	// LastTransactionDate is the latest entry date in the window, zero if
	// there is none.
	LastTransactionDate time.Time
}

// Settled reports whether nothing is outstanding either way.
func (b Balance) Settled() bool {
	return b.Balance.IsZero()
}

// Aggregate sums entries inside w. It is a pure function of its inputs.
func Aggregate(entries []Entry, w Window) Balance {
	b := Balance{
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	for _, e := range entries {
		if !w.Contains(e.Date) {
			continue
		}
		switch e.Side {
		case Debit:
			b.TotalDebit = b.TotalDebit.Add(e.Amount)
		case Credit:
			b.TotalCredit = b.TotalCredit.Add(e.Amount)
		}
		if e.Date.After(b.LastTransactionDate) {
			b.LastTransactionDate = e.Date
		}
	}
	b.Balance = b.TotalCredit.Sub(b.TotalDebit)
	return b
}

// Filter returns the entries inside w, preserving order.
func Filter(entries []Entry, w Window) []Entry {
	if w.IsZero() {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		if w.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out
}

// Running returns the balance after each entry, in order.
func Running(entries []Entry) []decimal.Decimal {
	out := make([]decimal.Decimal, len(entries))
	acc := decimal.Zero
	for i, e := range entries {
		switch e.Side {
		case Credit:
			acc = acc.Add(e.Amount)
		case Debit:
			acc = acc.Sub(e.Amount)
		}
		out[i] = acc
	}
	return out
}
