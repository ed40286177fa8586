// Package beancount provides the Beancount transaction model, its text
// rendering and repository pattern for monthly Beancount files.
package beancount

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Transaction represents a Beancount transaction.
type Transaction struct {
	Date      string            // YYYY-MM-DD
	Narration string            // Transaction description
	Payee     string            // Payee name (optional)
	Tags      []string          // Tags (e.g., ["credit"])
	Links     []string          // Links (optional)
	Metadata  map[string]string // Metadata key-value pairs
	Postings  []Posting         // Transaction postings
}

// Posting represents a posting in a Beancount transaction.
type Posting struct {
	Account  string          // Account name (e.g., "Assets:Bank:Checking")
	Amount   decimal.Decimal // Positive for debit, negative for credit
	Currency string          // Currency code (e.g., "INR")
	Comment  string          // Posting comment (optional)
}

// amountColumn is where posting amounts are right-aligned.
const amountColumn = 60

// Balanced reports whether the postings sum to zero.
func (t Transaction) Balanced() bool {
	sum := decimal.Zero
	for _, p := range t.Postings {
		sum = sum.Add(p.Amount)
	}
	return sum.IsZero()
}

// Format renders the transaction as Beancount text, ending in a newline.
func (t Transaction) Format() string {
	var sb strings.Builder

	sb.WriteString(t.Date)
	sb.WriteString(" *")
	if t.Payee != "" {
		fmt.Fprintf(&sb, " %s", quote(t.Payee))
	}
	fmt.Fprintf(&sb, " %s", quote(t.Narration))
	for _, tag := range t.Tags {
		sb.WriteString(" #")
		sb.WriteString(tag)
	}
	for _, link := range t.Links {
		sb.WriteString(" ^")
		sb.WriteString(link)
	}
	sb.WriteString("\n")

	keys := make([]string, 0, len(t.Metadata))
	for k := range t.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %s: %s\n", k, quote(t.Metadata[k]))
	}

	for _, p := range t.Postings {
		sb.WriteString("  ")
		sb.WriteString(p.Account)

		amount := p.Amount.StringFixed(2)
		spaces := max(1, amountColumn-len(p.Account)-len(amount))
		sb.WriteString(strings.Repeat(" ", spaces))
		fmt.Fprintf(&sb, "%s %s", amount, p.Currency)

		if p.Comment != "" {
			fmt.Fprintf(&sb, " ; %s", p.Comment)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
