package converter

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/beancount"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/counterparty"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/pathutil"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/statement"
)

// settleMarker suffixes the key of a synthetic settlement entry.
const settleMarker = "settle"

// Item is one ledger entry converted to a Beancount transaction.
type Item struct {
	Key   string
	Month string // YYYY-MM
	Entry ledger.Entry
	Txn   beancount.Transaction
}

// Converter converts statements to Beancount transactions.
type Converter struct {
	mapper *Mapper
}

// NewConverter creates a new Converter.
func NewConverter(mapper *Mapper) *Converter {
	return &Converter{mapper: mapper}
}

// Key identifies an entry across exports: source, record id and side, with a
// settle marker on synthetic entries.
func Key(e ledger.Entry) string {
	key := fmt.Sprintf("%s:%s:%s", e.Source, e.ID, e.Side)
	if e.Synthetic {
		key += ":" + settleMarker
	}
	return key
}

// Convert converts the dated entries of st. Undated entries cannot be placed
// in a monthly file and are returned separately.
func (c *Converter) Convert(st *statement.Statement) (items []Item, undated []ledger.Entry) {
	for _, e := range st.Entries {
		if !e.HasDate() {
			undated = append(undated, e)
			continue
		}
		items = append(items, Item{
			Key:   Key(e),
			Month: pathutil.MonthKey(e.Date),
			Entry: e,
			Txn:   c.ConvertEntry(st.Counterparty, e),
		})
	}
	return items, undated
}

// ConvertEntry converts one entry of cp's ledger to a balanced transaction.
//
// A credit books the obligation against the source account. A debit moves
// money through the account of its payment method. The counterparty account
// is a liability for vendors and expenses and an asset for customers, so the
// signs flip between the two.
func (c *Converter) ConvertEntry(cp counterparty.Counterparty, e ledger.Entry) beancount.Transaction {
	cpAccount := c.mapper.CounterpartyAccount(cp)

	var other string
	if e.Side == ledger.Credit {
		other = c.mapper.SourceAccount(e.Source)
	} else {
		other = c.mapper.SettlementAccount(e.PaymentMethod)
	}

	// cpSign is the sign of the posting on the counterparty account.
	cpSign := int64(1)
	if e.Side == ledger.Credit {
		cpSign = -1
	}
	if cp.Kind == counterparty.KindCustomer {
		cpSign = -cpSign
	}

	amount := e.Amount
	cpAmount := amount.Mul(decimal.NewFromInt(cpSign))

	postings := []beancount.Posting{
		{Account: cpAccount, Amount: cpAmount, Currency: c.mapper.Currency()},
		{Account: other, Amount: cpAmount.Neg(), Currency: c.mapper.Currency(), Comment: e.PaymentMethod},
	}
	if e.Side == ledger.Credit {
		postings[1].Comment = ""
	}

	metadata := map[string]string{"entry": Key(e)}
	if e.ReferenceNumber != "" {
		metadata["ref"] = e.ReferenceNumber
	}

	tags := []string{string(cp.Kind)}
	if e.Synthetic {
		tags = append(tags, settleMarker)
	}

	return beancount.Transaction{
		Date:      e.Date.Format(ledger.DateLayout),
		Narration: buildNarration(e),
		Payee:     cp.Name,
		Tags:      tags,
		Metadata:  metadata,
		Postings:  postings,
	}
}

func buildNarration(e ledger.Entry) string {
	if d := strings.TrimSpace(e.Description); d != "" {
		return d
	}

	label := "Entry"
	if src := string(e.Source); src != "" {
		label = strings.ToUpper(src[:1]) + src[1:]
	}
	if e.Synthetic {
		label += " settlement"
	}
	if e.ReferenceNumber != "" {
		return label + " " + e.ReferenceNumber
	}
	return label
}
