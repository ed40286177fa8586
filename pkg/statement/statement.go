// Package statement builds counterparty ledgers by joining the API gateway,
// the entry normalizer and the balance aggregator.
package statement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/api"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/counterparty"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/ledger"
)

// Gateway is the subset of the API client the service needs.
// *api.Client satisfies it.
type Gateway interface {
	ListVendors(ctx context.Context, companyID string) ([]api.Record, error)
	ListExpenses(ctx context.Context, companyID string) ([]api.Record, error)
	ListParties(ctx context.Context, companyID string) ([]api.Record, error)
	ListSales(ctx context.Context, q api.Query) ([]api.Record, error)
	ListReceipts(ctx context.Context, q api.Query) ([]api.Record, error)
	VendorPayables(ctx context.Context, q api.Query) (*api.Payables, error)
	ExpensePayables(ctx context.Context, q api.Query) (*api.Payables, error)
	VendorBalance(ctx context.Context, vendorID, companyID string) (decimal.Decimal, error)
	Document(ctx context.Context, kind, id string) (api.Record, error)
}

var (
	nameKeys  = []string{"name", "vendorName", "partyName", "expenseName", "companyName", "title"}
	partyKeys = []string{"partyId", "party", "customerId", "customer"}
)

// Statement is the ledger of one counterparty over a window.
type Statement struct {
	Counterparty counterparty.Counterparty
	Window       ledger.Window
	// Entries are the entries inside the window, oldest first.
	Entries []ledger.Entry
	// Running holds the balance after each entry.
	Running []decimal.Decimal
	Balance ledger.Balance
}

// Service loads statements and balances.
type Service struct {
	gateway    Gateway
	normalizer *ledger.Normalizer
	logger     *slog.Logger
}

// NewService creates a Service. A nil location means time.Local.
func NewService(gateway Gateway, loc *time.Location, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gateway:    gateway,
		normalizer: ledger.NewNormalizer(loc),
		logger:     logger,
	}
}

// Location returns the location used for day boundaries.
func (s *Service) Location() *time.Location {
	return s.normalizer.Location()
}

// Counterparties lists the counterparties of kind. It implements
// counterparty.Lister.
func (s *Service) Counterparties(ctx context.Context, kind counterparty.Kind, f counterparty.Filter) ([]counterparty.Counterparty, error) {
	var (
		records []api.Record
		err     error
	)
	switch kind {
	case counterparty.KindVendor:
		records, err = s.gateway.ListVendors(ctx, f.Company())
	case counterparty.KindExpense:
		records, err = s.gateway.ListExpenses(ctx, f.Company())
	case counterparty.KindCustomer:
		records, err = s.gateway.ListParties(ctx, f.Company())
	default:
		return nil, fmt.Errorf("unknown counterparty kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %ss: %w", kind, err)
	}

	list := make([]counterparty.Counterparty, 0, len(records))
	for _, rec := range records {
		id := ledger.ID(rec)
		if id == "" {
			continue
		}
		name := ledger.Text(rec, nameKeys...)
		if name == "" {
			name = id
		}
		list = append(list, counterparty.Counterparty{ID: id, Name: name, Kind: kind})
	}
	return list, nil
}

// Ledger loads and aggregates the ledger of one counterparty.
func (s *Service) Ledger(ctx context.Context, cp counterparty.Counterparty, f counterparty.Filter) (*Statement, error) {
	entries, err := s.entries(ctx, cp, f)
	if err != nil {
		return nil, err
	}

	inWindow := ledger.Filter(entries, f.Window)
	return &Statement{
		Counterparty: cp,
		Window:       f.Window,
		Entries:      inWindow,
		Running:      ledger.Running(inWindow),
		Balance:      ledger.Aggregate(entries, f.Window),
	}, nil
}

// FetchBalance loads the balance of one counterparty. It implements
// counterparty.BalanceFetcher.
func (s *Service) FetchBalance(ctx context.Context, cp counterparty.Counterparty, f counterparty.Filter) (ledger.Balance, error) {
	entries, err := s.entries(ctx, cp, f)
	if err != nil {
		return ledger.Balance{}, err
	}
	return ledger.Aggregate(entries, f.Window), nil
}

// entries fetches the raw records of a counterparty and normalizes them.
func (s *Service) entries(ctx context.Context, cp counterparty.Counterparty, f counterparty.Filter) ([]ledger.Entry, error) {
	q := api.Query{
		CompanyID: f.Company(),
		FromDate:  f.Window.FromDate(),
		ToDate:    f.Window.ToDate(),
	}

	switch cp.Kind {
	case counterparty.KindVendor:
		q.VendorID = cp.ID
		p, err := s.gateway.VendorPayables(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("failed to load ledger of vendor %s: %w", cp.ID, err)
		}
		return s.normalizer.Payables(p.Debit, p.Credit), nil

	case counterparty.KindExpense:
		q.ExpenseID = cp.ID
		p, err := s.gateway.ExpensePayables(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("failed to load ledger of expense %s: %w", cp.ID, err)
		}
		return s.normalizer.Payables(p.Debit, p.Credit), nil

	case counterparty.KindCustomer:
		q.PartyID = cp.ID
		sales, receipts, err := s.customerRecords(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("failed to load ledger of customer %s: %w", cp.ID, err)
		}
		return s.normalizer.Customer(ofParty(sales, cp.ID), ofParty(receipts, cp.ID)), nil
	}

	return nil, fmt.Errorf("unknown counterparty kind %q", cp.Kind)
}

// customerRecords fetches sales and receipts concurrently.
func (s *Service) customerRecords(ctx context.Context, q api.Query) (sales, receipts []api.Record, err error) {
	type result struct {
		records []api.Record
		err     error
	}
	receiptsCh := make(chan result, 1)
	go func() {
		records, err := s.gateway.ListReceipts(ctx, q)
		receiptsCh <- result{records, err}
	}()

	sales, salesErr := s.gateway.ListSales(ctx, q)
	r := <-receiptsCh
	if err := errors.Join(salesErr, r.err); err != nil {
		return nil, nil, err
	}
	return sales, r.records, nil
}

// ofParty keeps the records belonging to partyID. The backend may ignore the
// partyId filter, so records are matched client side. Records with no party
// reference are kept only when no record names another party.
func ofParty(records []api.Record, partyID string) []api.Record {
	unfiltered := false
	for _, rec := range records {
		if ref := ledger.Text(rec, partyKeys...); ref != "" && ref != partyID {
			unfiltered = true
			break
		}
	}

	out := make([]api.Record, 0, len(records))
	for _, rec := range records {
		ref := ledger.Text(rec, partyKeys...)
		if ref == partyID || (ref == "" && !unfiltered) {
			out = append(out, rec)
		}
	}
	return out
}

// LineItems fetches the document behind a single entry and returns its line
// items. Synthetic settlement entries share the document of their purchase or
// sale.
func (s *Service) LineItems(ctx context.Context, e ledger.Entry) ([]ledger.LineItem, error) {
	kind, err := collection(e.Source)
	if err != nil {
		return nil, err
	}
	if e.ID == "" {
		return nil, fmt.Errorf("entry has no id")
	}

	doc, err := s.gateway.Document(ctx, kind, e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", e.Source, e.ID, err)
	}
	return ledger.LineItems(doc), nil
}

func collection(source ledger.Source) (string, error) {
	switch source {
	case ledger.SourceSale:
		return "sales", nil
	case ledger.SourcePurchase:
		return "purchase", nil
	case ledger.SourceReceipt:
		return "receipts", nil
	case ledger.SourcePayment:
		return "payments", nil
	}
	return "", fmt.Errorf("unknown entry source %q", source)
}

// ServerBalance asks the backend for the balance of a vendor. It is a
// best-effort cross-check: failures are logged and reported as ok=false.
func (s *Service) ServerBalance(ctx context.Context, vendorID string, f counterparty.Filter) (decimal.Decimal, bool) {
	balance, err := s.gateway.VendorBalance(ctx, vendorID, f.Company())
	if err != nil {
		s.logger.Warn("failed to fetch server balance", "vendor_id", vendorID, "error", err)
		return decimal.Zero, false
	}
	return balance, true
}

// Mismatch reports whether a computed balance disagrees with the server one
// by more than a cent.
func Mismatch(computed, server decimal.Decimal) bool {
	return computed.Sub(server).Abs().GreaterThan(decimal.New(1, -2))
}

// Title returns a display title for a statement header.
func (st *Statement) Title() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)", st.Counterparty.Name, st.Counterparty.Kind)
	if !st.Window.IsZero() {
		fmt.Fprintf(&b, " %s..%s", st.Window.FromDate(), st.Window.ToDate())
	}
	return b.String()
}
