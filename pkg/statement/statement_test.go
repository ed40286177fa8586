package statement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/api"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/counterparty"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/ledger"
)

type fakeGateway struct {
	mu       sync.Mutex
	vendors  []api.Record
	parties  []api.Record
	payables map[string]*api.Payables
	sales    []api.Record
	receipts []api.Record
	docs     map[string]api.Record
	balance  decimal.Decimal
	err      error
	failIDs  map[string]bool
	queries  []api.Query
}

func (g *fakeGateway) record(q api.Query) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries = append(g.queries, q)
}

func (g *fakeGateway) ListVendors(ctx context.Context, companyID string) ([]api.Record, error) {
	return g.vendors, g.err
}

func (g *fakeGateway) ListExpenses(ctx context.Context, companyID string) ([]api.Record, error) {
	return nil, g.err
}

func (g *fakeGateway) ListParties(ctx context.Context, companyID string) ([]api.Record, error) {
	return g.parties, g.err
}

func (g *fakeGateway) ListSales(ctx context.Context, q api.Query) ([]api.Record, error) {
	g.record(q)
	return g.sales, g.err
}

func (g *fakeGateway) ListReceipts(ctx context.Context, q api.Query) ([]api.Record, error) {
	return g.receipts, g.err
}

func (g *fakeGateway) VendorPayables(ctx context.Context, q api.Query) (*api.Payables, error) {
	g.record(q)
	if g.err != nil {
		return nil, g.err
	}
	if g.failIDs[q.VendorID] {
		return nil, errors.New("boom")
	}
	if p, ok := g.payables[q.VendorID]; ok {
		return p, nil
	}
	return &api.Payables{}, nil
}

func (g *fakeGateway) ExpensePayables(ctx context.Context, q api.Query) (*api.Payables, error) {
	g.record(q)
	if p, ok := g.payables[q.ExpenseID]; ok {
		return p, nil
	}
	return &api.Payables{}, g.err
}

func (g *fakeGateway) VendorBalance(ctx context.Context, vendorID, companyID string) (decimal.Decimal, error) {
	return g.balance, g.err
}

func (g *fakeGateway) Document(ctx context.Context, kind, id string) (api.Record, error) {
	if doc, ok := g.docs[kind+"/"+id]; ok {
		return doc, nil
	}
	return nil, &api.Error{StatusCode: 404, Path: "/api/" + kind + "/" + id}
}

func vendorPayables() *api.Payables {
	return &api.Payables{
		Debit: []api.Record{
			{"_id": "p1", "amount": "1000", "paymentMethod": "Credit", "date": "2024-01-10"},
			{"_id": "p2", "total": 250.5, "paymentMethod": "Cash", "date": "2024-02-05"},
		},
		Credit: []api.Record{
			{"_id": "pay1", "amount": 400, "date": "2024-03-01"},
		},
	}
}

func TestLedgerVendor(t *testing.T) {
	g := &fakeGateway{payables: map[string]*api.Payables{"v1": vendorPayables()}}
	s := NewService(g, time.UTC, nil)
	cp := counterparty.Counterparty{ID: "v1", Name: "Acme", Kind: counterparty.KindVendor}

	st, err := s.Ledger(context.Background(), cp, counterparty.Filter{CompanyID: "null"})
	if err != nil {
		t.Fatalf("Ledger() error = %v", err)
	}

	if len(st.Entries) != 4 {
		t.Fatalf("len(Entries) = %d, expected 4", len(st.Entries))
	}
	if !st.Balance.TotalCredit.Equal(decimal.RequireFromString("1250.5")) {
		t.Errorf("TotalCredit = %s, expected 1250.5", st.Balance.TotalCredit)
	}
	if !st.Balance.TotalDebit.Equal(decimal.RequireFromString("650.5")) {
		t.Errorf("TotalDebit = %s, expected 650.5", st.Balance.TotalDebit)
	}
	if !st.Balance.Balance.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Balance = %s, expected 600", st.Balance.Balance)
	}
	last := st.Running[len(st.Running)-1]
	if !last.Equal(st.Balance.Balance) {
		t.Errorf("final running balance %s != balance %s", last, st.Balance.Balance)
	}

	if q := g.queries[0]; q.CompanyID != "" || q.VendorID != "v1" {
		t.Errorf("query = %+v", q)
	}
}

func TestLedgerWindowQuery(t *testing.T) {
	g := &fakeGateway{payables: map[string]*api.Payables{"e1": vendorPayables()}}
	s := NewService(g, time.UTC, nil)
	w, err := ledger.ParseWindow("2024-02-01", "2024-02-28", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	cp := counterparty.Counterparty{ID: "e1", Kind: counterparty.KindExpense}

	st, err := s.Ledger(context.Background(), cp, counterparty.Filter{CompanyID: "c1", Window: w})
	if err != nil {
		t.Fatal(err)
	}

	q := g.queries[0]
	if q.FromDate != "2024-02-01" || q.ToDate != "2024-02-28" || q.ExpenseID != "e1" || q.CompanyID != "c1" {
		t.Errorf("query = %+v", q)
	}
	// only the cash purchase and its settlement fall inside February
	if len(st.Entries) != 2 || !st.Balance.Settled() {
		t.Errorf("entries = %d, balance = %s", len(st.Entries), st.Balance.Balance)
	}
}

func TestLedgerCustomerFiltersParty(t *testing.T) {
	g := &fakeGateway{
		sales: []api.Record{
			{"_id": "s1", "partyId": "c1", "grandTotal": 500, "paymentMethod": "Credit", "date": "2024-01-01"},
			{"_id": "s2", "partyId": "c2", "grandTotal": 900, "paymentMethod": "Credit", "date": "2024-01-02"},
			{"_id": "s3", "party": map[string]any{"_id": "c1", "name": "Zed"}, "amount": 200, "paymentMethod": "UPI", "date": "2024-01-03"},
		},
		receipts: []api.Record{
			{"_id": "r1", "partyId": "c1", "amount": 100, "date": "2024-01-05"},
		},
	}
	s := NewService(g, time.UTC, nil)
	cp := counterparty.Counterparty{ID: "c1", Kind: counterparty.KindCustomer}

	b, err := s.FetchBalance(context.Background(), cp, counterparty.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if !b.TotalCredit.Equal(decimal.NewFromInt(700)) {
		t.Errorf("TotalCredit = %s, expected 700", b.TotalCredit)
	}
	if !b.TotalDebit.Equal(decimal.NewFromInt(300)) {
		t.Errorf("TotalDebit = %s, expected 300", b.TotalDebit)
	}
	if g.queries[0].PartyID != "c1" {
		t.Errorf("partyId not sent: %+v", g.queries[0])
	}
}

func TestOfPartyUnattributedRecords(t *testing.T) {
	tests := []struct {
		name     string
		records  []api.Record
		expected []string
	}{
		{
			name: "filtered response keeps unattributed",
			records: []api.Record{
				{"_id": "s1", "partyId": "c1"},
				{"_id": "s2"},
			},
			expected: []string{"s1", "s2"},
		},
		{
			name: "unfiltered response drops unattributed",
			records: []api.Record{
				{"_id": "s1", "partyId": "c1"},
				{"_id": "s2"},
				{"_id": "s3", "partyId": "c2"},
			},
			expected: []string{"s1"},
		},
		{
			name:     "only unattributed",
			records:  []api.Record{{"_id": "s2"}},
			expected: []string{"s2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ofParty(tt.records, "c1")
			if len(got) != len(tt.expected) {
				t.Fatalf("ofParty() = %v, expected ids %v", got, tt.expected)
			}
			for i, rec := range got {
				if id := ledger.ID(rec); id != tt.expected[i] {
					t.Errorf("ofParty()[%d] = %s, expected %s", i, id, tt.expected[i])
				}
			}
		})
	}
}

func TestFetchBalanceError(t *testing.T) {
	g := &fakeGateway{err: &api.Error{StatusCode: 500}}
	s := NewService(g, time.UTC, nil)

	_, err := s.FetchBalance(context.Background(), counterparty.Counterparty{ID: "v1", Kind: counterparty.KindVendor}, counterparty.Filter{})
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
		t.Errorf("FetchBalance() error = %v, expected wrapped *api.Error", err)
	}
}

func TestCounterparties(t *testing.T) {
	g := &fakeGateway{
		vendors: []api.Record{
			{"_id": "v1", "vendorName": "Acme"},
			{"id": "v2"},
			{"name": "no id"},
		},
	}
	s := NewService(g, time.UTC, nil)

	list, err := s.Counterparties(context.Background(), counterparty.KindVendor, counterparty.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	expected := []counterparty.Counterparty{
		{ID: "v1", Name: "Acme", Kind: counterparty.KindVendor},
		{ID: "v2", Name: "v2", Kind: counterparty.KindVendor},
	}
	if len(list) != len(expected) {
		t.Fatalf("Counterparties() = %v, expected %v", list, expected)
	}
	for i := range expected {
		if list[i] != expected[i] {
			t.Errorf("Counterparties()[%d] = %v, expected %v", i, list[i], expected[i])
		}
	}
}

func TestTotals(t *testing.T) {
	g := &fakeGateway{
		payables: map[string]*api.Payables{
			"owed": {Debit: []api.Record{{"amount": 300, "paymentMethod": "Credit"}}},
			"advance": {
				Credit: []api.Record{{"amount": 120}},
			},
		},
		failIDs: map[string]bool{"broken": true},
	}
	s := NewService(g, time.UTC, nil)
	list := []counterparty.Counterparty{
		{ID: "owed", Kind: counterparty.KindVendor},
		{ID: "advance", Kind: counterparty.KindVendor},
		{ID: "broken", Kind: counterparty.KindVendor},
		{ID: "empty", Kind: counterparty.KindVendor},
	}

	totals, err := s.Totals(context.Background(), list, counterparty.Filter{})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		got      decimal.Decimal
		expected int64
	}{
		{"Outstanding", totals.Outstanding, 300},
		{"Advance", totals.Advance, 120},
		{"Net", totals.Net, 180},
	}
	for _, tt := range tests {
		if !tt.got.Equal(decimal.NewFromInt(tt.expected)) {
			t.Errorf("%s = %s, expected %d", tt.name, tt.got, tt.expected)
		}
	}
	if totals.Counted != 3 || totals.Failed != 1 {
		t.Errorf("Counted = %d, Failed = %d", totals.Counted, totals.Failed)
	}
}

func TestTotalsCancelled(t *testing.T) {
	s := NewService(&fakeGateway{}, time.UTC, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := &cancelGateway{}
	s.gateway = g
	_, err := s.Totals(ctx, []counterparty.Counterparty{{ID: "v1", Kind: counterparty.KindVendor}}, counterparty.Filter{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Totals() error = %v, expected context.Canceled", err)
	}
}

type cancelGateway struct{ fakeGateway }

func (g *cancelGateway) VendorPayables(ctx context.Context, q api.Query) (*api.Payables, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestLineItems(t *testing.T) {
	g := &fakeGateway{
		docs: map[string]api.Record{
			"sales/s1": {
				"_id": "s1",
				"products": []any{
					map[string]any{"name": "Widget", "quantity": 2, "unitPrice": 50, "gstPercentage": 18},
				},
			},
		},
	}
	s := NewService(g, time.UTC, nil)

	items, err := s.LineItems(context.Background(), ledger.Entry{ID: "s1", Source: ledger.SourceSale})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Name != "Widget" || !items[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("LineItems() = %+v", items)
	}

	if _, err := s.LineItems(context.Background(), ledger.Entry{ID: "x", Source: ledger.SourcePayment}); err == nil {
		t.Error("expected error for missing document")
	}
	if _, err := s.LineItems(context.Background(), ledger.Entry{ID: "x", Source: "journal"}); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestServerBalance(t *testing.T) {
	s := NewService(&fakeGateway{balance: decimal.RequireFromString("600.00")}, time.UTC, nil)
	b, ok := s.ServerBalance(context.Background(), "v1", counterparty.Filter{})
	if !ok || !b.Equal(decimal.NewFromInt(600)) {
		t.Errorf("ServerBalance() = %s, %v", b, ok)
	}
	if Mismatch(decimal.RequireFromString("600.004"), b) {
		t.Error("sub-cent difference reported as mismatch")
	}
	if !Mismatch(decimal.NewFromInt(599), b) {
		t.Error("expected mismatch")
	}

	s = NewService(&fakeGateway{err: errors.New("down")}, time.UTC, nil)
	if _, ok := s.ServerBalance(context.Background(), "v1", counterparty.Filter{}); ok {
		t.Error("expected ok=false on failure")
	}
}
