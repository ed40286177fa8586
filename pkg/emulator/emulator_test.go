package emulator_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/api"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/counterparty"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/emulator"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/realtime"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/statement"
)

const testToken = "dev-token"

type testEnv struct {
	server *httptest.Server
	emu    *emulator.Server
	client *api.Client
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := emulator.NewStore(filepath.Join(t.TempDir(), "emulator.db"))
	if err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	seed, err := emulator.DefaultSeed()
	if err != nil {
		t.Fatalf("Failed to parse seed: %v", err)
	}
	if err := st.Apply(seed); err != nil {
		t.Fatalf("Failed to apply seed: %v", err)
	}

	emu := emulator.NewServer(st, time.UTC, nil)
	server := httptest.NewServer(emu.Handler())
	t.Cleanup(server.Close)

	return &testEnv{
		server: server,
		emu:    emu,
		client: api.NewClient(api.ClientConfig{
			APIURL: server.URL,
			Tokens: api.StaticToken(testToken),
		}),
	}
}

func TestListShapes(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		list     func() ([]api.Record, error)
		expected int
	}{
		{"vendors bare array", func() ([]api.Record, error) { return env.client.ListVendors(ctx, "c1") }, 2},
		{"vendors all companies", func() ([]api.Record, error) { return env.client.ListVendors(ctx, "null") }, 3},
		{"expenses data", func() ([]api.Record, error) { return env.client.ListExpenses(ctx, "c1") }, 2},
		{"parties data", func() ([]api.Record, error) { return env.client.ListParties(ctx, "") }, 2},
		{"sales entries", func() ([]api.Record, error) { return env.client.ListSales(ctx, api.Query{PartyID: "p1"}) }, 2},
		{"sales window", func() ([]api.Record, error) {
			return env.client.ListSales(ctx, api.Query{FromDate: "2024-02-01", ToDate: "2024-02-28"})
		}, 2},
		{"receipts docs", func() ([]api.Record, error) { return env.client.ListReceipts(ctx, api.Query{}) }, 1},
		{"payment expenses items", func() ([]api.Record, error) { return env.client.ListPaymentExpenses(ctx, api.Query{}) }, 1},
		{"companies", func() ([]api.Record, error) { return env.client.ListMyCompanies(ctx) }, 2},
		{"clients", func() ([]api.Record, error) { return env.client.ListClients(ctx) }, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := tt.list()
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if len(records) != tt.expected {
				t.Errorf("len = %d, expected %d", len(records), tt.expected)
			}
		})
	}
}

func TestPayablesAndServerBalance(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	p, err := env.client.VendorPayables(ctx, api.Query{VendorID: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Debit) != 2 || len(p.Credit) != 1 {
		t.Errorf("vendor payables debit=%d credit=%d", len(p.Debit), len(p.Credit))
	}

	// expense payables are wrapped under data
	p, err = env.client.ExpensePayables(ctx, api.Query{ExpenseID: "e1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Debit) != 1 || len(p.Credit) != 1 {
		t.Errorf("expense payables debit=%d credit=%d", len(p.Debit), len(p.Credit))
	}

	balance, err := env.client.VendorBalance(ctx, "v1", "")
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Equal(decimal.NewFromInt(600)) {
		t.Errorf("VendorBalance() = %s, expected 600", balance)
	}
}

func TestAuthErrors(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	noToken := api.NewClient(api.ClientConfig{APIURL: env.server.URL, Tokens: api.StaticToken("")})
	if _, err := noToken.ListVendors(ctx, ""); !errors.Is(err, api.ErrNoToken) {
		t.Errorf("error = %v, expected ErrNoToken", err)
	}

	badToken := api.NewClient(api.ClientConfig{APIURL: env.server.URL, Tokens: api.StaticToken("stale")})
	_, err := badToken.ListVendors(ctx, "")
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("error = %v, expected 401", err)
	}
	if !api.IsAuthError(err) {
		t.Error("IsAuthError() = false for 401")
	}
	if !strings.Contains(apiErr.Message, "Invalid or expired token") {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestDocumentNotFound(t *testing.T) {
	env := setupTestServer(t)

	_, err := env.client.Document(context.Background(), "sales", "missing")
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("error = %v, expected 404", err)
	}
}

func TestStatementMatchesServerBalance(t *testing.T) {
	env := setupTestServer(t)
	svc := statement.NewService(env.client, time.UTC, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		cp       counterparty.Counterparty
		expected int64
	}{
		{"vendor on credit and cash", counterparty.Counterparty{ID: "v1", Kind: counterparty.KindVendor}, 600},
		{"vendor on credit", counterparty.Counterparty{ID: "v2", Kind: counterparty.KindVendor}, 750},
		{"vendor without transactions", counterparty.Counterparty{ID: "v3", Kind: counterparty.KindVendor}, 0},
		{"expense settled by payment", counterparty.Counterparty{ID: "e1", Kind: counterparty.KindExpense}, 0},
		{"expense paid by UPI", counterparty.Counterparty{ID: "e2", Kind: counterparty.KindExpense}, 0},
		{"customer", counterparty.Counterparty{ID: "p1", Kind: counterparty.KindCustomer}, 180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := svc.FetchBalance(ctx, tt.cp, counterparty.Filter{})
			if err != nil {
				t.Fatal(err)
			}
			if !b.Balance.Equal(decimal.NewFromInt(tt.expected)) {
				t.Errorf("Balance = %s, expected %d", b.Balance, tt.expected)
			}
			if !b.TotalCredit.Sub(b.TotalDebit).Equal(b.Balance) {
				t.Errorf("credit - debit != balance")
			}
		})
	}

	server, ok := svc.ServerBalance(ctx, "v1", counterparty.Filter{})
	if !ok {
		t.Fatal("ServerBalance() failed")
	}
	computed, _ := svc.FetchBalance(ctx, counterparty.Counterparty{ID: "v1", Kind: counterparty.KindVendor}, counterparty.Filter{})
	if statement.Mismatch(computed.Balance, server) {
		t.Errorf("computed %s, server %s", computed.Balance, server)
	}
}

func TestLineItemsFromDocument(t *testing.T) {
	env := setupTestServer(t)
	svc := statement.NewService(env.client, time.UTC, nil)

	items, err := svc.LineItems(context.Background(), ledger.Entry{ID: "s1", Source: ledger.SourceSale})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, expected 2", len(items))
	}
	if items[0].ItemType != ledger.ItemProduct || !items[0].Amount.Equal(decimal.NewFromInt(800)) {
		t.Errorf("product = %+v", items[0])
	}
	if items[1].ItemType != ledger.ItemService || items[1].Name != "Cutting" {
		t.Errorf("service = %+v", items[1])
	}
}

func TestListViewModelAgainstEmulator(t *testing.T) {
	env := setupTestServer(t)
	svc := statement.NewService(env.client, time.UTC, nil)

	list := counterparty.New(counterparty.Config{
		Kind:     counterparty.KindVendor,
		Filter:   counterparty.Filter{CompanyID: "null"},
		PageSize: counterparty.CompactPageSize,
		Lister:   svc,
		Fetcher:  svc,
	})
	defer list.Close()

	ctx := context.Background()
	if err := list.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := list.LoadPage(ctx); err != nil {
		t.Fatal(err)
	}

	rows := list.Rows()
	order := make([]string, len(rows))
	for i, row := range rows {
		order[i] = row.ID
	}
	// v2 last traded in March, v1 in February, v3 never
	expected := []string{"v2", "v1", "v3"}
	if strings.Join(order, ",") != strings.Join(expected, ",") {
		t.Errorf("order = %v, expected %v", order, expected)
	}
}

func TestRealtimeEventTriggersRefresh(t *testing.T) {
	env := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/socket"
	rt, err := realtime.Dial(ctx, realtime.Config{URL: wsURL, Tokens: api.StaticToken(testToken)})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer rt.Close()

	if err := rt.Join(realtime.Rooms("u1", "cl1")...); err != nil {
		t.Fatal(err)
	}

	received := make(chan realtime.Message, 1)
	d := realtime.NewDispatcher()
	d.On(func(msg realtime.Message) {
		select {
		case received <- msg:
		default:
		}
	}, realtime.EventSalesUpdate)
	go func() { _ = rt.Run(ctx, d) }()

	// joins are processed asynchronously by the hub
	deadline := time.Now().Add(2 * time.Second)
	for env.emu.Hub().Members(realtime.RoomTransactions) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never joined the transactions room")
		}
		time.Sleep(10 * time.Millisecond)
	}

	body := `{"partyId":"p1","companyId":"c1","amount":99,"paymentMethod":"Credit","date":"2024-04-01"}`
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, env.server.URL+"/api/sales", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, expected 201", resp.StatusCode)
	}

	select {
	case msg := <-received:
		if msg.Room != realtime.RoomTransactions {
			t.Errorf("room = %q", msg.Room)
		}
	case <-ctx.Done():
		t.Fatal("no sales-update event received")
	}
}

type refreshCounter struct {
	calls chan struct{}
}

func (r *refreshCounter) Refresh(ctx context.Context) error {
	select {
	case r.calls <- struct{}{}:
	default:
	}
	return nil
}

func TestPermissionUpdateTriggersRefresh(t *testing.T) {
	env := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/socket"
	rt, err := realtime.Dial(ctx, realtime.Config{URL: wsURL, Tokens: api.StaticToken(testToken)})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer rt.Close()

	if err := rt.Join(realtime.Rooms("u1", "cl1")...); err != nil {
		t.Fatal(err)
	}

	target := &refreshCounter{calls: make(chan struct{}, 1)}
	d := realtime.NewDispatcher()
	inv := realtime.NewInvalidator(target, nil)
	inv.Bind(d)
	go inv.Run(ctx)
	go func() { _ = rt.Run(ctx, d) }()

	deadline := time.Now().Add(2 * time.Second)
	for env.emu.Hub().Members("u1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never joined the user room")
		}
		time.Sleep(10 * time.Millisecond)
	}

	env.emu.Hub().Publish("u1", realtime.EventPermissionUpdate, map[string]any{"userId": "u1"})

	select {
	case <-target.calls:
	case <-ctx.Done():
		t.Fatal("PERMISSION_UPDATE did not trigger a refresh")
	}
}

func TestRealtimeRejectsUnauthorized(t *testing.T) {
	env := setupTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/socket"

	_, err := realtime.Dial(context.Background(), realtime.Config{URL: wsURL, Tokens: api.StaticToken("stale")})
	if err == nil {
		t.Fatal("expected dial to fail")
	}
}

func TestHubCloseEndsClientRun(t *testing.T) {
	env := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/socket"
	rt, err := realtime.Dial(ctx, realtime.Config{URL: wsURL, Tokens: api.StaticToken(testToken)})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer rt.Close()
	if err := rt.Join(realtime.RoomMasters); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.emu.Hub().Members(realtime.RoomMasters) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never joined")
		}
		time.Sleep(10 * time.Millisecond)
	}

	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx, realtime.NewDispatcher()) }()

	env.emu.Hub().Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() after server close = %v, expected nil", err)
		}
	case <-ctx.Done():
		t.Fatal("Run() did not return after the hub closed")
	}
}
