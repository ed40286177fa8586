package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func openTestDB(t *testing.T) *Connection {
	t.Helper()
	conn, err := Open(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(openTestDB(t))

	token, err := s.Token()
	if err != nil || token != "" {
		t.Fatalf("Token() = %q, %v, expected empty", token, err)
	}
	if err := s.SetToken(ctx, ""); err == nil {
		t.Error("SetToken(\"\") should fail")
	}

	if err := s.SetToken(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetToken(ctx, "def"); err != nil {
		t.Fatal(err)
	}
	if token, _ := s.Token(); token != "def" {
		t.Errorf("Token() = %q, expected def", token)
	}

	user := &User{ID: "u1", Name: "Asha", ClientID: "cl1"}
	if err := s.SetUser(ctx, user); err != nil {
		t.Fatal(err)
	}
	got, err := s.User(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *user {
		t.Errorf("User() = %+v, expected %+v", got, user)
	}

	company, _ := s.SelectedCompany(ctx)
	if company != AllCompanies {
		t.Errorf("SelectedCompany() = %q, expected %q", company, AllCompanies)
	}
	if err := s.SetSelectedCompany(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if company, _ := s.SelectedCompany(ctx); company != "c1" {
		t.Errorf("SelectedCompany() = %q, expected c1", company)
	}
	_ = s.SetSelectedCompany(ctx, "")
	if company, _ := s.SelectedCompany(ctx); company != AllCompanies {
		t.Errorf("SelectedCompany() after reset = %q", company)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if token, _ := s.Token(); token != "" {
		t.Errorf("Token() after Clear = %q", token)
	}
	if u, _ := s.User(ctx); u != nil {
		t.Errorf("User() after Clear = %+v", u)
	}
}

func TestExportHistory(t *testing.T) {
	ctx := context.Background()
	h := NewExportHistory(openTestDB(t))

	records := []ExportRecord{
		{LedgerKind: "vendor", CounterpartyID: "v1", EntryKey: "purchase:pu1:credit", EntryDate: "2024-01-10", Amount: decimal.NewFromInt(1000), BeancountFile: "2024/01.beancount"},
		{LedgerKind: "vendor", CounterpartyID: "v1", EntryKey: "payment:pa1:debit", EntryDate: "2024-01-20", Amount: decimal.RequireFromString("400.50"), BeancountFile: "2024/01.beancount"},
		{LedgerKind: "customer", CounterpartyID: "p1", EntryKey: "sale:s1:credit", EntryDate: "2024-01-12", Amount: decimal.NewFromInt(1180), BeancountFile: "2024/01.beancount"},
	}
	if err := h.RecordExports(ctx, records); err != nil {
		t.Fatalf("RecordExports() error = %v", err)
	}
	// re-recording updates in place
	if err := h.RecordExports(ctx, records[:1]); err != nil {
		t.Fatal(err)
	}

	keys, err := h.ExportedKeys(ctx, "vendor", "v1")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || !keys["payment:pa1:debit"] {
		t.Errorf("ExportedKeys() = %v", keys)
	}

	stored, err := h.Records(ctx, "vendor", "v1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 || stored[0].EntryKey != "payment:pa1:debit" {
		t.Fatalf("Records() = %+v", stored)
	}
	if !stored[0].Amount.Equal(decimal.RequireFromString("400.5")) {
		t.Errorf("Amount = %s, expected 400.5", stored[0].Amount)
	}

	stats, err := h.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalEntries != 3 || stats.TotalCounterparties != 2 || stats.ByKind["vendor"] != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
	if !stats.LastExport.Valid {
		t.Error("LastExport not set")
	}

	n, err := h.DeleteExports(ctx, "vendor", "v1")
	if err != nil || n != 2 {
		t.Errorf("DeleteExports() = %d, %v, expected 2", n, err)
	}
	if keys, _ := h.ExportedKeys(ctx, "vendor", "v1"); len(keys) != 0 {
		t.Errorf("keys left after delete: %v", keys)
	}
}
