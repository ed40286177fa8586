package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type staticStore string

func (s staticStore) Token() (string, error) { return string(s), nil }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientConfig{APIURL: server.URL + "/", Tokens: StaticToken("secret")})
}

func TestUnwrapListShapes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected int
	}{
		{"bare array", `[{"_id":"a"},{"_id":"b"}]`, 2},
		{"data", `{"data":[{"_id":"a"}]}`, 1},
		{"entries", `{"entries":[{"_id":"a"},{"_id":"b"},{"_id":"c"}]}`, 3},
		{"docs", `{"docs":[{"_id":"a"}]}`, 1},
		{"items", `{"items":[{"_id":"a"}]}`, 1},
		{"nested data docs", `{"data":{"docs":[{"_id":"a"},{"_id":"b"}]}}`, 2},
		{"non-object elements skipped", `[{"_id":"a"}, 3, "x", null]`, 1},
		{"unknown shape", `{"total":3}`, 0},
		{"empty body", ``, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			records, err := c.ListParties(context.Background(), "")
			if err != nil {
				t.Fatalf("ListParties() error = %v", err)
			}
			if records == nil {
				t.Fatal("ListParties() returned nil slice")
			}
			if len(records) != tt.expected {
				t.Errorf("len = %d, expected %d", len(records), tt.expected)
			}
		})
	}
}

func TestRequestHeadersAndQuery(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(`{"debit":[],"credit":[]}`))
	})

	_, err := c.VendorPayables(context.Background(), Query{
		CompanyID: "null",
		FromDate:  "2024-01-01",
		ToDate:    "2024-01-31",
		VendorID:  "v1",
	})
	if err != nil {
		t.Fatal(err)
	}

	if got.URL.Path != "/api/ledger/vendor-payables" {
		t.Errorf("path = %s", got.URL.Path)
	}
	if auth := got.Header.Get("Authorization"); auth != "Bearer secret" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.Header.Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id")
	}
	q := got.URL.Query()
	if q.Has("companyId") {
		t.Error("companyId=null must be omitted")
	}
	if q.Get("vendorId") != "v1" || q.Get("fromDate") != "2024-01-01" || q.Get("toDate") != "2024-01-31" {
		t.Errorf("query = %s", got.URL.RawQuery)
	}
}

func TestErrorParsing(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{"message", http.StatusInternalServerError, `{"message":"database down"}`, "database down"},
		{"oauth style", http.StatusUnauthorized, `{"error":"unauthorized","error_description":"expired"}`, "unauthorized - expired"},
		{"plain text", http.StatusBadGateway, `upstream error`, "upstream error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.ListSales(context.Background(), Query{})
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, expected *Error", err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Message != tt.expected {
				t.Errorf("Error = %+v, expected status %d message %q", apiErr, tt.status, tt.expected)
			}
		})
	}
}

func TestNoTokenSkipsRequest(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	c := NewClient(ClientConfig{APIURL: server.URL, Tokens: StoreTokenSource(staticStore(""))})
	_, err := c.ListVendors(context.Background(), "")
	if !errors.Is(err, ErrNoToken) {
		t.Errorf("error = %v, expected ErrNoToken", err)
	}
	if !IsAuthError(err) {
		t.Error("IsAuthError() = false")
	}
	if hits.Load() != 0 {
		t.Errorf("server hit %d times", hits.Load())
	}
}

func TestTokenReadPerRequest(t *testing.T) {
	var auth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	store := &mutableStore{token: "first"}
	c := NewClient(ClientConfig{APIURL: server.URL, Tokens: StoreTokenSource(store)})

	_, _ = c.ListClients(context.Background())
	store.token = "second"
	_, _ = c.ListClients(context.Background())

	if got := auth.Load(); got != "Bearer second" {
		t.Errorf("Authorization = %v, expected the updated token", got)
	}
}

type mutableStore struct{ token string }

func (s *mutableStore) Token() (string, error) { return s.token, nil }

func TestVendorBalanceAndDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/vendors/v%201/balance", "/api/vendors/v 1/balance":
			_, _ = w.Write([]byte(`{"balance": 1234.56}`))
		case "/api/sales/s1":
			_, _ = w.Write([]byte(`{"data":{"_id":"s1","grandTotal":10}}`))
		default:
			http.NotFound(w, r)
		}
	})

	balance, err := c.VendorBalance(context.Background(), "v 1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if balance.String() != "1234.56" {
		t.Errorf("VendorBalance() = %s", balance)
	}

	doc, err := c.Document(context.Background(), "sales", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if doc["_id"] != "s1" {
		t.Errorf("Document() = %v", doc)
	}
}
