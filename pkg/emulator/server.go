// Package emulator serves a local copy of the bookkeeping API for development
// and integration tests: REST endpoints backed by bbolt plus an event channel.
package emulator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/realtime"
)

type contextKey string

const contextKeyToken contextKey = "token"

// Server routes the emulated API.
type Server struct {
	store  *Store
	hub    *Hub
	loc    *time.Location
	logger *slog.Logger
}

// NewServer creates a Server. A nil location means UTC.
func NewServer(store *Store, loc *time.Location, logger *slog.Logger) *Server {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  store,
		hub:    NewHub(logger),
		loc:    loc,
		logger: logger,
	}
}

// Hub returns the event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Handle("/socket", s.hub)

		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/vendors", s.listVendors)
			r.Get("/vendors/{id}/balance", s.vendorBalance)
			r.Get("/expenses", s.listWrapped(BucketExpenses, "data"))
			r.Get("/parties", s.listWrapped(BucketParties, "data"))
			r.Get("/companies/my", s.listWrapped(BucketCompanies, "data"))
			r.Get("/clients", s.listWrapped(BucketClients, "data"))
			r.Get("/payment-expenses", s.listPaymentExpenses)

			r.Get("/ledger/vendor-payables", s.payables("vendorId", false))
			r.Get("/ledger/expense-payables", s.payables("expenseId", true))

			r.Get("/sales", s.listTransactions(BucketSales, "entries"))
			r.Get("/receipts", s.listTransactions(BucketReceipts, "docs"))

			for _, c := range []struct {
				bucket string
				event  string
			}{
				{BucketSales, realtime.EventSalesUpdate},
				{BucketPurchases, realtime.EventPurchaseUpdate},
				{BucketReceipts, realtime.EventReceiptUpdate},
				{BucketPayments, realtime.EventPaymentUpdate},
			} {
				r.Get("/"+c.bucket+"/{id}", s.getDocument(c.bucket))
				r.Post("/"+c.bucket, s.createDocument(c.bucket, c.event))
			}
		})
	})

	return r
}

// authMiddleware validates bearer tokens against the token bucket.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid Authorization header format")
			return
		}

		valid, err := s.store.ValidToken(parts[1])
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to validate token")
			return
		}
		if !valid {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyToken, parts[1])
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// listVendors answers with a bare array.
func (s *Server) listVendors(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.List(BucketVendors, byCompany(r))
	if err != nil {
		s.serverError(w, "failed to list vendors", err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// listWrapped answers with the documents wrapped under key.
func (s *Server) listWrapped(bucket, key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := s.store.List(bucket, byCompany(r))
		if err != nil {
			s.serverError(w, "failed to list "+bucket, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{key: docs})
	}
}

// listTransactions lists dated documents filtered by company, party and
// date range.
func (s *Server) listTransactions(bucket, key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window, err := s.window(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
			return
		}

		q := r.URL.Query()
		filter := all(byCompany(r), byField("partyId", q.Get("partyId")), s.inWindow(window))
		docs, err := s.store.List(bucket, filter)
		if err != nil {
			s.serverError(w, "failed to list "+bucket, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{key: docs})
	}
}

// listPaymentExpenses lists payments booked against expense categories.
func (s *Server) listPaymentExpenses(w http.ResponseWriter, r *http.Request) {
	hasExpense := func(doc Document) bool {
		id, _ := doc["expenseId"].(string)
		return id != ""
	}
	docs, err := s.store.List(BucketPayments, all(byCompany(r), hasExpense))
	if err != nil {
		s.serverError(w, "failed to list payment expenses", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": docs})
}

// payables answers {debit: purchases, credit: payments} for one vendor or
// expense category. The expense endpoint wraps the result under data.
func (s *Server) payables(param string, wrap bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get(param)
		if id == "" {
			writeJSONError(w, http.StatusBadRequest, "invalid_parameter", param+" is required")
			return
		}
		window, err := s.window(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
			return
		}

		debit, credit, err := s.payableDocs(r, param, id, window)
		if err != nil {
			s.serverError(w, "failed to load payables", err)
			return
		}

		body := map[string]any{"debit": debit, "credit": credit}
		if wrap {
			body = map[string]any{"data": body}
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func (s *Server) payableDocs(r *http.Request, field, id string, window ledger.Window) (debit, credit []Document, err error) {
	filter := all(byCompany(r), byField(field, id), s.inWindow(window))
	if debit, err = s.store.List(BucketPurchases, filter); err != nil {
		return nil, nil, err
	}
	if credit, err = s.store.List(BucketPayments, filter); err != nil {
		return nil, nil, err
	}
	return debit, credit, nil
}

// vendorBalance computes the all-time balance of a vendor.
func (s *Server) vendorBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.Get(BucketVendors, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "Vendor not found")
			return
		}
		s.serverError(w, "failed to get vendor", err)
		return
	}

	debit, credit, err := s.payableDocs(r, "vendorId", id, ledger.Window{})
	if err != nil {
		s.serverError(w, "failed to load payables", err)
		return
	}

	entries := ledger.NewNormalizer(s.loc).Payables(debit, credit)
	balance := ledger.Aggregate(entries, ledger.Window{})
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance.Balance})
}

func (s *Server) getDocument(bucket string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := s.store.Get(bucket, chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidID) {
				writeJSONError(w, http.StatusNotFound, "not_found", "Document not found")
				return
			}
			s.serverError(w, "failed to get document", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": doc})
	}
}

// createDocument stores the posted document and broadcasts event to the
// transactions room and the company room.
func (s *Server) createDocument(bucket, event string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()

		var doc Document
		if err := dec.Decode(&doc); err != nil || doc == nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
			return
		}

		id, err := s.store.Put(bucket, doc)
		if err != nil {
			s.serverError(w, "failed to create document", err)
			return
		}

		payload := map[string]any{"_id": id, "collection": bucket}
		s.hub.Publish(realtime.RoomTransactions, event, payload)
		if company, _ := doc["companyId"].(string); company != "" {
			s.hub.Publish(company, event, payload)
		}

		s.logger.Info("document created", "collection", bucket, "id", id)
		writeJSON(w, http.StatusCreated, map[string]any{"data": doc})
	}
}

func (s *Server) window(r *http.Request) (ledger.Window, error) {
	q := r.URL.Query()
	return ledger.ParseWindow(q.Get("fromDate"), q.Get("toDate"), s.loc)
}

func (s *Server) inWindow(w ledger.Window) func(Document) bool {
	return func(doc Document) bool {
		return w.Contains(ledger.Date(doc, s.loc))
	}
}

func (s *Server) serverError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	writeJSONError(w, http.StatusInternalServerError, "server_error", msg)
}

// byCompany filters on the companyId query parameter. "null" or an empty
// value selects every company.
func byCompany(r *http.Request) func(Document) bool {
	company := r.URL.Query().Get("companyId")
	if company == "null" {
		company = ""
	}
	return byField("companyId", company)
}

// byField matches documents whose field equals value. An empty value matches
// everything.
func byField(field, value string) func(Document) bool {
	return func(doc Document) bool {
		if value == "" {
			return true
		}
		return ledger.Text(doc, field) == value
	}
}

func all(filters ...func(Document) bool) func(Document) bool {
	return func(doc Document) bool {
		for _, f := range filters {
			if !f(doc) {
				return false
			}
		}
		return true
	}
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}
