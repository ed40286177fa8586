package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
)

// listKeys are the wrapper keys list endpoints use, in lookup order.
var listKeys = []string{"data", "entries", "docs", "items"}

// ClientConfig represents the configuration for the API client.
type ClientConfig struct {
	APIURL     string
	Tokens     oauth2.TokenSource
	Timeout    time.Duration // Default: 30 seconds
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is the bookkeeping REST API client.
// Every call is a single attempt; callers decide how to surface failures.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     oauth2.TokenSource
	logger     *slog.Logger
}

// NewClient creates a new API client.
func NewClient(config ClientConfig) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(config.APIURL, "/"),
		tokens:     config.Tokens,
		logger:     logger,
	}
}

// ListVendors lists vendors, optionally restricted to one company.
func (c *Client) ListVendors(ctx context.Context, companyID string) ([]Record, error) {
	return c.getList(ctx, "/api/vendors", Query{CompanyID: companyID}.Values())
}

// ListExpenses lists expense categories.
func (c *Client) ListExpenses(ctx context.Context, companyID string) ([]Record, error) {
	return c.getList(ctx, "/api/expenses", Query{CompanyID: companyID}.Values())
}

// ListParties lists customers.
func (c *Client) ListParties(ctx context.Context, companyID string) ([]Record, error) {
	return c.getList(ctx, "/api/parties", Query{CompanyID: companyID}.Values())
}

// ListSales lists sales records.
func (c *Client) ListSales(ctx context.Context, q Query) ([]Record, error) {
	return c.getList(ctx, "/api/sales", q.Values())
}

// ListReceipts lists receipt records.
func (c *Client) ListReceipts(ctx context.Context, q Query) ([]Record, error) {
	return c.getList(ctx, "/api/receipts", q.Values())
}

// ListPaymentExpenses lists payment-expense records.
func (c *Client) ListPaymentExpenses(ctx context.Context, q Query) ([]Record, error) {
	return c.getList(ctx, "/api/payment-expenses", q.Values())
}

// ListMyCompanies lists the companies visible to the logged-in user.
func (c *Client) ListMyCompanies(ctx context.Context) ([]Record, error) {
	return c.getList(ctx, "/api/companies/my", nil)
}

// ListClients lists client businesses (master admin only).
func (c *Client) ListClients(ctx context.Context) ([]Record, error) {
	return c.getList(ctx, "/api/clients", nil)
}

// VendorPayables fetches the payables ledger of one vendor.
func (c *Client) VendorPayables(ctx context.Context, q Query) (*Payables, error) {
	return c.getPayables(ctx, "/api/ledger/vendor-payables", q)
}

// ExpensePayables fetches the payables ledger of one expense category.
func (c *Client) ExpensePayables(ctx context.Context, q Query) (*Payables, error) {
	return c.getPayables(ctx, "/api/ledger/expense-payables", q)
}

// VendorBalance fetches the balance the backend reports for a vendor.
func (c *Client) VendorBalance(ctx context.Context, vendorID, companyID string) (decimal.Decimal, error) {
	path := fmt.Sprintf("/api/vendors/%s/balance", url.PathEscape(vendorID))

	body, err := c.get(ctx, path, Query{CompanyID: companyID}.Values())
	if err != nil {
		return decimal.Zero, err
	}

	var resp balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode response: %w", err)
	}

	return resp.Balance, nil
}

// Document fetches a single transaction document, e.g. one sale with its
// line items. kind is the collection name ("sales", "purchase", "receipts",
// "payments").
func (c *Client) Document(ctx context.Context, kind, id string) (Record, error) {
	path := fmt.Sprintf("/api/%s/%s", url.PathEscape(kind), url.PathEscape(id))

	body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	raw, err := decode(body)
	if err != nil {
		return nil, err
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected document shape from %s", path)
	}
	if inner, ok := obj["data"].(map[string]any); ok {
		return inner, nil
	}
	return obj, nil
}

// getList issues a GET and unwraps any of the accepted list shapes.
func (c *Client) getList(ctx context.Context, path string, params url.Values) ([]Record, error) {
	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	raw, err := decode(body)
	if err != nil {
		return nil, err
	}

	records := unwrapList(raw)
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// getPayables issues a GET against a payables endpoint.
func (c *Client) getPayables(ctx context.Context, path string, q Query) (*Payables, error) {
	body, err := c.get(ctx, path, q.Values())
	if err != nil {
		return nil, err
	}

	raw, err := decode(body)
	if err != nil {
		return nil, err
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return &Payables{}, nil
	}
	if _, hasDebit := obj["debit"]; !hasDebit {
		if inner, ok := obj["data"].(map[string]any); ok {
			obj = inner
		}
	}

	return &Payables{
		Debit:  unwrapList(obj["debit"]),
		Credit: unwrapList(obj["credit"]),
	}, nil
}

// get performs one authenticated GET and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = fmt.Sprintf("%s?%s", endpoint, params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// token reads the current token from the session before every request.
func (c *Client) token() (*oauth2.Token, error) {
	if c.tokens == nil {
		return nil, ErrNoToken
	}

	token, err := c.tokens.Token()
	if err != nil {
		if errors.Is(err, ErrNoToken) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	if !token.Valid() {
		return nil, ErrNoToken
	}
	return token, nil
}

// decode parses a JSON body keeping numbers as json.Number so that amounts
// survive without float rounding.
func decode(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return raw, nil
}

// unwrapList accepts a bare array or an object wrapping the array under one of
// listKeys, possibly nested. Non-object elements are skipped.
func unwrapList(v any) []Record {
	switch t := v.(type) {
	case []any:
		records := make([]Record, 0, len(t))
		for _, item := range t {
			if rec, ok := item.(map[string]any); ok {
				records = append(records, rec)
			}
		}
		return records
	case map[string]any:
		for _, key := range listKeys {
			if inner, ok := t[key]; ok {
				if records := unwrapList(inner); records != nil {
					return records
				}
			}
		}
	}
	return nil
}

// parseError builds an *Error from a non-2xx response.
func parseError(resp *http.Response, path string) error {
	apiErr := &Error{StatusCode: resp.StatusCode, Path: path}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiErr
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	switch {
	case errResp.Message != "":
		apiErr.Message = errResp.Message
	case errResp.ErrorDescription != "":
		apiErr.Message = fmt.Sprintf("%s - %s", errResp.Error, errResp.ErrorDescription)
	default:
		apiErr.Message = errResp.Error
	}
	return apiErr
}
