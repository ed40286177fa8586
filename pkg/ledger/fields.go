package ledger

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	amountPaths = []string{
		"amount", "total", "totalAmount", "grandTotal", "finalAmount", "netAmount",
		"amount.total", "totals.total", "summary.grandTotal",
	}
	datePaths          = []string{"date", "transactionDate", "paymentDate", "receiptDate", "invoiceDate", "createdAt"}
	idPaths            = []string{"_id", "id"}
	paymentMethodPaths = []string{"paymentMethod", "paymentMode"}
	referencePaths     = []string{"referenceNumber", "invoiceNumber", "receiptNumber", "refNumber", "voucherNumber"}
	descriptionPaths   = []string{"description", "narration", "notes", "remarks"}

	dateLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
)

// Lookup resolves a dot-separated path inside a record.
func Lookup(rec Record, path string) (any, bool) {
	var cur any = rec
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// Text returns the first non-empty scalar found at paths, as a string.
// Nested objects are read through their own id field, so a populated
// reference like {"vendor": {"_id": "v1", "name": "Acme"}} yields "v1".
func Text(rec Record, paths ...string) string {
	for _, path := range paths {
		v, ok := Lookup(rec, path)
		if !ok {
			continue
		}
		if s := scalarText(v); s != "" {
			return s
		}
	}
	return ""
}

// ID returns the record identifier.
func ID(rec Record) string {
	return Text(rec, idPaths...)
}

// Amount resolves the monetary amount of a record through the fallback chain,
// then the items sub-array, and finally zero. Candidates that are not finite
// non-negative numbers are skipped.
func Amount(rec Record) decimal.Decimal {
	for _, path := range amountPaths {
		v, ok := Lookup(rec, path)
		if !ok {
			continue
		}
		if d, ok := toDecimal(v); ok {
			return d.Round(2)
		}
	}
	if d, ok := itemsTotal(rec); ok {
		return d.Round(2)
	}
	return decimal.Zero
}

// Date resolves the transaction date of a record. Date-only values are read in
// loc. A record without a parseable date yields the zero time.
func Date(rec Record, loc *time.Location) time.Time {
	for _, path := range datePaths {
		v, ok := Lookup(rec, path)
		if !ok {
			continue
		}
		if t, ok := toTime(v, loc); ok {
			return t
		}
	}
	return time.Time{}
}

func itemsTotal(rec Record) (decimal.Decimal, bool) {
	items, ok := rec["items"].([]any)
	if !ok || len(items) == 0 {
		return decimal.Zero, false
	}

	total := decimal.Zero
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		qty, qok := firstDecimal(obj, "quantity", "qty")
		price, pok := firstDecimal(obj, "price", "unitPrice", "rate")
		if qok && pok {
			total = total.Add(qty.Mul(price))
		}
	}
	return total, true
}

func firstDecimal(rec Record, paths ...string) (decimal.Decimal, bool) {
	for _, path := range paths {
		if v, ok := Lookup(rec, path); ok {
			if d, ok := toDecimal(v); ok {
				return d, true
			}
		}
	}
	return decimal.Zero, false
}

func toDecimal(v any) (decimal.Decimal, bool) {
	var d decimal.Decimal
	switch t := v.(type) {
	case json.Number:
		parsed, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero, false
		}
		d = parsed
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, false
		}
		d = decimal.NewFromFloat(t)
	case int:
		d = decimal.NewFromInt(int64(t))
	case int64:
		d = decimal.NewFromInt(t)
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		if s == "" {
			return decimal.Zero, false
		}
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		d = parsed
	default:
		return decimal.Zero, false
	}
	if d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

func toTime(v any, loc *time.Location) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.ParseInLocation(layout, s, loc); err == nil {
				return parsed, true
			}
		}
	case json.Number:
		ms, err := t.Int64()
		if err == nil && ms > 0 {
			return time.UnixMilli(ms).In(loc), true
		}
	case float64:
		if t > 0 && !math.IsInf(t, 0) {
			return time.UnixMilli(int64(t)).In(loc), true
		}
	}
	return time.Time{}, false
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case map[string]any:
		return Text(t, idPaths...)
	}
	return ""
}
