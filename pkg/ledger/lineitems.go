package ledger

import (
	"github.com/shopspring/decimal"
)

// LineItems extracts the line items of a sale or purchase document.
// Documents list goods under "products" or "items" and services under
// "services"; an entry under "items" is a service when it references one.
func LineItems(doc Record) []LineItem {
	var items []LineItem
	for _, raw := range listOf(doc, "products") {
		items = append(items, lineItem(raw, ItemProduct))
	}
	for _, raw := range listOf(doc, "services") {
		items = append(items, lineItem(raw, ItemService))
	}
	for _, raw := range listOf(doc, "items") {
		kind := ItemProduct
		if _, ok := Lookup(raw, "service"); ok || Text(raw, "itemType", "type") == string(ItemService) {
			kind = ItemService
		}
		items = append(items, lineItem(raw, kind))
	}
	return items
}

func lineItem(rec Record, kind ItemType) LineItem {
	qty, ok := firstDecimal(rec, "quantity", "qty")
	if !ok {
		qty = decimal.NewFromInt(1)
	}
	price, _ := firstDecimal(rec, "unitPrice", "price", "rate", "pricePerUnit")

	amount, ok := firstDecimal(rec, "amount", "total", "lineTotal")
	if !ok {
		amount = qty.Mul(price)
	}

	tax, _ := firstDecimal(rec, "gstPercentage", "taxRate", "gst")

	return LineItem{
		ItemType:  kind,
		Name:      lineItemName(rec, kind),
		Quantity:  qty,
		UnitPrice: price.Round(2),
		Amount:    amount.Round(2),
		TaxRate:   tax,
	}
}

func lineItemName(rec Record, kind ItemType) string {
	paths := []string{"name", "productName", "product.name", "serviceName", "service.serviceName", "service.name", "description"}
	if kind == ItemService {
		paths = []string{"serviceName", "service.serviceName", "service.name", "name", "description"}
	}
	for _, path := range paths {
		if v, ok := Lookup(rec, path); ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func listOf(rec Record, key string) []Record {
	raw, ok := rec[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
