package report

import (
	"encoding/json"
	"strings"

	"bioclinics/backoffice/internal/ledger"
)

func mapSales(list []ledger.Record) []Sale {
	out := make([]Sale, 0, len(list))
	for _, r := range list {
		out = append(out, mapSale(r))
	}
	return out
}

func mapSale(r map[string]any) Sale {
	s := Sale{
		ID:    int64(ledger.ToNumber(first(r, "id", "id_sale", "saleId"))),
		Total: ledger.ToDecimal(first(r, "total", "amount", "sum")),
		Notes: stringOr(r, "", "notes"),
	}
	s.CreatedAt, s.HasDate = ledger.ParseDate(first(r, "createdAt", "created_at", "date"))

	if u, ok := r["user"].(map[string]any); ok {
		s.User = &User{
			ID:       int64(ledger.ToNumber(first(u, "id", "id_user", "userId"))),
			Name:     stringOr(u, "", "name", "userName"),
			Username: stringOr(u, "", "username", "userUsername"),
		}
	} else if name := stringOr(r, "", "userName"); name != "" {
		s.User = &User{
			ID:       int64(ledger.ToNumber(first(r, "userId", "idUser"))),
			Name:     name,
			Username: stringOr(r, "", "userUsername"),
		}
	}

	s.Items = []Item{}
	for _, key := range []string{"items", "products", "outputs"} {
		if raw, ok := r[key].([]any); ok {
			for _, item := range objects(raw) {
				s.Items = append(s.Items, mapItem(item))
			}
			break
		}
	}
	return s
}

func mapItem(r map[string]any) Item {
	return Item{
		OutputID:    int64(ledger.ToNumber(first(r, "idOutput", "id_output", "id"))),
		ProductID:   int64(ledger.ToNumber(first(r, "productId", "idProduct", "id_product"))),
		ProductName: stringOr(r, "Producto", "productName", "product_name", "name"),
		TypeName:    stringOr(r, "", "typeName", "type_name", "type"),
		Quantity:    int(ledger.ToNumber(r["quantity"])),
		UnitPrice:   ledger.ToDecimal(first(r, "unitPrice", "unit_price")),
		Subtotal:    ledger.ToDecimal(r["subtotal"]),
	}
}

func first(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringOr(m map[string]any, fallback string, keys ...string) string {
	switch v := first(m, keys...).(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			return v
		}
	case json.Number:
		return v.String()
	}
	return fallback
}

func intOr(m map[string]any, key string, fallback int) int {
	v, ok := m[key]
	if !ok || v == nil {
		return fallback
	}
	return int(ledger.ToNumber(v))
}

func objects(list []any) []ledger.Record {
	out := make([]ledger.Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, ledger.Record(m))
		}
	}
	return out
}
