package ledger

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Record is one movement as sent by the server, before field mapping.
type Record map[string]any

// Shape names the envelope a listing arrived in.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeArray
	ShapeData
	ShapeNestedData
	ShapeItems
	ShapeProductInputs
	ShapeRows
)

func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeData:
		return "data"
	case ShapeNestedData:
		return "data.data"
	case ShapeItems:
		return "items"
	case ShapeProductInputs:
		return "productInputs"
	case ShapeRows:
		return "rows"
	}
	return "unknown"
}

// envelopes lists the wrapper keys in the order they are tried.
var envelopes = []struct {
	key   string
	shape Shape
}{
	{"data", ShapeData},
	{"items", ShapeItems},
	{"productInputs", ShapeProductInputs},
	{"rows", ShapeRows},
}

// NormalizeList extracts the movement list from any known envelope. Unknown
// or malformed payloads yield an empty list and ShapeUnknown.
func NormalizeList(raw json.RawMessage) ([]Record, Shape) {
	value, ok := decodeLoose(raw)
	if !ok {
		return []Record{}, ShapeUnknown
	}
	if list, ok := value.([]any); ok {
		return records(list), ShapeArray
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return []Record{}, ShapeUnknown
	}
	for _, env := range envelopes {
		switch inner := obj[env.key].(type) {
		case []any:
			return records(inner), env.shape
		case map[string]any:
			if env.key != "data" {
				continue
			}
			if list, ok := inner["data"].([]any); ok {
				return records(list), ShapeNestedData
			}
		}
	}
	return []Record{}, ShapeUnknown
}

// decodeLoose decodes with UseNumber so money keeps its exact digits.
func decodeLoose(raw json.RawMessage) (any, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, false
	}
	return value, true
}

func records(list []any) []Record {
	out := make([]Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}

// first returns the first of keys whose value is present and not null.
func (r Record) first(keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := r[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (r Record) object(keys ...string) Record {
	for _, key := range keys {
		if m, ok := r[key].(map[string]any); ok {
			return Record(m)
		}
	}
	return nil
}

func (r Record) str(keys ...string) string {
	v, ok := r.first(keys...)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	}
	return ""
}

func (r Record) number(keys ...string) float64 {
	v, _ := r.first(keys...)
	return ToNumber(v)
}

func (r Record) money(keys ...string) decimal.Decimal {
	v, _ := r.first(keys...)
	return ToDecimal(v)
}

func (r Record) flag(keys ...string) bool {
	v, _ := r.first(keys...)
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "1"
	}
	return ToNumber(v) != 0
}

func (r Record) id(keys ...string) int64 {
	return int64(r.number(keys...))
}
