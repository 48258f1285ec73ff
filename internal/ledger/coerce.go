// Package ledger turns inventory entry and exit listings into period totals
// and a net balance. Server payloads are read leniently: malformed numbers
// count as zero and unreadable dates sort last, so a bad row never breaks a
// dashboard.
package ledger

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ToNumber coerces v to a float64. Anything that is not a finite number or a
// numeric string yields 0.
func ToNumber(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case decimal.Decimal:
		f = n.InexactFloat64()
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ToDecimal is ToNumber for money. Numeric strings keep their exact digits.
func ToDecimal(v any) decimal.Decimal {
	switch n := v.(type) {
	case decimal.Decimal:
		return n
	case json.Number:
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return d
		}
		return decimal.Zero
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(n)); err == nil {
			return d
		}
		return decimal.Zero
	}
	f := ToNumber(v)
	if f == 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseDate accepts ISO-8601 strings, "YYYY-MM-DD HH:mm:ss", epoch values in
// seconds (10 digits) or milliseconds, and time.Time. Timestamps without a
// zone are read as UTC. ok is false for anything else.
func ParseDate(v any) (t time.Time, ok bool) {
	switch d := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return d, !d.IsZero()
	case *time.Time:
		if d == nil {
			return time.Time{}, false
		}
		return *d, !d.IsZero()
	case float64:
		if math.IsNaN(d) || math.IsInf(d, 0) || d != math.Trunc(d) {
			return time.Time{}, false
		}
		return fromEpoch(strconv.FormatInt(int64(d), 10))
	case int:
		return fromEpoch(strconv.Itoa(d))
	case int64:
		return fromEpoch(strconv.FormatInt(d, 10))
	case json.Number:
		return ParseDate(d.String())
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return time.Time{}, false
		}
		if isDigits(s) {
			return fromEpoch(s)
		}
		if parsed, ok := parseLayouts(s); ok {
			return parsed, true
		}
		if !strings.Contains(s, "T") {
			return parseLayouts(strings.Replace(s, " ", "T", 1))
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

func parseLayouts(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func fromEpoch(digits string) (time.Time, bool) {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	if len(digits) == 10 {
		return time.Unix(n, 0).UTC(), true
	}
	return time.UnixMilli(n).UTC(), true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
