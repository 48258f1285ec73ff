package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type Period struct {
	StartDate string
	EndDate   string
}

type EntryTotals struct {
	Count         int
	TotalBoxes    float64
	TotalUnits    float64
	TotalSubtotal decimal.Decimal
}

type ExitTotals struct {
	Count         int
	TotalQuantity float64
	TotalSubtotal decimal.Decimal
}

type Summary struct {
	Period  Period
	Entries EntryTotals
	Exits   ExitTotals
}

// Balance is a period summary plus the net movement. Net values may be
// negative and are kept that way.
type Balance struct {
	Summary
	NetUnits    float64
	NetSubtotal decimal.Decimal
	FromServer  bool
}

// ParseSummary reads the summary object a listing may carry, in its nested
// form (entries.totalUnits) or its flat form (entriesQuantity). ok is false
// when the payload has no summary at all.
func ParseSummary(raw json.RawMessage) (Summary, bool) {
	value, ok := decodeLoose(raw)
	if !ok {
		return Summary{}, false
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return Summary{}, false
	}
	src, ok := obj["summary"].(map[string]any)
	if !ok {
		return Summary{}, false
	}

	s := Record(src)
	entries := s.object("entries", "inputs")
	if entries == nil {
		entries = Record{}
	}
	exits := s.object("outputs", "exits")
	if exits == nil {
		exits = Record{}
	}
	period := s.object("period")
	if period == nil {
		period = Record{}
	}

	return Summary{
		Period: Period{
			StartDate: period.str("startDate", "start_date"),
			EndDate:   period.str("endDate", "end_date"),
		},
		Entries: EntryTotals{
			Count:         int(pick(entries, s, []string{"count"}, []string{"entriesCount"})),
			TotalBoxes:    pick(entries, s, []string{"totalBoxes"}, []string{"entriesBoxes"}),
			TotalUnits:    pick(entries, s, []string{"totalUnits", "totalQuantity"}, []string{"entriesQuantity", "entriesUnits"}),
			TotalSubtotal: pickMoney(entries, s, []string{"totalSubtotal"}, []string{"entriesSubtotal"}),
		},
		Exits: ExitTotals{
			Count:         int(pick(exits, s, []string{"count"}, []string{"outputsCount"})),
			TotalQuantity: pick(exits, s, []string{"totalQuantity"}, []string{"outputsQuantity"}),
			TotalSubtotal: pickMoney(exits, s, []string{"totalSubtotal"}, []string{"outputsSubtotal"}),
		},
	}, true
}

func pick(nested, flat Record, nestedKeys, flatKeys []string) float64 {
	if v, ok := nested.first(nestedKeys...); ok {
		return ToNumber(v)
	}
	return flat.number(flatKeys...)
}

func pickMoney(nested, flat Record, nestedKeys, flatKeys []string) decimal.Decimal {
	if v, ok := nested.first(nestedKeys...); ok {
		return ToDecimal(v)
	}
	return flat.money(flatKeys...)
}

// Summarize aggregates the movements locally when the server sent no
// summary.
func Summarize(entries []Entry, exits []Exit) Summary {
	s := Summary{
		Entries: EntryTotals{Count: len(entries), TotalSubtotal: decimal.Zero},
		Exits:   ExitTotals{Count: len(exits), TotalSubtotal: decimal.Zero},
	}
	for _, e := range entries {
		s.Entries.TotalBoxes += e.Boxes
		s.Entries.TotalUnits += e.TotalUnits
		s.Entries.TotalSubtotal = s.Entries.TotalSubtotal.Add(e.Subtotal)
	}
	for _, x := range exits {
		s.Exits.TotalQuantity += x.Quantity
		s.Exits.TotalSubtotal = s.Exits.TotalSubtotal.Add(x.Subtotal)
	}
	return s
}

// Reconcile prefers the server summary and falls back to local aggregation.
// The period comes from the filter when the summary does not name one.
func Reconcile(entries []Entry, exits []Exit, server *Summary, filter Filter) Balance {
	var b Balance
	if server != nil {
		b.Summary = *server
		b.FromServer = true
	} else {
		b.Summary = Summarize(entries, exits)
	}
	if b.Period.StartDate == "" {
		b.Period.StartDate = filter.StartDate
	}
	if b.Period.EndDate == "" {
		b.Period.EndDate = filter.EndDate
	}
	return b.withNet()
}

func (b Balance) withNet() Balance {
	b.NetUnits = b.Entries.TotalUnits - b.Exits.TotalQuantity
	b.NetSubtotal = b.Entries.TotalSubtotal.Sub(b.Exits.TotalSubtotal)
	return b
}

// Sign is -1, 0 or 1 following the net subtotal, falling back to net units
// when the money nets out.
func (b Balance) Sign() int {
	if s := b.NetSubtotal.Sign(); s != 0 {
		return s
	}
	switch {
	case b.NetUnits > 0:
		return 1
	case b.NetUnits < 0:
		return -1
	}
	return 0
}

// FormatSigned renders an amount with an explicit sign so a deficit never
// reads like a surplus.
func FormatSigned(d decimal.Decimal) string {
	switch d.Sign() {
	case 1:
		return "+" + d.StringFixed(2)
	case -1:
		return d.StringFixed(2)
	}
	return "0.00"
}

func FormatUnits(units float64) string {
	switch {
	case units > 0:
		return fmt.Sprintf("+%g", units)
	case units < 0:
		return fmt.Sprintf("%g", units)
	}
	return "0"
}
