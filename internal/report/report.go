// Package report normalises the sales report endpoint into the day and month
// view shown at the counter.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"bioclinics/backoffice/internal/domain"
	"bioclinics/backoffice/internal/ledger"
)

// InitialLimit is the page size used before the user picks another.
const InitialLimit = 15

type Item struct {
	OutputID    int64
	ProductID   int64
	ProductName string
	TypeName    string
	Quantity    int
	UnitPrice   decimal.Decimal
	Subtotal    decimal.Decimal
}

type User struct {
	ID       int64
	Name     string
	Username string
}

type Sale struct {
	ID        int64
	Total     decimal.Decimal
	CreatedAt time.Time
	HasDate   bool
	Notes     string
	User      *User
	Items     []Item
}

type Summary struct {
	DayTotal   decimal.Decimal
	MonthTotal decimal.Decimal
	TotalCount int
	TargetDate string
	MonthStart string
	MonthEnd   string
	DaySales   []Sale
}

type Pagination struct {
	Page  int
	Limit int
	Total int
}

type Report struct {
	Summary    Summary
	Data       []Sale
	Pagination Pagination
	// Error is a user-facing message set when the report could not be
	// fetched. The rest of the report then holds empty defaults.
	Error string
}

// Request is what the caller asked for. An empty TargetDate means today.
type Request struct {
	TargetDate string
	Page       int
	Limit      int
}

var now = time.Now

func (r Request) withDefaults() Request {
	if r.TargetDate == "" {
		r.TargetDate = now().UTC().Format(domain.DateLayout)
	}
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Limit < 1 {
		r.Limit = InitialLimit
	}
	return r
}

// Source fetches the raw report. apiclient.Client satisfies it.
type Source interface {
	SalesReport(ctx context.Context, targetDate time.Time, page, limit int) (json.RawMessage, error)
}

// Load fetches and normalises the report. Failures come back as an empty
// report carrying Error, never as a Go error.
func Load(ctx context.Context, src Source, req Request) Report {
	req = req.withDefaults()
	target, _ := time.Parse(domain.DateLayout, req.TargetDate)

	raw, err := src.SalesReport(ctx, target, req.Page, req.Limit)
	if err != nil {
		log.Printf("[report] WARN: sales report fetch failed: %v", err)
		rep := Empty(req)
		rep.Error = err.Error()
		return rep
	}
	return Normalize(raw, req)
}

// Empty is the zero report for req with the month bounds still derived.
func Empty(req Request) Report {
	req = req.withDefaults()
	return Report{
		Summary: Summary{
			DayTotal:   decimal.Zero,
			MonthTotal: decimal.Zero,
			TargetDate: req.TargetDate,
			MonthStart: monthStartString(req.TargetDate),
			MonthEnd:   monthEndString(req.TargetDate),
			DaySales:   []Sale{},
		},
		Data:       []Sale{},
		Pagination: Pagination{Page: req.Page, Limit: req.Limit},
	}
}

// Normalize maps a report payload. Missing summary fields are derived from
// the request, the pagination, or the data itself.
func Normalize(raw json.RawMessage, req Request) Report {
	req = req.withDefaults()
	rep := Empty(req)

	list, _ := ledger.NormalizeList(raw)
	rep.Data = mapSales(list)

	var body map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		rep.Summary.TotalCount = len(rep.Data)
		rep.Pagination.Total = len(rep.Data)
		return rep
	}

	pagination, _ := body["pagination"].(map[string]any)
	rep.Pagination = Pagination{
		Page:  intOr(pagination, "page", req.Page),
		Limit: intOr(pagination, "limit", req.Limit),
		Total: intOr(pagination, "total", len(rep.Data)),
	}

	summary, _ := body["summary"].(map[string]any)
	target := stringOr(summary, req.TargetDate, "targetDate")
	rep.Summary = Summary{
		DayTotal:   ledger.ToDecimal(summary["dayTotal"]),
		MonthTotal: ledger.ToDecimal(summary["monthTotal"]),
		TotalCount: intOr(summary, "totalCount", rep.Pagination.Total),
		TargetDate: target,
		MonthStart: stringOr(summary, monthStartString(target), "monthStart"),
		MonthEnd:   stringOr(summary, monthEndString(target), "monthEnd"),
		DaySales:   []Sale{},
	}
	if daySales, ok := summary["daySales"].([]any); ok {
		rep.Summary.DaySales = mapSales(objects(daySales))
	}
	return rep
}

// MonthStart is the first day of t's month, in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd is the last day of t's month, in UTC.
func MonthEnd(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, -1)
}

func monthStartString(date string) string {
	return MonthStart(baseDate(date)).Format(domain.DateLayout)
}

func monthEndString(date string) string {
	return MonthEnd(baseDate(date)).Format(domain.DateLayout)
}

func baseDate(date string) time.Time {
	if t, ok := ledger.ParseDate(date); ok {
		return t
	}
	return now()
}
