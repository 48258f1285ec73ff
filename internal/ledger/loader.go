package ledger

import (
	"context"
	"encoding/json"
	"log"

	"golang.org/x/sync/errgroup"

	"bioclinics/backoffice/internal/apiclient"
)

// Filter is the shared entries and exits filter. Dates are inclusive
// calendar days in YYYY-MM-DD form.
type Filter struct {
	StartDate    string
	EndDate      string
	ProductID    int64
	LaboratoryID int64
	UserID       int64
	IsAdjustment *bool
	Limit        int
}

func (f Filter) query() apiclient.MovementQuery {
	return apiclient.MovementQuery{
		StartDate:    f.StartDate,
		EndDate:      f.EndDate,
		ProductID:    f.ProductID,
		LaboratoryID: f.LaboratoryID,
		UserID:       f.UserID,
		IsAdjustment: f.IsAdjustment,
		Limit:        f.Limit,
	}
}

// MovementSource fetches raw listings. apiclient.Client satisfies it.
type MovementSource interface {
	ListProductInputs(ctx context.Context, q apiclient.MovementQuery) (json.RawMessage, error)
	ListProductOutputs(ctx context.Context, q apiclient.MovementQuery) (json.RawMessage, error)
}

type Result struct {
	Entries []Entry
	Exits   []Exit
	Balance Balance
	// Errors holds user-facing messages for listings that could not be
	// fetched. The result is still usable when it is non-empty.
	Errors []string
}

type Loader struct {
	source MovementSource
}

func NewLoader(source MovementSource) *Loader {
	return &Loader{source: source}
}

// Load fetches entries and exits side by side and reconciles them. A failed
// fetch never surfaces as an error: its list comes back empty and its half of
// the summary is zero. The totals are then computed from the rows that did
// load, so they always agree with what is listed.
func (l *Loader) Load(ctx context.Context, filter Filter) Result {
	var (
		entriesRaw, exitsRaw json.RawMessage
		entriesErr, exitsErr error
	)
	q := filter.query()

	// The group is only a join. Each fetch keeps its own error so one side
	// failing does not cancel the other.
	var g errgroup.Group
	g.Go(func() error {
		entriesRaw, entriesErr = l.source.ListProductInputs(ctx, q)
		return nil
	})
	g.Go(func() error {
		exitsRaw, exitsErr = l.source.ListProductOutputs(ctx, q)
		return nil
	})
	_ = g.Wait()

	result := Result{Entries: []Entry{}, Exits: []Exit{}}
	if entriesErr != nil {
		log.Printf("[ledger] WARN: entries fetch failed: %v", entriesErr)
		result.Errors = append(result.Errors, "could not load entries: "+entriesErr.Error())
	} else {
		list, shape := NormalizeList(entriesRaw)
		if shape == ShapeUnknown {
			log.Printf("[ledger] WARN: unrecognised entries payload, showing none")
		}
		result.Entries = MapEntries(list)
		SortByRecency(result.Entries, EntryTime)
	}
	if exitsErr != nil {
		log.Printf("[ledger] WARN: exits fetch failed: %v", exitsErr)
		result.Errors = append(result.Errors, "could not load exits: "+exitsErr.Error())
	} else {
		list, shape := NormalizeList(exitsRaw)
		if shape == ShapeUnknown {
			log.Printf("[ledger] WARN: unrecognised exits payload, showing none")
		}
		result.Exits = MapExits(list)
		SortByRecency(result.Exits, ExitTime)
	}

	if len(result.Errors) > 0 {
		// A server summary covers both sides, so it cannot be trusted when one
		// side is missing.
		result.Balance = Reconcile(result.Entries, result.Exits, nil, filter)
		return result
	}

	var server *Summary
	if s, ok := ParseSummary(entriesRaw); ok {
		server = &s
	} else if s, ok := ParseSummary(exitsRaw); ok {
		server = &s
	}
	result.Balance = Reconcile(result.Entries, result.Exits, server, filter)
	return result
}
