package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bioclinics/backoffice/internal/domain"
	"bioclinics/backoffice/internal/roles"
	"bioclinics/backoffice/internal/store"
)

const (
	defaultSalesLimit = 15
	maxSalesLimit     = 100
	maxSaleItems      = 200
)

// CreateSale records a sale and reports whether it was a replay of an earlier
// request carrying the same idempotency key.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest, idempotencyKey string) (domain.Sale, bool, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, false, err
	}
	if len(req.Items) == 0 {
		return domain.Sale{}, false, invalid("a sale needs at least one item")
	}
	if len(req.Items) > maxSaleItems {
		return domain.Sale{}, false, invalid("a sale cannot have more than %d items", maxSaleItems)
	}
	for i, item := range req.Items {
		if item.ProductID < 1 {
			return domain.Sale{}, false, invalid("item %d: product is required", i+1)
		}
		if item.Quantity < 1 {
			return domain.Sale{}, false, invalid("item %d: quantity must be greater than 0", i+1)
		}
	}

	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey != "" {
		existing, err := s.repo.FindSaleByIdempotency(ctx, idempotencyKey)
		if err == nil {
			return *existing, true, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.Sale{}, false, err
		}
	}

	userID, err := s.saleUser(ctx, actor, req.UserID)
	if err != nil {
		return domain.Sale{}, false, err
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.SaleItem{IDProduct: item.ProductID, Quantity: item.Quantity})
	}

	created, replayed, err := s.repo.CreateSale(ctx, domain.Sale{
		IDUser:         &userID,
		Notes:          strings.TrimSpace(req.Notes),
		IdempotencyKey: idempotencyKey,
		CreatedAt:      s.now(),
		Items:          items,
	})
	if err != nil {
		return domain.Sale{}, false, err
	}
	if replayed {
		return *created, true, nil
	}
	if !req.Total.IsZero() && !req.Total.Equal(created.Total) {
		log.Printf("[service] WARN: sale total mismatch sale=%d client=%s server=%s", created.ID, req.Total, created.Total)
	}

	if err := s.reports.Invalidate(ctx); err != nil {
		log.Printf("[cache] WARN: failed to invalidate sales reports: %v", err)
	}
	s.logAudit(ctx, "sale_create", "sale", created.ID, fmt.Sprintf("total=%s,items=%d", created.Total, len(created.Items)))
	return *created, false, nil
}

// saleUser resolves who the sale is recorded under. Staff always sell as
// themselves; admin and root may record a sale for another active user.
func (s *Service) saleUser(ctx context.Context, actor domain.Actor, requested *int64) (int64, error) {
	if requested == nil || *requested <= 0 || *requested == actor.UserID {
		return actor.UserID, nil
	}
	if !roles.In(actor.Role, roles.Root, roles.Admin) {
		return 0, ErrAdminRequired
	}
	user, err := s.repo.GetUser(ctx, *requested)
	if errors.Is(err, store.ErrNotFound) {
		return 0, invalid("user %d does not exist", *requested)
	}
	if err != nil {
		return 0, err
	}
	if !user.IsActive {
		return 0, invalid("user %d is inactive", *requested)
	}
	return user.ID, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	if id < 1 {
		return domain.Sale{}, invalid("sale id is required")
	}
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SalesFilter) (domain.SalePage, error) {
	filter.Page, filter.Limit = normalizePage(filter.Page, filter.Limit, defaultSalesLimit, maxSalesLimit)
	sales, total, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return domain.SalePage{}, err
	}
	return domain.SalePage{
		Data:       sales,
		Pagination: domain.Pagination{Page: filter.Page, Limit: filter.Limit, Total: total},
	}, nil
}

// SalesReport returns the day and month totals around the target date plus a
// page of sales. Without an explicit range the page covers the target month.
func (s *Service) SalesReport(ctx context.Context, filter domain.SalesReportFilter) (domain.SalesReport, error) {
	target := filter.TargetDate
	if target.IsZero() {
		target = s.now()
	}
	target = startOfDay(target)
	dayEnd := target.AddDate(0, 0, 1)
	monthStart := time.Date(target.Year(), target.Month(), 1, 0, 0, 0, 0, time.UTC)
	nextMonth := monthStart.AddDate(0, 1, 0)

	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return domain.SalesReport{}, invalid("startDate must not be after endDate")
	}

	page := filter.SalesFilter
	page.Page, page.Limit = normalizePage(page.Page, page.Limit, defaultSalesLimit, maxSalesLimit)
	if page.From == nil && page.To == nil {
		page.From, page.To = &monthStart, &nextMonth
	}

	key := reportCacheKey(target, page)
	if cached, ok, err := s.reports.Get(ctx, key); err != nil {
		log.Printf("[cache] WARN: failed to read sales report %s: %v", key, err)
	} else if ok {
		return *cached, nil
	}

	daySales, _, err := s.repo.ListSales(ctx, domain.SalesFilter{From: &target, To: &dayEnd, UserID: page.UserID, ProductID: page.ProductID})
	if err != nil {
		return domain.SalesReport{}, err
	}
	monthSales, _, err := s.repo.ListSales(ctx, domain.SalesFilter{From: &monthStart, To: &nextMonth, UserID: page.UserID, ProductID: page.ProductID})
	if err != nil {
		return domain.SalesReport{}, err
	}
	data, total, err := s.repo.ListSales(ctx, page)
	if err != nil {
		return domain.SalesReport{}, err
	}

	report := domain.SalesReport{
		Summary: domain.SalesReportSummary{
			DayTotal:   sumSales(daySales),
			MonthTotal: sumSales(monthSales),
			TotalCount: total,
			TargetDate: target.Format(domain.DateLayout),
			MonthStart: monthStart.Format(domain.DateLayout),
			MonthEnd:   nextMonth.AddDate(0, 0, -1).Format(domain.DateLayout),
			DaySales:   daySales,
		},
		Data:       data,
		Pagination: domain.Pagination{Page: page.Page, Limit: page.Limit, Total: total},
	}

	if err := s.reports.Set(ctx, key, &report, s.reportTTL); err != nil {
		log.Printf("[cache] WARN: failed to store sales report %s: %v", key, err)
	}
	return report, nil
}

func sumSales(sales []domain.Sale) decimal.Decimal {
	total := decimal.Zero
	for _, sale := range sales {
		total = total.Add(sale.Total)
	}
	return total
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func reportCacheKey(target time.Time, filter domain.SalesFilter) string {
	formatDay := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("t=%s:f=%s:to=%s:u=%d:p=%d:pg=%d:l=%d",
		target.Format(domain.DateLayout), formatDay(filter.From), formatDay(filter.To),
		filter.UserID, filter.ProductID, filter.Page, filter.Limit)
}
