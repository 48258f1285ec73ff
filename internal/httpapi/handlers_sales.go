package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"bioclinics/backoffice/internal/domain"
)

const idempotencyHeader = "Idempotency-Key"

func salesFilter(r *http.Request) (domain.SalesFilter, error) {
	from, to, err := queryDateRange(r)
	if err != nil {
		return domain.SalesFilter{}, err
	}
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	filter := domain.SalesFilter{
		From:  from,
		To:    to,
		Page:  page,
		Limit: parsePositiveLimit(query.Get("limit"), 15, 100),
	}
	if filter.UserID, err = queryInt64(r, "userId"); err != nil {
		return domain.SalesFilter{}, err
	}
	if filter.ProductID, err = queryInt64(r, "productId"); err != nil {
		return domain.SalesFilter{}, err
	}
	return filter, nil
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	filter, err := salesFilter(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	page, err := a.service.ListSales(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sale, err := a.service.GetSale(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	sale, replayed, err := a.service.CreateSale(r.Context(), req, key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		writeJSON(w, http.StatusOK, sale)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	filter, err := salesFilter(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	target, err := queryDate(r, "targetDate")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	reportFilter := domain.SalesReportFilter{SalesFilter: filter}
	if target != nil {
		reportFilter.TargetDate = *target
	}

	report, err := a.service.SalesReport(r.Context(), reportFilter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
