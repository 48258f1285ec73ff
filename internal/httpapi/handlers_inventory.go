package httpapi

import (
	"net/http"

	"bioclinics/backoffice/internal/domain"
)

func movementFilter(r *http.Request) (domain.MovementFilter, error) {
	from, to, err := queryDateRange(r)
	if err != nil {
		return domain.MovementFilter{}, err
	}
	filter := domain.MovementFilter{
		From:  from,
		To:    to,
		Limit: parsePositiveLimit(r.URL.Query().Get("limit"), 500, 500),
	}
	if filter.ProductID, err = queryInt64(r, "productId"); err != nil {
		return domain.MovementFilter{}, err
	}
	if filter.LaboratoryID, err = queryInt64(r, "laboratoryId"); err != nil {
		return domain.MovementFilter{}, err
	}
	if filter.UserID, err = queryInt64(r, "userId"); err != nil {
		return domain.MovementFilter{}, err
	}
	if filter.SaleID, err = queryInt64(r, "saleId"); err != nil {
		return domain.MovementFilter{}, err
	}
	if filter.IsAdjustment, err = queryBool(r, "isAdjustment"); err != nil {
		return domain.MovementFilter{}, err
	}
	return filter, nil
}

func (a *API) handleListProductInputs(w http.ResponseWriter, r *http.Request) {
	filter, err := movementFilter(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	result, err := a.service.ListProductInputs(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCreateProductInput(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductInputCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	input, err := a.service.CreateProductInput(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, input)
}

func (a *API) handleListProductOutputs(w http.ResponseWriter, r *http.Request) {
	filter, err := movementFilter(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	result, err := a.service.ListProductOutputs(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCreateProductOutput(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductOutputCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	output, err := a.service.CreateProductOutput(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, output)
}

func (a *API) handleCreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req domain.AdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	output, err := a.service.CreateAdjustment(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, output)
}
