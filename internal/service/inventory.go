package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"bioclinics/backoffice/internal/domain"
)

const maxMovementLimit = 500

func (s *Service) CreateProductInput(ctx context.Context, req domain.ProductInputCreateRequest) (domain.ProductInput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ProductInput{}, err
	}

	if req.IDProduct < 1 {
		return domain.ProductInput{}, invalid("product is required")
	}
	if req.IDLaboratory < 1 {
		return domain.ProductInput{}, invalid("laboratory is required")
	}
	if req.Quantity < 1 {
		return domain.ProductInput{}, invalid("quantity must be greater than 0")
	}
	if req.UnitsPerBox == 0 {
		req.UnitsPerBox = 1
	}
	if req.UnitsPerBox < 1 {
		return domain.ProductInput{}, invalid("units per box must be greater than 0")
	}
	if req.UnitCost.IsNegative() {
		return domain.ProductInput{}, invalid("unit cost cannot be negative")
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.IsAdjustment && req.Reason == "" {
		return domain.ProductInput{}, invalid("reason is required for an adjustment")
	}

	totalUnits := req.Quantity * req.UnitsPerBox
	subtotal := req.UnitCost.Mul(decimal.NewFromInt(int64(totalUnits)))
	if req.Subtotal != nil && !req.Subtotal.Equal(subtotal) {
		log.Printf("[service] WARN: entry subtotal mismatch product=%d client=%s server=%s", req.IDProduct, req.Subtotal, subtotal)
	}

	created, err := s.repo.CreateProductInput(ctx, domain.ProductInput{
		IDProduct:    req.IDProduct,
		IDLaboratory: req.IDLaboratory,
		IDUser:       actor.UserID,
		Quantity:     req.Quantity,
		UnitsPerBox:  req.UnitsPerBox,
		TotalUnits:   totalUnits,
		UnitCost:     req.UnitCost,
		Subtotal:     subtotal,
		IsAdjustment: req.IsAdjustment,
		Reason:       req.Reason,
	})
	if err != nil {
		return domain.ProductInput{}, err
	}
	s.logAudit(ctx, "product_input_create", "product_input", created.ID, fmt.Sprintf("product=%d,units=%d,subtotal=%s", created.IDProduct, created.TotalUnits, created.Subtotal))
	return *created, nil
}

func (s *Service) CreateProductOutput(ctx context.Context, req domain.ProductOutputCreateRequest) (domain.ProductOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ProductOutput{}, err
	}
	if req.IDProduct < 1 {
		return domain.ProductOutput{}, invalid("product is required")
	}
	if req.Quantity < 1 {
		return domain.ProductOutput{}, invalid("quantity must be greater than 0")
	}
	if req.UnitPrice.IsNegative() {
		return domain.ProductOutput{}, invalid("unit price cannot be negative")
	}

	unitPrice := req.UnitPrice
	if unitPrice.IsZero() {
		product, err := s.GetProduct(ctx, req.IDProduct)
		if err != nil {
			return domain.ProductOutput{}, err
		}
		unitPrice = product.Price
	}

	return s.recordOutput(ctx, domain.ProductOutput{
		IDProduct: req.IDProduct,
		IDSale:    req.IDSale,
		IDUser:    actor.UserID,
		Quantity:  req.Quantity,
		UnitPrice: unitPrice,
		Reason:    strings.TrimSpace(req.Reason),
	})
}

// CreateAdjustment records a manual exit. Unlike a regular exit the reason is
// mandatory and the unit price is taken as given, zero included.
func (s *Service) CreateAdjustment(ctx context.Context, req domain.AdjustmentRequest) (domain.ProductOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ProductOutput{}, err
	}
	if req.IDProduct < 1 {
		return domain.ProductOutput{}, invalid("product is required")
	}
	if req.Quantity < 1 {
		return domain.ProductOutput{}, invalid("quantity must be greater than 0")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.ProductOutput{}, invalid("reason is required for an adjustment")
	}
	if req.UnitPrice.IsNegative() {
		return domain.ProductOutput{}, invalid("unit price cannot be negative")
	}

	return s.recordOutput(ctx, domain.ProductOutput{
		IDProduct:    req.IDProduct,
		IDUser:       actor.UserID,
		Quantity:     req.Quantity,
		UnitPrice:    req.UnitPrice,
		IsAdjustment: true,
		Reason:       reason,
	})
}

func (s *Service) recordOutput(ctx context.Context, output domain.ProductOutput) (domain.ProductOutput, error) {
	output.Subtotal = output.UnitPrice.Mul(decimal.NewFromInt(int64(output.Quantity)))
	created, err := s.repo.CreateProductOutput(ctx, output)
	if err != nil {
		return domain.ProductOutput{}, err
	}
	s.logAudit(ctx, "product_output_create", "product_output", created.ID, fmt.Sprintf("product=%d,qty=%d,adjustment=%t", created.IDProduct, created.Quantity, created.IsAdjustment))
	return *created, nil
}

// ListProductInputs returns the filtered entries plus a summary of entries and
// exits over the same period, product and laboratory.
func (s *Service) ListProductInputs(ctx context.Context, filter domain.MovementFilter) (domain.ProductInputList, error) {
	limit := clampMovementLimit(filter.Limit)
	filter.Limit = 0

	inputs, err := s.repo.ListProductInputs(ctx, filter)
	if err != nil {
		return domain.ProductInputList{}, err
	}
	outputs, err := s.repo.ListProductOutputs(ctx, periodOnly(filter))
	if err != nil {
		return domain.ProductInputList{}, err
	}

	summary := summarize(filter, inputs, outputs)
	if limit > 0 && len(inputs) > limit {
		inputs = inputs[:limit]
	}
	return domain.ProductInputList{Data: inputs, Summary: summary}, nil
}

func (s *Service) ListProductOutputs(ctx context.Context, filter domain.MovementFilter) (domain.ProductOutputList, error) {
	limit := clampMovementLimit(filter.Limit)
	filter.Limit = 0

	outputs, err := s.repo.ListProductOutputs(ctx, filter)
	if err != nil {
		return domain.ProductOutputList{}, err
	}
	inputs, err := s.repo.ListProductInputs(ctx, periodOnly(filter))
	if err != nil {
		return domain.ProductOutputList{}, err
	}

	summary := summarize(filter, inputs, outputs)
	if limit > 0 && len(outputs) > limit {
		outputs = outputs[:limit]
	}
	return domain.ProductOutputList{Data: outputs, Summary: summary}, nil
}

func clampMovementLimit(limit int) int {
	if limit < 1 || limit > maxMovementLimit {
		return maxMovementLimit
	}
	return limit
}

// periodOnly keeps the filters shared by entries and exits.
func periodOnly(filter domain.MovementFilter) domain.MovementFilter {
	return domain.MovementFilter{
		From:         filter.From,
		To:           filter.To,
		ProductID:    filter.ProductID,
		LaboratoryID: filter.LaboratoryID,
	}
}

func summarize(filter domain.MovementFilter, inputs []domain.ProductInput, outputs []domain.ProductOutput) domain.MovementSummary {
	summary := domain.MovementSummary{
		Entries: domain.EntryTotals{TotalSubtotal: decimal.Zero},
		Outputs: domain.OutputTotals{TotalSubtotal: decimal.Zero},
	}
	if filter.From != nil {
		summary.Period.StartDate = filter.From.Format(domain.DateLayout)
	}
	if filter.To != nil {
		// To is exclusive; report the last included day.
		summary.Period.EndDate = filter.To.AddDate(0, 0, -1).Format(domain.DateLayout)
	}

	for _, in := range inputs {
		summary.Entries.Count++
		summary.Entries.TotalBoxes += in.Quantity
		summary.Entries.TotalUnits += in.TotalUnits
		summary.Entries.TotalSubtotal = summary.Entries.TotalSubtotal.Add(in.Subtotal)
	}
	for _, out := range outputs {
		summary.Outputs.Count++
		summary.Outputs.TotalQuantity += out.Quantity
		summary.Outputs.TotalSubtotal = summary.Outputs.TotalSubtotal.Add(out.Subtotal)
	}
	return summary
}
