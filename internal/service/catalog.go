package service

import (
	"context"
	"fmt"
	"strings"

	"bioclinics/backoffice/internal/domain"
)

const (
	defaultProductLimit = 10
	maxProductLimit     = 100
)

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	filter.Page, filter.Limit = normalizePage(filter.Page, filter.Limit, defaultProductLimit, maxProductLimit)
	filter.Query = strings.TrimSpace(filter.Query)

	products, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return domain.ProductPage{}, err
	}
	pages := (total + filter.Limit - 1) / filter.Limit
	if pages < 1 {
		pages = 1
	}
	return domain.ProductPage{
		Data:  products,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
		Pages: pages,
	}, nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	if id < 1 {
		return domain.Product{}, invalid("product id is required")
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Name:          strings.TrimSpace(req.Name),
		Description:   strings.TrimSpace(req.Description),
		Price:         req.Price,
		Stock:         req.Stock,
		IDProductType: req.IDProductType,
		IDLaboratory:  req.IDLaboratory,
		IsActive:      true,
	}
	if err := validateProduct(product); err != nil {
		return domain.Product{}, err
	}
	if product.Stock < 0 {
		return domain.Product{}, invalid("stock cannot be negative")
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%s,stock=%d", created.Name, created.Price, created.Stock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		updated.Price = *req.Price
	}
	if req.IDProductType != nil {
		updated.IDProductType = *req.IDProductType
	}
	if req.IDLaboratory != nil {
		updated.IDLaboratory = *req.IDLaboratory
	}
	if req.IsActive != nil {
		updated.IsActive = *req.IsActive
	}
	if err := validateProduct(updated); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("name=%s,price=%s,active=%t", saved.Name, saved.Price, saved.IsActive))
	return *saved, nil
}

// SetProductActive backs the activate/deactivate endpoints.
func (s *Service) SetProductActive(ctx context.Context, id int64, active bool) (domain.Product, error) {
	return s.UpdateProduct(ctx, id, domain.ProductUpdateRequest{IsActive: &active})
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if id < 1 {
		return invalid("product id is required")
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

func validateProduct(p domain.Product) error {
	if p.Name == "" {
		return invalid("name is required")
	}
	if p.Price.IsNegative() {
		return invalid("price cannot be negative")
	}
	if p.IDProductType < 1 {
		return invalid("product type is required")
	}
	if p.IDLaboratory < 1 {
		return invalid("laboratory is required")
	}
	return nil
}

func (s *Service) ListProductTypes(ctx context.Context) ([]domain.ProductType, error) {
	return s.repo.ListProductTypes(ctx)
}

func (s *Service) GetProductType(ctx context.Context, id int64) (domain.ProductType, error) {
	pt, err := s.repo.GetProductType(ctx, id)
	if err != nil {
		return domain.ProductType{}, err
	}
	return *pt, nil
}

func (s *Service) ListLaboratories(ctx context.Context) ([]domain.Laboratory, error) {
	return s.repo.ListLaboratories(ctx)
}

func (s *Service) GetLaboratory(ctx context.Context, id int64) (domain.Laboratory, error) {
	lab, err := s.repo.GetLaboratory(ctx, id)
	if err != nil {
		return domain.Laboratory{}, err
	}
	return *lab, nil
}

func (s *Service) CreateLaboratory(ctx context.Context, req domain.LaboratoryRequest) (domain.Laboratory, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Laboratory{}, err
	}
	lab := domain.Laboratory{
		Name:     trimPtr(req.Name),
		Phone:    trimPtr(req.Phone),
		Address:  trimPtr(req.Address),
		IsActive: true,
	}
	if req.IsActive != nil {
		lab.IsActive = *req.IsActive
	}
	if lab.Name == "" {
		return domain.Laboratory{}, invalid("name is required")
	}

	created, err := s.repo.CreateLaboratory(ctx, lab)
	if err != nil {
		return domain.Laboratory{}, err
	}
	s.logAudit(ctx, "laboratory_create", "laboratory", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateLaboratory(ctx context.Context, id int64, req domain.LaboratoryRequest) (domain.Laboratory, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Laboratory{}, err
	}
	existing, err := s.repo.GetLaboratory(ctx, id)
	if err != nil {
		return domain.Laboratory{}, err
	}

	lab := *existing
	if req.Name != nil {
		lab.Name = strings.TrimSpace(*req.Name)
		if lab.Name == "" {
			return domain.Laboratory{}, invalid("name is required")
		}
	}
	if req.Phone != nil {
		lab.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		lab.Address = strings.TrimSpace(*req.Address)
	}
	if req.IsActive != nil {
		lab.IsActive = *req.IsActive
	}

	saved, err := s.repo.UpdateLaboratory(ctx, lab)
	if err != nil {
		return domain.Laboratory{}, err
	}
	s.logAudit(ctx, "laboratory_update", "laboratory", saved.ID, fmt.Sprintf("name=%s,active=%t", saved.Name, saved.IsActive))
	return *saved, nil
}

func (s *Service) DeleteLaboratory(ctx context.Context, id int64) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteLaboratory(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "laboratory_delete", "laboratory", id, "")
	return nil
}
