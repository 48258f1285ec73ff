package store

import (
	"context"
	"errors"

	"bioclinics/backoffice/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("already exists")
)

// StockError reports which product ran short. It matches ErrInsufficientStock.
type StockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *StockError) Error() string {
	return "insufficient stock for " + e.ProductName
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type Repository interface {
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	ListProductTypes(ctx context.Context) ([]domain.ProductType, error)
	GetProductType(ctx context.Context, id int64) (*domain.ProductType, error)

	ListLaboratories(ctx context.Context) ([]domain.Laboratory, error)
	GetLaboratory(ctx context.Context, id int64) (*domain.Laboratory, error)
	CreateLaboratory(ctx context.Context, lab domain.Laboratory) (*domain.Laboratory, error)
	UpdateLaboratory(ctx context.Context, lab domain.Laboratory) (*domain.Laboratory, error)
	DeleteLaboratory(ctx context.Context, id int64) error

	ListProductInputs(ctx context.Context, filter domain.MovementFilter) ([]domain.ProductInput, error)
	CreateProductInput(ctx context.Context, input domain.ProductInput) (*domain.ProductInput, error)
	ListProductOutputs(ctx context.Context, filter domain.MovementFilter) ([]domain.ProductOutput, error)
	CreateProductOutput(ctx context.Context, output domain.ProductOutput) (*domain.ProductOutput, error)

	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SalesFilter) ([]domain.Sale, int, error)
	// CreateSale reports replayed when a sale with the same idempotency key
	// already exists; that sale is returned and nothing new is written.
	CreateSale(ctx context.Context, sale domain.Sale) (created *domain.Sale, replayed bool, err error)

	ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	UpdateUser(ctx context.Context, user domain.User) (*domain.User, error)
	DeleteUser(ctx context.Context, id int64) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
}
