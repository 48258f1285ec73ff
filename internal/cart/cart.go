// Package cart builds a point-of-sale cart against a stock snapshot taken
// when the sale screen loads, and turns it into a sale request.
package cart

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"bioclinics/backoffice/internal/domain"
	"bioclinics/backoffice/internal/xid"
)

// ValidationError blocks a single cart operation. Message is shown to the
// cashier as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// InsufficientStockError aborts a submit. The cart is left untouched.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (available %d, requested %d)", e.ProductName, e.Available, e.Requested)
}

// Warning is a non-blocking notice returned by UpdateQuantity.
type Warning string

type Line struct {
	ProductID int64
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SaleCreator sends the finished sale. apiclient.Client satisfies it.
type SaleCreator interface {
	CreateSale(ctx context.Context, req domain.SaleRequest, idempotencyKey string) (domain.Sale, bool, error)
}

// UserResolver supplies the acting user id, or nil when the session has none.
type UserResolver interface {
	UserID() *int64
}

type Cart struct {
	catalog *Catalog
	creator SaleCreator
	users   UserResolver
	lines   []Line
	key     string
	newKey  func() string
}

func New(catalog *Catalog, creator SaleCreator, users UserResolver) *Cart {
	if catalog == nil {
		catalog = NewCatalog(nil)
	}
	return &Cart{
		catalog: catalog,
		creator: creator,
		users:   users,
		newKey:  func() string { return xid.New("sale") },
	}
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int { return len(c.lines) }

// AddProduct adds one unit of product, or one more unit when the product is
// already in the cart.
func (c *Cart) AddProduct(product Product) error {
	if product.Stock <= 0 {
		return &ValidationError{Message: fmt.Sprintf("%s is out of stock", product.Name)}
	}
	for i := range c.lines {
		if c.lines[i].ProductID != product.ID {
			continue
		}
		if c.lines[i].Quantity+1 > product.Stock {
			return &ValidationError{Message: fmt.Sprintf("only %d units of %s available", product.Stock, product.Name)}
		}
		c.lines[i].Quantity++
		c.touch()
		return nil
	}

	c.lines = append(c.lines, Line{
		ProductID: product.ID,
		Name:      product.Name,
		Quantity:  1,
		UnitPrice: product.Price,
	})
	c.touch()
	return nil
}

// UpdateQuantity sets a line's quantity clamped to [1, snapshot stock]. A line
// whose snapshot stock is zero or unknown is forced to 1 with a warning.
func (c *Cart) UpdateQuantity(index, requested int) (Warning, error) {
	if index < 0 || index >= len(c.lines) {
		return "", &ValidationError{Message: "cart line not found"}
	}
	line := &c.lines[index]
	stock := c.catalog.Stock(line.ProductID)

	var warning Warning
	switch {
	case stock <= 0:
		line.Quantity = 1
		warning = Warning(fmt.Sprintf("%s has no stock on record; quantity kept at 1", line.Name))
		log.Printf("[cart] WARN: product %d has stock %d, quantity forced to 1", line.ProductID, stock)
	case requested < 1:
		line.Quantity = 1
	case requested > stock:
		line.Quantity = stock
	default:
		line.Quantity = requested
	}
	c.touch()
	return warning, nil
}

// RemoveLine deletes the line at index. Out-of-range indexes are ignored.
func (c *Cart) RemoveLine(index int) {
	if index < 0 || index >= len(c.lines) {
		return
	}
	c.lines = append(c.lines[:index], c.lines[index+1:]...)
	c.touch()
}

func (c *Cart) Clear() {
	c.lines = nil
	c.touch()
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// Validate checks every line against the snapshot taken at load time.
func (c *Cart) Validate() error {
	if len(c.lines) == 0 {
		return &ValidationError{Message: "add at least one product to the sale"}
	}
	for _, line := range c.lines {
		stock := c.catalog.Stock(line.ProductID)
		if stock <= 0 || line.Quantity > stock {
			return &InsufficientStockError{
				ProductID:   line.ProductID,
				ProductName: line.Name,
				Available:   stock,
				Requested:   line.Quantity,
			}
		}
	}
	return nil
}

// Request builds the sale payload. Total is the sum of the item subtotals.
func (c *Cart) Request() domain.SaleRequest {
	req := domain.SaleRequest{Items: make([]domain.SaleItemRequest, 0, len(c.lines))}
	if c.users != nil {
		req.UserID = c.users.UserID()
	}
	total := decimal.Zero
	for _, line := range c.lines {
		subtotal := line.Subtotal()
		req.Items = append(req.Items, domain.SaleItemRequest{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  subtotal,
		})
		total = total.Add(subtotal)
	}
	req.Total = total
	return req
}

// IdempotencyKey is stable for as long as the cart contents do not change, so
// resubmitting after a network failure cannot record the sale twice.
func (c *Cart) IdempotencyKey() string {
	if c.key == "" {
		c.key = c.newKey()
	}
	return c.key
}

// Submit validates, sends and on success clears the cart. On any failure the
// cart is left as it was.
func (c *Cart) Submit(ctx context.Context) (domain.Sale, error) {
	if err := c.Validate(); err != nil {
		return domain.Sale{}, err
	}
	if c.creator == nil {
		return domain.Sale{}, fmt.Errorf("cart has no sale creator")
	}

	req := c.Request()
	if req.UserID == nil {
		log.Printf("[cart] WARN: submitting sale without a user id")
	}

	sale, replayed, err := c.creator.CreateSale(ctx, req, c.IdempotencyKey())
	if err != nil {
		return domain.Sale{}, err
	}
	if replayed {
		log.Printf("[cart] sale %d was already recorded, not duplicated", sale.ID)
	}
	c.Clear()
	return sale, nil
}

func (c *Cart) touch() {
	c.key = ""
}
