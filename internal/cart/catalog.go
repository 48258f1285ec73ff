package cart

import (
	"strings"

	"github.com/shopspring/decimal"

	"bioclinics/backoffice/internal/domain"
)

// Product is the read-only view of a catalog product used while building a
// sale.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	Stock int
}

// Catalog is the stock snapshot taken when the sale screen loads. It is not
// refreshed while the cart is being built.
type Catalog struct {
	order    []int64
	products map[int64]Product
}

func NewCatalog(products []Product) *Catalog {
	c := &Catalog{products: make(map[int64]Product, len(products))}
	for _, p := range products {
		if _, seen := c.products[p.ID]; !seen {
			c.order = append(c.order, p.ID)
		}
		c.products[p.ID] = p
	}
	return c
}

// FromDomain snapshots the active products of a catalog listing.
func FromDomain(products []domain.Product) *Catalog {
	snapshot := make([]Product, 0, len(products))
	for _, p := range products {
		if !p.IsActive {
			continue
		}
		snapshot = append(snapshot, Product{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock})
	}
	return NewCatalog(snapshot)
}

func (c *Catalog) Get(id int64) (Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

// Stock returns the snapshot stock, or 0 for products outside the snapshot.
func (c *Catalog) Stock(id int64) int {
	return c.products[id].Stock
}

// Search filters the snapshot by a case-insensitive name match, keeping load
// order.
func (c *Catalog) Search(query string) []Product {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]Product, 0, len(c.order))
	for _, id := range c.order {
		p := c.products[id]
		if query == "" || strings.Contains(strings.ToLower(p.Name), query) {
			out = append(out, p)
		}
	}
	return out
}
