package cart

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bioclinics/backoffice/internal/domain"
)

type fakeCreator struct {
	requests []domain.SaleRequest
	keys     []string
	err      error
}

func (f *fakeCreator) CreateSale(_ context.Context, req domain.SaleRequest, key string) (domain.Sale, bool, error) {
	f.requests = append(f.requests, req)
	f.keys = append(f.keys, key)
	if f.err != nil {
		return domain.Sale{}, false, f.err
	}
	return domain.Sale{ID: int64(len(f.requests)), Total: req.Total}, false, nil
}

type fixedUser struct{ id *int64 }

func (f fixedUser) UserID() *int64 { return f.id }

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestCart(products ...Product) (*Cart, *fakeCreator) {
	creator := &fakeCreator{}
	id := int64(3)
	c := New(NewCatalog(products), creator, fixedUser{id: &id})
	seq := 0
	c.newKey = func() string {
		seq++
		return "key-" + strconv.Itoa(seq)
	}
	return c, creator
}

func TestCheckoutScenario(t *testing.T) {
	a := Product{ID: 1, Name: "A", Price: money("10.00"), Stock: 5}
	c, creator := newTestCart(a)

	require.NoError(t, c.AddProduct(a))
	require.Len(t, c.Lines(), 1)
	assert.Equal(t, 1, c.Lines()[0].Quantity)
	assert.True(t, c.Total().Equal(money("10")))

	require.NoError(t, c.AddProduct(a))
	assert.Equal(t, 2, c.Lines()[0].Quantity)
	assert.True(t, c.Total().Equal(money("20")))

	warning, err := c.UpdateQuantity(0, 10)
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.Equal(t, 5, c.Lines()[0].Quantity)
	assert.True(t, c.Total().Equal(money("50")))

	sale, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), sale.ID)
	require.Len(t, creator.requests, 1)

	req := creator.requests[0]
	require.Len(t, req.Items, 1)
	assert.Equal(t, int64(1), req.Items[0].ProductID)
	assert.Equal(t, 5, req.Items[0].Quantity)
	assert.True(t, req.Items[0].UnitPrice.Equal(money("10")))
	assert.True(t, req.Items[0].Subtotal.Equal(money("50")))
	assert.True(t, req.Total.Equal(money("50")))
	require.NotNil(t, req.UserID)
	assert.Equal(t, int64(3), *req.UserID)

	assert.Zero(t, c.Len())
}

func TestAddProductRejectsOutOfStockAndOverflow(t *testing.T) {
	empty := Product{ID: 8, Name: "Loratadina", Price: money("10"), Stock: 0}
	single := Product{ID: 2, Name: "Ibuprofeno", Price: money("12"), Stock: 1}
	c, _ := newTestCart(empty, single)

	var vErr *ValidationError
	require.ErrorAs(t, c.AddProduct(empty), &vErr)
	assert.Contains(t, vErr.Message, "Loratadina")
	assert.Zero(t, c.Len())

	require.NoError(t, c.AddProduct(single))
	require.ErrorAs(t, c.AddProduct(single), &vErr)
	assert.Equal(t, 1, c.Lines()[0].Quantity)
}

func TestAddNeverExceedsStock(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	products := []Product{
		{ID: 1, Name: "A", Price: money("1.25"), Stock: 3},
		{ID: 2, Name: "B", Price: money("4.10"), Stock: 1},
		{ID: 3, Name: "C", Price: money("0.99"), Stock: 7},
	}
	c, _ := newTestCart(products...)

	for i := 0; i < 200; i++ {
		_ = c.AddProduct(products[rng.Intn(len(products))])
		for _, line := range c.Lines() {
			assert.LessOrEqual(t, line.Quantity, c.catalog.Stock(line.ProductID))
			assert.GreaterOrEqual(t, line.Quantity, 1)
		}
		want := decimal.Zero
		for _, line := range c.Lines() {
			want = want.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}
		assert.True(t, c.Total().Equal(want))
	}
}

func TestUpdateQuantityClamps(t *testing.T) {
	p := Product{ID: 1, Name: "A", Price: money("3"), Stock: 4}
	for _, tc := range []struct{ requested, want int }{
		{-3, 1}, {0, 1}, {1, 1}, {3, 3}, {4, 4}, {99, 4},
	} {
		c, _ := newTestCart(p)
		require.NoError(t, c.AddProduct(p))
		_, err := c.UpdateQuantity(0, tc.requested)
		require.NoError(t, err)
		assert.Equal(t, tc.want, c.Lines()[0].Quantity, "requested %d", tc.requested)
	}
}

func TestUpdateQuantityOnZeroSnapshotStockWarns(t *testing.T) {
	live := Product{ID: 5, Name: "Jeringa", Price: money("2.5"), Stock: 3}
	c, _ := newTestCart(Product{ID: 5, Name: "Jeringa", Price: money("2.5"), Stock: 0})
	// The line was added from a fresher listing than the snapshot.
	require.NoError(t, c.AddProduct(live))

	warning, err := c.UpdateQuantity(0, 3)
	require.NoError(t, err)
	assert.NotEmpty(t, warning)
	assert.Equal(t, 1, c.Lines()[0].Quantity)

	_, err = c.UpdateQuantity(4, 1)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestRemoveLine(t *testing.T) {
	a := Product{ID: 1, Name: "A", Price: money("1"), Stock: 2}
	b := Product{ID: 2, Name: "B", Price: money("2"), Stock: 2}
	c, _ := newTestCart(a, b)
	require.NoError(t, c.AddProduct(a))
	require.NoError(t, c.AddProduct(b))

	c.RemoveLine(7)
	assert.Equal(t, 2, c.Len())
	c.RemoveLine(0)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, int64(2), c.Lines()[0].ProductID)
}

func TestSubmitFailsOnStaleSnapshotAndKeepsCart(t *testing.T) {
	live := Product{ID: 1, Name: "Paracetamol", Price: money("8.5"), Stock: 10}
	c, creator := newTestCart(Product{ID: 1, Name: "Paracetamol", Price: money("8.5"), Stock: 1})
	require.NoError(t, c.AddProduct(live))
	require.NoError(t, c.AddProduct(live))

	_, err := c.Submit(context.Background())
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Paracetamol", stockErr.ProductName)
	assert.Contains(t, err.Error(), "Paracetamol")
	assert.Empty(t, creator.requests)
	assert.Equal(t, 2, c.Lines()[0].Quantity)
}

func TestSubmitEmptyCart(t *testing.T) {
	c, _ := newTestCart()
	_, err := c.Submit(context.Background())
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestSubmitNetworkFailureKeepsCartAndKey(t *testing.T) {
	p := Product{ID: 1, Name: "A", Price: money("10"), Stock: 5}
	c, creator := newTestCart(p)
	require.NoError(t, c.AddProduct(p))
	creator.err = errors.New("connection refused")

	_, err := c.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, c.Len())

	creator.err = nil
	_, err = c.Submit(context.Background())
	require.NoError(t, err)
	require.Len(t, creator.keys, 2)
	assert.Equal(t, creator.keys[0], creator.keys[1])
}

func TestIdempotencyKeyChangesWithContents(t *testing.T) {
	p := Product{ID: 1, Name: "A", Price: money("10"), Stock: 5}
	c, _ := newTestCart(p)
	require.NoError(t, c.AddProduct(p))
	first := c.IdempotencyKey()
	assert.Equal(t, first, c.IdempotencyKey())

	require.NoError(t, c.AddProduct(p))
	assert.NotEqual(t, first, c.IdempotencyKey())
}

func TestSubmitWithoutUser(t *testing.T) {
	p := Product{ID: 1, Name: "A", Price: money("10"), Stock: 5}
	creator := &fakeCreator{}
	c := New(NewCatalog([]Product{p}), creator, fixedUser{})
	require.NoError(t, c.AddProduct(p))

	_, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Nil(t, creator.requests[0].UserID)
}

func TestFromDomainSkipsInactive(t *testing.T) {
	catalog := FromDomain([]domain.Product{
		{ID: 1, Name: "Paracetamol", Price: money("8.5"), Stock: 120, IsActive: true},
		{ID: 2, Name: "Retirado", Price: money("1"), Stock: 5, IsActive: false},
	})
	_, ok := catalog.Get(2)
	assert.False(t, ok)
	assert.Equal(t, 120, catalog.Stock(1))
	assert.Len(t, catalog.Search("para"), 1)
	assert.Len(t, catalog.Search(""), 1)
}
