package optimistic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bioclinics/backoffice/internal/domain"
)

func TestValueRollback(t *testing.T) {
	v := NewValue(true)
	v.Apply(false)
	assert.False(t, v.Get())
	assert.True(t, v.Pending())

	assert.True(t, v.Rollback())
	assert.True(t, v.Get())
	assert.False(t, v.Pending())
}

func TestValueUpdate(t *testing.T) {
	ctx := context.Background()
	v := NewValue("draft")

	err := v.Update(ctx, "published", func(context.Context, string) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "published", v.Get())

	boom := errors.New("503")
	err = v.Update(ctx, "archived", func(_ context.Context, next string) error {
		assert.Equal(t, "archived", v.Get())
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "published", v.Get())

	v.Apply("local")
	v.ConfirmWith("server")
	assert.Equal(t, "server", v.Get())
	assert.Equal(t, "server", v.Rollback())
}

func productList() *List[int64, domain.Product] {
	return NewList(
		[]domain.Product{{ID: 1, Name: "Paracetamol", IsActive: true}, {ID: 2, Name: "Ibuprofeno", IsActive: false}},
		func(p domain.Product) int64 { return p.ID },
		func(p domain.Product) bool { return p.IsActive },
		func(p domain.Product, active bool) domain.Product { p.IsActive = active; return p },
	)
}

func TestToggleAppliesBeforeConfirm(t *testing.T) {
	list := productList()
	err := list.Toggle(context.Background(), 1, func(_ context.Context, id int64, active bool) error {
		assert.Equal(t, int64(1), id)
		assert.False(t, active)
		assert.False(t, list.Rows()[0].IsActive)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, list.Rows()[0].IsActive)
}

func TestToggleRestoresOnFailure(t *testing.T) {
	list := productList()
	err := list.Toggle(context.Background(), 2, func(context.Context, int64, bool) error {
		return errors.New("forbidden")
	})
	require.Error(t, err)
	assert.False(t, list.Rows()[1].IsActive)
	assert.True(t, list.Rows()[0].IsActive)
}

func TestToggleUnknownRow(t *testing.T) {
	called := false
	err := productList().Toggle(context.Background(), 99, func(context.Context, int64, bool) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}
