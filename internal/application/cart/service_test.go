package cart_test

import (
	"context"
	"testing"

	appcart "github.com/Zhima-Mochi/minishop-storefront/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/sqlstore"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/sqlstore/sqlitetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopper = int64(3)

func newService(t *testing.T) (*appcart.Service, *sqlstore.Store) {
	t.Helper()
	s, _ := sqlitetest.Open(t)
	return appcart.NewService(s, s, nil), s
}

func quantityOf(t *testing.T, s *sqlstore.Store, productID int64) int {
	t.Helper()
	line, err := s.FindLine(context.Background(), shopper, productID)
	require.NoError(t, err)
	return line.Quantity
}

func TestAddAccumulatesWithinStock(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	mug := sqlitetest.Product(t, s, "Mug", "10.00", 5)

	require.NoError(t, svc.Add(ctx, shopper, mug.ID, 2))
	require.NoError(t, svc.Add(ctx, shopper, mug.ID, 3))
	assert.Equal(t, 5, quantityOf(t, s, mug.ID))

	err := svc.Add(ctx, shopper, mug.ID, 1)
	assert.ErrorIs(t, err, cart.ErrExceedsStock)
	assert.Equal(t, 5, quantityOf(t, s, mug.ID))

	assert.ErrorIs(t, svc.Add(ctx, shopper, mug.ID, 0), cart.ErrInvalidQuantity)
	assert.ErrorIs(t, svc.Add(ctx, shopper, 999, 1), catalog.ErrNotFound)
}

func TestAddRejectsSoldOutProduct(t *testing.T) {
	svc, s := newService(t)
	gone := sqlitetest.Product(t, s, "Gone", "1.00", 0)

	assert.ErrorIs(t, svc.Add(context.Background(), shopper, gone.ID, 1), cart.ErrOutOfStock)
}

func TestIncreaseAndDecrease(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	tee := sqlitetest.Product(t, s, "Tee", "5.50", 2)
	require.NoError(t, svc.Add(ctx, shopper, tee.ID, 1))

	require.NoError(t, svc.Increase(ctx, shopper, tee.ID))
	assert.Equal(t, 2, quantityOf(t, s, tee.ID))
	assert.ErrorIs(t, svc.Increase(ctx, shopper, tee.ID), cart.ErrExceedsStock)

	require.NoError(t, svc.Decrease(ctx, shopper, tee.ID))
	assert.Equal(t, 1, quantityOf(t, s, tee.ID))
	require.NoError(t, svc.Decrease(ctx, shopper, tee.ID))
	_, err := s.FindLine(ctx, shopper, tee.ID)
	assert.ErrorIs(t, err, cart.ErrNotFound)

	assert.ErrorIs(t, svc.Increase(ctx, shopper, tee.ID), cart.ErrNotFound)
}

func TestSetQuantityClampsAndChecksStock(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	mug := sqlitetest.Product(t, s, "Mug", "10.00", 4)
	require.NoError(t, svc.Add(ctx, shopper, mug.ID, 2))

	require.NoError(t, svc.SetQuantity(ctx, shopper, mug.ID, 0))
	assert.Equal(t, 1, quantityOf(t, s, mug.ID))

	require.NoError(t, svc.SetQuantity(ctx, shopper, mug.ID, 4))
	assert.Equal(t, 4, quantityOf(t, s, mug.ID))

	assert.ErrorIs(t, svc.SetQuantity(ctx, shopper, mug.ID, 5), cart.ErrExceedsStock)
	assert.Equal(t, 4, quantityOf(t, s, mug.ID))
}

func TestUpdateManyIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	mug := sqlitetest.Product(t, s, "Mug", "10.00", 4)
	tee := sqlitetest.Product(t, s, "Tee", "5.50", 1)
	require.NoError(t, svc.Add(ctx, shopper, mug.ID, 1))
	require.NoError(t, svc.Add(ctx, shopper, tee.ID, 1))

	err := svc.UpdateMany(ctx, shopper, map[int64]int{mug.ID: 3, tee.ID: 2})
	assert.ErrorIs(t, err, cart.ErrExceedsStock)
	assert.Equal(t, 1, quantityOf(t, s, mug.ID))

	require.NoError(t, svc.UpdateMany(ctx, shopper, map[int64]int{mug.ID: 3, tee.ID: -2}))
	assert.Equal(t, 3, quantityOf(t, s, mug.ID))
	assert.Equal(t, 1, quantityOf(t, s, tee.ID))
}

func TestViewTotalsAndClear(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	mug := sqlitetest.Product(t, s, "Mug", "10.00", 4)
	tee := sqlitetest.Product(t, s, "Tee", "5.55", 3)
	require.NoError(t, svc.Add(ctx, shopper, mug.ID, 2))
	require.NoError(t, svc.Add(ctx, shopper, tee.ID, 3))

	v, err := svc.View(ctx, shopper)
	require.NoError(t, err)
	assert.Len(t, v.Items, 2)
	assert.True(t, v.Total.Equal(decimal.RequireFromString("36.65")), v.Total.String())

	require.NoError(t, svc.Remove(ctx, shopper, tee.ID))
	assert.ErrorIs(t, svc.Remove(ctx, shopper, tee.ID), cart.ErrNotFound)

	require.NoError(t, svc.Clear(ctx, shopper))
	v, err = svc.View(ctx, shopper)
	require.NoError(t, err)
	assert.Empty(t, v.Items)
	assert.True(t, v.Total.IsZero())
}
