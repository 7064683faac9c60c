package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/internal/testutil"
	"marketplace/pkg/utils"
)

func TestCartService(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc := NewCartService(repository.NewRepositories(db))
	customer := testutil.CreateUser(t, db, "cathy", model.RoleCustomer, model.UserStatusActive, 0)
	_, shop := testutil.CreateTrader(t, db, "tom")
	pen := testutil.CreateProduct(t, db, shop.ID, "Pen", "2.50", 10)
	ink := testutil.CreateProduct(t, db, shop.ID, "Ink", "4.00", 1)

	require.NoError(t, svc.AddItem(ctx, customer.ID, &ItemRequest{ProductID: pen.ID, Quantity: 2}))
	require.NoError(t, svc.AddItem(ctx, customer.ID, &ItemRequest{ProductID: pen.ID, Quantity: 3}))
	require.NoError(t, svc.AddItem(ctx, customer.ID, &ItemRequest{ProductID: ink.ID, Quantity: 1}))

	view, err := svc.List(ctx, customer.ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, 5, view.Items[0].Quantity)
	assert.Equal(t, "16.50", view.Subtotal.StringFixed(2))
	assert.Empty(t, view.Unavailable)

	t.Run("Validation", func(t *testing.T) {
		assert.ErrorIs(t, svc.AddItem(ctx, customer.ID, &ItemRequest{ProductID: ink.ID, Quantity: 2}), utils.ErrStockNotEnough)
		assert.ErrorIs(t, svc.AddItem(ctx, customer.ID, &ItemRequest{ProductID: 999, Quantity: 1}), utils.ErrProductNotFound)
		assert.ErrorIs(t, svc.AddItem(ctx, customer.ID, &ItemRequest{ProductID: pen.ID, Quantity: 0}), utils.ErrInvalidParam)
		assert.ErrorIs(t, svc.UpdateQuantity(ctx, customer.ID, pen.ID, -1), utils.ErrInvalidParam)
	})

	t.Run("UnavailableLinesExcluded", func(t *testing.T) {
		require.NoError(t, db.Model(ink).Update("stock_quantity", 0).Error)
		view, err := svc.List(ctx, customer.ID)
		require.NoError(t, err)
		assert.Equal(t, []uint64{ink.ID}, view.Unavailable)
		assert.Equal(t, "12.50", view.Subtotal.StringFixed(2))
	})

	require.NoError(t, svc.UpdateQuantity(ctx, customer.ID, pen.ID, 1))
	require.NoError(t, svc.UpdateQuantity(ctx, customer.ID, ink.ID, 0))
	assert.ErrorIs(t, svc.RemoveItem(ctx, customer.ID, ink.ID), utils.ErrProductNotFound)

	view, err = svc.List(ctx, customer.ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 1, view.Items[0].Quantity)

	require.NoError(t, svc.Clear(ctx, customer.ID))
	view, err = svc.List(ctx, customer.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.True(t, view.Subtotal.IsZero())
}
