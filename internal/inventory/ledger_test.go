package inventory

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ariefcatur/go-order-inventory/internal/orders"
	"github.com/ariefcatur/go-order-inventory/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore() *testutil.MemStore {
	return testutil.NewMemStore(
		orders.Product{ID: "p1", Name: "Keyboard", StockQuantity: 10, UnitPrice: 100},
		orders.Product{ID: "p2", Name: "Mouse", StockQuantity: 3, UnitPrice: 50},
		orders.Product{ID: "p3", Name: "Cable", StockQuantity: 0, UnitPrice: 10},
	)
}

func TestLedger_TryReserve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("decrements and snapshots price", func(t *testing.T) {
		store := newStore()
		l := NewLedger(store)

		r, err := l.TryReserve(ctx, "p1", 4)
		require.NoError(t, err)
		assert.Equal(t, orders.Reservation{ProductID: "p1", ProductName: "Keyboard", Quantity: 4, UnitPrice: 100, Remaining: 6}, r)
		assert.Equal(t, 6, store.Stock("p1"))
	})

	t.Run("reserving the last unit flips out of stock", func(t *testing.T) {
		store := newStore()
		l := NewLedger(store)

		_, err := l.TryReserve(ctx, "p2", 3)
		require.NoError(t, err)
		p, _ := store.Product("p2")
		assert.Equal(t, 0, p.StockQuantity)
		assert.True(t, p.IsOutOfStock)
	})

	t.Run("insufficient stock leaves quantity untouched", func(t *testing.T) {
		store := newStore()
		l := NewLedger(store)

		_, err := l.TryReserve(ctx, "p2", 4)
		var ise *orders.InsufficientStockError
		require.True(t, errors.As(err, &ise))
		assert.Equal(t, "p2", ise.ProductID)
		assert.Equal(t, 3, ise.Available)
		assert.Equal(t, 3, store.Stock("p2"))
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := NewLedger(newStore()).TryReserve(ctx, "nope", 1)
		assert.ErrorIs(t, err, orders.ErrNotFound)
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		_, err := NewLedger(newStore()).TryReserve(ctx, "p1", 0)
		assert.ErrorIs(t, err, orders.ErrValidation)
	})
}

func TestLedger_TryReserveAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("reserves every line", func(t *testing.T) {
		store := newStore()
		l := NewLedger(store)

		rs, err := l.TryReserveAll(ctx, []orders.LineInput{{ProductID: "p2", Qty: 1}, {ProductID: "p1", Qty: 2}})
		require.NoError(t, err)
		require.Len(t, rs, 2)
		assert.Equal(t, "p2", rs[0].ProductID, "reservations keep request order")
		assert.Equal(t, int64(50), rs[0].UnitPrice)
		assert.Equal(t, "p1", rs[1].ProductID)
		assert.Equal(t, 8, store.Stock("p1"))
		assert.Equal(t, 2, store.Stock("p2"))
	})

	t.Run("one short line rejects the whole batch", func(t *testing.T) {
		store := newStore()
		l := NewLedger(store)

		_, err := l.TryReserveAll(ctx, []orders.LineInput{{ProductID: "p1", Qty: 5}, {ProductID: "p2", Qty: 1000000}})
		var ise *orders.InsufficientStockError
		require.True(t, errors.As(err, &ise))
		assert.Equal(t, "p2", ise.ProductID)
		assert.Equal(t, 3, ise.Available)
		assert.Equal(t, 10, store.Stock("p1"), "p1 must not be partially decremented")
		assert.Equal(t, 3, store.Stock("p2"))
	})

	t.Run("repeated product lines are checked against their sum", func(t *testing.T) {
		store := newStore()
		l := NewLedger(store)

		_, err := l.TryReserveAll(ctx, []orders.LineInput{{ProductID: "p2", Qty: 2}, {ProductID: "p2", Qty: 2}})
		var ise *orders.InsufficientStockError
		require.True(t, errors.As(err, &ise))
		assert.Equal(t, 4, ise.Requested)
		assert.Equal(t, 3, store.Stock("p2"))

		rs, err := l.TryReserveAll(ctx, []orders.LineInput{{ProductID: "p2", Qty: 2}, {ProductID: "p2", Qty: 1}})
		require.NoError(t, err)
		require.Len(t, rs, 2)
		assert.Equal(t, 0, store.Stock("p2"))
	})

	t.Run("missing product aborts before any write", func(t *testing.T) {
		store := newStore()
		l := NewLedger(store)

		_, err := l.TryReserveAll(ctx, []orders.LineInput{{ProductID: "p1", Qty: 1}, {ProductID: "ghost", Qty: 1}})
		assert.ErrorIs(t, err, orders.ErrNotFound)
		assert.Equal(t, 10, store.Stock("p1"))
	})

	t.Run("quantities that would wrap the sum are rejected", func(t *testing.T) {
		store := newStore()
		l := NewLedger(store)

		_, err := l.TryReserveAll(ctx, []orders.LineInput{
			{ProductID: "p1", Qty: math.MaxInt},
			{ProductID: "p1", Qty: math.MaxInt},
			{ProductID: "p1", Qty: 2},
		})
		assert.ErrorIs(t, err, orders.ErrValidation)

		_, err = l.TryReserveAll(ctx, []orders.LineInput{
			{ProductID: "p1", Qty: orders.MaxLineQty},
			{ProductID: "p1", Qty: 1},
		})
		assert.ErrorIs(t, err, orders.ErrValidation)
		assert.Equal(t, 10, store.Stock("p1"))
	})

	t.Run("empty batch", func(t *testing.T) {
		_, err := NewLedger(newStore()).TryReserveAll(ctx, nil)
		assert.ErrorIs(t, err, orders.ErrValidation)
	})

	t.Run("out of stock product", func(t *testing.T) {
		_, err := NewLedger(newStore()).TryReserveAll(ctx, []orders.LineInput{{ProductID: "p3", Qty: 1}})
		assert.ErrorIs(t, err, orders.ErrInsufficientStock)
	})
}

func TestLedger_Release(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("restock clears out of stock", func(t *testing.T) {
		store := newStore()
		l := NewLedger(store)

		require.NoError(t, l.Release(ctx, "p3", 2))
		p, _ := store.Product("p3")
		assert.Equal(t, 2, p.StockQuantity)
		assert.False(t, p.IsOutOfStock)
	})

	t.Run("release all skips deleted products", func(t *testing.T) {
		store := newStore()
		l := NewLedger(store)
		store.DeleteProduct("p2")

		skipped, err := l.ReleaseAll(ctx, []orders.OrderLine{
			{ProductID: "p2", Quantity: 1},
			{ProductID: "p1", Quantity: 2},
		})
		require.NoError(t, err)
		require.Len(t, skipped, 1)
		assert.Equal(t, "p2", skipped[0].ProductID)
		assert.Equal(t, 12, store.Stock("p1"))
	})

	t.Run("release rejects non-positive quantity", func(t *testing.T) {
		err := NewLedger(newStore()).Release(ctx, "p1", -1)
		assert.ErrorIs(t, err, orders.ErrValidation)
	})
}
