package orders

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	t.Run("typed errors unwrap to their kind", func(t *testing.T) {
		cases := []struct {
			err  error
			kind error
		}{
			{&ValidationError{Field: "items", Reason: "empty"}, ErrValidation},
			{ProductNotFound("p1"), ErrNotFound},
			{OrderNotFound("o1"), ErrNotFound},
			{&InsufficientStockError{ProductID: "p1", Requested: 5, Available: 2}, ErrInsufficientStock},
			{&InvalidTransitionError{From: StatusDelivered, To: StatusCancelled}, ErrInvalidTransition},
			{&ConflictError{}, ErrConflict},
			{&DispatchError{OrderID: "o1", Err: errors.New("broker down")}, ErrDispatch},
		}
		for _, c := range cases {
			wrapped := fmt.Errorf("outer: %w", c.err)
			assert.ErrorIs(t, wrapped, c.kind, c.err.Error())
		}
	})

	t.Run("conflict keeps the cause reachable", func(t *testing.T) {
		cause := errors.New("40001")
		err := &ConflictError{Attempts: 3, Err: &ConflictError{Err: cause}}
		assert.ErrorIs(t, err, ErrConflict)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "after 3 attempts")
	})

	t.Run("insufficient stock carries details", func(t *testing.T) {
		var err error = fmt.Errorf("reserve: %w", &InsufficientStockError{ProductID: "p2", Requested: 1000000, Available: 4})
		var ise *InsufficientStockError
		require.True(t, errors.As(err, &ise))
		assert.Equal(t, "p2", ise.ProductID)
		assert.Equal(t, 4, ise.Available)
	})
}

func TestTotalPrice(t *testing.T) {
	t.Parallel()

	lines := []OrderLine{
		{ProductID: "a", Quantity: 3, PriceAtPurchase: 100},
		{ProductID: "b", Quantity: 2, PriceAtPurchase: 50},
	}
	total, err := TotalPrice(lines)
	require.NoError(t, err)
	assert.Equal(t, int64(400), total)
	total, err = TotalPrice(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	_, err = TotalPrice([]OrderLine{
		{ProductID: "a", Quantity: MaxLineQty, PriceAtPurchase: math.MaxInt64 / MaxLineQty},
		{ProductID: "b", Quantity: 1, PriceAtPurchase: math.MaxInt64 / 2},
	})
	assert.ErrorIs(t, err, ErrValidation, "sum past int64 is rejected, not wrapped")

	p := NewOrderCreatedPayload(Order{ID: "o1", Lines: lines, TotalPrice: 400})
	require.Len(t, p.Items, 2)
	assert.Equal(t, int64(300), p.Items[0].LineTotal)
	assert.Equal(t, int64(400), p.TotalPrice)
}
