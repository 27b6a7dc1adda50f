package orders

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	t.Parallel()

	for _, tok := range []string{"Pending", "Delivered", "Cancelled"} {
		s, err := ParseStatus(tok)
		require.NoError(t, err)
		assert.Equal(t, Status(tok), s)
	}

	for _, tok := range []string{"", "pending", "CANCELLED", "Shipped", " Pending"} {
		_, err := ParseStatus(tok)
		require.Error(t, err, "token %q", tok)
		assert.ErrorIs(t, err, ErrValidation)

		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "status", ve.Field)
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusDelivered, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusPending, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusDelivered, StatusPending, false},
		{StatusCancelled, StatusDelivered, false},
		{StatusCancelled, StatusPending, false},
		{Status("Bogus"), StatusDelivered, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, Status("Bogus").Terminal())
}
