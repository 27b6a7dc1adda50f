package postgres

import (
	"errors"
	"github.com/ariefcatur/go-order-inventory/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestParseIsolation(t *testing.T) {
	cases := map[string]pgx.TxIsoLevel{
		"":                pgx.ReadCommitted,
		"read committed":  pgx.ReadCommitted,
		"Repeatable Read": pgx.RepeatableRead,
		" serializable ":  pgx.Serializable,
	}
	for in, want := range cases {
		got, err := ParseIsolation(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseIsolation("snapshot")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", nil))

	for _, code := range []string{codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable} {
		err := classify("set stock", &pgconn.PgError{Code: code})
		var ce *orders.ConflictError
		require.True(t, errors.As(err, &ce), code)
		assert.ErrorIs(t, err, orders.ErrConflict)
		assert.Contains(t, err.Error(), "set stock")
	}

	err := classify("insert order", &pgconn.PgError{Code: codeUniqueViolation})
	assert.NotErrorIs(t, err, orders.ErrConflict)
	assert.True(t, isUniqueViolation(err))

	plain := classify("list", errors.New("boom"))
	assert.EqualError(t, plain, "list: boom")
}
