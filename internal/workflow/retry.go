package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-order-inventory/internal/orders"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy bounds how often a transaction is re-run after a write
// conflict. Attempts counts the first run.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 20 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = 40 * p.BaseDelay
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.MaxInterval = p.MaxDelay
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.Attempts-1)), ctx)
}

// inTx runs fn in a fresh transaction, re-running it with exponential backoff
// while it fails with a conflict. Any other error stops immediately. Spent
// retries surface as a ConflictError carrying the attempt count.
func (w *Workflow) inTx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := w.repo.WithTx(ctx, fn)
		if err == nil || errors.Is(err, orders.ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, w.retry.backOff(ctx), func(err error, next time.Duration) {
		w.logger.Warn("tx conflict, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	})
	if err != nil && errors.Is(err, orders.ErrConflict) {
		return &orders.ConflictError{Attempts: attempts, Err: err}
	}
	return err
}
