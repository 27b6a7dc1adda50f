package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-order-inventory/internal/orders"
	"github.com/redis/go-redis/v9"
	"time"
)

type StatusEntry struct {
	OrderID   string        `json:"order_id"`
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StatusCache is a read-through shortcut for order status lookups. Postgres
// stays the source of truth; entries expire after TTLStatusCache.
type StatusCache struct {
	rdb *redis.Client
}

func NewStatusCache(rdb *redis.Client) *StatusCache { return &StatusCache{rdb: rdb} }

func (c *StatusCache) Get(ctx context.Context, orderID string) (StatusEntry, bool, error) {
	b, err := c.rdb.Get(ctx, statusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StatusEntry{}, false, nil
	}
	if err != nil {
		return StatusEntry{}, false, fmt.Errorf("get status cache: %w", err)
	}
	var e StatusEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return StatusEntry{}, false, fmt.Errorf("decode status cache: %w", err)
	}
	return e, true, nil
}

// Set overwrites the entry. Use it after a committed write.
func (c *StatusCache) Set(ctx context.Context, o orders.Order) error {
	b, err := encodeStatus(o)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statusKey(o.ID), b, TTLStatusCache).Err()
}

// Fill stores a status read from Postgres only when no entry exists, so a
// slow read cannot overwrite what a later write cached.
func (c *StatusCache) Fill(ctx context.Context, o orders.Order) error {
	b, err := encodeStatus(o)
	if err != nil {
		return err
	}
	return c.rdb.SetNX(ctx, statusKey(o.ID), b, TTLStatusCache).Err()
}

func encodeStatus(o orders.Order) ([]byte, error) {
	return json.Marshal(StatusEntry{OrderID: o.ID, Status: o.Status, UpdatedAt: o.UpdatedAt})
}

type Idempotency struct {
	rdb *redis.Client
}

func NewIdempotency(rdb *redis.Client) *Idempotency { return &Idempotency{rdb: rdb} }

func (i *Idempotency) Lookup(ctx context.Context, ownerID, key string) (string, bool, error) {
	id, err := i.rdb.Get(ctx, idemKey(ownerID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get idempotency key: %w", err)
	}
	return id, true, nil
}

func (i *Idempotency) Remember(ctx context.Context, ownerID, key, orderID string) error {
	return i.rdb.Set(ctx, idemKey(ownerID, key), orderID, TTLIdempotency).Err()
}

type Dedup struct {
	rdb     *redis.Client
	service string
}

func NewDedup(rdb *redis.Client, service string) *Dedup {
	return &Dedup{rdb: rdb, service: service}
}

// Claim returns true for the first caller with this id within TTLDedup.
func (d *Dedup) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, dedupKey(d.service, id), time.Now().UTC().Format(time.RFC3339), TTLDedup).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", id, err)
	}
	return ok, nil
}

// Forget drops a claim so a redelivered event is processed again.
func (d *Dedup) Forget(ctx context.Context, id string) error {
	return d.rdb.Del(ctx, dedupKey(d.service, id)).Err()
}
