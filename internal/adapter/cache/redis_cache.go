// Package cache is the Redis-backed read-through adapter for
// book views and pending-order lookups; it is an optimization, never
// the source of truth, so callers fall back to the registry/repo on a
// miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/nkrasner/ledger-exchange/internal/domain"
	"github.com/nkrasner/ledger-exchange/internal/port"
	"github.com/redis/go-redis/v9"
)

var _ port.Cache = (*RedisCache)(nil)

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr, password string, db int, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb, ttl: ttl}
}

func bookKey(symbol string) string { return "book:" + symbol }
func pendingKey(orderID int64) string {
	return "pending:" + strconv.FormatInt(orderID, 10)
}

func (c *RedisCache) SetBookView(ctx context.Context, symbol string, view *domain.BookView) error {
	b, err := json.Marshal(view)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, bookKey(symbol), b, c.ttl).Err()
}

func (c *RedisCache) GetBookView(ctx context.Context, symbol string) (*domain.BookView, bool, error) {
	b, err := c.client.Get(ctx, bookKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var view domain.BookView
	if err := json.Unmarshal(b, &view); err != nil {
		return nil, false, err
	}
	return &view, true, nil
}

func (c *RedisCache) SetPendingOrder(ctx context.Context, o *domain.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, pendingKey(o.ID), b, c.ttl).Err()
}

func (c *RedisCache) GetPendingOrder(ctx context.Context, orderID int64) (*domain.Order, bool, error) {
	b, err := c.client.Get(ctx, pendingKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var o domain.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, false, err
	}
	return &o, true, nil
}

func (c *RedisCache) InvalidatePendingOrder(ctx context.Context, orderID int64) error {
	return c.client.Del(ctx, pendingKey(orderID)).Err()
}
