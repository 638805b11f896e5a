package idempotency

import (
	"context"
	"encoding/json"
	"time"

	redisadapter "github.com/ticketline/booking/internal/adapters/redis"
	"github.com/ticketline/booking/internal/booking"
)

// Cache is a Redis-backed booking.ReplayCache. It only accelerates replays;
// the unique constraint on the bookings table remains the source of truth.
type Cache struct {
	replays *redisadapter.Replays
	ttl     time.Duration
}

func NewCache(replays *redisadapter.Replays, ttl time.Duration) *Cache {
	return &Cache{replays: replays, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, key string) (*booking.Confirmation, error) {
	payload, err := c.replays.Get(ctx, key)
	if err != nil || payload == nil {
		return nil, err
	}
	var conf booking.Confirmation
	if err := json.Unmarshal(payload, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Cache) Set(ctx context.Context, key string, conf booking.Confirmation) error {
	payload, err := json.Marshal(conf)
	if err != nil {
		return err
	}
	return c.replays.Set(ctx, key, payload, c.ttl)
}
