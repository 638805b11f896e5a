package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Replays stores confirmed-checkout payloads keyed by idempotency key, so a
// client retry after a masked commit gets its original confirmation back
// without touching the inventory store.
type Replays struct {
	client *redis.Client
}

func NewReplays(client *redis.Client) *Replays {
	return &Replays{client: client}
}

func (r *Replays) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, "idemp:"+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (r *Replays) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return r.client.Set(ctx, "idemp:"+key, payload, ttl).Err()
}
