package dedupe

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares the seen set between worker instances. Keys expire after TTL
// so the set stays bounded. The client is resolved per call because the
// holder may replace it after a failed health check.
type Redis struct {
	Client    func() redis.UniversalClient
	Namespace string
	TTL       time.Duration
}

func NewRedis(namespace string, ttl time.Duration, client func() redis.UniversalClient) *Redis {
	return &Redis{
		Namespace: namespace,
		TTL:       ttl,
		Client:    client,
	}
}

func (r *Redis) key(key string) string { return r.Namespace + ":" + key }

func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	n, err := r.Client().Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) Mark(ctx context.Context, key string) error {
	return r.Client().Set(ctx, r.key(key), time.Now().Unix(), r.TTL).Err()
}
