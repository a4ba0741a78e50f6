package repository

import (
	"context"
	"fmt"

	domrepo "DepthWatch/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

// RedisConfigStore loads runtime detection overrides from a Redis
// hash. Operators tweak thresholds by setting hash fields; the
// detector re-reads them on startup and on demand.
type RedisConfigStore struct {
	cli *redis.Client
	key string
}

func NewRedisConfigStore(cli *redis.Client, key string) *RedisConfigStore {
	if key == "" {
		key = "depthwatch:detection:params"
	}
	return &RedisConfigStore{cli: cli, key: key}
}

func (s *RedisConfigStore) Load(ctx context.Context) (map[string]string, error) {
	kv, err := s.cli.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("config store hgetall %s: %w", s.key, err)
	}
	return kv, nil
}

var _ domrepo.ConfigStore = (*RedisConfigStore)(nil)
