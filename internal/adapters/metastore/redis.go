package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
)

// DefaultKeyPrefix namespaces metadata keys.
const DefaultKeyPrefix = "datachat:meta:"

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration // zero keeps keys forever
}

// RedisStore implements ports.MetaStore on Redis string keys.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects and pings Redis.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{rdb: rdb, prefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

func (s *RedisStore) key(session string) string { return s.prefix + session }

// Get returns the metadata stored for session.
func (s *RedisStore) Get(ctx context.Context, session string) (entities.DatasetMeta, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(session)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entities.DatasetMeta{}, false, nil
	}
	if err != nil {
		return entities.DatasetMeta{}, false, fmt.Errorf("redis get: %w", err)
	}
	var meta entities.DatasetMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return entities.DatasetMeta{}, false, fmt.Errorf("decoding meta for %s: %w", session, err)
	}
	return meta, true, nil
}

// Put stores meta for session, refreshing the TTL.
func (s *RedisStore) Put(ctx context.Context, session string, meta entities.DatasetMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding meta: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(session), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes session.
func (s *RedisStore) Delete(ctx context.Context, session string) error {
	if err := s.rdb.Del(ctx, s.key(session)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
