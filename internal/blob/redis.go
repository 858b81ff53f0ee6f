package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RedisConfig contains Redis store configuration
type RedisConfig struct {
	URL       string
	PoolSize  int
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore keeps blobs in Redis so several front-end replicas can serve
// the same download links. Keys expire with the session TTL.
type RedisStore struct {
	client  *redis.Client
	config  RedisConfig
	logger  *zap.Logger
	puts    atomic.Int64
	revokes atomic.Int64
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, config RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}

	store := &RedisStore{
		client: redis.NewClient(opts),
		config: config,
		logger: logger,
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := store.client.Ping(pingCtx).Err(); err != nil {
		store.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Blob store connected",
		zap.String("redis_url", maskRedisURL(config.URL)),
		zap.Duration("ttl", config.TTL),
	)

	return store, nil
}

// Put stores data under a fresh reference
func (s *RedisStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	id := uuid.NewString()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(id),
		"data", data,
		"content_type", contentType,
		"created_at", time.Now().UnixNano(),
	)
	if s.config.TTL > 0 {
		pipe.Expire(ctx, s.key(id), s.config.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to store blob: %w", err)
	}

	s.puts.Add(1)
	s.logger.Debug("Blob stored", zap.String("blob_id", id), zap.Int("bytes", len(data)))
	return id, nil
}

// Get loads the blob behind id
func (s *RedisStore) Get(ctx context.Context, id string) (*Blob, error) {
	values, err := s.client.HMGet(ctx, s.key(id), "data", "content_type", "created_at").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load blob: %w", err)
	}

	data, ok := values[0].(string)
	if !ok {
		return nil, ErrNotFound
	}
	contentType, _ := values[1].(string)

	blob := &Blob{Data: []byte(data), ContentType: contentType}
	if raw, ok := values[2].(string); ok {
		var nanos int64
		if _, err := fmt.Sscan(raw, &nanos); err == nil {
			blob.CreatedAt = time.Unix(0, nanos)
		}
	}
	return blob, nil
}

// Touch restarts the key's expiry
func (s *RedisStore) Touch(ctx context.Context, id string) error {
	if s.config.TTL <= 0 {
		n, err := s.client.Exists(ctx, s.key(id)).Result()
		if err != nil {
			return fmt.Errorf("failed to touch blob: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	}

	ok, err := s.client.Expire(ctx, s.key(id), s.config.TTL).Result()
	if err != nil {
		return fmt.Errorf("failed to touch blob: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Revoke deletes the blob
func (s *RedisStore) Revoke(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to revoke blob: %w", err)
	}
	if n > 0 {
		s.revokes.Add(1)
	}
	return nil
}

// Stats returns counters kept by this process plus the live key count
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Puts: s.puts.Load(), Revokes: s.revokes.Load()}

	iter := s.client.Scan(ctx, 0, s.config.KeyPrefix+":blob:*", 0).Iterator()
	for iter.Next(ctx) {
		stats.Live++
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("failed to scan blob keys: %w", err)
	}
	return stats, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return s.config.KeyPrefix + ":blob:" + id
}

// maskRedisURL hides the password in a Redis URL for logging
func maskRedisURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	if at < 0 {
		return raw
	}
	userInfo := raw[:at]
	colon := strings.LastIndex(userInfo, ":")
	if colon < 0 || colon < strings.Index(userInfo, "//") {
		return raw
	}
	return userInfo[:colon+1] + "***" + raw[at:]
}
