package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/factlens/factlens/internal/circuitbreaker"
	"github.com/factlens/factlens/internal/metrics"
	"github.com/factlens/factlens/internal/models"
)

// Entry is a completed report stored under its request fingerprint.
type Entry struct {
	Text             string                   `json:"text"`
	GroundingSources []models.GroundingSource `json:"grounding_sources,omitempty"`
	ModelID          string                   `json:"model_id"`
	ReportKind       string                   `json:"report_kind"`
	CachedAt         time.Time                `json:"cached_at"`
}

// Store is the content-addressed report cache, backed by Redis behind a
// circuit breaker.
type Store struct {
	client *circuitbreaker.RedisWrapper
	logger *zap.Logger
	ttl    time.Duration
}

// NewStore connects to Redis and verifies the connection.
func NewStore(redisAddr string, ttl time.Duration, logger *zap.Logger) (*Store, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	client := circuitbreaker.NewRedisWrapper(redisClient, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newStore(client, ttl, logger), nil
}

// NewStoreWithClient wraps an existing Redis client; tests pass a miniredis
// connection here.
func NewStoreWithClient(redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *Store {
	return newStore(circuitbreaker.NewRedisWrapper(redisClient, logger), ttl, logger)
}

func newStore(client *circuitbreaker.RedisWrapper, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Store{client: client, logger: logger, ttl: ttl}
}

// Get returns the entry for key, or (nil, false) on a miss. A corrupt stored
// entry is deleted and reported as a miss, never as an error.
func (s *Store) Get(ctx context.Context, key string) (*Entry, bool) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err == redis.Nil {
		metrics.CacheMisses.Inc()
		return nil, false
	} else if err != nil {
		s.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		metrics.CacheMisses.Inc()
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("Deleting corrupt cache entry",
			zap.String("key", key),
			zap.Error(err),
		)
		if delErr := s.client.Del(ctx, s.redisKey(key)).Err(); delErr != nil {
			s.logger.Warn("Failed to delete corrupt cache entry", zap.Error(delErr))
		}
		metrics.CacheCorruptEntries.Inc()
		metrics.CacheMisses.Inc()
		return nil, false
	}

	metrics.CacheHits.Inc()
	return &entry, true
}

// Put stores an entry under key with the store TTL.
func (s *Store) Put(ctx context.Context, key string, entry Entry) error {
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := s.client.Set(ctx, s.redisKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.redisKey(key)).Err()
}

// Close closes the underlying Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) redisKey(key string) string {
	return fmt.Sprintf("report:%s", key)
}
