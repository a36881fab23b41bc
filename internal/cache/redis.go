package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"benchboard/internal/config"
)

// SnapshotCache holds the latest team snapshots as encoded JSON so reads can
// be served without touching durable storage. The store stays the source of
// truth; a cache miss is never an error for callers.
type SnapshotCache interface {
	// GetLatest retrieves a team's cached snapshot
	GetLatest(ctx context.Context, teamID string) ([]byte, error)

	// SetLatest stores a team's snapshot with an optional TTL
	SetLatest(ctx context.Context, teamID string, snapshot []byte, ttl time.Duration) error

	// Ping tests the connection to the cache
	Ping(ctx context.Context) error

	// Close releases resources used by the cache
	Close() error
}

// ErrCacheMiss is returned when a team has no cached snapshot
var ErrCacheMiss = fmt.Errorf("cache miss")

// RedisCache implements the SnapshotCache interface using Redis
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(config config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})

	// Verify the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("Failed to connect to Redis")
		return nil, err
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = "benchboard"
	}

	log.Info().
		Str("address", config.Address).
		Str("prefix", prefix).
		Int("db", config.DB).
		Msg("Redis snapshot cache initialized")

	return &RedisCache{
		client: client,
		prefix: prefix,
	}, nil
}

func (c *RedisCache) snapshotKey(teamID string) string {
	return c.prefix + ":latest:" + teamID
}

// GetLatest retrieves a team's cached snapshot
func (c *RedisCache) GetLatest(ctx context.Context, teamID string) ([]byte, error) {
	key := c.snapshotKey(teamID)

	start := time.Now()
	result, err := c.client.Get(ctx, key).Bytes()
	duration := time.Since(start)

	if err == redis.Nil {
		log.Debug().
			Str("key", key).
			Dur("duration", duration).
			Msg("Snapshot cache miss")
		return nil, ErrCacheMiss
	} else if err != nil {
		log.Error().
			Err(err).
			Str("key", key).
			Dur("duration", duration).
			Msg("Error getting snapshot from Redis")
		return nil, err
	}

	log.Debug().
		Str("key", key).
		Int("size", len(result)).
		Dur("duration", duration).
		Msg("Snapshot cache hit")

	return result, nil
}

// SetLatest stores a team's snapshot with an optional TTL
func (c *RedisCache) SetLatest(ctx context.Context, teamID string, snapshot []byte, ttl time.Duration) error {
	key := c.snapshotKey(teamID)

	start := time.Now()
	err := c.client.Set(ctx, key, snapshot, ttl).Err()
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("key", key).
			Int("size", len(snapshot)).
			Dur("duration", duration).
			Msg("Error caching snapshot in Redis")
		return err
	}

	log.Debug().
		Str("key", key).
		Int("size", len(snapshot)).
		Dur("duration", duration).
		Msg("Successfully cached snapshot")

	return nil
}

// Ping tests the connection to the cache
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases resources used by the cache
func (c *RedisCache) Close() error {
	log.Info().Msg("Closing Redis cache connection")
	return c.client.Close()
}
