package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gamesync-backend/internal/config"
	"github.com/gamesync-backend/internal/domain"
)

// Cache provides a best-effort Redis cache for snapshots and balances.
// The database stays the sole source of truth: every write path invalidates,
// and a miss or a Redis fault falls through to PostgreSQL.
type Cache struct {
	client      *redis.Client
	snapshotTTL time.Duration
	balanceTTL  time.Duration
	logger      *slog.Logger
}

// NewCache creates a new Redis cache
func NewCache(cfg *config.RedisConfig, cacheCfg *config.CacheConfig, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{
		client:      client,
		snapshotTTL: cacheCfg.SnapshotTTL,
		balanceTTL:  cacheCfg.BalanceTTL,
		logger:      logger,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// snapshotKey returns the Redis key for a player's cached snapshot
func (c *Cache) snapshotKey(playerID int64) string {
	return fmt.Sprintf("player:%d:snapshot", playerID)
}

// balanceKey returns the Redis key for a player's cached balance
func (c *Cache) balanceKey(playerID int64) string {
	return fmt.Sprintf("player:%d:balance", playerID)
}

// GetSnapshot returns the cached snapshot, or nil on a miss
func (c *Cache) GetSnapshot(ctx context.Context, playerID int64) (*domain.Snapshot, error) {
	data, err := c.client.Get(ctx, c.snapshotKey(playerID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("getting cached snapshot: %w", err)
	}

	var snapshot domain.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decoding cached snapshot: %w", err)
	}
	return &snapshot, nil
}

// SetSnapshot caches a snapshot with the configured TTL
func (c *Cache) SetSnapshot(ctx context.Context, playerID int64, snapshot *domain.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.snapshotKey(playerID), data, c.snapshotTTL).Err(); err != nil {
		return fmt.Errorf("caching snapshot: %w", err)
	}
	return nil
}

// GetBalance returns the cached balance; ok is false on a miss
func (c *Cache) GetBalance(ctx context.Context, playerID int64) (int64, bool, error) {
	val, err := c.client.Get(ctx, c.balanceKey(playerID)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("getting cached balance: %w", err)
	}

	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("decoding cached balance: %w", err)
	}
	return balance, true, nil
}

// SetBalance caches a balance with the configured TTL
func (c *Cache) SetBalance(ctx context.Context, playerID, balance int64) error {
	key := c.balanceKey(playerID)
	if err := c.client.Set(ctx, key, strconv.FormatInt(balance, 10), c.balanceTTL).Err(); err != nil {
		return fmt.Errorf("caching balance: %w", err)
	}
	return nil
}

// InvalidatePlayer drops all cached entries for a player
func (c *Cache) InvalidatePlayer(ctx context.Context, playerID int64) error {
	pipe := c.client.Pipeline()
	pipe.Del(ctx, c.snapshotKey(playerID))
	pipe.Del(ctx, c.balanceKey(playerID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidating player cache: %w", err)
	}
	return nil
}
