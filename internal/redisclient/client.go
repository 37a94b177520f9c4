package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/adjust_stock.lua
var adjustStockScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	stockTTL      time.Duration
	adjustScript  *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int, stockTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		stockTTL:      stockTTL,
		adjustScript:  redis.NewScript(adjustStockScript),
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// PingContext checks connectivity, for readiness probes
func (c *Client) PingContext(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func stockKey(variantID uuid.UUID) string {
	return fmt.Sprintf("stock:%s", variantID)
}

// SetStock overwrites the mirrored stock level of a variant
func (c *Client) SetStock(ctx context.Context, variantID uuid.UUID, level int) error {
	return c.rdb.Set(ctx, stockKey(variantID), level, c.stockTTL).Err()
}

// GetStock reads the mirrored level; ok is false when the variant is not mirrored
func (c *Client) GetStock(ctx context.Context, variantID uuid.UUID) (level int, ok bool, err error) {
	raw, err := c.rdb.Get(ctx, stockKey(variantID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	level, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt stock mirror for %s: %w", variantID, err)
	}
	return level, true, nil
}

// AdjustStock applies a signed delta atomically. Unmirrored variants are left alone and
// reported with ok=false so the caller can seed them from the database.
func (c *Client) AdjustStock(ctx context.Context, variantID uuid.UUID, delta int) (level int, ok bool, err error) {
	result, err := c.adjustScript.Run(ctx, c.rdb, []string{stockKey(variantID)},
		delta, c.stockTTL.Milliseconds()).Int64()
	if err != nil {
		return 0, false, fmt.Errorf("adjust stock script failed: %w", err)
	}
	if result < 0 {
		return 0, false, nil
	}
	return int(result), true, nil
}

// AcquireLock takes a named lock with TTL and returns the owner token, or "" if it is held
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// ReleaseLock drops the lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	return c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Err()
}
