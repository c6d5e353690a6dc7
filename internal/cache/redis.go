package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"crossarb/internal/model"
)

// RedisRateCache stores each pair's rate as a hash at "rate:{BASE/QUOTE}" with fields
// "rate" and "ts" (Unix nanoseconds), so the last known rate survives restarts.
type RedisRateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisRateCache connects and pings. A zero ttl keeps keys forever.
func NewRedisRateCache(ctx context.Context, opts *redis.Options, ttl time.Duration) (*RedisRateCache, error) {
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisRateCache{rdb: rdb, ttl: ttl}, nil
}

func rateKey(pair model.Pair) string {
	return "rate:" + pair.String()
}

func (c *RedisRateCache) Set(ctx context.Context, pair model.Pair, rate Rate) error {
	key := rateKey(pair)
	fields := map[string]interface{}{
		"rate": strconv.FormatFloat(rate.Value, 'f', -1, 64),
		"ts":   strconv.FormatInt(rate.At.UnixNano(), 10),
	}
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set rate %s: %w", pair, err)
	}
	return nil
}

func (c *RedisRateCache) Get(ctx context.Context, pair model.Pair) (Rate, error) {
	vals, err := c.rdb.HGetAll(ctx, rateKey(pair)).Result()
	if err != nil {
		return Rate{}, fmt.Errorf("redis: get rate %s: %w", pair, err)
	}
	rateStr, ok := vals["rate"]
	if !ok {
		return Rate{}, ErrNotFound
	}
	value, err := strconv.ParseFloat(rateStr, 64)
	if err != nil {
		return Rate{}, fmt.Errorf("redis: parse rate %s: %w", pair, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return Rate{}, fmt.Errorf("redis: parse ts %s: %w", pair, err)
	}
	return Rate{Value: value, At: time.Unix(0, tsNano)}, nil
}

// Close closes the Redis connection.
func (c *RedisRateCache) Close() error {
	return c.rdb.Close()
}
