// Package cache is a small JSON read-through cache over Redis. Entries
// expire by TTL only; writers never purge them, so a reader may see a list
// that is up to one TTL old.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stuffr/marketplace/internal/config"
)

const defaultTTL = 60 * time.Second

// Gateway wraps a Redis client. A Gateway without a client is valid: every
// Get misses and every Set is dropped, so the service keeps working when
// Redis is down at startup.
type Gateway struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	log    *slog.Logger
}

// New builds a Gateway. rdb may be nil.
func New(rdb *redis.Client, cfg config.CacheConfig, log *slog.Logger) *Gateway {
	if !cfg.Enabled {
		rdb = nil
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "cached"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{rdb: rdb, prefix: prefix, ttl: ttl, log: log}
}

// Enabled reports whether a Redis client is attached.
func (g *Gateway) Enabled() bool { return g.rdb != nil }

// TTL is the default entry lifetime.
func (g *Gateway) TTL() time.Duration { return g.ttl }

// Key builds a stable key from parts: prefix:sha1(part1:part2:...).
func (g *Gateway) Key(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%x", g.prefix, sum[:])
}

// Get loads key into dst. found is false on a miss.
func (g *Gateway) Get(ctx context.Context, key string, dst any) (found bool, err error) {
	if g.rdb == nil {
		return false, nil
	}
	bs, err := g.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache.Get: %w", err)
	}
	if err := json.Unmarshal(bs, dst); err != nil {
		return false, fmt.Errorf("cache.Get: decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v as JSON. A ttl <= 0 means the gateway default.
func (g *Gateway) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	if g.rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = g.ttl
	}
	bs, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache.Set: encode: %w", err)
	}
	if err := g.rdb.Set(ctx, key, bs, ttl).Err(); err != nil {
		return fmt.Errorf("cache.Set: %w", err)
	}
	return nil
}

func (g *Gateway) Delete(ctx context.Context, keys ...string) error {
	if g.rdb == nil || len(keys) == 0 {
		return nil
	}
	if err := g.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache.Delete: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (g *Gateway) Close() error {
	if g.rdb == nil {
		return nil
	}
	return g.rdb.Close()
}

// ReadThrough returns the cached value under key or computes it with load
// and caches the result. Cache failures are logged and never fail the call.
func ReadThrough[T any](ctx context.Context, g *Gateway, key string, load func(context.Context) (T, error)) (T, error) {
	var v T
	found, err := g.Get(ctx, key, &v)
	if err != nil {
		g.log.Warn("cache read failed", slog.String("key", key), slog.Any("err", err))
	}
	if found {
		return v, nil
	}

	v, err = load(ctx)
	if err != nil {
		return v, err
	}
	if err := g.Set(ctx, key, v, 0); err != nil {
		g.log.Warn("cache write failed", slog.String("key", key), slog.Any("err", err))
	}
	return v, nil
}
