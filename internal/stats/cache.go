package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// generationKey counts invalidations. Summary keys embed the generation they
// were computed under, so one INCR retires all of them.
const generationKey = "moneta:stats:generation"

// Cache keeps computed summaries in Redis. A nil Cache computes every time.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache builds a summary cache whose entries live for ttl.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Invalidate retires every cached summary.
func (c *Cache) Invalidate(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("stats cache: invalidate: %w", err)
	}
	return nil
}

func (c *Cache) key(ctx context.Context, name string) (string, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		gen, err = 0, nil
	}
	if err != nil {
		return "", fmt.Errorf("stats cache: read generation: %w", err)
	}
	return fmt.Sprintf("moneta:stats:%s@%d", name, gen), nil
}

// Fetch returns the summary cached under name, or computes it. compute also
// reports whether its result may be stored; partial results are served but
// never cached. A Redis outage only costs the lookup.
func Fetch[T any](ctx context.Context, c *Cache, name string, compute func(context.Context) (T, bool, error)) (T, error) {
	if !c.enabled() {
		value, _, err := compute(ctx)
		return value, err
	}
	key, err := c.key(ctx, name)
	if err != nil {
		c.logger.Warn("stats cache unavailable", slog.String("summary", name), slog.Any("error", err))
		value, _, err := compute(ctx)
		return value, err
	}
	if value, ok := lookup[T](ctx, c, key); ok {
		return value, nil
	}
	value, cacheable, err := compute(ctx)
	if err != nil {
		return value, err
	}
	if cacheable {
		c.store(ctx, key, value)
	} else {
		c.logger.Debug("partial summary not cached", slog.String("summary", name))
	}
	return value, nil
}

func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false
	}
	if err != nil {
		c.logger.Warn("stats cache read failed", slog.String("key", key), slog.Any("error", err))
		return zero, false
	}
	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		c.logger.Warn("discarding unreadable stats entry", slog.String("key", key), slog.Any("error", err))
		return zero, false
	}
	return value, true
}

func (c *Cache) store(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err == nil {
		err = c.client.Set(ctx, key, payload, c.ttl).Err()
	}
	if err != nil {
		c.logger.Warn("stats cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}
