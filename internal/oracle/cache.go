package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"impactledger/pkg/domain"
)

const rateKeyPrefix = "oracle:rate:"

// RedisCache fronts a RateSource with a shared, TTL-bounded rate cache. A Redis
// failure falls through to the wrapped source.
type RedisCache struct {
	client  redis.Cmdable
	next    RateSource
	ttl     time.Duration
	logger  *slog.Logger
	metrics Metrics
}

type CacheOption func(*RedisCache)

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *RedisCache) { c.logger = logger }
}

func WithCacheMetrics(m Metrics) CacheOption {
	return func(c *RedisCache) { c.metrics = m }
}

func NewRedisCache(client redis.Cmdable, next RateSource, ttl time.Duration, opts ...CacheOption) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	c := &RedisCache{client: client, next: next, ttl: ttl, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) Rate(ctx context.Context, currency domain.Currency) (decimal.Decimal, error) {
	key := rateKeyPrefix + currency.String()

	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if rate, perr := decimal.NewFromString(raw); perr == nil {
			c.observe("hit")
			return rate, nil
		}
		c.logger.WarnContext(ctx, "discarding malformed cached rate", "currency", currency)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.WarnContext(ctx, "rate cache read failed", "currency", currency, "error", err)
	}
	c.observe("miss")

	rate, err := c.next.Rate(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.client.Set(ctx, key, rate.String(), c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "rate cache write failed", "currency", currency, "error", err)
	}
	return rate, nil
}

func (c *RedisCache) observe(outcome string) {
	if c.metrics != nil {
		c.metrics.IncrementOracleLookup("redis", outcome)
	}
}
