// Package cache keeps recent market data in Redis so several processes,
// or a quick restart, share one set of exchange reads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/kjannette/microtrend-backend/internal/metrics"
	"github.com/kjannette/microtrend-backend/internal/models"
)

const keyPrefix = "microtrend:"

// Source is the market data the cache sits in front of.
type Source interface {
	Candles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
	MarkPrice(ctx context.Context, symbol string) (float64, error)
	FundingRate(ctx context.Context, symbol string) (float64, error)
}

type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Logger   *zap.Logger
}

// CandleCache caches candles and funding rates. Mark prices always go to
// the source since grid fills trade on them. A nil client or any Redis
// error falls through to the source.
type CandleCache struct {
	src    Source
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewClient(opts Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// Ping checks the connection with a short timeout.
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

func NewCandleCache(src Source, client *redis.Client, ttl time.Duration, log *zap.Logger) *CandleCache {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CandleCache{src: src, client: client, ttl: ttl, log: log.Named("cache")}
}

func CandleKey(symbol, interval string, limit int) string {
	return fmt.Sprintf("%scandles:%s:%s:%d", keyPrefix, symbol, interval, limit)
}

func FundingKey(symbol string) string {
	return keyPrefix + "funding:" + symbol
}

func (c *CandleCache) Candles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	key := CandleKey(symbol, interval, limit)
	var cached []models.Candle
	if c.get(ctx, "candles", key, &cached) {
		return cached, nil
	}

	candles, err := c.src.Candles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	if len(candles) > 0 {
		c.set(ctx, key, candles)
	}
	return candles, nil
}

func (c *CandleCache) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	return c.src.MarkPrice(ctx, symbol)
}

func (c *CandleCache) FundingRate(ctx context.Context, symbol string) (float64, error) {
	key := FundingKey(symbol)
	if c.client != nil {
		s, err := c.client.Get(ctx, key).Result()
		switch {
		case err == nil:
			if rate, perr := strconv.ParseFloat(s, 64); perr == nil {
				metrics.CacheLookups.WithLabelValues("funding", "hit").Inc()
				return rate, nil
			}
		case errors.Is(err, redis.Nil):
			metrics.CacheLookups.WithLabelValues("funding", "miss").Inc()
		default:
			c.miss("funding", key, err)
		}
	}

	rate, err := c.src.FundingRate(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if c.client != nil {
		if err := c.client.Set(ctx, key, strconv.FormatFloat(rate, 'g', -1, 64), c.ttl).Err(); err != nil {
			c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return rate, nil
}

func (c *CandleCache) get(ctx context.Context, kind, key string, dest any) bool {
	if c.client == nil {
		return false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheLookups.WithLabelValues(kind, "miss").Inc()
		return false
	}
	if err != nil {
		c.miss(kind, key, err)
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.miss(kind, key, err)
		return false
	}
	metrics.CacheLookups.WithLabelValues(kind, "hit").Inc()
	return true
}

func (c *CandleCache) set(ctx context.Context, key string, value any) {
	if c.client == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *CandleCache) miss(kind, key string, err error) {
	metrics.CacheLookups.WithLabelValues(kind, "error").Inc()
	c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
}
