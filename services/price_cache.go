package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/UlisesFTP/pconstruct-pricing/models"
)

// PriceCache holds best price summaries in Redis under a per country, per
// component key. The cache is best effort: any Redis failure is logged and
// treated as a miss so the read path can fall through to the store.
type PriceCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewPriceCache(client *redis.Client, ttl time.Duration) *PriceCache {
	return &PriceCache{
		client: client,
		ttl:    ttl,
		logger: logrus.New(),
	}
}

func priceCacheKey(countryCode string, componentID int) string {
	return fmt.Sprintf("price:%s:%d", countryCode, componentID)
}

// Get returns the cached summary for a component, or (nil, false) on a miss.
func (c *PriceCache) Get(ctx context.Context, componentID int, countryCode string) (*models.BestPriceSummary, bool) {
	key := priceCacheKey(countryCode, componentID)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.WithFields(logrus.Fields{"key": key, "error": err}).Warn("Cache read failed, treating as miss")
		return nil, false
	}

	var summary models.BestPriceSummary
	if err := json.Unmarshal(payload, &summary); err != nil {
		c.logger.WithFields(logrus.Fields{"key": key, "error": err}).Warn("Cache entry corrupt, treating as miss")
		return nil, false
	}
	return &summary, true
}

// Set stores a summary with the configured TTL. Failures are logged only.
func (c *PriceCache) Set(ctx context.Context, summary *models.BestPriceSummary, countryCode string) {
	key := priceCacheKey(countryCode, summary.ComponentID)

	payload, err := json.Marshal(summary)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"key": key, "error": err}).Warn("Failed to encode cache entry")
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.WithFields(logrus.Fields{"key": key, "error": err}).Warn("Cache write failed")
	}
}

// Invalidate removes the summary for a component so the next read refreshes it.
func (c *PriceCache) Invalidate(ctx context.Context, componentID int, countryCode string) {
	key := priceCacheKey(countryCode, componentID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.WithFields(logrus.Fields{"key": key, "error": err}).Warn("Cache invalidation failed")
	}
}
