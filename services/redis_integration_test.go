package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UlisesFTP/pconstruct-pricing/models"
)

func redisTestClient(t *testing.T) *redis.Client {
	t.Helper()

	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis integration tests")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not reachable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPriceCacheRoundTrip(t *testing.T) {
	client := redisTestClient(t)
	cache := NewPriceCache(client, time.Minute)
	ctx := context.Background()

	cache.Invalidate(ctx, 42, "MX")
	_, ok := cache.Get(ctx, 42, "MX")
	assert.False(t, ok, "miss expected before any write")

	summary := &models.BestPriceSummary{
		ComponentID: 42,
		Retailer:    "amazon",
		Price:       2499.99,
		Currency:    "MXN",
		URL:         "https://www.amazon.com.mx/x/dp/B1",
		ObservedAt:  time.Now().Truncate(time.Second),
	}
	cache.Set(ctx, summary, "MX")

	got, ok := cache.Get(ctx, 42, "MX")
	require.True(t, ok)
	assert.Equal(t, summary.Price, got.Price)
	assert.Equal(t, summary.Retailer, got.Retailer)

	cache.Invalidate(ctx, 42, "MX")
	_, ok = cache.Get(ctx, 42, "MX")
	assert.False(t, ok)
}

func TestRefreshQueuePublishReceiveAck(t *testing.T) {
	client := redisTestClient(t)
	queue := NewRefreshQueue(client)
	ctx := context.Background()

	require.NoError(t, queue.EnsureGroup(ctx))
	// idempotent on an existing group
	require.NoError(t, queue.EnsureGroup(ctx))

	job := models.RefreshJob{ComponentIDs: []int{42}, Country: "MX"}
	body, err := job.Encode()
	require.NoError(t, err)
	require.NoError(t, queue.Publish(ctx, body))

	deliveries, err := queue.Receive(ctx, "it-consumer", time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, deliveries)

	found := false
	for _, delivery := range deliveries {
		parsed, parseErr := models.ParseRefreshJob(delivery.Body)
		if parseErr == nil && len(parsed.ComponentIDs) == 1 && parsed.ComponentIDs[0] == 42 {
			found = true
		}
		require.NoError(t, queue.Ack(ctx, delivery.ID))
	}
	assert.True(t, found, "published job must come back through the consumer group")
}

func TestRefreshQueueDeadLetter(t *testing.T) {
	client := redisTestClient(t)
	queue := NewRefreshQueue(client)
	ctx := context.Background()

	require.NoError(t, queue.EnsureGroup(ctx))
	require.NoError(t, queue.Publish(ctx, []byte("broken payload")))

	deliveries, err := queue.Receive(ctx, "it-consumer", time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, deliveries)

	before, err := queue.Stats(ctx)
	require.NoError(t, err)

	require.NoError(t, queue.DeadLetter(ctx, deliveries[0], "unparseable"))

	after, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, after.DeadLetter, before.DeadLetter+1, "dead letter stream must grow")

	for _, delivery := range deliveries[1:] {
		require.NoError(t, queue.Ack(ctx, delivery.ID))
	}
}
