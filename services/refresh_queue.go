package services

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/UlisesFTP/pconstruct-pricing/shared"
)

const (
	refreshStream     = "pricing:refresh"
	refreshDeadStream = "pricing:refresh:dead"
	refreshGroup      = "pricing-workers"
)

// Delivery is one queued refresh message as seen by a consumer. The ID is the
// stream entry id used to acknowledge it.
type Delivery struct {
	ID   string
	Body []byte
}

// QueueStats summarizes queue depth for the admin surface.
type QueueStats struct {
	Queued     int64 `json:"queued"`
	Pending    int64 `json:"pending"`
	DeadLetter int64 `json:"dead_letter"`
}

// RefreshQueue is the durable refresh job channel, backed by a Redis stream
// with a single consumer group. Workers compete for deliveries; a message
// stays pending until acknowledged and is redelivered if its consumer dies.
type RefreshQueue struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRefreshQueue(client *redis.Client) *RefreshQueue {
	return &RefreshQueue{
		client: client,
		logger: logrus.New(),
	}
}

// EnsureGroup creates the consumer group if it does not already exist.
func (q *RefreshQueue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, refreshStream, refreshGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return shared.NewNetworkError("refresh_queue", "ensure_group", "failed to create consumer group", err)
	}
	return nil
}

// Publish appends a job payload to the stream.
func (q *RefreshQueue) Publish(ctx context.Context, body []byte) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: refreshStream,
		Values: map[string]interface{}{"body": body},
	}).Err()
	if err != nil {
		return shared.NewNetworkError("refresh_queue", "publish", "failed to append refresh job", err)
	}
	return nil
}

// Receive blocks up to the given duration waiting for deliveries addressed to
// consumer. An empty result with nil error means the wait timed out.
func (q *RefreshQueue) Receive(ctx context.Context, consumer string, block time.Duration) ([]Delivery, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    refreshGroup,
		Consumer: consumer,
		Streams:  []string{refreshStream, ">"},
		Count:    10,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, shared.NewNetworkError("refresh_queue", "receive", "failed to read from stream", err)
	}

	var deliveries []Delivery
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			deliveries = append(deliveries, Delivery{ID: msg.ID, Body: messageBody(msg)})
		}
	}
	return deliveries, nil
}

// Ack marks a delivery as done so it is never redelivered.
func (q *RefreshQueue) Ack(ctx context.Context, deliveryID string) error {
	if err := q.client.XAck(ctx, refreshStream, refreshGroup, deliveryID).Err(); err != nil {
		return shared.NewNetworkError("refresh_queue", "ack", "failed to acknowledge delivery", err)
	}
	return nil
}

// DeadLetter moves a delivery to the dead letter stream and acknowledges it on
// the main stream so it stops being redelivered.
func (q *RefreshQueue) DeadLetter(ctx context.Context, delivery Delivery, reason string) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: refreshDeadStream,
		Values: map[string]interface{}{
			"body":        delivery.Body,
			"reason":      reason,
			"original_id": delivery.ID,
		},
	}).Err()
	if err != nil {
		return shared.NewNetworkError("refresh_queue", "dead_letter", "failed to append to dead letter stream", err)
	}

	q.logger.WithFields(logrus.Fields{
		"delivery_id": delivery.ID,
		"reason":      reason,
	}).Warn("Moved refresh job to dead letter stream")

	return q.Ack(ctx, delivery.ID)
}

// ReclaimStale takes over deliveries that have sat unacknowledged longer than
// minIdle, assigning them to consumer. Deliveries already redelivered more
// than redeliveryLimit times go to the dead letter stream instead.
func (q *RefreshQueue) ReclaimStale(ctx context.Context, consumer string, minIdle time.Duration, redeliveryLimit int) ([]Delivery, error) {
	messages, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   refreshStream,
		Group:    refreshGroup,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    25,
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, shared.NewNetworkError("refresh_queue", "reclaim_stale", "failed to claim stale deliveries", err)
	}
	if len(messages) == 0 {
		return nil, nil
	}

	retryCounts, err := q.pendingRetryCounts(ctx, messages[0].ID, messages[len(messages)-1].ID, consumer)
	if err != nil {
		q.logger.WithFields(logrus.Fields{"error": err}).Warn("Could not inspect retry counts for reclaimed deliveries")
	}

	var deliveries []Delivery
	for _, msg := range messages {
		delivery := Delivery{ID: msg.ID, Body: messageBody(msg)}
		if retryCounts[msg.ID] > int64(redeliveryLimit) {
			if dlErr := q.DeadLetter(ctx, delivery, "redelivery limit exceeded"); dlErr != nil {
				q.logger.WithFields(logrus.Fields{"delivery_id": msg.ID, "error": dlErr}).Error("Failed to dead letter exhausted delivery")
			}
			continue
		}
		deliveries = append(deliveries, delivery)
	}
	return deliveries, nil
}

// Stats reports current queue depths.
func (q *RefreshQueue) Stats(ctx context.Context) (*QueueStats, error) {
	queued, err := q.client.XLen(ctx, refreshStream).Result()
	if err != nil {
		return nil, shared.NewNetworkError("refresh_queue", "stats", "failed to read stream length", err)
	}

	var pending int64
	if info, err := q.client.XPending(ctx, refreshStream, refreshGroup).Result(); err == nil {
		pending = info.Count
	}

	dead, err := q.client.XLen(ctx, refreshDeadStream).Result()
	if err != nil && err != redis.Nil {
		return nil, shared.NewNetworkError("refresh_queue", "stats", "failed to read dead letter length", err)
	}

	return &QueueStats{Queued: queued, Pending: pending, DeadLetter: dead}, nil
}

func (q *RefreshQueue) pendingRetryCounts(ctx context.Context, start, end, consumer string) (map[string]int64, error) {
	entries, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   refreshStream,
		Group:    refreshGroup,
		Start:    start,
		End:      end,
		Count:    100,
		Consumer: consumer,
	}).Result()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(entries))
	for _, entry := range entries {
		counts[entry.ID] = entry.RetryCount
	}
	return counts, nil
}

func messageBody(msg redis.XMessage) []byte {
	switch v := msg.Values["body"].(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		return nil
	}
}
