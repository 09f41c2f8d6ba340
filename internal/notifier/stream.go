package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamNotifier carries refresh signals between dashboard instances over a
// Redis stream. Any instance that persists new events publishes a signal;
// consumers react by triggering a coalesced refresh. Messages from the
// publishing instance itself are skipped to avoid refresh loops.
type StreamNotifier struct {
	client     *redis.Client
	stream     string
	instanceID string
	logger     *zap.Logger
}

func NewStreamNotifier(client *redis.Client, stream, instanceID string, logger *zap.Logger) *StreamNotifier {
	return &StreamNotifier{
		client:     client,
		stream:     stream,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Publish announces that the persisted event set changed.
func (n *StreamNotifier) Publish(ctx context.Context, updated int) error {
	_, err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{
			"source":    n.instanceID,
			"updated":   fmt.Sprintf("%d", updated),
			"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish refresh signal: %w", err)
	}
	return nil
}

// Consume blocks until ctx is cancelled, invoking onSignal for every refresh
// signal published by other instances. The payload carries no data; the
// signal only means "re-read your sources".
func (n *StreamNotifier) Consume(ctx context.Context, onSignal func()) {
	lastID := "$"

	n.logger.Info("Refresh-signal consumer started",
		zap.String("stream", n.stream),
	)

	for {
		if ctx.Err() != nil {
			n.logger.Info("Refresh-signal consumer stopped")
			return
		}

		streams, err := n.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{n.stream, lastID},
			Block:   5 * time.Second,
			Count:   16,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				n.logger.Info("Refresh-signal consumer stopped")
				return
			}
			n.logger.Warn("Failed to read refresh stream, backing off", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				if src, ok := msg.Values["source"].(string); ok && src == n.instanceID {
					continue
				}
				n.logger.Debug("Received refresh signal", zap.String("id", msg.ID))
				onSignal()
			}
		}
	}
}
