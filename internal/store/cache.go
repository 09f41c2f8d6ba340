package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qb411/cloud-health-map/internal/models"
)

const (
	eventsKey    = "healthmap:events"
	lastFetchKey = "healthmap:last-fetch"
)

// WindowCache keeps the retained event window and the last-fetch timestamp in
// a KV store. It is the fallback when the Postgres collaborator is absent or
// unreachable, so every call degrades to "nothing cached" rather than failing
// the cycle.
type WindowCache struct {
	kv     KV
	ttl    time.Duration
	logger *zap.Logger
}

func NewWindowCache(kv KV, ttl time.Duration, logger *zap.Logger) *WindowCache {
	return &WindowCache{kv: kv, ttl: ttl, logger: logger}
}

// Load returns the cached window, or (nil, nil) when nothing is cached.
func (c *WindowCache) Load(ctx context.Context) ([]models.HealthEvent, error) {
	raw, err := c.kv.Get(ctx, eventsKey)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached events: %w", err)
	}

	var events []models.HealthEvent
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		// A corrupt cache entry is not worth failing startup over.
		c.logger.Warn("Discarding corrupt event cache entry", zap.Error(err))
		return nil, nil
	}
	return events, nil
}

// Store replaces the cached window and records when the feed was last fetched.
func (c *WindowCache) Store(ctx context.Context, events []models.HealthEvent, fetchedAt time.Time) error {
	raw, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := c.kv.Set(ctx, eventsKey, string(raw), c.ttl); err != nil {
		return fmt.Errorf("failed to cache events: %w", err)
	}
	if err := c.kv.Set(ctx, lastFetchKey, fetchedAt.UTC().Format(time.RFC3339), c.ttl); err != nil {
		return fmt.Errorf("failed to cache last-fetch timestamp: %w", err)
	}
	return nil
}

// LastFetch returns the cached fetch timestamp, zero when absent.
func (c *WindowCache) LastFetch(ctx context.Context) (time.Time, error) {
	raw, err := c.kv.Get(ctx, lastFetchKey)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to read last-fetch timestamp: %w", err)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}
