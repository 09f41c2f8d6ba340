package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qb411/cloud-health-map/internal/models"
)

// ErrUnavailable wraps every transport-level database failure, so callers can
// distinguish "the store did not answer" from an answered-but-empty result.
var ErrUnavailable = errors.New("event store unavailable")

// EventRepository persists the health-event window in Postgres, keyed by the
// event GUID. The service runs fine without it; callers treat every error
// here as recoverable.
type EventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewEventRepository(db *sql.DB, logger *zap.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger}
}

// Upsert inserts or replaces one event. Same GUID means replace, never
// duplicate.
func (r *EventRepository) Upsert(ctx context.Context, event models.HealthEvent) error {
	query := `
		INSERT INTO health_events (guid, title, description, published_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guid) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			published_at = EXCLUDED.published_at`

	if _, err := r.db.ExecContext(ctx, query,
		event.GUID, event.Title, event.Description, event.PublishedAt); err != nil {
		return fmt.Errorf("%w: failed to upsert event %s: %v", ErrUnavailable, event.GUID, err)
	}
	return nil
}

// QueryAll returns every persisted event, newest first.
func (r *EventRepository) QueryAll(ctx context.Context) ([]models.HealthEvent, error) {
	query := `
		SELECT guid, title, description, published_at
		FROM health_events
		ORDER BY published_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query events: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var events []models.HealthEvent
	for rows.Next() {
		var e models.HealthEvent
		if err := rows.Scan(&e.GUID, &e.Title, &e.Description, &e.PublishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate event rows: %v", ErrUnavailable, err)
	}

	return events, nil
}

// DeleteOlderThan removes events the retention window no longer covers, so
// the table does not grow unbounded across restarts.
func (r *EventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM health_events WHERE published_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete expired events: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired events: %w", err)
	}
	return n, nil
}
