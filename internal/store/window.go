package store

import (
	"sort"
	"time"

	"github.com/qb411/cloud-health-map/internal/models"
)

// Merge combines freshly-parsed events with the retained window. Dedup key is
// the GUID; when both sides carry the same GUID the newly-ingested record
// wins wholesale. The result is sorted newest first.
func Merge(newEvents, existing []models.HealthEvent) []models.HealthEvent {
	byGUID := make(map[string]models.HealthEvent, len(newEvents)+len(existing))
	for _, e := range existing {
		byGUID[e.GUID] = e
	}
	for _, e := range newEvents {
		byGUID[e.GUID] = e
	}

	merged := make([]models.HealthEvent, 0, len(byGUID))
	for _, e := range byGUID {
		merged = append(merged, e)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].PublishedAt.After(merged[j].PublishedAt)
	})
	return merged
}

// Prune drops events published at or before now-retention, then caps the
// result at maxCount. Events must already be sorted newest first (Merge's
// output order), so the cap keeps the most recent ones.
func Prune(events []models.HealthEvent, retention time.Duration, maxCount int, now time.Time) []models.HealthEvent {
	cutoff := now.Add(-retention)

	kept := make([]models.HealthEvent, 0, len(events))
	for _, e := range events {
		if e.PublishedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}

	if maxCount > 0 && len(kept) > maxCount {
		kept = kept[:maxCount]
	}
	return kept
}
