package aggregator

import (
	"time"

	"go.uber.org/zap"

	"github.com/qb411/cloud-health-map/internal/feed"
	"github.com/qb411/cloud-health-map/internal/models"
)

// Aggregator derives each region's severity from the retained event window.
// Aggregation is worst-seen and monotonic: Operational accepts any candidate,
// Issue only upgrades to Outage, Outage never downgrades. Only a fresh pass
// over a newly-pruned window can lower a region again.
type Aggregator struct {
	statusWindow time.Duration // 0 means the full retained window counts
	logger       *zap.Logger
}

func New(statusWindow time.Duration, logger *zap.Logger) *Aggregator {
	return &Aggregator{statusWindow: statusWindow, logger: logger}
}

// Aggregate computes fresh statuses for the given regions. Every region
// starts Operational; events without a recognizable region code are ignored
// here (they still belong in the log). Overrides from simulations are applied
// last and win unconditionally.
func (a *Aggregator) Aggregate(
	regions []models.Region,
	events []models.HealthEvent,
	overrides map[string]models.Severity,
	now time.Time,
) []models.Region {
	status := make(map[string]models.Severity, len(regions))
	for _, r := range regions {
		status[r.Code] = models.SeverityOperational
	}

	var cutoff time.Time
	if a.statusWindow > 0 {
		cutoff = now.Add(-a.statusWindow)
	}

	for _, e := range events {
		if a.statusWindow > 0 && !e.PublishedAt.After(cutoff) {
			continue
		}
		code, ok := feed.RegionCode(e.Title)
		if !ok {
			continue
		}
		current, known := status[code]
		if !known {
			continue
		}
		candidate := feed.Classify(e.Description)
		if current == models.SeverityOperational ||
			(current == models.SeverityIssue && candidate == models.SeverityOutage) {
			status[code] = candidate
		}
	}

	for code, severity := range overrides {
		if _, known := status[code]; known {
			status[code] = severity
		}
	}

	out := make([]models.Region, len(regions))
	for i, r := range regions {
		r.Status = status[r.Code]
		out[i] = r
	}

	a.logger.Debug("Aggregated region statuses",
		zap.Int("event_count", len(events)),
		zap.Int("override_count", len(overrides)),
	)

	return out
}

// AnyUnhealthy reports whether at least one region is not operational; the
// scheduler keys its interval off this.
func AnyUnhealthy(regions []models.Region) bool {
	for _, r := range regions {
		if r.Status != models.SeverityOperational {
			return true
		}
	}
	return false
}
