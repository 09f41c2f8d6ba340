package models

import "time"

// Snapshot is the read surface handed to the presentation layer: current
// region statuses, the recent-event log (simulated events first), and feed
// freshness markers.
type Snapshot struct {
	Regions                []Region      `json:"regions"`
	RecentEvents           []HealthEvent `json:"recent_events"`
	LastBuildDate          string        `json:"last_build_date,omitempty"`
	LastFetch              *time.Time    `json:"last_fetch,omitempty"`
	RefreshIntervalSeconds int           `json:"refresh_interval_seconds"`
}
