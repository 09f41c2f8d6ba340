package models

import "time"

// HealthEvent is a single incident/update record parsed from the status feed.
// GUID is the dedup identity: re-ingesting the same GUID replaces the record.
type HealthEvent struct {
	GUID        string    `json:"guid"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"published_at"`

	// Simulated marks locally-injected test events. These never reach the
	// persistence layer and always win over feed-derived status for their
	// region until cleared.
	Simulated bool `json:"simulated,omitempty"`
}

// FeedMeta carries the feed's own freshness marker. LastBuildDate is the raw
// channel-level value (empty when the feed omits it); it is display data and
// never drives aggregation.
type FeedMeta struct {
	LastBuildDate string `json:"last_build_date,omitempty"`
}
