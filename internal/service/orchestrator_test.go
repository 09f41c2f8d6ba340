package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qb411/cloud-health-map/internal/aggregator"
	"github.com/qb411/cloud-health-map/internal/config"
	"github.com/qb411/cloud-health-map/internal/metrics"
	"github.com/qb411/cloud-health-map/internal/models"
)

// fakeFetcher serves a canned feed or a canned error.
type fakeFetcher struct {
	mu   sync.Mutex
	raw  []byte
	err  error
	hits int
}

func (f *fakeFetcher) FetchRaw(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits++
	if f.err != nil {
		return nil, f.err
	}
	return f.raw, nil
}

func (f *fakeFetcher) set(raw []byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw, f.err = raw, err
}

// fakeEventStore is an in-memory stand-in for the Postgres collaborator.
// upsertEntered/upsertRelease, when set, let a test hold a cycle open in the
// middle of its persistence phase.
type fakeEventStore struct {
	mu       sync.Mutex
	events   map[string]models.HealthEvent
	failing  bool
	upserted int

	upsertEntered chan struct{}
	upsertRelease chan struct{}
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: make(map[string]models.HealthEvent)}
}

func (s *fakeEventStore) Upsert(ctx context.Context, event models.HealthEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertEntered != nil {
		close(s.upsertEntered)
		s.upsertEntered = nil
	}
	if s.upsertRelease != nil {
		<-s.upsertRelease
	}
	if s.failing {
		return errors.New("store unreachable")
	}
	s.events[event.GUID] = event
	s.upserted++
	return nil
}

func (s *fakeEventStore) QueryAll(ctx context.Context) ([]models.HealthEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errors.New("store unreachable")
	}
	out := make([]models.HealthEvent, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	return out, nil
}

func (s *fakeEventStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// fakeWindowCache hands back a fixed window, standing in for the Redis cache.
type fakeWindowCache struct {
	events    []models.HealthEvent
	lastFetch time.Time
}

func (c *fakeWindowCache) Load(ctx context.Context) ([]models.HealthEvent, error) {
	return c.events, nil
}

func (c *fakeWindowCache) Store(ctx context.Context, events []models.HealthEvent, fetchedAt time.Time) error {
	return nil
}

func (c *fakeWindowCache) LastFetch(ctx context.Context) (time.Time, error) {
	return c.lastFetch, nil
}

func rssFeed(lastBuild string, items ...string) []byte {
	doc := `<?xml version="1.0"?><rss version="2.0"><channel>`
	if lastBuild != "" {
		doc += "<lastBuildDate>" + lastBuild + "</lastBuildDate>"
	}
	for _, item := range items {
		doc += item
	}
	doc += `</channel></rss>`
	return []byte(doc)
}

func rssItem(guid, title, description string, publishedAt time.Time) string {
	return fmt.Sprintf(
		`<item><title>%s</title><description>%s</description><pubDate>%s</pubDate><guid>%s</guid></item>`,
		title, description, publishedAt.Format(time.RFC1123Z), guid)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Window.Retention = 7 * 24 * time.Hour
	cfg.Window.MaxEvents = 50
	cfg.Window.StatusWindow = 0 // full window for deterministic assertions
	return cfg
}

func newTestOrchestrator(cfg *config.Config, fetcher Fetcher) *Orchestrator {
	agg := aggregator.New(cfg.Window.StatusWindow, zap.NewNop())
	return NewOrchestrator(cfg, fetcher, agg, metrics.New(), zap.NewNop())
}

func regionStatus(t *testing.T, snap models.Snapshot, code string) models.Severity {
	t.Helper()
	for _, r := range snap.Regions {
		if r.Code == code {
			return r.Status
		}
	}
	t.Fatalf("region %s not in snapshot", code)
	return models.SeverityOperational
}

func TestRunCycle_UpdatesSnapshot(t *testing.T) {
	now := time.Now()
	fetcher := &fakeFetcher{raw: rssFeed(
		"Mon, 24 Aug 2026 18:30:00 +0000",
		rssItem("evt-1", "Increased error rates in us-east-1", "degraded performance", now.Add(-time.Hour)),
	)}

	o := newTestOrchestrator(testConfig(), fetcher)

	unhealthy := o.RunCycle(context.Background())
	assert.True(t, unhealthy)

	snap := o.Snapshot()
	assert.Equal(t, models.SeverityIssue, regionStatus(t, snap, "us-east-1"))
	require.Len(t, snap.RecentEvents, 1)
	assert.Equal(t, "evt-1", snap.RecentEvents[0].GUID)
	assert.Equal(t, "Mon, 24 Aug 2026 18:30:00 +0000", snap.LastBuildDate)
	require.NotNil(t, snap.LastFetch)
}

func TestRunCycle_FetchFailureKeepsLastKnownState(t *testing.T) {
	now := time.Now()
	fetcher := &fakeFetcher{raw: rssFeed("",
		rssItem("evt-1", "Service disruption in eu-west-1", "outage", now.Add(-time.Hour)),
	)}

	o := newTestOrchestrator(testConfig(), fetcher)
	require.True(t, o.RunCycle(context.Background()))
	before := o.Snapshot()

	fetcher.set(nil, errors.New("network down"))
	unhealthy := o.RunCycle(context.Background())

	// Failure reports the prior health so the scheduler neither escalates
	// nor relaxes on a failed cycle.
	assert.True(t, unhealthy)

	after := o.Snapshot()
	assert.Equal(t, before.Regions, after.Regions)
	assert.Equal(t, before.RecentEvents, after.RecentEvents)
	assert.Equal(t, before.LastFetch, after.LastFetch)
}

func TestRunCycle_ParseFailureKeepsLastKnownState(t *testing.T) {
	fetcher := &fakeFetcher{raw: rssFeed("")}
	o := newTestOrchestrator(testConfig(), fetcher)
	require.False(t, o.RunCycle(context.Background()))
	before := o.Snapshot()

	fetcher.set([]byte("<garbage"), nil)
	o.RunCycle(context.Background())

	after := o.Snapshot()
	assert.Equal(t, before.Regions, after.Regions)
	assert.Equal(t, before.RecentEvents, after.RecentEvents)
}

func TestRunCycle_MergesAcrossCycles(t *testing.T) {
	now := time.Now()
	fetcher := &fakeFetcher{raw: rssFeed("",
		rssItem("evt-1", "Degraded performance in us-east-1", "degraded", now.Add(-2*time.Hour)),
	)}

	o := newTestOrchestrator(testConfig(), fetcher)
	o.RunCycle(context.Background())

	// The next fetch no longer lists evt-1; it must survive via the window.
	fetcher.set(rssFeed("",
		rssItem("evt-2", "Service disruption in us-east-1", "full outage", now.Add(-time.Hour)),
	), nil)
	unhealthy := o.RunCycle(context.Background())
	assert.True(t, unhealthy)

	snap := o.Snapshot()
	require.Len(t, snap.RecentEvents, 2)
	assert.Equal(t, "evt-2", snap.RecentEvents[0].GUID)
	assert.Equal(t, "evt-1", snap.RecentEvents[1].GUID)
	assert.Equal(t, models.SeverityOutage, regionStatus(t, snap, "us-east-1"))
}

func TestRunCycle_ReingestedGUIDReplaced(t *testing.T) {
	now := time.Now()
	fetcher := &fakeFetcher{raw: rssFeed("",
		rssItem("evt-1", "Investigating us-east-1", "first report", now.Add(-time.Hour)),
	)}

	o := newTestOrchestrator(testConfig(), fetcher)
	o.RunCycle(context.Background())

	fetcher.set(rssFeed("",
		rssItem("evt-1", "Investigating us-east-1", "updated report", now.Add(-time.Hour)),
	), nil)
	o.RunCycle(context.Background())

	snap := o.Snapshot()
	require.Len(t, snap.RecentEvents, 1)
	assert.Equal(t, "updated report", snap.RecentEvents[0].Description)
}

func TestSimulate_OverridesAndClears(t *testing.T) {
	now := time.Now()
	operationalFeed := rssFeed("",
		rssItem("evt-1", "[RESOLVED] EC2 in us-east-1", "operating normally", now.Add(-time.Hour)),
	)
	fetcher := &fakeFetcher{raw: operationalFeed}

	o := newTestOrchestrator(testConfig(), fetcher)
	o.RunCycle(context.Background())

	require.NoError(t, o.Simulate("us-east-1", models.SeverityOutage))

	snap := o.Snapshot()
	assert.Equal(t, models.SeverityOutage, regionStatus(t, snap, "us-east-1"))
	require.NotEmpty(t, snap.RecentEvents)
	assert.True(t, snap.RecentEvents[0].Simulated)
	assert.Contains(t, snap.RecentEvents[0].Title, "[TEST] OUTAGE detected in us-east-1")

	// The override survives a cycle whose feed says operational.
	o.RunCycle(context.Background())
	assert.Equal(t, models.SeverityOutage, regionStatus(t, o.Snapshot(), "us-east-1"))

	// Clearing restores feed-derived status on the next cycle.
	require.True(t, o.ClearSimulation("us-east-1"))
	o.RunCycle(context.Background())

	snap = o.Snapshot()
	assert.Equal(t, models.SeverityOperational, regionStatus(t, snap, "us-east-1"))
	for _, e := range snap.RecentEvents {
		assert.False(t, e.Simulated)
	}
}

func TestSimulate_RejectsBadInput(t *testing.T) {
	o := newTestOrchestrator(testConfig(), &fakeFetcher{raw: rssFeed("")})

	assert.Error(t, o.Simulate("us-east-1", models.SeverityOperational))
	assert.Error(t, o.Simulate("not-a-region", models.SeverityOutage))
	assert.False(t, o.ClearSimulation("us-east-1"))
}

func TestRunCycle_SimulationDuringCycleSurvives(t *testing.T) {
	now := time.Now()
	repo := newFakeEventStore()
	repo.upsertEntered = make(chan struct{})
	repo.upsertRelease = make(chan struct{})

	fetcher := &fakeFetcher{raw: rssFeed("",
		rssItem("evt-1", "[RESOLVED] EC2 in us-east-1", "operating normally", now.Add(-time.Hour)),
	)}

	o := newTestOrchestrator(testConfig(), fetcher)
	o.SetEventStore(repo)

	done := make(chan struct{})
	go func() {
		o.RunCycle(context.Background())
		close(done)
	}()

	// The cycle is now parked inside its persistence phase; apply an
	// override while it is in flight.
	<-repo.upsertEntered
	require.NoError(t, o.Simulate("us-east-1", models.SeverityOutage))
	assert.Equal(t, models.SeverityOutage, regionStatus(t, o.Snapshot(), "us-east-1"))

	close(repo.upsertRelease)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not complete")
	}

	// The completed cycle must not clobber the override with statuses
	// computed before Simulate landed.
	assert.Equal(t, models.SeverityOutage, regionStatus(t, o.Snapshot(), "us-east-1"))
}

func TestHydrate_FromPersistence(t *testing.T) {
	now := time.Now()
	repo := newFakeEventStore()
	require.NoError(t, repo.Upsert(context.Background(), models.HealthEvent{
		GUID:        "evt-1",
		Title:       "Service disruption in ap-southeast-2",
		Description: "outage",
		PublishedAt: now.Add(-time.Hour),
	}))

	o := newTestOrchestrator(testConfig(), &fakeFetcher{raw: rssFeed("")})
	o.SetEventStore(repo)

	o.Hydrate(context.Background())

	snap := o.Snapshot()
	require.Len(t, snap.RecentEvents, 1)
	assert.Equal(t, models.SeverityOutage, regionStatus(t, snap, "ap-southeast-2"))
}

func TestHydrate_PersistenceFailureStartsEmpty(t *testing.T) {
	repo := newFakeEventStore()
	repo.failing = true

	o := newTestOrchestrator(testConfig(), &fakeFetcher{raw: rssFeed("")})
	o.SetEventStore(repo)

	o.Hydrate(context.Background())

	snap := o.Snapshot()
	assert.Empty(t, snap.RecentEvents)
	for _, r := range snap.Regions {
		assert.Equal(t, models.SeverityOperational, r.Status)
	}
}

func TestHydrate_EmptyPersistenceIsAuthoritative(t *testing.T) {
	now := time.Now()
	repo := newFakeEventStore() // answers, zero rows
	cache := &fakeWindowCache{events: []models.HealthEvent{
		{GUID: "evt-stale", Title: "Service disruption in eu-west-1", Description: "outage",
			PublishedAt: now.Add(-time.Hour)},
	}}

	o := newTestOrchestrator(testConfig(), &fakeFetcher{raw: rssFeed("")})
	o.SetEventStore(repo)
	o.SetWindowCache(cache)

	o.Hydrate(context.Background())

	// The cache must not resurrect events already expired from persistence.
	snap := o.Snapshot()
	assert.Empty(t, snap.RecentEvents)
	assert.Equal(t, models.SeverityOperational, regionStatus(t, snap, "eu-west-1"))
}

func TestHydrate_PersistenceFailureFallsBackToCache(t *testing.T) {
	now := time.Now()
	repo := newFakeEventStore()
	repo.failing = true
	cache := &fakeWindowCache{
		events: []models.HealthEvent{
			{GUID: "evt-1", Title: "Service disruption in eu-west-1", Description: "outage",
				PublishedAt: now.Add(-time.Hour)},
		},
		lastFetch: now.Add(-10 * time.Minute),
	}

	o := newTestOrchestrator(testConfig(), &fakeFetcher{raw: rssFeed("")})
	o.SetEventStore(repo)
	o.SetWindowCache(cache)

	o.Hydrate(context.Background())

	snap := o.Snapshot()
	require.Len(t, snap.RecentEvents, 1)
	assert.Equal(t, models.SeverityOutage, regionStatus(t, snap, "eu-west-1"))
	require.NotNil(t, snap.LastFetch)
}

func TestRunCycle_PersistsFeedEvents(t *testing.T) {
	now := time.Now()
	repo := newFakeEventStore()
	fetcher := &fakeFetcher{raw: rssFeed("",
		rssItem("evt-1", "Degraded performance in us-west-2", "degraded", now.Add(-time.Hour)),
	)}

	o := newTestOrchestrator(testConfig(), fetcher)
	o.SetEventStore(repo)

	o.RunCycle(context.Background())
	assert.Equal(t, 1, repo.upserted)

	// A failing store must not fail the cycle.
	repo.failing = true
	fetcher.set(rssFeed("",
		rssItem("evt-2", "Degraded performance in us-west-2", "degraded", now),
	), nil)
	o.RunCycle(context.Background())

	snap := o.Snapshot()
	assert.Len(t, snap.RecentEvents, 2)
}
