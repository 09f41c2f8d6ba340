package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qb411/cloud-health-map/internal/aggregator"
	"github.com/qb411/cloud-health-map/internal/config"
	"github.com/qb411/cloud-health-map/internal/feed"
	"github.com/qb411/cloud-health-map/internal/metrics"
	"github.com/qb411/cloud-health-map/internal/models"
	"github.com/qb411/cloud-health-map/internal/notifier"
	"github.com/qb411/cloud-health-map/internal/scheduler"
	"github.com/qb411/cloud-health-map/internal/store"
)

// Fetcher retrieves one fresh copy of the raw feed.
type Fetcher interface {
	FetchRaw(ctx context.Context) ([]byte, error)
}

// EventStore is the optional persistence collaborator.
type EventStore interface {
	Upsert(ctx context.Context, event models.HealthEvent) error
	QueryAll(ctx context.Context) ([]models.HealthEvent, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// WindowCache is the optional client-scoped fallback store.
type WindowCache interface {
	Load(ctx context.Context) ([]models.HealthEvent, error)
	Store(ctx context.Context, events []models.HealthEvent, fetchedAt time.Time) error
	LastFetch(ctx context.Context) (time.Time, error)
}

// RefreshNotifier broadcasts "persisted data changed" signals to peers.
type RefreshNotifier interface {
	Publish(ctx context.Context, updated int) error
}

// StatusNotifier pushes region status transitions to display surfaces.
type StatusNotifier interface {
	PublishChanges(changes []notifier.StatusChange)
}

// Orchestrator owns all mutable dashboard state: region statuses, the
// retained event window, active simulations, and feed metadata. Cycles are
// serialized by the scheduler, so only one writer ever runs; the RWMutex
// exists for concurrent HTTP readers.
type Orchestrator struct {
	cfg     *config.Config
	logger  *zap.Logger
	fetcher Fetcher
	agg     *aggregator.Aggregator
	metrics *metrics.Metrics

	repo            EventStore      // may be nil
	cache           WindowCache     // may be nil
	refreshNotifier RefreshNotifier // may be nil
	statusNotifier  StatusNotifier  // may be nil
	sched           *scheduler.Scheduler

	mu           sync.RWMutex
	regions      []models.Region
	events       []models.HealthEvent
	simOverrides map[string]models.Severity
	simEvents    []models.HealthEvent
	lastBuild    string
	lastFetch    time.Time
}

func NewOrchestrator(
	cfg *config.Config,
	fetcher Fetcher,
	agg *aggregator.Aggregator,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		logger:       logger,
		fetcher:      fetcher,
		agg:          agg,
		metrics:      m,
		regions:      models.DefaultRegions(),
		simOverrides: make(map[string]models.Severity),
	}
}

// SetEventStore attaches the persistence collaborator.
func (o *Orchestrator) SetEventStore(repo EventStore) { o.repo = repo }

// SetWindowCache attaches the KV fallback cache.
func (o *Orchestrator) SetWindowCache(cache WindowCache) { o.cache = cache }

// SetRefreshNotifier attaches the cross-instance refresh signal publisher.
func (o *Orchestrator) SetRefreshNotifier(n RefreshNotifier) { o.refreshNotifier = n }

// SetStatusNotifier attaches the outbound status-transition publisher.
func (o *Orchestrator) SetStatusNotifier(n StatusNotifier) { o.statusNotifier = n }

// SetScheduler wires the scheduler used for coalesced refresh triggers.
func (o *Orchestrator) SetScheduler(s *scheduler.Scheduler) { o.sched = s }

// Hydrate loads the last-known event window before the first cycle:
// Postgres first, then the KV cache, else empty. Never fails startup.
func (o *Orchestrator) Hydrate(ctx context.Context) {
	var events []models.HealthEvent
	repoAnswered := false

	if o.repo != nil {
		loaded, err := o.repo.QueryAll(ctx)
		if err != nil {
			o.logger.Warn("Failed to hydrate from persistence, falling back to cache", zap.Error(err))
		} else {
			// An empty answer is authoritative: the cache must not
			// resurrect events already expired from persistence.
			events = loaded
			repoAnswered = true
			o.logger.Info("Hydrated event window from persistence", zap.Int("event_count", len(loaded)))
		}
	}

	if !repoAnswered && o.cache != nil {
		loaded, err := o.cache.Load(ctx)
		if err != nil {
			o.logger.Warn("Failed to hydrate from cache, starting empty", zap.Error(err))
		} else if loaded != nil {
			events = loaded
			o.logger.Info("Hydrated event window from cache", zap.Int("event_count", len(loaded)))
		}
		if lastFetch, err := o.cache.LastFetch(ctx); err == nil && !lastFetch.IsZero() {
			o.mu.Lock()
			o.lastFetch = lastFetch
			o.mu.Unlock()
		}
	}

	now := time.Now()
	pruned := store.Prune(store.Merge(events, nil), o.cfg.Window.Retention, o.cfg.Window.MaxEvents, now)
	regions := o.agg.Aggregate(models.DefaultRegions(), pruned, nil, now)

	o.mu.Lock()
	o.events = pruned
	o.regions = regions
	o.mu.Unlock()

	o.metrics.SetRegionStatuses(regions)
}

// RunCycle executes one fetch -> parse -> merge -> prune -> aggregate pass.
// Any failure leaves the previous state untouched and reports the prior
// health so the scheduler does not escalate on failure alone.
func (o *Orchestrator) RunCycle(ctx context.Context) bool {
	start := time.Now()

	raw, err := o.fetcher.FetchRaw(ctx)
	if err != nil {
		o.logger.Error("Fetch failed, keeping last-known state", zap.Error(err))
		o.metrics.ObserveCycle("fetch_error", time.Since(start))
		return o.anyUnhealthy()
	}

	parsed, meta, err := feed.Parse(raw)
	if err != nil {
		o.logger.Error("Parse failed, keeping last-known state", zap.Error(err))
		o.metrics.ObserveCycle("parse_error", time.Since(start))
		return o.anyUnhealthy()
	}

	o.mu.RLock()
	existing := make([]models.HealthEvent, len(o.events))
	copy(existing, o.events)
	previous := make([]models.Region, len(o.regions))
	copy(previous, o.regions)
	o.mu.RUnlock()

	now := time.Now()
	merged := store.Merge(parsed, existing)
	pruned := store.Prune(merged, o.cfg.Window.Retention, o.cfg.Window.MaxEvents, now)

	persisted := o.persist(ctx, parsed, now)
	o.cacheWindow(ctx, pruned, now)

	// Aggregation happens under the write lock with the override map as it
	// exists right now. A Simulate landing while this cycle was off doing I/O
	// must not be clobbered by statuses computed from an older override view.
	o.mu.Lock()
	regions := o.agg.Aggregate(models.DefaultRegions(), pruned, o.simOverrides, now)
	o.events = pruned
	o.regions = regions
	o.lastBuild = meta.LastBuildDate
	o.lastFetch = now
	o.mu.Unlock()

	o.publishTransitions(previous, regions, now)
	if o.refreshNotifier != nil && persisted > 0 {
		if err := o.refreshNotifier.Publish(ctx, persisted); err != nil {
			o.logger.Warn("Failed to publish refresh signal", zap.Error(err))
		}
	}

	o.metrics.ObserveCycle("success", time.Since(start))
	o.metrics.SetRegionStatuses(regions)
	o.metrics.MarkSuccess(now, len(pruned))

	o.logger.Info("Cycle completed",
		zap.Int("parsed_events", len(parsed)),
		zap.Int("retained_events", len(pruned)),
		zap.Int("persisted_events", persisted),
		zap.Duration("duration", time.Since(start)),
	)

	return aggregator.AnyUnhealthy(regions)
}

// persist upserts feed-derived events into the persistence collaborator and
// expires rows outside the retention window. Failures are logged and
// swallowed: in-memory state already reflects the update.
func (o *Orchestrator) persist(ctx context.Context, parsed []models.HealthEvent, now time.Time) int {
	if o.repo == nil {
		return 0
	}

	persisted := 0
	for _, e := range parsed {
		if e.Simulated || e.GUID == "" {
			continue
		}
		if err := o.repo.Upsert(ctx, e); err != nil {
			o.logger.Warn("Failed to persist event", zap.String("guid", e.GUID), zap.Error(err))
			continue
		}
		persisted++
	}

	if _, err := o.repo.DeleteOlderThan(ctx, now.Add(-o.cfg.Window.Retention)); err != nil {
		o.logger.Warn("Failed to expire persisted events", zap.Error(err))
	}

	return persisted
}

func (o *Orchestrator) cacheWindow(ctx context.Context, events []models.HealthEvent, fetchedAt time.Time) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Store(ctx, events, fetchedAt); err != nil {
		o.logger.Warn("Failed to update window cache", zap.Error(err))
	}
}

func (o *Orchestrator) publishTransitions(previous, current []models.Region, at time.Time) {
	if o.statusNotifier == nil {
		return
	}

	prevByCode := make(map[string]models.Severity, len(previous))
	for _, r := range previous {
		prevByCode[r.Code] = r.Status
	}

	var changes []notifier.StatusChange
	for _, r := range current {
		if prev, ok := prevByCode[r.Code]; ok && prev != r.Status {
			changes = append(changes, notifier.StatusChange{
				RegionCode: r.Code,
				Previous:   prev,
				Current:    r.Status,
				ChangedAt:  at,
			})
		}
	}
	if len(changes) > 0 {
		o.statusNotifier.PublishChanges(changes)
	}
}

func (o *Orchestrator) anyUnhealthy() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return aggregator.AnyUnhealthy(o.regions)
}

// Snapshot returns a copy of the current dashboard state. Simulated events
// lead the log, mirroring how they are surfaced to users.
func (o *Orchestrator) Snapshot() models.Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	regions := make([]models.Region, len(o.regions))
	copy(regions, o.regions)

	recent := make([]models.HealthEvent, 0, len(o.simEvents)+len(o.events))
	recent = append(recent, o.simEvents...)
	recent = append(recent, o.events...)

	snap := models.Snapshot{
		Regions:       regions,
		RecentEvents:  recent,
		LastBuildDate: o.lastBuild,
	}
	if !o.lastFetch.IsZero() {
		t := o.lastFetch
		snap.LastFetch = &t
	}
	if o.sched != nil {
		snap.RefreshIntervalSeconds = int(o.sched.Interval().Seconds())
	}
	return snap
}

// TriggerRefresh requests an immediate, coalesced cycle.
func (o *Orchestrator) TriggerRefresh() {
	if o.sched != nil {
		o.sched.Trigger()
	}
}

// Simulate applies a local severity override for a region and injects a
// synthetic event into the log. The override wins over feed-derived status
// until cleared. Takes effect immediately, then a refresh is triggered.
func (o *Orchestrator) Simulate(regionCode string, severity models.Severity) error {
	if severity != models.SeverityIssue && severity != models.SeverityOutage {
		return fmt.Errorf("cannot simulate severity %q", severity)
	}

	var regionName string
	for _, r := range models.DefaultRegions() {
		if r.Code == regionCode {
			regionName = r.Name
			break
		}
	}
	if regionName == "" {
		return fmt.Errorf("unknown region: %q", regionCode)
	}

	now := time.Now()
	event := models.HealthEvent{
		GUID:  fmt.Sprintf("test-%s-%s", regionCode, uuid.NewString()),
		Title: fmt.Sprintf("[TEST] %s detected in %s", strings.ToUpper(severity.String()), regionCode),
		Description: fmt.Sprintf("This is a simulated %s in the %s region for testing purposes.",
			severity.String(), regionName),
		PublishedAt: now,
		Simulated:   true,
	}

	o.mu.Lock()
	o.simOverrides[regionCode] = severity
	o.simEvents = append([]models.HealthEvent{event}, o.simEvents...)
	regions := o.agg.Aggregate(models.DefaultRegions(), o.events, o.simOverrides, now)
	o.regions = regions
	o.mu.Unlock()

	o.metrics.SetRegionStatuses(regions)
	o.logger.Info("Simulated region status",
		zap.String("region", regionCode),
		zap.String("severity", severity.String()),
	)

	o.TriggerRefresh()
	return nil
}

// ClearSimulation removes the override and synthetic events for one region.
// Feed-derived status returns on the next cycle, which is triggered here.
func (o *Orchestrator) ClearSimulation(regionCode string) bool {
	o.mu.Lock()
	_, found := o.simOverrides[regionCode]
	delete(o.simOverrides, regionCode)

	kept := o.simEvents[:0]
	for _, e := range o.simEvents {
		if code, ok := feed.RegionCode(e.Title); ok && code == regionCode {
			continue
		}
		kept = append(kept, e)
	}
	o.simEvents = kept
	o.mu.Unlock()

	if found {
		o.logger.Info("Cleared simulation", zap.String("region", regionCode))
		o.TriggerRefresh()
	}
	return found
}

// ClearAllSimulations drops every active override and synthetic event.
func (o *Orchestrator) ClearAllSimulations() {
	o.mu.Lock()
	o.simOverrides = make(map[string]models.Severity)
	o.simEvents = nil
	o.mu.Unlock()

	o.logger.Info("Cleared all simulations")
	o.TriggerRefresh()
}
