package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qb411/cloud-health-map/internal/models"
)

// Metrics exposes cycle and region-status instrumentation on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	cyclesTotal     *prometheus.CounterVec
	cycleDuration   prometheus.Summary
	regionStatus    *prometheus.GaugeVec
	refreshInterval prometheus.Gauge
	lastSuccessTS   prometheus.Gauge
	retainedEvents  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.cyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthmap",
		Name:      "cycles_total",
		Help:      "Fetch cycles by outcome",
	}, []string{"outcome"})
	m.cycleDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "healthmap",
		Name:      "cycle_duration_seconds",
		Help:      "Time spent on one fetch-parse-aggregate cycle",
	})
	m.regionStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "healthmap",
		Name:      "region_status",
		Help:      "Region severity (0=operational, 1=issue, 2=outage)",
	}, []string{"region"})
	m.refreshInterval = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "healthmap",
		Name:      "refresh_interval_seconds",
		Help:      "Current polling interval",
	})
	m.lastSuccessTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "healthmap",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful cycle",
	})
	m.retainedEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "healthmap",
		Name:      "retained_events",
		Help:      "Events currently inside the retention window",
	})

	m.registry.MustRegister(
		m.cyclesTotal,
		m.cycleDuration,
		m.regionStatus,
		m.refreshInterval,
		m.lastSuccessTS,
		m.retainedEvents,
	)

	return m
}

// Handler serves the Prometheus exposition endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCycle(outcome string, duration time.Duration) {
	m.cyclesTotal.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(duration.Seconds())
}

func (m *Metrics) SetRegionStatuses(regions []models.Region) {
	for _, r := range regions {
		m.regionStatus.WithLabelValues(r.Code).Set(float64(r.Status))
	}
}

func (m *Metrics) SetRefreshInterval(interval time.Duration) {
	m.refreshInterval.Set(interval.Seconds())
}

func (m *Metrics) MarkSuccess(at time.Time, retained int) {
	m.lastSuccessTS.Set(float64(at.Unix()))
	m.retainedEvents.Set(float64(retained))
}
