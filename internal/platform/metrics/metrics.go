// Package metrics holds the Prometheus collectors for matching, notifying
// and request lifecycle changes. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	// Match passes by outcome: succeeded, failed, skipped, retried
	MatchPasses       *prometheus.CounterVec
	MatchPassDuration prometheus.Histogram
	MatchCandidates   prometheus.Histogram
	MatchQueueDropped prometheus.Counter
	MatchQueueDepth   prometheus.Gauge

	Notifications        *prometheus.CounterVec
	EventsPublished      *prometheus.CounterVec
	LifecycleTransitions *prometheus.CounterVec
	StatsCache           *prometheus.CounterVec
}

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MatchPasses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodlink_match_passes_total",
			Help: "Matching passes by outcome",
		}, []string{"outcome"}),

		MatchPassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bloodlink_match_pass_duration_seconds",
			Help:    "Duration of a single matching pass attempt",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		MatchCandidates: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bloodlink_match_candidates",
			Help:    "Ranked candidates produced per matching pass",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		}),

		MatchQueueDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "bloodlink_match_queue_dropped_total",
			Help: "Match tasks dropped because the queue was full or stopped",
		}),

		MatchQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "bloodlink_match_queue_depth",
			Help: "Match tasks waiting for a worker",
		}),

		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodlink_notifications_total",
			Help: "Match notifications by outcome",
		}, []string{"outcome"}),

		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodlink_events_published_total",
			Help: "Domain events handed to the event publisher by outcome",
		}, []string{"outcome"}),

		LifecycleTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodlink_request_transitions_total",
			Help: "Blood request status transitions",
		}, []string{"from", "to"}),

		StatsCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodlink_stats_cache_total",
			Help: "Request statistics cache lookups by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncMatchPass(outcome string) {
	if m != nil {
		m.MatchPasses.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveMatchPass(d time.Duration, candidates int) {
	if m != nil {
		m.MatchPassDuration.Observe(d.Seconds())
		m.MatchCandidates.Observe(float64(candidates))
	}
}

func (m *Metrics) IncQueueDropped() {
	if m != nil {
		m.MatchQueueDropped.Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.MatchQueueDepth.Set(float64(n))
	}
}

func (m *Metrics) IncNotification(outcome string) {
	if m != nil {
		m.Notifications.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncEventPublished(outcome string) {
	if m != nil {
		m.EventsPublished.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncTransition(from, to string) {
	if m != nil {
		m.LifecycleTransitions.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) IncStatsCache(result string) {
	if m != nil {
		m.StatsCache.WithLabelValues(result).Inc()
	}
}

// Handler exposes the collectors registered with g in the text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
