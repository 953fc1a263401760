// Package metrics registers the Prometheus collectors exported by the
// broker and serves them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set holds every collector the broker exports. A single Set is built at
// startup and shared by all services.
type Set struct {
	registry *prometheus.Registry

	EventsPublished *prometheus.CounterVec
	EventsConsumed  *prometheus.CounterVec
	EventsAcked     *prometheus.CounterVec
	EventsNacked    *prometheus.CounterVec
	EventsExpired   *prometheus.CounterVec

	DLQEntries  *prometheus.CounterVec
	DLQRetries  *prometheus.CounterVec
	DLQResolved *prometheus.CounterVec

	Rebalances       *prometheus.CounterVec
	ConsumersActive  *prometheus.GaugeVec
	ReplaysActive    prometheus.Gauge
	ReplayedEntries  prometheus.Counter
	RetentionTrimmed *prometheus.CounterVec
}

// New builds a Set on a fresh registry with Go and process collectors.
func New() *Set {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Set{
		registry: reg,
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_events_published_total",
			Help: "Events appended to a topic partition.",
		}, []string{"topic"}),
		EventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_events_consumed_total",
			Help: "Events delivered to consumers.",
		}, []string{"topic", "group"}),
		EventsAcked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_events_acked_total",
			Help: "Delivered events acknowledged by consumers.",
		}, []string{"group"}),
		EventsNacked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_events_nacked_total",
			Help: "Delivered events negatively acknowledged.",
		}, []string{"group"}),
		EventsExpired: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_events_expired_total",
			Help: "Deliveries whose visibility timeout lapsed without an ack.",
		}, []string{"group"}),
		DLQEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_dlq_entries_total",
			Help: "Messages parked in the dead letter queue.",
		}, []string{"topic", "reason"}),
		DLQRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_dlq_retries_total",
			Help: "DLQ retry attempts by outcome.",
		}, []string{"topic", "outcome"}),
		DLQResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_dlq_resolved_total",
			Help: "DLQ entries resolved manually or by successful retry.",
		}, []string{"topic"}),
		Rebalances: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_group_rebalances_total",
			Help: "Partition rebalances per consumer group.",
		}, []string{"group"}),
		ConsumersActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "streamforge_consumers_active",
			Help: "Active consumers per group.",
		}, []string{"group"}),
		ReplaysActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streamforge_replays_active",
			Help: "Replay sessions currently running.",
		}),
		ReplayedEntries: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamforge_replayed_entries_total",
			Help: "Entries re-published by replay sessions.",
		}),
		RetentionTrimmed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_retention_trimmed_total",
			Help: "Entries removed by retention enforcement.",
		}, []string{"topic"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for extra collectors.
func (s *Set) Registry() *prometheus.Registry { return s.registry }
