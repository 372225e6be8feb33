// Package metrics exposes server-internal Prometheus counters and gauges
// (component I): active sessions, events ingested, nacks by code,
// template-cache hit/miss. None of the teacher's own packages expose a
// Prometheus registry directly (its metricdata package is a Prometheus
// *client*, not an exporter), so the naming and registration style here
// follows the prometheus/client_golang promauto conventions used
// throughout the wider ecosystem the example pack draws from.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dmtp",
		Name:      "active_sessions",
		Help:      "Number of currently open device sessions.",
	})

	ConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dmtp",
		Name:      "connections_total",
		Help:      "Accepted connections by transport.",
	}, []string{"transport"})

	EventsInsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dmtp",
		Name:      "events_inserted_total",
		Help:      "Event records successfully inserted into the store.",
	})

	EventsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dmtp",
		Name:      "events_duplicate_total",
		Help:      "Event records rejected as duplicates of an existing key.",
	})

	NacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dmtp",
		Name:      "nacks_total",
		Help:      "Nack packets sent, by nack code.",
	}, []string{"code"})

	TemplateCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dmtp",
		Name:      "template_cache_hits_total",
		Help:      "Custom-template lookups that found a template, whether served from the cache or the store.",
	})

	TemplateCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dmtp",
		Name:      "template_cache_misses_total",
		Help:      "Custom-template lookups that found no template in the cache or the store.",
	})

	RateLimitRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dmtp",
		Name:      "rate_limit_rejected_total",
		Help:      "Connections or events rejected by the per-device rate limiter.",
	}, []string{"kind"})

	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dmtp",
		Name:      "session_duration_seconds",
		Help:      "Wall-clock duration of a device session from ACCEPT to CLOSED.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
)
