// Package telemetry holds the process's Prometheus metrics, slog logger
// factory, and OpenTelemetry tracer provider (spec §2.1, §6).
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "riskguard",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "route", "status"},
)

var EventsIngestedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskguard",
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Total number of audit events accepted from the bus, by topic.",
	},
	[]string{"topic"},
)

var EventsDroppedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskguard",
		Subsystem: "ingest",
		Name:      "events_dropped_total",
		Help:      "Total number of bus messages dropped, by reason.",
	},
	[]string{"reason"},
)

var FlushesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskguard",
		Subsystem: "buffer",
		Name:      "flushes_total",
		Help:      "Total number of buffer flush transactions, by outcome.",
	},
	[]string{"outcome"},
)

var FlushBatchSize = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "riskguard",
		Subsystem: "buffer",
		Name:      "flush_batch_size",
		Help:      "Number of events committed per flush.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	},
)

var AlertsEmittedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskguard",
		Subsystem: "alerts",
		Name:      "emitted_total",
		Help:      "Total number of security alerts emitted, by severity.",
	},
	[]string{"severity"},
)

var ViolationsDetectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskguard",
		Subsystem: "violations",
		Name:      "detected_total",
		Help:      "Total number of alerts raised by the detector, by alert rule code.",
	},
	[]string{"rule_code"},
)

var AnomalyInferenceErrorsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "riskguard",
		Subsystem: "anomaly",
		Name:      "inference_errors_total",
		Help:      "Total number of anomaly inference errors on a loaded artifact (e.g. a zero standard deviation).",
	},
)

var BroadcastSubscribers = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "riskguard",
		Subsystem: "broadcast",
		Name:      "subscribers",
		Help:      "Current number of live alert subscribers, by organization.",
	},
	[]string{"organization_id"},
)

var ProfileBuildsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskguard",
		Subsystem: "profile",
		Name:      "builds_total",
		Help:      "Total number of entity-profile build runs, by outcome.",
	},
	[]string{"outcome"},
)

// All returns every process metric for registration with a Prometheus
// registry at startup.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		EventsIngestedTotal,
		EventsDroppedTotal,
		FlushesTotal,
		FlushBatchSize,
		AlertsEmittedTotal,
		ViolationsDetectedTotal,
		AnomalyInferenceErrorsTotal,
		BroadcastSubscribers,
		ProfileBuildsTotal,
	}
}
