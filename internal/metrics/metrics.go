package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmon_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthmon_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// Collect cycle metrics
	CollectCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmon_collect_cycles_total",
			Help: "Total number of collect cycles",
		},
		[]string{"result"}, // result: ok, error
	)

	CollectDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "healthmon_collect_duration_seconds",
			Help:    "Wall-clock duration of one collect cycle",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	MetricsIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthmon_metrics_ingested_total",
			Help: "Total number of metric samples written to the metrics store",
		},
	)

	// Probe metrics
	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthmon_probe_duration_seconds",
			Help:    "Duration of service health probes",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service"},
	)

	ProbeResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmon_probe_results_total",
			Help: "Probe outcomes by service and classified status",
		},
		[]string{"service", "status"},
	)

	// Alert metrics
	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmon_alerts_created_total",
			Help: "Alerts opened by rule evaluation",
		},
		[]string{"severity"},
	)

	AlertsResolvedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthmon_alerts_resolved_total",
			Help: "Alerts resolved by rule evaluation or operators",
		},
	)

	RuleEvaluationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthmon_rule_evaluation_failures_total",
			Help: "Rules skipped because a store lookup failed",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmon_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
