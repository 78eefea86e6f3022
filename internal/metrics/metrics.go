package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ProviderCallLatency tracks the latency of capability provider calls
	ProviderCallLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "advisory_engine",
			Subsystem: "provider",
			Name:      "call_latency_seconds",
			Help:      "Time spent in capability provider calls, retries included",
		},
		[]string{"capability", "provider"},
	)

	// ProviderErrors tracks failed provider attempts
	ProviderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "advisory_engine",
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "Number of failed capability provider attempts",
		},
		[]string{"capability", "provider", "error_type"},
	)

	// LowConfidenceResults tracks well-formed results below the confidence floor
	LowConfidenceResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "advisory_engine",
			Subsystem: "provider",
			Name:      "low_confidence_total",
			Help:      "Number of provider results below the confidence floor",
		},
		[]string{"capability", "provider"},
	)

	// ModelCacheLookups tracks image classification cache hits and misses
	ModelCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "advisory_engine",
			Subsystem: "provider",
			Name:      "cache_lookups_total",
			Help:      "Image classification cache lookups by result",
		},
		[]string{"provider", "result"},
	)

	// RuleFirings tracks weather rules that produced an action
	RuleFirings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "advisory_engine",
			Subsystem: "weather",
			Name:      "rule_firings_total",
			Help:      "Number of times a weather rule fired",
		},
		[]string{"rule"},
	)

	// RouterOutcomes tracks the terminal state of conversational requests
	RouterOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "advisory_engine",
			Subsystem: "router",
			Name:      "outcomes_total",
			Help:      "Terminal router states by intent",
		},
		[]string{"state", "intent"},
	)

	// FusedActions tracks how many actions survived fusion per request
	FusedActions = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "advisory_engine",
			Subsystem: "fusion",
			Name:      "actions_per_result",
			Help:      "Number of actions in each advisory result",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 8},
		},
	)

	// EvaluateErrors tracks requests that ended in an EngineError
	EvaluateErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "advisory_engine",
			Subsystem: "engine",
			Name:      "errors_total",
			Help:      "Number of requests that ended in an engine error",
		},
		[]string{"code"},
	)
)

// MustRegister registers all metrics with the default Prometheus registry
func MustRegister() {
	prometheus.MustRegister(
		ProviderCallLatency,
		ProviderErrors,
		LowConfidenceResults,
		ModelCacheLookups,
		RuleFirings,
		RouterOutcomes,
		FusedActions,
		EvaluateErrors,
	)
}
