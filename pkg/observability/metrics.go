// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the DataGem service.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "datagem"

// LLMBuckets spans model latencies from 100ms to two minutes.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// SandboxBuckets spans code executions up to past the default timeout.
var SandboxBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 45}

// HTTP surface.
var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "HTTP requests by method, status class and route.",
	}, []string{"method", "status", "route"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration. Chat requests include the whole stream.",
		Buckets:   LLMBuckets,
	}, []string{"method", "route"})

	StreamingConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "streaming_connections_active",
		Help:      "Chat streams currently open.",
	})
)

// Model backend.
var (
	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Model requests by outcome.",
	}, []string{"provider", "model", "status"})

	// ProviderLatency is measured until the upstream stream ends.
	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "latency_seconds",
		Help:      "Model stream duration.",
		Buckets:   LLMBuckets,
	}, []string{"provider", "model"})

	ProviderTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "tokens_total",
		Help:      "Tokens reported by the model, by direction (input or output).",
	}, []string{"provider", "model", "direction"})
)

// Tools and the code sandbox.
var (
	ToolExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tool",
		Name:      "executions_total",
		Help:      "Tool calls by tool and outcome.",
	}, []string{"tool_name", "status"})

	ToolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tool",
		Name:      "duration_seconds",
		Help:      "Tool call duration.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"tool_name"})

	SearchQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "queries_total",
		Help:      "google_search queries by backend and outcome.",
	}, []string{"backend", "status"})

	SandboxExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sandbox",
		Name:      "executions_total",
		Help:      "Code executions by classification.",
	}, []string{"classification"})

	SandboxDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sandbox",
		Name:      "duration_seconds",
		Help:      "Wall-clock time of code executions.",
		Buckets:   SandboxBuckets,
	})
)

// Credentials and sessions.
var (
	CredentialRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "credential",
		Name:      "rotations_total",
		Help:      "Moves of the active API key to the next slot.",
	})

	CredentialCurrentIndex = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "credential",
		Name:      "current_index",
		Help:      "Zero-based slot of the active API key.",
	})

	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Finished chat sessions by terminal state.",
	}, []string{"state"})
)

// Handler serves the default registry, which holds every collector above.
func Handler() http.Handler {
	return promhttp.Handler()
}
