package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks submit/status/results API latency.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "scrapecore",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// JobsSubmittedTotal counts jobs accepted onto the dispatcher queue, by tenant.
var JobsSubmittedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "scrapecore",
		Subsystem: "jobs",
		Name:      "submitted_total",
		Help:      "Total number of jobs submitted.",
	},
	[]string{"tenant"},
)

// JobsCompletedTotal counts terminal job attempts by the engine that produced
// them and the outcome reason (ok, fetch_failed, ssrf_blocked, internal_error, ...).
var JobsCompletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "scrapecore",
		Subsystem: "jobs",
		Name:      "completed_total",
		Help:      "Total number of completed job attempts by engine and outcome reason.",
	},
	[]string{"engine", "reason"},
)

// JobsEscalatedTotal counts attempts escalated from one engine tier to the next.
var JobsEscalatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "scrapecore",
		Subsystem: "jobs",
		Name:      "escalated_total",
		Help:      "Total number of job escalations by source engine tier.",
	},
	[]string{"from_engine", "to_engine"},
)

// FetchDuration tracks fetch latency per engine tier.
var FetchDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "scrapecore",
		Subsystem: "fetch",
		Name:      "duration_seconds",
		Help:      "Fetch duration in seconds by engine tier.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{"engine"},
)

// BreakerOpensTotal counts circuit breaker trips by domain.
var BreakerOpensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "scrapecore",
		Subsystem: "governance",
		Name:      "breaker_opens_total",
		Help:      "Total number of circuit breaker opens by domain.",
	},
	[]string{"domain"},
)

// RateLimitDeniedTotal counts requests denied by the per-domain token bucket.
var RateLimitDeniedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "scrapecore",
		Subsystem: "governance",
		Name:      "rate_limit_denied_total",
		Help:      "Total number of fetches denied by the per-domain rate limiter.",
	},
	[]string{"domain"},
)

// OracleCallsTotal counts external extraction oracle invocations by outcome
// (success, unavailable, failed, validation_failed).
var OracleCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "scrapecore",
		Subsystem: "oracle",
		Name:      "calls_total",
		Help:      "Total number of extraction oracle calls by outcome.",
	},
	[]string{"outcome"},
)

// CandidatesPromotedTotal counts selector candidates promoted into the live registry.
var CandidatesPromotedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "scrapecore",
		Subsystem: "candidate",
		Name:      "promoted_total",
		Help:      "Total number of selector candidates promoted by schema.",
	},
	[]string{"schema"},
)

// IdentitiesDeactivatedTotal counts identities retired after repeated failures.
var IdentitiesDeactivatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "scrapecore",
		Subsystem: "identity",
		Name:      "deactivated_total",
		Help:      "Total number of identities deactivated by reason.",
	},
	[]string{"reason"},
)

// All returns the scrapecore-specific collectors for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		JobsSubmittedTotal,
		JobsCompletedTotal,
		JobsEscalatedTotal,
		FetchDuration,
		BreakerOpensTotal,
		RateLimitDeniedTotal,
		OracleCallsTotal,
		CandidatesPromotedTotal,
		IdentitiesDeactivatedTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTP request duration metric, and all scrapecore collectors.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(HTTPRequestDuration)
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
