package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "flowdeck", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "flowdeck", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	SaveConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "flowdeck", Name: "diagram_save_conflicts_total", Help: "Number of diagram saves rejected on a version mismatch."},
	)
	ConditionalReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "flowdeck", Name: "diagram_conditional_reads_total", Help: "Conditional diagram reads by outcome (hit = 304, miss = full body)."},
		[]string{"outcome"},
	)
	SummaryCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "flowdeck", Name: "summary_cache_requests_total", Help: "Summary cache lookups by outcome."},
		[]string{"outcome"},
	)
	ExportsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "flowdeck", Name: "diagram_exports_total", Help: "Number of diagram XML exports written to object storage."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(SaveConflicts)
	reg.MustRegister(ConditionalReads)
	reg.MustRegister(SummaryCacheHits)
	reg.MustRegister(ExportsCreated)
}
