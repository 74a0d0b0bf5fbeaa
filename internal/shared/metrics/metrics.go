package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exposed on /metrics.
var Registry = prometheus.NewRegistry()

var (
	submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resume_submissions_total",
		Help: "Submissions by terminal outcome",
	}, []string{"outcome"})

	stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resume_pipeline_stage_duration_seconds",
		Help:    "Duration of each submission stage",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"stage"})

	kvWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resume_record_writes_total",
		Help: "Record writes by observed outcome",
	}, []string{"outcome"})

	listingSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resume_listing_skipped_total",
		Help: "Listing entries dropped during reconciliation",
	}, []string{"reason"})

	purgeErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resume_purge_errors_total",
		Help: "Swallowed failures during purge",
	}, []string{"target"})

	breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "inference_breaker_state",
		Help: "Inference circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		submissionsTotal,
		stageDuration,
		kvWritesTotal,
		listingSkippedTotal,
		purgeErrorsTotal,
		breakerState,
	)
}

// IncSubmission counts a submission that reached a terminal state.
func IncSubmission(outcome string) {
	submissionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a pipeline stage ran.
func ObserveStage(stage string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncRecordWrite counts a record write outcome (completed, failed, detached).
func IncRecordWrite(outcome string) {
	kvWritesTotal.WithLabelValues(outcome).Inc()
}

// IncListingSkipped counts a listing entry dropped for the given reason.
func IncListingSkipped(reason string) {
	listingSkippedTotal.WithLabelValues(reason).Inc()
}

// IncPurgeError counts a swallowed purge failure (blob or flush).
func IncPurgeError(target string) {
	purgeErrorsTotal.WithLabelValues(target).Inc()
}

// SetBreakerState publishes the numeric state of a named circuit breaker.
func SetBreakerState(name string, state float64) {
	breakerState.WithLabelValues(name).Set(state)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}
