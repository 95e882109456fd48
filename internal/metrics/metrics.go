// Package metrics provides Prometheus metrics for fairmeter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal tracks outbound HTTP requests by outcome
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fairmeter",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests by method and status class",
		},
		[]string{"method", "status"},
	)

	// FetchDuration tracks outbound HTTP request duration
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fairmeter",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method"},
	)

	// CacheHitsTotal tracks negotiator responses served from cache
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fairmeter",
			Subsystem: "http_client",
			Name:      "cache_hits_total",
			Help:      "Total number of responses served from the response cache",
		},
	)

	// FragmentsTotal tracks harvested metadata fragments by offering method
	FragmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fairmeter",
			Subsystem: "harvest",
			Name:      "fragments_total",
			Help:      "Total number of metadata fragments harvested by method",
		},
		[]string{"method"},
	)

	// EvaluationsTotal tracks metric evaluations by agnostic metric and status
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fairmeter",
			Subsystem: "evaluation",
			Name:      "metrics_total",
			Help:      "Total number of metric evaluations by metric and status",
		},
		[]string{"metric", "status"},
	)

	// AssessmentsTotal tracks finished assessment runs
	AssessmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fairmeter",
			Subsystem: "assessment",
			Name:      "runs_total",
			Help:      "Total number of assessment runs by outcome",
		},
		[]string{"outcome"},
	)

	// AssessmentDuration tracks assessment run duration
	AssessmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fairmeter",
			Subsystem: "assessment",
			Name:      "run_duration_seconds",
			Help:      "Duration of assessment runs in seconds",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300},
		},
	)
)

// StatusClass buckets an HTTP status code for labels
func StatusClass(code int) string {
	switch {
	case code == 0:
		return "error"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
