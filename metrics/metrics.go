// Package metrics holds the Prometheus instruments of the registry service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the basic namespace where all metrics are defined under.
	Namespace = "netmap"
)

// NewCounter creates a Counter metrics under the global namespace.
func NewCounter(name, subsystem, help string, labels []string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

// NewGauge creates a Gauge metrics under the global namespace.
func NewGauge(name, subsystem, help string, labels []string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

// NewHistogramWithBuckets creates a Histogram metrics with custom buckets.
func NewHistogramWithBuckets(name, subsystem, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}, labels)
}

var (
	submissions = NewCounter("submissions_total", "registry",
		"Node info submissions by outcome", []string{"result"})
	lookups = NewCounter("lookups_total", "registry",
		"Node info lookups by outcome", []string{"result"})
	builds = NewCounter("builds_total", "builder",
		"Network map builds by outcome", []string{"result"})
	buildDuration = NewHistogramWithBuckets("build_duration_seconds", "builder",
		"Time taken to build and publish a network map", []string{},
		prometheus.ExponentialBuckets(0.001, 2, 16))
	mapEntries = NewGauge("entries", "map",
		"Node info hashes in the latest published network map", []string{})
)

// Submission outcomes.
const (
	ResultAccepted  = "accepted"
	ResultDuplicate = "duplicate"
	ResultReplaced  = "replaced"
	ResultMalformed = "malformed"
	ResultSignature = "invalid_signature"
	ResultUntrusted = "untrusted_root"
	ResultConflict  = "conflict"
	ResultError     = "error"
)

func ReportSubmission(result string) {
	submissions.WithLabelValues(result).Inc()
}

// Lookup outcomes.
const (
	LookupCacheHit = "cache_hit"
	LookupStore    = "store"
	LookupNotFound = "not_found"
	LookupError    = "error"
)

func ReportLookup(result string) {
	lookups.WithLabelValues(result).Inc()
}

// ReportBuild records one build attempt. entries is ignored for failed builds.
func ReportBuild(err error, took time.Duration, entries int) {
	if err != nil {
		builds.WithLabelValues("error").Inc()
		return
	}
	builds.WithLabelValues("ok").Inc()
	buildDuration.WithLabelValues().Observe(took.Seconds())
	mapEntries.WithLabelValues().Set(float64(entries))
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
