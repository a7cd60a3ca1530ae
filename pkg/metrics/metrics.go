// Package metrics provides Prometheus instrumentation for the simPRO tap.
//
// # Overview
//
// The tap records:
//   - HTTP requests per stream and status code, with latency
//   - time spent waiting at the request gate
//   - records emitted per stream
//   - the last bookmark written per stream, as a Unix timestamp
//
// # Basic Usage
//
//	timer := metrics.NewTimer("jobs")
//	resp, err := do(req)
//	metrics.ObserveRequest("jobs", resp.StatusCode, timer.Stop())
//
//	metrics.RecordsEmitted.WithLabelValues("jobs").Inc()
//
// Metrics register with the default Prometheus registry; the CLI exposes
// them through promhttp when --metrics-addr is set.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts API requests.
	// Labels: stream, status (HTTP code, or "error" for transport failures)
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simpro_http_requests_total",
			Help: "Total number of simPRO API requests",
		},
		[]string{"stream", "status"},
	)

	// HTTPRequestDuration tracks request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "simpro_http_request_duration_seconds",
			Help:    "simPRO API request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stream"},
	)

	// GateWait tracks how long requests waited for a slot and a token.
	GateWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "simpro_gate_wait_seconds",
			Help:    "Time requests spent blocked on the concurrency and rate gate",
			Buckets: []float64{0, 0.01, 0.05, 0.125, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	// RecordsEmitted counts RECORD messages written.
	RecordsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simpro_records_emitted_total",
			Help: "Total number of records emitted",
		},
		[]string{"stream"},
	)

	// BookmarkTimestamp is the last bookmark written for a stream.
	BookmarkTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simpro_bookmark_timestamp_seconds",
			Help: "Unix time of the last bookmark written per stream",
		},
		[]string{"stream"},
	)
)

// ObserveRequest records one completed request. status <= 0 marks a
// transport failure.
func ObserveRequest(stream string, status int, latency time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	HTTPRequests.WithLabelValues(stream, label).Inc()
	HTTPRequestDuration.WithLabelValues(stream).Observe(latency.Seconds())
}

// ObserveGateWait records time spent at the request gate
func ObserveGateWait(wait time.Duration) {
	GateWait.Observe(wait.Seconds())
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Stop returns the elapsed time since the timer was created
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// Name returns the timer name
func (t *Timer) Name() string {
	return t.name
}
