// Package metrics holds the Prometheus collectors shared by the run
// controller and the status server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Poll outcomes recorded by ObservePoll.
const (
	PollNotReady  = "not_ready"
	PollEmpty     = "empty"
	PollCompleted = "completed"
	PollError     = "error"
)

// Collector groups the simdash metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	Submissions *prometheus.CounterVec
	Polls       *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	Requests    *prometheus.CounterVec
	Latency     *prometheus.HistogramVec
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simdash_submissions_total",
				Help: "Simulation submissions by outcome.",
			},
			[]string{"outcome"},
		),
		Polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simdash_result_polls_total",
				Help: "Result poll attempts by outcome.",
			},
			[]string{"result"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simdash_run_duration_seconds",
				Help:    "Time from submission to a terminal phase.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"phase"},
		),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simdash_grpc_requests_total",
				Help: "gRPC requests served by method and status code.",
			},
			[]string{"method", "code"},
		),
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simdash_grpc_request_duration_seconds",
				Help:    "gRPC request latency by method.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}

	for _, col := range []prometheus.Collector{c.Submissions, c.Polls, c.RunDuration, c.Requests, c.Latency} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveSubmission counts a submission attempt ("accepted", "rejected", "failed").
func (c *Collector) ObserveSubmission(outcome string) {
	if c == nil {
		return
	}
	c.Submissions.WithLabelValues(outcome).Inc()
}

// ObservePoll counts one result fetch.
func (c *Collector) ObservePoll(result string) {
	if c == nil {
		return
	}
	c.Polls.WithLabelValues(result).Inc()
}

// ObserveRun records how long a run took to reach phase.
func (c *Collector) ObserveRun(phase string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.RunDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}
