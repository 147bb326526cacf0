// Package metrics defines the Prometheus collectors for the capture workflow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "fotobox"

// Result and outcome label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"

	OutcomeReady    = "ready"
	OutcomeNotReady = "not_ready"
	OutcomeError    = "error"
)

var (
	// CapturesTotal counts frame captures by result.
	CapturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Total number of frames captured from the camera",
		},
		[]string{"result"},
	)

	// UploadsTotal counts uploads to the processing service by result.
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of image uploads",
		},
		[]string{"result"},
	)

	// PollsTotal counts result polls by outcome.
	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Total number of processed-image polls",
		},
		[]string{"outcome"},
	)

	// ProcessingSeconds observes the time from upload to a displayed result.
	ProcessingSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_seconds",
			Help:      "Time between a successful upload and the processed image becoming available",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
	)
)

var allMetrics = []prometheus.Collector{
	CapturesTotal,
	UploadsTotal,
	PollsTotal,
	ProcessingSeconds,
}

// NewRegistry returns a registry holding the workflow collectors and the Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, collector := range allMetrics {
		reg.MustRegister(collector)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}
