// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CapabilityDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voice_gateway_capability_duration_seconds",
			Help:    "Time taken by capability handlers in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120, 180},
		},
		[]string{"capability"},
	)

	CapabilityRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_gateway_capability_requests_total",
			Help: "Capability requests by outcome",
		},
		[]string{"capability", "outcome"},
	)

	BackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_gateway_backend_errors_total",
			Help: "Failed round trips to the generative-AI backend",
		},
		[]string{"capability"},
	)

	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "voice_gateway_upload_bytes",
			Help:    "Size of accepted audio uploads",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 8),
		},
	)

	ArtifactsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voice_gateway_artifacts_in_flight",
			Help: "Temporary upload files currently on disk",
		},
	)

	SynthesizedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_gateway_synthesized_bytes_total",
			Help: "Audio bytes returned by speech synthesis",
		},
		[]string{"format"},
	)

	LedgerFlushErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voice_gateway_ledger_flush_errors_total",
			Help: "Ledger batches dropped after exhausting retries",
		},
	)

	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_gateway_status_code",
			Help: "Status Codes",
		},
		[]string{"path", "status_code"},
	)
)
