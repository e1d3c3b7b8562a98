// Package prometheus provides Prometheus metrics for the PlayHT client.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "playht"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// leaseAcquisitionsTotal counts credential acquisitions by kind and outcome.
	leaseAcquisitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lease_acquisitions_total",
			Help:      "Total number of lease and coordinate acquisitions",
		},
		[]string{"credential", "status"}, // credential: lease, coordinates
	)

	// leaseAcquisitionDuration is a histogram of acquisition latency, retries included.
	leaseAcquisitionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lease_acquisition_duration_seconds",
			Help:      "Duration of lease and coordinate acquisitions in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"credential"},
	)

	// congestionQueueDepth is the number of chunk requests waiting for admission.
	congestionQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "congestion_queue_depth",
			Help:      "Number of chunk requests waiting for admission",
		},
		[]string{"controller"},
	)

	// rpcRetriesTotal counts reopened RPC streams.
	rpcRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_stream_retries_total",
			Help:      "Total number of RPC stream reopen attempts",
		},
		[]string{"kind"}, // kind: retry, fallback
	)

	// generationsTotal counts public calls by engine, operation and outcome.
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of speech generation calls",
		},
		[]string{"engine", "operation", "status"},
	)

	// generationDuration is a histogram of one-shot generation duration.
	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Duration of speech generation calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"engine", "operation"},
	)

	// chunksTotal counts per-chunk synthesis requests.
	chunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Total number of text chunks sent for synthesis",
		},
		[]string{"engine", "status"},
	)

	// timeToFirstAudio is a histogram of latency until the first audio byte of a stream.
	timeToFirstAudio = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "time_to_first_audio_seconds",
			Help:      "Latency from request to first audio byte in seconds",
			Buckets:   []float64{.05, .1, .2, .3, .5, .75, 1, 2, 5},
		},
		[]string{"engine"},
	)

	// streamsActive is a gauge of currently open output streams.
	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently open audio streams",
		},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		leaseAcquisitionsTotal,
		leaseAcquisitionDuration,
		congestionQueueDepth,
		rpcRetriesTotal,
		generationsTotal,
		generationDuration,
		chunksTotal,
		timeToFirstAudio,
		streamsActive,
	}
)

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// RecordLeaseAcquisition records a finished credential acquisition.
func RecordLeaseAcquisition(credential string, err error, durationSeconds float64) {
	leaseAcquisitionsTotal.WithLabelValues(credential, status(err)).Inc()
	leaseAcquisitionDuration.WithLabelValues(credential).Observe(durationSeconds)
}

// SetQueueDepth records the current admission queue length of a controller.
func SetQueueDepth(controller string, depth int) {
	congestionQueueDepth.WithLabelValues(controller).Set(float64(depth))
}

// RecordRPCRetry records a reopened RPC stream. kind is "retry" or "fallback".
func RecordRPCRetry(kind string) {
	rpcRetriesTotal.WithLabelValues(kind).Inc()
}

// RecordGeneration records a public call outcome.
func RecordGeneration(engine, operation string, err error, durationSeconds float64) {
	generationsTotal.WithLabelValues(engine, operation, status(err)).Inc()
	generationDuration.WithLabelValues(engine, operation).Observe(durationSeconds)
}

// RecordChunk records a per-chunk synthesis outcome.
func RecordChunk(engine string, err error) {
	chunksTotal.WithLabelValues(engine, status(err)).Inc()
}

// RecordTimeToFirstAudio records the latency until the first audio byte.
func RecordTimeToFirstAudio(engine string, seconds float64) {
	timeToFirstAudio.WithLabelValues(engine).Observe(seconds)
}

// RecordStreamOpen records an opened output stream.
func RecordStreamOpen() {
	streamsActive.Inc()
}

// RecordStreamClose records a closed output stream.
func RecordStreamClose() {
	streamsActive.Dec()
}
