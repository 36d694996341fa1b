// Package observability exposes the Prometheus metrics of the payload core.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DefaultRegistry is the default Prometheus registry
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer is the default Prometheus registerer
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "servio"}, DefaultRegistry)

	metricsOnce sync.Once
	metrics     *Metrics
)

// Metrics holds all Prometheus metrics of the payload core
type Metrics struct {
	// Request metrics
	RequestsTotal *prometheus.CounterVec

	// Session metrics
	SessionsActive prometheus.Gauge

	// Multipart upload metrics
	TempFilesCreated prometheus.Counter
	TempFilesDeleted prometheus.Counter
	MultipartBytes   prometheus.Counter

	// Codec metrics
	CodecBytesIn   *prometheus.CounterVec
	CodecBytesOut  *prometheus.CounterVec
	CodecFailures  *prometheus.CounterVec
	WSMessagesSent prometheus.Counter
	WSMessagesRecv prometheus.Counter
}

// Get returns the global metrics instance
func Get() *Metrics {
	metricsOnce.Do(func() {
		metrics = New(DefaultRegisterer)
	})
	return metrics
}

// New creates a new metrics collection
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}

	return &Metrics{
		RequestsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "servio_requests_total",
				Help: "Total number of request contexts constructed",
			},
			[]string{"method"},
		),
		SessionsActive: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "servio_sessions_active",
				Help: "Number of live server sessions",
			},
		),
		TempFilesCreated: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "servio_multipart_tempfiles_created_total",
				Help: "Temporary upload files created",
			},
		),
		TempFilesDeleted: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "servio_multipart_tempfiles_deleted_total",
				Help: "Temporary upload files deleted on field teardown",
			},
		),
		MultipartBytes: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "servio_multipart_bytes_total",
				Help: "Bytes accepted by multipart field sinks",
			},
		),
		CodecBytesIn: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "servio_codec_bytes_in_total",
				Help: "Bytes fed into the compression codecs",
			},
			[]string{"codec", "direction"},
		),
		CodecBytesOut: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "servio_codec_bytes_out_total",
				Help: "Bytes produced by the compression codecs",
			},
			[]string{"codec", "direction"},
		),
		CodecFailures: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "servio_codec_failures_total",
				Help: "Codec operations aborted with an error",
			},
			[]string{"codec", "direction"},
		),
		WSMessagesSent: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "servio_ws_messages_sent_total",
				Help: "WebSocket data messages written",
			},
		),
		WSMessagesRecv: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "servio_ws_messages_received_total",
				Help: "WebSocket data messages read",
			},
		),
	}
}
