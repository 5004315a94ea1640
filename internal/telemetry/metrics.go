package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tjfontaine/aiwire/internal/domain"
	"github.com/tjfontaine/aiwire/internal/stream"
	"github.com/tjfontaine/aiwire/internal/wire"
)

// RequestBuckets suits model inference latencies, from 100ms to 120s.
var RequestBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Metrics holds the client's Prometheus collectors. It implements
// stream.Observer.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveStreams   *prometheus.GaugeVec
	FramesTotal     *prometheus.CounterVec
	DecodeErrors    *prometheus.CounterVec
	StreamsEnded    *prometheus.CounterVec
}

// NewMetrics creates the collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aiwire_requests_total",
				Help: "Requests sent to the remote service",
			},
			[]string{"operation", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aiwire_request_duration_seconds",
				Help:    "Time until response headers arrived",
				Buckets: RequestBuckets,
			},
			[]string{"operation"},
		),
		ActiveStreams: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aiwire_streams_active",
				Help: "Streams currently open",
			},
			[]string{"stream"},
		),
		FramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aiwire_stream_frames_total",
				Help: "Wire frames received",
			},
			[]string{"stream", "kind"},
		),
		DecodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aiwire_stream_decode_errors_total",
				Help: "Frames that failed to decode",
			},
			[]string{"stream", "kind"},
		),
		StreamsEnded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aiwire_streams_ended_total",
				Help: "Streams ended by final state",
			},
			[]string{"stream", "state"},
		),
	}
	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveStreams,
		m.FramesTotal,
		m.DecodeErrors,
		m.StreamsEnded,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one request. status is the HTTP status, or 0 when no
// response arrived.
func (m *Metrics) ObserveRequest(operation string, status int, elapsed time.Duration) {
	label := "error"
	if status != 0 {
		label = strconv.Itoa(status)
	}
	m.RequestsTotal.WithLabelValues(operation, label).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) StreamStarted(name string) {
	m.ActiveStreams.WithLabelValues(name).Inc()
}

func (m *Metrics) FrameReceived(name string, kind wire.FrameKind) {
	m.FramesTotal.WithLabelValues(name, kind.String()).Inc()
}

func (m *Metrics) DecodeFailed(name string, kind domain.ErrorKind) {
	m.DecodeErrors.WithLabelValues(name, string(kind)).Inc()
}

func (m *Metrics) StreamEnded(name string, state stream.State) {
	m.ActiveStreams.WithLabelValues(name).Dec()
	m.StreamsEnded.WithLabelValues(name, state.String()).Inc()
}

var _ stream.Observer = (*Metrics)(nil)
