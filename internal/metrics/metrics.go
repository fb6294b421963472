// Package metrics exposes the speech pipeline counters and histograms in
// Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/book-expert/speech-gateway/internal/tts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace    = "speech"
	statusOK     = "ok"
	labelFormat  = "format"
	labelStatus  = "status"
	labelTrimmed = "trimmed"
)

// Metrics implements tts.Recorder on a private registry, so several instances
// can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	audioBytes      *prometheus.CounterVec
	audioSeconds    *prometheus.HistogramVec
	cleanings       *prometheus.CounterVec
	cleanFallbacks  prometheus.Counter
	httpRequests    *prometheus.CounterVec
}

var _ tts.Recorder = (*Metrics)(nil)

// New creates the collectors and registers them together with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Synthesis requests by response format and outcome.",
			},
			[]string{labelFormat, labelStatus},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Time to produce encoded audio.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{labelFormat},
		),

		audioBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audio_bytes_total",
				Help:      "Encoded audio bytes returned.",
			},
			[]string{labelFormat},
		),

		audioSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "audio_duration_seconds",
				Help:      "Duration of returned audio.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{labelFormat},
		),

		cleanings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "silence_trims_total",
				Help:      "Silence trimming runs, by whether only the first segment was kept.",
			},
			[]string{labelTrimmed},
		),

		cleanFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "silence_trim_fallbacks_total",
				Help:      "Silence trimming failures that kept the original waveform.",
			},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code.",
			},
			[]string{"route", "code"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.audioBytes,
		m.audioSeconds,
		m.cleanings,
		m.cleanFallbacks,
		m.httpRequests,
	)

	return m
}

// ObserveRequest counts a finished request. An empty kind is a success.
func (m *Metrics) ObserveRequest(format string, kind tts.Kind, elapsed time.Duration) {
	status := statusOK
	if kind != "" {
		status = string(kind)
	}

	m.requests.WithLabelValues(format, status).Inc()

	if kind == "" {
		m.requestDuration.WithLabelValues(format).Observe(elapsed.Seconds())
	}
}

// ObserveAudio records the size and duration of a returned clip.
func (m *Metrics) ObserveAudio(format string, sizeBytes int, duration time.Duration) {
	m.audioBytes.WithLabelValues(format).Add(float64(sizeBytes))
	m.audioSeconds.WithLabelValues(format).Observe(duration.Seconds())
}

// ObserveCleaning records one silence trimming run.
func (m *Metrics) ObserveCleaning(segments, kept int, degraded bool) {
	if degraded {
		m.cleanFallbacks.Inc()

		return
	}

	m.cleanings.WithLabelValues(strconv.FormatBool(kept < segments)).Inc()
}

// ObserveHTTP counts a served HTTP request.
func (m *Metrics) ObserveHTTP(route string, code int) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
