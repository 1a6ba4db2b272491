// Package metrics collects per-run counters for fixture generation and
// sending. Each run owns its own registry so tests and concurrent runs never
// share global state.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry *prometheus.Registry

	messagesWritten *prometheus.CounterVec
	bytesWritten    *prometheus.CounterVec
	payloads        prometheus.Histogram
	requestLatency  prometheus.Histogram
	responses       *prometheus.CounterVec
	sendErrors      prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		messagesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hamustro_fixture_messages_total",
			Help: "Total number of messages written as fixtures.",
		}, []string{"version"}),

		bytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hamustro_fixture_bytes_total",
			Help: "Total bytes of serialized fixture bodies written.",
		}, []string{"format"}),

		payloads: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hamustro_message_payloads",
			Help:    "Number of payloads carried per generated message.",
			Buckets: []float64{1, 2, 5, 10, 15, 20, 25},
		}),

		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hamustro_send_duration_seconds",
			Help:    "Time between sending a message and receiving the response.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),

		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hamustro_send_responses_total",
			Help: "Responses received from the collector by status code.",
		}, []string{"code"}),

		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hamustro_send_errors_total",
			Help: "Sends that failed before a response was received.",
		}),
	}

	m.registry.MustRegister(
		m.messagesWritten,
		m.bytesWritten,
		m.payloads,
		m.requestLatency,
		m.responses,
		m.sendErrors,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for promhttp or gathering
// in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveMessage records one generated message. Safe on a nil receiver.
func (m *Metrics) ObserveMessage(version string, payloadCount int) {
	if m == nil {
		return
	}
	m.messagesWritten.WithLabelValues(version).Inc()
	m.payloads.Observe(float64(payloadCount))
}

func (m *Metrics) ObserveBody(format string, size int) {
	if m == nil {
		return
	}
	m.bytesWritten.WithLabelValues(format).Add(float64(size))
}

// ObserveResponse records a completed request. A zero code counts as a
// transport failure.
func (m *Metrics) ObserveResponse(code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if code == 0 {
		m.sendErrors.Inc()
		return
	}
	m.requestLatency.Observe(elapsed.Seconds())
	m.responses.WithLabelValues(strconv.Itoa(code)).Inc()
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
