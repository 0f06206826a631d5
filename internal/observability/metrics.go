package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aaveCustody/internal/custody"
)

// Metrics holds the custody service's Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Events            *prometheus.CounterVec
	SinkErrors        *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
}

// NewMetrics creates metrics on a fresh registry with Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_operations_total",
			Help: "Custody operations by outcome",
		}, []string{"operation", "result"}),

		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custody_operation_duration_seconds",
			Help:    "Custody operation latency including forwarded calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60},
		}, []string{"operation"}),

		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_events_total",
			Help: "Custody notifications emitted",
		}, []string{"kind"}),

		SinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_event_sink_errors_total",
			Help: "Event deliveries abandoned after retries",
		}, []string{"sink"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_http_requests_total",
			Help: "Read API requests by route and status",
		}, []string{"route", "status"}),
	}
}

var _ custody.Recorder = (*Metrics)(nil)

// ObserveOperation implements custody.Recorder.
func (m *Metrics) ObserveOperation(operation string, err error, elapsed time.Duration) {
	m.Operations.WithLabelValues(operation, resultLabel(err)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveEvent counts an emitted notification.
func (m *Metrics) ObserveEvent(kind string) {
	m.Events.WithLabelValues(kind).Inc()
}

// ObserveSinkError counts an abandoned delivery.
func (m *Metrics) ObserveSinkError(sink string) {
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// ObserveRequest counts a served read API request.
func (m *Metrics) ObserveRequest(route string, status int) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, custody.ErrAccessDenied):
		return "denied"
	default:
		return "error"
	}
}
