// Package metrics provides Prometheus metrics collection for HTTP requests and handoff exchanges.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

const (
	subsystem = "handoff"
)

// Metrics provides Prometheus metrics collection for HTTP requests and exchanges.
// Collectors for a disabled group stay nil and their methods become no-ops.
type Metrics struct {
	reg *prometheus.Registry

	TotalHTTPRequestsCounter prometheus.Counter
	HTTPResponsesCounter     *prometheus.CounterVec
	HTTPDurationHistogram    prometheus.Histogram

	ExchangesCounter          *prometheus.CounterVec
	ExchangeDurationHistogram *prometheus.HistogramVec
	ExchangesInFlight         prometheus.Gauge

	log logger.Logger
}

// NewMetrics creates a new Metrics instance with the specified collectors enabled.
func NewMetrics(httpMetrics, exchangeMetrics bool, l logger.Logger) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		log: l,
	}

	if httpMetrics {
		m.TotalHTTPRequestsCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "total_http_requests",
			Help:      "Total HTTP requests",
		})
		m.HTTPResponsesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "http_responses_total",
			Help:      "HTTP responses returned, by status code",
		}, []string{"code"})
		m.HTTPDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.3, 0.5, 1.0, 3.0, 10.0, 30.0, 60.0, 300.0},
		})
		m.reg.MustRegister(m.TotalHTTPRequestsCounter, m.HTTPResponsesCounter, m.HTTPDurationHistogram)
	}

	if exchangeMetrics {
		m.ExchangesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "exchanges_total",
			Help:      "Exchanges handled, by outcome",
		}, []string{"outcome"})
		m.ExchangeDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "exchange_duration_seconds",
			Help:      "Time from publish to consume (or failure) of one exchange",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"})
		m.ExchangesInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "exchanges_in_flight",
			Help:      "Exchanges currently holding or waiting for the mailbox",
		})
		m.reg.MustRegister(m.ExchangesCounter, m.ExchangeDurationHistogram, m.ExchangesInFlight)
	}

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Listen starts the metrics HTTP server on the specified port. Errors other than a
// clean shutdown are sent on the returned channel; the returned func stops the server.
func (m *Metrics) Listen(port int) (chan error, func(context.Context) error) {
	m.log.Info("Starting metrics listener", logger.IntField("port", port))

	mux := http.NewServeMux()
	mux.Handle("/", http.NotFoundHandler())
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	return errChan, func(ctx context.Context) error {
		m.log.Info("Stopping metrics listener")
		return server.Shutdown(ctx)
	}
}

// AddCustomMetric registers a custom Prometheus collector.
func (m *Metrics) AddCustomMetric(c prometheus.Collector) {
	m.reg.MustRegister(c)
}

// ExchangeStarted marks one more exchange in flight.
func (m *Metrics) ExchangeStarted() {
	if m.ExchangesInFlight == nil {
		return
	}
	m.ExchangesInFlight.Inc()
}

// ExchangeFinished records the outcome and duration of one exchange.
func (m *Metrics) ExchangeFinished(outcome string, d time.Duration) {
	if m.ExchangesCounter == nil {
		return
	}
	m.ExchangesInFlight.Dec()
	m.ExchangesCounter.WithLabelValues(outcome).Inc()
	m.ExchangeDurationHistogram.WithLabelValues(outcome).Observe(d.Seconds())
}

// IncrementHTTPResponseCounter increments the counter for the given HTTP status code.
func (m *Metrics) IncrementHTTPResponseCounter(code int) {
	if m.HTTPResponsesCounter == nil {
		return
	}
	m.HTTPResponsesCounter.WithLabelValues(strconv.Itoa(code)).Inc()
}

// HTTPMiddleware returns a Chi-compatible middleware that tracks HTTP metrics
func (m *Metrics) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m.TotalHTTPRequestsCounter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.TotalHTTPRequestsCounter.Inc()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			m.HTTPDurationHistogram.Observe(time.Since(start).Seconds())
			m.IncrementHTTPResponseCounter(rw.statusCode)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
