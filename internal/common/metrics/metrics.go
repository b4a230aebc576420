package metrics

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerMetrics tracks HTTP server request counts and latency.
type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

// NewServerMetrics registers and returns server metrics for a service.
func NewServerMetrics(service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "commerceplatform",
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"path", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "commerceplatform",
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"path"})

	prometheus.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// Middleware records request metrics for every handled request.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		m.Requests.WithLabelValues(r.URL.Path, strconv.Itoa(ww.Status())).Inc()
		m.LatencyMS.WithLabelValues(r.URL.Path).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// GatewayMetrics tracks outbound gateway calls.
type GatewayMetrics struct {
	Calls     *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

// NewGatewayMetrics registers and returns gateway call metrics.
func NewGatewayMetrics() *GatewayMetrics {
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "commerceplatform",
		Subsystem: "easypay",
		Name:      "gateway_calls_total",
		Help:      "Total number of Easypay gateway calls.",
	}, []string{"operation", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "commerceplatform",
		Subsystem: "easypay",
		Name:      "gateway_call_duration_ms",
		Help:      "Easypay gateway call latency in milliseconds.",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"operation"})

	prometheus.MustRegister(calls, latency)
	return &GatewayMetrics{Calls: calls, LatencyMS: latency}
}

// Record implements the gateway call recorder contract.
func (m *GatewayMetrics) Record(operation, status string, elapsed time.Duration) {
	m.Calls.WithLabelValues(operation, status).Inc()
	m.LatencyMS.WithLabelValues(operation).Observe(float64(elapsed.Milliseconds()))
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
