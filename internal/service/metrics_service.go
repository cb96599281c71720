package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP and
// websocket surfaces.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	wsConnections   prometheus.Gauge
	onlineUsers     prometheus.Gauge
	broadcastTotal  *prometheus.CounterVec
	authFailures    *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	wsConnections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections",
		Help: "Currently open websocket connections",
	})

	onlineUsers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_online_users",
		Help: "Users with at least one open websocket connection",
	})

	broadcastTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_broadcasts_total",
		Help: "Total realtime events fanned out to clients",
	}, []string{"type"})

	authFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "Total failed login and refresh attempts",
	}, []string{"operation"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, wsConnections, onlineUsers, broadcastTotal, authFailures, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		wsConnections:   wsConnections,
		onlineUsers:     onlineUsers,
		broadcastTotal:  broadcastTotal,
		authFailures:    authFailures,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request duration and count.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// SetConnections updates the open websocket connection gauge.
func (m *MetricsService) SetConnections(count int) {
	if m == nil {
		return
	}
	m.wsConnections.Set(float64(count))
}

// SetOnlineUsers updates the online user gauge.
func (m *MetricsService) SetOnlineUsers(count int) {
	if m == nil {
		return
	}
	m.onlineUsers.Set(float64(count))
}

// CountBroadcast counts one fanned-out realtime event by type.
func (m *MetricsService) CountBroadcast(eventType string) {
	if m == nil {
		return
	}
	m.broadcastTotal.WithLabelValues(eventType).Inc()
}

// CountAuthFailure counts one failed credential operation.
func (m *MetricsService) CountAuthFailure(operation string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(operation).Inc()
}
