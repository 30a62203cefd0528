package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. It implements registry.Metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Plugin metrics
	LivePlugins      prometheus.Gauge
	LifecycleTotal   *prometheus.CounterVec
	CatalogSyncTotal *prometheus.CounterVec
	WatchEventsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plughost_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plughost_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plughost_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),

		LivePlugins: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plughost_live_plugins",
				Help: "Number of plugins currently mounted",
			},
		),
		LifecycleTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plughost_lifecycle_operations_total",
				Help: "Total number of install, update and delete operations",
			},
			[]string{"operation", "status"},
		),
		CatalogSyncTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plughost_catalog_sync_total",
				Help: "Total number of catalog synchronizations",
			},
			[]string{"operation", "status"},
		),
		WatchEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plughost_watch_events_total",
				Help: "Total number of handled filesystem events by outcome",
			},
			[]string{"action"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.LivePlugins,
		m.LifecycleTotal,
		m.CatalogSyncTotal,
		m.WatchEventsTotal,
	)

	return m
}

// SetLivePlugins records the number of mounted plugins
func (m *Metrics) SetLivePlugins(n int) {
	m.LivePlugins.Set(float64(n))
}

// ObserveLifecycle counts an install, update or delete
func (m *Metrics) ObserveLifecycle(op string, err error) {
	m.LifecycleTotal.WithLabelValues(op, status(err)).Inc()
}

// ObserveCatalogSync counts a catalog synchronization
func (m *Metrics) ObserveCatalogSync(op string, err error) {
	m.CatalogSyncTotal.WithLabelValues(op, status(err)).Inc()
}

// ObserveWatchEvent counts a handled filesystem event
func (m *Metrics) ObserveWatchEvent(action string) {
	m.WatchEventsTotal.WithLabelValues(action).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// It must run as gorilla/mux middleware so that requests are labelled by
// route template rather than by raw path.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// routeLabel returns the matched route template, or "unmatched"
func routeLabel(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}
	if tpl, err := route.GetPathTemplate(); err == nil {
		return tpl
	}
	return "unmatched"
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
