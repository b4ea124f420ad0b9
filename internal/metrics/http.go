package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// HTTPMetrics records request counts and latencies of the HTTP surface.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	logger   zerolog.Logger
	slow     time.Duration
}

// NewHTTPMetrics registers the HTTP metrics on the recorder's registry.
// Requests slower than slow are logged as warnings; zero disables that.
func (r *Recorder) NewHTTPMetrics(logger zerolog.Logger, slow time.Duration) *HTTPMetrics {
	f := promauto.With(r.registry)
	return &HTTPMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route", "method", "class"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: r.namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Requests being served",
		}),
		logger: logger,
		slow:   slow,
	}
}

// Middleware is the gin middleware. Routes are labelled by their template
// to keep cardinality low.
func (m *HTTPMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.inFlight.Inc()
		start := time.Now()

		c.Next()

		m.inFlight.Dec()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		code := c.Writer.Status()
		d := time.Since(start)

		m.requests.WithLabelValues(route, c.Request.Method, statusLabel(code)).Inc()
		m.duration.WithLabelValues(route, c.Request.Method, statusClass(code)).Observe(d.Seconds())

		switch {
		case code >= 500:
			m.logger.Error().Str("route", route).Str("method", c.Request.Method).Int("status", code).Dur("duration", d).Msg("http request failed")
		case m.slow > 0 && d >= m.slow:
			m.logger.Warn().Str("route", route).Str("method", c.Request.Method).Int("status", code).Dur("duration", d).Msg("http request slow")
		}
	}
}
