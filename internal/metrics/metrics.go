// Package metrics exposes Prometheus metrics for the polling cycles, the
// decisions, notifications, the lifecycle monitor and the bridge.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gold-scalper/internal/models"
	"gold-scalper/internal/notify"
)

const defaultNamespace = "gold_scalper"

// Recorder implements trading.Recorder using Prometheus. Each Recorder owns
// its registry so several can live in one process (tests, embedded use).
type Recorder struct {
	registry  *prometheus.Registry
	namespace string

	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	lastCycle     *prometheus.GaugeVec

	decisions *prometheus.CounterVec
	blocks    *prometheus.CounterVec
	score     prometheus.Histogram
	lastScore prometheus.Gauge

	notifications       *prometheus.CounterVec
	notificationLatency *prometheus.HistogramVec

	suivi  *prometheus.CounterVec
	bridge *prometheus.CounterVec

	lastPrice  *prometheus.GaugeVec
	lastSpread *prometheus.GaugeVec
}

// New creates a recorder registered on a fresh registry, with the Go and
// process collectors.
func New(namespace string) *Recorder {
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry:  reg,
		namespace: namespace,

		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "cycles_total",
			Help:      "Polling cycles by kind and result",
		}, []string{"kind", "result"}),
		cycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one polling cycle",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		lastCycle: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time of the last successful cycle",
		}, []string{"kind"}),

		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "decisions_total",
			Help:      "Decisions by status",
		}, []string{"status"}),
		blocks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "blocks_total",
			Help:      "NO_GO decisions by blocking rule",
		}, []string{"blocked_by"}),
		score: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "score",
			Help:      "Distribution of the decision score",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		lastScore: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "last_score",
			Help:      "Score of the last decision",
		}),

		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "messages_total",
			Help:      "Notification dispatches by kind and result",
		}, []string{"kind", "result"}),
		notificationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "latency_seconds",
			Help:      "Notification dispatch latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),

		suivi: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "suivi",
			Name:      "evaluations_total",
			Help:      "Lifecycle monitor verdicts by status",
		}, []string{"status"}),
		bridge: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "actions_total",
			Help:      "Bridge position actions by result",
		}, []string{"action", "result"}),

		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "last_price",
			Help:      "Last mid price seen by the quote poller",
		}, []string{"symbol"}),
		lastSpread: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "spread_points",
			Help:      "Last spread in points",
		}, []string{"symbol"}),
	}
}

// Registry returns the registry the metrics live in.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordCycle records one runner cycle.
func (r *Recorder) RecordCycle(kind string, d time.Duration, err error) {
	r.cycles.WithLabelValues(kind, result(err == nil)).Inc()
	r.cycleDuration.WithLabelValues(kind).Observe(d.Seconds())
	if err == nil {
		r.lastCycle.WithLabelValues(kind).SetToCurrentTime()
	}
}

// RecordDecision records the verdict of a pipeline cycle.
func (r *Recorder) RecordDecision(status models.DecisionStatus, blockedBy models.BlockedBy, score int) {
	r.decisions.WithLabelValues(string(status)).Inc()
	if blockedBy != models.BlockedNone {
		r.blocks.WithLabelValues(string(blockedBy)).Inc()
	}
	r.score.Observe(float64(score))
	r.lastScore.Set(float64(score))
}

// RecordNotification records a dispatch. Dispatches with no enabled channel
// count as skipped.
func (r *Recorder) RecordNotification(kind string, res notify.Result) {
	outcome := "skipped"
	switch {
	case res.Sent:
		outcome = "sent"
	case res.Err != nil:
		outcome = "failed"
	}
	r.notifications.WithLabelValues(kind, outcome).Inc()
	if res.Sent || res.Err != nil {
		r.notificationLatency.WithLabelValues(kind).Observe(res.Latency.Seconds())
	}
}

// RecordSuivi records a monitor verdict.
func (r *Recorder) RecordSuivi(status string) {
	r.suivi.WithLabelValues(status).Inc()
}

// RecordBridge records a bridge action.
func (r *Recorder) RecordBridge(action string, ok bool) {
	r.bridge.WithLabelValues(action, result(ok)).Inc()
}

// RecordQuote records the last quote of symbol.
func (r *Recorder) RecordQuote(symbol string, mid, spread float64) {
	r.lastPrice.WithLabelValues(symbol).Set(mid)
	r.lastSpread.WithLabelValues(symbol).Set(spread)
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func statusClass(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func statusLabel(code int) string {
	return strconv.Itoa(code)
}
