package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	evaluationsTotal    *prometheus.CounterVec
	windowsEvaluated    *prometheus.CounterVec
	windowFailures      *prometheus.CounterVec
	evaluationDuration  *prometheus.HistogramVec
	optimizationRuns    *prometheus.CounterVec
	rollbacksTotal      *prometheus.CounterVec
	divergenceAlerts    *prometheus.CounterVec
	activeVersionSharpe *prometheus.GaugeVec
}

// NewMetrics creates and registers Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walkforward_evaluations_total",
				Help: "Total number of walk-forward evaluations",
			},
			[]string{"strategy", "verdict"},
		),
		windowsEvaluated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walkforward_windows_total",
				Help: "Total number of evaluated walk-forward windows",
			},
			[]string{"strategy"},
		),
		windowFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walkforward_window_failures_total",
				Help: "Total number of skipped windows due to backtest failures",
			},
			[]string{"strategy"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "walkforward_evaluation_duration_seconds",
				Help:    "Walk-forward evaluation duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"strategy"},
		),
		optimizationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimization_runs_total",
				Help: "Total number of re-optimization runs by final status",
			},
			[]string{"strategy", "status"},
		),
		rollbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "version_rollbacks_total",
				Help: "Total number of version rollbacks",
			},
			[]string{"strategy", "trigger"},
		),
		divergenceAlerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "live_divergence_alerts_total",
				Help: "Total number of live-vs-backtest divergence alerts",
			},
			[]string{"strategy", "level"},
		),
		activeVersionSharpe: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "active_version_expected_sharpe",
				Help: "Validated mean OOS Sharpe of the active version",
			},
			[]string{"strategy"},
		),
	}

	prometheus.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.evaluationsTotal,
		m.windowsEvaluated,
		m.windowFailures,
		m.evaluationDuration,
		m.optimizationRuns,
		m.rollbacksTotal,
		m.divergenceAlerts,
		m.activeVersionSharpe,
	)

	return m
}

// RecordEvaluation records a completed walk-forward evaluation
func (m *Metrics) RecordEvaluation(strategy string, passed bool, windows, failures int, duration time.Duration) {
	if m == nil {
		return
	}
	verdict := "failed"
	if passed {
		verdict = "passed"
	}
	m.evaluationsTotal.WithLabelValues(strategy, verdict).Inc()
	m.windowsEvaluated.WithLabelValues(strategy).Add(float64(windows))
	if failures > 0 {
		m.windowFailures.WithLabelValues(strategy).Add(float64(failures))
	}
	m.evaluationDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordOptimizationRun records a re-optimization run outcome
func (m *Metrics) RecordOptimizationRun(strategy, status string) {
	if m == nil {
		return
	}
	m.optimizationRuns.WithLabelValues(strategy, status).Inc()
}

// RecordRollback records a version rollback
func (m *Metrics) RecordRollback(strategy, trigger string) {
	if m == nil {
		return
	}
	m.rollbacksTotal.WithLabelValues(strategy, trigger).Inc()
}

// RecordDivergenceAlert records a live-vs-backtest alert
func (m *Metrics) RecordDivergenceAlert(strategy, level string) {
	if m == nil {
		return
	}
	m.divergenceAlerts.WithLabelValues(strategy, level).Inc()
}

// SetActiveVersionSharpe publishes the active version's validated Sharpe
func (m *Metrics) SetActiveVersionSharpe(strategy string, sharpe float64) {
	if m == nil {
		return
	}
	m.activeVersionSharpe.WithLabelValues(strategy).Set(sharpe)
}

// GinMiddleware returns a gin middleware recording HTTP metrics
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		m.httpRequestsTotal.WithLabelValues(
			c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.httpRequestDuration.WithLabelValues(
			c.Request.Method, endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

// PrometheusHandler returns the /metrics handler
func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
