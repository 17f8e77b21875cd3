package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus.
type Collector struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge

	nodesExecuted *prometheus.CounterVec
	nodeDuration  *prometheus.HistogramVec

	framesSent  *prometheus.CounterVec
	cacheLookup *prometheus.CounterVec

	retries   *prometheus.CounterVec
	fallbacks *prometheus.CounterVec

	workerPoolIdle prometheus.Gauge
	workerPoolBusy prometheus.Gauge
}

// NewCollector creates and registers the engine metrics.
func NewCollector() *Collector {
	return &Collector{
		runsStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortex_runs_started_total",
				Help: "Total number of graph runs started",
			},
			[]string{"workflow"},
		),
		runsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortex_runs_completed_total",
				Help: "Total number of graph runs reaching a terminal state",
			},
			[]string{"workflow", "status"},
		),
		runDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cortex_run_duration_seconds",
				Help:    "Graph run duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"workflow", "status"},
		),
		activeRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cortex_active_runs",
				Help: "Number of runs currently in flight",
			},
		),
		nodesExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortex_nodes_executed_total",
				Help: "Total number of node invocations",
			},
			[]string{"node_type", "status"},
		),
		nodeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cortex_node_duration_seconds",
				Help:    "Node invocation duration in seconds",
				Buckets: []float64{0.005, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"node_type"},
		),
		framesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortex_frames_sent_total",
				Help: "Total number of stream frames sent, by kind",
			},
			[]string{"kind"},
		),
		cacheLookup: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortex_document_cache_lookups_total",
				Help: "Graph document cache lookups, by result",
			},
			[]string{"result"},
		),
		retries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortex_run_retries_total",
				Help: "Total number of run retry attempts",
			},
			[]string{"workflow"},
		),
		fallbacks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortex_run_fallbacks_total",
				Help: "Total number of direct-model fallback calls",
			},
			[]string{"workflow"},
		),
		workerPoolIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cortex_worker_pool_idle",
				Help: "Number of idle dispatch workers",
			},
		),
		workerPoolBusy: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cortex_worker_pool_busy",
				Help: "Number of busy dispatch workers",
			},
		),
	}
}

// RecordRunStarted counts a run start.
func (c *Collector) RecordRunStarted(workflow string) {
	c.runsStarted.WithLabelValues(workflow).Inc()
}

// RecordRunCompleted counts a terminal run and observes its duration.
func (c *Collector) RecordRunCompleted(workflow, status string, duration time.Duration) {
	c.runsCompleted.WithLabelValues(workflow, status).Inc()
	c.runDuration.WithLabelValues(workflow, status).Observe(duration.Seconds())
}

// RecordNodeExecuted counts a node invocation and observes its duration.
func (c *Collector) RecordNodeExecuted(nodeType, status string, duration time.Duration) {
	c.nodesExecuted.WithLabelValues(nodeType, status).Inc()
	c.nodeDuration.WithLabelValues(nodeType).Observe(duration.Seconds())
}

// RecordFrameSent counts one stream frame by kind.
func (c *Collector) RecordFrameSent(kind string) {
	c.framesSent.WithLabelValues(kind).Inc()
}

// RecordCacheHit counts a document cache lookup.
func (c *Collector) RecordCacheHit(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookup.WithLabelValues(result).Inc()
}

// RecordRetry counts one retry attempt.
func (c *Collector) RecordRetry(workflow string) {
	c.retries.WithLabelValues(workflow).Inc()
}

// RecordFallback counts one direct-model fallback.
func (c *Collector) RecordFallback(workflow string) {
	c.fallbacks.WithLabelValues(workflow).Inc()
}

// SetActiveRuns sets the in-flight run gauge.
func (c *Collector) SetActiveRuns(count int) {
	c.activeRuns.Set(float64(count))
}

// RecordWorkerPoolStatus sets the dispatch pool occupancy gauges.
func (c *Collector) RecordWorkerPoolStatus(idle, busy int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
}
