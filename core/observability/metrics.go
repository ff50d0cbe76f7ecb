// Package observability exposes the runtime's connection-pool,
// worker-pool, router, and security-guard counters as Prometheus
// metrics, polled on a fixed interval and served over plain HTTP.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowgate/httpd/core/conn"
	"github.com/flowgate/httpd/core/pools"
)

// Registry owns every collector this server exports and the pollers
// that keep the gauge-shaped ones current. It is grounded on the
// teacher's PerformanceMonitor (core/observability/monitor.go): the
// same "record request outcome + periodically recompute derived
// state" shape, but recording goes to prometheus.Collector values
// instead of an atomic-counter-backed sync.Map, and "bottleneck
// detection" becomes whatever a Prometheus alerting rule decides to do
// with RequestDuration's histogram buckets rather than a bespoke
// in-process detector.
type Registry struct {
	reg *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	ConnectionsActive prometheus.Gauge
	ConnectionsFree   prometheus.Gauge
	ConnectionsKicked prometheus.Counter

	WorkerPoolQueueDepth   prometheus.Gauge
	WorkerPoolTasksRunning prometheus.Gauge

	FloodKicks        prometheus.Counter
	SendQueueRejected prometheus.Counter

	GCPauseLastSeconds prometheus.Gauge
	GCCount            prometheus.Gauge
}

// NewRegistry builds a Registry with its own prometheus.Registry
// (not the global DefaultRegisterer) so multiple Workers in-process,
// or a test, never collide on metric registration.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "httpd",
			Name:      "requests_total",
			Help:      "Total HTTP requests dispatched, by method, route, and status.",
		}, []string{"method", "route", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "httpd",
			Name:      "request_duration_seconds",
			Help:      "Handler dispatch latency in seconds, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "httpd",
			Name:      "connections_active",
			Help:      "Connection pool slots currently checked out.",
		}),
		ConnectionsFree: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "httpd",
			Name:      "connections_free",
			Help:      "Connection pool slots currently on the free list.",
		}),
		ConnectionsKicked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "httpd",
			Name:      "connections_rejected_total",
			Help:      "Connections rejected because the pool was at capacity.",
		}),

		WorkerPoolQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "httpd",
			Name:      "worker_pool_queue_depth",
			Help:      "Tasks currently queued in the shared dispatch worker pool.",
		}),
		WorkerPoolTasksRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "httpd",
			Name:      "worker_pool_tasks_pending",
			Help:      "Tasks submitted but not yet completed by the worker pool.",
		}),

		FloodKicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "httpd",
			Name:      "flood_kicks_total",
			Help:      "Connections closed for tripping the flood-detection thresholds.",
		}),
		SendQueueRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "httpd",
			Name:      "send_queue_rejected_total",
			Help:      "Writes rejected because a connection's send-queue backpressure counter was saturated.",
		}),

		GCPauseLastSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "httpd",
			Name:      "gc_pause_last_seconds",
			Help:      "Duration of the most recent garbage collection pause.",
		}),
		GCCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "httpd",
			Name:      "gc_runs_total",
			Help:      "Number of completed garbage collection cycles.",
		}),
	}
}

// Handler returns the /internal/metrics exposition endpoint for this
// registry, independent of whatever router the rest of the server
// uses (it is deliberately plain net/http, never routed through
// core/router, so metrics stay reachable even if the router itself is
// the thing misbehaving).
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// PollPools runs until stop is closed, refreshing the connection-pool
// and worker-pool gauges every interval. Counters are not polled, since
// they count edge-triggered events a poll would miss between ticks:
// FloodKicks and ConnectionsKicked are incremented inline by the event
// loop and RequestsTotal by Middleware; SendQueueRejected is not
// incremented anywhere in this module.
func (r *Registry) PollPools(stop <-chan struct{}, interval time.Duration, pool *conn.Pool, wp *pools.WorkerPool) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if pool != nil {
				s := pool.Stats()
				r.ConnectionsActive.Set(float64(s.Active))
				r.ConnectionsFree.Set(float64(s.Free))
			}
			if wp != nil {
				s := wp.Stats()
				r.WorkerPoolQueueDepth.Set(float64(s.QueueDepth))
				r.WorkerPoolTasksRunning.Set(float64(s.TasksPending))
			}
			gc := pools.GetGCStats()
			r.GCPauseLastSeconds.Set(gc.LastPause.Seconds())
			r.GCCount.Set(float64(gc.NumGC))
		}
	}
}

// RecordRequest records one completed dispatch's outcome.
func (r *Registry) RecordRequest(method, route string, status int, duration time.Duration) {
	statusLabel := statusBucket(status)
	r.RequestsTotal.WithLabelValues(method, route, statusLabel).Inc()
	r.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func statusBucket(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
