package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "myria_supervisor"

// Verdict names exported on the node_* gauges.
const (
	VerdictHealthy = "healthy"
	VerdictReady   = "ready"
	VerdictAlive   = "alive"
)

// Registry owns the supervisor's prometheus collectors.
// All methods are safe on a nil *Registry and then do nothing.
type Registry struct {
	reg *prometheus.Registry

	probeRuns      *prometheus.CounterVec
	probeDuration  *prometheus.HistogramVec
	verdicts       *prometheus.GaugeVec
	lifecycleOps   *prometheus.CounterVec
	lifecycleState *prometheus.GaugeVec
	heartbeatRuns  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	buildInfo      *prometheus.GaugeVec
}

// NewRegistry creates a registry with Go and process collectors attached.
func NewRegistry(version, commit string) *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		probeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_runs_total",
			Help:      "Signal probe executions by result.",
		}, []string{"probe", "result"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Signal probe latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"probe"}),
		verdicts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "node_verdict",
			Help:      "Latest health verdicts (1 true, 0 false).",
		}, []string{"verdict"}),
		lifecycleOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_operations_total",
			Help:      "Lifecycle operations by outcome.",
		}, []string{"operation", "status"}),
		lifecycleState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lifecycle_state",
			Help:      "Current lifecycle state (1 for the active state).",
		}, []string{"state"}),
		heartbeatRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_runs_total",
			Help:      "Background heartbeat runs by status.",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "endpoint", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Supervisor build information.",
		}, []string{"version", "commit"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.probeRuns,
		r.probeDuration,
		r.verdicts,
		r.lifecycleOps,
		r.lifecycleState,
		r.heartbeatRuns,
		r.httpRequests,
		r.httpDuration,
		r.buildInfo,
	)
	r.buildInfo.WithLabelValues(version, commit).Set(1)
	return r
}

func (r *Registry) ObserveProbe(probe string, ok bool, d time.Duration) {
	if r == nil {
		return
	}
	r.probeRuns.WithLabelValues(probe, result(ok)).Inc()
	r.probeDuration.WithLabelValues(probe).Observe(d.Seconds())
}

func (r *Registry) SetVerdict(verdict string, value bool) {
	if r == nil {
		return
	}
	v := 0.0
	if value {
		v = 1
	}
	r.verdicts.WithLabelValues(verdict).Set(v)
}

func (r *Registry) ObserveLifecycle(operation string, ok bool) {
	if r == nil {
		return
	}
	r.lifecycleOps.WithLabelValues(operation, result(ok)).Inc()
}

// SetLifecycleState marks current as the single active state.
func (r *Registry) SetLifecycleState(current string, all []string) {
	if r == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		r.lifecycleState.WithLabelValues(s).Set(v)
	}
}

func (r *Registry) ObserveHeartbeat(status string) {
	if r == nil {
		return
	}
	r.heartbeatRuns.WithLabelValues(status).Inc()
}

func (r *Registry) ObserveHTTP(method, endpoint, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, endpoint, status).Inc()
	r.httpDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// Handler serves the registry in the prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}
