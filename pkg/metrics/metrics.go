package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry metrics
	WorkloadsRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nodeobserver_workloads_registered",
			Help: "Number of workloads currently held in the registry",
		},
	)

	WatchRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodeobserver_watch_restarts_total",
			Help: "Total number of watch-stream restarts by watcher",
		},
		[]string{"watcher"},
	)

	// Probe loader metrics
	ProbeEventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodeobserver_probe_events_dropped_total",
			Help: "Total number of kernel events dropped, because the forwarding channel was full (network, syscall) or the perf ring overran (network_ring, syscall_ring)",
		},
		[]string{"channel"},
	)

	ProbeEventsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodeobserver_probe_events_received_total",
			Help: "Total number of kernel events read off the perf rings",
		},
		[]string{"channel"},
	)

	// Flow classifier metrics
	FlowsEmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nodeobserver_flows_emitted_total",
			Help: "Total number of unique traffic records forwarded to the collector",
		},
	)

	FlowsDeduplicatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nodeobserver_flows_deduplicated_total",
			Help: "Total number of network events dropped as duplicates of an already-emitted flow",
		},
	)

	FlowsOrphanedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nodeobserver_flows_orphaned_total",
			Help: "Total number of network events dropped because their PID-namespace inode was not in the registry",
		},
	)

	// Syscall aggregator metrics
	SyscallBatchesEmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nodeobserver_syscall_batches_emitted_total",
			Help: "Total number of syscall batches POSTed to the collector",
		},
	)

	SyscallUnresolvedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nodeobserver_syscall_unresolved_total",
			Help: "Total number of syscall numbers with no name in the architecture table",
		},
	)

	SyscallEventsOrphanedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nodeobserver_syscall_events_orphaned_total",
			Help: "Total number of syscall events dropped because their PID-namespace inode was not in the registry",
		},
	)

	// Emitter metrics
	EmitterRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nodeobserver_emitter_request_duration_seconds",
			Help:    "Collector POST duration in seconds by path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	EmitterFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodeobserver_emitter_failures_total",
			Help: "Total number of failed collector POSTs by path",
		},
		[]string{"path"},
	)

	// Container resolver metrics
	ContainerResolveFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nodeobserver_container_resolve_failures_total",
			Help: "Total number of container/task/PID-namespace lookups that failed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		WorkloadsRegistered,
		WatchRestartsTotal,
		ProbeEventsDroppedTotal,
		ProbeEventsReceivedTotal,
		FlowsEmittedTotal,
		FlowsDeduplicatedTotal,
		FlowsOrphanedTotal,
		SyscallBatchesEmittedTotal,
		SyscallUnresolvedTotal,
		SyscallEventsOrphanedTotal,
		EmitterRequestDuration,
		EmitterFailuresTotal,
		ContainerResolveFailuresTotal,
	)
}

// Handler returns the Prometheus scrape handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an operation and reports its duration to a histogram on completion.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
