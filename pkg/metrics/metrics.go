package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clustercore_nodes_total",
			Help: "Total number of nodes by role and status",
		},
		[]string{"role", "status"},
	)

	ServicesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clustercore_services_total",
			Help: "Total number of installed services",
		},
	)

	GossipIntervalSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clustercore_gossip_interval_seconds",
			Help: "Current adaptive gossip round interval",
		},
	)

	GossipRoundDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clustercore_gossip_round_duration_seconds",
			Help:    "Time taken to exchange with one gossip target",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RPC metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clustercore_rpc_requests_total",
			Help: "Total number of RPC requests by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clustercore_rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Service lifecycle metrics
	ServiceInitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clustercore_service_init_duration_seconds",
			Help:    "Time taken to initialize a service",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	ServiceRollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clustercore_service_rollbacks_total",
			Help: "Total number of service-manager start rollbacks triggered by an Init failure",
		},
	)

	// Orchestrator metrics
	PackageInstallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clustercore_package_installs_total",
			Help: "Total number of service package installs by outcome",
		},
		[]string{"outcome"},
	)

	PackageDistributeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clustercore_package_distribute_duration_seconds",
			Help:    "Time taken to distribute a package to one target node",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Update engine metrics
	UpdatesAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clustercore_updates_applied_total",
			Help: "Total number of binary updates applied by outcome",
		},
		[]string{"outcome"},
	)

	// Hash job metrics
	HashJobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clustercore_hash_jobs_total",
			Help: "Total number of hash-cracking jobs by status",
		},
		[]string{"status"},
	)

	HashChunksCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clustercore_hash_chunks_completed_total",
			Help: "Total number of hash-cracking chunks completed by any worker",
		},
	)

	HashCombinationsPerSecond = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clustercore_hash_combinations_per_second",
			Help: "Most recently observed combination throughput for this node's hash worker",
		},
	)
)

func init() {
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(ServicesTotal)
	prometheus.MustRegister(GossipIntervalSeconds)
	prometheus.MustRegister(GossipRoundDuration)
	prometheus.MustRegister(RPCRequestsTotal)
	prometheus.MustRegister(RPCRequestDuration)
	prometheus.MustRegister(ServiceInitDuration)
	prometheus.MustRegister(ServiceRollbacksTotal)
	prometheus.MustRegister(PackageInstallsTotal)
	prometheus.MustRegister(PackageDistributeDuration)
	prometheus.MustRegister(UpdatesAppliedTotal)
	prometheus.MustRegister(HashJobsTotal)
	prometheus.MustRegister(HashChunksCompleted)
	prometheus.MustRegister(HashCombinationsPerSecond)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
