/*
Package metrics provides Prometheus metrics collection and exposition for
clustercore.

It defines and registers every clustercore metric using the Prometheus
client library: gossip membership and round timing, RPC request counts
and latency, service lifecycle duration, orchestrator package installs,
update-engine rollouts, and hash-cracking job progress. Metrics are
exposed over HTTP for scraping by a Prometheus server.

# Metric categories

	Cluster:      clustercore_nodes_total, clustercore_services_total
	Gossip:       clustercore_gossip_interval_seconds, clustercore_gossip_round_duration_seconds
	RPC:          clustercore_rpc_requests_total, clustercore_rpc_request_duration_seconds
	Service:      clustercore_service_init_duration_seconds, clustercore_service_rollbacks_total
	Orchestrator: clustercore_package_installs_total, clustercore_package_distribute_duration_seconds
	Update:       clustercore_updates_applied_total
	Hash job:     clustercore_hash_jobs_total, clustercore_hash_chunks_completed_total,
	              clustercore_hash_combinations_per_second

All of the above are registered against the default Prometheus registry
at package init and served from Handler(), typically mounted at /metrics.

# Per-service metrics

Cluster-wide gauges live here as package vars, but each running service
instance also owns its own Bag — a small set of counters, gauges, and
bounded-window timers (see bag.go) that a service updates directly and
that the service manager can snapshot for introspection without going
through Prometheus at all.

# Collector

Collector periodically samples cluster-wide gauges (node counts by role
and status, installed service count) from this node's gossip table and
local store. There is no leader or replicated log to sample here, so
unlike a Raft-based system's metrics collector, Collector only ever
reads local state.

# Health

HealthChecker tracks named components (gossip, rpc, and whatever else
registers itself) and answers /health, /ready, and /live over HTTP.
Readiness specifically requires gossip and rpc to report healthy before
a node is considered ready to take traffic.

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
