/*
Package types defines the core data structures shared across clustercore.

This package holds the domain model described by the distributed runtime:
node membership records, versioned gossip metadata, method registry
entries, service lifecycle records, auth tokens, certificate bundles and
the hash-cracking job/batch model. Nothing in this package imports any
other clustercore package, so every component — gossip, rpc, service,
security, orchestrator, hashjob — can depend on it without cycles.

# Ownership

A node's own NodeInfo is owned and mutated by that node; every other
NodeInfo in its table is owned by the gossip layer and replaced wholesale
on each merge, never mutated field-by-field. HashJob is owned by the
coordinator service; HashBatch is published into gossip so workers can
claim chunks without an RPC round trip.

# Thread safety

Types in this package carry no locks of their own. Callers that share a
value across goroutines (the gossip peer table, the method registry) are
responsible for synchronizing access; see the owning package's doc
comment for its specific discipline.
*/
package types
