/*
Package transport is the lowest layer of the clustercore runtime: a
pooled HTTPS client keyed by peer origin, plus the tls.Config builders
every listener and dialer in the cluster shares.

Every other component — gossip, rpc, orchestrator, update — calls
Request and interprets the returned bytes itself. transport never
parses a method name or a JSON envelope; that belongs to pkg/rpc.
*/
package transport
