/*
Package storage provides BoltDB-backed persistence for one node's local
state: the certificate authority (coordinator only), installed-service
metadata, the bearer token revocation list, the hash job archive, and the
last-known gossip peer table snapshot restored on restart.

This is deliberately not a replicated log — spec.md's Non-goals exclude
durable distributed queues, so every bucket here belongs to exactly this
node and is safe to lose (the gossip layer, §4.2, is the source of truth
for cluster-wide state; this package only remembers what the process
itself needs to survive a restart without waiting on a gossip round).
*/
package storage
