/*
Package gossip implements clustercore's membership layer: a
map[string]*types.NodeInfo table kept eventually consistent by periodic
pairwise exchange, an adaptive interval that widens under load and
narrows when idle, and a failure detector that ages a peer from alive
to suspected to dead as its last-seen timestamp falls behind.

There is no leader election and no replicated log here — every node's
table converges independently. A node that misses every exchange for
long enough is dropped from the table entirely; rejoining starts fresh.
*/
package gossip
