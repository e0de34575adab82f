/*
Package rpc is clustercore's method registry and call layer. Services
register handlers under service/method paths; the HTTPS /rpc endpoint
dispatches incoming calls by path, verifying a bearer token for every
non-public method. The ServiceProxy builder resolves a call to a local
dispatch, a specific peer, or a randomly-chosen node of a given role,
without the caller needing to know which.
*/
package rpc
