/*
Package security implements clustercore's trust layer: the coordinator's
self-signed certificate authority, the challenge-response bootstrap flow
that issues a worker its leaf certificate, and HMAC-signed bearer tokens
used to authenticate RPC calls.

Only the coordinator ever holds the CA private key. Workers hold a leaf
certificate and the CA's public certificate, obtained via the bootstrap
flow in bootstrap.go and refreshed automatically as certs.go's
NeedsReissue detects approaching expiry or CA rotation.
*/
package security
