// Package fanin is the low-latency side channel named in clustercore's
// DOMAIN STACK: a gRPC streaming service workers use to push chunk
// progress and solutions to the coordinator without waiting on a
// gossip round. It carries the same payload shape as
// pkg/hashjob.chunkProgress/types.Solution, encoded as
// google.golang.org/protobuf's structpb.Struct rather than a
// hand-generated message set, since clustercore has no protoc step —
// structpb is itself a real, compiled protobuf message, so the wire
// format is genuine protobuf, not a JSON-over-gRPC shim.
package fanin
