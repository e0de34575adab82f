// Package update is clustercore's self-update engine: it checks the
// coordinator's update catalog, downloads and verifies a signed bundle,
// backs up the current install root, and installs the new one with
// rollback on any failure from extraction onward.
//
// A cluster-wide rollout (rolling, canary, all-at-once, or blue-green —
// aliased to all-at-once for a single-process-per-node runtime, see
// DESIGN.md) drives InstallUpdate across a set of target nodes, the
// same batching/delay idiom the teacher's deployer uses for container
// rolling updates, applied here to the node binary's own state instead.
package update
