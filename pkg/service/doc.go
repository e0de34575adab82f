// Package service is clustercore's pluggable service lifecycle: typed
// Factories register themselves at init time, the Manager orders them
// by their declared dependencies and brings them up in that order,
// rolling back (reverse-order shutdown) if any Init call fails.
//
// This replaces the reflection-based "scan a services/ directory"
// loading original_source/layers/application_context.py's component
// registry describes — spec.md §9 flags that as a redesign target, so
// clustercore's services are compiled in and registered explicitly.
package service
