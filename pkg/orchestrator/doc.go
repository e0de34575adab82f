// Package orchestrator installs, exports and distributes clustercore
// service packages: gzipped tarballs with one top-level directory named
// for the service, a manifest.yaml describing it, and whatever data
// files the service needs at runtime.
//
// Unlike the dynamic "unpack and exec arbitrary code" loader this
// replaces (spec.md §9's static-registration redesign applies here
// too: clustercore services are Go code compiled into the binary via
// pkg/service.Factory, never downloaded and executed), a package
// install only ever supplies data and configuration for a Factory that
// is already compiled in. If that Factory happens to already be
// running, Install asks pkg/service.Manager to Reload it in place so
// the new files take effect immediately; otherwise the package sits on
// disk, picked up the next time the node starts with that Factory
// compiled in.
package orchestrator
