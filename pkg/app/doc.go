// Package app wires one node's subsystems together into a single
// explicit *Context, constructed once at startup and passed down to
// every service and command that needs it. There is no package-level
// registry anywhere in clustercore; this is the one object that holds
// the wiring.
package app
