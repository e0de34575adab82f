package service

import (
	"context"

	"github.com/clustercore/clustercore/pkg/app"
	"github.com/clustercore/clustercore/pkg/types"
)

// Factory is what one loadable service implements. It is registered
// statically at init time via Register — there is no filesystem scan,
// services are compiled into the clustercore binary.
type Factory interface {
	// Name identifies the service and doubles as its RPC method prefix.
	Name() string

	// Version is reported in gossip's ServiceView. The orchestrator's
	// staleness check compares package manifest versions, not this value.
	Version() string

	// Dependencies lists the Names of services that must already be
	// running before Init is called.
	Dependencies() []string

	// Init brings the service up: it registers its RPC methods on
	// c.Registry, opens whatever state it needs, and returns once it is
	// ready to serve. A non-nil error aborts the whole Manager.Start
	// and rolls back everything already started.
	Init(ctx context.Context, c *app.Context) error

	// Shutdown tears the service down. Errors are logged, not
	// propagated — Manager.Stop always proceeds through every service.
	Shutdown(ctx context.Context) error

	// Methods describes the RPC surface this service exposes, for
	// callers that want the list without going through the registry.
	Methods() []types.MethodEntry
}

var registered = make(map[string]Factory)

// Register adds a Factory to the static service manifest. Called from
// each service package's init(); panics on a duplicate name since that
// can only be a build-time mistake, never a runtime condition.
func Register(f Factory) {
	name := f.Name()
	if _, exists := registered[name]; exists {
		panic("service: duplicate registration for " + name)
	}
	registered[name] = f
}

// Registered returns every statically registered Factory. Exported for
// Manager construction and for tests that want to inspect the manifest.
func Registered() []Factory {
	out := make([]Factory, 0, len(registered))
	for _, f := range registered {
		out = append(out, f)
	}
	return out
}
