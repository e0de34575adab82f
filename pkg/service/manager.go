package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/clustercore/clustercore/pkg/app"
	"github.com/clustercore/clustercore/pkg/clustererr"
	"github.com/clustercore/clustercore/pkg/log"
	"github.com/clustercore/clustercore/pkg/metrics"
	"github.com/clustercore/clustercore/pkg/types"
)

// Instance is one loaded service's runtime state: the Factory that
// built it, its current lifecycle status, and the Bag it accumulates
// its own counters/gauges/timers into.
type Instance struct {
	Factory Factory
	Status  types.ServiceStatus
	Metrics *metrics.Bag
}

// Manager owns the set of services loaded on one node, brings them up
// in dependency order, and tears them down in reverse. It is built once
// per *app.Context — never a package-level global, same as everything
// else the runtime wires (see pkg/app.Context).
type Manager struct {
	app *app.Context

	mu         sync.RWMutex
	instances  map[string]*Instance
	startOrder []string // names in the order Init succeeded, for Stop/rollback
}

// NewManager builds a Manager over every statically Register-ed
// Factory. Factories discovered after NewManager is called (there are
// none in clustercore's compiled-in manifest, but tests may register
// ad hoc ones) are picked up the next time Start is called.
func NewManager(c *app.Context) *Manager {
	return &Manager{
		app:       c,
		instances: make(map[string]*Instance),
	}
}

// Start orders every registered Factory by its declared dependencies
// and calls Init on each in that order. If any Init fails, everything
// already started is shut down in reverse order (the same rollback
// original_source's P2PApplicationContext.initialize_all performs) and
// the original error is returned.
func (m *Manager) Start(ctx context.Context) error {
	factories := Registered()

	order, err := topoSort(factories)
	if err != nil {
		return err
	}

	byName := make(map[string]Factory, len(factories))
	for _, f := range factories {
		byName[f.Name()] = f
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, name := range order {
		f := byName[name]
		inst := &Instance{Factory: f, Status: types.ServiceInitializing, Metrics: metrics.NewBag()}
		m.instances[name] = inst

		timer := metrics.NewTimer()
		initErr := f.Init(ctx, m.app)
		timer.ObserveDurationVec(metrics.ServiceInitDuration, name)

		if initErr != nil {
			inst.Status = types.ServiceError
			log.WithComponent("service").Error().Err(initErr).Str("service", name).Msg("init failed, rolling back")
			metrics.ServiceRollbacksTotal.Inc()
			m.rollbackLocked(ctx)
			return fmt.Errorf("init service %q: %w", name, initErr)
		}

		inst.Status = types.ServiceRunning
		m.startOrder = append(m.startOrder, name)
	}

	return nil
}

// rollbackLocked shuts down every service already started, in reverse
// order, and clears startOrder. Callers must hold m.mu.
func (m *Manager) rollbackLocked(ctx context.Context) {
	for i := len(m.startOrder) - 1; i >= 0; i-- {
		name := m.startOrder[i]
		inst := m.instances[name]
		if err := inst.Factory.Shutdown(ctx); err != nil {
			log.WithComponent("service").Warn().Err(err).Str("service", name).Msg("rollback shutdown failed")
		}
		inst.Status = types.ServiceStopped
	}
	m.startOrder = nil
}

// Stop shuts down every running service in reverse start order.
// Individual shutdown errors are logged, not returned — Stop always
// proceeds through the whole list.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.startOrder) - 1; i >= 0; i-- {
		name := m.startOrder[i]
		inst := m.instances[name]
		inst.Status = types.ServiceStopping
		if err := inst.Factory.Shutdown(ctx); err != nil {
			log.WithComponent("service").Warn().Err(err).Str("service", name).Msg("shutdown failed")
		}
		inst.Status = types.ServiceStopped
	}
	m.startOrder = nil
	return nil
}

// Reload stops one service, unregisters its RPC methods, and re-runs
// its Factory's Init — used when a service's package is upgraded
// in-place by pkg/orchestrator without restarting the whole node.
func (m *Manager) Reload(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[name]
	if !ok {
		return clustererr.NotFound("reload", fmt.Sprintf("service %q is not loaded", name))
	}

	inst.Status = types.ServiceStopping
	if err := inst.Factory.Shutdown(ctx); err != nil {
		log.WithComponent("service").Warn().Err(err).Str("service", name).Msg("reload: shutdown failed")
	}
	m.app.Registry.Unregister(name)

	timer := metrics.NewTimer()
	inst.Status = types.ServiceInitializing
	err := inst.Factory.Init(ctx, m.app)
	timer.ObserveDurationVec(metrics.ServiceInitDuration, name)
	if err != nil {
		inst.Status = types.ServiceError
		return fmt.Errorf("reload service %q: %w", name, err)
	}

	inst.Status = types.ServiceRunning
	return nil
}

// Get returns the Instance loaded under name, if any.
func (m *Manager) Get(name string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[name]
	return inst, ok
}

// Views projects every loaded service into the gossip-carried
// ServiceView shape, for pkg/gossip's self-node snapshot.
func (m *Manager) Views() map[string]types.ServiceView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]types.ServiceView, len(m.instances))
	for name, inst := range m.instances {
		methods := make([]string, 0, len(inst.Factory.Methods()))
		for _, me := range inst.Factory.Methods() {
			methods = append(methods, me.Path)
		}
		out[name] = types.ServiceView{
			Status:  string(inst.Status),
			Version: inst.Factory.Version(),
			Methods: methods,
		}
	}
	return out
}

// topoSort Kahn-orders factories by their declared dependencies,
// returning clustererr.Dependency if a cycle or a missing dependency
// name is found.
func topoSort(factories []Factory) ([]string, error) {
	byName := make(map[string]Factory, len(factories))
	indegree := make(map[string]int, len(factories))
	dependents := make(map[string][]string)

	for _, f := range factories {
		byName[f.Name()] = f
		if _, ok := indegree[f.Name()]; !ok {
			indegree[f.Name()] = 0
		}
	}
	for _, f := range factories {
		for _, dep := range f.Dependencies() {
			if _, ok := byName[dep]; !ok {
				return nil, clustererr.Dependency("topoSort", fmt.Sprintf("service %q depends on unregistered service %q", f.Name(), dep))
			}
			indegree[f.Name()]++
			dependents[dep] = append(dependents[dep], f.Name())
		}
	}

	var queue []string
	for name, deg := range indegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}

	var order []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)
		for _, dependent := range dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(factories) {
		return nil, clustererr.Dependency("topoSort", "service dependency graph has a cycle")
	}

	return order, nil
}
