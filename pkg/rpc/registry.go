// Package rpc implements clustercore's method registry and the uniform
// local/peer/role proxy described in spec.md §4.4 and §9's "dynamic
// attribute proxy" redesign: an explicit builder in place of the
// original's __getattr__ chain.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"

	"github.com/clustercore/clustercore/pkg/clustererr"
	"github.com/clustercore/clustercore/pkg/gossip"
	"github.com/clustercore/clustercore/pkg/log"
	"github.com/clustercore/clustercore/pkg/security"
	"github.com/clustercore/clustercore/pkg/transport"
	"github.com/clustercore/clustercore/pkg/types"
)

// HandlerFunc is the shape every registered RPC method takes: no
// reflection, just a typed function over raw JSON params.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

type registeredMethod struct {
	entry   types.MethodEntry
	handler HandlerFunc
}

// Registry is one node's method table plus the machinery to dispatch
// into it locally or proxy a call to a peer. It is constructed once and
// held on the node's *app.Context — never a package-level global.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]registeredMethod

	nodeID  string
	gossip  *gossip.Protocol
	issuer  *security.TokenIssuer
	tr      *transport.Transport
}

// NewRegistry constructs a Registry wired to this node's gossip table
// (for peer/role resolution), token issuer (to mint short-lived
// internal bearer tokens for outbound calls) and transport.
func NewRegistry(nodeID string, g *gossip.Protocol, issuer *security.TokenIssuer, tr *transport.Transport) *Registry {
	return &Registry{
		methods: make(map[string]registeredMethod),
		nodeID:  nodeID,
		gossip:  g,
		issuer:  issuer,
		tr:      tr,
	}
}

// Register adds a method under service+"/"+method. Re-registering an
// existing path overwrites it, with a warning — services can be
// reloaded in place (pkg/service.Manager.Reload).
func (r *Registry) Register(service, method string, public bool, description string, h HandlerFunc) {
	path := service + "/" + method

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.methods[path]; exists {
		log.WithComponent("rpc").Warn().Str("path", path).Msg("overwriting existing method registration")
	}
	r.methods[path] = registeredMethod{
		entry:   types.MethodEntry{Path: path, Public: public, Description: description},
		handler: h,
	}
}

// Unregister removes every method path registered by a service,
// called by pkg/service.Manager on shutdown/reload.
func (r *Registry) Unregister(service string) {
	prefix := service + "/"
	r.mu.Lock()
	defer r.mu.Unlock()
	for path := range r.methods {
		if len(path) > len(prefix) && path[:len(prefix)] == prefix {
			delete(r.methods, path)
		}
	}
}

// Methods returns every currently-registered method entry, used to
// populate the self node's ServiceView.Methods for gossip.
func (r *Registry) Methods() []types.MethodEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.MethodEntry, 0, len(r.methods))
	for _, m := range r.methods {
		out = append(out, m.entry)
	}
	return out
}

func (r *Registry) lookup(path string) (registeredMethod, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[path]
	return m, ok
}

// dispatchLocal invokes a registered method on this node, skipping the
// bearer check callers handle separately (the HTTP server for inbound
// calls, or implicitly trusted for same-process proxy calls).
func (r *Registry) dispatchLocal(ctx context.Context, path string, params json.RawMessage) (any, error) {
	m, ok := r.lookup(path)
	if !ok {
		return nil, clustererr.NotFound("dispatch", fmt.Sprintf("no method registered at %q", path))
	}
	return m.handler(ctx, params)
}

// mintInternalToken issues a short-lived internal bearer token this
// node uses to authenticate its own outbound RPC calls to peers.
func (r *Registry) mintInternalToken() (string, error) {
	if r.issuer == nil {
		return "", nil
	}
	return r.issuer.Issue(r.nodeID, internalTokenTTL, true)
}

func randomChoice(nodes []types.NodeInfo) types.NodeInfo {
	return nodes[rand.Intn(len(nodes))]
}
