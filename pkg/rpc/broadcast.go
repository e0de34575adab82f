package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/clustercore/clustercore/pkg/types"
	"golang.org/x/sync/errgroup"
)

// BroadcastResult is one peer's outcome from a Registry.Broadcast call.
type BroadcastResult struct {
	NodeID string          `json:"node_id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Broadcast fans a call out to every live node matching roleFilter
// (zero value fans out to every role), bounded by an overall timeout,
// collecting a per-peer outcome rather than failing the whole batch on
// one peer's error — the errgroup here never returns an error itself.
func (r *Registry) Broadcast(ctx context.Context, service, method string, params any, roleFilter types.NodeRole, timeout time.Duration) []BroadcastResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var targets []types.NodeInfo
	if roleFilter == "" {
		targets = append(r.gossip.Coordinators(), r.gossip.Workers()...)
	} else {
		targets = r.gossip.NodesWithRole(roleFilter)
	}

	results := make([]BroadcastResult, len(targets))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, node := range targets {
		i, node := i, node
		g.Go(func() error {
			proxy := r.Service(service).Target(Peer(node.NodeID))
			result, err := proxy.Call(gctx, method, params)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[i] = BroadcastResult{NodeID: node.NodeID, OK: false, Error: err.Error()}
			} else {
				results[i] = BroadcastResult{NodeID: node.NodeID, OK: true, Result: result}
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
