package update

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clustercore/clustercore/pkg/rpc"
)

// RegisterRPC mounts the update engine's methods under the "update"
// service prefix. Like pkg/orchestrator, update is cluster-management
// infrastructure rather than a pkg/service.Factory, so cmd/clustercore
// calls this directly once it has constructed both the engine and (on
// a coordinator) the rollout controller.
func RegisterRPC(registry *rpc.Registry, e *Engine, rollout *RolloutController) {
	registry.Register("update", "check_updates", true,
		"check the coordinator's catalog for versions newer than this node's", func(ctx context.Context, params json.RawMessage) (any, error) {
			return e.CheckUpdates(ctx)
		})

	registry.Register("update", "install_update", true,
		"download, verify, and install a specific version on this node", func(ctx context.Context, params json.RawMessage) (any, error) {
			var req struct {
				Version string `json:"version"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, fmt.Errorf("decode install_update params: %w", err)
			}
			return e.InstallUpdate(ctx, req.Version)
		})

	registry.Register("update", "get_public_key", true,
		"return the coordinator's bundle-signing public key", func(ctx context.Context, params json.RawMessage) (any, error) {
			return e.PublicKeyPEM()
		})

	registry.Register("update", "list_updates", true,
		"list every version published to the coordinator's catalog", func(ctx context.Context, params json.RawMessage) (any, error) {
			return e.ListUpdates(), nil
		})

	registry.Register("update", "download_update", true,
		"fetch a published bundle's bytes, signature, and hash", func(ctx context.Context, params json.RawMessage) (any, error) {
			var req struct {
				Version string `json:"version"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, fmt.Errorf("decode download_update params: %w", err)
			}
			data, entry, err := e.BundleData(req.Version)
			if err != nil {
				return nil, err
			}
			return struct {
				BundleData []byte `json:"bundle_data"`
				Signature  string `json:"signature"`
				Hash       string `json:"hash"`
			}{BundleData: data, Signature: entry.Signature, Hash: entry.Hash}, nil
		})

	registry.Register("update", "publish_update", true,
		"bundle and sign a local directory as a new catalog version (coordinator only)", func(ctx context.Context, params json.RawMessage) (any, error) {
			var req struct {
				Version string `json:"version"`
				SrcDir  string `json:"src_dir"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, fmt.Errorf("decode publish_update params: %w", err)
			}
			return e.Publish(req.Version, req.SrcDir)
		})

	if rollout == nil {
		return
	}

	registry.Register("update", "rollout", true,
		"roll a published version out to a set of target nodes (coordinator only)", func(ctx context.Context, params json.RawMessage) (any, error) {
			var req struct {
				Version     string   `json:"version"`
				Targets     []string `json:"targets"`
				Strategy    Strategy `json:"strategy"`
				Parallelism int      `json:"parallelism"`
				DelaySecs   int      `json:"delay_seconds"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, fmt.Errorf("decode rollout params: %w", err)
			}
			return rollout.Run(ctx, req.Version, req.Targets, req.Strategy, req.Parallelism, time.Duration(req.DelaySecs)*time.Second), nil
		})
}
