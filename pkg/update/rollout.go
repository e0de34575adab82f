package update

import (
	"context"
	"time"

	"github.com/clustercore/clustercore/pkg/log"
	"github.com/clustercore/clustercore/pkg/rpc"
)

// RolloutController drives InstallUpdate across a set of target nodes
// using one of Strategy's batching shapes, the same batch/delay idiom
// the teacher's deployer uses for rolling container updates applied
// here to each node's own binary instead.
type RolloutController struct {
	registry *rpc.Registry
}

// NewRolloutController builds a controller dispatching install_update
// RPCs through registry.
func NewRolloutController(registry *rpc.Registry) *RolloutController {
	return &RolloutController{registry: registry}
}

// Run drives version out to targets under strategy, returning each
// target's final NodeRollout. blue_green is treated as all_at_once
// (see DESIGN.md); canary aborts the remaining batch if its single
// probe node fails.
func (c *RolloutController) Run(ctx context.Context, version string, targets []string, strategy Strategy, parallelism int, delay time.Duration) []NodeRollout {
	results := make(map[string]*NodeRollout, len(targets))
	for _, nodeID := range targets {
		results[nodeID] = &NodeRollout{NodeID: nodeID, Status: RolloutPending}
	}

	batches := c.plan(targets, strategy, parallelism)

	log.WithComponent("update").Info().
		Str("version", version).
		Str("strategy", string(strategy)).
		Int("targets", len(targets)).
		Int("batches", len(batches)).
		Msg("starting rollout")

	for i, batch := range batches {
		log.WithComponent("update").Info().
			Int("batch", i+1).
			Int("total_batches", len(batches)).
			Int("nodes", len(batch)).
			Msg("rolling out batch")

		batchFailed := false
		for _, nodeID := range batch {
			result := results[nodeID]
			result.Status = RolloutDownloading

			_, err := c.registry.Service("update").Target(rpc.Peer(nodeID)).Call(ctx, "install_update", map[string]any{"version": version})
			if err != nil {
				result.Status = RolloutFailed
				result.Err = err.Error()
				batchFailed = true
				log.WithComponent("update").Error().Err(err).Str("node", nodeID).Msg("node install failed")
				continue
			}
			result.Status = RolloutCompleted
		}

		if batchFailed && strategy == StrategyCanary {
			log.WithComponent("update").Warn().Msg("canary probe failed, aborting remaining batches")
			break
		}

		if i < len(batches)-1 && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				break
			}
		}
	}

	out := make([]NodeRollout, 0, len(targets))
	for _, nodeID := range targets {
		out = append(out, *results[nodeID])
	}
	return out
}

// plan splits targets into batches according to strategy.
func (c *RolloutController) plan(targets []string, strategy Strategy, parallelism int) [][]string {
	if parallelism <= 0 {
		parallelism = 1
	}

	effective := strategy
	if effective == StrategyBlueGreen {
		effective = StrategyAllAtOnce
	}

	switch effective {
	case StrategyAllAtOnce:
		if len(targets) == 0 {
			return nil
		}
		return [][]string{targets}

	case StrategyCanary:
		if len(targets) == 0 {
			return nil
		}
		if len(targets) == 1 {
			return [][]string{targets}
		}
		return [][]string{{targets[0]}, targets[1:]}

	case StrategyRolling:
		fallthrough
	default:
		var batches [][]string
		for i := 0; i < len(targets); i += parallelism {
			end := i + parallelism
			if end > len(targets) {
				end = len(targets)
			}
			batches = append(batches, targets[i:end])
		}
		return batches
	}
}
