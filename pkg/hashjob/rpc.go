package hashjob

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clustercore/clustercore/pkg/rpc"
	"github.com/clustercore/clustercore/pkg/types"
)

// RegisterRPC mounts the coordinator's methods under the
// "hash_coordinator" service prefix, matching the name workers call
// report_solution against. Like pkg/orchestrator and pkg/update, a
// hash job coordinator has no dependency/rollback semantics of its own
// and is mounted directly rather than through pkg/service.Factory.
func RegisterRPC(registry *rpc.Registry, c *Coordinator) {
	registry.Register("hash_coordinator", "create_job", true,
		"create a distributed hash-cracking job", func(ctx context.Context, params json.RawMessage) (any, error) {
			var req CreateJobParams
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, fmt.Errorf("decode create_job params: %w", err)
			}
			return c.CreateJob(req)
		})

	registry.Register("hash_coordinator", "get_job_status", true,
		"describe one hash job's progress and solutions", func(ctx context.Context, params json.RawMessage) (any, error) {
			var req struct {
				JobID string `json:"job_id"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, fmt.Errorf("decode get_job_status params: %w", err)
			}
			job, ok := c.GetJob(req.JobID)
			if !ok {
				return nil, fmt.Errorf("unknown job %q", req.JobID)
			}
			return job, nil
		})

	registry.Register("hash_coordinator", "list_jobs", true,
		"list every hash job this coordinator knows about", func(ctx context.Context, params json.RawMessage) (any, error) {
			return c.ListJobs(), nil
		})

	registry.Register("hash_coordinator", "report_solution", true,
		"report solutions found for a job, called immediately on solve", func(ctx context.Context, params json.RawMessage) (any, error) {
			var req struct {
				JobID     string           `json:"job_id"`
				Solutions []types.Solution `json:"solutions"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, fmt.Errorf("decode report_solution params: %w", err)
			}
			return nil, c.ReportSolution(req.JobID, req.Solutions)
		})
}
