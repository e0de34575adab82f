package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clustercore/clustercore/pkg/rpc"
)

// RegisterRPC mounts the orchestrator's own methods on registry, under
// the "orchestrator" service prefix. Orchestrator is not a
// pkg/service.Factory itself — it has no Dependencies and no rollback
// semantics, it is cluster-management infrastructure in the same vein
// as the RPC server's own cert-issue route — so cmd/clustercore calls
// this directly after constructing the registry, rather than going
// through service.Manager.Start.
func RegisterRPC(registry *rpc.Registry, o *Orchestrator) {
	registry.Register("orchestrator", "install_service", true,
		"install a service package from a gzipped tarball", func(ctx context.Context, params json.RawMessage) (any, error) {
			var req struct {
				ArchiveData    []byte `json:"archive_data"`
				ForceReinstall bool   `json:"force_reinstall"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, fmt.Errorf("decode install_service params: %w", err)
			}
			return o.Install(ctx, req.ArchiveData, req.ForceReinstall)
		})

	registry.Register("orchestrator", "uninstall_service", true,
		"remove an installed service package", func(ctx context.Context, params json.RawMessage) (any, error) {
			var req struct {
				ServiceName string `json:"service_name"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, fmt.Errorf("decode uninstall_service params: %w", err)
			}
			return nil, o.Uninstall(req.ServiceName)
		})

	registry.Register("orchestrator", "list_services", true,
		"list installed service packages", func(ctx context.Context, params json.RawMessage) (any, error) {
			return o.List()
		})

	registry.Register("orchestrator", "export_service", true,
		"export an installed service package as a gzipped tarball", func(ctx context.Context, params json.RawMessage) (any, error) {
			var req struct {
				ServiceName string `json:"service_name"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, fmt.Errorf("decode export_service params: %w", err)
			}
			return o.Export(req.ServiceName)
		})

	registry.Register("orchestrator", "get_service_details", true,
		"describe one installed service package's metadata", func(ctx context.Context, params json.RawMessage) (any, error) {
			var req struct {
				ServiceName string `json:"service_name"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, fmt.Errorf("decode get_service_details params: %w", err)
			}
			return o.store.GetInstalledService(req.ServiceName)
		})

	registry.Register("orchestrator", "distribute_service", true,
		"distribute an installed service package to other nodes", func(ctx context.Context, params json.RawMessage) (any, error) {
			var req struct {
				ServiceName string   `json:"service_name"`
				TargetNodes []string `json:"target_nodes"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, fmt.Errorf("decode distribute_service params: %w", err)
			}
			return o.Distribute(ctx, req.ServiceName, req.TargetNodes)
		})
}
