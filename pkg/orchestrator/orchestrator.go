package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/clustercore/clustercore/pkg/clustererr"
	"github.com/clustercore/clustercore/pkg/log"
	"github.com/clustercore/clustercore/pkg/metrics"
	"github.com/clustercore/clustercore/pkg/rpc"
	"github.com/clustercore/clustercore/pkg/service"
	"github.com/clustercore/clustercore/pkg/storage"
	"github.com/clustercore/clustercore/pkg/types"
)

// Orchestrator installs, exports and distributes service packages for
// one node, persisting installed-package metadata to store and asking
// manager to reload any Factory the package data belongs to.
type Orchestrator struct {
	servicesDir string
	store       storage.Store
	manager     *service.Manager
	registry    *rpc.Registry
}

// New builds an Orchestrator rooted at servicesDir.
func New(servicesDir string, store storage.Store, manager *service.Manager, registry *rpc.Registry) *Orchestrator {
	return &Orchestrator{servicesDir: servicesDir, store: store, manager: manager, registry: registry}
}

// InstallResult reports what Install did.
type InstallResult struct {
	ServiceName string
	ArchiveHash string
	InstalledAt int64
	Reloaded    bool
}

// Install validates a gzipped tarball, extracts it under servicesDir,
// persists its metadata, and — if a Factory of the same name is
// already loaded — asks manager to Reload it so the new files take
// effect without a node restart.
func (o *Orchestrator) Install(ctx context.Context, archiveData []byte, forceReinstall bool) (*InstallResult, error) {
	validation, err := validateArchive(archiveData)
	if err != nil {
		metrics.PackageInstallsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	name := validation.serviceName

	existing, err := o.store.GetInstalledService(name)
	if err == nil && existing != nil && !forceReinstall {
		metrics.PackageInstallsTotal.WithLabelValues("conflict").Inc()
		return nil, clustererr.Conflict("install", fmt.Sprintf("service %q already installed; use force_reinstall", name))
	}

	servicePath := filepath.Join(o.servicesDir, name)
	if err := os.RemoveAll(servicePath); err != nil {
		metrics.PackageInstallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("remove existing package directory for %q: %w", name, err)
	}

	if err := extractArchive(archiveData, o.servicesDir); err != nil {
		metrics.PackageInstallsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	rec := &storage.InstalledService{
		Name:         name,
		InstalledAt:  time.Now().Unix(),
		ArchiveHash:  hashArchive(archiveData),
		Version:      validation.manifest.Version,
		Dependencies: validation.manifest.Dependencies,
		FilesCount:   len(validation.files),
	}
	if err := o.store.SaveInstalledService(rec); err != nil {
		metrics.PackageInstallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("persist metadata for %q: %w", name, err)
	}

	reloaded := false
	if _, ok := o.manager.Get(name); ok {
		if err := o.manager.Reload(ctx, name); err != nil {
			log.WithComponent("orchestrator").Warn().Err(err).Str("service", name).Msg("installed package but reload failed")
		} else {
			reloaded = true
		}
	}

	metrics.PackageInstallsTotal.WithLabelValues("success").Inc()
	log.WithComponent("orchestrator").Info().Str("service", name).Str("version", rec.Version).Msg("service package installed")

	return &InstallResult{ServiceName: name, ArchiveHash: rec.ArchiveHash, InstalledAt: rec.InstalledAt, Reloaded: reloaded}, nil
}

// Uninstall removes a package's on-disk files and metadata record. It
// does not stop a currently-running Factory instance — that Factory is
// compiled into the binary regardless of package presence.
func (o *Orchestrator) Uninstall(name string) error {
	if _, err := o.store.GetInstalledService(name); err != nil {
		return clustererr.NotFound("uninstall", fmt.Sprintf("service %q is not installed", name))
	}
	if err := os.RemoveAll(filepath.Join(o.servicesDir, name)); err != nil {
		return fmt.Errorf("remove package directory for %q: %w", name, err)
	}
	return o.store.DeleteInstalledService(name)
}

// List returns every installed package's metadata.
func (o *Orchestrator) List() ([]*storage.InstalledService, error) {
	return o.store.ListInstalledServices()
}

// Export re-tars an installed package's on-disk directory for
// distribution, the inverse of Install.
func (o *Orchestrator) Export(name string) ([]byte, error) {
	rec, err := o.store.GetInstalledService(name)
	if err != nil {
		return nil, clustererr.NotFound("export", fmt.Sprintf("service %q is not installed", name))
	}
	servicePath := filepath.Join(o.servicesDir, rec.Name)
	if _, err := os.Stat(servicePath); err != nil {
		return nil, clustererr.NotFound("export", fmt.Sprintf("package directory for %q is missing on disk", name))
	}
	return buildArchive(servicePath, rec.Name)
}

// DistributeResult is one target node's outcome from Distribute.
type DistributeResult struct {
	NodeID string
	Err    error
}

// Distribute exports name once and POSTs the resulting archive to each
// target node's own orchestrator/install_service method, without
// rolling back targets that already succeeded if a later one fails.
func (o *Orchestrator) Distribute(ctx context.Context, name string, targets []string) ([]DistributeResult, error) {
	archiveData, err := o.Export(name)
	if err != nil {
		return nil, err
	}

	timer := metrics.NewTimer()
	results := make([]DistributeResult, 0, len(targets))
	for _, nodeID := range targets {
		params := map[string]any{
			"archive_data":    archiveData,
			"force_reinstall": false,
		}
		_, callErr := o.registry.Service("orchestrator").Target(rpc.Peer(nodeID)).Call(ctx, "install_service", params)
		results = append(results, DistributeResult{NodeID: nodeID, Err: callErr})
		if callErr != nil {
			log.WithComponent("orchestrator").Warn().Err(callErr).Str("service", name).Str("target", nodeID).Msg("distribute failed")
		}
	}
	timer.ObserveDuration(metrics.PackageDistributeDuration)

	return results, nil
}

// UpgradeFromCoordinator compares this node's installed manifest
// version for name against the coordinator's, reinstalling with
// force_reinstall when the coordinator's copy is newer.
func (o *Orchestrator) UpgradeFromCoordinator(ctx context.Context, name string) error {
	localVersion := ""
	if rec, err := o.store.GetInstalledService(name); err == nil {
		localVersion = rec.Version
	}

	remoteRaw, err := o.registry.Service("orchestrator").Target(rpc.Role(types.RoleCoordinator)).Call(ctx, "get_service_details", map[string]any{"service_name": name})
	if err != nil {
		return fmt.Errorf("query coordinator for %q: %w", name, err)
	}

	var remote struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(remoteRaw, &remote); err != nil {
		return fmt.Errorf("decode coordinator manifest for %q: %w", name, err)
	}

	if remote.Version == "" || remote.Version == localVersion {
		return nil
	}
	if lv, lerr := semver.NewVersion(localVersion); lerr == nil {
		if rv, rerr := semver.NewVersion(remote.Version); rerr == nil && !rv.GreaterThan(lv) {
			return nil
		}
	}

	archiveRaw, err := o.registry.Service("orchestrator").Target(rpc.Role(types.RoleCoordinator)).Call(ctx, "export_service", map[string]any{"service_name": name})
	if err != nil {
		return fmt.Errorf("fetch %q from coordinator: %w", name, err)
	}

	var archiveData []byte
	if err := json.Unmarshal(archiveRaw, &archiveData); err != nil {
		return fmt.Errorf("decode archive for %q: %w", name, err)
	}

	_, err = o.Install(ctx, archiveData, true)
	return err
}
