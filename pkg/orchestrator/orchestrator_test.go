package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/clustercore/clustercore/pkg/app"
	"github.com/clustercore/clustercore/pkg/config"
	"github.com/clustercore/clustercore/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrchestrator(t *testing.T) (*Orchestrator, string) {
	t.Helper()

	cfg := config.Default()
	cfg.NodeID = "node-a"
	cfg.CoordinatorMode = true
	cfg.BindAddress = "127.0.0.1"
	cfg.Port = 19200
	cfg.JWTSecret = "test-secret"
	cfg.StateDirectory = t.TempDir()

	appCtx, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = appCtx.Store.Close() })

	servicesDir := t.TempDir()
	manager := service.NewManager(appCtx)

	return New(servicesDir, appCtx.Store, manager, appCtx.Registry), servicesDir
}

func testOrchestratorWorker(t *testing.T) (*Orchestrator, string) {
	t.Helper()

	cfg := config.Default()
	cfg.NodeID = "node-b"
	cfg.CoordinatorMode = false
	cfg.BindAddress = "127.0.0.1"
	cfg.Port = 19201
	cfg.JWTSecret = "test-secret"
	cfg.StateDirectory = t.TempDir()

	appCtx, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = appCtx.Store.Close() })

	servicesDir := t.TempDir()
	manager := service.NewManager(appCtx)

	return New(servicesDir, appCtx.Store, manager, appCtx.Registry), servicesDir
}

func buildTestArchive(t *testing.T, name, version string) []byte {
	t.Helper()
	src := writeTestService(t, t.TempDir(), name, version)
	archive, err := buildArchive(src, name)
	require.NoError(t, err)
	return archive
}

func TestOrchestratorInstallPersistsMetadataAndExtracts(t *testing.T) {
	o, servicesDir := testOrchestrator(t)
	archive := buildTestArchive(t, "echo", "1.0.0")

	result, err := o.Install(context.Background(), archive, false)
	require.NoError(t, err)
	assert.Equal(t, "echo", result.ServiceName)
	assert.False(t, result.Reloaded) // no "echo" Factory registered in this test

	_, err = os.Stat(filepath.Join(servicesDir, "echo", "manifest.yaml"))
	require.NoError(t, err)

	services, err := o.List()
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "1.0.0", services[0].Version)
}

func TestOrchestratorInstallWithoutForceReinstallConflicts(t *testing.T) {
	o, _ := testOrchestrator(t)
	archive := buildTestArchive(t, "echo", "1.0.0")

	_, err := o.Install(context.Background(), archive, false)
	require.NoError(t, err)

	_, err = o.Install(context.Background(), archive, false)
	require.Error(t, err)
}

func TestOrchestratorInstallWithForceReinstallOverwrites(t *testing.T) {
	o, _ := testOrchestrator(t)
	first := buildTestArchive(t, "echo", "1.0.0")
	second := buildTestArchive(t, "echo", "2.0.0")

	_, err := o.Install(context.Background(), first, false)
	require.NoError(t, err)

	result, err := o.Install(context.Background(), second, true)
	require.NoError(t, err)
	assert.Equal(t, "echo", result.ServiceName)

	services, err := o.List()
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "2.0.0", services[0].Version)
}

func TestOrchestratorUninstallRemovesFilesAndMetadata(t *testing.T) {
	o, servicesDir := testOrchestrator(t)
	archive := buildTestArchive(t, "echo", "1.0.0")

	_, err := o.Install(context.Background(), archive, false)
	require.NoError(t, err)

	require.NoError(t, o.Uninstall("echo"))

	_, err = os.Stat(filepath.Join(servicesDir, "echo"))
	assert.True(t, os.IsNotExist(err))

	services, err := o.List()
	require.NoError(t, err)
	assert.Empty(t, services)
}

func TestOrchestratorExportRoundTripsInstalledPackage(t *testing.T) {
	o, _ := testOrchestrator(t)
	archive := buildTestArchive(t, "echo", "1.0.0")

	_, err := o.Install(context.Background(), archive, false)
	require.NoError(t, err)

	exported, err := o.Export("echo")
	require.NoError(t, err)

	validation, err := validateArchive(exported)
	require.NoError(t, err)
	assert.Equal(t, "echo", validation.serviceName)
	assert.Equal(t, "1.0.0", validation.manifest.Version)
}

func TestOrchestratorDistributeReportsPerTargetFailure(t *testing.T) {
	o, _ := testOrchestrator(t)
	archive := buildTestArchive(t, "echo", "1.0.0")

	_, err := o.Install(context.Background(), archive, false)
	require.NoError(t, err)

	results, err := o.Distribute(context.Background(), "echo", []string{"unknown-node"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "unknown-node", results[0].NodeID)
	assert.Error(t, results[0].Err) // gossip has no record of this node
}
