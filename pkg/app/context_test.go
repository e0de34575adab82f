package app

import (
	"context"
	"testing"
	"time"

	"github.com/clustercore/clustercore/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.NodeID = "node-a"
	cfg.CoordinatorMode = true
	cfg.BindAddress = "127.0.0.1"
	cfg.Port = 19000
	cfg.JWTSecret = "test-secret"
	cfg.StateDirectory = t.TempDir()
	cfg.MetricsAddress = "" // avoid binding a real port in tests
	return cfg
}

func TestNewWiresCoordinatorCA(t *testing.T) {
	ctx, err := New(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Store.Close() })

	require.NotNil(t, ctx.CA)
	assert.True(t, ctx.CA.IsInitialized())
}

func TestNewWorkerHasNoCA(t *testing.T) {
	cfg := testConfig(t)
	cfg.CoordinatorMode = false

	ctx, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Store.Close() })

	assert.Nil(t, ctx.CA)
}

func TestBootstrapCoordinatorIssuesOwnLeaf(t *testing.T) {
	cfg := testConfig(t)
	ctx, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Store.Close() })

	require.NoError(t, ctx.Bootstrap(context.Background()))
}

func TestStartAndStopIsolatedCoordinator(t *testing.T) {
	cfg := testConfig(t)
	ctx, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, ctx.Bootstrap(context.Background()))
	require.NoError(t, ctx.Start(context.Background()))

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, ctx.Stop(context.Background()))
}
