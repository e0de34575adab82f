package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpgradeFromCoordinatorNoOpWhenVersionsMatch(t *testing.T) {
	o, _ := testOrchestrator(t) // self is coordinator-mode, so rpc.Role(RoleCoordinator) dispatches locally
	RegisterRPC(o.registry, o)

	archive := buildTestArchive(t, "echo", "1.0.0")
	_, err := o.Install(context.Background(), archive, false)
	require.NoError(t, err)

	require.NoError(t, o.UpgradeFromCoordinator(context.Background(), "echo"))

	services, err := o.List()
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "1.0.0", services[0].Version) // unchanged: local and "coordinator" copy agree
}

func TestUpgradeFromCoordinatorErrorsWithNoReachableCoordinator(t *testing.T) {
	o, _ := testOrchestratorWorker(t)

	archive := buildTestArchive(t, "echo", "1.0.0")
	_, err := o.Install(context.Background(), archive, false)
	require.NoError(t, err)

	err = o.UpgradeFromCoordinator(context.Background(), "echo")
	assert.Error(t, err)
}
