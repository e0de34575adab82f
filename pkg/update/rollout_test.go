package update

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanAllAtOnceIsSingleBatch(t *testing.T) {
	c := &RolloutController{}
	batches := c.plan([]string{"a", "b", "c"}, StrategyAllAtOnce, 1)
	assert.Equal(t, [][]string{{"a", "b", "c"}}, batches)
}

func TestPlanBlueGreenAliasesToAllAtOnce(t *testing.T) {
	c := &RolloutController{}
	batches := c.plan([]string{"a", "b"}, StrategyBlueGreen, 1)
	assert.Equal(t, [][]string{{"a", "b"}}, batches)
}

func TestPlanCanarySplitsFirstNodeFromRest(t *testing.T) {
	c := &RolloutController{}
	batches := c.plan([]string{"a", "b", "c"}, StrategyCanary, 1)
	assert.Equal(t, [][]string{{"a"}, {"b", "c"}}, batches)
}

func TestPlanCanaryWithSingleTargetIsOneBatch(t *testing.T) {
	c := &RolloutController{}
	batches := c.plan([]string{"a"}, StrategyCanary, 1)
	assert.Equal(t, [][]string{{"a"}}, batches)
}

func TestPlanRollingRespectsParallelism(t *testing.T) {
	c := &RolloutController{}
	batches := c.plan([]string{"a", "b", "c", "d", "e"}, StrategyRolling, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, batches)
}

func TestPlanEmptyTargetsProducesNoBatches(t *testing.T) {
	c := &RolloutController{}
	assert.Empty(t, c.plan(nil, StrategyAllAtOnce, 1))
	assert.Empty(t, c.plan(nil, StrategyCanary, 1))
}

func TestRunReportsFailureForUnreachablePeer(t *testing.T) {
	e := testCoordinatorEngine(t)
	controller := NewRolloutController(e.registry)

	results := controller.Run(context.Background(), "1.0.0", []string{"ghost-node"}, StrategyAllAtOnce, 1, 0)
	require.Len(t, results, 1)
	assert.Equal(t, "ghost-node", results[0].NodeID)
	assert.Equal(t, RolloutFailed, results[0].Status)
	assert.NotEmpty(t, results[0].Err)
}
