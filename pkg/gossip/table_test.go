package gossip

import (
	"testing"
	"time"

	"github.com/clustercore/clustercore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfNode(id string) types.NodeInfo {
	return types.NodeInfo{NodeID: id, Address: "127.0.0.1", Port: 9000, Role: types.RoleCoordinator, Status: types.StatusAlive, LastSeen: time.Now()}
}

func TestMergeAddsNewNode(t *testing.T) {
	tbl := newTable(selfNode("a"))

	peer := types.NodeInfo{NodeID: "b", Address: "127.0.0.1", Port: 9001, Role: types.RoleWorker, Status: types.StatusAlive, LastSeen: time.Now()}
	transitions := tbl.merge([]types.NodeInfo{peer})

	require.Len(t, transitions, 1)
	assert.Equal(t, types.NodeStatus(""), transitions[0].oldStatus)
	assert.Equal(t, types.StatusAlive, transitions[0].newStatus)

	got, ok := tbl.get("b")
	require.True(t, ok)
	assert.Equal(t, "b", got.NodeID)
}

func TestMergeIgnoresSelf(t *testing.T) {
	tbl := newTable(selfNode("a"))
	incoming := selfNode("a")
	incoming.Status = types.StatusDead

	tbl.merge([]types.NodeInfo{incoming})

	self := tbl.self()
	assert.Equal(t, types.StatusAlive, self.Status)
}

func TestMergeDropsStaleRecord(t *testing.T) {
	tbl := newTable(selfNode("a"))
	now := time.Now()

	fresh := types.NodeInfo{NodeID: "b", Status: types.StatusAlive, LastSeen: now}
	tbl.merge([]types.NodeInfo{fresh})

	stale := types.NodeInfo{NodeID: "b", Status: types.StatusDead, LastSeen: now.Add(-time.Minute)}
	transitions := tbl.merge([]types.NodeInfo{stale})

	assert.Empty(t, transitions)
	got, _ := tbl.get("b")
	assert.Equal(t, types.StatusAlive, got.Status)
}

func TestMergeAppliesNewerRecord(t *testing.T) {
	tbl := newTable(selfNode("a"))
	now := time.Now()

	tbl.merge([]types.NodeInfo{{NodeID: "b", Status: types.StatusAlive, LastSeen: now}})
	transitions := tbl.merge([]types.NodeInfo{{NodeID: "b", Status: types.StatusDead, LastSeen: now.Add(time.Minute)}})

	require.Len(t, transitions, 1)
	assert.Equal(t, types.StatusAlive, transitions[0].oldStatus)
	assert.Equal(t, types.StatusDead, transitions[0].newStatus)
}

func TestSetStatusNoopWhenUnchanged(t *testing.T) {
	tbl := newTable(selfNode("a"))
	tbl.merge([]types.NodeInfo{{NodeID: "b", Status: types.StatusAlive, LastSeen: time.Now()}})

	assert.Nil(t, tbl.setStatus("b", types.StatusAlive))
	tr := tbl.setStatus("b", types.StatusSuspected)
	require.NotNil(t, tr)
	assert.Equal(t, types.StatusAlive, tr.oldStatus)
	assert.Equal(t, types.StatusSuspected, tr.newStatus)
}

func TestRemoveDropsNode(t *testing.T) {
	tbl := newTable(selfNode("a"))
	tbl.merge([]types.NodeInfo{{NodeID: "b", Status: types.StatusAlive, LastSeen: time.Now()}})

	tbl.remove("b")

	_, ok := tbl.get("b")
	assert.False(t, ok)
}

func TestWithServiceFiltersAliveOnly(t *testing.T) {
	tbl := newTable(selfNode("a"))
	tbl.merge([]types.NodeInfo{
		{NodeID: "b", Status: types.StatusAlive, LastSeen: time.Now(), Services: map[string]types.ServiceView{"echo": {}}},
		{NodeID: "c", Status: types.StatusDead, LastSeen: time.Now(), Services: map[string]types.ServiceView{"echo": {}}},
	})

	found := tbl.withService("echo")
	require.Len(t, found, 1)
	assert.Equal(t, "b", found[0].NodeID)
}
