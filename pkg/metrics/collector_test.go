package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clustercore/clustercore/pkg/gossip"
	"github.com/clustercore/clustercore/pkg/storage"
	"github.com/clustercore/clustercore/pkg/transport"
	"github.com/clustercore/clustercore/pkg/types"
)

func TestCollectorCollectSetsGauges(t *testing.T) {
	g := gossip.New(gossip.Config{NodeID: "coord-1", Role: types.RoleCoordinator}, transport.New(transport.Config{}))
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c := NewCollector(g, store)
	c.collect()

	found := false
	for _, node := range g.Snapshot() {
		if node.NodeID == "coord-1" {
			found = true
		}
	}
	require.True(t, found, "self node should be present in the gossip table collect() reads from")
}

func TestCollectorStartAndStop(t *testing.T) {
	g := gossip.New(gossip.Config{NodeID: "coord-1", Role: types.RoleCoordinator}, transport.New(transport.Config{}))
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c := NewCollector(g, store)
	c.Start()
	time.Sleep(10 * time.Millisecond)
	c.Stop()
}
