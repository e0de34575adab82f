package gossip

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clustercore/clustercore/pkg/transport"
	"github.com/clustercore/clustercore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProtocol(nodeID string) *Protocol {
	return New(Config{
		NodeID:           nodeID,
		Address:          "127.0.0.1",
		Port:             9000,
		Role:             types.RoleWorker,
		IntervalMin:      time.Millisecond,
		IntervalMax:      time.Millisecond,
		FailureTimeout:   time.Hour,
		MaxGossipTargets: 5,
	}, transport.New(transport.Config{}))
}

// serveProtocol mounts a bare-bones join/exchange HTTP server backed by
// p, mirroring what pkg/rpc wires in production.
func serveProtocol(p *Protocol) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/internal/gossip/join", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		resp, err := p.HandleJoinJSON(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write(resp)
	})
	mux.HandleFunc("/internal/gossip/exchange", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		resp, err := p.HandleExchangeJSON(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write(resp)
	})
	return httptest.NewServer(mux)
}

func TestJoinMergesBootstrapTable(t *testing.T) {
	coordinator := newTestProtocol("coordinator")
	srv := serveProtocol(coordinator)
	defer srv.Close()

	worker := newTestProtocol("worker-1")
	err := worker.Join(context.Background(), []string{srv.URL})
	require.NoError(t, err)

	live := worker.LiveNodes()
	require.Len(t, live, 1)
	assert.Equal(t, "coordinator", live[0].NodeID)

	coordLive := coordinator.LiveNodes()
	require.Len(t, coordLive, 1)
	assert.Equal(t, "worker-1", coordLive[0].NodeID)
}

func TestJoinIsolatedModeWithNoAddrsIsNotError(t *testing.T) {
	p := newTestProtocol("solo")
	err := p.Join(context.Background(), nil)
	assert.NoError(t, err)
}

func TestJoinAllBootstrapAddrsUnreachable(t *testing.T) {
	p := newTestProtocol("worker-1")
	err := p.Join(context.Background(), []string{"https://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestOnTransitionFiresForNewPeer(t *testing.T) {
	p := newTestProtocol("a")

	var seen []types.NodeStatus
	p.OnTransition(func(node types.NodeInfo, old, new types.NodeStatus) {
		seen = append(seen, new)
	})

	p.HandleJoin(JoinRequest{NodeInfo: types.NodeInfo{NodeID: "b", Status: types.StatusAlive, LastSeen: time.Now()}})

	require.Len(t, seen, 1)
	assert.Equal(t, types.StatusAlive, seen[0])
}

func TestRegisterServiceProjectorFeedsSelfServices(t *testing.T) {
	p := newTestProtocol("a")
	p.RegisterServiceProjector(func() map[string]types.ServiceView {
		return map[string]types.ServiceView{"echo": {Status: "running"}}
	})

	self := p.tbl.updateSelf(func(n *types.NodeInfo) {
		if p.projector != nil {
			n.Services = p.projector()
		}
	})

	assert.Contains(t, self.Services, "echo")
}

func TestPickTargetsCapsAtMax(t *testing.T) {
	nodes := make([]types.NodeInfo, 10)
	for i := range nodes {
		nodes[i] = types.NodeInfo{NodeID: string(rune('a' + i))}
	}
	targets := pickTargets(nodes, 3)
	assert.Len(t, targets, 3)
}

func TestPickTargetsReturnsAllWhenUnderMax(t *testing.T) {
	nodes := []types.NodeInfo{{NodeID: "a"}, {NodeID: "b"}}
	targets := pickTargets(nodes, 5)
	assert.Len(t, targets, 2)
}
