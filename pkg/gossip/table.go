package gossip

import (
	"sync"

	"github.com/clustercore/clustercore/pkg/types"
)

// table is the membership registry: self entry plus every peer this
// node currently knows about, guarded by a single-writer-many-reader
// lock since gossip rounds run concurrently with RPC reads of live
// peers.
type table struct {
	mu    sync.RWMutex
	nodes map[string]*types.NodeInfo
	self  string
}

func newTable(self types.NodeInfo) *table {
	t := &table{
		nodes: make(map[string]*types.NodeInfo),
		self:  self.NodeID,
	}
	t.nodes[self.NodeID] = &self
	return t
}

func (t *table) updateSelf(fn func(*types.NodeInfo)) types.NodeInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.nodes[t.self])
	return *t.nodes[t.self]
}

func (t *table) self() types.NodeInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return *t.nodes[t.self]
}

func (t *table) snapshot() []types.NodeInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.NodeInfo, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, *n)
	}
	return out
}

func (t *table) get(nodeID string) (types.NodeInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[nodeID]
	if !ok {
		return types.NodeInfo{}, false
	}
	return *n, true
}

// transition is emitted whenever merge discovers a peer or changes its
// status, or setStatus changes it.
type transition struct {
	node     types.NodeInfo
	oldStatus types.NodeStatus
	newStatus types.NodeStatus
}

// merge folds incoming node records into the table. A record replaces
// the one on file when it is newer (LastSeen strictly greater); the
// self entry is never overwritten by an incoming record, matching the
// "self info owned by the node itself" rule. Returns the set of
// observed transitions for listener dispatch.
func (t *table) merge(incoming []types.NodeInfo) []transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	var transitions []transition
	for _, in := range incoming {
		if in.NodeID == t.self {
			continue
		}
		existing, ok := t.nodes[in.NodeID]
		if !ok {
			n := in
			t.nodes[in.NodeID] = &n
			transitions = append(transitions, transition{node: n, oldStatus: "", newStatus: n.Status})
			continue
		}
		if in.LastSeen.After(existing.LastSeen) {
			old := existing.Status
			n := in
			t.nodes[in.NodeID] = &n
			if old != n.Status {
				transitions = append(transitions, transition{node: n, oldStatus: old, newStatus: n.Status})
			}
		}
	}
	return transitions
}

// setStatus transitions a peer's status in place (used by the failure
// detector, which ages peers independent of merge). Returns the
// transition if the status actually changed.
func (t *table) setStatus(nodeID string, status types.NodeStatus) *transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[nodeID]
	if !ok || n.Status == status {
		return nil
	}
	old := n.Status
	n.Status = status
	cp := *n
	return &transition{node: cp, oldStatus: old, newStatus: status}
}

// remove drops a node from the table entirely (cleanup loop).
func (t *table) remove(nodeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.nodes, nodeID)
}

func (t *table) alive() []types.NodeInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []types.NodeInfo
	for id, n := range t.nodes {
		if id != t.self && n.Status == types.StatusAlive {
			out = append(out, *n)
		}
	}
	return out
}

func (t *table) byStatus(status types.NodeStatus) []types.NodeInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []types.NodeInfo
	for _, n := range t.nodes {
		if n.Status == status {
			out = append(out, *n)
		}
	}
	return out
}

func (t *table) withService(name string) []types.NodeInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []types.NodeInfo
	for id, n := range t.nodes {
		if id == t.self || n.Status != types.StatusAlive {
			continue
		}
		if _, ok := n.Services[name]; ok {
			out = append(out, *n)
		}
	}
	return out
}
