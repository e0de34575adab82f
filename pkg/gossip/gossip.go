package gossip

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clustercore/clustercore/pkg/clustererr"
	"github.com/clustercore/clustercore/pkg/log"
	"github.com/clustercore/clustercore/pkg/transport"
	"github.com/clustercore/clustercore/pkg/types"
)

// Config carries the gossip tunables from spec.md §4.2/§6, all sourced
// from pkg/config.Config by the caller that constructs a Protocol.
type Config struct {
	NodeID           string
	Address          string
	Port             int
	Role             types.NodeRole
	Capabilities     []string

	IntervalMin      time.Duration
	IntervalMax      time.Duration
	FailureTimeout   time.Duration
	CleanupInterval  time.Duration
	MaxGossipTargets int
	AdjustPeriod     time.Duration

	CompressionEnabled   bool
	CompressionThreshold int

	// AuthToken is attached as a bearer header to every internal gossip
	// request this node makes.
	AuthToken string
}

// TransitionFunc observes a peer moving between statuses (first sight of
// a peer is signalled by an empty oldStatus). Peers dropped from the
// table by the cleanup loop fire no transition.
type TransitionFunc func(node types.NodeInfo, oldStatus, newStatus types.NodeStatus)

// ServiceProjector reports the local node's current per-service view,
// refreshed into the self entry before every outgoing round. Supplied
// by pkg/service.
type ServiceProjector func() map[string]types.ServiceView

// Protocol is one node's membership view and gossip loop driver.
// There is no global registry: every component that needs it is handed
// the *Protocol explicitly (spec.md §9).
type Protocol struct {
	cfg       Config
	tr        *transport.Transport
	tbl       *table

	mu        sync.Mutex
	listeners []TransitionFunc
	projector ServiceProjector

	interval       time.Duration
	msgCount       int64
	lastAdjust     time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Protocol with its self entry seeded from cfg.
func New(cfg Config, tr *transport.Transport) *Protocol {
	if cfg.IntervalMin <= 0 {
		cfg.IntervalMin = 5 * time.Second
	}
	if cfg.IntervalMax <= 0 {
		cfg.IntervalMax = 30 * time.Second
	}
	if cfg.FailureTimeout <= 0 {
		cfg.FailureTimeout = 30 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 60 * time.Second
	}
	if cfg.MaxGossipTargets <= 0 {
		cfg.MaxGossipTargets = 5
	}
	if cfg.AdjustPeriod <= 0 {
		cfg.AdjustPeriod = 60 * time.Second
	}

	self := types.NodeInfo{
		NodeID:       cfg.NodeID,
		Address:      cfg.Address,
		Port:         cfg.Port,
		Role:         cfg.Role,
		Status:       types.StatusAlive,
		LastSeen:     time.Now(),
		Capabilities: cfg.Capabilities,
		Services:     map[string]types.ServiceView{},
		Metadata:     map[string]types.VersionedValue{},
	}

	return &Protocol{
		cfg:        cfg,
		tr:         tr,
		tbl:        newTable(self),
		interval:   cfg.IntervalMin,
		lastAdjust: time.Now(),
		stopCh:     make(chan struct{}),
	}
}

// RegisterServiceProjector installs the hook pkg/service uses to report
// which services this node is currently running.
func (p *Protocol) RegisterServiceProjector(fn ServiceProjector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.projector = fn
}

// OnTransition registers a listener invoked, in registration order,
// whenever a peer's status changes. A panicking or erroring listener is
// recovered and logged; it never aborts the gossip loop.
func (p *Protocol) OnTransition(fn TransitionFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Self returns the current self entry.
func (p *Protocol) Self() types.NodeInfo { return p.tbl.self() }

// Snapshot returns every entry currently in the table, self included.
func (p *Protocol) Snapshot() []types.NodeInfo { return p.tbl.snapshot() }

// LiveNodes returns peers currently considered alive.
func (p *Protocol) LiveNodes() []types.NodeInfo { return p.tbl.alive() }

// Coordinators returns live peers with the coordinator role.
func (p *Protocol) Coordinators() []types.NodeInfo {
	var out []types.NodeInfo
	for _, n := range p.tbl.alive() {
		if n.Role == types.RoleCoordinator {
			out = append(out, n)
		}
	}
	return out
}

// Workers returns live peers with the worker role.
func (p *Protocol) Workers() []types.NodeInfo {
	var out []types.NodeInfo
	for _, n := range p.tbl.alive() {
		if n.Role == types.RoleWorker {
			out = append(out, n)
		}
	}
	return out
}

// FindWithService returns live peers currently running the named service.
func (p *Protocol) FindWithService(name string) []types.NodeInfo {
	return p.tbl.withService(name)
}

// Get returns a single node (self or peer) by ID, for the RPC proxy's
// Peer() target.
func (p *Protocol) Get(nodeID string) (types.NodeInfo, bool) {
	return p.tbl.get(nodeID)
}

// SetMetadata publishes a versioned value for key on this node's own
// record, the mechanism pkg/hashjob uses to carry job/batch/worker-status
// payloads (hash_job_<id>, hash_batches_<id>, hash_worker_status) over
// gossip instead of a separate side channel. Each call increments the
// key's version. Peers take this node's record as a whole when its
// LastSeen is newer than their copy; merge does not compare per-key
// versions.
func (p *Protocol) SetMetadata(key, value string) {
	p.tbl.updateSelf(func(n *types.NodeInfo) {
		if n.Metadata == nil {
			n.Metadata = make(map[string]types.VersionedValue)
		}
		next := n.Metadata[key].Version + 1
		n.Metadata[key] = types.VersionedValue{Version: next, Value: value, OwnerID: n.NodeID}
	})
}

// Metadata reads the versioned value stored under key on nodeID's
// record (self or peer), if any.
func (p *Protocol) Metadata(nodeID, key string) (types.VersionedValue, bool) {
	n, ok := p.tbl.get(nodeID)
	if !ok {
		return types.VersionedValue{}, false
	}
	v, ok := n.Metadata[key]
	return v, ok
}

// SnapshotJSON marshals the current table for persistence to this
// node's local store (spec.md §6: "gossip peer table snapshot, restored
// on restart"). Unlike the wire envelope used between nodes, this is
// plain JSON — it never leaves the local disk, so there is nothing to
// compress for.
func (p *Protocol) SnapshotJSON() ([]byte, error) {
	return json.Marshal(p.tbl.snapshot())
}

// Restore seeds the table from a snapshot previously produced by
// SnapshotJSON. Self's own entry in the snapshot is ignored — Self is
// always this process's live view, never a stale disk copy.
func (p *Protocol) Restore(data []byte) error {
	var nodes []types.NodeInfo
	if err := json.Unmarshal(data, &nodes); err != nil {
		return fmt.Errorf("unmarshal gossip snapshot: %w", err)
	}
	p.tbl.merge(nodes)
	return nil
}

// NodesWithRole returns every node of the given role this node
// currently believes is reachable — unlike Coordinators/Workers, self
// is included when it matches, so role-based RPC routing can resolve
// to a local dispatch instead of a network hop.
func (p *Protocol) NodesWithRole(role types.NodeRole) []types.NodeInfo {
	var out []types.NodeInfo
	for _, n := range p.tbl.snapshot() {
		if n.Role != role {
			continue
		}
		if n.NodeID == p.cfg.NodeID || n.Status == types.StatusAlive {
			out = append(out, n)
		}
	}
	return out
}

// JoinRequest is the body of POST /internal/gossip/join.
type JoinRequest struct {
	NodeInfo types.NodeInfo `json:"node_info"`
}

// ExchangeMessage is the body of POST /internal/gossip/exchange, sent
// in both directions: the requester's view going out, the receiver's
// view coming back.
type ExchangeMessage struct {
	SenderID string           `json:"sender_id"`
	Nodes    []types.NodeInfo `json:"nodes"`
}

// Join probes each bootstrap address in order with /internal/gossip/join
// until one accepts, merging the returned table. An empty address list
// is isolated mode and returns nil; when addresses are given and none
// accepts, a transport error is returned.
func (p *Protocol) Join(ctx context.Context, addrs []string) error {
	if len(addrs) == 0 {
		return nil
	}

	body, err := p.encode(JoinRequest{NodeInfo: p.tbl.self()})
	if err != nil {
		return fmt.Errorf("marshal join request: %w", err)
	}

	var lastErr error
	for _, addr := range addrs {
		resp, err := p.tr.Request(ctx, addr, "/internal/gossip/join", body, p.authHeader())
		if err != nil {
			lastErr = err
			continue
		}
		var peers []types.NodeInfo
		if err := p.decode(resp, &peers); err != nil {
			lastErr = fmt.Errorf("unmarshal join response from %s: %w", addr, err)
			continue
		}
		p.applyTransitions(p.tbl.merge(peers))
		log.WithComponent("gossip").Info().Str("bootstrap", addr).Int("discovered", len(peers)).Msg("joined cluster")
		return nil
	}
	return clustererr.Transport("join", "no bootstrap address accepted", lastErr)
}

// HandleJoin is the server-side handler for /internal/gossip/join: it
// admits the joining node into the table and returns the full table.
func (p *Protocol) HandleJoin(req JoinRequest) []types.NodeInfo {
	p.applyTransitions(p.tbl.merge([]types.NodeInfo{req.NodeInfo}))
	return p.tbl.snapshot()
}

// HandleExchange is the server-side handler for /internal/gossip/exchange:
// it merges the sender's view and returns this node's own table so the
// merge is bidirectional in one round trip.
func (p *Protocol) HandleExchange(msg ExchangeMessage) []types.NodeInfo {
	p.applyTransitions(p.tbl.merge(msg.Nodes))
	return p.tbl.snapshot()
}

// HandleJoinJSON decodes a (possibly zstd-framed) JoinRequest, applies
// it, and re-encodes the resulting table — the shape pkg/rpc's
// /internal/gossip/join route mounts directly.
func (p *Protocol) HandleJoinJSON(body []byte) ([]byte, error) {
	var req JoinRequest
	if err := p.decode(body, &req); err != nil {
		return nil, clustererr.Validation("gossip-join", "malformed join request")
	}
	return p.encode(p.HandleJoin(req))
}

// HandleExchangeJSON decodes a (possibly zstd-framed) ExchangeMessage,
// applies it, and re-encodes the resulting table — the shape pkg/rpc's
// /internal/gossip/exchange route mounts directly.
func (p *Protocol) HandleExchangeJSON(body []byte) ([]byte, error) {
	var msg ExchangeMessage
	if err := p.decode(body, &msg); err != nil {
		return nil, clustererr.Validation("gossip-exchange", "malformed exchange message")
	}
	return p.encode(p.HandleExchange(msg))
}

// encode marshals v to JSON and wraps it in a compression envelope per
// cfg.CompressionEnabled/CompressionThreshold.
func (p *Protocol) encode(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(compressPayload(body, p.cfg.CompressionEnabled, p.cfg.CompressionThreshold))
}

// decode unwraps a compression envelope, if present, and unmarshals
// the payload into v.
func (p *Protocol) decode(wire []byte, v any) error {
	var e envelope
	if err := json.Unmarshal(wire, &e); err != nil {
		return err
	}
	payload, err := decompressPayload(e)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}

// Start launches the gossip round, failure detection and cleanup loops
// in the background. It returns immediately; call Stop to tear them
// down.
func (p *Protocol) Start(ctx context.Context) {
	p.wg.Add(3)
	go p.gossipLoop(ctx)
	go p.failureDetectionLoop(ctx)
	go p.cleanupLoop(ctx)
}

// Stop signals every background loop to exit and waits for them.
func (p *Protocol) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Protocol) gossipLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		p.adjustInterval()

		select {
		case <-time.After(p.currentInterval()):
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		}

		p.tbl.updateSelf(func(n *types.NodeInfo) {
			n.LastSeen = time.Now()
			if p.projector != nil {
				n.Services = p.projector()
			}
		})

		targets := pickTargets(p.tbl.alive(), p.cfg.MaxGossipTargets)
		if len(targets) == 0 {
			continue
		}

		var wg sync.WaitGroup
		for _, target := range targets {
			wg.Add(1)
			go func(target types.NodeInfo) {
				defer wg.Done()
				p.exchangeWith(ctx, target)
			}(target)
		}
		wg.Wait()

		atomic.AddInt64(&p.msgCount, int64(len(targets)))
	}
}

func (p *Protocol) exchangeWith(ctx context.Context, target types.NodeInfo) {
	msg := ExchangeMessage{SenderID: p.cfg.NodeID, Nodes: p.tbl.snapshot()}
	body, err := p.encode(msg)
	if err != nil {
		return
	}

	resp, err := p.tr.Request(ctx, target.URL(), "/internal/gossip/exchange", body, p.authHeader())
	if err != nil {
		log.WithPeer(target.NodeID).Warn().Err(err).Msg("gossip exchange failed")
		if t := p.tbl.setStatus(target.NodeID, types.StatusSuspected); t != nil {
			p.applyTransitions([]transition{*t})
		}
		return
	}

	var peers []types.NodeInfo
	if err := p.decode(resp, &peers); err != nil {
		return
	}
	p.applyTransitions(p.tbl.merge(peers))

	if t := p.tbl.setStatus(target.NodeID, types.StatusAlive); t != nil {
		p.applyTransitions([]transition{*t})
	}
}

// adjustInterval re-derives the gossip interval once per AdjustPeriod
// from the message rate observed since the last adjustment, stepping
// toward the target by at most 20% per adjustment (spec.md §4.2).
func (p *Protocol) adjustInterval() {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.lastAdjust)
	if elapsed < p.cfg.AdjustPeriod {
		return
	}

	count := atomic.SwapInt64(&p.msgCount, 0)
	rate := float64(count) / elapsed.Seconds()

	var target time.Duration
	switch {
	case rate < 1:
		target = p.cfg.IntervalMin
	case rate < 5:
		ratio := (rate - 1) / 4
		target = p.cfg.IntervalMin + time.Duration(ratio*float64(p.cfg.IntervalMax-p.cfg.IntervalMin))
	default:
		target = p.cfg.IntervalMax
	}

	cur := p.interval
	switch {
	case target > cur:
		step := time.Duration(float64(cur) * 1.2)
		if step > target {
			step = target
		}
		p.interval = step
	case target < cur:
		step := time.Duration(float64(cur) * 0.8)
		if step < target {
			step = target
		}
		p.interval = step
	}

	p.lastAdjust = time.Now()
}

func (p *Protocol) currentInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

func (p *Protocol) failureDetectionLoop(ctx context.Context) {
	defer p.wg.Done()
	tick := p.cfg.FailureTimeout / 3
	if tick <= 0 {
		tick = time.Second
	}

	for {
		select {
		case <-time.After(tick):
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		}

		now := time.Now()
		for _, n := range p.tbl.snapshot() {
			if n.NodeID == p.cfg.NodeID {
				continue
			}
			since := now.Sub(n.LastSeen)
			switch {
			case since > p.cfg.FailureTimeout:
				if t := p.tbl.setStatus(n.NodeID, types.StatusDead); t != nil {
					p.applyTransitions([]transition{*t})
				}
			case since > p.cfg.FailureTimeout/2:
				if n.Status == types.StatusAlive {
					if t := p.tbl.setStatus(n.NodeID, types.StatusSuspected); t != nil {
						p.applyTransitions([]transition{*t})
					}
				}
			}
		}
	}
}

func (p *Protocol) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-time.After(p.cfg.CleanupInterval):
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		}

		now := time.Now()
		for _, n := range p.tbl.byStatus(types.StatusDead) {
			if now.Sub(n.LastSeen) > p.cfg.CleanupInterval*2 {
				p.tbl.remove(n.NodeID)
				log.WithPeer(n.NodeID).Info().Msg("removed dead node from membership table")
			}
		}
	}
}

func (p *Protocol) applyTransitions(ts []transition) {
	if len(ts) == 0 {
		return
	}
	p.mu.Lock()
	listeners := append([]TransitionFunc(nil), p.listeners...)
	p.mu.Unlock()

	for _, t := range ts {
		for _, fn := range listeners {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.WithComponent("gossip").Error().Interface("panic", r).Msg("transition listener panicked")
					}
				}()
				fn(t.node, t.oldStatus, t.newStatus)
			}()
		}
	}
}

func (p *Protocol) authHeader() map[string]string {
	if p.cfg.AuthToken == "" {
		return nil
	}
	return map[string]string{"Authorization": p.cfg.AuthToken}
}

func pickTargets(alive []types.NodeInfo, max int) []types.NodeInfo {
	if len(alive) <= max {
		return alive
	}
	shuffled := append([]types.NodeInfo(nil), alive...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:max]
}
