package metrics

import (
	"time"

	"github.com/clustercore/clustercore/pkg/gossip"
	"github.com/clustercore/clustercore/pkg/storage"
)

// Collector periodically samples cluster-wide gauges from this node's
// gossip table and local store — the clustercore replacement for the
// teacher's Raft-stats collector, since there is no leader/log here.
type Collector struct {
	gossip *gossip.Protocol
	store  storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(g *gossip.Protocol, store storage.Store) *Collector {
	return &Collector{gossip: g, store: store, stopCh: make(chan struct{})}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectNodeMetrics()
	c.collectServiceMetrics()
}

func (c *Collector) collectNodeMetrics() {
	nodeCounts := make(map[string]map[string]int)
	for _, node := range c.gossip.Snapshot() {
		role, status := string(node.Role), string(node.Status)
		if nodeCounts[role] == nil {
			nodeCounts[role] = make(map[string]int)
		}
		nodeCounts[role][status]++
	}
	for role, statuses := range nodeCounts {
		for status, count := range statuses {
			NodesTotal.WithLabelValues(role, status).Set(float64(count))
		}
	}
}

func (c *Collector) collectServiceMetrics() {
	services, err := c.store.ListInstalledServices()
	if err != nil {
		return
	}
	ServicesTotal.Set(float64(len(services)))
}
