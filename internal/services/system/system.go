// Package system is a minimal business service exercising the proxy's
// role-routing: calling system/get_system_info against rpc.Peer(coordinatorID)
// vs rpc.Peer(workerID) hits two different processes' own hostname/uptime.
package system

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/clustercore/clustercore/pkg/app"
	"github.com/clustercore/clustercore/pkg/service"
	"github.com/clustercore/clustercore/pkg/types"
)

func init() {
	service.Register(&Service{})
}

// Info is the result of get_system_info.
type Info struct {
	Hostname string `json:"hostname"`
	NodeID   string `json:"node_id"`
	Uptime   string `json:"uptime"`
}

// Service reports the hosting node's hostname and process uptime.
type Service struct {
	nodeID    string
	startedAt time.Time
}

func (s *Service) Name() string           { return "system" }
func (s *Service) Version() string        { return "1.0.0" }
func (s *Service) Dependencies() []string { return nil }

func (s *Service) Init(ctx context.Context, c *app.Context) error {
	s.nodeID = c.Config.NodeID
	s.startedAt = time.Now()

	c.Registry.Register("system", "get_system_info", true,
		"report this node's hostname and process uptime", func(ctx context.Context, params json.RawMessage) (any, error) {
			return s.getSystemInfo(), nil
		})
	return nil
}

func (s *Service) Shutdown(ctx context.Context) error { return nil }

func (s *Service) Methods() []types.MethodEntry {
	return []types.MethodEntry{{Path: "system/get_system_info", Public: true, Description: "hostname and process uptime"}}
}

func (s *Service) getSystemInfo() Info {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = s.nodeID
	}
	return Info{
		Hostname: hostname,
		NodeID:   s.nodeID,
		Uptime:   time.Since(s.startedAt).Round(time.Second).String(),
	}
}
