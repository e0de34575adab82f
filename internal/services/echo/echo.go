// Package echo is a minimal installable service: its only job is to
// give the orchestrator's Install/Export/Distribute path a real
// Factory to reload once a package named "echo" lands on disk.
package echo

import (
	"context"
	"encoding/json"

	"github.com/clustercore/clustercore/pkg/app"
	"github.com/clustercore/clustercore/pkg/service"
	"github.com/clustercore/clustercore/pkg/types"
)

func init() {
	service.Register(&Service{})
}

// Service echoes its input message back unchanged.
type Service struct{}

func (s *Service) Name() string           { return "echo" }
func (s *Service) Version() string        { return "1.0.0" }
func (s *Service) Dependencies() []string { return nil }

func (s *Service) Init(ctx context.Context, c *app.Context) error {
	c.Registry.Register("echo", "echo", true,
		"return the given message unchanged", func(ctx context.Context, params json.RawMessage) (any, error) {
			var req struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, err
			}
			return req.Message, nil
		})
	return nil
}

func (s *Service) Shutdown(ctx context.Context) error { return nil }

func (s *Service) Methods() []types.MethodEntry {
	return []types.MethodEntry{{Path: "echo/echo", Public: true, Description: "echo a message back"}}
}
