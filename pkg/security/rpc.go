package security

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clustercore/clustercore/pkg/rpc"
)

// RegisterRPC mounts administrative token operations under the
// "security" service prefix. Every method here registers public like
// the rest of this repo's RPC surface (see pkg/rpc's own registration
// calls) — a node's mTLS trust is the only gate, there is no separate
// admin login.
func RegisterRPC(registry *rpc.Registry, issuer *TokenIssuer) {
	registry.Register("security", "revoke_token", true,
		"revoke a bearer token on this node before its natural expiry", func(ctx context.Context, params json.RawMessage) (any, error) {
			var req struct {
				Token string `json:"token"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, fmt.Errorf("decode revoke_token params: %w", err)
			}
			return nil, issuer.Revoke(req.Token)
		})
}
