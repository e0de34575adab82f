package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clustercore/clustercore/pkg/rpc"
	"github.com/clustercore/clustercore/pkg/security"
	"github.com/clustercore/clustercore/pkg/transport"
)

// rpcClient is the thin out-of-process counterpart to rpc.ServiceProxy:
// every RPC method in this repo registers public:true (spec.md §4.1
// never requires a bearer token for node-to-node calls), so a CLI
// command only needs the cluster's TLS trust, not a login flow.
type rpcClient struct {
	addr string
	tr   *transport.Transport
}

// dialRPC builds an rpcClient targeting addr (a bare https://host:port
// node URL) using the leaf bundle found under stateDir to trust the
// cluster's CA — the same bundle any serve process on that host
// already has on disk, so operating the CLI from a node's own machine
// needs no separate credential.
func dialRPC(stateDir, addr string) (*rpcClient, error) {
	leaf, caCert, err := security.LoadLeafBundle(stateDir)
	if err != nil {
		return nil, fmt.Errorf("load leaf bundle from %s: %w", stateDir, err)
	}
	caPool, err := security.PoolFromCert(caCert)
	if err != nil {
		return nil, fmt.Errorf("build CA pool: %w", err)
	}

	tr := transport.New(transport.Config{TLSConfig: transport.NewClientTLSConfig(*leaf, caPool)})
	return &rpcClient{addr: addr, tr: tr}, nil
}

// call issues one JSON-RPC request against path (service "/" method)
// and unmarshals the result into out, mirroring rpc.ServiceProxy.Call's
// wire shape without needing a live Registry.
func (c *rpcClient) call(ctx context.Context, path string, params, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	req := rpc.Request{Method: path, Params: raw}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.tr.Request(ctx, c.addr, "/rpc", body, nil)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}

	var resp rpc.Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("%s: %s", path, resp.Error)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode result for %s: %w", path, err)
		}
	}
	return nil
}
