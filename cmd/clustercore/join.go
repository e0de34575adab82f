package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/clustercore/clustercore/pkg/app"
	"github.com/clustercore/clustercore/pkg/config"
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Bootstrap this node's TLS identity without starting the full stack",
	Long: `Run just the certificate bootstrap step serve would otherwise run on
first start: a coordinator issues itself a leaf off its own CA, a
worker performs the challenge-response handshake against
--coordinator-addr. Useful for pre-provisioning a node's credentials
before its first serve.`,
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().String("node-id", "", "This node's unique ID (required)")
	joinCmd.Flags().String("bind-address", "0.0.0.0", "Address this node will bind to once served")
	joinCmd.Flags().Int("port", 9000, "Port this node will bind to once served")
	joinCmd.Flags().Bool("coordinator", false, "Bootstrap as a coordinator")
	joinCmd.Flags().StringSlice("coordinator-addr", nil, "Coordinator address(es) to request a leaf from (worker only)")
	joinCmd.Flags().String("state-dir", "", "Directory to write the resulting leaf bundle into (required)")
	joinCmd.Flags().String("jwt-secret", "", "HMAC secret for internal bearer tokens (required)")
}

func runJoin(cmd *cobra.Command, args []string) error {
	nodeID, _ := cmd.Flags().GetString("node-id")
	bindAddr, _ := cmd.Flags().GetString("bind-address")
	port, _ := cmd.Flags().GetInt("port")
	coordinator, _ := cmd.Flags().GetBool("coordinator")
	addrs, _ := cmd.Flags().GetStringSlice("coordinator-addr")
	stateDir, _ := cmd.Flags().GetString("state-dir")
	secret, _ := cmd.Flags().GetString("jwt-secret")

	if nodeID == "" {
		return fmt.Errorf("--node-id is required")
	}
	if stateDir == "" {
		return fmt.Errorf("--state-dir is required")
	}
	if secret == "" {
		return fmt.Errorf("--jwt-secret is required")
	}

	cfg := config.Default()
	cfg.NodeID = nodeID
	cfg.BindAddress = bindAddr
	cfg.Port = port
	cfg.CoordinatorMode = coordinator
	cfg.CoordinatorAddresses = addrs
	cfg.StateDirectory = stateDir
	cfg.JWTSecret = secret

	c, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("wire node: %w", err)
	}
	defer c.Store.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap TLS identity: %w", err)
	}

	fmt.Printf("leaf bundle ready for %s under %s\n", nodeID, stateDir)
	return nil
}
