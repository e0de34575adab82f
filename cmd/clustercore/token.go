package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage internal bearer tokens on a running node",
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <token>",
	Short: "Revoke a bearer token on one node before it naturally expires",
	Long: `Revocation is local to the node the token is revoked on: each node
keeps its own blacklist (pkg/storage's jwt_blacklist bucket), so a
compromised internal token must be revoked on every node that might
still accept it.`,
	Args: cobra.ExactArgs(1),
	RunE: runTokenRevoke,
}

func init() {
	tokenCmd.PersistentFlags().String("addr", "", "Target node's RPC URL, e.g. https://10.0.0.1:9000 (required)")
	tokenCmd.PersistentFlags().String("state-dir", "", "A node's state directory to borrow TLS trust from (required)")

	tokenCmd.AddCommand(tokenRevokeCmd)
}

func runTokenRevoke(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	stateDir, _ := cmd.Flags().GetString("state-dir")
	if addr == "" || stateDir == "" {
		return fmt.Errorf("--addr and --state-dir are both required")
	}

	client, err := dialRPC(stateDir, addr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.call(ctx, "security/revoke_token", map[string]string{"token": args[0]}, nil); err != nil {
		return err
	}

	fmt.Println("token revoked")
	return nil
}
