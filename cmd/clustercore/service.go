package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Install, list and distribute service packages on a node",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install <archive.tar.gz>",
	Short: "Install a service package from a local gzipped tarball",
	Args:  cobra.ExactArgs(1),
	RunE:  runServiceInstall,
}

var serviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed service packages",
	RunE:  runServiceList,
}

var serviceDistributeCmd = &cobra.Command{
	Use:   "distribute <service-name>",
	Short: "Distribute an installed service package to other nodes",
	Args:  cobra.ExactArgs(1),
	RunE:  runServiceDistribute,
}

func init() {
	serviceCmd.PersistentFlags().String("addr", "", "Target node's RPC URL, e.g. https://10.0.0.1:9000 (required)")
	serviceCmd.PersistentFlags().String("state-dir", "", "A node's state directory to borrow TLS trust from (required)")

	serviceInstallCmd.Flags().Bool("force", false, "Reinstall over an existing package of the same name")
	serviceDistributeCmd.Flags().StringSlice("node", nil, "Target node ID(s); empty means every live node")

	serviceCmd.AddCommand(serviceInstallCmd, serviceListCmd, serviceDistributeCmd)
}

func serviceClient(cmd *cobra.Command) (*rpcClient, error) {
	addr, _ := cmd.Flags().GetString("addr")
	stateDir, _ := cmd.Flags().GetString("state-dir")
	if addr == "" || stateDir == "" {
		return nil, fmt.Errorf("--addr and --state-dir are both required")
	}
	return dialRPC(stateDir, addr)
}

func runServiceInstall(cmd *cobra.Command, args []string) error {
	client, err := serviceClient(cmd)
	if err != nil {
		return err
	}

	archive, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	force, _ := cmd.Flags().GetBool("force")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var result any
	if err := client.call(ctx, "orchestrator/install_service", map[string]any{
		"archive_data":    archive,
		"force_reinstall": force,
	}, &result); err != nil {
		return err
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runServiceList(cmd *cobra.Command, args []string) error {
	client, err := serviceClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var result any
	if err := client.call(ctx, "orchestrator/list_services", map[string]string{}, &result); err != nil {
		return err
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runServiceDistribute(cmd *cobra.Command, args []string) error {
	client, err := serviceClient(cmd)
	if err != nil {
		return err
	}

	nodes, _ := cmd.Flags().GetStringSlice("node")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var result any
	if err := client.call(ctx, "orchestrator/distribute_service", map[string]any{
		"service_name": args[0],
		"target_nodes": nodes,
	}, &result); err != nil {
		return err
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	return nil
}
