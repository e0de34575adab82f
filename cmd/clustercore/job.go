package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/clustercore/clustercore/pkg/hashjob"
	"github.com/clustercore/clustercore/pkg/types"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Create and inspect hash-cracking jobs against a coordinator",
}

var jobCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Submit a hash-cracking job",
	RunE:  runJobCreate,
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show one job's progress and solutions",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobStatus,
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every job a coordinator knows about",
	RunE:  runJobList,
}

func init() {
	jobCmd.PersistentFlags().String("addr", "", "Coordinator's RPC URL, e.g. https://10.0.0.1:9000 (required)")
	jobCmd.PersistentFlags().String("state-dir", "", "A node's state directory to borrow TLS trust from (required)")

	jobCreateCmd.Flags().String("mode", string(types.HashModeBrute), "brute or dictionary")
	jobCreateCmd.Flags().String("charset", "", "Charset for brute-force mode")
	jobCreateCmd.Flags().Int("length", 0, "Combination length for brute-force mode")
	jobCreateCmd.Flags().StringSlice("wordlist", nil, "Wordlist for dictionary mode")
	jobCreateCmd.Flags().StringSlice("mutations", nil, "Mutation names for dictionary mode")
	jobCreateCmd.Flags().String("hash-algo", "sha256", "Hash algorithm of the target hashes")
	jobCreateCmd.Flags().StringSlice("target-hash", nil, "Target hash(es) to crack (required)")
	jobCreateCmd.Flags().String("ssid", "", "SSID salt, for WPA-style hash modes")
	jobCreateCmd.Flags().Int64("base-chunk-size", 1_000_000, "Combinations per chunk")
	jobCreateCmd.Flags().Int("lookahead-batches", 2, "Batches the coordinator keeps pre-seeded ahead of completion")

	jobCmd.AddCommand(jobCreateCmd, jobStatusCmd, jobListCmd)
}

func jobClient(cmd *cobra.Command) (*rpcClient, error) {
	addr, _ := cmd.Flags().GetString("addr")
	stateDir, _ := cmd.Flags().GetString("state-dir")
	if addr == "" || stateDir == "" {
		return nil, fmt.Errorf("--addr and --state-dir are both required")
	}
	return dialRPC(stateDir, addr)
}

func runJobCreate(cmd *cobra.Command, args []string) error {
	client, err := jobClient(cmd)
	if err != nil {
		return err
	}

	mode, _ := cmd.Flags().GetString("mode")
	charset, _ := cmd.Flags().GetString("charset")
	length, _ := cmd.Flags().GetInt("length")
	wordlist, _ := cmd.Flags().GetStringSlice("wordlist")
	mutations, _ := cmd.Flags().GetStringSlice("mutations")
	hashAlgo, _ := cmd.Flags().GetString("hash-algo")
	targets, _ := cmd.Flags().GetStringSlice("target-hash")
	ssid, _ := cmd.Flags().GetString("ssid")
	chunkSize, _ := cmd.Flags().GetInt64("base-chunk-size")
	lookahead, _ := cmd.Flags().GetInt("lookahead-batches")

	if len(targets) == 0 {
		return fmt.Errorf("--target-hash is required")
	}

	params := hashjob.CreateJobParams{
		Mode:             types.HashMode(mode),
		Charset:          charset,
		Length:           length,
		Wordlist:         wordlist,
		Mutations:        mutations,
		HashAlgo:         hashAlgo,
		TargetHashes:     targets,
		SSID:             ssid,
		BaseChunkSize:    chunkSize,
		LookaheadBatches: lookahead,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var job types.HashJob
	if err := client.call(ctx, "hash_coordinator/create_job", params, &job); err != nil {
		return err
	}

	out, _ := json.MarshalIndent(job, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runJobStatus(cmd *cobra.Command, args []string) error {
	client, err := jobClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var job types.HashJob
	if err := client.call(ctx, "hash_coordinator/get_job_status", map[string]string{"job_id": args[0]}, &job); err != nil {
		return err
	}

	out, _ := json.MarshalIndent(job, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runJobList(cmd *cobra.Command, args []string) error {
	client, err := jobClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var jobs []types.HashJob
	if err := client.call(ctx, "hash_coordinator/list_jobs", map[string]string{}, &jobs); err != nil {
		return err
	}

	out, _ := json.MarshalIndent(jobs, "", "  ")
	fmt.Println(string(out))
	return nil
}
