package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/clustercore/clustercore/pkg/security"
	"github.com/clustercore/clustercore/pkg/storage"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Manage this cluster's certificate authority",
}

var certIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a leaf certificate off a coordinator's CA",
	Long: `Issue a leaf certificate directly from a coordinator's already-
initialized CA, for provisioning a node out-of-band instead of through
the worker's normal join challenge-response handshake.`,
	RunE: runCertIssue,
}

func init() {
	certCmd.AddCommand(certIssueCmd)

	certIssueCmd.Flags().String("state-dir", "", "Coordinator's state directory, holding the CA (required)")
	certIssueCmd.Flags().String("node-id", "", "Node ID the leaf certificate identifies (required)")
	certIssueCmd.Flags().StringSlice("dns-name", nil, "Additional DNS SAN(s) for the leaf, beyond node-id")
	certIssueCmd.Flags().StringSlice("ip", nil, "IP SAN(s) for the leaf")
	certIssueCmd.Flags().String("out-dir", "", "Directory to write the issued leaf bundle into (required)")
}

func runCertIssue(cmd *cobra.Command, args []string) error {
	stateDir, _ := cmd.Flags().GetString("state-dir")
	nodeID, _ := cmd.Flags().GetString("node-id")
	dnsNames, _ := cmd.Flags().GetStringSlice("dns-name")
	ipStrs, _ := cmd.Flags().GetStringSlice("ip")
	outDir, _ := cmd.Flags().GetString("out-dir")

	if stateDir == "" || nodeID == "" || outDir == "" {
		return fmt.Errorf("--state-dir, --node-id and --out-dir are all required")
	}

	store, err := storage.NewBoltStore(stateDir)
	if err != nil {
		return fmt.Errorf("open coordinator store: %w", err)
	}
	defer store.Close() //nolint:errcheck

	ca := security.NewCertAuthority(store)
	if err := ca.LoadFromStore(); err != nil {
		return fmt.Errorf("load CA from %s: %w", stateDir, err)
	}

	ips := make([]net.IP, 0, len(ipStrs))
	for _, s := range ipStrs {
		if ip := net.ParseIP(s); ip != nil {
			ips = append(ips, ip)
		}
	}

	names := append([]string{nodeID}, dnsNames...)
	cert, err := ca.IssueLeaf(nodeID, names, ips)
	if err != nil {
		return fmt.Errorf("issue leaf for %s: %w", nodeID, err)
	}

	if err := security.SaveLeafBundle(outDir, cert, ca.RootCertDER()); err != nil {
		return fmt.Errorf("save leaf bundle to %s: %w", outDir, err)
	}

	fmt.Printf("issued leaf for %s under %s\n", nodeID, outDir)
	return nil
}
