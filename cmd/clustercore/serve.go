package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/clustercore/clustercore/pkg/app"
	"github.com/clustercore/clustercore/pkg/config"
	"github.com/clustercore/clustercore/pkg/hashjob"
	"github.com/clustercore/clustercore/pkg/hashjob/fanin"
	"github.com/clustercore/clustercore/pkg/log"
	"github.com/clustercore/clustercore/pkg/orchestrator"
	"github.com/clustercore/clustercore/pkg/security"
	"github.com/clustercore/clustercore/pkg/service"
	"github.com/clustercore/clustercore/pkg/transport"
	"github.com/clustercore/clustercore/pkg/update"

	_ "github.com/clustercore/clustercore/internal/services/echo"
	_ "github.com/clustercore/clustercore/internal/services/system"
)

const (
	hashPollInterval  = 5 * time.Second
	reconcileInterval = 15 * time.Second
	pruneInterval     = 1 * time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run this node's full clustercore stack",
	Long: `Start gossip membership, the RPC registry, the orchestrator, the
update engine and the hash-job coordinator/worker, then block until
interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML config file, overlaid onto defaults; other flags override its values")
	serveCmd.Flags().String("node-id", "", "This node's unique ID (required)")
	serveCmd.Flags().String("bind-address", "0.0.0.0", "Address to bind the RPC/gossip listener on")
	serveCmd.Flags().Int("port", 9000, "Port to bind the RPC/gossip listener on")
	serveCmd.Flags().Bool("coordinator", false, "Run this node as a coordinator")
	serveCmd.Flags().StringSlice("coordinator-addr", nil, "Coordinator address(es) to join (host:port)")
	serveCmd.Flags().String("state-dir", "", "Directory for this node's persistent state")
	serveCmd.Flags().String("services-dir", "", "Directory for installed service packages")
	serveCmd.Flags().String("jwt-secret", "", "HMAC secret for internal bearer tokens (required)")
	serveCmd.Flags().Int("fanin-port", 0, "Port for the hash-job progress-streaming gRPC service (coordinator listens on it, workers dial it; 0 = port+2)")
	serveCmd.Flags().String("metrics-addr", "", "Plain-HTTP address for /metrics, /health, /ready and /live (default 127.0.0.1:9090, empty string disables)")
}

func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if nodeID, _ := cmd.Flags().GetString("node-id"); nodeID != "" {
		cfg.NodeID = nodeID
	}
	if bindAddr, _ := cmd.Flags().GetString("bind-address"); cmd.Flags().Changed("bind-address") {
		cfg.BindAddress = bindAddr
	}
	if port, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
		cfg.Port = port
	}
	if coordinator, _ := cmd.Flags().GetBool("coordinator"); cmd.Flags().Changed("coordinator") {
		cfg.CoordinatorMode = coordinator
	}
	if addrs, _ := cmd.Flags().GetStringSlice("coordinator-addr"); len(addrs) > 0 {
		cfg.CoordinatorAddresses = addrs
	}
	if stateDir, _ := cmd.Flags().GetString("state-dir"); stateDir != "" {
		cfg.StateDirectory = stateDir
	}
	if servicesDir, _ := cmd.Flags().GetString("services-dir"); servicesDir != "" {
		cfg.ServicesDirectory = servicesDir
	}
	if secret, _ := cmd.Flags().GetString("jwt-secret"); secret != "" {
		cfg.JWTSecret = secret
	}
	if cmd.Flags().Changed("metrics-addr") {
		addr, _ := cmd.Flags().GetString("metrics-addr")
		cfg.MetricsAddress = addr
	}

	if cfg.NodeID == "" {
		return nil, fmt.Errorf("--node-id is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("--jwt-secret is required")
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}

	c, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("wire node: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap TLS identity: %w", err)
	}

	manager := service.NewManager(c)
	c.Gossip.RegisterServiceProjector(manager.Views)
	orch := orchestrator.New(cfg.ServicesDirectory, c.Store, manager, c.Registry)
	orchestrator.RegisterRPC(c.Registry, orch)
	security.RegisterRPC(c.Registry, c.Issuer)

	updateEngine, err := update.New(cfg.StateDirectory, c.Registry, cfg.CoordinatorMode)
	if err != nil {
		return fmt.Errorf("build update engine: %w", err)
	}
	var rollout *update.RolloutController
	if cfg.CoordinatorMode {
		rollout = update.NewRolloutController(c.Registry)
	}
	update.RegisterRPC(c.Registry, updateEngine, rollout)

	var coordinator *hashjob.Coordinator
	var worker *hashjob.Worker
	var faninSrv *grpc.Server
	if cfg.CoordinatorMode {
		coordinator = hashjob.NewCoordinator(c.Gossip)
		coordinator.SetStore(c.Store)
		if err := coordinator.LoadPersisted(); err != nil {
			return fmt.Errorf("restore persisted hash jobs: %w", err)
		}
		hashjob.RegisterRPC(c.Registry, coordinator)

		faninSrv, err = startFanInServer(cmd, cfg, coordinator)
		if err != nil {
			return fmt.Errorf("start hash-job fanin service: %w", err)
		}
	} else {
		worker = hashjob.NewWorker(c.Gossip, c.Registry, cfg.NodeID)
	}

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	go runTicker(ctx, pruneInterval, func() {
		if err := c.Issuer.PruneRevocations(); err != nil {
			log.WithComponent("cmd").Warn().Err(err).Msg("failed to prune expired token revocations")
		}
		renewLeafIfNeeded(ctx, cfg, c)
	})

	if coordinator != nil {
		go runTicker(ctx, reconcileInterval, func() { coordinator.Reconcile(ctx) })
	}
	if worker != nil {
		go runTicker(ctx, hashPollInterval, func() {
			if !worker.HasFanInClient() {
				dialFanIn(cmd, cfg, c, worker)
			}
			worker.PollOnce(ctx, worker.PollJobIDs())
		})
		go runTicker(ctx, reconcileInterval, func() { syncInstalledServices(ctx, orch) })
	}

	log.WithComponent("cmd").Info().Str("node_id", cfg.NodeID).Str("role", cfg.Role()).Msg("clustercore node running, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.WithComponent("cmd").Info().Msg("shutting down")
	cancel()

	if faninSrv != nil {
		faninSrv.GracefulStop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := manager.Stop(shutdownCtx); err != nil {
		log.WithComponent("cmd").Warn().Err(err).Msg("service shutdown reported errors")
	}
	return c.Stop(shutdownCtx)
}

// runTicker runs fn every interval until ctx is done, the same
// ticker-plus-select shape the teacher's reconciler uses for its own
// background loop.
func runTicker(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// syncInstalledServices asks the coordinator for each locally installed
// service's current manifest version and reinstalls any that have
// fallen behind. A worker only ever learns about new installs through
// Distribute; this is what keeps it from drifting once a coordinator
// pushes a newer version to the ones it already has.
func syncInstalledServices(ctx context.Context, orch *orchestrator.Orchestrator) {
	installed, err := orch.List()
	if err != nil {
		log.WithComponent("cmd").Warn().Err(err).Msg("service sync: list installed services")
		return
	}
	for _, rec := range installed {
		if err := orch.UpgradeFromCoordinator(ctx, rec.Name); err != nil {
			log.WithComponent("cmd").Warn().Err(err).Str("service", rec.Name).Msg("service sync: upgrade from coordinator")
		}
	}
}

// renewLeafIfNeeded reissues this node's leaf certificate once it is
// close enough to expiry (security.NeedsReissue), the same way the
// initial bootstrap handshake issued it in the first place — a
// coordinator reissues itself off its own CA, a worker re-runs the
// challenge-response request against its first configured coordinator
// address. A load or reissue failure is logged and retried on the next
// tick rather than failing the node.
func renewLeafIfNeeded(ctx context.Context, cfg *config.Config, c *app.Context) {
	leaf, caCert, err := security.LoadLeafBundle(cfg.StateDirectory)
	if err != nil {
		log.WithComponent("cmd").Warn().Err(err).Msg("cert renewal: load leaf bundle")
		return
	}
	if !security.NeedsReissue(leaf.Leaf, caCert, "") {
		return
	}

	renewLog := log.WithComponent("cmd")
	if c.CA != nil {
		renewLog = log.WithComponent("cmd").With().Str("ca_fingerprint", c.CA.Fingerprint()).Logger()
	}
	renewLog.Info().Msg("leaf certificate needs reissue")

	if c.CA != nil {
		ips := []net.IP{net.ParseIP(cfg.BindAddress)}
		cert, err := c.CA.IssueLeaf(cfg.NodeID, []string{cfg.NodeID}, ips)
		if err != nil {
			log.WithComponent("cmd").Warn().Err(err).Msg("cert renewal: reissue from own CA")
			return
		}
		if err := security.SaveLeafBundle(cfg.StateDirectory, cert, c.CA.RootCertDER()); err != nil {
			log.WithComponent("cmd").Warn().Err(err).Msg("cert renewal: save reissued bundle")
		}
		return
	}

	if len(cfg.CoordinatorAddresses) == 0 {
		log.WithComponent("cmd").Warn().Msg("cert renewal: no coordinator address configured, cannot re-request a leaf")
		return
	}
	challengePort := cfg.Port + 1
	if err := security.RequestLeaf(ctx, cfg.CoordinatorAddresses[0], cfg.NodeID, cfg.BindAddress,
		challengePort, []string{cfg.BindAddress}, []string{cfg.NodeID}, cfg.StateDirectory); err != nil {
		log.WithComponent("cmd").Warn().Err(err).Msg("cert renewal: re-request leaf from coordinator")
	}
}

// dialFanIn best-effort dials the coordinator's HashFanIn streaming
// endpoint and wires it into worker. Gossip may not have discovered a
// coordinator yet (or the dial may fail transiently); either way the
// worker keeps reporting progress over gossip until a later tick
// succeeds, so failures here are only logged.
func dialFanIn(cmd *cobra.Command, cfg *config.Config, c *app.Context, worker *hashjob.Worker) {
	coords := c.Gossip.Coordinators()
	if len(coords) == 0 {
		return
	}
	coordinator := coords[0]

	leaf, caCert, err := security.LoadLeafBundle(cfg.StateDirectory)
	if err != nil {
		log.WithComponent("cmd").Warn().Err(err).Msg("fanin dial: load leaf bundle")
		return
	}
	caPool, err := security.PoolFromCert(caCert)
	if err != nil {
		log.WithComponent("cmd").Warn().Err(err).Msg("fanin dial: build CA pool")
		return
	}

	port, _ := cmd.Flags().GetInt("fanin-port")
	if port == 0 {
		port = cfg.Port + 2
	}
	addr := fmt.Sprintf("%s:%d", coordinator.Address, port)

	creds := credentials.NewTLS(transport.NewClientTLSConfig(*leaf, caPool))
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		log.WithComponent("cmd").Warn().Err(err).Str("addr", addr).Msg("fanin dial failed")
		return
	}

	worker.SetFanInClient(fanin.NewHashFanInClient(conn))
	log.WithComponent("cmd").Info().Str("addr", addr).Msg("connected to coordinator fanin stream")
}

// startFanInServer mounts hashjob's HashFanIn gRPC service on its own
// TLS listener, reusing this node's leaf certificate and CA pool so
// workers authenticate the coordinator the same way they do over the
// JSON-RPC channel.
func startFanInServer(cmd *cobra.Command, cfg *config.Config, coordinator *hashjob.Coordinator) (*grpc.Server, error) {
	leaf, caCert, err := security.LoadLeafBundle(cfg.StateDirectory)
	if err != nil {
		return nil, fmt.Errorf("load leaf bundle: %w", err)
	}
	caPool, err := security.PoolFromCert(caCert)
	if err != nil {
		return nil, fmt.Errorf("build CA pool: %w", err)
	}

	port, _ := cmd.Flags().GetInt("fanin-port")
	if port == 0 {
		port = cfg.Port + 2
	}

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.BindAddress, port))
	if err != nil {
		return nil, fmt.Errorf("listen on fanin port %d: %w", port, err)
	}

	creds := credentials.NewTLS(transport.NewServerTLSConfig(*leaf, caPool))
	srv := grpc.NewServer(grpc.Creds(creds))
	fanin.RegisterHashFanInServer(srv, hashjob.NewFanInServer(coordinator))

	go func() {
		if err := srv.Serve(lis); err != nil {
			log.WithComponent("cmd").Error().Err(err).Msg("fanin server exited")
		}
	}()

	return srv, nil
}
