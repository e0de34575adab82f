package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/clustercore/clustercore/pkg/config"
	"github.com/clustercore/clustercore/pkg/gossip"
	"github.com/clustercore/clustercore/pkg/log"
	"github.com/clustercore/clustercore/pkg/metrics"
	"github.com/clustercore/clustercore/pkg/rpc"
	"github.com/clustercore/clustercore/pkg/security"
	"github.com/clustercore/clustercore/pkg/storage"
	"github.com/clustercore/clustercore/pkg/transport"
	"github.com/clustercore/clustercore/pkg/types"
)

// Context holds every subsystem one clustercore node needs, constructed
// once at startup and passed by pointer to everything downstream —
// service Factories, command handlers, the rpc Server's route bodies.
// Nothing here is a package-level global; a test builds its own Context
// with its own in-memory pieces.
type Context struct {
	Config *config.Config

	Store     storage.Store
	CA        *security.CertAuthority // nil on worker nodes
	Issuer    *security.TokenIssuer
	Transport *transport.Transport
	Gossip    *gossip.Protocol
	Registry  *rpc.Registry
	Server    *rpc.Server

	httpSrv    *http.Server
	metricsSrv *http.Server
	collector  *metrics.Collector
}

// New wires every subsystem for cfg. It does not start any network
// listener or background loop — call Start for that once the node's
// services have had a chance to register their methods.
func New(cfg *config.Config) (*Context, error) {
	if err := os.MkdirAll(cfg.StateDirectory, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.StateDirectory)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	issuer := security.NewTokenIssuer(cfg.JWTSecret, store)

	var ca *security.CertAuthority
	if cfg.CoordinatorMode {
		ca = security.NewCertAuthority(store)
		if err := ca.LoadFromStore(); err != nil {
			if err := ca.Initialize(); err != nil {
				store.Close() //nolint:errcheck
				return nil, fmt.Errorf("initialize CA: %w", err)
			}
			if err := ca.SaveToStore(); err != nil {
				store.Close() //nolint:errcheck
				return nil, fmt.Errorf("persist CA: %w", err)
			}
		}
	}

	tr := transport.New(transport.Config{
		MaxConnections:  cfg.MaxConnections,
		MaxKeepalive:    cfg.MaxKeepalive,
		KeepaliveExpiry: cfg.KeepaliveExpiry,
		ConnectTimeout:  cfg.ConnectTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		TotalTimeout:    cfg.TotalTimeout,
	})

	role := types.RoleWorker
	if cfg.CoordinatorMode {
		role = types.RoleCoordinator
	}

	g := gossip.New(gossip.Config{
		NodeID:               cfg.NodeID,
		Address:              cfg.BindAddress,
		Port:                 cfg.Port,
		Role:                 role,
		IntervalMin:          cfg.GossipIntervalMin,
		IntervalMax:          cfg.GossipIntervalMax,
		FailureTimeout:       cfg.FailureTimeout,
		CleanupInterval:      cfg.CleanupInterval,
		MaxGossipTargets:     cfg.MaxGossipTargets,
		AdjustPeriod:         cfg.AdjustIntervalPeriod,
		CompressionEnabled:   cfg.CompressionEnabled,
		CompressionThreshold: cfg.CompressionThreshold,
	}, tr)

	if snapshot, err := store.GetGossipSnapshot(); err == nil && len(snapshot) > 0 {
		if restoreErr := g.Restore(snapshot); restoreErr != nil {
			log.WithComponent("app").Warn().Err(restoreErr).Msg("discarding unreadable gossip snapshot")
		}
	}

	registry := rpc.NewRegistry(cfg.NodeID, g, issuer, tr)
	server := rpc.NewServer(registry, g, issuer)

	if ca != nil {
		server.MountCertIssue(func(w http.ResponseWriter, r *http.Request) {
			resp, err := security.HandleIssueRequest(r.Context(), ca, r.RemoteAddr, r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(resp)
		})
	}

	metrics.RegisterComponent("gossip", false, "not started")
	metrics.RegisterComponent("rpc", false, "not started")

	return &Context{
		Config:    cfg,
		Store:     store,
		CA:        ca,
		Issuer:    issuer,
		Transport: tr,
		Gossip:    g,
		Registry:  registry,
		Server:    server,
		collector: metrics.NewCollector(g, store),
	}, nil
}

// Bootstrap brings this node's TLS identity into place: a coordinator
// issues itself a leaf from its own freshly-initialized CA; a worker
// runs the challenge-response handshake against the coordinator named
// in cfg.CoordinatorAddresses[0].
func (c *Context) Bootstrap(ctx context.Context) error {
	if security.BundleExists(c.Config.StateDirectory) {
		return nil
	}

	if c.CA != nil {
		ips := []net.IP{net.ParseIP(c.Config.BindAddress)}
		cert, err := c.CA.IssueLeaf(c.Config.NodeID, []string{c.Config.NodeID}, ips)
		if err != nil {
			return fmt.Errorf("issue coordinator's own leaf: %w", err)
		}
		return security.SaveLeafBundle(c.Config.StateDirectory, cert, c.CA.RootCertDER())
	}

	if len(c.Config.CoordinatorAddresses) == 0 {
		return fmt.Errorf("worker bootstrap requires at least one coordinator address")
	}

	challengePort := c.Config.Port + 1
	return security.RequestLeaf(ctx, c.Config.CoordinatorAddresses[0], c.Config.NodeID, c.Config.BindAddress,
		challengePort, []string{c.Config.BindAddress}, []string{c.Config.NodeID}, c.Config.StateDirectory)
}

// Start brings up the HTTPS listener and the gossip background loops,
// then joins the configured bootstrap addresses (a no-op, successful
// join if this is the first node in an isolated cluster).
func (c *Context) Start(ctx context.Context) error {
	leaf, caCert, err := security.LoadLeafBundle(c.Config.StateDirectory)
	if err != nil {
		return fmt.Errorf("load leaf bundle: %w", err)
	}

	caPool, err := security.PoolFromCert(caCert)
	if err != nil {
		return fmt.Errorf("build CA pool: %w", err)
	}

	c.httpSrv = &http.Server{
		Addr:      fmt.Sprintf("%s:%d", c.Config.BindAddress, c.Config.Port),
		Handler:   c.Server.Handler(),
		TLSConfig: transport.NewServerTLSConfig(*leaf, caPool),
	}

	go func() {
		if err := c.httpSrv.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			log.WithComponent("app").Error().Err(err).Msg("rpc server exited")
		}
	}()
	metrics.RegisterComponent("rpc", true, "listening")

	c.startMetricsServer()
	c.collector.Start()

	c.Gossip.Start(ctx)
	metrics.RegisterComponent("gossip", true, "running")

	return c.Gossip.Join(ctx, c.Config.CoordinatorAddresses)
}

// startMetricsServer mounts the Prometheus and health-check surface on
// its own plain-HTTP listener, separate from the mTLS RPC port — a
// scrape target or a liveness probe has no peer certificate to offer.
func (c *Context) startMetricsServer() {
	if c.Config.MetricsAddress == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	c.metricsSrv = &http.Server{Addr: c.Config.MetricsAddress, Handler: mux}
	go func() {
		if err := c.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithComponent("app").Error().Err(err).Msg("metrics server exited")
		}
	}()
}

// Stop tears down the gossip loops, HTTPS listener and local store, in
// the reverse order Start brought them up.
func (c *Context) Stop(ctx context.Context) error {
	c.collector.Stop()
	metrics.RegisterComponent("gossip", false, "stopped")
	c.Gossip.Stop()

	if snapshot, err := c.Gossip.SnapshotJSON(); err == nil {
		if err := c.Store.SaveGossipSnapshot(snapshot); err != nil {
			log.WithComponent("app").Warn().Err(err).Msg("failed to persist gossip snapshot")
		}
	}

	if c.metricsSrv != nil {
		if err := c.metricsSrv.Shutdown(ctx); err != nil {
			log.WithComponent("app").Warn().Err(err).Msg("metrics server shutdown")
		}
	}

	metrics.RegisterComponent("rpc", false, "stopped")
	if c.httpSrv != nil {
		if err := c.httpSrv.Shutdown(ctx); err != nil {
			log.WithComponent("app").Warn().Err(err).Msg("rpc server shutdown")
		}
	}

	return c.Store.Close()
}
