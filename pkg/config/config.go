// Package config loads clustercore's node configuration from a single
// YAML document, the way cmd/clustercore layers cobra flags on top of it.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of behavior-affecting settings for one node.
type Config struct {
	NodeID                string   `yaml:"node_id"`
	Port                  int      `yaml:"port"`
	BindAddress           string   `yaml:"bind_address"`
	CoordinatorMode       bool     `yaml:"coordinator_mode"`
	CoordinatorAddresses  []string `yaml:"coordinator_addresses"`

	GossipIntervalMin     time.Duration `yaml:"gossip_interval_min"`
	GossipIntervalMax     time.Duration `yaml:"gossip_interval_max"`
	FailureTimeout        time.Duration `yaml:"failure_timeout"`
	MaxGossipTargets      int           `yaml:"max_gossip_targets"`
	CompressionEnabled    bool          `yaml:"compression_enabled"`
	CompressionThreshold  int           `yaml:"compression_threshold"`
	AdjustIntervalPeriod  time.Duration `yaml:"adjust_interval_period"`
	CleanupInterval       time.Duration `yaml:"cleanup_interval"`

	JWTSecret           string        `yaml:"jwt_secret"`
	JWTExpirationHours  int           `yaml:"jwt_expiration_hours"`

	SSLCertFile   string `yaml:"ssl_cert_file"`
	SSLKeyFile    string `yaml:"ssl_key_file"`
	SSLCACertFile string `yaml:"ssl_ca_cert_file"`
	SSLVerify     bool   `yaml:"ssl_verify"`

	StateDirectory    string `yaml:"state_directory"`
	ServicesDirectory string `yaml:"services_directory"`

	MaxConnections   int           `yaml:"max_connections"`
	MaxKeepalive     int           `yaml:"max_keepalive"`
	KeepaliveExpiry  time.Duration `yaml:"keepalive_expiry"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	TotalTimeout     time.Duration `yaml:"total_timeout"`

	// MetricsAddress is a plain-HTTP, loopback-only listener separate
	// from the mTLS RPC port: /metrics, /health, /ready and /live have
	// no business behind the cluster's peer-trust boundary.
	MetricsAddress string `yaml:"metrics_address"`
}

// Default returns a Config with every behavior-affecting field set to
// the value the runtime falls back to when a key is absent from YAML.
func Default() *Config {
	return &Config{
		Port:                 9000,
		BindAddress:          "0.0.0.0",
		GossipIntervalMin:    1 * time.Second,
		GossipIntervalMax:    10 * time.Second,
		FailureTimeout:       30 * time.Second,
		MaxGossipTargets:     3,
		CompressionEnabled:   true,
		CompressionThreshold: 1024,
		AdjustIntervalPeriod: 30 * time.Second,
		CleanupInterval:      60 * time.Second,
		JWTExpirationHours:   24,
		SSLVerify:            true,
		StateDirectory:       "/var/lib/clustercore",
		ServicesDirectory:    "/var/lib/clustercore/services",
		MaxConnections:       100,
		MaxKeepalive:         20,
		KeepaliveExpiry:      30 * time.Second,
		ConnectTimeout:       5 * time.Second,
		ReadTimeout:          10 * time.Second,
		TotalTimeout:         30 * time.Second,
		MetricsAddress:       "127.0.0.1:9090",
	}
}

// Load reads a YAML document from path and overlays it onto Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("config %s: node_id is required", path)
	}
	return cfg, nil
}

// Role returns the node's configured role.
func (c *Config) Role() string {
	if c.CoordinatorMode {
		return "coordinator"
	}
	return "worker"
}
