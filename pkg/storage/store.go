package storage

import "github.com/clustercore/clustercore/pkg/types"

// Store defines the interface for this node's local persisted state.
// It is never replicated — spec.md's Non-goals exclude durable
// distributed queues, so every write here belongs to exactly one node
// and is recoverable via gossip re-claim if lost, not via consensus.
type Store interface {
	// Certificate authority (coordinator only).
	SaveCA(data []byte) error
	GetCA() ([]byte, error)

	// Installed service metadata (pkg/orchestrator).
	SaveInstalledService(rec *InstalledService) error
	GetInstalledService(name string) (*InstalledService, error)
	ListInstalledServices() ([]*InstalledService, error)
	DeleteInstalledService(name string) error

	// Bearer token revocation list (pkg/security).
	RevokeToken(jti string, expiry int64) error
	IsRevoked(jti string) (bool, error)
	PruneExpiredRevocations(now int64) error

	// Hash job archive (pkg/hashjob) — coordinator-side record of jobs
	// that have completed, kept for get_job_status after a restart.
	SaveHashJob(job *types.HashJob) error
	GetHashJob(jobID string) (*types.HashJob, error)
	ListHashJobs() ([]*types.HashJob, error)

	// Gossip peer table snapshot, restored on restart per spec.md §6.
	SaveGossipSnapshot(data []byte) error
	GetGossipSnapshot() ([]byte, error)

	Close() error
}

// InstalledService is the metadata persisted for each installed service
// package, per spec.md §4.6 ("persist metadata {installed_at,
// archive_hash, manifest, files_count}").
type InstalledService struct {
	Name        string
	InstalledAt int64
	ArchiveHash string
	Version     string
	Dependencies []string
	FilesCount  int
}
