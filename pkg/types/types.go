package types

import (
	"strconv"
	"time"
)

// NodeRole is the role a node plays in the cluster.
type NodeRole string

const (
	RoleCoordinator NodeRole = "coordinator"
	RoleWorker      NodeRole = "worker"
)

// NodeStatus is the failure-detector status of a peer as observed by gossip.
type NodeStatus string

const (
	StatusAlive     NodeStatus = "alive"
	StatusSuspected NodeStatus = "suspected"
	StatusDead      NodeStatus = "dead"
)

// VersionedValue is one gossip-carried metadata value. Version is
// monotonically increasing for the owning node; ties between replicas of
// the same key are broken by the owning node_id, lexicographically.
type VersionedValue struct {
	Version int64  `json:"version"`
	Value   string `json:"value"`
	OwnerID string `json:"owner_id"`
}

// Newer reports whether v should replace other under the version-then-id rule.
func (v VersionedValue) Newer(other VersionedValue) bool {
	if v.Version != other.Version {
		return v.Version > other.Version
	}
	return v.OwnerID > other.OwnerID
}

// ServiceView is the freshest local projection of one loaded service,
// refreshed by the service lifecycle manager before every outgoing gossip
// round (see pkg/gossip's ServiceProjector hook).
type ServiceView struct {
	Status  string   `json:"status"`
	Version string   `json:"version"`
	Methods []string `json:"methods"`
}

// NodeInfo is one entry in the cluster membership table, for self or peer.
type NodeInfo struct {
	NodeID       string                    `json:"node_id"`
	Address      string                    `json:"address"`
	Port         int                       `json:"port"`
	Role         NodeRole                  `json:"role"`
	Status       NodeStatus                `json:"status"`
	LastSeen     time.Time                 `json:"last_seen"`
	Capabilities []string                  `json:"capabilities"`
	Services     map[string]ServiceView    `json:"services"`
	Metadata     map[string]VersionedValue `json:"metadata"`
}

// URL returns the base HTTPS URL for reaching this node.
func (n NodeInfo) URL() string {
	return "https://" + n.Address + ":" + strconv.Itoa(n.Port)
}

// MethodEntry is one registration in the RPC method registry.
type MethodEntry struct {
	Path        string // "<service>/<method>"
	Public      bool
	Description string
}

// ServiceStatus is the lifecycle state of a loaded ServiceInstance.
type ServiceStatus string

const (
	ServiceNotInit      ServiceStatus = "notinit"
	ServiceInitializing ServiceStatus = "initializing"
	ServiceRunning      ServiceStatus = "running"
	ServiceStopping     ServiceStatus = "stopping"
	ServiceStopped      ServiceStatus = "stopped"
	ServiceError        ServiceStatus = "error"
)

// ServiceInfo is the static description of a loaded service.
type ServiceInfo struct {
	Description  string
	Dependencies []string
	Domain       string
}

// AuthToken is the decoded claim set of a bearer token.
type AuthToken struct {
	Subject  string    `json:"sub"`
	Expiry   time.Time `json:"exp"`
	IssuedAt time.Time `json:"iat"`
	Internal bool      `json:"internal,omitempty"`
}

// CertificateBundle is a PEM-encoded leaf certificate and private key,
// held only in memory, plus the CA that issued it.
type CertificateBundle struct {
	CertPEM   []byte
	KeyPEM    []byte
	CACertPEM []byte
	NotAfter  time.Time
	Issuer    string // CA fingerprint (SHA-256 of the CA cert DER)
}

// HashMode selects the search strategy for a HashJob.
type HashMode string

const (
	HashModeBrute      HashMode = "brute"
	HashModeDictionary HashMode = "dictionary"
)

// ChunkStatus is the assignment state of one HashBatch chunk.
type ChunkStatus string

const (
	ChunkAssigned ChunkStatus = "assigned"
	ChunkWorking  ChunkStatus = "working"
	ChunkSolved   ChunkStatus = "solved"
	ChunkRecovery ChunkStatus = "recovery"
)

// HashJob is a coordinator-owned distributed cracking job.
type HashJob struct {
	JobID           string   `json:"job_id"`
	Mode            HashMode `json:"mode"`
	Charset         string   `json:"charset,omitempty"`
	Length          int      `json:"length,omitempty"`
	Wordlist        []string `json:"wordlist,omitempty"`
	Mutations       []string `json:"mutations,omitempty"`
	HashAlgo        string   `json:"hash_algo"`
	TargetHashes    []string `json:"target_hashes"`
	SSID            string   `json:"ssid,omitempty"`
	BaseChunkSize   int64    `json:"base_chunk_size"`
	LookaheadBatches int     `json:"lookahead_batches"`
	TotalSpace      int64    `json:"total_space"`
	Solved          bool     `json:"solved"`
	Solutions       []Solution `json:"solutions"`
	CreatedAt       time.Time `json:"created_at"`
}

// Solution is one recovered plaintext/hash pairing.
type Solution struct {
	Combination string `json:"combination"`
	HashHex     string `json:"hash_hex"`
	Index       int64  `json:"index"`
}

// Chunk is one contiguous index range within a HashBatch version.
type Chunk struct {
	ChunkID        string      `json:"chunk_id"`
	StartIndex     int64       `json:"start_index"`
	EndIndex       int64       `json:"end_index"`
	AssignedWorker string      `json:"assigned_worker"`
	Status         ChunkStatus `json:"status"`
	Progress       float64     `json:"progress"`
}

// HashBatch is one versioned generation of chunk assignments for a job.
type HashBatch struct {
	JobID   string           `json:"job_id"`
	Version int64            `json:"version"`
	Chunks  map[string]Chunk `json:"chunks"`
}

// Event is a cluster event published for external observers (dashboards).
type Event struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	NodeID    string            `json:"node_id,omitempty"`
	ServiceID string            `json:"service_id,omitempty"`
	JobID     string            `json:"job_id,omitempty"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
}
