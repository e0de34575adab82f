package hashjob

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clustercore/clustercore/pkg/gossip"
	"github.com/clustercore/clustercore/pkg/log"
	"github.com/clustercore/clustercore/pkg/metrics"
	"github.com/clustercore/clustercore/pkg/storage"
	"github.com/clustercore/clustercore/pkg/types"
)

const (
	jobMetadataPrefix    = "hash_job_"
	batchMetadataPrefix  = "hash_batches_"
	workerStatusMetadata = "hash_worker_status"
	jobIndexMetadata     = "hash_job_index"
)

// workerStatus is what a worker publishes under its own
// hash_worker_status gossip key: per-chunk progress this coordinator
// correlates back onto the batch it owns.
type workerStatus struct {
	Chunks map[string]chunkProgress `json:"chunks"`
}

type chunkProgress struct {
	JobID     string           `json:"job_id"`
	Status    types.ChunkStatus `json:"status"`
	Progress  float64          `json:"progress"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Coordinator owns job creation, batch refill, and dead-worker chunk
// recovery. It never computes a chunk itself.
type Coordinator struct {
	g     *gossip.Protocol
	store storage.Store // optional, see SetStore

	mu      sync.Mutex
	jobs    map[string]*types.HashJob
	batches map[string]*types.HashBatch
}

// NewCoordinator builds a Coordinator publishing job/batch state onto g.
func NewCoordinator(g *gossip.Protocol) *Coordinator {
	return &Coordinator{
		g:       g,
		jobs:    make(map[string]*types.HashJob),
		batches: make(map[string]*types.HashBatch),
	}
}

// SetStore wires store as the coordinator's job-definition persistence,
// surviving a restart that would otherwise lose every job gossip alone
// carries. Batches are not persisted: a restarted coordinator reseeds
// chunk assignments fresh against whichever workers are alive once
// LoadPersisted runs, rather than replaying possibly-stale assignments.
func (c *Coordinator) SetStore(store storage.Store) {
	c.store = store
}

// LoadPersisted repopulates this coordinator's job set from store,
// reseeding a fresh batch for every job not yet solved. Call once at
// startup, after SetStore, before accepting create_job calls.
func (c *Coordinator) LoadPersisted() error {
	if c.store == nil {
		return nil
	}
	jobs, err := c.store.ListHashJobs()
	if err != nil {
		return fmt.Errorf("list persisted hash jobs: %w", err)
	}

	workers := c.g.Workers()

	c.mu.Lock()
	for _, job := range jobs {
		c.jobs[job.JobID] = job
		if !job.Solved {
			chunkCount := job.LookaheadBatches * max(len(workers), 1)
			c.batches[job.JobID] = c.seedBatch(job, chunkCount, workers)
		}
	}
	ids := c.jobIDsLocked()
	c.mu.Unlock()

	for _, job := range jobs {
		c.mu.Lock()
		batch := c.batches[job.JobID]
		c.mu.Unlock()
		if err := c.publishOne(job, batch); err != nil {
			return err
		}
	}
	return c.publishIndex(ids)
}

// persist saves job's current definition if a store is wired, logging
// rather than failing the caller on a write error — gossip still
// carries the authoritative live state either way.
func (c *Coordinator) persist(job *types.HashJob) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveHashJob(job); err != nil {
		log.WithComponent("hashjob").Warn().Err(err).Str("job_id", job.JobID).Msg("failed to persist hash job")
	}
}

// CreateJobParams is what create_job accepts.
type CreateJobParams struct {
	Mode             types.HashMode `json:"mode"`
	Charset          string         `json:"charset,omitempty"`
	Length           int            `json:"length,omitempty"`
	Wordlist         []string       `json:"wordlist,omitempty"`
	Mutations        []string       `json:"mutations,omitempty"`
	HashAlgo         string         `json:"hash_algo"`
	TargetHashes     []string       `json:"target_hashes"`
	SSID             string         `json:"ssid,omitempty"`
	BaseChunkSize    int64          `json:"base_chunk_size"`
	LookaheadBatches int            `json:"lookahead_batches"`
}

// CreateJob computes total_space, seeds the first batch round-robin
// across currently alive workers, and publishes job+batch to gossip.
func (c *Coordinator) CreateJob(params CreateJobParams) (*types.HashJob, error) {
	if params.BaseChunkSize <= 0 {
		params.BaseChunkSize = 1_000_000
	}
	if params.LookaheadBatches <= 0 {
		params.LookaheadBatches = 2
	}

	var totalSpace int64
	switch params.Mode {
	case types.HashModeBrute:
		if params.Charset == "" || params.Length <= 0 {
			return nil, fmt.Errorf("brute mode requires charset and length")
		}
		totalSpace = pow(int64(len(params.Charset)), params.Length)
	case types.HashModeDictionary:
		if len(params.Wordlist) == 0 {
			return nil, fmt.Errorf("dictionary mode requires a wordlist")
		}
		m := int64(len(params.Mutations))
		if m == 0 {
			m = 1
		}
		totalSpace = int64(len(params.Wordlist)) * m
	default:
		return nil, fmt.Errorf("unknown hash mode %q", params.Mode)
	}

	job := &types.HashJob{
		JobID:            uuid.NewString(),
		Mode:             params.Mode,
		Charset:          params.Charset,
		Length:           params.Length,
		Wordlist:         params.Wordlist,
		Mutations:        params.Mutations,
		HashAlgo:         params.HashAlgo,
		TargetHashes:     params.TargetHashes,
		SSID:             params.SSID,
		BaseChunkSize:    params.BaseChunkSize,
		LookaheadBatches: params.LookaheadBatches,
		TotalSpace:       totalSpace,
		CreatedAt:        time.Now(),
	}

	workers := c.g.Workers()
	chunkCount := params.LookaheadBatches * max(len(workers), 1)
	batch := c.seedBatch(job, chunkCount, workers)

	c.mu.Lock()
	c.jobs[job.JobID] = job
	c.batches[job.JobID] = batch
	c.mu.Unlock()

	c.persist(job)

	if err := c.publish(job.JobID); err != nil {
		return nil, err
	}

	metrics.HashJobsTotal.WithLabelValues("created").Inc()
	log.WithComponent("hashjob").Info().
		Str("job_id", job.JobID).
		Int64("total_space", totalSpace).
		Int("chunks", len(batch.Chunks)).
		Msg("hash job created")

	return job, nil
}

func (c *Coordinator) seedBatch(job *types.HashJob, chunkCount int, workers []types.NodeInfo) *types.HashBatch {
	batch := &types.HashBatch{JobID: job.JobID, Version: 0, Chunks: make(map[string]types.Chunk)}

	var cursor int64
	for i := 0; i < chunkCount && cursor < job.TotalSpace; i++ {
		end := cursor + job.BaseChunkSize
		if end > job.TotalSpace {
			end = job.TotalSpace
		}

		assigned := ""
		if len(workers) > 0 {
			assigned = workers[i%len(workers)].NodeID
		}

		chunk := types.Chunk{
			ChunkID:        uuid.NewString(),
			StartIndex:     cursor,
			EndIndex:       end,
			AssignedWorker: assigned,
			Status:         types.ChunkAssigned,
		}
		batch.Chunks[chunk.ChunkID] = chunk
		cursor = end
	}

	return batch
}

// GetJob returns a known job by ID.
func (c *Coordinator) GetJob(jobID string) (*types.HashJob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[jobID]
	return job, ok
}

// ListJobs returns every job this coordinator knows about, newest first.
func (c *Coordinator) ListJobs() []types.HashJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.HashJob, 0, len(c.jobs))
	for _, job := range c.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// ReportSolution records solutions for jobID, deduplicated by
// (combination, hash_hex), called by a worker immediately on solving a
// chunk rather than waiting for the next gossip round.
func (c *Coordinator) ReportSolution(jobID string, solutions []types.Solution) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, ok := c.jobs[jobID]
	if !ok {
		return fmt.Errorf("unknown job %q", jobID)
	}

	seen := make(map[string]bool, len(job.Solutions))
	for _, s := range job.Solutions {
		seen[s.Combination+"|"+s.HashHex] = true
	}
	for _, s := range solutions {
		key := s.Combination + "|" + s.HashHex
		if seen[key] {
			continue
		}
		seen[key] = true
		job.Solutions = append(job.Solutions, s)
	}
	if len(solutions) > 0 {
		job.Solved = true
	}

	c.persist(job)

	return nil
}

// ApplyProgress folds one chunk's progress directly into its batch,
// the fast path the HashFanIn gRPC stream uses instead of waiting for
// the next gossip round or Reconcile tick.
func (c *Coordinator) ApplyProgress(jobID, chunkID string, status types.ChunkStatus, progress float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch, ok := c.batches[jobID]
	if !ok {
		return
	}
	chunk, ok := batch.Chunks[chunkID]
	if !ok {
		return
	}
	chunk.Status = status
	chunk.Progress = progress
	batch.Chunks[chunkID] = chunk
}

// Reconcile inspects every worker's published hash_worker_status,
// folds progress/solved state back into each job's batch, re-mints
// unfinished chunks whose assigned worker has died as recovery on a
// survivor, and tops up chunks so every alive worker keeps
// LookaheadBatches worth of unclaimed work. Intended to run on a
// ticker from cmd/clustercore.
func (c *Coordinator) Reconcile(ctx context.Context) {
	alive := make(map[string]bool)
	for _, w := range c.g.Workers() {
		alive[w.NodeID] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for jobID, batch := range c.batches {
		job := c.jobs[jobID]
		changed := false

		for id, chunk := range batch.Chunks {
			if chunk.Status == types.ChunkSolved {
				continue
			}
			if status, ok := c.readWorkerStatus(chunk.AssignedWorker, jobID, id); ok {
				if status.Status != chunk.Status || status.Progress != chunk.Progress {
					chunk.Status = status.Status
					chunk.Progress = status.Progress
					batch.Chunks[id] = chunk
					changed = true
				}
			}

			if chunk.Status != types.ChunkSolved && !alive[chunk.AssignedWorker] {
				chunk.Status = types.ChunkRecovery
				survivors := c.g.Workers()
				if len(survivors) > 0 {
					chunk.AssignedWorker = survivors[pseudoIndex(id, len(survivors))].NodeID
				}
				batch.Chunks[id] = chunk
				changed = true
			}
		}

		c.topUp(job, batch, alive)

		if changed {
			batch.Version++
		}
	}

	if err := c.publishAllLocked(); err != nil {
		log.WithComponent("hashjob").Warn().Err(err).Msg("failed to republish hash job state")
	}
}

func (c *Coordinator) topUp(job *types.HashJob, batch *types.HashBatch, alive map[string]bool) {
	if job == nil || len(alive) == 0 {
		return
	}

	unclaimed := make(map[string]int)
	var highWater int64
	for _, chunk := range batch.Chunks {
		if chunk.EndIndex > highWater {
			highWater = chunk.EndIndex
		}
		if chunk.Status == types.ChunkAssigned {
			unclaimed[chunk.AssignedWorker]++
		}
	}

	workers := c.g.Workers()
	for _, w := range workers {
		for unclaimed[w.NodeID] < job.LookaheadBatches && highWater < job.TotalSpace {
			end := highWater + job.BaseChunkSize
			if end > job.TotalSpace {
				end = job.TotalSpace
			}
			chunk := types.Chunk{
				ChunkID:        uuid.NewString(),
				StartIndex:     highWater,
				EndIndex:       end,
				AssignedWorker: w.NodeID,
				Status:         types.ChunkAssigned,
			}
			batch.Chunks[chunk.ChunkID] = chunk
			unclaimed[w.NodeID]++
			highWater = end
			batch.Version++
		}
	}
}

func (c *Coordinator) readWorkerStatus(workerID, jobID, chunkID string) (chunkProgress, bool) {
	if workerID == "" {
		return chunkProgress{}, false
	}
	v, ok := c.g.Metadata(workerID, workerStatusMetadata)
	if !ok {
		return chunkProgress{}, false
	}
	var status workerStatus
	if err := json.Unmarshal([]byte(v.Value), &status); err != nil {
		return chunkProgress{}, false
	}
	cp, ok := status.Chunks[chunkID]
	if !ok || cp.JobID != jobID {
		return chunkProgress{}, false
	}
	return cp, true
}

func (c *Coordinator) publish(jobID string) error {
	c.mu.Lock()
	job := c.jobs[jobID]
	batch := c.batches[jobID]
	ids := c.jobIDsLocked()
	c.mu.Unlock()
	if err := c.publishOne(job, batch); err != nil {
		return err
	}
	return c.publishIndex(ids)
}

func (c *Coordinator) publishAllLocked() error {
	for id, job := range c.jobs {
		if err := c.publishOne(job, c.batches[id]); err != nil {
			return err
		}
	}
	return c.publishIndex(c.jobIDsLocked())
}

// jobIDsLocked returns every job ID this coordinator knows about; the
// caller must hold c.mu.
func (c *Coordinator) jobIDsLocked() []string {
	ids := make([]string, 0, len(c.jobs))
	for id := range c.jobs {
		ids = append(ids, id)
	}
	return ids
}

// publishIndex carries the coordinator's full job-ID list as its own
// gossip metadata, the entry point a worker reads with PollJobIDs
// before it has any other way to discover what jobs exist.
func (c *Coordinator) publishIndex(ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal job index: %w", err)
	}
	c.g.SetMetadata(jobIndexMetadata, string(data))
	return nil
}

func (c *Coordinator) publishOne(job *types.HashJob, batch *types.HashBatch) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.JobID, err)
	}
	batchData, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch for %s: %w", job.JobID, err)
	}
	c.g.SetMetadata(jobMetadataPrefix+job.JobID, string(jobData))
	c.g.SetMetadata(batchMetadataPrefix+job.JobID, string(batchData))
	return nil
}

func pow(base int64, exp int) int64 {
	result := int64(1)
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// pseudoIndex picks a deterministic slot in [0,n) from a string, used
// to spread recovery re-assignment without adding real randomness.
func pseudoIndex(s string, n int) int {
	if n <= 0 {
		return 0
	}
	var sum int
	for _, r := range s {
		sum += int(r)
	}
	return sum % n
}
