package hashjob

import (
	"context"
	"encoding/json"
	"runtime"
	"sync"
	"time"

	"github.com/clustercore/clustercore/pkg/gossip"
	"github.com/clustercore/clustercore/pkg/hashjob/fanin"
	"github.com/clustercore/clustercore/pkg/log"
	"github.com/clustercore/clustercore/pkg/metrics"
	"github.com/clustercore/clustercore/pkg/rpc"
	"github.com/clustercore/clustercore/pkg/types"
)

const progressInterval = 10 * time.Second

// Worker discovers chunks assigned to this node from the coordinator's
// gossip-carried batch, computes them across a goroutine pool sized
// from runtime.NumCPU(), and reports progress/solutions.
type Worker struct {
	g        *gossip.Protocol
	registry *rpc.Registry
	selfID   string
	fanin    fanin.HashFanInClient // optional low-latency progress path, see SetFanInClient

	mu      sync.Mutex
	status  workerStatus
	working map[string]bool // chunk IDs currently being computed, to avoid re-claiming
}

// NewWorker builds a Worker for selfID, reading job/batch state from g
// and reporting solutions through registry's hash_coordinator proxy.
func NewWorker(g *gossip.Protocol, registry *rpc.Registry, selfID string) *Worker {
	return &Worker{
		g:        g,
		registry: registry,
		selfID:   selfID,
		status:   workerStatus{Chunks: make(map[string]chunkProgress)},
		working:  make(map[string]bool),
	}
}

// SetFanInClient wires client as the worker's progress-streaming path
// to the coordinator, used alongside gossip for lower-latency updates.
// A nil client (the default) leaves progress reporting to gossip only.
func (w *Worker) SetFanInClient(client fanin.HashFanInClient) {
	w.fanin = client
}

// HasFanInClient reports whether a fanin client is already wired, so a
// caller that lazily dials the coordinator's streaming endpoint knows
// not to redial on every tick.
func (w *Worker) HasFanInClient() bool {
	return w.fanin != nil
}

// PollOnce inspects every job the coordinator has published, claims any
// chunk assigned to this worker that is not already being worked, and
// starts computing it in the background. Intended to run on a ticker.
func (w *Worker) PollOnce(ctx context.Context, jobIDs []string) {
	coords := w.g.Coordinators()
	if len(coords) == 0 {
		return
	}
	coordinatorID := coords[0].NodeID

	for _, jobID := range jobIDs {
		job, batch, ok := w.readJobAndBatch(coordinatorID, jobID)
		if !ok {
			continue
		}

		for chunkID, chunk := range batch.Chunks {
			if chunk.AssignedWorker != w.selfID {
				continue
			}
			if chunk.Status != types.ChunkAssigned && chunk.Status != types.ChunkRecovery {
				continue
			}

			w.mu.Lock()
			alreadyWorking := w.working[chunkID]
			if !alreadyWorking {
				w.working[chunkID] = true
			}
			w.mu.Unlock()
			if alreadyWorking {
				continue
			}

			go w.runChunk(ctx, job, chunkID, chunk)
		}
	}
}

// PollJobIDs reads the coordinator's published job-ID index off
// gossip, the list PollOnce should then poll for assigned chunks.
func (w *Worker) PollJobIDs() []string {
	coords := w.g.Coordinators()
	if len(coords) == 0 {
		return nil
	}
	val, ok := w.g.Metadata(coords[0].NodeID, jobIndexMetadata)
	if !ok {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(val.Value), &ids); err != nil {
		return nil
	}
	return ids
}

func (w *Worker) readJobAndBatch(coordinatorID, jobID string) (*types.HashJob, *types.HashBatch, bool) {
	jobVal, ok := w.g.Metadata(coordinatorID, jobMetadataPrefix+jobID)
	if !ok {
		return nil, nil, false
	}
	batchVal, ok := w.g.Metadata(coordinatorID, batchMetadataPrefix+jobID)
	if !ok {
		return nil, nil, false
	}

	var job types.HashJob
	if err := json.Unmarshal([]byte(jobVal.Value), &job); err != nil {
		return nil, nil, false
	}
	var batch types.HashBatch
	if err := json.Unmarshal([]byte(batchVal.Value), &batch); err != nil {
		return nil, nil, false
	}
	return &job, &batch, true
}

func (w *Worker) runChunk(ctx context.Context, job *types.HashJob, chunkID string, chunk types.Chunk) {
	stream := w.openProgressStream(ctx)

	report := func(status types.ChunkStatus, progress float64) {
		w.setChunkStatus(job.JobID, chunkID, status, progress)
		w.streamProgress(stream, job.JobID, chunkID, status, progress)
	}

	report(types.ChunkWorking, 0)

	solutions, err := w.computeChunk(ctx, job, chunk, func(progress float64) {
		report(types.ChunkWorking, progress)
	})
	if err != nil {
		log.WithComponent("hashjob").Error().Err(err).Str("chunk", chunkID).Msg("chunk computation failed")
		w.mu.Lock()
		delete(w.working, chunkID)
		w.mu.Unlock()
		w.closeProgressStream(stream)
		return
	}

	report(types.ChunkSolved, 1.0)
	w.closeProgressStream(stream)
	metrics.HashChunksCompleted.Inc()

	if len(solutions) > 0 {
		if _, err := w.registry.Service("hash_coordinator").Target(rpc.Role(types.RoleCoordinator)).
			Call(ctx, "report_solution", map[string]any{"job_id": job.JobID, "solutions": solutions}); err != nil {
			log.WithComponent("hashjob").Warn().Err(err).Msg("failed to report solution to coordinator")
		}
	}
}

// openProgressStream opens a ReportProgress stream for one chunk's
// lifetime if a fanin client is wired, otherwise returns nil and
// progress reporting falls back to gossip alone.
func (w *Worker) openProgressStream(ctx context.Context) fanin.HashFanIn_ReportProgressClient {
	if w.fanin == nil {
		return nil
	}
	stream, err := w.fanin.ReportProgress(ctx)
	if err != nil {
		log.WithComponent("hashjob").Warn().Err(err).Msg("fanin stream unavailable, falling back to gossip-only progress")
		return nil
	}
	return stream
}

func (w *Worker) streamProgress(stream fanin.HashFanIn_ReportProgressClient, jobID, chunkID string, status types.ChunkStatus, progress float64) {
	if stream == nil {
		return
	}
	msg, err := EncodeProgress(jobID, chunkID, status, progress)
	if err != nil {
		return
	}
	if err := stream.Send(msg); err != nil {
		log.WithComponent("hashjob").Warn().Err(err).Msg("fanin stream send failed")
	}
}

func (w *Worker) closeProgressStream(stream fanin.HashFanIn_ReportProgressClient) {
	if stream == nil {
		return
	}
	if _, err := stream.CloseAndRecv(); err != nil {
		log.WithComponent("hashjob").Warn().Err(err).Msg("fanin stream close failed")
	}
}

// computeChunk splits [chunk.StartIndex, chunk.EndIndex) across
// runtime.NumCPU() sub-chunks, computing each concurrently, reporting
// progress roughly every progressInterval.
func (w *Worker) computeChunk(ctx context.Context, job *types.HashJob, chunk types.Chunk, report func(float64)) ([]types.Solution, error) {
	targets := make(map[string]bool, len(job.TargetHashes))
	for _, h := range job.TargetHashes {
		targets[h] = true
	}

	total := chunk.EndIndex - chunk.StartIndex
	if total <= 0 {
		return nil, nil
	}

	workers := runtime.NumCPU()
	if int64(workers) > total {
		workers = int(total)
	}
	if workers < 1 {
		workers = 1
	}

	span := total / int64(workers)
	if span == 0 {
		span = 1
	}

	var (
		mu        sync.Mutex
		solutions []types.Solution
		wg        sync.WaitGroup
	)

	lastReport := time.Now()
	var reportMu sync.Mutex

	for i := 0; i < workers; i++ {
		start := chunk.StartIndex + int64(i)*span
		end := start + span
		if i == workers-1 {
			end = chunk.EndIndex
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(start, end int64) {
			defer wg.Done()
			count := int64(0)
			for idx := start; idx < end; idx++ {
				select {
				case <-ctx.Done():
					return
				default:
				}

				combo := w.renderCombination(job, idx)
				digest, err := computeHash(job.HashAlgo, combo, job.SSID)
				if err != nil {
					return
				}
				if targets[digest] {
					mu.Lock()
					solutions = append(solutions, types.Solution{Combination: combo, HashHex: digest, Index: idx})
					mu.Unlock()
				}

				count++
				if count%10000 == 0 {
					reportMu.Lock()
					if time.Since(lastReport) > progressInterval {
						lastReport = time.Now()
						report(float64(idx-chunk.StartIndex) / float64(total))
					}
					reportMu.Unlock()
				}
			}
		}(start, end)
	}

	wg.Wait()
	return solutions, nil
}

func (w *Worker) renderCombination(job *types.HashJob, idx int64) string {
	if job.Mode == types.HashModeBrute {
		return indexToCombination(job.Charset, job.Length, idx)
	}
	word, mutation := dictionaryEntry(job.Wordlist, job.Mutations, idx)
	return applyMutation(word, mutation)
}

func (w *Worker) setChunkStatus(jobID, chunkID string, status types.ChunkStatus, progress float64) {
	w.mu.Lock()
	w.status.Chunks[chunkID] = chunkProgress{JobID: jobID, Status: status, Progress: progress, UpdatedAt: time.Now()}
	if status == types.ChunkSolved {
		delete(w.working, chunkID)
	}
	snapshot := w.status
	w.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		log.WithComponent("hashjob").Warn().Err(err).Msg("failed to marshal worker status")
		return
	}
	w.g.SetMetadata(workerStatusMetadata, string(data))
}
