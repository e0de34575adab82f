package hashjob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clustercore/clustercore/pkg/gossip"
	"github.com/clustercore/clustercore/pkg/transport"
	"github.com/clustercore/clustercore/pkg/types"
)

func testGossip(t *testing.T, id string, role types.NodeRole) *gossip.Protocol {
	t.Helper()
	return gossip.New(gossip.Config{NodeID: id, Role: role}, transport.New(transport.Config{}))
}

func TestCreateJobComputesBruteTotalSpace(t *testing.T) {
	c := NewCoordinator(testGossip(t, "coord", types.RoleCoordinator))

	job, err := c.CreateJob(CreateJobParams{
		Mode:          types.HashModeBrute,
		Charset:       "abc",
		Length:        3,
		HashAlgo:      "sha256",
		TargetHashes:  []string{"deadbeef"},
		BaseChunkSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(27), job.TotalSpace) // 3^3
	assert.NotEmpty(t, job.JobID)
}

func TestCreateJobComputesDictionaryTotalSpace(t *testing.T) {
	c := NewCoordinator(testGossip(t, "coord", types.RoleCoordinator))

	job, err := c.CreateJob(CreateJobParams{
		Mode:          types.HashModeDictionary,
		Wordlist:      []string{"a", "b", "c"},
		Mutations:     []string{"none", "upper"},
		HashAlgo:      "sha256",
		TargetHashes:  []string{"deadbeef"},
		BaseChunkSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), job.TotalSpace) // 3 words * 2 mutations
}

func TestCreateJobSeedsChunksWithNoWorkersUnassigned(t *testing.T) {
	c := NewCoordinator(testGossip(t, "coord", types.RoleCoordinator))

	job, err := c.CreateJob(CreateJobParams{
		Mode:          types.HashModeBrute,
		Charset:       "ab",
		Length:        2,
		HashAlgo:      "sha256",
		TargetHashes:  []string{"x"},
		BaseChunkSize: 1,
	})
	require.NoError(t, err)

	c.mu.Lock()
	batch := c.batches[job.JobID]
	c.mu.Unlock()
	require.NotEmpty(t, batch.Chunks)
	for _, chunk := range batch.Chunks {
		assert.Empty(t, chunk.AssignedWorker)
		assert.Equal(t, types.ChunkAssigned, chunk.Status)
	}
}

func TestReportSolutionDeduplicatesByComboAndHash(t *testing.T) {
	c := NewCoordinator(testGossip(t, "coord", types.RoleCoordinator))
	job, err := c.CreateJob(CreateJobParams{
		Mode: types.HashModeBrute, Charset: "ab", Length: 2, HashAlgo: "sha256",
		TargetHashes: []string{"x"}, BaseChunkSize: 10,
	})
	require.NoError(t, err)

	sol := types.Solution{Combination: "ab", HashHex: "deadbeef", Index: 1}
	require.NoError(t, c.ReportSolution(job.JobID, []types.Solution{sol, sol}))
	require.NoError(t, c.ReportSolution(job.JobID, []types.Solution{sol}))

	got, ok := c.GetJob(job.JobID)
	require.True(t, ok)
	assert.Len(t, got.Solutions, 1)
	assert.True(t, got.Solved)
}

func TestReportSolutionRejectsUnknownJob(t *testing.T) {
	c := NewCoordinator(testGossip(t, "coord", types.RoleCoordinator))
	err := c.ReportSolution("no-such-job", []types.Solution{{Combination: "x"}})
	assert.Error(t, err)
}

func TestApplyProgressUpdatesChunkInPlace(t *testing.T) {
	c := NewCoordinator(testGossip(t, "coord", types.RoleCoordinator))
	job, err := c.CreateJob(CreateJobParams{
		Mode: types.HashModeBrute, Charset: "ab", Length: 2, HashAlgo: "sha256",
		TargetHashes: []string{"x"}, BaseChunkSize: 10,
	})
	require.NoError(t, err)

	c.mu.Lock()
	var chunkID string
	for id := range c.batches[job.JobID].Chunks {
		chunkID = id
		break
	}
	c.mu.Unlock()

	c.ApplyProgress(job.JobID, chunkID, types.ChunkWorking, 0.5)

	c.mu.Lock()
	chunk := c.batches[job.JobID].Chunks[chunkID]
	c.mu.Unlock()
	assert.Equal(t, types.ChunkWorking, chunk.Status)
	assert.Equal(t, 0.5, chunk.Progress)
}
