package hashjob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clustercore/clustercore/pkg/types"
)

func TestRenderCombinationBruteMode(t *testing.T) {
	w := NewWorker(testGossip(t, "worker-a", types.RoleWorker), nil, "worker-a")
	job := &types.HashJob{Mode: types.HashModeBrute, Charset: "abc", Length: 3}
	assert.Equal(t, "aaa", w.renderCombination(job, 0))
}

func TestRenderCombinationDictionaryMode(t *testing.T) {
	w := NewWorker(testGossip(t, "worker-a", types.RoleWorker), nil, "worker-a")
	job := &types.HashJob{Mode: types.HashModeDictionary, Wordlist: []string{"cat", "dog"}, Mutations: []string{"none", "upper"}}
	assert.Equal(t, "DOG", w.renderCombination(job, 3))
}

func TestComputeChunkFindsBruteForceTarget(t *testing.T) {
	target := sha256.Sum256([]byte("bac"))
	job := &types.HashJob{
		Mode: types.HashModeBrute, Charset: "abc", Length: 3, HashAlgo: "sha256",
		TargetHashes: []string{hex.EncodeToString(target[:])},
	}
	w := NewWorker(testGossip(t, "worker-a", types.RoleWorker), nil, "worker-a")
	chunk := types.Chunk{ChunkID: "c1", StartIndex: 0, EndIndex: 27}

	solutions, err := w.computeChunk(context.Background(), job, chunk, func(float64) {})
	require.NoError(t, err)
	require.Len(t, solutions, 1)
	assert.Equal(t, "bac", solutions[0].Combination)
	assert.Equal(t, int64(11), solutions[0].Index)
}

func TestComputeChunkNoMatchReturnsEmpty(t *testing.T) {
	job := &types.HashJob{
		Mode: types.HashModeBrute, Charset: "ab", Length: 2, HashAlgo: "sha256",
		TargetHashes: []string{"0000000000000000000000000000000000000000000000000000000000000000"},
	}
	w := NewWorker(testGossip(t, "worker-a", types.RoleWorker), nil, "worker-a")
	chunk := types.Chunk{ChunkID: "c1", StartIndex: 0, EndIndex: 4}

	solutions, err := w.computeChunk(context.Background(), job, chunk, func(float64) {})
	require.NoError(t, err)
	assert.Empty(t, solutions)
}
