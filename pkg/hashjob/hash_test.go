package hashjob

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHashSHA256MatchesStdlib(t *testing.T) {
	sum := sha256.Sum256([]byte("bac"))
	want := hex.EncodeToString(sum[:])

	got, err := computeHash("sha256", "bac", "")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestComputeHashWPA2RequiresSSID(t *testing.T) {
	_, err := computeHash("wpa2", "password123", "")
	assert.Error(t, err)
}

func TestComputeHashWPA2IsDeterministic(t *testing.T) {
	a, err := computeHash("wpa2", "password123", "myssid")
	require.NoError(t, err)
	b, err := computeHash("wpa2", "password123", "myssid")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64) // 32-byte key, hex-encoded
}

func TestComputeHashNTLMIsDeterministic(t *testing.T) {
	a, err := computeHash("ntlm", "Password1", "")
	require.NoError(t, err)
	b, err := computeHash("ntlm", "Password1", "")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32) // 16-byte MD4 digest, hex-encoded
}

func TestComputeHashRejectsUnknownAlgorithm(t *testing.T) {
	_, err := computeHash("not-a-real-algo", "x", "")
	assert.Error(t, err)
}
