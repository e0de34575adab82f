package security

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clustercore/clustercore/pkg/storage"
)

// parseClaimsForTest decodes a token's claims without touching its
// signature or revocation state, for asserting on the JTI a Revoke/
// RevokeToken call used internally.
func parseClaimsForTest(token string) (claims, error) {
	var c claims
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return c, assert.AnError
	}
	body, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return c, err
	}
	err = json.Unmarshal(body, &c)
	return c, err
}

func newTestIssuer(t *testing.T) (*TokenIssuer, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewTokenIssuer("test-secret", store), store
}

func TestIssueAndVerifyRoundTrips(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	token, err := issuer.Issue("node-1", time.Hour, true)
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "node-1", claims.Subject)
	assert.True(t, claims.Internal)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	token, err := issuer.Issue("node-1", time.Hour, false)
	require.NoError(t, err)

	tampered := token[:len(token)-1] + "0"
	_, err = issuer.Verify(tampered)
	assert.ErrorContains(t, err, "signature")
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	token, err := issuer.Issue("node-1", -time.Second, false)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorContains(t, err, "expired")
}

func TestRevokeBlocksFurtherVerification(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	token, err := issuer.Issue("node-1", time.Hour, true)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	require.NoError(t, err)

	require.NoError(t, issuer.Revoke(token))

	_, err = issuer.Verify(token)
	assert.ErrorContains(t, err, "revoked")
}

func TestPruneRevocationsDropsOnlyExpiredEntries(t *testing.T) {
	issuer, store := newTestIssuer(t)

	live, err := issuer.Issue("node-1", time.Hour, false)
	require.NoError(t, err)
	stale, err := issuer.Issue("node-2", time.Hour, false)
	require.NoError(t, err)

	require.NoError(t, issuer.Revoke(live))
	require.NoError(t, issuer.Revoke(stale))

	// Backdate the second entry's expiry directly in the store, simulating
	// a revocation whose token has since expired on its own.
	staleClaims, err := parseClaimsForTest(stale)
	require.NoError(t, err)
	require.NoError(t, store.RevokeToken(staleClaims.JTI, time.Now().Add(-time.Minute).Unix()))

	require.NoError(t, issuer.PruneRevocations())

	liveClaims, err := parseClaimsForTest(live)
	require.NoError(t, err)
	revoked, err := store.IsRevoked(liveClaims.JTI)
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = store.IsRevoked(staleClaims.JTI)
	require.NoError(t, err)
	assert.False(t, revoked)
}
