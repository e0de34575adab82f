package security

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freePort asks the OS for an unused TCP port by opening and immediately
// releasing a listener on it, so the challenge server below binds to a
// port nothing else on the test machine is using.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRequestLeafHandshakeRoundTrips(t *testing.T) {
	ca := newTestCA(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/internal/cert/issue", func(w http.ResponseWriter, r *http.Request) {
		resp, err := HandleIssueRequest(r.Context(), ca, r.RemoteAddr, r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(resp)
	})
	coordinator := httptest.NewServer(mux)
	defer coordinator.Close()

	challengePort := freePort(t)
	stateDir := t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := RequestLeaf(ctx, coordinator.URL, "worker-1", "127.0.0.1", challengePort,
		[]string{"127.0.0.1"}, []string{"worker-1"}, stateDir)
	require.NoError(t, err)

	assert.True(t, BundleExists(stateDir))
	leaf, caCert, err := LoadLeafBundle(stateDir)
	require.NoError(t, err)
	assert.Equal(t, ca.Fingerprint(), fingerprintOf(caCert))
	require.NoError(t, ca.VerifyPeerCert(leaf.Leaf))
}

func TestHandleIssueRequestRejectsUnreachableChallenge(t *testing.T) {
	ca := newTestCA(t)

	body := `{"node_id":"worker-1","challenge":"deadbeef","challenge_port":1,"ips":["127.0.0.1"],"dnsnames":["worker-1"]}`
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := HandleIssueRequest(ctx, ca, "127.0.0.1:54321", strings.NewReader(body))
	assert.Error(t, err)
}
