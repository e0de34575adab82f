package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clustercore/clustercore/pkg/clustererr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/ping", r.URL.Path)
		assert.Equal(t, "tok-123", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "ping", string(body))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	tr := New(Config{})
	resp, err := tr.Request(context.Background(), srv.URL, "/internal/ping", []byte("ping"),
		map[string]string{"Authorization": "tok-123"})

	require.NoError(t, err)
	assert.Equal(t, "pong", string(resp))
}

func TestRequestNon2xxWrapsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	tr := New(Config{})
	_, err := tr.Request(context.Background(), srv.URL, "/internal/ping", nil, nil)

	require.Error(t, err)
	assert.True(t, clustererr.HasKind(err, clustererr.KindTransport))
}

func TestRequestUnreachablePeerWrapsTransportError(t *testing.T) {
	tr := New(Config{ConnectTimeout: 50 * time.Millisecond, TotalTimeout: 200 * time.Millisecond})
	_, err := tr.Request(context.Background(), "https://127.0.0.1:1", "/x", nil, nil)

	require.Error(t, err)
	assert.True(t, clustererr.HasKind(err, clustererr.KindTransport))
}

func TestClientForReusesPooledClient(t *testing.T) {
	tr := New(Config{})
	a := tr.clientFor("https://peer-a:8443")
	b := tr.clientFor("https://peer-a:8443")
	c := tr.clientFor("https://peer-b:8443")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestNewAppliesDefaults(t *testing.T) {
	tr := New(Config{})
	assert.Equal(t, 32, tr.cfg.MaxConnections)
	assert.Equal(t, 8, tr.cfg.MaxKeepalive)
	assert.Equal(t, 90*time.Second, tr.cfg.KeepaliveExpiry)
	assert.Equal(t, 30*time.Second, tr.cfg.TotalTimeout)
}
