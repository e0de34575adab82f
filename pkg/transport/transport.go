// Package transport implements clustercore's Transport component: a
// pooled HTTPS client and server used by every other layer (gossip,
// rpc, orchestrator, update) to move bytes between nodes. It never
// understands the shape of what it carries — callers hand it a path
// and a body and get bytes back.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/clustercore/clustercore/pkg/clustererr"
)

// Config controls pooling and timeout behavior. Fields mirror
// pkg/config.Config's transport knobs so callers can pass that
// straight through.
type Config struct {
	MaxConnections  int
	MaxKeepalive    int
	KeepaliveExpiry time.Duration
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	TotalTimeout    time.Duration

	// TLSConfig is built by pkg/security from the node's leaf cert and
	// the cluster CA pool. Nil means plain HTTP, used only for the
	// bootstrap challenge listener in pkg/security.
	TLSConfig *tls.Config
}

// Transport is a pooled HTTPS client keyed by scheme://host:port, the
// same per-peer pooling idiom as the teacher's mTLS gRPC dialer, but
// generalized to plain net/http since clustercore's wire protocol is
// JSON-over-HTTPS rather than gRPC.
type Transport struct {
	mu      sync.RWMutex
	clients map[string]*http.Client
	cfg     Config
}

// New constructs a Transport. cfg.TLSConfig may be nil for plain HTTP.
func New(cfg Config) *Transport {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 32
	}
	if cfg.MaxKeepalive <= 0 {
		cfg.MaxKeepalive = 8
	}
	if cfg.KeepaliveExpiry <= 0 {
		cfg.KeepaliveExpiry = 90 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = 30 * time.Second
	}
	return &Transport{
		clients: make(map[string]*http.Client),
		cfg:     cfg,
	}
}

func (t *Transport) clientFor(origin string) *http.Client {
	t.mu.RLock()
	c, ok := t.clients[origin]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.clients[origin]; ok {
		return c
	}

	dialer := &net.Dialer{Timeout: t.cfg.ConnectTimeout}
	c = &http.Client{
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSClientConfig:     t.cfg.TLSConfig,
			MaxConnsPerHost:     t.cfg.MaxConnections,
			MaxIdleConnsPerHost: t.cfg.MaxKeepalive,
			IdleConnTimeout:     t.cfg.KeepaliveExpiry,
			ResponseHeaderTimeout: t.cfg.ReadTimeout,
		},
		Timeout: t.cfg.TotalTimeout,
	}
	t.clients[origin] = c
	return c
}

// Request issues a POST to peerURL+path carrying body, returning the
// response bytes. Every failure — dial, TLS handshake, timeout,
// non-2xx status — is folded into a single clustererr TransportError
// so callers up the stack don't need to distinguish net/http's error
// taxonomy from HTTP status codes.
func (t *Transport) Request(ctx context.Context, peerURL, path string, body []byte, headers map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.TotalTimeout)
	defer cancel()

	url := peerURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, clustererr.Transport("build-request", peerURL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := t.clientFor(peerURL)
	resp, err := client.Do(req)
	if err != nil {
		return nil, clustererr.Transport("do-request", peerURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, clustererr.Transport("read-response", peerURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, clustererr.Transport("request", peerURL,
			fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}

	return respBody, nil
}

// NewServerTLSConfig builds the server-side tls.Config clustercore's
// RPC listener uses: the node's own leaf certificate, and client certs
// requested-but-not-required since bearer tokens authenticate requests
// that arrive without one (spec.md §4.1) — the same
// tls.RequestClientCert idiom the teacher's API server used for its
// RequestCertificate RPC.
func NewServerTLSConfig(cert tls.Certificate, caPool *x509.CertPool) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    caPool,
		ClientAuth:   tls.RequestClientCert,
		MinVersion:   tls.VersionTLS13,
	}
}

// NewClientTLSConfig builds the client-side tls.Config used when
// dialing peers: the node's leaf cert for mTLS, and the cluster CA
// pool for verifying the peer's leaf cert.
func NewClientTLSConfig(cert tls.Certificate, caPool *x509.CertPool) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		MinVersion:   tls.VersionTLS13,
	}
}
