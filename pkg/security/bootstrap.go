package security

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/clustercore/clustercore/pkg/log"
)

// ChallengeServer is the temporary, unauthenticated HTTP (not HTTPS)
// listener a joining worker stands up so the coordinator can prove the
// worker controls its declared address, per spec.md §4.3 worker
// bootstrap step (a)-(d).
type ChallengeServer struct {
	mu        sync.Mutex
	challenge string
	srv       *http.Server
}

// NewChallengeServer generates a random challenge and readies the HTTP
// handler that will echo it back at /cert/challenge/{c}.
func NewChallengeServer() (*ChallengeServer, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate challenge: %w", err)
	}
	return &ChallengeServer{challenge: hex.EncodeToString(buf)}, nil
}

// Challenge returns the random token the coordinator must echo back.
func (c *ChallengeServer) Challenge() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.challenge
}

// Start brings up the plain-HTTP challenge listener on addr.
func (c *ChallengeServer) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/cert/challenge/", func(w http.ResponseWriter, r *http.Request) {
		requested := r.URL.Path[len("/cert/challenge/"):]
		c.mu.Lock()
		expected := c.challenge
		c.mu.Unlock()
		if requested != expected {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"challenge": requested})
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen for challenge server: %w", err)
	}

	c.srv = &http.Server{Handler: mux}
	go func() {
		if err := c.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.WithComponent("bootstrap").Error().Err(err).Msg("challenge server exited")
		}
	}()
	return nil
}

// Stop tears the temporary listener down once certs are issued.
func (c *ChallengeServer) Stop(ctx context.Context) error {
	if c.srv == nil {
		return nil
	}
	return c.srv.Shutdown(ctx)
}

// IssueRequest is what a worker sends the coordinator's /internal/cert/issue.
type IssueRequest struct {
	NodeID         string   `json:"node_id"`
	Challenge      string   `json:"challenge"`
	ChallengePort  int      `json:"challenge_port"`
	IPs            []string `json:"ips"`
	DNSNames       []string `json:"dnsnames"`
	OldFingerprint string   `json:"old_fingerprint,omitempty"`
}

// IssueResponse carries the newly-minted leaf bundle back to the worker.
type IssueResponse struct {
	CertPEM []byte `json:"cert_pem"`
	KeyPEM  []byte `json:"key_pem"`
	CAPEM   []byte `json:"ca_pem"`
}

// VerifyChallenge performs the coordinator-side reverse GET described in
// spec.md §4.3 step (d): it dials the requesting worker's challenge port
// and requires the worker to echo the challenge back, proving the
// declared address is reachable and under the requester's control. TLS
// verification is intentionally off here — this is the one documented
// "verify off" path (spec.md §4.1), since the worker has no certificate
// yet and the exchange is over plain HTTP by construction.
func VerifyChallenge(ctx context.Context, workerAddr string, challengePort int, challenge string) error {
	url := fmt.Sprintf("http://%s:%d/cert/challenge/%s", workerAddr, challengePort, challenge)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build challenge request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reach worker challenge port: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("worker did not echo challenge (status %d)", resp.StatusCode)
	}

	var body struct {
		Challenge string `json:"challenge"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode challenge response: %w", err)
	}
	if body.Challenge != challenge {
		return fmt.Errorf("challenge mismatch")
	}
	return nil
}

// HandleIssueRequest is the coordinator-side /internal/cert/issue body:
// it reverse-verifies the requester's challenge server, then issues a
// fresh leaf certificate signed by ca. requestHost is the TCP address
// the HTTP request arrived from, used only to reach the requester's
// challenge port — it is never trusted on its own, the echoed challenge
// is what proves control of the address.
func HandleIssueRequest(ctx context.Context, ca *CertAuthority, requestHost string, body io.Reader) ([]byte, error) {
	var req IssueRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode issue request: %w", err)
	}

	host := requestHost
	if idx := strings.LastIndex(requestHost, ":"); idx != -1 {
		host = requestHost[:idx]
	}
	if err := VerifyChallenge(ctx, host, req.ChallengePort, req.Challenge); err != nil {
		return nil, fmt.Errorf("verify worker challenge: %w", err)
	}

	ips := make([]net.IP, 0, len(req.IPs))
	for _, s := range req.IPs {
		if ip := net.ParseIP(s); ip != nil {
			ips = append(ips, ip)
		}
	}

	cert, err := ca.IssueLeaf(req.NodeID, req.DNSNames, ips)
	if err != nil {
		return nil, fmt.Errorf("issue leaf: %w", err)
	}

	key, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("issued leaf key is not RSA")
	}

	resp := IssueResponse{
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}),
		CAPEM:   pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ca.RootCertDER()}),
	}
	return json.Marshal(resp)
}

// RequestLeaf drives the worker side of the bootstrap handshake: stand
// up the challenge listener, POST an issue request to the coordinator,
// and persist the returned bundle to stateDir. The coordinator reaches
// back to the host the issue request came from, on challengePort, to
// verify the challenge before issuing; challengeAddr is not sent.
func RequestLeaf(ctx context.Context, coordinatorURL, nodeID, challengeAddr string, challengePort int, ips []string, dnsNames []string, stateDir string) error {
	challenge, err := NewChallengeServer()
	if err != nil {
		return err
	}
	if err := challenge.Start(fmt.Sprintf(":%d", challengePort)); err != nil {
		return err
	}
	defer challenge.Stop(ctx) //nolint:errcheck

	reqBody, err := json.Marshal(IssueRequest{
		NodeID:        nodeID,
		Challenge:     challenge.Challenge(),
		ChallengePort: challengePort,
		IPs:           ips,
		DNSNames:      dnsNames,
	})
	if err != nil {
		return fmt.Errorf("marshal issue request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, coordinatorURL+"/internal/cert/issue", strings.NewReader(string(reqBody)))
	if err != nil {
		return fmt.Errorf("build issue request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request leaf from coordinator: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("coordinator refused issue request (status %d)", httpResp.StatusCode)
	}

	var resp IssueResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return fmt.Errorf("decode issue response: %w", err)
	}

	cert, err := tls.X509KeyPair(resp.CertPEM, resp.KeyPEM)
	if err != nil {
		return fmt.Errorf("parse issued leaf: %w", err)
	}
	caBlock, _ := pem.Decode(resp.CAPEM)
	if caBlock == nil {
		return fmt.Errorf("decode CA cert PEM")
	}

	return SaveLeafBundle(stateDir, &cert, caBlock.Bytes)
}
