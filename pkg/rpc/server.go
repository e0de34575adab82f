package rpc

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/clustercore/clustercore/pkg/clustererr"
	"github.com/clustercore/clustercore/pkg/gossip"
	"github.com/clustercore/clustercore/pkg/log"
	"github.com/clustercore/clustercore/pkg/security"
)

// Request is the body of POST /rpc.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     string          `json:"id,omitempty"`
}

// Response is always returned with HTTP 200 per spec.md §7 — transport
// failures get a non-2xx status, but a successfully-delivered RPC that
// failed application-side is still a 200 with Error populated, so
// callers always get to parse one JSON shape.
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	ID     string          `json:"id,omitempty"`
}

// Server is the HTTPS listener mounting /rpc plus the internal gossip
// join/exchange routes, grounded on the teacher's health.go mux-per-
// concern layout.
type Server struct {
	registry *Registry
	gossip   *gossip.Protocol
	issuer   *security.TokenIssuer
	mux      *http.ServeMux
}

// NewServer wires a Server's routes. issuer may be nil only for a
// plain-HTTP challenge listener that never reaches this constructor.
func NewServer(registry *Registry, g *gossip.Protocol, issuer *security.TokenIssuer) *Server {
	s := &Server{registry: registry, gossip: g, issuer: issuer, mux: http.NewServeMux()}

	s.mux.HandleFunc("/rpc", s.handleRPC)
	s.mux.HandleFunc("/internal/gossip/join", s.handleGossipJoin)
	s.mux.HandleFunc("/internal/gossip/exchange", s.handleGossipExchange)
	s.mux.HandleFunc("/health", s.handleHealth)

	return s
}

// Handler returns the mux for embedding under an *http.Server with the
// TLS config pkg/transport builds.
func (s *Server) Handler() http.Handler { return s.mux }

// MountCertIssue adds the coordinator-only /internal/cert/issue route,
// handled by handler. Worker nodes never call this — their Server is
// built without it.
func (s *Server) MountCertIssue(handler http.HandlerFunc) {
	s.mux.HandleFunc("/internal/cert/issue", handler)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: "read body: " + err.Error()})
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusOK, Response{Error: "malformed request: " + err.Error()})
		return
	}

	m, ok := s.registry.lookup(req.Method)
	if !ok {
		writeJSON(w, http.StatusOK, Response{Error: "unknown method: " + req.Method, ID: req.ID})
		return
	}

	if !m.entry.Public {
		if err := s.authorize(r); err != nil {
			writeJSON(w, http.StatusOK, Response{Error: err.Error(), ID: req.ID})
			return
		}
	}

	result, err := m.handler(r.Context(), req.Params)
	if err != nil {
		writeJSON(w, http.StatusOK, Response{Error: err.Error(), ID: req.ID})
		return
	}

	resultRaw, err := json.Marshal(result)
	if err != nil {
		writeJSON(w, http.StatusOK, Response{Error: "marshal result: " + err.Error(), ID: req.ID})
		return
	}

	writeJSON(w, http.StatusOK, Response{Result: resultRaw, ID: req.ID})
}

func (s *Server) authorize(r *http.Request) error {
	if s.issuer == nil {
		return nil
	}
	tok := r.Header.Get("Authorization")
	if tok == "" {
		return clustererr.Auth("authorize", "missing bearer token")
	}
	if _, err := s.issuer.Verify(tok); err != nil {
		return clustererr.Auth("authorize", err.Error())
	}
	return nil
}

func (s *Server) handleGossipJoin(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := s.gossip.HandleJoinJSON(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(resp)
}

func (s *Server) handleGossipExchange(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := s.gossip.HandleExchangeJSON(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now(),
		"node_id":   s.gossip.Self().NodeID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithComponent("rpc").Error().Err(err).Msg("failed to encode response")
	}
}

