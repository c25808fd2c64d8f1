package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/modalhub/modalhub/internal/metrics"
	"github.com/modalhub/modalhub/internal/session"
)

// Callback processes one POST body. It receives the decoded JSON object and
// the request path, and returns the value to send back. A string result is
// wrapped as {"response": ...}; any other value is marshalled as-is.
type Callback func(body map[string]any, path string) (any, error)

// Server is the HTTP collaborator running next to the hub: a POST-JSON
// callback endpoint plus the built-in health, metrics, and session routes.
type Server struct {
	host     string
	port     int
	sessions *session.Store
	m        *metrics.Metrics

	running atomic.Bool
	httpSrv *http.Server
	ln      net.Listener

	cbMu sync.RWMutex
	cb   Callback
}

// NewServer creates a collaborator listening on host:port. sessions and m
// may be nil; their routes then return empty data.
func NewServer(host string, port int, sessions *session.Store, m *metrics.Metrics) *Server {
	return &Server{host: host, port: port, sessions: sessions, m: m}
}

// RegisterCallback sets the handler for POST requests.
func (s *Server) RegisterCallback(cb Callback) {
	s.cbMu.Lock()
	s.cb = cb
	s.cbMu.Unlock()
	slog.Info("httpapi: request callback registered")
}

// Start binds the listen address and serves on a background goroutine.
// Bind failures are returned to the caller.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		return fmt.Errorf("httpapi: listen %s:%d: %w", s.host, s.port, err)
	}
	s.ln = ln
	s.running.Store(true)
	s.httpSrv = &http.Server{Handler: s}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("httpapi: server stopped", "err", err)
		}
	}()

	slog.Info("httpapi: listening", "addr", ln.Addr().String())
	return nil
}

// Stop closes the listener. Idempotent.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
	}
	slog.Info("httpapi: stopped")
}

// Addr returns the bound listen address. Only valid after Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/healthz":
		s.healthz(w, r)
		return
	case "/metrics":
		s.metrics(w, r)
		return
	case "/api/v1/sessions":
		s.listSessions(w, r)
		return
	}

	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, fmt.Sprintf("%s method not allowed", r.Method))
		return
	}
	s.handleCallback(w, r)
}

// handleCallback decodes the POST body and hands it to the registered
// callback.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	s.cbMu.RLock()
	cb := s.cb
	s.cbMu.RUnlock()
	if cb == nil {
		jsonErr(w, http.StatusInternalServerError, "no callback handler registered")
		return
	}

	result, err := cb(body, r.URL.Path)
	if err != nil {
		slog.Error("httpapi: callback failed", "path", r.URL.Path, "err", err)
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if str, ok := result.(string); ok {
		jsonResp(w, http.StatusOK, map[string]string{"response": str})
		return
	}
	jsonResp(w, http.StatusOK, result)
}

// healthz returns 200 OK for load-balancer health checks.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// metrics renders the counter registry in Prometheus text format.
func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	if s.m == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := s.m.WriteTo(w); err != nil {
		slog.Error("httpapi: metrics encode failed", "err", err)
	}
}

// listSessions returns GET /api/v1/sessions — all visible sessions, active
// first, newest connection first within each group.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sessions := []session.Session{}
	if s.sessions != nil {
		sessions = s.sessions.List()
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].Active() != sessions[j].Active() {
			return sessions[i].Active()
		}
		return sessions[i].ConnectedAt.After(sessions[j].ConnectedAt)
	})
	jsonResp(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("httpapi: encode response failed", "err", err)
	}
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, map[string]string{"error": msg})
}
