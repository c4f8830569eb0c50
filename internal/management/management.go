// Package management provides a lightweight HTTP API for runtime inspection
// and configuration of the running service.
//
// Endpoints:
//
//	GET  /status           - service health, oracle backend, keyword count
//	GET  /metrics          - counters and latency snapshot
//	GET  /keywords         - current clinical keyword whitelist
//	POST /keywords/add     - whitelist a keyword {"keyword":"fever"}
//	POST /keywords/remove  - drop a keyword {"keyword":"fever"}
package management

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"clinical-deid/internal/config"
	"clinical-deid/internal/deid"
	"clinical-deid/internal/logger"
	"clinical-deid/internal/metrics"
)

// Backend is the view of the processing pipeline the status page reports.
type Backend interface {
	OracleName() string
	Ping(ctx context.Context) error
	Strategy() deid.Strategy
	Patterns() int
}

// Server is the management API server.
type Server struct {
	cfg       *config.Config
	startTime time.Time
	keywords  *KeywordRegistry
	backend   Backend          // nil = not reported
	token     string           // bearer token for auth; empty = no auth
	metrics   *metrics.Metrics // nil = no metrics
	log       *logger.Logger
}

// New creates a management server.
func New(cfg *config.Config, registry *KeywordRegistry, backend Backend, m *metrics.Metrics, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		cfg:       cfg,
		startTime: time.Now(),
		keywords:  registry,
		backend:   backend,
		token:     cfg.ManagementToken,
		metrics:   m,
		log:       log,
	}
	if s.token != "" {
		log.Info("auth", "bearer token authentication enabled")
	}
	return s
}

// Handler returns the HTTP handler for the management API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/keywords", s.handleListKeywords)
	mux.HandleFunc("/keywords/add", s.handleAddKeyword)
	mux.HandleFunc("/keywords/remove", s.handleRemoveKeyword)
	return s.authMiddleware(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			s.log.Warnf("auth", "unauthorized access attempt from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type oracleStatus struct {
		Name    string `json:"name"`
		Healthy bool   `json:"healthy"`
		Error   string `json:"error,omitempty"`
	}
	type response struct {
		Status   string        `json:"status"`
		Uptime   string        `json:"uptime"`
		APIPort  int           `json:"apiPort"`
		Oracle   *oracleStatus `json:"oracle,omitempty"`
		Strategy string        `json:"strategy,omitempty"`
		Patterns int           `json:"patterns,omitempty"`
		Keywords int           `json:"keywords"`
	}

	resp := response{
		Status:   "running",
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		APIPort:  s.cfg.Port,
		Keywords: len(s.keywords.All()),
	}
	if s.backend != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		st := &oracleStatus{Name: s.backend.OracleName(), Healthy: true}
		if err := s.backend.Ping(ctx); err != nil {
			st.Healthy = false
			st.Error = err.Error()
			resp.Status = "degraded"
		}
		resp.Oracle = st
		resp.Strategy = s.backend.Strategy().String()
		resp.Patterns = s.backend.Patterns()
	}

	writeJSON(w, s.log, http.StatusOK, resp)
}

func (s *Server) handleListKeywords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.log, http.StatusOK, map[string][]string{"keywords": s.keywords.All()})
}

// decodeKeyword reads and validates a {"keyword":"..."} body. It writes
// the error response itself and returns "" on failure.
func (s *Server) decodeKeyword(w http.ResponseWriter, r *http.Request) string {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return ""
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1024)
	var req struct {
		Keyword string `json:"keyword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Keyword) == "" {
		http.Error(w, "invalid request: need {\"keyword\":\"...\"}", http.StatusBadRequest)
		return ""
	}
	k := normalizeKeyword(req.Keyword)
	if !validKeyword(k) {
		http.Error(w, "invalid keyword", http.StatusBadRequest)
		return ""
	}
	return k
}

func (s *Server) handleAddKeyword(w http.ResponseWriter, r *http.Request) {
	k := s.decodeKeyword(w, r)
	if k == "" {
		return
	}
	if s.keywords.Add(k) {
		s.log.Infof("keywords_add", "added clinical keyword %q", k)
	}
	writeJSON(w, s.log, http.StatusOK, map[string]string{"added": k})
}

func (s *Server) handleRemoveKeyword(w http.ResponseWriter, r *http.Request) {
	k := s.decodeKeyword(w, r)
	if k == "" {
		return
	}
	if !s.keywords.Remove(k) {
		http.Error(w, "keyword not found", http.StatusNotFound)
		return
	}
	s.log.Infof("keywords_remove", "removed clinical keyword %q", k)
	writeJSON(w, s.log, http.StatusOK, map[string]string{"removed": k})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.log, http.StatusOK, s.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, log *logger.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("write_json", "encode error: %v", err)
	}
}

// ListenAndServe starts the management HTTP server on loopback and shuts
// it down when ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.ManagementPort)
	s.log.Infof("listen", "listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck // best-effort on exit
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
