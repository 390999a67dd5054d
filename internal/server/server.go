// Package server exposes the policy engine over HTTP so gateways in
// other processes can ask for decisions against one central, hot-reloaded
// policy.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/planguard/planguard/internal/alert"
	"github.com/planguard/planguard/internal/audit"
	"github.com/planguard/planguard/internal/model"
	"github.com/planguard/planguard/internal/policy"
)

// Config holds decide server configuration.
type Config struct {
	Addr         string
	PolicyPath   string
	AuditLogPath string
	Alerts       []alert.WebhookConfig
}

// Server serves policy decisions over HTTP.
type Server struct {
	mu         sync.RWMutex
	engine     *policy.Local
	policyHash string
	dispatcher *alert.Dispatcher
	auditLog   *audit.Log
	cfg        Config

	httpServer *http.Server
}

// New creates a server with the policy loaded from cfg.PolicyPath.
func New(cfg Config) (*Server, error) {
	policyCfg, policyHash, err := policy.LoadConfigWithHash(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy config: %w", err)
	}

	var auditLog *audit.Log
	if cfg.AuditLogPath != "" {
		auditLog, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	s := &Server{
		engine:     policy.NewLocal(policyCfg, policyHash),
		policyHash: policyHash,
		dispatcher: alert.NewDispatcher(cfg.Alerts),
		auditLog:   auditLog,
		cfg:        cfg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/decide", s.handleDecide)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the HTTP handler. For testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve starts the HTTP server on the configured address. Blocks until
// stopped.
func (s *Server) Serve() error {
	slog.Info("decide server listening", "addr", s.cfg.Addr, "policy_hash", s.PolicyHash())
	return s.httpServer.ListenAndServe()
}

// ServeOn starts the HTTP server on the given listener. For testing.
func (s *Server) ServeOn(lis net.Listener) error {
	return s.httpServer.Serve(lis)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Close cleans up resources.
func (s *Server) Close() error {
	if s.auditLog != nil {
		return s.auditLog.Close()
	}
	return nil
}

// ReloadPolicy atomically swaps the policy config. Called by the
// hot-reloader on file change.
func (s *Server) ReloadPolicy() error {
	policyCfg, policyHash, err := policy.LoadConfigWithHash(s.cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("failed to reload policy config: %w", err)
	}

	s.mu.Lock()
	s.engine.Reload(policyCfg, policyHash)
	s.policyHash = policyHash
	s.mu.Unlock()

	return nil
}

// PolicyHash returns the hash of the currently loaded policy.
func (s *Server) PolicyHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policyHash
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req model.CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("malformed request: %v", err), http.StatusBadRequest)
		return
	}
	if req.Capability == "" {
		http.Error(w, "missing capability", http.StatusBadRequest)
		return
	}

	decision, err := s.engine.Decide(r.Context(), &req)
	if err != nil {
		http.Error(w, fmt.Sprintf("decide failed: %v", err), http.StatusInternalServerError)
		return
	}

	s.recordDecision(&req, decision)
	if !decision.Allow {
		slog.Info("call denied", "run", req.RunID, "capability", req.Capability, "violations", len(decision.Violations))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(decision)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":      "ok",
		"policy_hash": s.PolicyHash(),
	})
}

func (s *Server) recordDecision(req *model.CallRequest, decision model.Decision) {
	verdict := audit.DecisionAllow
	if !decision.Allow {
		verdict = audit.DecisionDeny
	}
	hash := s.PolicyHash()

	if s.auditLog != nil {
		entry := audit.Entry{
			RunID:      req.RunID,
			Capability: req.Capability,
			Decision:   verdict,
			PolicyHash: hash,
		}
		if !decision.Allow {
			entry.Violations = decision.Violations
		}
		s.auditLog.Record(entry)
	}

	s.mu.RLock()
	d := s.dispatcher
	s.mu.RUnlock()
	if d != nil {
		d.Dispatch(alert.Event{
			RunID:      req.RunID,
			Capability: req.Capability,
			Decision:   verdict,
			Violations: decision.Violations,
			PolicyHash: hash,
		})
	}
}
