// Package httpserver exposes the process's HTTP surface: health,
// metrics, the gateway webhook and a read-only admin order dump.
package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"slot-shop/internal/store"
)

// Dependencies wires the server's collaborators. AdminSecret guards the
// order dump; when empty the endpoint is disabled.
type Dependencies struct {
	Logger      *slog.Logger
	Store       store.Store
	Webhook     http.Handler
	AdminSecret string
}

// Server wraps the HTTP listener.
type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	store       store.Store
	adminSecret string
}

// New builds the server with routes mounted.
func New(addr string, deps Dependencies) *Server {
	s := &Server{
		logger:      deps.Logger.With("component", "httpserver"),
		store:       deps.Store,
		adminSecret: deps.AdminSecret,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/webhook/gateway", deps.Webhook)
	mux.HandleFunc("/admin/orders", s.handleOrderDump)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving; it blocks until the listener stops.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("health check failed", "error", err)
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleOrderDump serves the full order history as JSON for operator
// tooling. Read-only; mutations go through the bot conversation. The
// dump carries buyer addresses and proof refs, so it requires the
// shared admin secret.
func (s *Server) handleOrderDump(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.adminSecret == "" {
		http.NotFound(w, r)
		return
	}
	provided := r.Header.Get("X-Admin-Secret")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.adminSecret)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	details, err := s.store.ListOrderHistory(r.Context())
	if err != nil {
		s.logger.Error("order dump failed", "error", err)
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	if details == nil {
		details = []store.OrderDetail{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(details); err != nil {
		s.logger.Error("order dump encode failed", "error", err)
	}
}
