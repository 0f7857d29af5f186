// Package api provides the read-mostly admin HTTP surface for flowbot.
//
// It exposes endpoints for inspecting orders, conversations, milestones, and
// notifications, plus a single mutation: advancing an order's status. The
// conversational flow itself is never driven through this API.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/surtifrio/flowbot/internal/store"
)

// Constants for server configuration
const (
	// DefaultAddr is the default listen address for the admin API.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultReadHeaderTimeout guards against slow-header clients.
	DefaultReadHeaderTimeout = 5 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server is the admin API server.
type Server struct {
	store    store.Store
	addr     string
	httpSrv  *http.Server
	webhooks map[string]http.HandlerFunc
}

// NewServer creates an admin API server backed by the given store.
func NewServer(st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	slog.Debug("API NewServer options set", "addr", cfg.Addr)
	return &Server{
		store:    st,
		addr:     cfg.Addr,
		webhooks: make(map[string]http.HandlerFunc),
	}
}

// RegisterWebhook mounts an extra handler (e.g. the Twilio inbound webhook)
// on the server's mux. Must be called before Start.
func (s *Server) RegisterWebhook(pattern string, handler http.HandlerFunc) {
	s.webhooks[pattern] = handler
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /orders", s.listOrdersHandler)
	mux.HandleFunc("GET /orders/{id}", s.getOrderHandler)
	mux.HandleFunc("POST /orders/{id}/status", s.updateOrderStatusHandler)
	mux.HandleFunc("GET /conversations", s.getConversationHandler)
	mux.HandleFunc("GET /milestones", s.getMilestonesHandler)
	mux.HandleFunc("GET /notifications", s.listNotificationsHandler)
	mux.HandleFunc("POST /notifications/{id}/read", s.markNotificationReadHandler)
	for pattern, handler := range s.webhooks {
		mux.HandleFunc(pattern, handler)
	}
	return mux
}

// Start runs the HTTP server until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Admin API listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("admin API server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin API shutdown failed: %w", err)
		}
		slog.Info("Admin API stopped")
		return nil
	}
}
