package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/directory"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/dispatch"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/flow"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/genai"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/messaging"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/store"
)

// DefaultAddr is the default API listen address.
const DefaultAddr = ":8000"

// enqueuer is the dispatcher seam the webhook handler needs.
type enqueuer interface {
	Enqueue(task dispatch.Task) error
}

// Server wires the webhook surface to the messaging service and dispatcher.
type Server struct {
	addr       string
	msgService messaging.Service
	dispatcher enqueuer
}

// Opts holds API server configuration.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// NewServer creates a Server over an already constructed messaging service
// and dispatcher.
func NewServer(msgService messaging.Service, dispatcher enqueuer, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{addr: cfg.Addr, msgService: msgService, dispatcher: dispatcher}
}

// routes registers the HTTP handlers on a fresh mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run assembles the full service from module options and serves until
// SIGINT or SIGTERM, then shuts down gracefully.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, msgOpts []messaging.Option, dispatchOpts []dispatch.Option, apiOpts []Option) error {
	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	genaiClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize GenAI client: %w", err)
	}

	msgService, err := messaging.NewService(msgOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging service: %w", err)
	}

	dir := directory.NewDirectory(st)
	convFlow := flow.NewConversationFlow(st, genaiClient, dir)
	deliverer := messaging.NewDeliverer(msgService)
	dispatcher := dispatch.NewDispatcher(convFlow, deliverer, dispatchOpts...)

	server := NewServer(msgService, dispatcher, apiOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	dispatcher.Start(ctx)

	httpServer := &http.Server{
		Addr:              server.addr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", server.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		dispatcher.Stop()
		_ = msgService.Stop()
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		slog.Info("Server.Run: shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: HTTP shutdown failed", "error", err)
	}
	dispatcher.Stop()
	if err := msgService.Stop(); err != nil {
		slog.Error("Server.Run: messaging service stop failed", "error", err)
	}
	slog.Info("Server.Run: shutdown complete")
	return nil
}

// buildStore selects the backend from the configured DSN. With no options an
// in-memory store is used, which only makes sense for local experiments.
func buildStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.PostgresDSN != "":
		slog.Info("Server.buildStore: using PostgreSQL store")
		return store.NewPostgresStore(opts...)
	case cfg.SQLiteDSN != "":
		slog.Info("Server.buildStore: using SQLite store")
		return store.NewSQLiteStore(opts...)
	default:
		slog.Warn("Server.buildStore: no database DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
}
