// Package server wires the HTTP listener: route registration, the
// middleware chain, and graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reigadegr/cc-proxy-go/internal/config"
	"github.com/reigadegr/cc-proxy-go/internal/handlers"
	"github.com/reigadegr/cc-proxy-go/internal/middleware"
	"github.com/reigadegr/cc-proxy-go/internal/stats"
	"github.com/reigadegr/cc-proxy-go/internal/upstream"
)

// listenAddr is fixed per spec; the proxy has no host/port
// configuration surface.
const listenAddr = "0.0.0.0:9066"

type Server struct {
	store      *config.Store
	selectors  *upstream.Store
	accountant *stats.Accountant
	logger     *slog.Logger
	server     *http.Server
}

func New(store *config.Store, selectors *upstream.Store, accountant *stats.Accountant, logger *slog.Logger) *Server {
	return &Server{
		store:      store,
		selectors:  selectors,
		accountant: accountant,
		logger:     logger,
	}
}

func (s *Server) Start() error {
	mux := s.setupRoutes()

	s.server = &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	s.logger.Info("starting server", "address", listenAddr)

	errCh := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	s.logger.Info("server is shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("server exited")

	return nil
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	proxyHandler := handlers.NewProxyHandler(s.store, s.selectors, s.accountant, s.logger)
	healthHandler := handlers.NewHealthHandler(s.logger)

	middlewareSet := middleware.NewMiddlewareSet(s.logger)

	mux.Handle("/health", middlewareSet.HealthChain().Handler(healthHandler))
	mux.Handle("/claude/", middlewareSet.DefaultChain().Handler(proxyHandler))

	return mux
}
