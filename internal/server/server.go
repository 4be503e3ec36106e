// server.go: HTTP front end for a running copilot engine
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package server exposes the engine over a REST API and a websocket feed
// carrying logs, routing state, inputs, mapping and palette updates.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/agilira/copilot"
	"github.com/agilira/copilot/internal/metrics"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Config holds listener settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig listens on port 8080 on every interface.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server serves the REST API and the websocket feed.
type Server struct {
	cfg        Config
	engine     *copilot.Copilot
	hub        *Hub
	logger     *zap.Logger
	metrics    *metrics.Metrics
	handler    http.Handler
	httpServer *http.Server
}

// New wires the routes for engine. m may be nil, in which case requests are
// not instrumented and /metrics is not served.
func New(cfg Config, engine *copilot.Copilot, logger *zap.Logger, m *metrics.Metrics) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:     cfg,
		engine:  engine,
		logger:  logger.Named("server"),
		metrics: m,
	}
	s.hub = NewHub(engine, s.logger)

	r := chi.NewRouter()
	s.Register(r)
	r.Get("/ws", s.hub.ServeWS)
	if m != nil {
		r.Handle("/metrics", m.Handler())
		s.handler = m.WithMetrics(r)
	} else {
		s.handler = r
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start serves until ctx is cancelled, then shuts down gracefully and closes
// every websocket client.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("addr", s.cfg.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		s.hub.Close()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("Server shut down gracefully")
		return nil
	case err := <-errChan:
		s.hub.Close()
		return err
	}
}
