// app.go: Daemon assembly for copilotd
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package app assembles the engine, its logging bridge, metrics and the HTTP
// front end into one process lifetime.
package app

import (
	"context"
	"time"

	"github.com/agilira/copilot"
	"github.com/agilira/copilot/internal/logging"
	"github.com/agilira/copilot/internal/metrics"
	"github.com/agilira/copilot/internal/server"
	"github.com/agilira/go-errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options configures Run.
type Options struct {
	Engine   copilot.Config
	Server   server.Config
	Logging  logging.Config
	Switcher copilot.Switcher

	// Logger overrides the logger built from Logging.
	Logger *zap.Logger
	// Registry receives the metrics; nil uses a private registry.
	Registry *prometheus.Registry
	// Ready, when set, is called once the engine is built and the server is
	// about to listen.
	Ready func(*copilot.Copilot)
}

// Run builds the engine, connects it and serves the HTTP API until ctx is
// cancelled or the server fails. On the way out the routing state is saved
// when a save-state file is configured, and the engine is closed.
func Run(ctx context.Context, opts Options) error {
	if opts.Switcher == nil {
		return errors.New(copilot.ErrCodeInvalidConfig, "switcher client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.MustNew(opts.Logging)
		defer func() { _ = logger.Sync() }()
	}

	m, err := metrics.New(opts.Registry)
	if err != nil {
		return err
	}

	engine, err := copilot.New(m.InstrumentSwitcher(opts.Switcher), opts.Engine)
	if err != nil {
		return err
	}
	stopBridge := logging.Bridge(engine, logger)
	defer stopBridge()

	stopObserving, err := m.Observe(engine)
	if err != nil {
		_ = engine.Close()
		return err
	}
	defer stopObserving()

	srv := server.New(opts.Server, engine, logger, m)
	if !engine.IsRunning() {
		if err := engine.Start(); err != nil {
			// The switcher may come up later; the API stays available.
			logger.Warn("initial connection failed", zap.Error(err))
		}
	}
	if opts.Ready != nil {
		opts.Ready(engine)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(engine, logger)
	})
	return g.Wait()
}

func shutdown(engine *copilot.Copilot, logger *zap.Logger) error {
	start := time.Now()
	if engine.Config().SaveStateFile != "" {
		if err := engine.SaveState(""); err != nil {
			logger.Warn("failed to save state", zap.Error(err))
		}
	}
	err := engine.Close()
	logger.Info("engine closed", zap.Duration("duration", time.Since(start)))
	return err
}
