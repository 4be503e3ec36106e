// main.go: copilotd, the mirroring daemon with its HTTP and websocket API
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agilira/copilot"
	"github.com/agilira/copilot/internal/app"
	"github.com/agilira/copilot/internal/logging"
	"github.com/agilira/copilot/internal/server"
	"github.com/agilira/copilot/internal/simswitch"
	"github.com/joho/godotenv"
)

var version = "dev"

// Daemon-only flags; the engine flags come from ConfigManager.ConfigFlags.
const (
	flagConfig    = "config"
	flagEnvFile   = "env-file"
	flagListen    = "listen"
	flagLogEnv    = "log-env"
	flagLogLevel  = "log-level"
	flagSimInputs = "sim-inputs"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "copilotd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cm := copilot.NewConfigManager("copilot").
		SetDescription("Mirrors ME1 selections onto ME2 and the AUX buses of a video switcher").
		SetVersion(version).
		ConfigFlags(copilot.DefaultConfig()).
		StringFlag(flagConfig, "", "Configuration file (.yaml or .json)").
		StringFlag(flagEnvFile, ".env", "Environment file loaded before configuration").
		StringFlag(flagListen, server.DefaultConfig().Addr, "HTTP listen address").
		StringFlag(flagLogEnv, "dev", "Log encoding: dev or prod").
		StringFlag(flagLogLevel, "info", "Log level: debug, info, warn or error").
		IntFlag(flagSimInputs, 8, "Inputs exposed by the built-in simulated switcher")

	if err := cm.Parse(args); err != nil {
		if err == copilot.ErrHelpRequested {
			cm.PrintUsage()
			return nil
		}
		return err
	}

	if envFile := cm.GetString(flagEnvFile); envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("loading %s: %w", envFile, err)
			}
		}
	}

	base, err := copilot.LoadConfigMultiSource(cm.GetString(flagConfig))
	if err != nil {
		return err
	}
	cfg := cm.ApplyTo(*base)

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = cm.GetString(flagListen)

	sim := simswitch.New(simswitch.Options{Inputs: cm.GetInt(flagSimInputs)})
	defer sim.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx, app.Options{
		Engine: *cfg,
		Server: srvCfg,
		Logging: logging.Config{
			Env:         cm.GetString(flagLogEnv),
			Level:       cm.GetString(flagLogLevel),
			ServiceName: "copilotd",
			Version:     version,
		},
		Switcher: sim,
	})
}
