// main.go: copilot, the command-line companion of copilotd
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"

	"github.com/agilira/copilot"
	"github.com/agilira/copilot/cmd/cli"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "copilot: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cli.Version = version
	manager := cli.NewManager()

	// The audit commands read the same trail the daemon writes.
	cfg, err := copilot.LoadConfigFromEnv(copilot.DefaultConfig())
	if err != nil {
		return err
	}
	if cfg.Audit.Enabled {
		audit, err := copilot.NewAuditLogger(cfg.Audit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "copilot: audit trail unavailable: %v\n", err)
		} else {
			defer audit.Close()
			manager.WithAudit(audit)
		}
	}

	return manager.Run(args)
}
