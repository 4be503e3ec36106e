// Package cli provides the copilot command-line interface.
//
// The commands work offline on the mapping, palette and state files, read
// the audit trail back, and drive a running copilotd from the keyboard.
//
// Architecture:
// - Manager: command tree and shared dependencies
// - Handlers: one handler per command
// - Console: raw-mode keyboard controller over the daemon's HTTP API
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/agilira/copilot"
	"github.com/agilira/orpheus/pkg/orpheus"
)

// Version is reported by "copilot info" and "--version".
var Version = "dev"

// Manager holds the command tree of the copilot CLI.
type Manager struct {
	app         *orpheus.App
	auditLogger *copilot.AuditLogger // Optional audit integration
	out         io.Writer
	in          io.Reader
	httpClient  *http.Client
}

// NewManager creates the CLI with every command registered.
func NewManager() *Manager {
	app := orpheus.New("copilot").
		SetDescription("Mapping, palette and console tools for the copilot mirroring engine").
		SetVersion(Version)

	manager := &Manager{
		app:        app,
		out:        os.Stdout,
		in:         os.Stdin,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}

	manager.setupMappingCommands()
	manager.setupPaletteCommands()
	manager.setupStateCommands()
	manager.setupAuditCommands()
	manager.setupUtilityCommands()

	return manager
}

// WithAudit records CLI edits in the audit trail and enables the audit
// commands.
func (m *Manager) WithAudit(auditLogger *copilot.AuditLogger) *Manager {
	m.auditLogger = auditLogger
	return m
}

// SetOutput redirects command output.
func (m *Manager) SetOutput(w io.Writer) *Manager {
	m.out = w
	return m
}

// SetInput replaces the console's key source.
func (m *Manager) SetInput(r io.Reader) *Manager {
	m.in = r
	return m
}

// Run executes the CLI with the provided arguments.
func (m *Manager) Run(args []string) error {
	return m.app.Run(args)
}

// setupMappingCommands configures the 'mapping' group for offline edits of
// the mapping file.
func (m *Manager) setupMappingCommands() {
	mappingCmd := orpheus.NewCommand("mapping", "Mapping table operations")

	// mapping list [--file=mapping.json]
	listCmd := mappingCmd.Subcommand("list", "List mapping entries", m.handleMappingList)
	listCmd.AddFlag("file", "f", copilot.DefaultMappingFile, "Mapping file")

	// mapping set <input> <entry-json> [--file=mapping.json]
	setCmd := mappingCmd.Subcommand("set", "Set the entry for a source input", m.handleMappingSet)
	setCmd.AddFlag("file", "f", copilot.DefaultMappingFile, "Mapping file")

	// mapping delete <input> [--file=mapping.json]
	deleteCmd := mappingCmd.Subcommand("delete", "Delete the entry for a source input", m.handleMappingDelete)
	deleteCmd.AddFlag("file", "f", copilot.DefaultMappingFile, "Mapping file")

	m.app.AddCommand(mappingCmd)
}

// setupPaletteCommands configures the 'palette' group for the AUX palette file.
func (m *Manager) setupPaletteCommands() {
	paletteCmd := orpheus.NewCommand("palette", "AUX palette operations")

	// palette show [--file=aux_palettes.json]
	showCmd := paletteCmd.Subcommand("show", "Show the AUX palettes", m.handlePaletteShow)
	showCmd.AddFlag("file", "f", copilot.DefaultPaletteFile, "Palette file")

	// palette set <aux> [--target=AUX1] [--locked]
	setCmd := paletteCmd.Subcommand("set", "Configure one AUX palette entry", m.handlePaletteSet)
	setCmd.AddFlag("file", "f", copilot.DefaultPaletteFile, "Palette file")
	setCmd.AddFlag("target", "t", string(copilot.BusAUX1), "AUX bus to follow")
	setCmd.AddBoolFlag("locked", "l", false, "Lock the AUX so it stops following")

	m.app.AddCommand(paletteCmd)
}

// setupStateCommands configures the 'state' group for saved state dumps.
func (m *Manager) setupStateCommands() {
	stateCmd := orpheus.NewCommand("state", "Saved state operations")

	// state show [--file=copilot-state.json]
	showCmd := stateCmd.Subcommand("show", "Show a saved state file", m.handleStateShow)
	showCmd.AddFlag("file", "f", copilot.DefaultSaveStateFile, "State file")
	showCmd.AddBoolFlag("json", "j", false, "Print the raw document")

	m.app.AddCommand(stateCmd)
}

// setupAuditCommands configures the 'audit' group.
func (m *Manager) setupAuditCommands() {
	auditCmd := orpheus.NewCommand("audit", "Audit trail queries")

	queryCmd := auditCmd.Subcommand("query", "Query audit events", m.handleAuditQuery)
	queryCmd.AddFlag("since", "s", "24h", "Time range (e.g., 24h, 7d, 2w)")
	queryCmd.AddFlag("event", "e", "", "Event type filter")
	queryCmd.AddFlag("component", "c", "", "Component filter")
	queryCmd.AddIntFlag("limit", "l", 100, "Maximum results")

	auditCmd.Subcommand("stats", "Audit trail statistics", m.handleAuditStats)

	m.app.AddCommand(auditCmd)
}

// setupUtilityCommands configures the console and info commands.
func (m *Manager) setupUtilityCommands() {
	// console [--server=http://localhost:8080]
	consoleCmd := orpheus.NewCommand("console", "Keyboard controller for a running copilotd")
	consoleCmd.SetHandler(m.handleConsole)
	consoleCmd.AddFlag("server", "s", "http://localhost:8080", "copilotd base URL")
	m.app.AddCommand(consoleCmd)

	infoCmd := orpheus.NewCommand("info", "Version and file information")
	infoCmd.SetHandler(m.handleInfo)
	infoCmd.AddBoolFlag("verbose", "v", false, "Show file locations and audit status")
	m.app.AddCommand(infoCmd)
}
