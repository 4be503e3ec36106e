// Command handlers for the copilot CLI
//
// Mapping and palette handlers edit the files through the same stores the
// engine uses, so a running daemon with file watching picks the edits up.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agilira/copilot"
	"github.com/agilira/go-errors"
	"github.com/agilira/orpheus/pkg/orpheus"
)

// handleMappingList prints every entry of the mapping file in input order.
func (m *Manager) handleMappingList(ctx *orpheus.Context) error {
	filePath := ctx.GetFlagString("file")

	table, err := m.loadMapping(filePath)
	if err != nil {
		return err
	}
	if len(table) == 0 {
		fmt.Fprintf(m.out, "No mapping entries in %s\n", filePath)
		return nil
	}

	fmt.Fprintf(m.out, "Mapping file: %s (%d entries)\n", filePath, len(table))
	for _, id := range table.Keys() {
		encoded, err := json.Marshal(table[id])
		if err != nil {
			return errors.Wrap(err, copilot.ErrCodeMappingLoad, "failed to encode mapping entry")
		}
		fmt.Fprintf(m.out, "  %s -> %s\n", id, encoded)
	}
	return nil
}

// handleMappingSet replaces the entry for one source input.
func (m *Manager) handleMappingSet(ctx *orpheus.Context) error {
	filePath := ctx.GetFlagString("file")
	input := strings.TrimSpace(ctx.GetArg(0))
	raw := ctx.GetArg(1)
	if input == "" || raw == "" {
		return errors.New(copilot.ErrCodeInvalidRequest, "usage: copilot mapping set <input> <entry-json>")
	}

	entry, err := copilot.ParseMappingEntry([]byte(raw))
	if err != nil {
		return err
	}

	store := copilot.NewMappingStore(filePath).WithAudit(m.auditLogger)
	if _, err := store.Load(); err != nil && !copilot.IsCode(err, copilot.ErrCodeMappingMissing) {
		return err
	}
	if err := store.Update(input, entry); err != nil {
		return err
	}

	fmt.Fprintf(m.out, "Mapping for input %s updated in %s\n", input, filePath)
	return nil
}

// handleMappingDelete removes the entry for one source input.
func (m *Manager) handleMappingDelete(ctx *orpheus.Context) error {
	filePath := ctx.GetFlagString("file")
	input := strings.TrimSpace(ctx.GetArg(0))
	if input == "" {
		return errors.New(copilot.ErrCodeInvalidRequest, "usage: copilot mapping delete <input>")
	}

	store := copilot.NewMappingStore(filePath).WithAudit(m.auditLogger)
	if _, err := store.Load(); err != nil && !copilot.IsCode(err, copilot.ErrCodeMappingMissing) {
		return err
	}
	if err := store.Delete(input); err != nil {
		return err
	}

	fmt.Fprintf(m.out, "Mapping for input %s deleted from %s\n", input, filePath)
	return nil
}

// handlePaletteShow prints the palette of every configured AUX.
func (m *Manager) handlePaletteShow(ctx *orpheus.Context) error {
	filePath := ctx.GetFlagString("file")

	palette, err := copilot.NewPaletteStore(filePath).Load()
	if err != nil {
		return err
	}
	if len(palette) == 0 {
		fmt.Fprintf(m.out, "No AUX palettes in %s\n", filePath)
		return nil
	}

	ids := make([]string, 0, len(palette))
	for id := range palette {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintf(m.out, "AUX palettes: %s\n", filePath)
	for _, id := range ids {
		entry := palette[id]
		status := "follows " + entry.SyncTarget
		if entry.SyncTarget == "" {
			status = "independent"
		}
		if entry.IsLocked {
			status += " (locked)"
		}
		fmt.Fprintf(m.out, "  %s: %s\n", id, status)
	}
	return nil
}

// handlePaletteSet configures one AUX and keeps the rest of the palette.
func (m *Manager) handlePaletteSet(ctx *orpheus.Context) error {
	filePath := ctx.GetFlagString("file")
	auxID := strings.ToUpper(strings.TrimSpace(ctx.GetArg(0)))
	target := strings.ToUpper(strings.TrimSpace(ctx.GetFlagString("target")))

	if !isAuxBus(auxID) {
		return errors.New(copilot.ErrCodeInvalidRequest, fmt.Sprintf("invalid AUX id %q", auxID))
	}
	if target != "" && !isAuxBus(target) {
		return errors.New(copilot.ErrCodeInvalidRequest, fmt.Sprintf("invalid sync target %q", target))
	}

	store := copilot.NewPaletteStore(filePath).WithAudit(m.auditLogger)
	palette, err := store.Load()
	if err != nil {
		return err
	}
	palette[auxID] = copilot.PaletteEntry{
		SyncTarget: target,
		IsLocked:   ctx.GetFlagBool("locked"),
	}
	if err := store.Replace(palette); err != nil {
		return err
	}

	fmt.Fprintf(m.out, "Palette for %s updated in %s\n", auxID, filePath)
	return nil
}

// handleStateShow prints a state dump written by the daemon.
func (m *Manager) handleStateShow(ctx *orpheus.Context) error {
	filePath := ctx.GetFlagString("file")

	dump, err := copilot.ReadStateFile(filePath)
	if err != nil {
		return err
	}

	if ctx.GetFlagBool("json") {
		encoded, err := json.MarshalIndent(dump, "", "  ")
		if err != nil {
			return errors.Wrap(err, copilot.ErrCodeStateIO, "failed to encode state")
		}
		fmt.Fprintf(m.out, "%s\n", encoded)
		return nil
	}

	fmt.Fprintf(m.out, "Saved:     %s\n", dump.SavedAt.Format(time.RFC3339))
	fmt.Fprintf(m.out, "Lifecycle: %s\n", dump.Lifecycle)
	fmt.Fprintf(m.out, "Uptime:    %s\n", (time.Duration(dump.UptimeMs) * time.Millisecond).String())
	fmt.Fprintf(m.out, "Routing:\n")
	for _, bus := range copilot.Buses {
		input, ok := dump.Routing[bus]
		if !ok {
			continue
		}
		if name, named := dump.Inputs[input]; named {
			fmt.Fprintf(m.out, "  %-12s %d (%s)\n", bus, input, name)
		} else {
			fmt.Fprintf(m.out, "  %-12s %d\n", bus, input)
		}
	}
	fmt.Fprintf(m.out, "Mapping entries: %d\n", len(dump.Mapping))
	return nil
}

// handleAuditQuery prints audit events, newest first.
func (m *Manager) handleAuditQuery(ctx *orpheus.Context) error {
	if m.auditLogger == nil {
		return errors.New(copilot.ErrCodeAuditUnavailable, "audit logging not enabled")
	}

	since, err := parseExtendedDuration(ctx.GetFlagString("since"))
	if err != nil {
		return errors.Wrap(err, copilot.ErrCodeInvalidRequest, "invalid --since value")
	}

	events, err := m.auditLogger.Query(copilot.AuditQuery{
		Since:     time.Now().Add(-since),
		Event:     ctx.GetFlagString("event"),
		Component: ctx.GetFlagString("component"),
		Limit:     ctx.GetFlagInt("limit"),
	})
	if err != nil {
		return errors.Wrap(err, copilot.ErrCodeAuditUnavailable, "audit query failed")
	}
	if len(events) == 0 {
		fmt.Fprintf(m.out, "No audit events in the last %s\n", ctx.GetFlagString("since"))
		return nil
	}

	for _, ev := range events {
		fmt.Fprintf(m.out, "%s %-8s %-10s %s", ev.Timestamp.Format(time.RFC3339), ev.Level, ev.Component, ev.Event)
		if ev.Subject != "" {
			fmt.Fprintf(m.out, " %s", ev.Subject)
		}
		fmt.Fprintln(m.out)
	}
	return nil
}

// handleAuditStats prints totals for the stored audit trail.
func (m *Manager) handleAuditStats(ctx *orpheus.Context) error {
	if m.auditLogger == nil {
		return errors.New(copilot.ErrCodeAuditUnavailable, "audit logging not enabled")
	}

	stats, err := m.auditLogger.Stats()
	if err != nil {
		return errors.Wrap(err, copilot.ErrCodeAuditUnavailable, "audit stats failed")
	}

	fmt.Fprintf(m.out, "Total events: %d\n", stats.TotalEvents)
	if stats.OldestEvent != nil && stats.NewestEvent != nil {
		fmt.Fprintf(m.out, "Range: %s .. %s\n",
			stats.OldestEvent.Format(time.RFC3339), stats.NewestEvent.Format(time.RFC3339))
	}
	printCounts(m, "By level", stats.EventsByLevel)
	printCounts(m, "By component", stats.EventsByComponent)
	return nil
}

// handleInfo displays version and file information.
func (m *Manager) handleInfo(ctx *orpheus.Context) error {
	fmt.Fprintf(m.out, "copilot %s\n", Version)
	fmt.Fprintf(m.out, "Mirrors ME1 selections onto ME2 and the AUX buses\n")

	if ctx.GetFlagBool("verbose") {
		cfg := copilot.DefaultConfig()
		fmt.Fprintf(m.out, "\nDefaults:\n")
		fmt.Fprintf(m.out, "  Mapping file: %s\n", cfg.MappingFile)
		fmt.Fprintf(m.out, "  Palette file: %s\n", cfg.PaletteFile)
		fmt.Fprintf(m.out, "  State file:   %s\n", cfg.SaveStateFile)
		fmt.Fprintf(m.out, "Audit logging: %v\n", m.auditLogger != nil)
	}

	return nil
}

func (m *Manager) loadMapping(filePath string) (copilot.MappingTable, error) {
	table, err := copilot.NewMappingStore(filePath).Load()
	if err != nil && !copilot.IsCode(err, copilot.ErrCodeMappingMissing) {
		return nil, err
	}
	return table, nil
}

func printCounts(m *Manager, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(m.out, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(m.out, "  %-12s %d\n", k, counts[k])
	}
}
