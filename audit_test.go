// audit_test.go: Tests for the audit logger
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newJSONLAuditor(t *testing.T) (*AuditLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	auditor, err := NewAuditLogger(AuditConfig{
		Enabled:       true,
		OutputFile:    path,
		MinLevel:      AuditInfo,
		BufferSize:    10,
		FlushInterval: -1,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := auditor.Close(); err != nil {
			t.Errorf("Failed to close auditor: %v", err)
		}
	})
	return auditor, path
}

func TestAuditLoggerWritesJSONL(t *testing.T) {
	auditor, path := newJSONLAuditor(t)

	auditor.LogCommand("program", "api", map[string]interface{}{"input": 3, "bus": 0})
	auditor.LogMappingChange("3", nil, MappingEntry{ME2: Input(6)})
	auditor.LogConfigChange("saveStateFile", "a.json", "b.json")

	if err := auditor.Flush(); err != nil {
		t.Fatalf("Failed to flush auditor: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 audit lines, got %d", len(lines))
	}
	for _, want := range []string{"command_program", "mapping_update", "config_change", auditor.SessionID()} {
		if !strings.Contains(string(data), want) {
			t.Errorf("audit output missing %q", want)
		}
	}
}

func TestAuditLoggerMinLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	auditor, err := NewAuditLogger(AuditConfig{
		Enabled:    true,
		OutputFile: path,
		MinLevel:   AuditCritical,
		BufferSize: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer auditor.Close()

	auditor.LogCommand("cut", "api", nil)
	auditor.LogPaletteChange(nil, AuxPalette{})

	events, err := auditor.Query(AuditQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Event != "palette_change" {
		t.Errorf("events = %+v", events)
	}
}

func TestAuditLoggerQueryAndStats(t *testing.T) {
	auditor, _ := newJSONLAuditor(t)

	auditor.LogCommand("program", "mirror", nil)
	auditor.LogCommandFailure("aux", map[string]interface{}{"bus": 1}, os.ErrDeadlineExceeded)
	auditor.LogLifecycle("start", nil)
	auditor.LogMappingChange("4", MappingEntry{ME2: Input(1)}, nil)

	failures, err := auditor.Query(AuditQuery{Event: "command_failed"})
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 1 || failures[0].Level != AuditWarn || failures[0].Context["error"] == nil {
		t.Errorf("failures = %+v", failures)
	}

	newest, err := auditor.Query(AuditQuery{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(newest) != 1 || newest[0].Event != "mapping_delete" {
		t.Errorf("newest = %+v", newest)
	}

	stats, err := auditor.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalEvents != 4 || stats.EventsByComponent["switcher"] != 2 || stats.EventsByLevel["CRITICAL"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestAuditLoggerChecksum(t *testing.T) {
	auditor, _ := newJSONLAuditor(t)
	event := AuditEvent{
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		SessionID: "s",
		Event:     "config_change",
	}
	a := auditor.generateChecksum(event)
	event.NewValue = "changed"
	b := auditor.generateChecksum(event)
	if len(a) != 64 || a == b {
		t.Errorf("checksums %s / %s", a, b)
	}
}

func TestAuditLoggerDisabledAndNil(t *testing.T) {
	auditor, err := NewAuditLogger(AuditConfig{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	auditor.LogCommand("cut", "api", nil)
	if events, err := auditor.Query(AuditQuery{}); err != nil || len(events) != 0 {
		t.Errorf("disabled logger returned %v, %v", events, err)
	}
	if err := auditor.Close(); err != nil {
		t.Error(err)
	}
	if err := auditor.Close(); err != nil {
		t.Error("second Close should be a no-op")
	}

	var nilLogger *AuditLogger
	nilLogger.LogLifecycle("start", nil)
	if err := nilLogger.Flush(); err != nil {
		t.Error(err)
	}
}

func TestParseAuditLevel(t *testing.T) {
	tests := map[string]AuditLevel{
		"info": AuditInfo, "WARNING": AuditWarn, "critical": AuditCritical, "Security": AuditSecurity, "": AuditInfo,
	}
	for in, want := range tests {
		got, err := ParseAuditLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseAuditLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseAuditLevel("loud"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
