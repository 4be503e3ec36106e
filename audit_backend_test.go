// audit_backend_test.go: Tests for the SQLite and JSONL audit backends
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"path/filepath"
	"testing"
	"time"
)

func sampleAuditEvents() []AuditEvent {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []AuditEvent{
		{Timestamp: base, Level: AuditInfo, Event: "command_program", Component: "switcher", Subject: "api",
			Context: map[string]interface{}{"input": 3}, SessionID: "s1", ProcessName: "test", Checksum: "a"},
		{Timestamp: base.Add(time.Second), Level: AuditCritical, Event: "mapping_update", Component: "mapping",
			Subject: "3", NewValue: map[string]interface{}{"ME2": 6}, SessionID: "s1", ProcessName: "test", Checksum: "b"},
		{Timestamp: base.Add(2 * time.Second), Level: AuditWarn, Event: "command_failed", Component: "switcher",
			Subject: "aux", SessionID: "s1", ProcessName: "test", Checksum: "c"},
	}
}

func exerciseBackend(t *testing.T, backend auditBackend) {
	t.Helper()
	if err := backend.Write(sampleAuditEvents()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := backend.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	all, err := backend.Query(AuditQuery{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(all) != 3 || all[0].Event != "command_failed" {
		t.Fatalf("query should return newest first: %+v", all)
	}

	switcher, err := backend.Query(AuditQuery{Component: "switcher"})
	if err != nil || len(switcher) != 2 {
		t.Errorf("component filter = %d events, %v", len(switcher), err)
	}

	since, err := backend.Query(AuditQuery{Since: sampleAuditEvents()[1].Timestamp})
	if err != nil || len(since) != 2 {
		t.Errorf("since filter = %d events, %v", len(since), err)
	}

	mapping, err := backend.Query(AuditQuery{Event: "mapping_update"})
	if err != nil || len(mapping) != 1 || mapping[0].Subject != "3" || mapping[0].Level != AuditCritical {
		t.Errorf("event filter = %+v, %v", mapping, err)
	}

	stats, err := backend.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalEvents != 3 || stats.EventsByComponent["switcher"] != 2 || stats.EventsByLevel["WARN"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.OldestEvent == nil || !stats.OldestEvent.Equal(sampleAuditEvents()[0].Timestamp) {
		t.Errorf("oldest = %v", stats.OldestEvent)
	}
	if stats.SchemaVersion != 1 {
		t.Errorf("schema version = %d", stats.SchemaVersion)
	}

	if err := backend.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestSQLiteAuditBackend(t *testing.T) {
	backend, err := newSQLiteBackend(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("newSQLiteBackend failed: %v", err)
	}
	exerciseBackend(t, backend)
}

func TestJSONLAuditBackend(t *testing.T) {
	backend, err := newJSONLBackend(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("newJSONLBackend failed: %v", err)
	}
	exerciseBackend(t, backend)
}

func TestCreateAuditBackendSelectsByExtension(t *testing.T) {
	dir := t.TempDir()

	jsonl, err := createAuditBackend(AuditConfig{OutputFile: filepath.Join(dir, "trail.jsonl")})
	if err != nil {
		t.Fatal(err)
	}
	defer jsonl.Close()
	if _, ok := jsonl.(*jsonlAuditBackend); !ok {
		t.Errorf("expected JSONL backend, got %T", jsonl)
	}

	db, err := createAuditBackend(AuditConfig{OutputFile: filepath.Join(dir, "trail.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, ok := db.(*sqliteAuditBackend); !ok {
		t.Errorf("expected SQLite backend, got %T", db)
	}
}
