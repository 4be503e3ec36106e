// audit_backend.go: Storage backends for the audit trail
//
// SQLite (WAL mode) is the default store; a .jsonl output file selects the
// append-only JSON Lines backend instead.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// auditTimeLayout keeps stored timestamps lexically sortable.
const auditTimeLayout = "2006-01-02T15:04:05.000000000Z"

// AuditQuery filters events read back from the audit trail.
type AuditQuery struct {
	Since     time.Time
	Event     string
	Component string
	Limit     int
}

func (q AuditQuery) matches(ev AuditEvent) bool {
	if !q.Since.IsZero() && ev.Timestamp.Before(q.Since) {
		return false
	}
	if q.Event != "" && ev.Event != q.Event {
		return false
	}
	if q.Component != "" && ev.Component != q.Component {
		return false
	}
	return true
}

func (q AuditQuery) limit() int {
	if q.Limit <= 0 {
		return 100
	}
	return q.Limit
}

// AuditStats summarizes the stored audit trail.
type AuditStats struct {
	TotalEvents       int64            `json:"total_events"`
	EventsByLevel     map[string]int64 `json:"events_by_level"`
	EventsByComponent map[string]int64 `json:"events_by_component"`
	OldestEvent       *time.Time       `json:"oldest_event,omitempty"`
	NewestEvent       *time.Time       `json:"newest_event,omitempty"`
	StorageSize       int64            `json:"storage_size_bytes"`
	SchemaVersion     int              `json:"schema_version"`
}

type auditBackend interface {
	Write(events []AuditEvent) error
	Query(q AuditQuery) ([]AuditEvent, error)
	Stats() (*AuditStats, error)
	Flush() error
	Close() error
}

// createAuditBackend selects JSONL for .jsonl files and SQLite otherwise,
// falling back to a JSONL file next to the database when SQLite fails.
func createAuditBackend(config AuditConfig) (auditBackend, error) {
	if filepath.Ext(config.OutputFile) == ".jsonl" {
		return newJSONLBackend(config.OutputFile)
	}

	dbPath := config.OutputFile
	if dbPath == "" {
		dbPath = defaultAuditPath()
	}
	backend, err := newSQLiteBackend(dbPath)
	if err == nil {
		return backend, nil
	}

	fallback := strings.TrimSuffix(dbPath, filepath.Ext(dbPath)) + ".jsonl"
	jsonlBackend, jsonlErr := newJSONLBackend(fallback)
	if jsonlErr != nil {
		return nil, fmt.Errorf("all audit backends failed - SQLite: %w, JSONL: %v", err, jsonlErr)
	}
	return jsonlBackend, nil
}

func defaultAuditPath() string {
	return filepath.Join(os.TempDir(), "copilot", "audit.db")
}

type sqliteAuditBackend struct {
	db         *sql.DB
	dbPath     string
	insertStmt *sql.Stmt
	mu         sync.RWMutex
	closed     bool
}

func newSQLiteBackend(dbPath string) (*sqliteAuditBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create audit database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_cache_size=1000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	backend := &sqliteAuditBackend{db: db, dbPath: dbPath}
	if err := backend.ensureSchemaVersion(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize audit database schema: %w", err)
	}
	if err := backend.prepareStatements(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare audit database statements: %w", err)
	}
	_ = backend.performMaintenance()

	return backend, nil
}

const auditSchemaVersion = 1

func (s *sqliteAuditBackend) ensureSchemaVersion() error {
	if _, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_info (
		version INTEGER PRIMARY KEY,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("failed to create schema_info table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_info ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check schema version: %w", err)
	}
	if version >= auditSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	if err := migrateToV1(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration to v1 failed: %w", err)
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO schema_info (version) VALUES (?)", auditSchemaVersion); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return tx.Commit()
}

func migrateToV1(tx *sql.Tx) error {
	if _, err := tx.Exec(`
	CREATE TABLE IF NOT EXISTS audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		level TEXT NOT NULL,
		event TEXT NOT NULL,
		component TEXT NOT NULL,
		subject TEXT,
		old_value TEXT,
		new_value TEXT,
		process_id INTEGER NOT NULL,
		process_name TEXT NOT NULL,
		session_id TEXT NOT NULL,
		context TEXT,
		checksum TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("failed to create audit_events table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_audit_component_time ON audit_events(component, timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_audit_event_time ON audit_events(event, timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_events(session_id)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// performMaintenance drops events older than the retention window.
func (s *sqliteAuditBackend) performMaintenance() error {
	const retentionDays = 90

	if _, err := s.db.Exec(`
		DELETE FROM audit_events
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`, retentionDays); err != nil {
		return fmt.Errorf("failed to cleanup old audit events: %w", err)
	}
	_, _ = s.db.Exec("PRAGMA optimize")
	return nil
}

func (s *sqliteAuditBackend) prepareStatements() error {
	stmt, err := s.db.Prepare(`
	INSERT INTO audit_events (
		timestamp, level, event, component, subject,
		old_value, new_value, process_id, process_name,
		session_id, context, checksum
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	s.insertStmt = stmt
	return nil
}

func (s *sqliteAuditBackend) Write(events []AuditEvent) (err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("cannot write to closed SQLite audit backend")
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	txStmt := tx.Stmt(s.insertStmt)
	defer txStmt.Close()

	for _, event := range events {
		if err = insertAuditEvent(txStmt, event); err != nil {
			return fmt.Errorf("failed to insert audit event: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit transaction: %w", err)
	}
	return nil
}

func insertAuditEvent(stmt *sql.Stmt, event AuditEvent) error {
	oldValue, err := marshalOptional(event.OldValue)
	if err != nil {
		return fmt.Errorf("failed to serialize old_value: %w", err)
	}
	newValue, err := marshalOptional(event.NewValue)
	if err != nil {
		return fmt.Errorf("failed to serialize new_value: %w", err)
	}
	var context string
	if event.Context != nil {
		if context, err = marshalOptional(event.Context); err != nil {
			return fmt.Errorf("failed to serialize context: %w", err)
		}
	}

	_, err = stmt.Exec(
		event.Timestamp.UTC().Format(auditTimeLayout),
		event.Level.String(),
		event.Event,
		event.Component,
		event.Subject,
		oldValue,
		newValue,
		event.ProcessID,
		event.ProcessName,
		event.SessionID,
		context,
		event.Checksum,
	)
	return err
}

func marshalOptional(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalOptional(s string) interface{} {
	if s == "" {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func (s *sqliteAuditBackend) Query(q AuditQuery) ([]AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("cannot query closed SQLite audit backend")
	}

	var (
		where []string
		args  []interface{}
	)
	if !q.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, q.Since.UTC().Format(auditTimeLayout))
	}
	if q.Event != "" {
		where = append(where, "event = ?")
		args = append(args, q.Event)
	}
	if q.Component != "" {
		where = append(where, "component = ?")
		args = append(args, q.Component)
	}
	query := `SELECT timestamp, level, event, component, subject, old_value, new_value,
		process_id, process_name, session_id, context, checksum FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, q.limit())

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var (
			ev                                   AuditEvent
			ts, level                            string
			subject, oldValue, newValue, context sql.NullString
		)
		if err := rows.Scan(&ts, &level, &ev.Event, &ev.Component, &subject, &oldValue, &newValue,
			&ev.ProcessID, &ev.ProcessName, &ev.SessionID, &context, &ev.Checksum); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		ev.Timestamp, _ = time.Parse(auditTimeLayout, ts)
		ev.Level, _ = ParseAuditLevel(level)
		ev.Subject = subject.String
		ev.OldValue = unmarshalOptional(oldValue.String)
		ev.NewValue = unmarshalOptional(newValue.String)
		if ctx, ok := unmarshalOptional(context.String).(map[string]interface{}); ok {
			ev.Context = ctx
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *sqliteAuditBackend) Stats() (*AuditStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &AuditStats{
		EventsByLevel:     make(map[string]int64),
		EventsByComponent: make(map[string]int64),
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM audit_events").Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to get total events count: %w", err)
	}
	if err := s.groupCount("level", stats.EventsByLevel); err != nil {
		return nil, err
	}
	if err := s.groupCount("component", stats.EventsByComponent); err != nil {
		return nil, err
	}

	var oldest, newest sql.NullString
	if err := s.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM audit_events").Scan(&oldest, &newest); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get event time range: %w", err)
	}
	if t, err := time.Parse(auditTimeLayout, oldest.String); oldest.Valid && err == nil {
		stats.OldestEvent = &t
	}
	if t, err := time.Parse(auditTimeLayout, newest.String); newest.Valid && err == nil {
		stats.NewestEvent = &t
	}
	if err := s.db.QueryRow("SELECT version FROM schema_info ORDER BY version DESC LIMIT 1").Scan(&stats.SchemaVersion); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get schema version: %w", err)
	}
	if info, err := os.Stat(s.dbPath); err == nil {
		stats.StorageSize = info.Size()
	}
	return stats, nil
}

// groupCount fills dst with COUNT(*) grouped by a fixed column name.
func (s *sqliteAuditBackend) groupCount(column string, dst map[string]int64) error {
	rows, err := s.db.Query("SELECT " + column + ", COUNT(*) FROM audit_events GROUP BY " + column)
	if err != nil {
		return fmt.Errorf("failed to get events by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan %s stats: %w", column, err)
		}
		dst[key] = count
	}
	return rows.Err()
}

func (s *sqliteAuditBackend) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to flush SQLite audit backend: %w", err)
	}
	return nil
}

func (s *sqliteAuditBackend) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []string
	if s.insertStmt != nil {
		if err := s.insertStmt.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing SQLite audit backend: %s", strings.Join(errs, "; "))
	}
	return nil
}

type jsonlAuditBackend struct {
	file   *os.File
	path   string
	mu     sync.Mutex
	closed bool
}

func newJSONLBackend(path string) (*jsonlAuditBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("JSONL backend requires an output file")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create JSONL audit log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL audit log file: %w", err)
	}
	return &jsonlAuditBackend{file: file, path: path}, nil
}

func (j *jsonlAuditBackend) Write(events []AuditEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return fmt.Errorf("cannot write to closed JSONL audit backend")
	}

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to serialize audit event: %w", err)
		}
		data = append(data, '\n')
		if _, err := j.file.Write(data); err != nil {
			return fmt.Errorf("failed to write audit event to JSONL: %w", err)
		}
	}
	return nil
}

// readAll decodes every event in the file, skipping lines that do not parse.
func (j *jsonlAuditBackend) readAll() ([]AuditEvent, error) {
	f, err := os.Open(j.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL audit log: %w", err)
	}
	defer f.Close()

	var events []AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}

func (j *jsonlAuditBackend) Query(q AuditQuery) ([]AuditEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	all, err := j.readAll()
	if err != nil {
		return nil, err
	}
	var out []AuditEvent
	for i := len(all) - 1; i >= 0 && len(out) < q.limit(); i-- {
		if q.matches(all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (j *jsonlAuditBackend) Stats() (*AuditStats, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	stats := &AuditStats{
		EventsByLevel:     make(map[string]int64),
		EventsByComponent: make(map[string]int64),
		SchemaVersion:     1,
	}
	all, err := j.readAll()
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(a, b int) bool { return all[a].Timestamp.Before(all[b].Timestamp) })
	for _, ev := range all {
		stats.TotalEvents++
		stats.EventsByLevel[ev.Level.String()]++
		stats.EventsByComponent[ev.Component]++
	}
	if len(all) > 0 {
		oldest, newest := all[0].Timestamp, all[len(all)-1].Timestamp
		stats.OldestEvent, stats.NewestEvent = &oldest, &newest
	}
	if info, err := os.Stat(j.path); err == nil {
		stats.StorageSize = info.Size()
	}
	return stats, nil
}

func (j *jsonlAuditBackend) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync JSONL audit file: %w", err)
	}
	return nil
}

func (j *jsonlAuditBackend) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}
