// audit.go: Audit trail for switcher commands and configuration mutations
//
// Every command the engine sends to the switcher, every mapping and palette
// mutation and every lifecycle transition can be recorded with a tamper
// detection checksum. Events are buffered and flushed in batches to a SQLite
// or JSONL backend.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// AuditLevel represents the severity of audit events
type AuditLevel int

const (
	AuditInfo AuditLevel = iota
	AuditWarn
	AuditCritical
	AuditSecurity
)

func (al AuditLevel) String() string {
	switch al {
	case AuditInfo:
		return "INFO"
	case AuditWarn:
		return "WARN"
	case AuditCritical:
		return "CRITICAL"
	case AuditSecurity:
		return "SECURITY"
	default:
		return "UNKNOWN"
	}
}

// ParseAuditLevel converts a level name (case-insensitive) into an AuditLevel.
func ParseAuditLevel(s string) (AuditLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INFO", "":
		return AuditInfo, nil
	case "WARN", "WARNING":
		return AuditWarn, nil
	case "CRITICAL":
		return AuditCritical, nil
	case "SECURITY":
		return AuditSecurity, nil
	}
	return AuditInfo, fmt.Errorf("unknown audit level %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (al AuditLevel) MarshalText() ([]byte, error) {
	return []byte(al.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (al *AuditLevel) UnmarshalText(text []byte) error {
	level, err := ParseAuditLevel(string(text))
	if err != nil {
		return err
	}
	*al = level
	return nil
}

// AuditEvent represents a single auditable event
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	Level       AuditLevel             `json:"level"`
	Event       string                 `json:"event"`
	Component   string                 `json:"component"`
	Subject     string                 `json:"subject,omitempty"`
	OldValue    interface{}            `json:"old_value,omitempty"`
	NewValue    interface{}            `json:"new_value,omitempty"`
	ProcessID   int                    `json:"process_id"`
	ProcessName string                 `json:"process_name"`
	SessionID   string                 `json:"session_id"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Checksum    string                 `json:"checksum"`
}

// AuditConfig configures the audit system
type AuditConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	OutputFile    string        `json:"output_file" yaml:"output_file"`
	MinLevel      AuditLevel    `json:"min_level" yaml:"min_level"`
	BufferSize    int           `json:"buffer_size" yaml:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`
}

// DefaultAuditConfig returns an enabled configuration writing to the shared
// SQLite database.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:       true,
		OutputFile:    "",
		MinLevel:      AuditInfo,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
	}
}

func (c AuditConfig) withDefaults() AuditConfig {
	if !c.Enabled {
		return c
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = 5 * time.Second
	}
	return c
}

// AuditLogger buffers audit events and flushes them to a backend. A nil or
// disabled logger accepts every call and records nothing.
type AuditLogger struct {
	config      AuditConfig
	backend     auditBackend
	buffer      []AuditEvent
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
	processID   int
	processName string
	sessionID   string
}

// NewAuditLogger creates an audit logger. A disabled configuration yields a
// logger with no backend.
func NewAuditLogger(config AuditConfig) (*AuditLogger, error) {
	config = config.withDefaults()
	logger := &AuditLogger{
		config:      config,
		stopCh:      make(chan struct{}),
		processID:   os.Getpid(),
		processName: getProcessName(),
		sessionID:   uuid.NewString(),
	}
	if !config.Enabled {
		return logger, nil
	}

	backend, err := createAuditBackend(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit backend: %w", err)
	}
	logger.backend = backend
	logger.buffer = make([]AuditEvent, 0, config.BufferSize)

	if config.FlushInterval > 0 {
		logger.flushTicker = time.NewTicker(config.FlushInterval)
		go logger.flushLoop()
	}

	return logger, nil
}

// SessionID identifies this logger instance in every event it writes.
func (al *AuditLogger) SessionID() string {
	if al == nil {
		return ""
	}
	return al.sessionID
}

// Log records an audit event.
func (al *AuditLogger) Log(level AuditLevel, event, component, subject string, oldVal, newVal interface{}, context map[string]interface{}) {
	if al == nil || al.backend == nil || !al.config.Enabled || level < al.config.MinLevel {
		return
	}

	auditEvent := AuditEvent{
		Timestamp:   timecache.CachedTime().UTC(),
		Level:       level,
		Event:       event,
		Component:   component,
		Subject:     subject,
		OldValue:    oldVal,
		NewValue:    newVal,
		ProcessID:   al.processID,
		ProcessName: al.processName,
		SessionID:   al.sessionID,
		Context:     context,
	}
	auditEvent.Checksum = al.generateChecksum(auditEvent)

	al.bufferMu.Lock()
	al.buffer = append(al.buffer, auditEvent)
	if len(al.buffer) >= al.config.BufferSize {
		_ = al.flushBufferUnsafe()
	}
	al.bufferMu.Unlock()
}

// LogCommand records a command accepted by the switcher client.
func (al *AuditLogger) LogCommand(command, source string, context map[string]interface{}) {
	al.Log(AuditInfo, "command_"+command, "switcher", source, nil, nil, context)
}

// LogCommandFailure records a command the switcher client rejected.
func (al *AuditLogger) LogCommandFailure(command string, context map[string]interface{}, err error) {
	ctx := make(map[string]interface{}, len(context)+1)
	for k, v := range context {
		ctx[k] = v
	}
	ctx["error"] = err.Error()
	al.Log(AuditWarn, "command_failed", "switcher", command, nil, nil, ctx)
}

// LogMappingChange records an update (newVal set) or deletion (newVal nil)
// of a mapping entry.
func (al *AuditLogger) LogMappingChange(input string, oldVal, newVal interface{}) {
	event := "mapping_update"
	if newVal == nil {
		event = "mapping_delete"
	}
	al.Log(AuditCritical, event, "mapping", input, oldVal, newVal, nil)
}

// LogPaletteChange records a palette replacement.
func (al *AuditLogger) LogPaletteChange(oldVal, newVal interface{}) {
	al.Log(AuditCritical, "palette_change", "palette", "", oldVal, newVal, nil)
}

// LogConfigChange records a runtime configuration update.
func (al *AuditLogger) LogConfigChange(key string, oldVal, newVal interface{}) {
	al.Log(AuditCritical, "config_change", "config", key, oldVal, newVal, nil)
}

// LogLifecycle records a lifecycle transition of the engine.
func (al *AuditLogger) LogLifecycle(event string, context map[string]interface{}) {
	al.Log(AuditInfo, event, "lifecycle", "", nil, nil, context)
}

// LogFileEvent records a load or reload of a persisted file.
func (al *AuditLogger) LogFileEvent(event, path string) {
	al.Log(AuditInfo, event, "store", path, nil, nil, nil)
}

// Flush immediately writes all buffered events
func (al *AuditLogger) Flush() error {
	if al == nil || al.backend == nil {
		return nil
	}
	al.bufferMu.Lock()
	defer al.bufferMu.Unlock()
	return al.flushBufferUnsafe()
}

// Query flushes pending events and reads matching events back, newest first.
func (al *AuditLogger) Query(q AuditQuery) ([]AuditEvent, error) {
	if al == nil || al.backend == nil {
		return nil, nil
	}
	if err := al.Flush(); err != nil {
		return nil, err
	}
	return al.backend.Query(q)
}

// Stats flushes pending events and returns backend statistics.
func (al *AuditLogger) Stats() (*AuditStats, error) {
	if al == nil || al.backend == nil {
		return &AuditStats{EventsByLevel: map[string]int64{}, EventsByComponent: map[string]int64{}}, nil
	}
	if err := al.Flush(); err != nil {
		return nil, err
	}
	return al.backend.Stats()
}

// Close flushes and releases the backend. It is safe to call more than once.
func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}
	var err error
	al.closeOnce.Do(func() {
		close(al.stopCh)
		if al.flushTicker != nil {
			al.flushTicker.Stop()
		}
		if al.backend == nil {
			return
		}
		if flushErr := al.Flush(); flushErr != nil {
			err = fmt.Errorf("failed to flush audit logger during close: %w", flushErr)
			return
		}
		if closeErr := al.backend.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close audit backend: %w", closeErr)
		}
	})
	return err
}

func (al *AuditLogger) flushLoop() {
	for {
		select {
		case <-al.flushTicker.C:
			_ = al.Flush()
		case <-al.stopCh:
			return
		}
	}
}

// flushBufferUnsafe writes buffer to the backend (caller must hold bufferMu).
func (al *AuditLogger) flushBufferUnsafe() error {
	if len(al.buffer) == 0 {
		return nil
	}
	if err := al.backend.Write(al.buffer); err != nil {
		return fmt.Errorf("failed to write audit events to backend: %w", err)
	}
	al.buffer = al.buffer[:0]
	return nil
}

// generateChecksum creates a tamper-detection checksum using SHA-256
func (al *AuditLogger) generateChecksum(event AuditEvent) string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s:%v:%v",
		event.Timestamp.Format(time.RFC3339Nano),
		event.SessionID, event.Event, event.Component, event.Subject,
		event.OldValue, event.NewValue)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

func getProcessName() string {
	if len(os.Args) > 0 && os.Args[0] != "" {
		return filepath.Base(os.Args[0])
	}
	return "copilot"
}
