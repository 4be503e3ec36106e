// config.go: Configuration for the copilot engine
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// Default configuration values.
const (
	DefaultAddress       = "192.168.1.200"
	DefaultMappingFile   = "mapping.json"
	DefaultPaletteFile   = "aux_palettes.json"
	DefaultSaveStateFile = "copilot-state.json"
	DefaultWatchInterval = 2 * time.Second

	minWatchInterval = 100 * time.Millisecond
	maxLogBufferSize = 10000
)

// Config configures a Copilot. The zero value is usable after WithDefaults.
type Config struct {
	// Address of the switcher the client connects to.
	Address string `json:"address" yaml:"address"`

	// MappingFile is the JSON mapping table.
	MappingFile string `json:"mappingFile" yaml:"mapping_file"`

	// PaletteFile is the JSON AUX palette.
	PaletteFile string `json:"paletteFile" yaml:"palette_file"`

	// SaveStateFile is the default target of SaveState and LoadState.
	SaveStateFile string `json:"saveStateFile" yaml:"save_state_file"`

	// LogBufferSize is the per-category capacity of the diagnostic buffer.
	LogBufferSize int `json:"logBufferSize" yaml:"log_buffer_size"`

	// AutoStart connects to the switcher as soon as the engine is built.
	AutoStart bool `json:"autoStart" yaml:"auto_start"`

	// WatchFiles reloads the mapping and palette files when they are edited
	// outside the engine, polling every WatchInterval.
	WatchFiles    bool          `json:"watchFiles" yaml:"watch_files"`
	WatchInterval time.Duration `json:"watchInterval" yaml:"watch_interval"`

	// Audit configures the audit trail. Disabled unless Enabled is set.
	Audit AuditConfig `json:"audit" yaml:"audit"`
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return *(&Config{}).WithDefaults()
}

// WithDefaults returns a copy with every unset field filled in.
func (c *Config) WithDefaults() *Config {
	config := *c

	if strings.TrimSpace(config.Address) == "" {
		config.Address = DefaultAddress
	}
	if strings.TrimSpace(config.MappingFile) == "" {
		config.MappingFile = DefaultMappingFile
	}
	if strings.TrimSpace(config.PaletteFile) == "" {
		config.PaletteFile = DefaultPaletteFile
	}
	if strings.TrimSpace(config.SaveStateFile) == "" {
		config.SaveStateFile = DefaultSaveStateFile
	}
	if config.LogBufferSize <= 0 {
		config.LogBufferSize = DefaultLogBufferSize
	}
	if config.WatchInterval <= 0 {
		config.WatchInterval = DefaultWatchInterval
	}
	config.Audit = config.Audit.withDefaults()

	return &config
}

// ValidationResult collects the outcome of a configuration check.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// String returns a human-readable summary.
func (vr ValidationResult) String() string {
	if vr.Valid {
		if len(vr.Warnings) == 0 {
			return "Configuration is valid"
		}
		return fmt.Sprintf("Configuration is valid with %d warning(s)", len(vr.Warnings))
	}
	return fmt.Sprintf("Configuration is invalid: %d error(s), %d warning(s)",
		len(vr.Errors), len(vr.Warnings))
}

// Validate returns the first validation error, coded ErrCodeInvalidConfig.
func (c *Config) Validate() error {
	result := c.ValidateDetailed()
	if result.Valid {
		return nil
	}
	return errors.New(ErrCodeInvalidConfig, result.Errors[0])
}

// ValidateDetailed checks the configuration and reports every problem found.
func (c *Config) ValidateDetailed() ValidationResult {
	result := ValidationResult{Valid: true}

	if strings.TrimSpace(c.Address) == "" {
		result.Errors = append(result.Errors, "switcher address is required")
	}
	files := []struct{ name, path string }{
		{"mapping file", c.MappingFile},
		{"palette file", c.PaletteFile},
		{"save state file", c.SaveStateFile},
	}
	for _, f := range files {
		if err := validateFilePath(f.path); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", f.name, err))
		}
	}
	if c.LogBufferSize <= 0 {
		result.Errors = append(result.Errors, "log buffer size must be positive")
	} else if c.LogBufferSize > maxLogBufferSize {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("log buffer size %d exceeds recommended limit (%d)", c.LogBufferSize, maxLogBufferSize))
	}
	if c.WatchFiles && c.WatchInterval < minWatchInterval {
		result.Errors = append(result.Errors,
			fmt.Sprintf("watch interval should be at least %s", minWatchInterval))
	}
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			result.Errors = append(result.Errors, "audit buffer size must be positive")
		}
		if c.Audit.FlushInterval < 0 {
			result.Errors = append(result.Errors, "audit flush interval must not be negative")
		}
		if c.Audit.OutputFile != "" {
			if err := validateFilePath(c.Audit.OutputFile); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("audit output file: %v", err))
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// validateFilePath rejects empty paths and paths that climb out of their base.
func validateFilePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is empty")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains a null byte")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal is not allowed")
		}
	}
	return nil
}
