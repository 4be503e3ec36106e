// env_config.go: Environment variable support for the copilot configuration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// Environment variables understood by LoadConfigFromEnv.
const (
	EnvAddress            = "COPILOT_ADDRESS"
	EnvMappingFile        = "COPILOT_MAPPING_FILE"
	EnvPaletteFile        = "COPILOT_PALETTE_FILE"
	EnvSaveStateFile      = "COPILOT_SAVE_STATE_FILE"
	EnvLogBufferSize      = "COPILOT_LOG_BUFFER_SIZE"
	EnvAutoStart          = "COPILOT_AUTO_START"
	EnvWatchFiles         = "COPILOT_WATCH_FILES"
	EnvWatchInterval      = "COPILOT_WATCH_INTERVAL"
	EnvAuditEnabled       = "COPILOT_AUDIT_ENABLED"
	EnvAuditOutputFile    = "COPILOT_AUDIT_OUTPUT_FILE"
	EnvAuditMinLevel      = "COPILOT_AUDIT_MIN_LEVEL"
	EnvAuditBufferSize    = "COPILOT_AUDIT_BUFFER_SIZE"
	EnvAuditFlushInterval = "COPILOT_AUDIT_FLUSH_INTERVAL"
)

// LoadConfigFromEnv overlays COPILOT_* environment variables on base.
// Unset variables leave base untouched; malformed numbers and durations are
// reported as ErrCodeInvalidConfig.
func LoadConfigFromEnv(base Config) (*Config, error) {
	config := base

	if v := os.Getenv(EnvAddress); v != "" {
		config.Address = v
	}
	if v := os.Getenv(EnvMappingFile); v != "" {
		config.MappingFile = v
	}
	if v := os.Getenv(EnvPaletteFile); v != "" {
		config.PaletteFile = v
	}
	if v := os.Getenv(EnvSaveStateFile); v != "" {
		config.SaveStateFile = v
	}
	if v := os.Getenv(EnvAutoStart); v != "" {
		config.AutoStart = parseBool(v)
	}
	if v := os.Getenv(EnvWatchFiles); v != "" {
		config.WatchFiles = parseBool(v)
	}

	var err error
	if config.LogBufferSize, err = envInt(EnvLogBufferSize, config.LogBufferSize); err != nil {
		return nil, err
	}
	if config.WatchInterval, err = envDuration(EnvWatchInterval, config.WatchInterval); err != nil {
		return nil, err
	}
	if err := loadAuditEnv(&config.Audit); err != nil {
		return nil, err
	}

	return config.WithDefaults(), nil
}

func loadAuditEnv(audit *AuditConfig) error {
	if v := os.Getenv(EnvAuditEnabled); v != "" {
		audit.Enabled = parseBool(v)
	}
	if v := os.Getenv(EnvAuditOutputFile); v != "" {
		audit.OutputFile = v
	}
	if v := os.Getenv(EnvAuditMinLevel); v != "" {
		level, err := ParseAuditLevel(v)
		if err != nil {
			return errors.Wrap(err, ErrCodeInvalidConfig, "invalid audit level").
				WithContext("variable", EnvAuditMinLevel)
		}
		audit.MinLevel = level
	}

	var err error
	if audit.BufferSize, err = envInt(EnvAuditBufferSize, audit.BufferSize); err != nil {
		return err
	}
	audit.FlushInterval, err = envDuration(EnvAuditFlushInterval, audit.FlushInterval)
	return err
}

func envInt(key string, current int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return current, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return current, errors.Wrap(err, ErrCodeInvalidConfig, "invalid integer in environment").
			WithContext("variable", key)
	}
	return n, nil
}

func envDuration(key string, current time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return current, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return current, errors.Wrap(err, ErrCodeInvalidConfig, "invalid duration in environment").
			WithContext("variable", key)
	}
	return d, nil
}

// parseBool parses boolean values from environment variables
// Supports: true/false, 1/0, yes/no, on/off, enabled/disabled
func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on", "enabled":
		return true
	default:
		return false
	}
}

// GetEnvWithDefault returns environment variable value or default if not set
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvDurationWithDefault returns environment variable as duration or default
func GetEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvIntWithDefault returns environment variable as int or default
func GetEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvBoolWithDefault returns environment variable as bool or default
func GetEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return parseBool(value)
	}
	return defaultValue
}
