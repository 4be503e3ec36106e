// config_test.go: Tests for configuration defaults, validation and loading
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := (&Config{Address: "10.0.0.5"}).WithDefaults()
	if cfg.Address != "10.0.0.5" {
		t.Errorf("explicit address overwritten: %s", cfg.Address)
	}
	if cfg.MappingFile != DefaultMappingFile || cfg.PaletteFile != DefaultPaletteFile || cfg.SaveStateFile != DefaultSaveStateFile {
		t.Errorf("file defaults not applied: %+v", cfg)
	}
	if cfg.LogBufferSize != DefaultLogBufferSize || cfg.WatchInterval != DefaultWatchInterval {
		t.Errorf("numeric defaults not applied: %+v", cfg)
	}
	if cfg.AutoStart {
		t.Error("AutoStart should default to false")
	}
	if cfg.Audit.Enabled {
		t.Error("audit should be disabled unless requested")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateDetailedReportsEveryProblem(t *testing.T) {
	cfg := Config{
		Address:       " ",
		MappingFile:   "../mapping.json",
		PaletteFile:   "palette\x00.json",
		SaveStateFile: "state.json",
		LogBufferSize: 0,
		WatchFiles:    true,
		WatchInterval: time.Millisecond,
	}
	result := cfg.ValidateDetailed()
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	if len(result.Errors) != 5 {
		t.Fatalf("expected 5 errors, got %d: %v", len(result.Errors), result.Errors)
	}
	if !strings.Contains(result.Errors[0], "address") || !strings.Contains(result.Errors[1], "mapping file") {
		t.Errorf("errors out of order: %v", result.Errors)
	}
	if err := cfg.Validate(); !IsCode(err, ErrCodeInvalidConfig) {
		t.Errorf("Validate error = %v", err)
	}
}

func TestValidateWarnsOnLargeBuffer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogBufferSize = maxLogBufferSize + 1
	result := cfg.ValidateDetailed()
	if !result.Valid || len(result.Warnings) != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestParseConfigYAML(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
address: 10.1.1.1
mapping_file: /srv/mapping.json
auto_start: true
watch_files: true
watch_interval: 500ms
audit:
  enabled: true
  output_file: /var/log/copilot/audit.jsonl
  min_level: WARN
`), false)
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.Address != "10.1.1.1" || cfg.MappingFile != "/srv/mapping.json" || !cfg.AutoStart {
		t.Errorf("core fields = %+v", cfg)
	}
	if !cfg.WatchFiles || cfg.WatchInterval != 500*time.Millisecond {
		t.Errorf("watch fields = %v %v", cfg.WatchFiles, cfg.WatchInterval)
	}
	if !cfg.Audit.Enabled || cfg.Audit.MinLevel != AuditWarn || cfg.Audit.BufferSize != 1000 {
		t.Errorf("audit = %+v", cfg.Audit)
	}
	if cfg.PaletteFile != DefaultPaletteFile {
		t.Errorf("unset palette file = %q", cfg.PaletteFile)
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copilot.json")
	writeFile(t, path, `{"address": "10.2.2.2", "saveStateFile": "dump.json", "logBufferSize": 50}`)

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	if cfg.Address != "10.2.2.2" || cfg.SaveStateFile != "dump.json" || cfg.LogBufferSize != 50 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadConfigFile(filepath.Join(dir, "missing.yaml")); !IsCode(err, ErrCodeInvalidConfig) {
		t.Errorf("missing file error = %v", err)
	}
	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "address: [unclosed")
	if _, err := LoadConfigFile(bad); !IsCode(err, ErrCodeInvalidConfig) {
		t.Errorf("malformed file error = %v", err)
	}
}

func TestLoadConfigMultiSourceEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copilot.yaml")
	writeFile(t, path, "address: 10.3.3.3\nmapping_file: from-file.json\n")
	t.Setenv(EnvMappingFile, "from-env.json")

	cfg, err := LoadConfigMultiSource(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Address != "10.3.3.3" || cfg.MappingFile != "from-env.json" {
		t.Errorf("cfg = %+v", cfg)
	}
}
