// integration_test.go: Tests for the FlashFlags configuration manager
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"testing"
	"time"
)

func TestConfigManagerAppliesOnlyChangedFlags(t *testing.T) {
	base := DefaultConfig()
	base.MappingFile = "from-file.json"

	cm := NewConfigManager("copilot-test").
		SetDescription("test").
		SetVersion("0.0.0").
		ConfigFlags(base)
	if err := cm.Parse([]string{"--address", "10.4.4.4", "--watch-files", "--watch-interval", "250ms"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg := cm.ApplyTo(base)
	if cfg.Address != "10.4.4.4" {
		t.Errorf("Address = %q", cfg.Address)
	}
	if cfg.MappingFile != "from-file.json" {
		t.Errorf("untouched flag overwrote MappingFile: %q", cfg.MappingFile)
	}
	if !cfg.WatchFiles || cfg.WatchInterval != 250*time.Millisecond {
		t.Errorf("watch = %v %v", cfg.WatchFiles, cfg.WatchInterval)
	}
}

func TestConfigManagerExplicitDefaultOverridesFile(t *testing.T) {
	defaults := DefaultConfig()
	cm := NewConfigManager("copilot-test").ConfigFlags(defaults)
	if err := cm.Parse([]string{"--mapping-file=" + defaults.MappingFile, "--auto-start=false"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	fromFile := defaults
	fromFile.MappingFile = "from-yaml.json"
	fromFile.AutoStart = true
	fromFile.PaletteFile = "palette-from-yaml.json"

	cfg := cm.ApplyTo(fromFile)
	if cfg.MappingFile != defaults.MappingFile {
		t.Errorf("MappingFile = %q, want the explicit %q", cfg.MappingFile, defaults.MappingFile)
	}
	if cfg.AutoStart {
		t.Error("explicit --auto-start=false was ignored")
	}
	if cfg.PaletteFile != "palette-from-yaml.json" {
		t.Errorf("unset flag overwrote PaletteFile: %q", cfg.PaletteFile)
	}
}

func TestConfigManagerHelp(t *testing.T) {
	cm := NewConfigManager("copilot-test").ConfigFlags(DefaultConfig())
	if err := cm.Parse([]string{"-h"}); err != ErrHelpRequested {
		t.Errorf("expected ErrHelpRequested, got %v", err)
	}
}

func TestConfigManagerFlagNames(t *testing.T) {
	cm := NewConfigManager("copilot-test").ConfigFlags(DefaultConfig())
	names := cm.FlagNames()
	if len(names) != 10 {
		t.Fatalf("expected 10 flags, got %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("flag names not sorted: %v", names)
		}
	}
}

func TestConfigManagerFlagToEnvKey(t *testing.T) {
	cm := NewConfigManager("copilot-test")
	if got := cm.FlagToEnvKey("watch-interval"); got != "COPILOT_TEST_WATCH_INTERVAL" {
		t.Errorf("FlagToEnvKey = %s", got)
	}
}
