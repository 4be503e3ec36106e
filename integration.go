// integration.go: Command-line configuration layer built on FlashFlags
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	flashflags "github.com/agilira/flash-flags"
)

// ErrHelpRequested is returned by Parse when -h or --help is present.
var ErrHelpRequested = fmt.Errorf("help requested")

// Flag names bound to Config fields by ApplyTo.
const (
	FlagAddress       = "address"
	FlagMappingFile   = "mapping-file"
	FlagPaletteFile   = "palette-file"
	FlagSaveStateFile = "save-state-file"
	FlagLogBufferSize = "log-buffer-size"
	FlagAutoStart     = "auto-start"
	FlagWatchFiles    = "watch-files"
	FlagWatchInterval = "watch-interval"
	FlagAuditEnabled  = "audit"
	FlagAuditFile     = "audit-file"
)

// ConfigManager layers command-line flags (and FlashFlags' environment
// lookup) over a Config assembled from files and COPILOT_* variables.
type ConfigManager struct {
	flags *flashflags.FlagSet

	appName        string
	appDescription string
	appVersion     string
}

// NewConfigManager creates a manager with no flags.
func NewConfigManager(appName string) *ConfigManager {
	return &ConfigManager{
		flags:   flashflags.New(appName),
		appName: appName,
	}
}

// SetDescription sets the application description for help text
func (cm *ConfigManager) SetDescription(description string) *ConfigManager {
	cm.appDescription = description
	cm.flags.SetDescription(description)
	return cm
}

// SetVersion sets the application version for help text
func (cm *ConfigManager) SetVersion(version string) *ConfigManager {
	cm.appVersion = version
	cm.flags.SetVersion(version)
	return cm
}

// StringFlag adds a string configuration flag
func (cm *ConfigManager) StringFlag(name, defaultValue, usage string) *ConfigManager {
	cm.flags.String(name, defaultValue, usage)
	return cm
}

// IntFlag adds an integer configuration flag
func (cm *ConfigManager) IntFlag(name string, defaultValue int, usage string) *ConfigManager {
	cm.flags.Int(name, defaultValue, usage)
	return cm
}

// BoolFlag adds a boolean configuration flag
func (cm *ConfigManager) BoolFlag(name string, defaultValue bool, usage string) *ConfigManager {
	cm.flags.Bool(name, defaultValue, usage)
	return cm
}

// DurationFlag adds a duration configuration flag
func (cm *ConfigManager) DurationFlag(name string, defaultValue time.Duration, usage string) *ConfigManager {
	cm.flags.Duration(name, defaultValue, usage)
	return cm
}

// ConfigFlags registers one flag per Config field, using base for defaults.
func (cm *ConfigManager) ConfigFlags(base Config) *ConfigManager {
	return cm.
		StringFlag(FlagAddress, base.Address, "Switcher address").
		StringFlag(FlagMappingFile, base.MappingFile, "Mapping table file").
		StringFlag(FlagPaletteFile, base.PaletteFile, "AUX palette file").
		StringFlag(FlagSaveStateFile, base.SaveStateFile, "State dump file").
		IntFlag(FlagLogBufferSize, base.LogBufferSize, "Diagnostic buffer size per category").
		BoolFlag(FlagAutoStart, base.AutoStart, "Connect to the switcher on startup").
		BoolFlag(FlagWatchFiles, base.WatchFiles, "Reload mapping and palette files on change").
		DurationFlag(FlagWatchInterval, base.WatchInterval, "Polling interval for watched files").
		BoolFlag(FlagAuditEnabled, base.Audit.Enabled, "Enable the audit trail").
		StringFlag(FlagAuditFile, base.Audit.OutputFile, "Audit trail file (.jsonl or SQLite)")
}

// Parse parses command-line arguments. Environment variables prefixed with
// the upper-cased application name are consulted by FlashFlags.
func (cm *ConfigManager) Parse(args []string) error {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return ErrHelpRequested
		}
	}

	cm.flags.SetEnvPrefix(cm.envPrefix())
	if err := cm.flags.Parse(args); err != nil {
		return fmt.Errorf("failed to parse command-line flags: %w", err)
	}
	return nil
}

// GetString retrieves a string configuration value
func (cm *ConfigManager) GetString(key string) string {
	return cm.flags.GetString(key)
}

// GetInt retrieves an integer configuration value
func (cm *ConfigManager) GetInt(key string) int {
	return cm.flags.GetInt(key)
}

// GetBool retrieves a boolean configuration value
func (cm *ConfigManager) GetBool(key string) bool {
	return cm.flags.GetBool(key)
}

// GetDuration retrieves a duration configuration value
func (cm *ConfigManager) GetDuration(key string) time.Duration {
	return cm.flags.GetDuration(key)
}

// ApplyTo returns base with every Config flag that was set on the command
// line or through the environment written over it, even when the value
// equals the registration default.
func (cm *ConfigManager) ApplyTo(base Config) *Config {
	config := base

	if v, ok := cm.changedString(FlagAddress); ok {
		config.Address = v
	}
	if v, ok := cm.changedString(FlagMappingFile); ok {
		config.MappingFile = v
	}
	if v, ok := cm.changedString(FlagPaletteFile); ok {
		config.PaletteFile = v
	}
	if v, ok := cm.changedString(FlagSaveStateFile); ok {
		config.SaveStateFile = v
	}
	if v, ok := cm.changedString(FlagAuditFile); ok {
		config.Audit.OutputFile = v
	}
	if v, ok := cm.changedInt(FlagLogBufferSize); ok {
		config.LogBufferSize = v
	}
	if v, ok := cm.changedBool(FlagAutoStart); ok {
		config.AutoStart = v
	}
	if v, ok := cm.changedBool(FlagWatchFiles); ok {
		config.WatchFiles = v
	}
	if v, ok := cm.changedBool(FlagAuditEnabled); ok {
		config.Audit.Enabled = v
	}
	if v, ok := cm.changedDuration(FlagWatchInterval); ok {
		config.WatchInterval = v
	}

	return config.WithDefaults()
}

func (cm *ConfigManager) changedString(name string) (string, bool) {
	if !cm.flags.Changed(name) {
		return "", false
	}
	return cm.flags.GetString(name), true
}

func (cm *ConfigManager) changedInt(name string) (int, bool) {
	if !cm.flags.Changed(name) {
		return 0, false
	}
	return cm.flags.GetInt(name), true
}

func (cm *ConfigManager) changedBool(name string) (bool, bool) {
	if !cm.flags.Changed(name) {
		return false, false
	}
	return cm.flags.GetBool(name), true
}

func (cm *ConfigManager) changedDuration(name string) (time.Duration, bool) {
	if !cm.flags.Changed(name) {
		return 0, false
	}
	return cm.flags.GetDuration(name), true
}

// PrintUsage prints help information for all flags
func (cm *ConfigManager) PrintUsage() {
	cm.flags.PrintHelp()
}

// FlagNames returns the registered flag names, sorted.
func (cm *ConfigManager) FlagNames() []string {
	var names []string
	cm.flags.VisitAll(func(flag *flashflags.Flag) {
		names = append(names, flag.Name())
	})
	sort.Strings(names)
	return names
}

// FlagToEnvKey converts "watch-interval" into "COPILOTD_WATCH_INTERVAL" for
// an application named copilotd.
func (cm *ConfigManager) FlagToEnvKey(flagName string) string {
	return cm.envPrefix() + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func (cm *ConfigManager) envPrefix() string {
	return strings.ToUpper(strings.ReplaceAll(cm.appName, "-", "_"))
}
