// config_file.go: Loading the copilot configuration from YAML or JSON files
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/agilira/go-errors"
	"go.yaml.in/yaml/v3"
)

// LoadConfigFile reads a configuration file. Files ending in .json are
// decoded as JSON (camelCase keys), anything else as YAML (snake_case keys).
// Unset fields keep their defaults.
func LoadConfigFile(path string) (*Config, error) {
	if err := validateFilePath(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to read configuration file").
			WithContext("path", path)
	}
	config, err := ParseConfig(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "malformed configuration file").
			WithContext("path", path)
	}
	return config, nil
}

// ParseConfig decodes a configuration document and fills defaults.
func ParseConfig(data []byte, isJSON bool) (*Config, error) {
	var config Config
	if len(bytes.TrimSpace(data)) > 0 {
		var err error
		if isJSON {
			err = json.Unmarshal(data, &config)
		} else {
			err = yaml.Unmarshal(data, &config)
		}
		if err != nil {
			return nil, err
		}
	}
	return config.WithDefaults(), nil
}

// LoadConfigMultiSource loads configuration with precedence:
// 1. Environment variables (highest priority)
// 2. File configuration
// 3. Default values (lowest priority)
//
// An empty configFile skips the file layer.
func LoadConfigMultiSource(configFile string) (*Config, error) {
	base := DefaultConfig()
	if configFile != "" {
		fileConfig, err := LoadConfigFile(configFile)
		if err != nil {
			return nil, err
		}
		base = *fileConfig
	}
	return LoadConfigFromEnv(base)
}
