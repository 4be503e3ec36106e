// state.go: Saving and loading engine state snapshots
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// StateDump is the document written by SaveState.
type StateDump struct {
	SavedAt   time.Time    `json:"savedAt"`
	Lifecycle string       `json:"lifecycle"`
	UptimeMs  int64        `json:"uptimeMs"`
	Routing   RoutingState `json:"routing"`
	Inputs    InputCatalog `json:"inputs"`
	Mapping   MappingTable `json:"mapping"`
	Palette   AuxPalette   `json:"auxPalettes"`
	Config    Config       `json:"config"`
}

// DumpState captures the current engine state.
func (c *Copilot) DumpState() StateDump {
	return StateDump{
		SavedAt:   time.Now().UTC(),
		Lifecycle: c.Lifecycle().String(),
		UptimeMs:  c.Uptime().Milliseconds(),
		Routing:   c.RoutingState(),
		Inputs:    c.Inputs(),
		Mapping:   c.Mapping(),
		Palette:   c.AuxPalettes(),
		Config:    c.Config(),
	}
}

// SaveState writes a state dump to path, or to the configured SaveStateFile
// when path is blank.
func (c *Copilot) SaveState(path string) error {
	if strings.TrimSpace(path) == "" {
		path = c.Config().SaveStateFile
	}

	data, err := encodeJSON(c.DumpState(), stateIndent)
	if err == nil {
		err = atomicWrite(path, data)
	}
	if err != nil {
		wrapped := errors.Wrap(err, ErrCodeStateIO, "failed to save state").WithContext("path", path)
		c.reportError(wrapped)
		return wrapped
	}
	c.debug("State saved to " + path)
	return nil
}

// LoadState reads a state dump from path, or from the configured
// SaveStateFile when path is blank. A missing file returns nil and no error.
// The engine itself is not modified.
func (c *Copilot) LoadState(path string) (*StateDump, error) {
	if strings.TrimSpace(path) == "" {
		path = c.Config().SaveStateFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		wrapped := errors.Wrap(err, ErrCodeStateIO, "failed to read state").WithContext("path", path)
		c.reportError(wrapped)
		return nil, wrapped
	}

	var dump StateDump
	if err := json.Unmarshal(data, &dump); err != nil {
		wrapped := errors.Wrap(err, ErrCodeStateIO, "malformed state file").WithContext("path", path)
		c.reportError(wrapped)
		return nil, wrapped
	}
	c.debug("Loaded state:", dump)
	return &dump, nil
}

// ReadStateFile decodes a state dump without an engine.
func ReadStateFile(path string) (*StateDump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeStateIO, "failed to read state").WithContext("path", path)
	}
	var dump StateDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, errors.Wrap(err, ErrCodeStateIO, "malformed state file").WithContext("path", path)
	}
	return &dump, nil
}
