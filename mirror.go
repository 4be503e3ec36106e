// mirror.go: Mapping-driven mirroring of ME1 onto ME2 and the AUX buses
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
)

// Bus index limits. Mirrored AUX routes accept any of the ten AUX outputs a
// larger switcher may expose, manual AUX sets are limited to the four buses
// the palette manages.
const (
	me2Index        = 1
	maxMirroredAux  = 10
	maxManagedAux   = 4
	mirrorComponent = "mirror"
)

// mirror applies the mapping table and the AUX palette to the switcher.
type mirror struct {
	switcher Switcher
	mappings *MappingStore
	palettes *PaletteStore
	logs     *LogBuffer
	audit    *AuditLogger
}

func (m *mirror) log(args ...interface{}) {
	m.logs.Record(CategoryLog, args...)
}

func (m *mirror) fail(err error) {
	m.logs.Record(CategoryError, err)
}

// applyProgram mirrors an ME1 program selection.
func (m *mirror) applyProgram(source int) {
	id := strconv.Itoa(source)
	entry, ok := m.mappings.Lookup(id)
	if !ok {
		m.log(fmt.Sprintf("No mapping found for M/E1 program input %d, skipping.", source))
		return
	}

	m.log(fmt.Sprintf("M/E1 program changed to: %d", source))
	if entry.ME2 != nil {
		m.log(fmt.Sprintf("Mirroring M/E2 program to: %d", *entry.ME2))
		m.command("program", *entry.ME2, me2Index, m.switcher.ChangeProgramInput)
	} else {
		m.log("Skipping M/E2 program update due to null or empty mapping.")
	}

	for _, target := range entry.AuxTargets() {
		if target.Index < 0 || target.Index >= maxMirroredAux {
			m.log(fmt.Sprintf("Invalid AUX key %s in mapping for input %d, skipping.", target.Key, source))
			continue
		}
		m.log(fmt.Sprintf("Setting %s to input %d", target.Key, target.Input))
		m.command("aux", target.Input, target.Index, m.switcher.SetAuxSource)
	}
}

// applyPreview mirrors an ME1 preview selection. Only the ME2 route applies.
func (m *mirror) applyPreview(source int) {
	id := strconv.Itoa(source)
	entry, ok := m.mappings.Lookup(id)
	if !ok {
		m.log(fmt.Sprintf("No mapping found for M/E1 preview input %d, skipping.", source))
		return
	}

	m.log(fmt.Sprintf("M/E1 preview changed to: %d", source))
	if entry.ME2 == nil {
		m.log("Skipping M/E2 preview update due to null or empty mapping.")
		return
	}
	m.log(fmt.Sprintf("Mirroring M/E2 preview to: %d", *entry.ME2))
	m.command("preview", *entry.ME2, me2Index, m.switcher.ChangePreviewInput)
}

// setAuxWithSync routes input to auxID and then to every unlocked AUX whose
// palette entry follows auxID. Followers of followers are not visited.
func (m *mirror) setAuxWithSync(auxID string, input int) error {
	index, err := managedAuxIndex(auxID)
	if err != nil {
		m.log("Invalid AUX ID: " + auxID)
		return err
	}

	m.log(fmt.Sprintf("Setting %s (index %d) to input %d", auxID, index, input))
	primaryErr := m.command("aux", input, index, m.switcher.SetAuxSource)

	palette := m.palettes.Palette()
	for _, follower := range palette.Followers(auxID) {
		followerIndex, err := managedAuxIndex(follower)
		if err != nil {
			m.log(fmt.Sprintf("Skipping palette entry %s, not a managed AUX bus.", follower))
			continue
		}
		m.log(fmt.Sprintf("Syncing %s to follow %s with input %d", follower, auxID, input))
		_ = m.command("aux", input, followerIndex, m.switcher.SetAuxSource)
	}
	return primaryErr
}

// command issues one switcher command. Failures are reported on the error
// channel and returned; they never abort the caller's batch.
func (m *mirror) command(kind string, input, bus int, send func(input, bus int) error) error {
	ctx := map[string]interface{}{"input": input, "bus": bus}
	if err := send(input, bus); err != nil {
		wrapped := errors.Wrap(err, ErrCodeConnection, "switcher rejected "+kind+" command").
			WithContext("input", input).
			WithContext("bus", bus)
		m.fail(wrapped)
		m.audit.LogCommandFailure(kind, ctx, err)
		return wrapped
	}
	m.audit.LogCommand(kind, mirrorComponent, ctx)
	return nil
}

// managedAuxIndex resolves "AUX<n>" into a zero-based index within the four
// palette-managed buses.
func managedAuxIndex(auxID string) (int, error) {
	if !strings.HasPrefix(auxID, auxPrefix) {
		return -1, errors.New(ErrCodeInvalidRequest, "invalid AUX id").WithContext("aux_id", auxID)
	}
	index := auxKeyIndex(auxID)
	if index < 0 || index >= maxManagedAux {
		return -1, errors.New(ErrCodeInvalidRequest, "AUX id out of range").WithContext("aux_id", auxID)
	}
	return index, nil
}
