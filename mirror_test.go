// mirror_test.go: Tests for ME1 mirroring and AUX palette sync
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"fmt"
	"strings"
	"testing"
)

func TestMirrorProgramIssuesMappedCommands(t *testing.T) {
	c, sw, _ := newTestCopilot(t, `{ "3": { "ME2": 6, "AUX1": 2 } }`)

	sw.selectProgram(3)

	assertCalls(t, sw.Calls(),
		recordedCall{"ChangeProgramInput", 6, 1},
		recordedCall{"SetAuxSource", 2, 0},
	)
	if got := c.RoutingState()[BusME1Program]; got != 3 {
		t.Errorf("ME1-Program = %d, want 3", got)
	}
}

func TestMirrorProgramWithoutMappingIssuesNothing(t *testing.T) {
	c, sw, _ := newTestCopilot(t, `{ "3": { "ME2": 6 } }`)
	logs := captureLogs(c)
	before := len(logs())

	sw.selectProgram(5)

	assertCalls(t, sw.Calls())
	lines := logs()[before:]
	if len(lines) != 1 {
		t.Fatalf("expected exactly one log line, got %d: %v", len(lines), lines)
	}
	if lines[0] != "No mapping found for M/E1 program input 5, skipping." {
		t.Errorf("unexpected log line %q", lines[0])
	}
}

func TestMirrorProgramAuxOrderAndBounds(t *testing.T) {
	_, sw, _ := newTestCopilot(t, `{
		"1": { "AUX10": 9, "AUX3": 4, "AUX1": 5, "AUX11": 8, "AUXfoo": 7 }
	}`)

	sw.selectProgram(1)

	assertCalls(t, sw.Calls(),
		recordedCall{"SetAuxSource", 5, 0},
		recordedCall{"SetAuxSource", 4, 2},
		recordedCall{"SetAuxSource", 9, 9},
	)
}

func TestMirrorProgramNullME2SkipsME2(t *testing.T) {
	c, sw, _ := newTestCopilot(t, `{ "2": { "ME2": null, "AUX2": 3 } }`)
	logs := captureLogs(c)

	sw.selectProgram(2)

	assertCalls(t, sw.Calls(), recordedCall{"SetAuxSource", 3, 1})
	found := false
	for _, line := range logs() {
		if line == "Skipping M/E2 program update due to null or empty mapping." {
			found = true
		}
	}
	if !found {
		t.Error("expected a skip line for the null ME2 mapping")
	}
}

func TestMirrorPreviewOnlyTouchesME2(t *testing.T) {
	_, sw, _ := newTestCopilot(t, `{ "3": { "ME2": 6, "AUX1": 2 } }`)

	sw.selectPreview(3)

	assertCalls(t, sw.Calls(), recordedCall{"ChangePreviewInput", 6, 1})
}

func TestMirrorContinuesAfterCommandFailure(t *testing.T) {
	c, sw, _ := newTestCopilot(t, `{ "3": { "ME2": 6, "AUX1": 2, "AUX2": 4 } }`)
	sw.failAuxBus = 0

	var errs []string
	c.On(EventError, func(ev Event) { errs = append(errs, fmt.Sprint(ev.Args...)) })

	sw.selectProgram(3)

	assertCalls(t, sw.Calls(),
		recordedCall{"ChangeProgramInput", 6, 1},
		recordedCall{"SetAuxSource", 2, 0},
		recordedCall{"SetAuxSource", 4, 1},
	)
	if len(errs) != 1 {
		t.Fatalf("expected one error event, got %v", errs)
	}
}

func TestSetAuxWithSyncFollowsUnlockedPalette(t *testing.T) {
	c, sw, _ := newTestCopilot(t, "")
	if err := c.UpdateAuxPalettes(AuxPalette{
		"AUX2": {SyncTarget: "AUX1"},
		"AUX3": {SyncTarget: "AUX1", IsLocked: true},
		"AUX4": {SyncTarget: "AUX2"},
	}); err != nil {
		t.Fatalf("UpdateAuxPalettes failed: %v", err)
	}

	if err := c.SetAuxWithSync("AUX1", 7); err != nil {
		t.Fatalf("SetAuxWithSync failed: %v", err)
	}

	assertCalls(t, sw.Calls(),
		recordedCall{"SetAuxSource", 7, 0},
		recordedCall{"SetAuxSource", 7, 1},
	)
}

func TestSetAuxWithSyncRejectsUnknownAux(t *testing.T) {
	c, sw, _ := newTestCopilot(t, "")
	logs := captureLogs(c)

	for _, id := range []string{"AUX0", "AUX5", "ME1", "aux1"} {
		err := c.SetAuxWithSync(id, 3)
		if !IsCode(err, ErrCodeInvalidRequest) {
			t.Errorf("SetAuxWithSync(%q) error = %v, want %s", id, err, ErrCodeInvalidRequest)
		}
	}
	assertCalls(t, sw.Calls())

	invalid := 0
	for _, line := range logs() {
		if strings.HasPrefix(line, "Invalid AUX ID: ") {
			invalid++
		}
	}
	if invalid != 4 {
		t.Errorf("expected 4 invalid AUX lines, got %d", invalid)
	}
}

func TestSetAuxWithSyncFollowersRunAfterPrimaryFailure(t *testing.T) {
	c, sw, _ := newTestCopilot(t, "")
	if err := c.UpdateAuxPalettes(AuxPalette{"AUX2": {SyncTarget: "AUX1"}}); err != nil {
		t.Fatalf("UpdateAuxPalettes failed: %v", err)
	}
	sw.failAuxBus = 0

	err := c.SetAuxWithSync("AUX1", 4)
	if !IsCode(err, ErrCodeConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	assertCalls(t, sw.Calls(),
		recordedCall{"SetAuxSource", 4, 0},
		recordedCall{"SetAuxSource", 4, 1},
	)
}

func TestManagedAuxIndex(t *testing.T) {
	tests := []struct {
		id    string
		index int
		ok    bool
	}{
		{"AUX1", 0, true},
		{"AUX4", 3, true},
		{"AUX5", -1, false},
		{"AUX0", -1, false},
		{"AUXx", -1, false},
		{"", -1, false},
	}
	for _, tt := range tests {
		index, err := managedAuxIndex(tt.id)
		if (err == nil) != tt.ok || index != tt.index {
			t.Errorf("managedAuxIndex(%q) = %d, %v", tt.id, index, err)
		}
	}
}
