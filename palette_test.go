// palette_test.go: Tests for the AUX palette and its store
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestPaletteFollowersSkipLockedAndSort(t *testing.T) {
	p := AuxPalette{
		"AUX4": {SyncTarget: "AUX1"},
		"AUX2": {SyncTarget: "AUX1"},
		"AUX3": {SyncTarget: "AUX1", IsLocked: true},
		"AUX1": {SyncTarget: "AUX2"},
	}
	if got := strings.Join(p.Followers("AUX1"), ","); got != "AUX2,AUX4" {
		t.Errorf("Followers = %s", got)
	}
	if got := p.Followers("AUX3"); len(got) != 0 {
		t.Errorf("AUX3 has followers %v", got)
	}
}

func TestPaletteStoreMissingFileIsEmpty(t *testing.T) {
	store := NewPaletteStore(filepath.Join(t.TempDir(), "aux_palettes.json"))
	palette, err := store.Load()
	if err != nil || len(palette) != 0 {
		t.Fatalf("Load = %v, %v", palette, err)
	}
}

func TestPaletteStoreReplaceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aux_palettes.json")
	store := NewPaletteStore(path)
	want := AuxPalette{"AUX2": {SyncTarget: "AUX1", IsLocked: true}}
	if err := store.Replace(want); err != nil {
		t.Fatal(err)
	}

	other := NewPaletteStore(path)
	got, err := other.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got["AUX2"] != want["AUX2"] || len(got) != 1 {
		t.Errorf("round trip = %v", got)
	}

	changed, err := store.Reload()
	if err != nil || changed {
		t.Errorf("Reload after own write = %v, %v", changed, err)
	}
}

func TestPaletteStoreMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aux_palettes.json")
	writeFile(t, path, `{"AUX2": `)
	if _, err := NewPaletteStore(path).Load(); !IsCode(err, ErrCodePaletteLoad) {
		t.Fatalf("expected %s, got %v", ErrCodePaletteLoad, err)
	}
}
