// palette.go: AUX palette model and store
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/agilira/go-errors"
)

// PaletteEntry configures one AUX bus: which AUX it follows, and whether a
// lock suppresses that follow.
type PaletteEntry struct {
	SyncTarget string `json:"syncTarget"`
	IsLocked   bool   `json:"isLocked"`
}

// AuxPalette maps an AUX id ("AUX1".."AUX4") to its palette entry.
type AuxPalette map[string]PaletteEntry

// Clone returns an independent copy.
func (p AuxPalette) Clone() AuxPalette {
	out := make(AuxPalette, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Followers returns, in AUX order, the ids that follow target and are not
// locked.
func (p AuxPalette) Followers(target string) []string {
	ids := make([]string, 0, len(p))
	for id, entry := range p {
		if entry.SyncTarget == target && !entry.IsLocked {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := auxKeyIndex(ids[i]), auxKeyIndex(ids[j])
		if a != b {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids
}

// PaletteStore owns the AUX palette and its JSON file. The palette is
// replaced wholesale on every update.
type PaletteStore struct {
	mu       sync.Mutex
	path     string
	palette  atomic.Pointer[AuxPalette]
	lastHash atomic.Uint64
	audit    *AuditLogger
}

// NewPaletteStore creates a store bound to path with an empty palette.
func NewPaletteStore(path string) *PaletteStore {
	s := &PaletteStore{path: path}
	empty := AuxPalette{}
	s.palette.Store(&empty)
	return s
}

// WithAudit records every replacement in the given audit trail.
func (s *PaletteStore) WithAudit(audit *AuditLogger) *PaletteStore {
	s.audit = audit
	return s
}

// Path returns the file the store persists to.
func (s *PaletteStore) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// SetPath rebinds the store to another file.
func (s *PaletteStore) SetPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
	s.lastHash.Store(0)
}

// Load replaces the palette with the file content. A missing file yields an
// empty palette without error; a malformed one keeps the previous palette.
func (s *PaletteStore) Load() (AuxPalette, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			empty := AuxPalette{}
			s.palette.Store(&empty)
			s.lastHash.Store(0)
			return AuxPalette{}, nil
		}
		return nil, errors.Wrap(err, ErrCodePaletteLoad, "failed to read palette file").
			WithContext("path", s.path)
	}

	palette := AuxPalette{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &palette); err != nil {
			return nil, errors.Wrap(err, ErrCodePaletteLoad, "malformed palette file").
				WithContext("path", s.path)
		}
	}
	if palette == nil {
		palette = AuxPalette{}
	}
	s.palette.Store(&palette)
	s.lastHash.Store(contentHash(data))
	return palette.Clone(), nil
}

// Reload re-reads the file when its content changed since the last read or
// write, and reports whether the palette was replaced.
func (s *PaletteStore) Reload() (bool, error) {
	s.mu.Lock()
	path := s.path
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, ErrCodePaletteLoad, "failed to read palette file").
			WithContext("path", path)
	}
	if contentHash(data) == s.lastHash.Load() {
		return false, nil
	}
	if _, err := s.Load(); err != nil {
		return false, err
	}
	return true, nil
}

// Replace swaps in a new palette and persists it. The new palette stays in
// memory even when the write fails.
func (s *PaletteStore) Replace(palette AuxPalette) error {
	next := palette.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	old := *s.palette.Load()
	s.palette.Store(&next)
	s.audit.LogPaletteChange(old, next)

	data, err := encodeJSON(next, mappingIndent)
	if err != nil {
		return errors.Wrap(err, ErrCodePaletteSave, "failed to encode palette").
			WithContext("path", s.path)
	}
	if err := atomicWrite(s.path, data); err != nil {
		return errors.Wrap(err, ErrCodePaletteSave, "failed to write palette file").
			WithContext("path", s.path)
	}
	s.lastHash.Store(contentHash(data))
	return nil
}

// Palette returns a copy of the current palette.
func (s *PaletteStore) Palette() AuxPalette {
	return s.palette.Load().Clone()
}
