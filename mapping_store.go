// mapping_store.go: Persisted mapping table with write-through updates
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/agilira/go-errors"
)

// MappingStore owns the mapping table and its JSON file.
//
// Readers load an immutable snapshot through an atomic pointer and never
// observe a partial update. Writers are serialized and persist the full table
// after every mutation. A failed write leaves the in-memory change in place.
type MappingStore struct {
	mu       sync.Mutex
	path     string
	table    atomic.Pointer[MappingTable]
	lastHash atomic.Uint64
	audit    *AuditLogger

	// loaded is set once a table was read from or written to the file.
	loaded bool
}

// NewMappingStore creates a store bound to path with an empty table. Call
// Load to read the file.
func NewMappingStore(path string) *MappingStore {
	s := &MappingStore{path: path}
	empty := MappingTable{}
	s.table.Store(&empty)
	return s
}

// WithAudit records every mutation in the given audit trail.
func (s *MappingStore) WithAudit(audit *AuditLogger) *MappingStore {
	s.audit = audit
	return s
}

// Path returns the file the store persists to.
func (s *MappingStore) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// SetPath rebinds the store to another file. The table is kept; call Load to
// replace it with the new file's content.
func (s *MappingStore) SetPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
	s.lastHash.Store(0)
}

// Load replaces the table with the file content.
//
// A missing file returns an ErrCodeMappingMissing error the caller should
// treat as informational. Before any table was loaded or saved the store
// starts empty; afterwards the current table is kept, so a file that
// disappeared is rewritten in full by the next mutation. A malformed file
// returns ErrCodeMappingLoad and keeps the previous table.
func (s *MappingStore) Load() (MappingTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.lastHash.Store(0)
			if s.loaded {
				return s.table.Load().Clone(), errors.New(ErrCodeMappingMissing, "mapping file not found, keeping the current table").
					WithContext("path", s.path)
			}
			empty := MappingTable{}
			s.table.Store(&empty)
			return empty.Clone(), errors.New(ErrCodeMappingMissing, "mapping file not found, starting with an empty table").
				WithContext("path", s.path)
		}
		return nil, errors.Wrap(err, ErrCodeMappingLoad, "failed to read mapping file").
			WithContext("path", s.path)
	}

	table, err := decodeMappingTable(data)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeMappingLoad, "malformed mapping file").
			WithContext("path", s.path)
	}
	s.table.Store(&table)
	s.lastHash.Store(contentHash(data))
	s.loaded = true
	s.audit.LogFileEvent("mapping_load", s.path)
	return table.Clone(), nil
}

// Reload re-reads the file only when its content differs from what the store
// last read or wrote. It reports whether the table was replaced. A file that
// disappeared leaves the table untouched.
func (s *MappingStore) Reload() (bool, error) {
	s.mu.Lock()
	path := s.path
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, ErrCodeMappingLoad, "failed to read mapping file").
			WithContext("path", path)
	}
	if contentHash(data) == s.lastHash.Load() {
		return false, nil
	}
	if _, err := s.Load(); err != nil && !IsCode(err, ErrCodeMappingMissing) {
		return false, err
	}
	return true, nil
}

// Save writes the full table to disk.
func (s *MappingStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(*s.table.Load())
}

func (s *MappingStore) saveLocked(table MappingTable) error {
	data, err := encodeJSON(table, mappingIndent)
	if err != nil {
		return errors.Wrap(err, ErrCodeMappingSave, "failed to encode mapping table").
			WithContext("path", s.path)
	}
	if err := atomicWrite(s.path, data); err != nil {
		return errors.Wrap(err, ErrCodeMappingSave, "failed to write mapping file").
			WithContext("path", s.path)
	}
	s.lastHash.Store(contentHash(data))
	s.loaded = true
	return nil
}

// Update replaces the entry for source id and persists the table. The
// in-memory change stands even when persisting fails.
func (s *MappingStore) Update(id string, entry MappingEntry) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New(ErrCodeInvalidRequest, "mapping input id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := *s.table.Load()
	next := current.Clone()
	old, existed := current[id]
	next[id] = entry.Clone()
	s.table.Store(&next)

	var oldValue interface{}
	if existed {
		oldValue = old
	}
	s.audit.LogMappingChange(id, oldValue, entry)

	return s.saveLocked(next)
}

// Delete removes the entry for source id and persists the table. Deleting an
// absent id returns ErrCodeMappingNotFound and touches neither the table nor
// the file.
func (s *MappingStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := *s.table.Load()
	old, ok := current[id]
	if !ok {
		return errors.New(ErrCodeMappingNotFound, fmt.Sprintf("Mapping for input %s does not exist.", id)).
			WithContext("input", id)
	}
	next := current.Clone()
	delete(next, id)
	s.table.Store(&next)
	s.audit.LogMappingChange(id, old, nil)

	return s.saveLocked(next)
}

// Table returns a copy of the current table.
func (s *MappingStore) Table() MappingTable {
	return s.table.Load().Clone()
}

// Lookup returns the entry for a source id.
func (s *MappingStore) Lookup(id string) (MappingEntry, bool) {
	entry, ok := (*s.table.Load())[id]
	if !ok {
		return MappingEntry{}, false
	}
	return entry.Clone(), true
}

// Len returns the number of entries.
func (s *MappingStore) Len() int {
	return len(*s.table.Load())
}
