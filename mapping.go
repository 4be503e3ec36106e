// mapping.go: Mapping table model
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
)

const (
	keyME2    = "ME2"
	auxPrefix = "AUX"
)

// MappingEntry lists the follow-on routes for one ME1 source input. A nil ME2
// or an absent AUX key means the bus is left untouched.
type MappingEntry struct {
	ME2 *int
	Aux map[string]int
}

// Input returns a pointer to id, for building entries inline.
func Input(id int) *int {
	return &id
}

// IsEmpty reports whether the entry routes nothing.
func (e MappingEntry) IsEmpty() bool {
	return e.ME2 == nil && len(e.Aux) == 0
}

// Clone returns an independent copy.
func (e MappingEntry) Clone() MappingEntry {
	out := MappingEntry{}
	if e.ME2 != nil {
		out.ME2 = Input(*e.ME2)
	}
	if len(e.Aux) > 0 {
		out.Aux = make(map[string]int, len(e.Aux))
		for k, v := range e.Aux {
			out.Aux[k] = v
		}
	}
	return out
}

// AuxTarget is one AUX route of an entry with its resolved bus index.
type AuxTarget struct {
	Key   string
	Index int
	Input int
}

// AuxTargets returns the AUX routes ordered by bus number. Keys whose number
// cannot be parsed sort last with Index -1.
func (e MappingEntry) AuxTargets() []AuxTarget {
	targets := make([]AuxTarget, 0, len(e.Aux))
	for key, input := range e.Aux {
		targets = append(targets, AuxTarget{Key: key, Index: auxKeyIndex(key), Input: input})
	}
	sort.Slice(targets, func(i, j int) bool {
		a, b := targets[i], targets[j]
		if (a.Index < 0) != (b.Index < 0) {
			return b.Index < 0
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.Key < b.Key
	})
	return targets
}

// auxKeyIndex converts "AUX<n>" into the zero-based bus index n-1, or -1.
func auxKeyIndex(key string) int {
	if !strings.HasPrefix(key, auxPrefix) {
		return -1
	}
	n, err := strconv.Atoi(key[len(auxPrefix):])
	if err != nil {
		return -1
	}
	return n - 1
}

// MarshalJSON writes the entry as {"ME2": n, "AUX1": n, ...}.
func (e MappingEntry) MarshalJSON() ([]byte, error) {
	out := make(map[string]int, len(e.Aux)+1)
	for k, v := range e.Aux {
		out[k] = v
	}
	if e.ME2 != nil {
		out[keyME2] = *e.ME2
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts numbers and numeric strings; null and "" mean the
// bus is not mapped. Keys other than ME2 and AUX<n> are ignored.
func (e *MappingEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	entry := MappingEntry{}
	for key, value := range raw {
		isAux := strings.HasPrefix(key, auxPrefix)
		if key != keyME2 && !isAux {
			continue
		}
		input, ok, err := parseTargetValue(value)
		if err != nil {
			return fmt.Errorf("mapping key %s: %w", key, err)
		}
		if !ok {
			continue
		}
		if key == keyME2 {
			entry.ME2 = Input(input)
			continue
		}
		if entry.Aux == nil {
			entry.Aux = make(map[string]int)
		}
		entry.Aux[key] = input
	}
	*e = entry
	return nil
}

func parseTargetValue(value json.RawMessage) (int, bool, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, false, nil
	}
	var v interface{}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return 0, false, err
	}
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, false, fmt.Errorf("input id %v is not an integer", t)
		}
		return int(t), true, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false, fmt.Errorf("input id %q is not numeric", t)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("unsupported input id %v", v)
	}
}

// MappingTable maps a stringified ME1 source input id to its entry.
type MappingTable map[string]MappingEntry

// Clone returns a deep copy.
func (t MappingTable) Clone() MappingTable {
	out := make(MappingTable, len(t))
	for k, v := range t {
		out[k] = v.Clone()
	}
	return out
}

// Keys returns the source ids sorted numerically where possible.
func (t MappingTable) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		if (errA == nil) != (errB == nil) {
			return errA == nil
		}
		return keys[i] < keys[j]
	})
	return keys
}

// ParseMappingTable decodes a mapping document. An empty document is an
// empty table.
func ParseMappingTable(data []byte) (MappingTable, error) {
	table, err := decodeMappingTable(data)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeMappingLoad, "malformed mapping document")
	}
	return table, nil
}

func decodeMappingTable(data []byte) (MappingTable, error) {
	table := MappingTable{}
	if len(bytes.TrimSpace(data)) == 0 {
		return table, nil
	}
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, err
	}
	if table == nil {
		table = MappingTable{}
	}
	return table, nil
}

// ParseMappingEntry decodes a single entry as sent by clients.
func ParseMappingEntry(data []byte) (MappingEntry, error) {
	var entry MappingEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return MappingEntry{}, errors.Wrap(err, ErrCodeInvalidRequest, "malformed mapping entry")
	}
	return entry, nil
}
