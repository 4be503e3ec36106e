// routing.go: Normalization of raw switcher state into named buses
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Bus is the canonical name of a routable output.
type Bus string

const (
	BusME1Preview Bus = "ME1-Preview"
	BusME1Program Bus = "ME1-Program"
	BusME2Preview Bus = "ME2-Preview"
	BusME2Program Bus = "ME2-Program"
	BusAUX1       Bus = "AUX1"
	BusAUX2       Bus = "AUX2"
	BusAUX3       Bus = "AUX3"
	BusAUX4       Bus = "AUX4"
)

// Buses lists every canonical bus in display order.
var Buses = []Bus{
	BusME1Preview, BusME1Program,
	BusME2Preview, BusME2Program,
	BusAUX1, BusAUX2, BusAUX3, BusAUX4,
}

// nativePaths maps switcher change paths onto canonical buses. The
// auxilliaries spelling is what common switcher clients report.
var nativePaths = map[string]Bus{
	"video.mixEffects.0.previewInput": BusME1Preview,
	"video.mixEffects.0.programInput": BusME1Program,
	"video.mixEffects.1.previewInput": BusME2Preview,
	"video.mixEffects.1.programInput": BusME2Program,
	"video.auxilliaries.0":            BusAUX1,
	"video.auxilliaries.1":            BusAUX2,
	"video.auxilliaries.2":            BusAUX3,
	"video.auxilliaries.3":            BusAUX4,
	"video.auxiliaries.0":             BusAUX1,
	"video.auxiliaries.1":             BusAUX2,
	"video.auxiliaries.2":             BusAUX3,
	"video.auxiliaries.3":             BusAUX4,
}

// transitionPath is the change path carrying the ME1 transition lever.
const transitionPath = "video.mixEffects.0.transitionPosition"

// CanonicalBus returns the bus a native change path maps to.
func CanonicalBus(path string) (Bus, bool) {
	bus, ok := nativePaths[path]
	return bus, ok
}

// RoutingState maps every canonical bus to its current input id. All eight
// buses are always present.
type RoutingState map[Bus]int

// NewRoutingState returns a routing state with every bus set to 0.
func NewRoutingState() RoutingState {
	rs := make(RoutingState, len(Buses))
	for _, bus := range Buses {
		rs[bus] = 0
	}
	return rs
}

// Clone returns an independent copy.
func (rs RoutingState) Clone() RoutingState {
	out := make(RoutingState, len(rs))
	for k, v := range rs {
		out[k] = v
	}
	return out
}

// Change is one normalized change record.
type Change struct {
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

// DeriveRouting rebuilds the full routing state from a snapshot. Buses the
// snapshot does not describe read as 0.
func DeriveRouting(state SwitcherState) RoutingState {
	rs := NewRoutingState()
	me := state.Video.MixEffects
	if len(me) > 0 {
		rs[BusME1Preview] = me[0].PreviewInput
		rs[BusME1Program] = me[0].ProgramInput
	}
	if len(me) > 1 {
		rs[BusME2Preview] = me[1].PreviewInput
		rs[BusME2Program] = me[1].ProgramInput
	}
	aux := state.Video.Auxiliaries
	for i, bus := range []Bus{BusAUX1, BusAUX2, BusAUX3, BusAUX4} {
		if i < len(aux) {
			rs[bus] = aux[i]
		}
	}
	return rs
}

// NormalizeChanges turns raw change paths into change records, in input
// order. Known paths are renamed to their bus and carry the routing value;
// anything else passes through with the value found in the snapshot, or nil.
func NormalizeChanges(state SwitcherState, routing RoutingState, paths []string) []Change {
	changes := make([]Change, 0, len(paths))
	var generic interface{}
	for _, path := range paths {
		if bus, ok := nativePaths[path]; ok {
			changes = append(changes, Change{Path: string(bus), Value: routing[bus]})
			continue
		}
		if generic == nil {
			generic = genericSnapshot(state)
		}
		changes = append(changes, Change{Path: path, Value: lookupPath(generic, path)})
	}
	return changes
}

// genericSnapshot renders the snapshot as nested maps and slices so that
// arbitrary dotted paths can be resolved.
func genericSnapshot(state SwitcherState) interface{} {
	data, err := json.Marshal(state)
	if err != nil {
		return nil
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func lookupPath(root interface{}, path string) interface{} {
	cur := root
	for _, part := range strings.Split(path, ".") {
		if part == "auxilliaries" {
			part = "auxiliaries"
		}
		switch node := cur.(type) {
		case map[string]interface{}:
			next, ok := node[part]
			if !ok {
				return nil
			}
			cur = next
		case []interface{}:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			cur = node[idx]
		default:
			return nil
		}
	}
	if f, ok := cur.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f)
	}
	return cur
}
