// events.go: Event kinds and observer registry for the copilot engine
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// EventKind identifies an event emitted by the engine.
type EventKind string

const (
	EventLog            EventKind = "log"
	EventDebug          EventKind = "debug"
	EventError          EventKind = "error"
	EventStarted        EventKind = "started"
	EventStopped        EventKind = "stopped"
	EventStateChanged   EventKind = "stateChanged"
	EventState          EventKind = "state"
	EventConfigUpdated  EventKind = "configUpdated"
	EventConfigReset    EventKind = "configReset"
	EventMappingChanged EventKind = "mappingChanged"
	EventPaletteChanged EventKind = "paletteChanged"
)

// logCategory maps the three diagnostic kinds onto their LogBuffer category.
func (k EventKind) logCategory() (LogCategory, bool) {
	switch k {
	case EventLog:
		return CategoryLog, true
	case EventDebug:
		return CategoryDebug, true
	case EventError:
		return CategoryError, true
	}
	return "", false
}

// Event is the payload handed to observers. Only the fields relevant to Kind
// are populated.
type Event struct {
	Kind    EventKind     `json:"kind"`
	Time    time.Time     `json:"time"`
	Args    []interface{} `json:"args,omitempty"`
	Changes []Change      `json:"changes,omitempty"`
	State   RoutingState  `json:"state,omitempty"`
	Config  *Config       `json:"config,omitempty"`
	Mapping MappingTable  `json:"mapping,omitempty"`
	Palette AuxPalette    `json:"palette,omitempty"`
}

// Message renders the event arguments as one line, the way log consumers
// display them.
func (e Event) Message() string {
	return FormatArgs(e.Args)
}

// FormatArgs joins diagnostic arguments with single spaces. Strings, errors
// and Stringers are written as text, other values as compact JSON.
func FormatArgs(args []interface{}) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, formatArg(arg))
	}
	return strings.Join(parts, " ")
}

func formatArg(arg interface{}) string {
	switch v := arg.(type) {
	case nil:
		return "null"
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	case int, int64, int32, uint, uint64, float64, bool:
		return fmt.Sprint(v)
	}
	data, err := json.Marshal(arg)
	if err != nil {
		return fmt.Sprintf("%v", arg)
	}
	return string(data)
}

// Listener observes engine events.
type Listener func(Event)

type subscription struct {
	id       uint64
	listener Listener
}

// emitter is the registry for non-diagnostic events. Listeners are invoked
// outside the registry lock, in subscription order.
type emitter struct {
	mu        sync.RWMutex
	listeners map[EventKind][]subscription
	nextID    uint64
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[EventKind][]subscription)}
}

func (e *emitter) subscribe(kind EventKind, l Listener) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners[kind] = append(e.listeners[kind], subscription{id: id, listener: l})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			subs := e.listeners[kind]
			for i, s := range subs {
				if s.id == id {
					e.listeners[kind] = append(subs[:i:i], subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (e *emitter) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = timecache.CachedTime()
	}
	e.mu.RLock()
	subs := e.listeners[ev.Kind]
	e.mu.RUnlock()

	for _, s := range subs {
		s.listener(ev)
	}
}

func (e *emitter) count(kind EventKind) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[kind])
}
