// events_test.go: Tests for the event registry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"testing"
)

func TestEmitterDeliversInSubscriptionOrder(t *testing.T) {
	e := newEmitter()
	var order []int
	e.subscribe(EventState, func(Event) { order = append(order, 1) })
	e.subscribe(EventState, func(Event) { order = append(order, 2) })
	e.subscribe(EventStopped, func(Event) { order = append(order, 99) })

	e.emit(Event{Kind: EventState})
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("order = %v", order)
	}
}

func TestEmitterCancel(t *testing.T) {
	e := newEmitter()
	calls := 0
	cancel := e.subscribe(EventStarted, func(Event) { calls++ })
	keep := e.subscribe(EventStarted, func(Event) {})
	defer keep()

	cancel()
	cancel()
	e.emit(Event{Kind: EventStarted})
	if calls != 0 || e.count(EventStarted) != 1 {
		t.Errorf("calls=%d count=%d", calls, e.count(EventStarted))
	}
}

func TestEmitterListenerMaySubscribe(t *testing.T) {
	e := newEmitter()
	nested := 0
	e.subscribe(EventState, func(Event) {
		e.subscribe(EventState, func(Event) { nested++ })
	})
	e.emit(Event{Kind: EventState})
	if nested != 0 {
		t.Error("listener added during emit should not see the current event")
	}
	if e.count(EventState) != 2 {
		t.Errorf("count = %d", e.count(EventState))
	}
}

func TestEmitterStampsTime(t *testing.T) {
	e := newEmitter()
	var got Event
	e.subscribe(EventConfigReset, func(ev Event) { got = ev })
	e.emit(Event{Kind: EventConfigReset})
	if got.Time.IsZero() {
		t.Error("event time not set")
	}
}

func TestEventKindLogCategory(t *testing.T) {
	for kind, cat := range map[EventKind]LogCategory{EventLog: CategoryLog, EventDebug: CategoryDebug, EventError: CategoryError} {
		if got, ok := kind.logCategory(); !ok || got != cat {
			t.Errorf("%s -> %s, %v", kind, got, ok)
		}
	}
	if _, ok := EventState.logCategory(); ok {
		t.Error("state is not a log category")
	}
}

func TestErrorCode(t *testing.T) {
	if ErrorCode(nil) != "" {
		t.Error("nil error has a code")
	}
	err := NewMappingStore("unused.json").Delete("x")
	if ErrorCode(err) != ErrCodeMappingNotFound {
		t.Errorf("ErrorCode = %q", ErrorCode(err))
	}
}

func TestFormatArgs(t *testing.T) {
	got := FormatArgs([]interface{}{"Input Names:", InputCatalog{1: "Camera 1"}, 3, nil, StateRunning})
	want := `Input Names: {"1":"Camera 1"} 3 null RUNNING`
	if got != want {
		t.Errorf("FormatArgs = %q, want %q", got, want)
	}
	ev := Event{Kind: EventLog, Args: []interface{}{"Setting AUX1 to input", 4}}
	if ev.Message() != "Setting AUX1 to input 4" {
		t.Errorf("Message = %q", ev.Message())
	}
}
