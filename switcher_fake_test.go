// switcher_fake_test.go: Recording switcher client shared by the tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

type recordedCall struct {
	Method string
	Input  int
	Bus    int
}

func (c recordedCall) String() string {
	return fmt.Sprintf("%s(%d,%d)", c.Method, c.Input, c.Bus)
}

// fakeSwitcher records commands and lets tests drive listener callbacks.
type fakeSwitcher struct {
	mu        sync.Mutex
	listener  SwitcherListener
	state     SwitcherState
	calls     []recordedCall
	connected bool

	connectErr  error
	commandErr  error
	failAuxBus  int
	autoConnect bool
}

func newFakeSwitcher() *fakeSwitcher {
	return &fakeSwitcher{
		failAuxBus: -1,
		state: SwitcherState{
			Inputs: map[int]InputDescriptor{
				1: {LongName: "Camera 1"},
				2: {LongName: "Camera 2"},
				3: {LongName: "Camera 3"},
			},
			Video: VideoState{
				MixEffects:  []MixEffect{{}, {}},
				Auxiliaries: []int{0, 0, 0, 0},
			},
		},
	}
}

func (f *fakeSwitcher) SetListener(l SwitcherListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}

func (f *fakeSwitcher) Connect(address string) error {
	f.mu.Lock()
	if f.connectErr != nil {
		f.mu.Unlock()
		return f.connectErr
	}
	f.connected = true
	auto := f.autoConnect
	l := f.listener
	f.mu.Unlock()
	if auto && l != nil {
		l.OnConnected()
	}
	return nil
}

func (f *fakeSwitcher) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeSwitcher) State() SwitcherState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone()
}

func (f *fakeSwitcher) record(method string, input, bus int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{Method: method, Input: input, Bus: bus})
	if method == "SetAuxSource" && bus == f.failAuxBus {
		return fmt.Errorf("aux %d unavailable", bus)
	}
	return f.commandErr
}

func (f *fakeSwitcher) ChangeProgramInput(input, me int) error {
	return f.record("ChangeProgramInput", input, me)
}

func (f *fakeSwitcher) ChangePreviewInput(input, me int) error {
	return f.record("ChangePreviewInput", input, me)
}

func (f *fakeSwitcher) SetAuxSource(input, aux int) error {
	return f.record("SetAuxSource", input, aux)
}

func (f *fakeSwitcher) Cut(me int) error {
	return f.record("Cut", 0, me)
}

func (f *fakeSwitcher) Calls() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func (f *fakeSwitcher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// selectProgram changes ME1 program and notifies the listener.
func (f *fakeSwitcher) selectProgram(input int) {
	f.mu.Lock()
	f.state.Video.MixEffects[0].ProgramInput = input
	state := f.state.Clone()
	l := f.listener
	f.mu.Unlock()
	l.OnStateChanged(state, []string{"video.mixEffects.0.programInput"})
}

// selectPreview changes ME1 preview and notifies the listener.
func (f *fakeSwitcher) selectPreview(input int) {
	f.mu.Lock()
	f.state.Video.MixEffects[0].PreviewInput = input
	state := f.state.Clone()
	l := f.listener
	f.mu.Unlock()
	l.OnStateChanged(state, []string{"video.mixEffects.0.previewInput"})
}

func assertCalls(t *testing.T, got []recordedCall, want ...recordedCall) {
	t.Helper()
	if len(want) == 0 && len(got) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("switcher calls = %v, want %v", got, want)
	}
}

// newTestCopilot builds an engine with its files under a temp dir and the
// fake switcher already connected.
func newTestCopilot(t *testing.T, mapping string) (*Copilot, *fakeSwitcher, string) {
	t.Helper()
	dir := t.TempDir()
	if mapping != "" {
		writeFile(t, filepath.Join(dir, "mapping.json"), mapping)
	}
	sw := newFakeSwitcher()
	sw.autoConnect = true
	c, err := New(sw, Config{
		MappingFile:   filepath.Join(dir, "mapping.json"),
		PaletteFile:   filepath.Join(dir, "aux_palettes.json"),
		SaveStateFile: filepath.Join(dir, "state.json"),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sw.Reset()
	return c, sw, dir
}

// captureLogs subscribes to the log category and returns the joined lines.
func captureLogs(c *Copilot) func() []string {
	var mu sync.Mutex
	var lines []string
	c.On(EventLog, func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, fmt.Sprint(ev.Args...))
	})
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), lines...)
	}
}
