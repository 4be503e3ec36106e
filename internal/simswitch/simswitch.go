// simswitch.go: In-memory switcher client for offline use and tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package simswitch provides a switcher client that keeps the routing state
// in memory. Notifications are delivered on a dedicated goroutine, in the
// order the changes happened, the way a network client would deliver them.
package simswitch

import (
	"fmt"
	"strings"
	"sync"

	"github.com/agilira/copilot"
	"github.com/agilira/go-errors"
)

// Error codes returned by the simulated switcher.
const (
	ErrCodeNotConnected = "SIMSWITCH_NOT_CONNECTED"
	ErrCodeOutOfRange   = "SIMSWITCH_OUT_OF_RANGE"
	ErrCodeBadAddress   = "SIMSWITCH_BAD_ADDRESS"
)

// Options shapes the simulated device.
type Options struct {
	Inputs      int
	MixEffects  int
	Auxiliaries int
}

func (o Options) withDefaults() Options {
	if o.Inputs <= 0 {
		o.Inputs = 8
	}
	if o.MixEffects <= 0 {
		o.MixEffects = 2
	}
	if o.Auxiliaries <= 0 {
		o.Auxiliaries = 4
	}
	return o
}

// Switcher is an in-memory implementation of copilot.Switcher.
type Switcher struct {
	mu        sync.Mutex
	state     copilot.SwitcherState
	listener  copilot.SwitcherListener
	connected bool
	address   string

	queueMu sync.Mutex
	queue   []func(copilot.SwitcherListener)
	pending int
	idle    *sync.Cond
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// New creates a disconnected switcher. Inputs are named "Camera <n>".
func New(opts Options) *Switcher {
	opts = opts.withDefaults()
	state := copilot.SwitcherState{
		Inputs: make(map[int]copilot.InputDescriptor, opts.Inputs),
		Video: copilot.VideoState{
			MixEffects:  make([]copilot.MixEffect, opts.MixEffects),
			Auxiliaries: make([]int, opts.Auxiliaries),
		},
	}
	for i := 1; i <= opts.Inputs; i++ {
		state.Inputs[i] = copilot.InputDescriptor{
			LongName:  fmt.Sprintf("Camera %d", i),
			ShortName: fmt.Sprintf("CAM%d", i),
		}
	}

	s := &Switcher{
		state: state,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	s.idle = sync.NewCond(&s.queueMu)
	go s.dispatchLoop()
	return s
}

// SetListener installs the receiver of notifications.
func (s *Switcher) SetListener(l copilot.SwitcherListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// Connect marks the device connected and queues OnConnected.
func (s *Switcher) Connect(address string) error {
	if strings.TrimSpace(address) == "" {
		return errors.New(ErrCodeBadAddress, "switcher address is empty")
	}
	s.mu.Lock()
	s.connected = true
	s.address = address
	s.mu.Unlock()

	s.enqueue(func(l copilot.SwitcherListener) { l.OnConnected() })
	return nil
}

// Disconnect marks the device disconnected and queues OnDisconnected.
func (s *Switcher) Disconnect() error {
	s.mu.Lock()
	was := s.connected
	s.connected = false
	s.mu.Unlock()

	if was {
		s.enqueue(func(l copilot.SwitcherListener) { l.OnDisconnected() })
	}
	return nil
}

// Address returns the address of the last Connect.
func (s *Switcher) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// IsConnected reports the connection flag.
func (s *Switcher) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// State returns a snapshot of the device state.
func (s *Switcher) State() copilot.SwitcherState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// ChangeProgramInput selects the program input of a mix-effect block.
func (s *Switcher) ChangeProgramInput(input, me int) error {
	return s.mutate(func(st *copilot.SwitcherState) ([]string, error) {
		if err := s.checkMixEffect(st, me); err != nil {
			return nil, err
		}
		if err := s.checkInput(st, input); err != nil {
			return nil, err
		}
		st.Video.MixEffects[me].ProgramInput = input
		return []string{fmt.Sprintf("video.mixEffects.%d.programInput", me)}, nil
	})
}

// ChangePreviewInput selects the preview input of a mix-effect block.
func (s *Switcher) ChangePreviewInput(input, me int) error {
	return s.mutate(func(st *copilot.SwitcherState) ([]string, error) {
		if err := s.checkMixEffect(st, me); err != nil {
			return nil, err
		}
		if err := s.checkInput(st, input); err != nil {
			return nil, err
		}
		st.Video.MixEffects[me].PreviewInput = input
		return []string{fmt.Sprintf("video.mixEffects.%d.previewInput", me)}, nil
	})
}

// SetAuxSource routes an input to an auxiliary output. The change is reported
// under the "auxilliaries" spelling real devices use.
func (s *Switcher) SetAuxSource(input, aux int) error {
	return s.mutate(func(st *copilot.SwitcherState) ([]string, error) {
		if aux < 0 || aux >= len(st.Video.Auxiliaries) {
			return nil, errors.New(ErrCodeOutOfRange, fmt.Sprintf("aux %d does not exist", aux))
		}
		if err := s.checkInput(st, input); err != nil {
			return nil, err
		}
		st.Video.Auxiliaries[aux] = input
		return []string{fmt.Sprintf("video.auxilliaries.%d", aux)}, nil
	})
}

// Cut swaps program and preview on a mix-effect block.
func (s *Switcher) Cut(me int) error {
	return s.mutate(func(st *copilot.SwitcherState) ([]string, error) {
		if err := s.checkMixEffect(st, me); err != nil {
			return nil, err
		}
		m := &st.Video.MixEffects[me]
		m.ProgramInput, m.PreviewInput = m.PreviewInput, m.ProgramInput
		return []string{
			fmt.Sprintf("video.mixEffects.%d.programInput", me),
			fmt.Sprintf("video.mixEffects.%d.previewInput", me),
		}, nil
	})
}

// SetTransitionPosition moves the transition lever of a mix-effect block.
func (s *Switcher) SetTransitionPosition(me, position int) error {
	return s.mutate(func(st *copilot.SwitcherState) ([]string, error) {
		if err := s.checkMixEffect(st, me); err != nil {
			return nil, err
		}
		st.Video.MixEffects[me].TransitionPosition = position
		return []string{fmt.Sprintf("video.mixEffects.%d.transitionPosition", me)}, nil
	})
}

// RenameInput changes the long name of an input.
func (s *Switcher) RenameInput(input int, longName string) error {
	return s.mutate(func(st *copilot.SwitcherState) ([]string, error) {
		desc, ok := st.Inputs[input]
		if !ok {
			return nil, errors.New(ErrCodeOutOfRange, fmt.Sprintf("input %d does not exist", input))
		}
		desc.LongName = longName
		st.Inputs[input] = desc
		return []string{fmt.Sprintf("inputs.%d.longName", input)}, nil
	})
}

// Fail queues an OnError notification.
func (s *Switcher) Fail(err error) {
	s.enqueue(func(l copilot.SwitcherListener) { l.OnError(err) })
}

// Flush blocks until every queued notification has been delivered, including
// notifications queued by listeners while flushing. It must not be called
// from a listener.
func (s *Switcher) Flush() {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	for s.pending > 0 && !s.closed() {
		s.idle.Wait()
	}
}

// Close stops the delivery goroutine. Queued notifications are dropped.
func (s *Switcher) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.queueMu.Lock()
		s.idle.Broadcast()
		s.queueMu.Unlock()
	})
	return nil
}

func (s *Switcher) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Switcher) checkMixEffect(st *copilot.SwitcherState, me int) error {
	if me < 0 || me >= len(st.Video.MixEffects) {
		return errors.New(ErrCodeOutOfRange, fmt.Sprintf("mix-effect %d does not exist", me))
	}
	return nil
}

func (s *Switcher) checkInput(st *copilot.SwitcherState, input int) error {
	if _, ok := st.Inputs[input]; !ok && input != 0 {
		return errors.New(ErrCodeOutOfRange, fmt.Sprintf("input %d does not exist", input))
	}
	return nil
}

// mutate applies fn under the state lock and queues a state change with a
// snapshot taken right after it.
func (s *Switcher) mutate(fn func(st *copilot.SwitcherState) ([]string, error)) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return errors.New(ErrCodeNotConnected, "switcher is not connected")
	}
	paths, err := fn(&s.state)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.enqueue(func(l copilot.SwitcherListener) { l.OnStateChanged(snapshot, paths) })
	return nil
}

func (s *Switcher) enqueue(fn func(copilot.SwitcherListener)) {
	s.queueMu.Lock()
	s.queue = append(s.queue, fn)
	s.pending++
	s.queueMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Switcher) dispatchLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.queueMu.Lock()
			if len(s.queue) == 0 {
				s.queueMu.Unlock()
				break
			}
			fn := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.queueMu.Unlock()

			s.mu.Lock()
			l := s.listener
			s.mu.Unlock()
			if l == nil {
				l = noopListener{}
			}
			fn(l)

			s.queueMu.Lock()
			s.pending--
			if s.pending == 0 {
				s.idle.Broadcast()
			}
			s.queueMu.Unlock()
		}
	}
}

type noopListener struct{}

func (noopListener) OnConnected()                                   {}
func (noopListener) OnDisconnected()                                {}
func (noopListener) OnStateChanged(copilot.SwitcherState, []string) {}
func (noopListener) OnError(error)                                  {}
