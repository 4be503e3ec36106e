// switcher.go: Switcher decorator counting commands
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package metrics

import (
	"time"

	"github.com/agilira/copilot"
)

// instrumentedSwitcher wraps a copilot.Switcher and records every command it
// forwards. Commands issued by the mirroring engine pass through it as well.
type instrumentedSwitcher struct {
	copilot.Switcher
	m *Metrics
}

// InstrumentSwitcher returns sw wrapped so that its commands are counted.
func (m *Metrics) InstrumentSwitcher(sw copilot.Switcher) copilot.Switcher {
	return &instrumentedSwitcher{Switcher: sw, m: m}
}

func (s *instrumentedSwitcher) ChangeProgramInput(input, me int) error {
	return s.observe("program", func() error { return s.Switcher.ChangeProgramInput(input, me) })
}

func (s *instrumentedSwitcher) ChangePreviewInput(input, me int) error {
	return s.observe("preview", func() error { return s.Switcher.ChangePreviewInput(input, me) })
}

func (s *instrumentedSwitcher) SetAuxSource(input, aux int) error {
	return s.observe("aux", func() error { return s.Switcher.SetAuxSource(input, aux) })
}

func (s *instrumentedSwitcher) Cut(me int) error {
	return s.observe("cut", func() error { return s.Switcher.Cut(me) })
}

func (s *instrumentedSwitcher) observe(command string, send func() error) error {
	start := time.Now()
	err := send()
	s.m.commandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.m.commandsTotal.WithLabelValues(command, result).Inc()
	return err
}
