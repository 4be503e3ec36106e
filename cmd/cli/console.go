// Keyboard console for a running copilotd
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/agilira/copilot"
	"github.com/agilira/go-errors"
	"github.com/agilira/orpheus/pkg/orpheus"
	"golang.org/x/term"
)

// Raw mode disables output post-processing, so lines end in CRLF.
const eol = "\r\n"

const keyCtrlC = 0x03

// ErrCodeTerminal marks failures of the local terminal, as opposed to the
// daemon or the request.
const ErrCodeTerminal = "COPILOT_TERMINAL_IO"

type actionKind int

const (
	actionProgram actionKind = iota
	actionPreview
	actionCut
	actionQuit
)

type consoleAction struct {
	kind  actionKind
	input int
}

// programKeys and previewKeys select inputs 1-5 on ME1.
var (
	programKeys = "12345"
	previewKeys = "asdfg"
)

func keyAction(key byte) (consoleAction, bool) {
	if i := strings.IndexByte(programKeys, key); i >= 0 {
		return consoleAction{kind: actionProgram, input: i + 1}, true
	}
	if i := strings.IndexByte(previewKeys, key); i >= 0 {
		return consoleAction{kind: actionPreview, input: i + 1}, true
	}
	switch key {
	case 'x':
		return consoleAction{kind: actionCut}, true
	case 'q', keyCtrlC:
		return consoleAction{kind: actionQuit}, true
	}
	return consoleAction{}, false
}

// handleConsole switches the terminal to raw mode and maps single keys to
// switcher commands on the daemon.
func (m *Manager) handleConsole(ctx *orpheus.Context) error {
	remote := &remoteSwitcher{
		base:   strings.TrimRight(ctx.GetFlagString("server"), "/"),
		client: m.httpClient,
	}

	if f, ok := m.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		state, err := term.MakeRaw(fd)
		if err != nil {
			return errors.Wrap(err, ErrCodeTerminal, "failed to enter raw terminal mode")
		}
		defer func() { _ = term.Restore(fd, state) }()
	}

	return m.runConsole(remote)
}

func (m *Manager) runConsole(remote *remoteSwitcher) error {
	fmt.Fprint(m.out, "Program Controls:"+eol)
	fmt.Fprint(m.out, "1-5: Change ME/1 Program input"+eol)
	fmt.Fprint(m.out, "a,s,d,f,g: Change ME/1 Preview input"+eol)
	fmt.Fprint(m.out, "x: Cut"+eol)
	fmt.Fprint(m.out, "q: Exit"+eol)

	reader := bufio.NewReader(m.in)
	for {
		key, err := reader.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, ErrCodeTerminal, "failed to read key")
		}

		action, ok := keyAction(key)
		if !ok {
			continue
		}

		switch action.kind {
		case actionQuit:
			fmt.Fprint(m.out, "Exiting..."+eol)
			return nil
		case actionCut:
			fmt.Fprint(m.out, "--CUT--"+eol)
			err = remote.post("/api/cut", map[string]int{"me": 0})
		case actionProgram:
			fmt.Fprintf(m.out, "Changing ME/1 Program to input %d"+eol, action.input)
			err = remote.post("/api/program", map[string]int{"input": action.input, "me": 0})
		case actionPreview:
			fmt.Fprintf(m.out, "Changing ME/1 Preview to input %d"+eol, action.input)
			err = remote.post("/api/preview", map[string]int{"input": action.input, "me": 0})
		}
		if err != nil {
			fmt.Fprintf(m.out, "Error: %v"+eol, err)
		}
	}
}

// remoteSwitcher sends switcher commands to copilotd's REST API.
type remoteSwitcher struct {
	base   string
	client *http.Client
}

func (r *remoteSwitcher) post(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, copilot.ErrCodeInvalidRequest, "failed to encode request")
	}

	resp, err := r.client.Post(r.base+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, copilot.ErrCodeConnection, "copilotd unreachable").
			WithContext("url", r.base+path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&failure)
		if failure.Error == "" {
			failure.Error = resp.Status
		}
		return errors.New(copilot.ErrCodeConnection, failure.Error).
			WithContext("status", resp.Status)
	}
	return nil
}
