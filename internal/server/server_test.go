// server_test.go: Tests for the REST API and the websocket feed
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agilira/copilot"
	"github.com/agilira/copilot/internal/metrics"
	"github.com/agilira/copilot/internal/simswitch"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	engine *copilot.Copilot
	sim    *simswitch.Switcher
	server *Server
	http   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	sim := simswitch.New(simswitch.Options{})
	t.Cleanup(func() { _ = sim.Close() })

	engine, err := copilot.New(sim, copilot.Config{
		Address:     "sim",
		MappingFile: filepath.Join(dir, "mapping.json"),
		PaletteFile: filepath.Join(dir, "aux_palettes.json"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	m, err := metrics.New(nil)
	require.NoError(t, err)
	srv := New(DefaultConfig(), engine, zap.NewNop(), m)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
	})

	require.NoError(t, engine.Start())
	sim.Flush()
	return &fixture{engine: engine, sim: sim, server: srv, http: ts}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestMappingEndpoints(t *testing.T) {
	f := newFixture(t)

	resp, out := f.do(t, http.MethodPost, "/api/mapping", `{"input": 3, "mapping": {"ME2": "6", "AUX1": 2}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, out["success"])

	resp, out = f.do(t, http.MethodGet, "/api/mapping", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entry, ok := out["3"].(map[string]interface{})
	require.True(t, ok, "mapping = %v", out)
	require.Equal(t, 6.0, entry["ME2"])
	require.Equal(t, 2.0, entry["AUX1"])

	resp, _ = f.do(t, http.MethodPost, "/api/mapping", `{"mapping": {"ME2": 1}}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/api/mapping", `{"input": "4"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/api/mapping", `not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, out = f.do(t, http.MethodDelete, "/api/mapping/9", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, copilot.ErrCodeMappingNotFound, out["code"])

	resp, _ = f.do(t, http.MethodDelete, "/api/mapping/3", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, f.engine.Mapping())
}

func TestProgramEndpointMirrors(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.UpdateMapping("3", copilot.MappingEntry{ME2: copilot.Input(6)}))

	resp, _ := f.do(t, http.MethodPost, "/api/program", `{"input": 3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	f.sim.Flush()

	resp, out := f.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 3.0, out[string(copilot.BusME1Program)])
	require.Equal(t, 6.0, out[string(copilot.BusME2Program)])

	resp, _ = f.do(t, http.MethodPost, "/api/preview", `{"input": "5"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/api/cut", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	f.sim.Flush()
	require.Equal(t, 5, f.engine.RoutingState()[copilot.BusME1Program])

	resp, _ = f.do(t, http.MethodPost, "/api/program", `{"input": 3, "me": 7}`)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/api/program", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuxEndpointsFollowPalette(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/aux_palettes",
		`{"AUX2": {"syncTarget": "AUX1", "isLocked": false}, "AUX3": {"syncTarget": "AUX1", "isLocked": true}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out := f.do(t, http.MethodGet, "/api/aux_palettes", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, out, "AUX2")

	resp, _ = f.do(t, http.MethodPost, "/api/aux", `{"auxId": "AUX1", "inputId": "4"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	f.sim.Flush()

	routing := f.engine.RoutingState()
	require.Equal(t, 4, routing[copilot.BusAUX1])
	require.Equal(t, 4, routing[copilot.BusAUX2])
	require.Equal(t, 0, routing[copilot.BusAUX3])

	resp, _ = f.do(t, http.MethodPost, "/api/aux", `{"auxId": "AUX9", "inputId": 1}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/api/aux_palettes", `null`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUptimeAndMetrics(t *testing.T) {
	f := newFixture(t)

	resp, out := f.do(t, http.MethodGet, "/api/uptime", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "RUNNING", out["lifecycle"])
	require.GreaterOrEqual(t, out["uptime"], 0.0)

	resp, out = f.do(t, http.MethodGet, "/api/inputs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Camera 1", out["1"])

	metricsResp, err := http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(metricsResp.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), `copilot_http_requests_total{method="GET",path="/api/uptime",status="200"} 1`)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebsocketFeed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.UpdateAuxPalettes(copilot.AuxPalette{
		"AUX2": {SyncTarget: "AUX1"},
	}))

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var events []string
	for i := 0; i < 5; i++ {
		msg := readMessage(t, conn)
		events = append(events, msg.Event)
		if i == 0 {
			var line string
			require.NoError(t, json.Unmarshal(msg.Data, &line))
			require.Equal(t, "Connected to server.", line)
		}
	}
	require.Equal(t, []string{MessageLog, MessageState, MessageInputs, MessageMapping, MessageAuxPalettes}, events)
	require.Eventually(t, func() bool { return f.server.Hub().ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": MessageSetAuxInput,
		"data":  map[string]interface{}{"auxId": "AUX1", "inputId": 2},
	}))

	var logs []string
	for {
		msg := readMessage(t, conn)
		if msg.Event == MessageLog {
			var line string
			require.NoError(t, json.Unmarshal(msg.Data, &line))
			logs = append(logs, line)
			continue
		}
		if msg.Event != MessageState {
			continue
		}
		var state map[string]int
		require.NoError(t, json.Unmarshal(msg.Data, &state))
		if state[string(copilot.BusAUX2)] == 2 {
			require.Equal(t, 2, state[string(copilot.BusAUX1)])
			break
		}
	}
	require.Contains(t, logs, `Received setAuxInput request: {"auxId":"AUX1","inputId":2}`)
	require.Contains(t, logs, "Setting AUX1 (index 0) to input 2")
	require.Contains(t, logs, "Syncing AUX2 to follow AUX1 with input 2")
}

func TestWebsocketRejectsInvalidAuxRequest(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	for i := 0; i < 5; i++ {
		readMessage(t, conn)
	}

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": MessageSetAuxInput,
		"data":  map[string]interface{}{"inputId": 2},
	}))
	for {
		msg := readMessage(t, conn)
		var line string
		if msg.Event == MessageLog && json.Unmarshal(msg.Data, &line) == nil && line == "Invalid setAuxInput data received" {
			break
		}
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.server.Hub().ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	f.server.Hub().Close()
	require.Equal(t, 0, f.server.Hub().ClientCount())

	resp, _ := f.do(t, http.MethodGet, "/ws", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStartShutsDownOnCancel(t *testing.T) {
	dir := t.TempDir()
	sim := simswitch.New(simswitch.Options{})
	defer sim.Close()
	engine, err := copilot.New(sim, copilot.Config{
		Address:     "sim",
		MappingFile: filepath.Join(dir, "mapping.json"),
		PaletteFile: filepath.Join(dir, "aux_palettes.json"),
	})
	require.NoError(t, err)
	defer engine.Close()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	cfg := DefaultConfig()
	cfg.Addr = addr
	srv := New(cfg, engine, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/uptime")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
