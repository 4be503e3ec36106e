// logging_test.go: Tests for logger construction and the engine bridge
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"path/filepath"
	"testing"

	"github.com/agilira/copilot"
	"github.com/agilira/copilot/internal/simswitch"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newEngine(t *testing.T) (*copilot.Copilot, *simswitch.Switcher) {
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
	return engine, sim
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	require.Equal(t, zapcore.WarnLevel, ParseLevel(" warning "))
	require.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	require.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestNewBuildsBothEnvironments(t *testing.T) {
	dev, err := New(Config{Env: "dev", Level: "debug"})
	require.NoError(t, err)
	require.True(t, dev.Core().Enabled(zapcore.DebugLevel))

	prod, err := New(Config{Env: "PROD", Level: "warn", ServiceName: "copilotd"})
	require.NoError(t, err)
	require.False(t, prod.Core().Enabled(zapcore.InfoLevel))
	require.NotNil(t, MustNew(Config{}))
}

func TestBridgeDrainsBufferedLogs(t *testing.T) {
	engine, sim := newEngine(t)

	// Produced before anyone listens.
	require.NoError(t, engine.Start())
	sim.Flush()

	core, logs := observer.New(zapcore.InfoLevel)
	cancel := Bridge(engine, zap.New(core))
	defer cancel()

	var messages []string
	for _, entry := range logs.All() {
		messages = append(messages, entry.Message)
		require.Equal(t, "copilot", entry.LoggerName)
	}
	require.Contains(t, messages, "Connecting to switcher at sim")
	require.Contains(t, messages, "Connected to switcher on sim")

	// Debug is not enabled, so its buffer stays cold.
	require.Equal(t, copilot.BufferCold, engine.LogBuffer().State(copilot.CategoryDebug))
	require.Equal(t, copilot.BufferHot, engine.LogBuffer().State(copilot.CategoryLog))
}

func TestBridgeTagsErrorCodes(t *testing.T) {
	engine, sim := newEngine(t)
	core, logs := observer.New(zapcore.DebugLevel)
	cancel := Bridge(engine, zap.New(core))

	require.NoError(t, engine.Start())
	sim.Flush()
	sim.Fail(errTest("socket closed"))
	sim.Flush()

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 1)
	require.Equal(t, copilot.ErrCodeConnection, errs[0].ContextMap()["error_code"])
	require.NotEmpty(t, logs.FilterLevelExact(zapcore.DebugLevel).All())

	cancel()
	before := logs.Len()
	require.NoError(t, engine.Stop())
	require.Equal(t, before, logs.Len())
}

type errTest string

func (e errTest) Error() string { return string(e) }
