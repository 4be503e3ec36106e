// bridge.go: Forwarding of engine diagnostics to zap
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"github.com/agilira/copilot"
	"go.uber.org/zap"
)

// Bridge subscribes logger to the engine's log, debug and error events. The
// first subscription drains whatever the engine buffered before it. Debug
// events are skipped entirely when the logger does not enable debug, so that
// the debug category keeps its buffer for other consumers.
//
// The returned function removes the subscriptions.
func Bridge(engine *copilot.Copilot, logger *zap.Logger) func() {
	logger = logger.Named("copilot")
	cancels := []func(){
		engine.On(copilot.EventLog, func(ev copilot.Event) {
			logger.Info(ev.Message())
		}),
		engine.On(copilot.EventError, func(ev copilot.Event) {
			logger.Error(ev.Message(), errorFields(ev.Args)...)
		}),
	}
	if logger.Core().Enabled(zap.DebugLevel) {
		cancels = append(cancels, engine.On(copilot.EventDebug, func(ev copilot.Event) {
			logger.Debug(ev.Message())
		}))
	}

	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// errorFields attaches the code of the first coded error among args.
func errorFields(args []interface{}) []zap.Field {
	for _, arg := range args {
		err, ok := arg.(error)
		if !ok {
			continue
		}
		if code := copilot.ErrorCode(err); code != "" {
			return []zap.Field{zap.String("error_code", code)}
		}
	}
	return nil
}
