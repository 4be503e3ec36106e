// errors.go: Error codes for the copilot engine
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	stderrors "errors"

	"github.com/agilira/go-errors"
)

// Error codes returned by the engine. Every failure is reported through the
// error event channel and, where an operation has a caller, returned as a
// coded error built with go-errors.
const (
	ErrCodeConnection       = "COPILOT_CONNECTION"
	ErrCodeMappingLoad      = "COPILOT_MAPPING_LOAD"
	ErrCodeMappingSave      = "COPILOT_MAPPING_SAVE"
	ErrCodeMappingMissing   = "COPILOT_MAPPING_FILE_MISSING"
	ErrCodeInvalidRequest   = "COPILOT_INVALID_REQUEST"
	ErrCodeMappingNotFound  = "COPILOT_MAPPING_NOT_FOUND"
	ErrCodeConfigRejected   = "COPILOT_CONFIG_REJECTED"
	ErrCodePaletteLoad      = "COPILOT_PALETTE_LOAD"
	ErrCodePaletteSave      = "COPILOT_PALETTE_SAVE"
	ErrCodeStateIO          = "COPILOT_STATE_IO"
	ErrCodeInvalidConfig    = "COPILOT_INVALID_CONFIG"
	ErrCodeWatcherBusy      = "COPILOT_WATCHER_BUSY"
	ErrCodeWatcherStopped   = "COPILOT_WATCHER_STOPPED"
	ErrCodeAuditUnavailable = "COPILOT_AUDIT_UNAVAILABLE"
)

// ErrorCode returns the go-errors code carried by err, or "" when err is nil
// or was not produced by this package.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var coder errors.ErrorCoder
	if stderrors.As(err, &coder) {
		return string(coder.ErrorCode())
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}
