// json.go: JSON request and response helpers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

const maxBodyBytes = 1 << 20

// readJSON decodes the request body into v. It returns false after writing a
// 400 response when the body is missing or malformed.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// looseID reads an id sent either as a JSON string or a JSON number. It
// returns "" for null, empty and any other shape.
func looseID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		if i, err := strconv.Atoi(n.String()); err == nil {
			return strconv.Itoa(i)
		}
	}
	return ""
}

// looseInt is looseID parsed as an integer.
func looseInt(raw json.RawMessage) (int, bool) {
	id := looseID(raw)
	if id == "" {
		return 0, false
	}
	n, err := strconv.Atoi(id)
	return n, err == nil
}
