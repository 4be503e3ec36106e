// handlers.go: REST endpoints
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"encoding/json"
	"net/http"

	"github.com/agilira/copilot"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Register mounts the /api routes on r.
func (s *Server) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/inputs", s.handleInputs)
		r.Get("/state", s.handleState)
		r.Get("/uptime", s.handleUptime)

		r.Get("/mapping", s.handleGetMapping)
		r.Post("/mapping", s.handleUpdateMapping)
		r.Delete("/mapping/{input}", s.handleDeleteMapping)

		r.Get("/aux_palettes", s.handleGetPalettes)
		r.Post("/aux_palettes", s.handleUpdatePalettes)

		r.Group(func(r chi.Router) {
			r.Post("/program", s.handleProgram)
			r.Post("/preview", s.handlePreview)
			r.Post("/cut", s.handleCut)
			r.Post("/aux", s.handleAux)
		})
	})
}

func (s *Server) handleInputs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Inputs())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.CurrentState())
}

// UptimeResponse is the body of GET /api/uptime.
type UptimeResponse struct {
	Uptime    float64 `json:"uptime"`
	Lifecycle string  `json:"lifecycle"`
}

func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, UptimeResponse{
		Uptime:    s.engine.Uptime().Seconds(),
		Lifecycle: s.engine.Lifecycle().String(),
	})
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Mapping())
}

type mappingRequest struct {
	Input   json.RawMessage `json:"input"`
	Mapping json.RawMessage `json:"mapping"`
}

func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingRequest
	if !readJSON(w, r, &req) {
		return
	}
	input := looseID(req.Input)
	if input == "" || len(req.Mapping) == 0 || string(req.Mapping) == "null" {
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return
	}
	entry, err := copilot.ParseMappingEntry(req.Mapping)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return
	}

	if err := s.engine.UpdateMapping(input, entry); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	input := chi.URLParam(r, "input")
	if err := s.engine.DeleteMapping(input); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleGetPalettes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.AuxPalettes())
}

func (s *Server) handleUpdatePalettes(w http.ResponseWriter, r *http.Request) {
	var palette copilot.AuxPalette
	if !readJSON(w, r, &palette) {
		return
	}
	if palette == nil {
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return
	}
	if err := s.engine.UpdateAuxPalettes(palette); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeSuccess(w)
}

// busRequest is the body of the program, preview and cut endpoints. ME
// defaults to ME1.
type busRequest struct {
	Input json.RawMessage `json:"input"`
	ME    int             `json:"me"`
}

func (s *Server) handleProgram(w http.ResponseWriter, r *http.Request) {
	s.handleSelect(w, r, s.engine.ChangeProgramInput)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.handleSelect(w, r, s.engine.ChangePreviewInput)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request, send func(input, me int) error) {
	var req busRequest
	if !readJSON(w, r, &req) {
		return
	}
	input, ok := looseInt(req.Input)
	if !ok || req.ME < 0 {
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return
	}
	if err := send(input, req.ME); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleCut(w http.ResponseWriter, r *http.Request) {
	var req busRequest
	if r.ContentLength != 0 && !readJSON(w, r, &req) {
		return
	}
	if req.ME < 0 {
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return
	}
	if err := s.engine.Cut(req.ME); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeSuccess(w)
}

// AuxRequest sets an AUX bus and its palette followers. It is also the
// payload of the websocket setAuxInput message.
type AuxRequest struct {
	AuxID   string          `json:"auxId"`
	InputID json.RawMessage `json:"inputId"`
}

func (s *Server) handleAux(w http.ResponseWriter, r *http.Request) {
	var req AuxRequest
	if !readJSON(w, r, &req) {
		return
	}
	input, ok := looseInt(req.InputID)
	if req.AuxID == "" || !ok {
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return
	}
	if err := s.engine.SetAuxWithSync(req.AuxID, input); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeSuccess(w)
}

// writeEngineError maps engine error codes onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	code := copilot.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case copilot.ErrCodeInvalidRequest:
		status = http.StatusBadRequest
	case copilot.ErrCodeMappingNotFound:
		status = http.StatusNotFound
	case copilot.ErrCodeConnection:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err), zap.String("error_code", code))
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}
