// hub.go: Websocket feed of engine events
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/agilira/copilot"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Websocket message names.
const (
	MessageLog         = "log"
	MessageState       = "state"
	MessageInputs      = "inputs"
	MessageMapping     = "mapping"
	MessageAuxPalettes = "auxPalettes"
	MessageSetAuxInput = "setAuxInput"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxInbound = 64 * 1024
)

// Message is the envelope of every websocket frame in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans engine events out to every connected websocket client and accepts
// setAuxInput requests from them.
type Hub struct {
	engine   *copilot.Copilot
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
	cancels []func()
}

// NewHub subscribes to the engine. Log and error events are both forwarded
// as log messages.
func NewHub(engine *copilot.Copilot, logger *zap.Logger) *Hub {
	h := &Hub{
		engine: engine,
		logger: logger.Named("ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}

	forwardLog := func(ev copilot.Event) { h.Broadcast(MessageLog, ev.Message()) }
	h.cancels = []func(){
		engine.On(copilot.EventLog, forwardLog),
		engine.On(copilot.EventError, forwardLog),
		engine.On(copilot.EventState, func(ev copilot.Event) { h.Broadcast(MessageState, ev.State) }),
		engine.On(copilot.EventStarted, func(copilot.Event) { h.Broadcast(MessageInputs, engine.Inputs()) }),
		engine.On(copilot.EventMappingChanged, func(ev copilot.Event) { h.Broadcast(MessageMapping, ev.Mapping) }),
		engine.On(copilot.EventPaletteChanged, func(ev copilot.Event) { h.Broadcast(MessageAuxPalettes, ev.Palette) }),
	}
	return h
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a message for every client. Clients whose queue is full
// are disconnected. It may run inside engine listeners and therefore never
// calls back into the engine.
func (h *Hub) Broadcast(event string, data interface{}) {
	frame, err := encodeMessage(event, data)
	if err != nil {
		h.logger.Warn("dropping unencodable message", zap.String("event", event), zap.Error(err))
		return
	}

	var slow []*client
	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("disconnecting slow client", zap.String("client", c.id))
		h.remove(c)
	}
}

// ServeWS upgrades the request and pushes the current log line, state,
// inputs, mapping and palette before any broadcast.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	for _, m := range []struct {
		event string
		data  interface{}
	}{
		{MessageLog, "Connected to server."},
		{MessageState, h.engine.CurrentState()},
		{MessageInputs, h.engine.Inputs()},
		{MessageMapping, h.engine.Mapping()},
		{MessageAuxPalettes, h.engine.AuxPalettes()},
	} {
		frame, err := encodeMessage(m.event, m.data)
		if err != nil {
			continue
		}
		c.send <- frame
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Info("websocket client connected", zap.String("client", c.id))

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every client and stops forwarding engine events.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	cancels := h.cancels
	h.cancels = nil
	h.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	for _, c := range clients {
		h.remove(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
		h.logger.Info("websocket client disconnected", zap.String("client", c.id))
	}
}

func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxInbound)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		switch msg.Event {
		case MessageSetAuxInput:
			h.handleSetAuxInput(msg.Data)
		default:
			h.logger.Debug("ignoring websocket message", zap.String("client", c.id), zap.String("event", msg.Event))
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleSetAuxInput routes a manual AUX selection through the palette sync.
func (h *Hub) handleSetAuxInput(data json.RawMessage) {
	h.Broadcast(MessageLog, "Received setAuxInput request: "+string(data))

	var req AuxRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.Broadcast(MessageLog, "Invalid setAuxInput data received")
		return
	}
	input, ok := looseInt(req.InputID)
	if req.AuxID == "" || !ok {
		h.Broadcast(MessageLog, "Invalid setAuxInput data received")
		return
	}
	// Failures reach clients through the engine's error events.
	_ = h.engine.SetAuxWithSync(req.AuxID, input)
}

func encodeMessage(event string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Event: event, Data: payload})
}
