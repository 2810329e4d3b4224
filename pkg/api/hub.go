/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	srHttp "github.com/carverauto/netpresence/pkg/http"
	"github.com/carverauto/netpresence/pkg/logger"
	"github.com/carverauto/netpresence/pkg/models"
)

const (
	clientBuffer = 32
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	readLimit    = 512

	hubName = "websocket"
)

// Hub broadcasts presence events to connected websocket clients. Each client
// has its own buffer; a client that falls behind is disconnected without
// affecting the others.
type Hub struct {
	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool
	logger  logger.Logger
}

type streamClient struct {
	conn      *websocket.Conn
	send      chan StreamMessage
	done      chan struct{}
	closeOnce sync.Once
}

func (c *streamClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// NewHub creates an empty hub.
func NewHub(log logger.Logger) *Hub {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Hub{
		clients: make(map[*streamClient]struct{}),
		logger:  log,
	}
}

// Name implements notify.Notifier.
func (*Hub) Name() string {
	return hubName
}

// Notify implements notify.Notifier by queueing event for every client.
func (h *Hub) Notify(ctx context.Context, event *models.PresenceEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := StreamMessage{Type: "event", Event: event, Timestamp: time.Now().UTC()}

	var slow []*streamClient

	h.mu.RLock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}

	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn().Str("client_addr", c.conn.RemoteAddr().String()).
			Msg("WebSocket client is not keeping up, disconnecting")
		h.unregister(c)
	}

	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true

	clients := h.clients
	h.clients = make(map[*streamClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

func (h *Hub) register(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.clients[c] = struct{}{}

	return true
}

func (h *Hub) unregister(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	c.close()
}

// handleStream upgrades the request and streams events until the client leaves.
func (s *APIServer) handleStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return s.checkWebSocketOrigin(r)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Str("origin", r.Header.Get("Origin")).
			Msg("Failed to upgrade to WebSocket")

		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan StreamMessage, clientBuffer),
		done: make(chan struct{}),
	}

	if !s.hub.register(client) {
		_ = conn.Close()
		return
	}

	s.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("WebSocket client connected")

	client.send <- StreamMessage{Type: "hello", Timestamp: s.now().UTC()}

	go s.hub.writePump(client)

	s.hub.readPump(client)

	s.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("WebSocket client disconnected")
}

func (s *APIServer) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if srHttp.OriginAllowed(origin, s.cfg.CORS) {
		return true
	}

	s.logger.Warn().
		Str("origin", origin).
		Interface("allowed_origins", s.cfg.CORS.AllowedOrigins).
		Msg("WebSocket CORS: Origin not allowed")

	return false
}

// readPump discards client messages and detects disconnection.
func (h *Hub) readPump(c *streamClient) {
	defer h.unregister(c)

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))

			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Debug().Err(err).Msg("WebSocket write failed")
				h.unregister(c)

				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}
