// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package api

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/parasitepool/parastats-sub001/internal/stats"
)

// payload represents a websocket update message.
type payload struct {
	Watermark *stats.WatermarkView `json:"watermark"`
}

// WebsocketServer pushes watermark updates to connected websocket clients.
type WebsocketServer struct {
	clients    map[*websocket.Conn]bool
	clientsMtx sync.Mutex
	upgrader   websocket.Upgrader
}

// NewWebsocketServer creates a websocket server.
func NewWebsocketServer() *WebsocketServer {
	return &WebsocketServer{
		clients:  make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{},
	}
}

// registerClient is the handler for "GET /ws". It upgrades the HTTP request
// to a websocket and adds the caller to the list of connected clients.
func (s *WebsocketServer) registerClient(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("registerClient error: %v", err)
		return
	}
	s.clientsMtx.Lock()
	s.clients[ws] = true
	s.clientsMtx.Unlock()
}

// send pushes the provided message to all connected websocket clients.
func (s *WebsocketServer) send(msg payload) {
	s.clientsMtx.Lock()
	for client := range s.clients {
		err := client.WriteJSON(msg)
		if err != nil {
			// "broken pipe" indicates the client has disconnected.
			// We don't need to log an error in this case.
			if !strings.Contains(err.Error(), "write: broken pipe") {
				log.Errorf("send: error on client %s: %v",
					client.RemoteAddr(), err)
			}
			client.Close()
			delete(s.clients, client)
		}
	}
	s.clientsMtx.Unlock()
}
