// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the relay's HTTP and websocket handlers.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/session"
)

// =============================================================================
// WebSocket Chat Handler
// =============================================================================

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// wsConn adapts a gorilla websocket connection to session.ClientConn.
//
// Gorilla connections allow only one concurrent writer, so every send
// goes through a mutex: chunk forwarding and finalization run on
// different goroutines.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) send(msg datatypes.ServerMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (c *wsConn) SendChunk(content string) error {
	return c.send(datatypes.NewChunkMessage(content))
}

func (c *wsConn) SendCompletion(success bool) error {
	return c.send(datatypes.NewCompleteMessage(success))
}

func (c *wsConn) SendError(message string) error {
	return c.send(datatypes.NewErrorMessage(message))
}

// sendJSON writes an arbitrary payload with a warning on failure.
func (c *wsConn) sendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteJSON(v); err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
		return err
	}
	return nil
}

var _ session.ClientConn = (*wsConn)(nil)

// HandleChatWebSocket serves the streaming chat endpoint.
//
// # Description
//
// Each connection gets its own ID, announced to the client in a
// session_created frame. The read loop accepts ChatRequest frames and
// hands each to the session manager; invalid frames get an error
// message and the connection stays open. When the client disconnects,
// the connection context is cancelled, which stops any in-flight
// watcher and generation.
func HandleChatWebSocket(manager *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		connID := uuid.New().String()
		slog.Info("Websocket client connected", "connection_id", connID)

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		conn := newWSConn(ws)
		if err := conn.sendJSON(map[string]any{
			"action":    "session_created",
			"sessionId": connID,
		}); err != nil {
			return
		}

		for {
			var req datatypes.ChatRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("Websocket client disconnected",
					"connection_id", connID,
					"error", err.Error())
				return
			}

			if err := req.Validate(); err != nil {
				slog.Warn("Rejected invalid chat request",
					"connection_id", connID,
					"error", err)
				_ = conn.SendError("invalid request: " + err.Error())
				continue
			}

			// Errors are already reported to the client by the manager;
			// the connection stays open for the next message.
			_, _ = manager.ProcessMessage(ctx, connID, req.UserID, req.Message, conn)
		}
	}
}
