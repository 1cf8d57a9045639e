// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides wire-level request and response types for
// the relay service.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of one chat message.
	// Byte length, not rune count, to bound memory per request.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxUserIDLength bounds the user identifier used in storage keys.
	MaxUserIDLength = 128
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces the MaxMessageContentBytes limit on a string
// field.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Inbound Messages
// =============================================================================

// ChatRequest is one inbound websocket message starting a chat turn.
type ChatRequest struct {
	// UserID identifies the requesting user and keys their durable
	// conversation.
	UserID string `json:"user_id" validate:"required,max=128"`

	// Message is the user's chat message.
	Message string `json:"message" validate:"required,maxbytes"`
}

// Validate checks the request against its constraints.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// =============================================================================
// Outbound Messages
// =============================================================================

// Outbound message type discriminators.
const (
	MessageTypeChunk    = "chunk"
	MessageTypeComplete = "complete"
	MessageTypeError    = "error"
)

// ServerMessage is one outbound websocket frame.
//
// Exactly one payload field is populated, selected by Type: Content for
// chunks, Success for completion notices, Error for failures.
type ServerMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewChunkMessage wraps one streamed content delta.
func NewChunkMessage(content string) ServerMessage {
	return ServerMessage{Type: MessageTypeChunk, Content: content}
}

// NewCompleteMessage signals the end of a turn.
func NewCompleteMessage(success bool) ServerMessage {
	return ServerMessage{Type: MessageTypeComplete, Success: &success}
}

// NewErrorMessage reports a turn failure.
func NewErrorMessage(message string) ServerMessage {
	return ServerMessage{Type: MessageTypeError, Error: message}
}
