// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conversation provides durable conversation identity and history
// for the relay service.
//
// A conversation groups a user's chat turns under a stable id for a rolling
// window. Both the user → conversation mapping and the per-conversation
// history log live in the TTL key-value store and expire naturally; nothing
// in this package deletes them explicitly.
package conversation

import "time"

// =============================================================================
// Constants
// =============================================================================

const (
	// RoleUser marks an entry written by the human side of a turn.
	RoleUser = "user"

	// RoleAssistant marks an entry written by the model side of a turn.
	RoleAssistant = "assistant"

	// MaxHistoryEntries caps the stored log per conversation. Appends
	// beyond the cap drop the oldest entries first.
	MaxHistoryEntries = 20

	// DefaultTTL is the retention window for both the identity mapping
	// and the history log.
	DefaultTTL = 7 * 24 * time.Hour

	// timestampLayout is the capture-time format stored on history
	// entries. Local time, second precision, no zone marker; kept for
	// compatibility with existing stored logs.
	timestampLayout = "2006-01-02T15:04:05"
)

// HistoryEntry is one message in a conversation's stored log.
//
// # Description
//
// Entries are appended in pairs (user then assistant) per completed turn,
// both stamped with the same capture timestamp. The log is ordered oldest
// first and truncated to MaxHistoryEntries.
//
// # Fields
//
//   - Role: RoleUser or RoleAssistant.
//   - Content: Message text.
//   - Timestamp: Capture time in timestampLayout format.
type HistoryEntry struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// identityKey builds the store key mapping a user to their current
// conversation id.
func identityKey(userID string) string {
	return "user:" + userID + ":current_conversation"
}

// historyKey builds the store key holding a conversation's history log.
func historyKey(conversationID string) string {
	return "conversation:" + conversationID
}
