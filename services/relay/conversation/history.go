// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianRelay/services/relay/observability"
	"github.com/AleutianAI/AleutianRelay/services/relay/storage"
)

// =============================================================================
// History Store
// =============================================================================

// HistoryStore persists the ordered, length-bounded log of turns per
// conversation.
//
// # Description
//
// The log is a JSON array of HistoryEntry under conversation:{id}. Reads
// degrade to an empty log on missing keys and on malformed payloads (the
// turn proceeds without memory rather than failing); writes are
// best-effort and refresh the log's TTL. There is no locking across the
// read-modify-write cycle: concurrent turns on the same conversation can
// lose updates (last write wins). This is acceptable under the
// single-active-turn-per-conversation assumption and must be revisited if
// a deployment allows multi-device concurrent chat.
//
// # Thread Safety
//
// Safe for concurrent use; all state lives in the underlying store.
type HistoryStore struct {
	store storage.Store
	ttl   time.Duration

	// now is the capture-time source, overridable in tests.
	now func() time.Time
}

// NewHistoryStore creates a HistoryStore with the default 7-day log TTL.
func NewHistoryStore(store storage.Store) *HistoryStore {
	return &HistoryStore{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
}

// Read returns the conversation's history log, oldest entry first.
//
// # Description
//
// A missing key yields an empty log. A malformed payload is logged and
// also yields an empty log: availability is favored over fidelity, and
// callers must tolerate history loss after store corruption.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - conversationID: The conversation whose log to read.
//
// # Outputs
//
//   - []HistoryEntry: The stored log, possibly empty. Never nil.
//   - error: Non-nil only for storage-level failures.
func (h *HistoryStore) Read(ctx context.Context, conversationID string) ([]HistoryEntry, error) {
	raw, found, err := h.store.Get(ctx, historyKey(conversationID))
	if err != nil {
		return nil, fmt.Errorf("read history for conversation %s: %w", conversationID, err)
	}
	if !found {
		slog.Debug("no stored history", "conversation_id", conversationID)
		return []HistoryEntry{}, nil
	}

	var entries []HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		slog.Error("failed to parse stored history, treating as empty",
			"conversation_id", conversationID,
			"error", err,
		)
		return []HistoryEntry{}, nil
	}

	slog.Debug("loaded history",
		"conversation_id", conversationID,
		"entries", len(entries),
	)
	return entries, nil
}

// Append records one completed turn: the user message and the assistant
// response, stamped with the same capture time.
//
// # Description
//
// Re-reads the current log, appends the user entry then the assistant
// entry, truncates to the most recent MaxHistoryEntries (oldest dropped
// first, order preserved), and writes the log back with a refreshed TTL.
// Serialization and write failures are logged and swallowed: the response
// already streamed to the client is not retracted, so the turn is complete
// from the caller's perspective regardless.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - conversationID: The conversation to append to.
//   - userMessage: The user's message for this turn.
//   - assistantResponse: The finalized assistant response.
func (h *HistoryStore) Append(ctx context.Context, conversationID, userMessage, assistantResponse string) {
	entries, err := h.Read(ctx, conversationID)
	if err != nil {
		slog.Error("skipping history append, read failed",
			"conversation_id", conversationID,
			"error", err,
		)
		observability.GetMetrics().HistoryWriteFailures.Inc()
		return
	}

	timestamp := h.now().Format(timestampLayout)
	entries = append(entries,
		HistoryEntry{Role: RoleUser, Content: userMessage, Timestamp: timestamp},
		HistoryEntry{Role: RoleAssistant, Content: assistantResponse, Timestamp: timestamp},
	)
	if len(entries) > MaxHistoryEntries {
		entries = entries[len(entries)-MaxHistoryEntries:]
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		slog.Error("failed to serialize history",
			"conversation_id", conversationID,
			"error", err,
		)
		observability.GetMetrics().HistoryWriteFailures.Inc()
		return
	}

	if err := h.store.Set(ctx, historyKey(conversationID), string(payload), h.ttl); err != nil {
		slog.Error("failed to persist history",
			"conversation_id", conversationID,
			"error", err,
		)
		observability.GetMetrics().HistoryWriteFailures.Inc()
		return
	}

	slog.Debug("history updated",
		"conversation_id", conversationID,
		"entries", len(entries),
	)
}
