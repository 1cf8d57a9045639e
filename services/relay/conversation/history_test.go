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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistoryStore(backing *fakeStore) *HistoryStore {
	h := NewHistoryStore(backing)
	h.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 30, 45, 0, time.Local)
	}
	return h
}

func TestHistoryStore_ReadMissingYieldsEmpty(t *testing.T) {
	h := newTestHistoryStore(newFakeStore())

	entries, err := h.Read(context.Background(), "conv-1")

	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestHistoryStore_ReadMalformedYieldsEmpty(t *testing.T) {
	backing := newFakeStore()
	backing.data[historyKey("conv-1")] = "{not json"
	h := newTestHistoryStore(backing)

	entries, err := h.Read(context.Background(), "conv-1")

	require.NoError(t, err, "corruption must not fail the turn")
	assert.Empty(t, entries)
}

func TestHistoryStore_AppendWritesUserThenAssistant(t *testing.T) {
	backing := newFakeStore()
	h := newTestHistoryStore(backing)
	ctx := context.Background()

	h.Append(ctx, "conv-1", "hello", "Hi there")

	entries, err := h.Read(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, RoleUser, entries[0].Role)
	assert.Equal(t, "hello", entries[0].Content)
	assert.Equal(t, RoleAssistant, entries[1].Role)
	assert.Equal(t, "Hi there", entries[1].Content)
	assert.Equal(t, "2025-06-01T12:30:45", entries[0].Timestamp)
	assert.Equal(t, entries[0].Timestamp, entries[1].Timestamp,
		"both entries of a turn share one capture timestamp")
}

func TestHistoryStore_AppendRefreshesTTL(t *testing.T) {
	backing := newFakeStore()
	h := newTestHistoryStore(backing)

	h.Append(context.Background(), "conv-1", "q", "a")

	assert.Equal(t, DefaultTTL, backing.lastTTL)
}

func TestHistoryStore_TruncatesToMostRecentTwenty(t *testing.T) {
	backing := newFakeStore()
	h := newTestHistoryStore(backing)
	ctx := context.Background()

	// 15 turns = 30 entries, 10 over the cap.
	for i := 0; i < 15; i++ {
		h.Append(ctx, "conv-1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	entries, err := h.Read(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, entries, MaxHistoryEntries)

	// The surviving window starts at turn 5, oldest first.
	assert.Equal(t, "q5", entries[0].Content)
	assert.Equal(t, RoleUser, entries[0].Role)
	assert.Equal(t, "a14", entries[len(entries)-1].Content)
	assert.Equal(t, RoleAssistant, entries[len(entries)-1].Role)

	// Order is preserved as alternating user/assistant pairs.
	for i := 0; i < len(entries); i += 2 {
		assert.Equal(t, RoleUser, entries[i].Role)
		assert.Equal(t, RoleAssistant, entries[i+1].Role)
	}
}

func TestHistoryStore_RoundTrip(t *testing.T) {
	backing := newFakeStore()
	h := newTestHistoryStore(backing)
	ctx := context.Background()

	h.Append(ctx, "conv-1", "first question", "first answer")
	h.Append(ctx, "conv-1", "second question", "second answer")

	entries, err := h.Read(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	// Stored payload is a plain JSON array of entries.
	var raw []HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(backing.data[historyKey("conv-1")]), &raw))
	assert.Equal(t, entries, raw)
}

func TestHistoryStore_WriteFailureIsSwallowed(t *testing.T) {
	backing := newFakeStore()
	backing.setErr = errors.New("store unavailable")
	h := newTestHistoryStore(backing)

	// Must not panic or surface the failure; persistence is best-effort.
	h.Append(context.Background(), "conv-1", "q", "a")

	backing.setErr = nil
	entries, err := h.Read(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHistoryStore_ConversationsAreIsolated(t *testing.T) {
	backing := newFakeStore()
	h := newTestHistoryStore(backing)
	ctx := context.Background()

	h.Append(ctx, "conv-a", "qa", "aa")
	h.Append(ctx, "conv-b", "qb", "ab")

	a, err := h.Read(ctx, "conv-a")
	require.NoError(t, err)
	b, err := h.Read(ctx, "conv-b")
	require.NoError(t, err)

	require.Len(t, a, 2)
	require.Len(t, b, 2)
	assert.Equal(t, "qa", a[0].Content)
	assert.Equal(t, "qb", b[0].Content)
}
