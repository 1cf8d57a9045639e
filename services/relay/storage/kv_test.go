// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_GetMissingKey(t *testing.T) {
	store := newTestStore(t)

	value, found, err := store.Get(context.Background(), "no-such-key")

	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, value)
}

func TestStore_SetThenGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "user:u1:current_conversation", "conv-1", time.Hour))

	value, found, err := store.Get(ctx, "user:u1:current_conversation")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "conv-1", value)
}

func TestStore_SetReplacesValue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "first", time.Hour))
	require.NoError(t, store.Set(ctx, "k", "second", time.Hour))

	value, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "second", value)
}

func TestStore_TTLExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Badger TTL has second granularity; use 1s and wait past it.
	require.NoError(t, store.Set(ctx, "ephemeral", "v", time.Second))

	_, found, err := store.Get(ctx, "ephemeral")
	require.NoError(t, err)
	assert.True(t, found, "key should be live before TTL elapses")

	time.Sleep(1500 * time.Millisecond)

	_, found, err = store.Get(ctx, "ephemeral")
	require.NoError(t, err)
	assert.False(t, found, "key should read as absent after TTL elapses")
}

func TestStore_ZeroTTLDoesNotExpire(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "durable", "v", 0))

	_, found, err := store.Get(ctx, "durable")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestStore_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.Get(ctx, "k")
	assert.Error(t, err)

	err = store.Set(ctx, "k", "v", time.Hour)
	assert.Error(t, err)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
