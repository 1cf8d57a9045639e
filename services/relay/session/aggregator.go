// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"log/slog"
	"sync"
)

// =============================================================================
// Stream Aggregator
// =============================================================================

// buffer accumulates the streamed chunks of one in-flight response.
//
// Chunks are hashed incrementally as they arrive so the finalized response
// can be logged with a content digest without re-reading the whole buffer.
type buffer struct {
	mu     sync.Mutex
	data   []byte
	hasher hash.Hash
	chunks int
}

func newBuffer() *buffer {
	return &buffer{hasher: sha256.New()}
}

// append adds a chunk and returns the new total length in bytes.
func (b *buffer) append(chunk string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, chunk...)
	b.hasher.Write([]byte(chunk))
	b.chunks++
	return len(b.data)
}

func (b *buffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *buffer) snapshot() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// digest returns the hex SHA-256 of everything appended so far.
func (b *buffer) digest() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return hex.EncodeToString(b.hasher.Sum(nil))
}

// Aggregator owns the per-session response buffers.
//
// # Description
//
// One buffer exists per active session, opened when the turn starts and
// closed exactly once at finalization. Append against a session that has
// been closed (or never opened) reports false and changes nothing, which
// is how late generation chunks are dropped after the watcher declares
// the response complete.
//
// # Thread Safety
//
// Safe for concurrent use. The registry lock covers buffer lookup only;
// each buffer carries its own mutex so appends on different sessions do
// not contend.
type Aggregator struct {
	mu      sync.RWMutex
	buffers map[string]*buffer
	logger  *slog.Logger
}

// NewAggregator creates an empty Aggregator.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		buffers: make(map[string]*buffer),
		logger:  logger,
	}
}

// Open creates an empty buffer for sessionID. Opening an already open
// session resets its buffer.
func (a *Aggregator) Open(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffers[sessionID] = newBuffer()
}

// Append adds a chunk to the session's buffer. It reports whether the
// chunk was accepted; a closed or unknown session is a silent no-op.
func (a *Aggregator) Append(sessionID, chunk string) bool {
	a.mu.RLock()
	buf, ok := a.buffers[sessionID]
	a.mu.RUnlock()
	if !ok {
		return false
	}
	buf.append(chunk)
	return true
}

// Len returns the buffered byte count for the session and whether the
// session is still open.
func (a *Aggregator) Len(sessionID string) (int, bool) {
	a.mu.RLock()
	buf, ok := a.buffers[sessionID]
	a.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return buf.len(), true
}

// Snapshot returns the full accumulated text for the session and whether
// the session is still open. The buffer is not consumed.
func (a *Aggregator) Snapshot(sessionID string) (string, bool) {
	a.mu.RLock()
	buf, ok := a.buffers[sessionID]
	a.mu.RUnlock()
	if !ok {
		return "", false
	}
	return buf.snapshot(), true
}

// Close removes the session's buffer so later appends become no-ops.
// It returns the final accumulated text and whether the session was open.
func (a *Aggregator) Close(sessionID string) (string, bool) {
	a.mu.Lock()
	buf, ok := a.buffers[sessionID]
	if ok {
		delete(a.buffers, sessionID)
	}
	a.mu.Unlock()
	if !ok {
		return "", false
	}

	text := buf.snapshot()
	a.logger.Debug("Closed response buffer",
		"session_id", sessionID,
		"bytes", len(text),
		"chunks", buf.chunks,
		"sha256", buf.digest())
	return text, true
}

// Active returns the number of open buffers.
func (a *Aggregator) Active() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.buffers)
}
