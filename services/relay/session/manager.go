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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianRelay/services/llm"
	"github.com/AleutianAI/AleutianRelay/services/relay/conversation"
	"github.com/AleutianAI/AleutianRelay/services/relay/observability"
	"github.com/AleutianAI/AleutianRelay/services/relay/rag"
)

// =============================================================================
// Session Lifecycle Manager
// =============================================================================

var (
	// ErrSessionActive is returned when a connection submits a message
	// while its previous turn is still streaming.
	ErrSessionActive = errors.New("session: a response is already in flight for this connection")

	// ErrSessionLost marks a session whose buffer disappeared while the
	// watcher was still running.
	ErrSessionLost = errors.New("session: session state disappeared during streaming")
)

// ClientConn is the manager's view of one connected client.
//
// Implementations must be safe for concurrent use: chunk forwarding and
// finalization run on different goroutines.
type ClientConn interface {
	// SendChunk forwards one streamed content delta.
	SendChunk(content string) error

	// SendCompletion tells the client the turn is over.
	SendCompletion(success bool) error

	// SendError reports a failure for the current turn.
	SendError(message string) error
}

// Session is one in-flight chat turn, keyed by connection ID.
type Session struct {
	// ID is the owning connection's identifier.
	ID string

	// UserID is the requesting user.
	UserID string

	// ConversationID is the resolved durable conversation.
	ConversationID string

	// UserMessage is the message that started this turn.
	UserMessage string

	// Signal settles when the turn is finalized.
	Signal *Signal

	startedAt time.Time
	cancel    context.CancelFunc
}

// Config configures a Manager.
type Config struct {
	// Watcher is the quiescence detection schedule. Zero values are
	// replaced by DefaultWatcherConfig.
	Watcher WatcherConfig

	// Clock drives the watcher's waits. Defaults to the real clock.
	Clock Clock

	// Logger receives lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Manager owns the chat turn lifecycle.
//
// # Description
//
// ProcessMessage runs one turn: resolve the user's conversation, load
// its history, retrieve grounding documents, dispatch streaming
// generation, and start a quiescence watcher. Chunks are forwarded to
// the client as they arrive and accumulated for history. The turn ends
// through exactly one of three paths: the watcher's verdict, the
// generation error callback, or context cancellation; the per-session
// Signal's claim guard guarantees only one of them finalizes.
//
// # Thread Safety
//
// Safe for concurrent use across connections. A single connection is
// limited to one in-flight turn at a time.
type Manager struct {
	resolver  *conversation.Resolver
	history   *conversation.HistoryStore
	searcher  rag.Searcher
	generator llm.StreamingClient
	agg       *Aggregator
	cfg       WatcherConfig
	clock     Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager wires a Manager from its collaborators.
func NewManager(
	resolver *conversation.Resolver,
	history *conversation.HistoryStore,
	searcher rag.Searcher,
	generator llm.StreamingClient,
	cfg Config,
) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Watcher.InitialWait <= 0 {
		cfg.Watcher.InitialWait = DefaultWatcherConfig().InitialWait
	}
	if cfg.Watcher.ConfirmWait <= 0 {
		cfg.Watcher.ConfirmWait = DefaultWatcherConfig().ConfirmWait
	}
	if cfg.Watcher.RetryWait <= 0 {
		cfg.Watcher.RetryWait = DefaultWatcherConfig().RetryWait
	}
	if cfg.Watcher.MaxRetries <= 0 {
		cfg.Watcher.MaxRetries = DefaultWatcherConfig().MaxRetries
	}

	return &Manager{
		resolver:  resolver,
		history:   history,
		searcher:  searcher,
		generator: generator,
		agg:       NewAggregator(cfg.Logger),
		cfg:       cfg.Watcher,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		metrics:   observability.GetMetrics(),
		sessions:  make(map[string]*Session),
	}
}

// ProcessMessage runs one chat turn for the given connection.
//
// # Description
//
// The call returns once generation has been dispatched and the watcher
// started; streaming continues in the background. The returned Session's
// Signal settles when the turn finalizes, which callers may wait on.
//
// # Outputs
//
//   - *Session: The in-flight turn, nil on setup failure.
//   - error: Non-nil when the turn could not be started. The client has
//     already been notified over conn.
func (m *Manager) ProcessMessage(ctx context.Context, connID, userID, message string, conn ClientConn) (*Session, error) {
	conversationID, err := m.resolver.Resolve(ctx, userID)
	if err != nil {
		m.logger.Error("Failed to resolve conversation",
			"connection_id", connID,
			"user_id", userID,
			"error", err)
		_ = conn.SendError("failed to resolve conversation")
		return nil, err
	}

	sessCtx, cancel := context.WithCancel(ctx)
	sess := &Session{
		ID:             connID,
		UserID:         userID,
		ConversationID: conversationID,
		UserMessage:    message,
		Signal:         NewSignal(),
		startedAt:      m.clock.Now(),
		cancel:         cancel,
	}

	m.mu.Lock()
	if _, exists := m.sessions[connID]; exists {
		m.mu.Unlock()
		cancel()
		_ = conn.SendError("a response is already in progress")
		return nil, ErrSessionActive
	}
	m.sessions[connID] = sess
	m.mu.Unlock()

	m.agg.Open(connID)
	m.metrics.ActiveSessions.Inc()
	m.logger.Info("Session started",
		"connection_id", connID,
		"user_id", userID,
		"conversation_id", conversationID)

	// A corrupt history record degrades to an empty log inside Read;
	// a store-level failure aborts the turn like any other setup step.
	history, err := m.history.Read(sessCtx, conversationID)
	if err != nil {
		m.failSession(sess, conn, fmt.Errorf("history fetch: %w", err))
		return nil, err
	}

	searchStart := m.clock.Now()
	results, err := m.searcher.SearchWithPermission(sessCtx, message, userID, rag.DefaultTopK)
	if err != nil {
		m.failSession(sess, conn, fmt.Errorf("retrieval search: %w", err))
		return nil, err
	}
	m.metrics.RAGSearchSeconds.Observe(m.clock.Now().Sub(searchStart).Seconds())
	ragContext := rag.BuildContext(results)

	onChunk := func(chunk string) {
		if !m.agg.Append(connID, chunk) {
			// Session already finalized; late chunks are dropped.
			return
		}
		m.metrics.ChunksForwarded.Inc()
		if sendErr := conn.SendChunk(chunk); sendErr != nil {
			m.logger.Warn("Failed to forward chunk",
				"connection_id", connID,
				"error", sendErr)
		}
	}
	onError := func(genErr error) {
		m.failSession(sess, conn, genErr)
	}

	m.generator.StreamResponse(sessCtx, message, ragContext, history, onChunk, onError)
	go m.watch(sessCtx, sess, conn)

	return sess, nil
}

// watch runs the quiescence watcher and dispatches its verdict.
func (m *Manager) watch(ctx context.Context, sess *Session, conn ClientConn) {
	state := newWatcher(m.cfg, m.clock, m.agg, m.logger).Run(ctx, sess.ID)
	switch state {
	case StateComplete, StateForcedComplete:
		m.finalize(sess, conn, state)
	case StateErrored:
		m.failSession(sess, conn, ErrSessionLost)
	case StateCancelled:
		m.discard(sess)
	}
}

// finalize ends a successful turn exactly once: close the response
// buffer, notify the client, persist the turn, and settle the Signal.
func (m *Manager) finalize(sess *Session, conn ClientConn, state State) {
	if !sess.Signal.Claim() {
		return
	}

	// Closing the buffer before the completion notice guarantees no
	// chunk frame can follow it: late appends are rejected from here on.
	text, ok := m.agg.Close(sess.ID)
	if !ok {
		// Buffer vanished between the verdict and the close.
		m.logger.Error("Response buffer missing at finalization",
			"connection_id", sess.ID)
		_ = conn.SendError("session state lost")
		_ = conn.SendCompletion(false)
		m.release(sess, StateErrored)
		sess.Signal.Reject(ErrSessionLost)
		return
	}

	if err := conn.SendCompletion(true); err != nil {
		m.logger.Warn("Failed to deliver completion notice",
			"connection_id", sess.ID,
			"error", err)
	}

	// Best effort: the client already holds the full response, so a
	// failed history write must not fail the turn.
	ctx, cancelWrite := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWrite()
	m.history.Append(ctx, sess.ConversationID, sess.UserMessage, text)

	// Release before settling so a waiter on the Signal can start the
	// connection's next turn without tripping the in-flight guard.
	m.release(sess, state)
	sess.Signal.Resolve(text)

	m.logger.Info("Session finalized",
		"connection_id", sess.ID,
		"conversation_id", sess.ConversationID,
		"outcome", state.String(),
		"response_bytes", len(text))
}

// failSession ends a failed turn exactly once: report the error, close
// the turn, and settle the Signal. Racing callers after the first are
// no-ops.
func (m *Manager) failSession(sess *Session, conn ClientConn, cause error) {
	if !sess.Signal.Claim() {
		return
	}
	m.agg.Close(sess.ID)

	m.logger.Error("Session failed",
		"connection_id", sess.ID,
		"conversation_id", sess.ConversationID,
		"error", cause)
	_ = conn.SendError(cause.Error())
	_ = conn.SendCompletion(false)
	m.release(sess, StateErrored)
	sess.Signal.Reject(cause)
}

// discard releases a cancelled session without client notifications;
// the connection is already gone.
func (m *Manager) discard(sess *Session) {
	if !sess.Signal.Claim() {
		return
	}
	m.release(sess, StateCancelled)
	sess.Signal.Reject(context.Canceled)
	m.logger.Info("Session discarded after cancellation",
		"connection_id", sess.ID)
}

// release tears down session state. Callers must hold the Signal claim.
func (m *Manager) release(sess *Session, outcome State) {
	sess.cancel()
	m.agg.Close(sess.ID)

	m.mu.Lock()
	delete(m.sessions, sess.ID)
	m.mu.Unlock()

	m.metrics.ActiveSessions.Dec()
	m.metrics.SessionsCompleted.WithLabelValues(outcome.String()).Inc()
	m.metrics.DetectionSeconds.Observe(m.clock.Now().Sub(sess.startedAt).Seconds())
}

// ActiveSessions returns the number of in-flight turns.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
