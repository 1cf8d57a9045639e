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
	"log/slog"
	"time"
)

// =============================================================================
// Quiescence Watcher
// =============================================================================

// State is a terminal verdict of the quiescence watcher.
type State int

const (
	// StateComplete means the buffer length held steady across a confirm
	// window, so the stream is considered finished.
	StateComplete State = iota

	// StateForcedComplete means the buffer was still growing after the
	// retry budget was exhausted, so the response is cut off as-is.
	StateForcedComplete

	// StateErrored means the session's buffer disappeared while the
	// watcher was running.
	StateErrored

	// StateCancelled means the watcher's context was cancelled mid-wait.
	StateCancelled
)

// String implements fmt.Stringer for log and metric labels.
func (s State) String() string {
	switch s {
	case StateComplete:
		return "complete"
	case StateForcedComplete:
		return "forced_complete"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// WatcherConfig holds the quiescence detection schedule.
type WatcherConfig struct {
	// InitialWait is the grace period before the first length sample,
	// giving generation time to produce its first chunks.
	InitialWait time.Duration

	// ConfirmWait is how long the length must hold steady before the
	// stream counts as complete.
	ConfirmWait time.Duration

	// RetryWait is the pause before re-sampling after a confirm window
	// saw the buffer still growing.
	RetryWait time.Duration

	// MaxRetries bounds the number of retry rounds before the response
	// is forced complete.
	MaxRetries int
}

// DefaultWatcherConfig returns the production schedule. Worst case, a
// stream that never goes quiet is forced complete after roughly
// InitialWait + ConfirmWait + MaxRetries*(RetryWait+ConfirmWait).
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		InitialWait: 3 * time.Second,
		ConfirmWait: 2 * time.Second,
		RetryWait:   5 * time.Second,
		MaxRetries:  5,
	}
}

// watcher runs completion detection for one session.
//
// # Description
//
// The model stream carries no end-of-response marker, so completion is
// inferred from the buffer going quiet: sample the length, wait
// ConfirmWait, sample again, and declare the stream complete when the two
// samples match. A growing buffer buys another RetryWait round, up to
// MaxRetries rounds.
//
// # Limitations
//
// A model that legitimately pauses longer than ConfirmWait mid-response
// is truncated. The schedule is a tradeoff between latency after the
// last chunk and tolerance for slow token gaps.
type watcher struct {
	cfg    WatcherConfig
	clock  Clock
	agg    *Aggregator
	logger *slog.Logger
}

func newWatcher(cfg WatcherConfig, clock Clock, agg *Aggregator, logger *slog.Logger) *watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &watcher{cfg: cfg, clock: clock, agg: agg, logger: logger}
}

// Run blocks until the session reaches a terminal state and returns it.
// Every wait selects on ctx so connection teardown stops the watcher
// promptly.
func (w *watcher) Run(ctx context.Context, sessionID string) State {
	if !w.wait(ctx, w.cfg.InitialWait) {
		return StateCancelled
	}
	last, ok := w.agg.Len(sessionID)
	if !ok {
		return StateErrored
	}

	if !w.wait(ctx, w.cfg.ConfirmWait) {
		return StateCancelled
	}
	cur, ok := w.agg.Len(sessionID)
	if !ok {
		return StateErrored
	}
	if cur == last {
		return StateComplete
	}

	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		w.logger.Debug("Response still streaming, retrying quiescence check",
			"session_id", sessionID,
			"attempt", attempt,
			"buffer_bytes", cur)

		if !w.wait(ctx, w.cfg.RetryWait) {
			return StateCancelled
		}
		last, ok = w.agg.Len(sessionID)
		if !ok {
			return StateErrored
		}

		if !w.wait(ctx, w.cfg.ConfirmWait) {
			return StateCancelled
		}
		cur, ok = w.agg.Len(sessionID)
		if !ok {
			return StateErrored
		}
		if cur == last {
			return StateComplete
		}
	}

	w.logger.Warn("Retry budget exhausted, forcing completion",
		"session_id", sessionID,
		"buffer_bytes", cur)
	return StateForcedComplete
}

// wait sleeps for d on the watcher's clock. It reports false if the
// context was cancelled first.
func (w *watcher) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-w.clock.After(d):
		return true
	}
}
