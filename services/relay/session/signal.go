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

import "sync"

// =============================================================================
// Completion Signal
// =============================================================================

// Signal is a single-assignment completion future for one session.
//
// # Description
//
// Both the quiescence watcher and the generation error callback race to
// end a session. Whoever wins Claim first owns the finalization, runs it,
// and settles the Signal with Resolve or Reject. The loser sees Claim
// report false and backs off without touching the client or the stores.
//
// # Thread Safety
//
// Safe for concurrent use.
type Signal struct {
	mu      sync.Mutex
	claimed bool
	settled bool
	text    string
	err     error
	done    chan struct{}
}

// NewSignal creates an unclaimed, unsettled Signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Claim atomically marks the Signal as owned. Exactly one caller over the
// Signal's lifetime observes true; every other caller observes false.
func (s *Signal) Claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed {
		return false
	}
	s.claimed = true
	return true
}

// Resolve settles the Signal with the final response text. Only the first
// settlement takes effect.
func (s *Signal) Resolve(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		return
	}
	s.settled = true
	s.text = text
	close(s.done)
}

// Reject settles the Signal with an error. Only the first settlement
// takes effect.
func (s *Signal) Reject(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		return
	}
	s.settled = true
	s.err = err
	close(s.done)
}

// Done returns a channel that is closed once the Signal is settled.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Result returns the settled text and error. It is only meaningful after
// Done is closed.
func (s *Signal) Result() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, s.err
}
