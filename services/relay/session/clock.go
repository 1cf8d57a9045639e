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
	"sync"
	"time"
)

// =============================================================================
// Clock Abstraction
// =============================================================================

// Clock abstracts time for the quiescence watcher.
//
// # Description
//
// The watcher's waits all go through a Clock so tests can drive the
// 3s/2s/5s schedule deterministically instead of sleeping through it.
// Production code uses NewRealClock(); tests use NewManualClock().
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that delivers once, d from now.
	After(d time.Duration) <-chan time.Time
}

// realClock implements Clock on the system clock.
type realClock struct{}

// NewRealClock returns the production Clock.
func NewRealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// =============================================================================
// Manual Clock (for testing)
// =============================================================================

// manualWaiter is one pending After call on a ManualClock.
type manualWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

// ManualClock is a Clock whose time only moves when Advance is called.
//
// # Description
//
// After registers a waiter at now+d; Advance moves the clock forward and
// fires every waiter whose deadline has been reached. This lets watcher
// tests step through the detection schedule without real sleeps.
//
// # Thread Safety
//
// Safe for concurrent use.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []manualWaiter
}

// NewManualClock creates a ManualClock starting at the given time.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a waiter that fires when the clock advances past now+d.
// A non-positive d fires immediately.
func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, manualWaiter{deadline: c.now.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward by d and fires all due waiters.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.deadline.After(c.now) {
			w.ch <- c.now
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
}

// Waiters returns the number of pending After calls. Tests use this to
// synchronize with the watcher before advancing.
func (c *ManualClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

var (
	_ Clock = realClock{}
	_ Clock = (*ManualClock)(nil)
)
