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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSchedule keeps the production shape but is inspected by name in
// the step helpers below.
func testSchedule() WatcherConfig {
	return WatcherConfig{
		InitialWait: 3 * time.Second,
		ConfirmWait: 2 * time.Second,
		RetryWait:   5 * time.Second,
		MaxRetries:  5,
	}
}

// awaitWaiter blocks until the watcher goroutine has parked on the
// manual clock, so an Advance cannot race past it.
func awaitWaiter(t *testing.T, clock *ManualClock) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if clock.Waiters() > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("watcher never parked on the clock")
}

// step advances the clock through one watcher wait.
func step(t *testing.T, clock *ManualClock, d time.Duration) {
	t.Helper()
	awaitWaiter(t, clock)
	clock.Advance(d)
}

// runWatcher starts the watcher in the background and returns the
// verdict channel.
func runWatcher(ctx context.Context, clock *ManualClock, agg *Aggregator, sessionID string) <-chan State {
	out := make(chan State, 1)
	w := newWatcher(testSchedule(), clock, agg, nil)
	go func() {
		out <- w.Run(ctx, sessionID)
	}()
	return out
}

// verdict waits for the watcher to finish.
func verdict(t *testing.T, out <-chan State) State {
	t.Helper()
	select {
	case s := <-out:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never returned")
		return StateErrored
	}
}

func TestWatcher_CompleteWhenQuietAfterFirstConfirm(t *testing.T) {
	clock := NewManualClock(time.Now())
	agg := NewAggregator(nil)
	agg.Open("s1")
	agg.Append("s1", "Hi there")

	out := runWatcher(context.Background(), clock, agg, "s1")

	step(t, clock, 3*time.Second)
	step(t, clock, 2*time.Second)

	assert.Equal(t, StateComplete, verdict(t, out))
}

func TestWatcher_CompleteAfterOneRetry(t *testing.T) {
	clock := NewManualClock(time.Now())
	agg := NewAggregator(nil)
	agg.Open("s1")
	agg.Append("s1", "Hi")

	out := runWatcher(context.Background(), clock, agg, "s1")

	// First round sees growth between samples. The append lands only
	// after the watcher has parked on the confirm wait, so the first
	// sample cannot observe it.
	step(t, clock, 3*time.Second)
	awaitWaiter(t, clock)
	agg.Append("s1", " there")
	clock.Advance(2 * time.Second)

	// Retry round sees a quiet buffer.
	step(t, clock, 5*time.Second)
	step(t, clock, 2*time.Second)

	assert.Equal(t, StateComplete, verdict(t, out))
}

func TestWatcher_ForcedCompleteAfterRetryBudget(t *testing.T) {
	clock := NewManualClock(time.Now())
	agg := NewAggregator(nil)
	agg.Open("s1")

	out := runWatcher(context.Background(), clock, agg, "s1")

	step(t, clock, 3*time.Second)
	awaitWaiter(t, clock)
	agg.Append("s1", "x")
	clock.Advance(2 * time.Second)
	for i := 0; i < testSchedule().MaxRetries; i++ {
		step(t, clock, 5*time.Second)
		awaitWaiter(t, clock)
		agg.Append("s1", "x")
		clock.Advance(2 * time.Second)
	}

	assert.Equal(t, StateForcedComplete, verdict(t, out))
}

func TestWatcher_ErroredWhenSessionNeverOpened(t *testing.T) {
	clock := NewManualClock(time.Now())
	agg := NewAggregator(nil)

	out := runWatcher(context.Background(), clock, agg, "ghost")

	step(t, clock, 3*time.Second)

	assert.Equal(t, StateErrored, verdict(t, out))
}

func TestWatcher_ErroredWhenBufferClosedMidRun(t *testing.T) {
	clock := NewManualClock(time.Now())
	agg := NewAggregator(nil)
	agg.Open("s1")
	agg.Append("s1", "partial")

	out := runWatcher(context.Background(), clock, agg, "s1")

	step(t, clock, 3*time.Second)
	awaitWaiter(t, clock)
	agg.Close("s1")
	clock.Advance(2 * time.Second)

	assert.Equal(t, StateErrored, verdict(t, out))
}

func TestWatcher_CancelledMidWait(t *testing.T) {
	clock := NewManualClock(time.Now())
	agg := NewAggregator(nil)
	agg.Open("s1")

	ctx, cancel := context.WithCancel(context.Background())
	out := runWatcher(ctx, clock, agg, "s1")

	awaitWaiter(t, clock)
	cancel()

	assert.Equal(t, StateCancelled, verdict(t, out))
}

func TestWatcher_WorstCaseBudget(t *testing.T) {
	cfg := testSchedule()
	worst := cfg.InitialWait + cfg.ConfirmWait +
		time.Duration(cfg.MaxRetries)*(cfg.RetryWait+cfg.ConfirmWait)
	require.Equal(t, 40*time.Second, worst)
}

func TestManualClock_AdvanceFiresDueWaiters(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))

	short := clock.After(time.Second)
	long := clock.After(time.Minute)

	clock.Advance(time.Second)
	select {
	case <-short:
	default:
		t.Fatal("due waiter did not fire")
	}
	select {
	case <-long:
		t.Fatal("future waiter fired early")
	default:
	}
	assert.Equal(t, 1, clock.Waiters())
}
