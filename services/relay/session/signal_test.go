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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_ClaimExactlyOnce(t *testing.T) {
	s := NewSignal()

	assert.True(t, s.Claim())
	assert.False(t, s.Claim())
	assert.False(t, s.Claim())
}

func TestSignal_ConcurrentClaimHasOneWinner(t *testing.T) {
	s := NewSignal()

	const contenders = 32
	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Claim() {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestSignal_ResolveSettlesDone(t *testing.T) {
	s := NewSignal()

	select {
	case <-s.Done():
		t.Fatal("Done closed before settlement")
	default:
	}

	s.Resolve("final text")

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Done never closed")
	}

	text, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, "final text", text)
}

func TestSignal_RejectSettlesWithError(t *testing.T) {
	s := NewSignal()
	cause := errors.New("generation failed")

	s.Reject(cause)
	<-s.Done()

	_, err := s.Result()
	assert.ErrorIs(t, err, cause)
}

func TestSignal_FirstSettlementWins(t *testing.T) {
	s := NewSignal()

	s.Resolve("winner")
	s.Reject(errors.New("too late"))
	s.Resolve("also too late")

	text, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, "winner", text)
}
