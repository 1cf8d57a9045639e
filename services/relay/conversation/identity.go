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
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianRelay/services/relay/storage"
)

// =============================================================================
// Identity Resolver
// =============================================================================

// Resolver maps a user id to a durable conversation id.
//
// # Description
//
// Resolve looks up the user's current conversation mapping and creates one
// on first contact. The mapping is stored with a fixed TTL that is set only
// at creation: repeated activity does not extend the mapping's life, so a
// continuously active user is silently assigned a fresh conversation id
// once the window elapses. Fixed-window (rather than sliding) expiry is a
// retained product decision; change the policy here if requirements move
// to sliding expiry.
//
// # Thread Safety
//
// Safe for concurrent use; all state lives in the underlying store.
type Resolver struct {
	store storage.Store
	ttl   time.Duration
}

// NewResolver creates a Resolver backed by the given store with the
// default 7-day mapping TTL.
func NewResolver(store storage.Store) *Resolver {
	return NewResolverWithTTL(store, DefaultTTL)
}

// NewResolverWithTTL creates a Resolver with a custom mapping TTL.
// Intended for tests; production uses NewResolver.
func NewResolverWithTTL(store storage.Store, ttl time.Duration) *Resolver {
	return &Resolver{store: store, ttl: ttl}
}

// Resolve returns the user's current conversation id, creating a new
// mapping when none exists.
//
// # Description
//
// A missing or expired mapping yields a fresh UUID stored under
// user:{userID}:current_conversation with the configured TTL. An existing
// mapping is returned unchanged and its TTL is not refreshed.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - userID: Caller's stable user identifier.
//
// # Outputs
//
//   - string: The conversation id.
//   - error: Non-nil only for storage-level failures; the turn must not
//     proceed without an identity.
func (r *Resolver) Resolve(ctx context.Context, userID string) (string, error) {
	key := identityKey(userID)

	conversationID, found, err := r.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve conversation for user %s: %w", userID, err)
	}
	if found {
		slog.Debug("resolved existing conversation",
			"user_id", userID,
			"conversation_id", conversationID,
		)
		return conversationID, nil
	}

	conversationID = uuid.New().String()
	if err := r.store.Set(ctx, key, conversationID, r.ttl); err != nil {
		return "", fmt.Errorf("store conversation mapping for user %s: %w", userID, err)
	}

	slog.Info("created new conversation",
		"user_id", userID,
		"conversation_id", conversationID,
		"ttl", r.ttl.String(),
	)
	return conversationID, nil
}
