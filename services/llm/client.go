// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"

	"github.com/AleutianAI/AleutianRelay/services/relay/conversation"
)

// =============================================================================
// Streaming Client Interface
// =============================================================================

// ChunkHandler receives one streamed content delta.
type ChunkHandler func(chunk string)

// ErrorHandler receives a terminal generation failure.
type ErrorHandler func(err error)

// StreamingClient generates a model response as a stream of chunks.
//
// # Description
//
// StreamResponse is fire-and-forget: it starts generation in the
// background and returns immediately. Chunks are delivered through
// onChunk and failures through onError; there is no completion callback.
// End of stream is never reported by the provider, which is why the
// caller runs quiescence detection on the accumulated output instead.
//
// # Assumptions
//
//   - onChunk and onError are safe to call from a background goroutine.
//   - onError is called at most once, and never after the stream ended
//     normally.
//   - Cancelling ctx stops generation without invoking onError.
type StreamingClient interface {
	StreamResponse(
		ctx context.Context,
		message string,
		ragContext string,
		history []conversation.HistoryEntry,
		onChunk ChunkHandler,
		onError ErrorHandler,
	)
}
