// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rag provides retrieval plumbing for the relay service: the
// search client contract and the renderer that turns ranked results into
// the grounding context handed to the generation client.
package rag

import (
	"fmt"
	"strings"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxSnippetLen caps each rendered snippet, counted in characters.
	// Longer content is cut at the cap and marked with an ellipsis.
	MaxSnippetLen = 300

	// UnknownSource is the placeholder label for results that carry no
	// source attribution.
	UnknownSource = "unknown"

	// DefaultTopK is the number of results requested per turn.
	DefaultTopK = 5
)

// SearchResult is one ranked passage returned by the search collaborator.
//
// # Fields
//
//   - Content: The passage text.
//   - Source: Origin label (file name, document title). May be empty.
//   - Score: Relevance in [0, 1]. Informational; rendering preserves the
//     collaborator's order and never re-ranks.
type SearchResult struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// BuildContext renders ranked results into the prompt-context string.
//
// # Description
//
// Produces one newline-terminated line per result, in rank order:
//
//	[1] (source) snippet
//	[2] (unknown) snippet...
//
// Snippets longer than MaxSnippetLen are truncated and suffixed with
// "...". An empty result list yields an empty string, which the
// generation client treats as "no retrieval grounding". No reordering,
// no deduplication.
//
// # Inputs
//
//   - results: Ranked results, best first. May be nil or empty.
//
// # Outputs
//
//   - string: The rendered context, or "" when there is nothing to ground on.
func BuildContext(results []SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for i, result := range results {
		snippet := result.Content
		// Cap counts characters, not bytes, so multi-byte text is never
		// cut mid-rune.
		if runes := []rune(snippet); len(runes) > MaxSnippetLen {
			snippet = string(runes[:MaxSnippetLen]) + "..."
		}
		source := result.Source
		if source == "" {
			source = UnknownSource
		}
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, source, snippet)
	}
	return b.String()
}
