// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var searchTracer = otel.Tracer("aleutian.relay.rag")

// =============================================================================
// Interface Definition
// =============================================================================

// Searcher defines the contract with the external retrieval collaborator.
//
// # Description
//
// SearchWithPermission returns ranked passages the given user is allowed
// to see, best first. The relay consumes results for a single turn and
// never stores them. A failure here aborts the turn before generation
// starts.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Searcher interface {
	// SearchWithPermission returns up to topK results for the query,
	// restricted to documents visible to userID.
	SearchWithPermission(ctx context.Context, query, userID string, topK int) ([]SearchResult, error)
}

// =============================================================================
// Weaviate Implementation
// =============================================================================

// weaviateDocumentResponse is the typed GraphQL response shape for the
// Document class query.
type weaviateDocumentResponse struct {
	Get struct {
		Document []struct {
			Content    string `json:"content"`
			Source     string `json:"source"`
			Additional struct {
				Certainty float64 `json:"certainty"`
			} `json:"_additional"`
		} `json:"Document"`
	} `json:"Get"`
}

// weaviateSearcher implements Searcher against a Weaviate instance.
//
// Documents are visible to a user when their owner field matches the user
// id or their scope is "public".
type weaviateSearcher struct {
	client *weaviate.Client
}

// NewWeaviateSearcher creates a Searcher backed by the given Weaviate
// client. Panics on a nil client (programming error); use NewNoopSearcher
// for lightweight mode.
func NewWeaviateSearcher(client *weaviate.Client) Searcher {
	if client == nil {
		panic("NewWeaviateSearcher: client must not be nil")
	}
	return &weaviateSearcher{client: client}
}

// SearchWithPermission runs a nearText query over the Document class.
//
// # Description
//
// Queries content, source and retrieval certainty, filtered to documents
// the user may see, limited to topK. The response is marshaled through
// JSON into a typed struct for compile-time safety. Result order is
// Weaviate's relevance order and is preserved as-is.
//
// # Outputs
//
//   - []SearchResult: Ranked results, possibly empty. Never nil on success.
//   - error: Non-nil if the query or response decoding fails.
func (w *weaviateSearcher) SearchWithPermission(ctx context.Context, query, userID string, topK int) ([]SearchResult, error) {
	ctx, span := searchTracer.Start(ctx, "weaviateSearcher.SearchWithPermission")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("top_k", topK),
	)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	nearText := w.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	visibleTo := filters.Where().
		WithOperator(filters.Or).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().
				WithPath([]string{"owner"}).
				WithOperator(filters.Equal).
				WithValueString(userID),
			filters.Where().
				WithPath([]string{"scope"}).
				WithOperator(filters.Equal).
				WithValueString("public"),
		})

	result, err := w.client.GraphQL().Get().
		WithClassName("Document").
		WithNearText(nearText).
		WithWhere(visibleTo).
		WithLimit(topK).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("weaviate document search: %w", err)
	}
	if len(result.Errors) > 0 {
		err := fmt.Errorf("weaviate graphql error: %s", result.Errors[0].Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	jsonBytes, err := json.Marshal(result.Data)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("marshal weaviate response: %w", err)
	}

	var typed weaviateDocumentResponse
	if err := json.Unmarshal(jsonBytes, &typed); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("unmarshal weaviate response: %w", err)
	}

	results := make([]SearchResult, 0, len(typed.Get.Document))
	for _, doc := range typed.Get.Document {
		results = append(results, SearchResult{
			Content: doc.Content,
			Source:  doc.Source,
			Score:   doc.Additional.Certainty,
		})
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	slog.Debug("document search completed",
		"user_id", userID,
		"results", len(results),
	)
	return results, nil
}

// =============================================================================
// No-op Implementation
// =============================================================================

// noopSearcher always returns no results. Used when no Weaviate instance
// is configured; turns proceed ungrounded with an empty context.
type noopSearcher struct{}

// NewNoopSearcher creates a Searcher for lightweight mode.
func NewNoopSearcher() Searcher {
	return &noopSearcher{}
}

// SearchWithPermission returns an empty result set.
func (n *noopSearcher) SearchWithPermission(_ context.Context, _, _ string, _ int) ([]SearchResult, error) {
	return []SearchResult{}, nil
}

var (
	_ Searcher = (*weaviateSearcher)(nil)
	_ Searcher = (*noopSearcher)(nil)
)
