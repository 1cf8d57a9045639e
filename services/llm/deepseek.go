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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianRelay/services/relay/conversation"
)

// =============================================================================
// DeepSeek Streaming Client
// =============================================================================

const (
	// DefaultDeepSeekBaseURL is the hosted DeepSeek endpoint, which speaks
	// the OpenAI chat completions protocol.
	DefaultDeepSeekBaseURL = "https://api.deepseek.com/v1"

	// DefaultDeepSeekModel is the chat model used when none is configured.
	DefaultDeepSeekModel = "deepseek-chat"
)

const systemPromptGrounded = `You are a helpful assistant. Answer the user's question using the ` +
	`retrieved documents below. Cite a document by its bracketed number when you rely on it. ` +
	`If the documents do not cover the question, say so and answer from general knowledge.

Retrieved documents:
%s`

const systemPromptUngrounded = `You are a helpful assistant. No retrieved documents are ` +
	`available for this question; answer from general knowledge.`

// DeepSeekConfig configures a DeepSeek streaming client.
type DeepSeekConfig struct {
	// APIKey authenticates against the DeepSeek API. Required.
	APIKey string

	// BaseURL overrides the API endpoint. Defaults to
	// DefaultDeepSeekBaseURL; point it at any OpenAI-compatible server.
	BaseURL string

	// Model is the chat model name. Defaults to DefaultDeepSeekModel.
	Model string

	// Logger receives stream lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

// DeepSeekClient streams chat completions from a DeepSeek-compatible API.
//
// # Description
//
// DeepSeek exposes the OpenAI wire protocol, so the client rides on the
// go-openai SDK with a swapped base URL. Each StreamResponse call opens
// one SSE stream in a background goroutine and forwards content deltas
// to the chunk handler as they arrive.
type DeepSeekClient struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

var _ StreamingClient = (*DeepSeekClient)(nil)

// NewDeepSeekClient creates a streaming client from cfg.
func NewDeepSeekClient(cfg DeepSeekConfig) (*DeepSeekClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: DeepSeek API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultDeepSeekBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultDeepSeekModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL

	return &DeepSeekClient{
		client: openai.NewClientWithConfig(apiCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}, nil
}

// StreamResponse implements StreamingClient.
func (d *DeepSeekClient) StreamResponse(
	ctx context.Context,
	message string,
	ragContext string,
	history []conversation.HistoryEntry,
	onChunk ChunkHandler,
	onError ErrorHandler,
) {
	req := openai.ChatCompletionRequest{
		Model:    d.model,
		Messages: buildMessages(message, ragContext, history),
		Stream:   true,
	}

	go func() {
		stream, err := d.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("Failed to open completion stream", "error", err)
			onError(fmt.Errorf("opening completion stream: %w", err))
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				// Normal end of stream. Deliberately not surfaced: the
				// caller detects completion from output quiescence.
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				d.logger.Error("Completion stream failed", "error", err)
				onError(fmt.Errorf("reading completion stream: %w", err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if delta := resp.Choices[0].Delta.Content; delta != "" {
				onChunk(delta)
			}
		}
	}()
}

// buildMessages assembles the prompt: one system message carrying the
// retrieval grounding, the prior turns in order, then the new message.
func buildMessages(message, ragContext string, history []conversation.HistoryEntry) []openai.ChatCompletionMessage {
	system := systemPromptUngrounded
	if strings.TrimSpace(ragContext) != "" {
		system = fmt.Sprintf(systemPromptGrounded, ragContext)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == conversation.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Content,
		})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})
}
