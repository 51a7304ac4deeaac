// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides chat completion clients for answer formatting.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// =============================================================================
// Message Types
// =============================================================================

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

// GenerationParams tunes a single chat call. Nil pointers take the
// provider-side defaults.
type GenerationParams struct {
	Temperature   *float64
	NumCtx        *int
	KeepAlive     string // Ollama model residency, e.g. "10m"; ignored elsewhere
	ModelOverride string
}

// ChatClient is the chat completion contract the answer layer depends on.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}

// =============================================================================
// Ollama Wire Types
// =============================================================================

const defaultOllamaChatURL = "http://localhost:11434/api/chat"

type ollamaChatRequest struct {
	Model     string             `json:"model"`
	Messages  []Message          `json:"messages"`
	Stream    bool               `json:"stream"`
	KeepAlive string             `json:"keep_alive,omitempty"`
	Options   *ollamaChatOptions `json:"options,omitempty"`
}

type ollamaChatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumCtx      *int     `json:"num_ctx,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// =============================================================================
// Client Implementation
// =============================================================================

// OllamaClient implements ChatClient against the Ollama chat API using raw
// net/http.
//
// # Description
//
// Sends non-streaming chat completion requests. One HTTP round trip per
// call; the full assistant message comes back in a single JSON body.
//
// # Thread Safety
//
// Safe for concurrent use.
type OllamaClient struct {
	httpClient *http.Client
	url        string
	model      string
	logger     *slog.Logger
}

// NewOllamaClient creates an OllamaClient.
//
// # Description
//
// Empty url or model fall back to LLM_SERVICE_URL / LLM_MODEL from the
// environment, then to localhost defaults.
//
// # Inputs
//
//   - url: Chat endpoint. May be empty.
//   - model: Model name. May be empty.
//   - logger: Logger. May be nil.
func NewOllamaClient(url, model string, logger *slog.Logger) *OllamaClient {
	if url == "" {
		url = os.Getenv("LLM_SERVICE_URL")
	}
	if url == "" {
		url = defaultOllamaChatURL
	}
	if model == "" {
		model = os.Getenv("LLM_MODEL")
	}
	if model == "" {
		model = "llama3.1:8b"
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("llm: ollama client initialized", slog.String("url", url), slog.String("model", model))
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		url:        url,
		model:      model,
		logger:     logger,
	}
}

// Chat sends the conversation and returns the assistant's reply text.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - messages: Conversation history, system prompt included.
//   - params: Per-call generation overrides.
//
// # Outputs
//
//   - string: Assistant reply content.
//   - error: Non-nil on transport, status, or provider-reported errors.
//
// # Thread Safety
//
// Safe for concurrent use.
func (o *OllamaClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	model := o.model
	if params.ModelOverride != "" {
		model = params.ModelOverride
	}

	payload := ollamaChatRequest{
		Model:     model,
		Messages:  messages,
		Stream:    false,
		KeepAlive: params.KeepAlive,
	}
	if params.Temperature != nil || params.NumCtx != nil {
		payload.Options = &ollamaChatOptions{
			Temperature: params.Temperature,
			NumCtx:      params.NumCtx,
		}
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ollama: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("ollama: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	o.logger.Debug("llm: sending chat request",
		slog.String("model", model),
		slog.Int("messages", len(messages)),
	)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("ollama: decoding response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("ollama: provider error: %s", parsed.Error)
	}
	return parsed.Message.Content, nil
}
