// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package embedding provides the embedding provider client, the vector math
// used for cosine scoring, and BadgerDB persistence for pre-computed catalog
// vectors.
package embedding

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
// Ollama Wire Types
// =============================================================================

// ollamaEmbedReq is the Ollama /api/embed request body.
type ollamaEmbedReq struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// ollamaEmbedResp is the Ollama /api/embed response body.
type ollamaEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// =============================================================================
// Client
// =============================================================================

// Client calls an Ollama-compatible /api/embed endpoint and returns one
// embedding vector per input text.
//
// # Description
//
// The same client instance (same endpoint, same model) must be used both
// when warming the intent catalog and when embedding live queries —
// otherwise cosine scores between the two are meaningless. The model name
// is therefore part of the catalog's corpus hash (see catalog.Warm).
//
// The model must be multilingual: catalog examples and user queries are
// Portuguese.
//
// # Thread Safety
//
// Safe for concurrent use.
type Client struct {
	url    string
	model  string
	client *http.Client
	logger *slog.Logger
}

// NewClient creates an embedding client for the given endpoint and model.
//
// # Description
//
// Empty url or model fall back to the EMBEDDING_SERVICE_URL and
// EMBEDDING_MODEL environment variables, then to localhost Ollama with the
// multilingual MiniLM model the catalog was designed for.
//
// # Inputs
//
//   - url: Full /api/embed endpoint URL. May be empty.
//   - model: Embedding model name. May be empty.
//   - logger: Logger for warnings. May be nil.
//
// # Outputs
//
//   - *Client: Ready-to-use client. Never nil.
func NewClient(url, model string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		url = os.Getenv("EMBEDDING_SERVICE_URL")
	}
	if url == "" {
		url = "http://localhost:11434/api/embed"
	}
	if model == "" {
		model = os.Getenv("EMBEDDING_MODEL")
	}
	if model == "" {
		model = "paraphrase-multilingual"
	}

	return &Client{
		url:   url,
		model: model,
		client: &http.Client{
			Timeout: 30 * time.Second, // catalog warm-up can be slow; callers set tighter per-query deadlines via ctx
		},
		logger: logger,
	}
}

// Model returns the configured embedding model name.
func (c *Client) Model() string {
	return c.model
}

// Embed returns the embedding vector for text.
//
// # Description
//
// Deterministic given a fixed model version: the same text always produces
// the same vector. The returned vector is NOT normalized; callers that need
// cosine-as-dot-product must pass it through Unit.
//
// # Inputs
//
//   - ctx: Context for cancellation and deadline.
//   - text: Input text. Empty text is embedded like any other string.
//
// # Outputs
//
//   - []float32: Embedding vector. Never empty on success.
//   - error: Non-nil on transport failure, non-200 status, or empty vector.
//
// # Thread Safety
//
// Safe for concurrent use.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbedReq{
		Model: c.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed ollamaEmbedResp
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(parsed.Embeddings) == 0 || len(parsed.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed service returned empty vector")
	}

	return parsed.Embeddings[0], nil
}
