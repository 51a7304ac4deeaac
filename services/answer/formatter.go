// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package answer turns graph records into a grounded natural-language
// answer via the chat model.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/casegraph/casegraph/services/llm"
	"github.com/casegraph/casegraph/services/planner/graph"
)

// systemPrompt pins the formatter to the retrieved facts. The model gets one
// question and one pre-retrieved answer and must restate, never invent.
const systemPrompt = `Você é o assistente do sistema investigativo CaseGraph.
Te enviarei 1 pergunta e 1 resposta e quero que você formate a resposta usando APENAS as informações que estão na resposta, sem adicionar informações que não estão na resposta.`

// noDataText is the context shown to the model when retrieval came back
// empty.
const noDataText = "Nenhum dado encontrado."

// keyLabels maps raw graph property names to reader-facing labels.
var keyLabels = map[string]string{
	"personFullName": "Nome",
	"cpf":            "CPF",
}

// Formatter renders the final answer through a chat model.
//
// # Thread Safety
//
// Safe for concurrent use.
type Formatter struct {
	client llm.ChatClient
	logger *slog.Logger

	temperature float64
	numCtx      int
}

// NewFormatter creates a Formatter over a chat client.
func NewFormatter(client llm.ChatClient, temperature float64, numCtx int, logger *slog.Logger) (*Formatter, error) {
	if client == nil {
		return nil, fmt.Errorf("answer: chat client must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Formatter{
		client:      client,
		logger:      logger,
		temperature: temperature,
		numCtx:      numCtx,
	}, nil
}

// Answer formats the retrieved records into a natural-language reply.
//
// # Description
//
// With records, the user turn carries the question and the rendered context
// under PERGUNTA/RESPOSTA headings and the model restates the facts. With
// nil records the question goes through alone as plain chat.
//
// # Inputs
//
//   - ctx: Context for the chat call.
//   - query: The user's original question.
//   - records: Retrieved graph records. Nil means chat-only; empty but
//     non-nil means retrieval ran and found nothing.
//
// # Outputs
//
//   - string: The model's reply.
//   - error: Non-nil if the chat call fails.
func (f *Formatter) Answer(ctx context.Context, query string, records []graph.Record) (string, error) {
	userContent := query
	if records != nil {
		userContent = fmt.Sprintf("PERGUNTA:\n%s\n\nRESPOSTA:\n%s\n", query, FormatContext(records))
	}

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userContent},
	}

	f.logger.Debug("answer: formatting",
		slog.Int("records", len(records)),
		slog.Bool("grounded", records != nil),
	)

	temp := f.temperature
	numCtx := f.numCtx
	return f.client.Chat(ctx, messages, llm.GenerationParams{
		Temperature: &temp,
		NumCtx:      &numCtx,
	})
}

// FormatContext renders graph records as numbered, labeled lines.
//
// # Description
//
// Each record becomes a numbered block of "  - Label: value" lines. A record
// holding a single nested map is unwrapped first (templates return one
// aliased node). Lists join with commas, single-element lists collapse.
// Keys render sorted so output is deterministic.
func FormatContext(records []graph.Record) string {
	if len(records) == 0 {
		return noDataText
	}

	var b strings.Builder
	for i, rec := range records {
		fmt.Fprintf(&b, "%d:\n", i+1)

		data := map[string]any(rec)
		if len(rec) == 1 {
			for _, v := range rec {
				if m, ok := v.(map[string]any); ok {
					data = m
				}
			}
		}

		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			fmt.Fprintf(&b, "  - %s: %s\n", prettifyKey(k), renderValue(data[k]))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func prettifyKey(key string) string {
	if label, ok := keyLabels[key]; ok {
		return label
	}
	return strings.ReplaceAll(key, "_", " ")
}

func renderValue(v any) string {
	if list, ok := v.([]any); ok {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}
