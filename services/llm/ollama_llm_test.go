// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newMockChatServer(t *testing.T, reply string, capture *ollamaChatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: Message{Role: "assistant", Content: reply},
			Done:    true,
		})
	}))
}

func TestChatReturnsAssistantContent(t *testing.T) {
	var got ollamaChatRequest
	srv := newMockChatServer(t, "Nome: Maria Souza\nCPF: 11122233344", &got)
	defer srv.Close()

	client := NewOllamaClient(srv.URL, "test-model", nil)
	messages := []Message{
		{Role: "system", Content: "system prompt"},
		{Role: "user", Content: "pergunta"},
	}
	reply, err := client.Chat(context.Background(), messages, GenerationParams{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply != "Nome: Maria Souza\nCPF: 11122233344" {
		t.Errorf("reply = %q", reply)
	}
	if got.Model != "test-model" {
		t.Errorf("request model = %s, want test-model", got.Model)
	}
	if got.Stream {
		t.Error("request stream = true, want false")
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("request messages = %+v", got.Messages)
	}
}

func TestChatSendsGenerationOptions(t *testing.T) {
	var got ollamaChatRequest
	srv := newMockChatServer(t, "ok", &got)
	defer srv.Close()

	client := NewOllamaClient(srv.URL, "test-model", nil)
	temp := 0.1
	numCtx := 8192
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "oi"}},
		GenerationParams{Temperature: &temp, NumCtx: &numCtx})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if got.Options == nil {
		t.Fatal("request options missing")
	}
	if got.Options.Temperature == nil || *got.Options.Temperature != 0.1 {
		t.Errorf("temperature = %v, want 0.1", got.Options.Temperature)
	}
	if got.Options.NumCtx == nil || *got.Options.NumCtx != 8192 {
		t.Errorf("num_ctx = %v, want 8192", got.Options.NumCtx)
	}
}

func TestChatModelOverride(t *testing.T) {
	var got ollamaChatRequest
	srv := newMockChatServer(t, "ok", &got)
	defer srv.Close()

	client := NewOllamaClient(srv.URL, "base-model", nil)
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "oi"}},
		GenerationParams{ModelOverride: "other-model"})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if got.Model != "other-model" {
		t.Errorf("request model = %s, want other-model", got.Model)
	}
}

func TestChatServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, "test-model", nil)
	if _, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "oi"}}, GenerationParams{}); err == nil {
		t.Fatal("Chat() with 500 response returned nil error")
	}
}

func TestChatProviderReportedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(ollamaChatResponse{Error: "model is loading"})
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, "test-model", nil)
	if _, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "oi"}}, GenerationParams{}); err == nil {
		t.Fatal("Chat() with provider error returned nil error")
	}
}
