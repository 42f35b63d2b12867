// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
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

func TestOllamaGenerate(t *testing.T) {
	var gotReq ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s, want /api/generate", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model:    gotReq.Model,
			Response: "hello back",
			Done:     true,
		})
	}))
	defer server.Close()

	client := NewOllamaClientWithBaseURL(server.URL, "llama3")

	temp := float32(0.7)
	out, err := client.Generate(context.Background(), "hello", GenerationParams{Temperature: &temp})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "hello back" {
		t.Errorf("response = %q, want %q", out, "hello back")
	}
	if gotReq.Model != "llama3" || gotReq.Prompt != "hello" || gotReq.Stream {
		t.Errorf("bad request payload: %+v", gotReq)
	}
	if gotReq.Options["temperature"] != 0.7 {
		t.Errorf("temperature option = %v, want 0.7", gotReq.Options["temperature"])
	}
}

func TestOllamaChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s, want /api/chat", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: Message{Role: "assistant", Content: "chat reply"},
			Done:    true,
		})
	}))
	defer server.Close()

	client := NewOllamaClientWithBaseURL(server.URL, "llama3")

	out, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	}, GenerationParams{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "chat reply" {
		t.Errorf("response = %q, want %q", out, "chat reply")
	}
}

func TestOllamaModelNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "model 'missing' not found"})
	}))
	defer server.Close()

	client := NewOllamaClientWithBaseURL(server.URL, "missing")

	_, err := client.Generate(context.Background(), "hello", GenerationParams{})
	if err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestOllamaName(t *testing.T) {
	client := NewOllamaClientWithBaseURL("http://localhost:11434", "llama3")
	if client.Name() != "ollama/llama3" {
		t.Errorf("Name = %s", client.Name())
	}
}
