// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func chatReply(content string) string {
	return fmt.Sprintf(`{
		"model": "test-model",
		"choices": [{"message": {"role": "assistant", "content": %q}, "finish_reason": "stop"}],
		"usage": {"total_tokens": 7}
	}`, content)
}

func TestClient_Complete(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		fmt.Fprint(w, chatReply("hello there"))
	}))
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL+"/v1", WithRetryConfig(fastRetry()), WithTemperature(0.5))

	resp, err := client.Complete(t.Context(), Request{
		Model:    "test-model",
		Messages: UserMessage("hi"),
	})
	if err != nil {
		t.Fatalf("Complete() returned error: %v", err)
	}

	if resp.Content != "hello there" {
		t.Errorf("Content = %q, want %q", resp.Content, "hello there")
	}
	if resp.Model != "test-model" {
		t.Errorf("Model = %q, want %q", resp.Model, "test-model")
	}
	if resp.TokensUsed != 7 {
		t.Errorf("TokensUsed = %d, want 7", resp.TokensUsed)
	}

	if gotPath != "/v1/chat/completions" {
		t.Errorf("request path = %q, want %q", gotPath, "/v1/chat/completions")
	}
	if gotBody["model"] != "test-model" {
		t.Errorf("request model = %v, want test-model", gotBody["model"])
	}
	if temp, ok := gotBody["temperature"].(float64); !ok || temp != 0.5 {
		t.Errorf("request temperature = %v, want 0.5", gotBody["temperature"])
	}
}

func TestClient_Complete_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, chatReply("recovered"))
	}))
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL, WithRetryConfig(fastRetry()))

	resp, err := client.Complete(t.Context(), Request{Model: "m", Messages: UserMessage("hi")})
	if err != nil {
		t.Fatalf("Complete() returned error: %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("Content = %q, want %q", resp.Content, "recovered")
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestClient_Complete_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL, WithRetryConfig(fastRetry()))

	_, err := client.Complete(t.Context(), Request{Model: "m", Messages: UserMessage("hi")})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestClient_Complete_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL, WithRetryConfig(fastRetry()))

	_, err := client.Complete(t.Context(), Request{Model: "m", Messages: UserMessage("hi")})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("error = %v, want attempt count included", err)
	}
}

func TestClient_Complete_Validation(t *testing.T) {
	t.Parallel()

	client := NewClient("http://localhost:1")

	if _, err := client.Complete(t.Context(), Request{Messages: UserMessage("hi")}); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := client.Complete(t.Context(), Request{Model: "m"}); err == nil {
		t.Error("expected error for missing messages")
	}
}

func TestClient_Complete_NoChoices(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"model": "m", "choices": []}`)
	}))
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL, WithRetryConfig(fastRetry()))

	_, err := client.Complete(t.Context(), Request{Model: "m", Messages: UserMessage("hi")})
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Errorf("Complete() = %v, want no choices error", err)
	}
}

func TestClient_Complete_APIKeyHeader(t *testing.T) {
	t.Parallel()

	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, chatReply("ok"))
	}))
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL, WithAPIKey("secret-key"), WithRetryConfig(fastRetry()))

	if _, err := client.Complete(t.Context(), Request{Model: "m", Messages: UserMessage("hi")}); err != nil {
		t.Fatalf("Complete() returned error: %v", err)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer secret-key")
	}
}

func TestRetryConfig_Backoff(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}

	tests := map[string]struct {
		retry int
		want  time.Duration
	}{
		"first retry":  {1, 2 * time.Second},
		"second retry": {2, 4 * time.Second},
		"third retry":  {3, 8 * time.Second},
		"capped":       {10, 30 * time.Second},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := cfg.backoff(tc.retry); got != tc.want {
				t.Errorf("backoff(%d) = %v, want %v", tc.retry, got, tc.want)
			}
		})
	}
}
