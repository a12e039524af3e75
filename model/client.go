// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/doublecheck-agents/doublecheck/internal/observability"
)

// maxResponseSize limits the model response body to prevent memory
// exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Client talks to an OpenAI-compatible chat completions endpoint (OpenAI,
// Ollama, vLLM, OpenRouter) with retry and backoff.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	retry      RetryConfig

	// temperature is the default sampling temperature for requests that
	// don't set their own.
	temperature float64
	// maxTokens is the default completion cap. Zero means provider default.
	maxTokens int

	logger *slog.Logger
}

var _ Completer = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retry = cfg
	}
}

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) ClientOption {
	return func(client *Client) {
		client.apiKey = key
	}
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) ClientOption {
	return func(client *Client) {
		client.temperature = t
	}
}

// WithMaxTokens sets the default completion token cap.
func WithMaxTokens(n int) ClientOption {
	return func(client *Client) {
		client.maxTokens = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a client for the given OpenAI-compatible base URL.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:    endpoint,
		retry:       DefaultRetryConfig(),
		temperature: 0.2,
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // Allow time for model responses
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// chatRequest is the OpenAI-compatible request format.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// chatResponse is the OpenAI-compatible response format.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a completion request, retrying transient failures with
// exponential backoff.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	body, err := c.buildRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	started := time.Now()

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := c.retry.backoff(attempt - 1)
			c.logger.Warn("model request failed, retrying",
				"model", req.Model, "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		resp, retryable, err := c.tryOnce(ctx, body)
		if err == nil {
			observability.ObserveModelCall(req.Model, "success", time.Since(started))
			c.logger.DebugContext(ctx, "model call completed",
				"model", resp.Model, "tokens", resp.TokensUsed, "finish_reason", resp.FinishReason)
			return resp, nil
		}

		lastErr = err
		if !retryable {
			break
		}
	}

	observability.ObserveModelCall(req.Model, "error", time.Since(started))
	return nil, fmt.Errorf("model request failed after %d attempts: %w", c.retry.MaxAttempts, lastErr)
}

func (c *Client) buildRequestBody(req Request) ([]byte, error) {
	body := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
	}
	if body.Temperature == nil {
		t := c.temperature
		body.Temperature = &t
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		body.MaxTokens = &maxTokens
	}

	return sonic.ConfigFastest.Marshal(body)
}

// tryOnce performs a single HTTP round trip. The second return reports
// whether the failure is worth retrying.
func (c *Client) tryOnce(ctx context.Context, body []byte) (*Response, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient until proven otherwise.
		return nil, ctx.Err() == nil, fmt.Errorf("send request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		retryable := httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed chatResponse
	if err := sonic.ConfigFastest.Unmarshal(respBody, &parsed); err != nil {
		return nil, false, fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return nil, false, fmt.Errorf("model error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, false, fmt.Errorf("no choices in response")
	}

	return &Response{
		Content:      parsed.Choices[0].Message.Content,
		Model:        parsed.Model,
		TokensUsed:   parsed.Usage.TotalTokens,
		FinishReason: parsed.Choices[0].FinishReason,
	}, false, nil
}

// completionsURL resolves the chat completions endpoint from the base URL.
func (c *Client) completionsURL() string {
	base := strings.TrimSuffix(c.endpoint, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
