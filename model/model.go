// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

// Package model provides the language model client the agents generate,
// screen, and evaluate text with, plus the per-role wrappers around it.
package model

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines a completion request.
type Request struct {
	// Model is the model name to complete with.
	Model string

	// Messages is the chat history to send.
	Messages []Message

	// Temperature controls randomness. nil uses the client default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the client default.
	MaxTokens int
}

// Response contains the completion result.
type Response struct {
	// Content is the generated text.
	Content string

	// Model is the model that actually served the request.
	Model string

	// TokensUsed is the total tokens consumed, if reported.
	TokensUsed int

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// Completer is the completion surface the role wrappers depend on.
// Client is the canonical implementation.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// UserMessage builds a single-message chat with the user role.
func UserMessage(content string) []Message {
	return []Message{{Role: "user", Content: content}}
}
