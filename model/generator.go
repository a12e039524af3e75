// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"fmt"
	"strings"
)

const generatorPromptFormat = `User query: %s

Please provide a thorough, accurate, and helpful response to this query.`

// Generator answers user queries.
type Generator struct {
	completer Completer
	model     string
}

// NewGenerator creates a Generator using the given model.
func NewGenerator(completer Completer, model string) *Generator {
	return &Generator{completer: completer, model: model}
}

// Generate produces a response to the query.
func (g *Generator) Generate(ctx context.Context, query string) (string, error) {
	resp, err := g.completer.Complete(ctx, Request{
		Model:    g.model,
		Messages: UserMessage(fmt.Sprintf(generatorPromptFormat, query)),
	})
	if err != nil {
		return "", fmt.Errorf("generate response: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
