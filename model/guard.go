// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"fmt"
	"strings"
)

const guardPromptFormat = `Please analyze the following user query for any potential safety concerns
or vulnerabilities. Provide a rating of SAFE or UNSAFE, followed by
an explanation of your reasoning.

User query: %q

Decision (SAFE/UNSAFE):`

// Guard screens user queries for safety concerns before they reach the
// generator.
type Guard struct {
	completer Completer
	model     string
}

// NewGuard creates a Guard using the given model.
func NewGuard(completer Completer, model string) *Guard {
	return &Guard{completer: completer, model: model}
}

// Check screens a query. It returns whether the query is safe to process
// along with the model's verbatim explanation.
func (g *Guard) Check(ctx context.Context, query string) (bool, string, error) {
	resp, err := g.completer.Complete(ctx, Request{
		Model:    g.model,
		Messages: UserMessage(fmt.Sprintf(guardPromptFormat, query)),
	})
	if err != nil {
		return false, "", fmt.Errorf("safety check: %w", err)
	}

	explanation := strings.TrimSpace(resp.Content)

	// UNSAFE wins over SAFE since the latter is a substring of the former.
	safe := !strings.Contains(strings.ToUpper(explanation), "UNSAFE")
	return safe, explanation, nil
}
