// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"

	"github.com/doublecheck-agents/doublecheck/a2a"
	"github.com/doublecheck-agents/doublecheck/server/task"
)

// ResponseGenerator produces an answer to a user query. model.Generator is
// the canonical implementation.
type ResponseGenerator interface {
	Generate(ctx context.Context, query string) (string, error)
}

// ProcessorHandler replies with the generated answer to the submitted
// query.
func ProcessorHandler(generator ResponseGenerator) task.Handler {
	return task.HandlerFunc(func(ctx context.Context, t *a2a.Task) (*a2a.Task, error) {
		answer, err := generator.Generate(ctx, t.LatestText())
		if err != nil {
			return nil, err
		}
		return reply(t, answer), nil
	})
}
