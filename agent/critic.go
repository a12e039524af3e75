// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/doublecheck-agents/doublecheck/a2a"
	"github.com/doublecheck-agents/doublecheck/model"
	"github.com/doublecheck-agents/doublecheck/server/task"
)

// CriticDelimiter separates the user query from the response under
// evaluation in a critic submission.
const CriticDelimiter = " ||| "

// ResponseEvaluator rates a response against its originating query.
// model.Evaluator is the canonical implementation.
type ResponseEvaluator interface {
	Evaluate(ctx context.Context, query, response string) (model.Evaluation, error)
}

// CriticHandler expects submissions of the form "USER_QUERY ||| RESPONSE"
// and replies with the evaluation verdict. Malformed submissions and
// evaluation failures produce an "Error..." reply on a completed task; the
// critic never fails the task itself.
func CriticHandler(evaluator ResponseEvaluator) task.Handler {
	return task.HandlerFunc(func(ctx context.Context, t *a2a.Task) (*a2a.Task, error) {
		parts := strings.Split(t.LatestText(), CriticDelimiter)
		if len(parts) != 2 {
			return reply(t, "Error: Message should contain 'USER_QUERY ||| RESPONSE'"), nil
		}

		eval, err := evaluator.Evaluate(ctx, parts[0], parts[1])
		if err != nil {
			return reply(t, fmt.Sprintf("Error evaluating response: %v", err)), nil
		}

		return reply(t, fmt.Sprintf("Rating: %d/5\n\nExplanation: %s", eval.Rating, eval.Explanation)), nil
	})
}
