// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"

	"github.com/doublecheck-agents/doublecheck/a2a"
	"github.com/doublecheck-agents/doublecheck/server/task"
)

// SafetyChecker screens a query and reports whether it is safe along with
// an explanation. model.Guard is the canonical implementation.
type SafetyChecker interface {
	Check(ctx context.Context, query string) (bool, string, error)
}

// SafeguardHandler replies with the screening verdict for the submitted
// query: "SAFE: <explanation>" or "UNSAFE: <explanation>".
func SafeguardHandler(checker SafetyChecker) task.Handler {
	return task.HandlerFunc(func(ctx context.Context, t *a2a.Task) (*a2a.Task, error) {
		query := t.LatestText()

		safe, explanation, err := checker.Check(ctx, query)
		if err != nil {
			return nil, err
		}

		verdict := "UNSAFE: "
		if safe {
			verdict = "SAFE: "
		}
		return reply(t, verdict+explanation), nil
	})
}
