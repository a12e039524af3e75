// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"

	"github.com/doublecheck-agents/doublecheck/a2a"
	"github.com/doublecheck-agents/doublecheck/server/task"
)

// PipelineRunner drives a query through the validation pipeline and returns
// the user-facing response. workflow.Coordinator is the canonical
// implementation.
type PipelineRunner interface {
	Run(ctx context.Context, workflowID, query string) string
}

// ManagerHandler runs the validation pipeline for the submitted query and
// replies with its result. The root task id doubles as the workflow id, so
// every user query is traceable to its stage child tasks.
func ManagerHandler(runner PipelineRunner) task.Handler {
	return task.HandlerFunc(func(ctx context.Context, t *a2a.Task) (*a2a.Task, error) {
		return reply(t, runner.Run(ctx, t.ID, t.LatestText())), nil
	})
}
