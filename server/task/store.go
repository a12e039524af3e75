// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

// Package task implements task persistence and the task lifecycle manager
// each agent service runs behind its protocol endpoint.
package task

import (
	"context"

	"github.com/doublecheck-agents/doublecheck/a2a"
)

// Store defines the interface for task persistence. Tasks are created on
// submission and retained for the process lifetime; no implementation
// evicts entries.
type Store interface {
	// Initialize prepares the storage backend for use.
	Initialize(ctx context.Context) error

	// Save persists a task. An existing task with the same id is replaced.
	Save(ctx context.Context, task *a2a.Task) error

	// Get retrieves a task by id. Returns a2a.TaskNotFoundError if the task
	// does not exist.
	Get(ctx context.Context, taskID string) (*a2a.Task, error)

	// List retrieves tasks, optionally filtered by session id, with
	// limit/offset paging. A zero limit means no limit.
	List(ctx context.Context, sessionID string, limit, offset int) ([]*a2a.Task, error)

	// Count returns the number of stored tasks, optionally filtered by
	// session id.
	Count(ctx context.Context, sessionID string) (int64, error)

	// Close cleanly shuts down the storage backend.
	Close(ctx context.Context) error
}
