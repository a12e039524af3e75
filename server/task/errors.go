// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"fmt"

	"github.com/doublecheck-agents/doublecheck/a2a"
)

// NotUpdatableError indicates an attempted status transition out of a
// terminal state, or any other transition the state machine forbids.
type NotUpdatableError struct {
	TaskID string
	From   a2a.TaskState
	To     a2a.TaskState
}

// Error returns the error message.
func (e NotUpdatableError) Error() string {
	return fmt.Sprintf("task %s cannot transition from %s to %s", e.TaskID, e.From, e.To)
}

// StoreError represents an error from the task store.
type StoreError struct {
	Operation string
	TaskID    string
	Err       error
}

// Error returns the error message.
func (e StoreError) Error() string {
	return fmt.Sprintf("task store %s operation failed for task %s: %v", e.Operation, e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(operation, taskID string, err error) StoreError {
	return StoreError{
		Operation: operation,
		TaskID:    taskID,
		Err:       err,
	}
}
