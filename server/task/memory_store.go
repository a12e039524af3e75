// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/doublecheck-agents/doublecheck/a2a"
)

// InMemoryStore is an in-memory implementation of Store. Task data is lost
// when the process stops. All operations are thread-safe.
type InMemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*a2a.Task
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tasks: make(map[string]*a2a.Task),
	}
}

// Initialize prepares the in-memory storage for use.
func (s *InMemoryStore) Initialize(ctx context.Context) error {
	return nil
}

// Save persists a task to the in-memory storage.
func (s *InMemoryStore) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if task.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID] = copyTask(task)
	return nil
}

// Get retrieves a task by its ID from the in-memory storage.
func (s *InMemoryStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return nil, a2a.TaskNotFoundError{TaskID: taskID}
	}

	return copyTask(task), nil
}

// List retrieves tasks with optional session filtering.
func (s *InMemoryStore) List(ctx context.Context, sessionID string, limit, offset int) ([]*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []*a2a.Task
	skipped := 0

	for _, task := range s.tasks {
		if sessionID != "" && task.SessionID != sessionID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(tasks) >= limit {
			break
		}
		tasks = append(tasks, copyTask(task))
	}

	return tasks, nil
}

// Count returns the number of tasks in the in-memory storage.
func (s *InMemoryStore) Count(ctx context.Context, sessionID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sessionID == "" {
		return int64(len(s.tasks)), nil
	}

	count := int64(0)
	for _, task := range s.tasks {
		if task.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

// Close cleanly shuts down the in-memory storage.
func (s *InMemoryStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*a2a.Task)
	return nil
}

// Size returns the current number of stored tasks. Useful for tests and
// monitoring.
func (s *InMemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.tasks)
}

// copyTask creates a deep copy of a task so callers never share mutable
// state with the store.
func copyTask(task *a2a.Task) *a2a.Task {
	if task == nil {
		return nil
	}

	out := &a2a.Task{
		ID:        task.ID,
		SessionID: task.SessionID,
		Status:    task.Status,
	}
	if task.Status.Message != nil {
		msg := copyMessage(*task.Status.Message)
		out.Status.Message = &msg
	}

	if task.History != nil {
		out.History = make([]a2a.Message, len(task.History))
		for i, msg := range task.History {
			out.History[i] = copyMessage(msg)
		}
	}

	if task.Artifacts != nil {
		out.Artifacts = make([]a2a.Artifact, len(task.Artifacts))
		for i, artifact := range task.Artifacts {
			out.Artifacts[i] = a2a.Artifact{
				Name:     artifact.Name,
				Parts:    append([]a2a.Part(nil), artifact.Parts...),
				Metadata: copyMetadata(artifact.Metadata),
			}
		}
	}

	return out
}

func copyMessage(msg a2a.Message) a2a.Message {
	return a2a.Message{
		Role:     msg.Role,
		Parts:    append([]a2a.Part(nil), msg.Parts...),
		Metadata: copyMetadata(msg.Metadata),
	}
}

func copyMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
