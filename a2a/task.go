// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewTask creates a Task from a submission envelope. The task starts in the
// submitted state with the envelope's message as the first history entry.
// Missing session ids are generated; a missing task id is an error because
// the id is the caller's correlation handle.
func NewTask(params SendTaskParams) (*Task, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task params: %w", err)
	}

	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return &Task{
		ID:        params.ID,
		SessionID: sessionID,
		Status: TaskStatus{
			State:     TaskStateSubmitted,
			Timestamp: time.Now().UTC(),
		},
		History: []Message{params.Message},
	}, nil
}

// WithHistoryLength returns a copy of the task whose history is truncated to
// the trailing n messages. A non-positive n yields an empty history; status
// and artifacts are unaffected.
func (t *Task) WithHistoryLength(n int) *Task {
	out := *t
	switch {
	case n <= 0:
		out.History = nil
	case n < len(t.History):
		out.History = append([]Message(nil), t.History[len(t.History)-n:]...)
	default:
		out.History = append([]Message(nil), t.History...)
	}
	return &out
}

// StatusText returns the text of the status message, or an empty string if
// the task carries no status message.
func (t *Task) StatusText() string {
	if t.Status.Message == nil {
		return ""
	}
	return t.Status.Message.Text()
}

// LatestText returns the text of the most recent history message, or an
// empty string for an empty history.
func (t *Task) LatestText() string {
	if len(t.History) == 0 {
		return ""
	}
	return t.History[len(t.History)-1].Text()
}
