// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

// Package a2a provides the task-based agent-to-agent protocol used by the
// doublecheck pipeline: task and message types, the JSON-RPC-over-HTTP
// client and server, and the streaming status-update events.
package a2a

import (
	"fmt"
	"time"
)

// Version is the current version of the protocol implementation.
const Version = "0.1.0"

// TaskState represents the lifecycle state of a Task.
type TaskState string

const (
	// TaskStateSubmitted indicates the task has been accepted but not started.
	TaskStateSubmitted TaskState = "submitted"

	// TaskStateWorking indicates the task handler is running.
	TaskStateWorking TaskState = "working"

	// TaskStateCompleted indicates the task finished successfully.
	TaskStateCompleted TaskState = "completed"

	// TaskStateFailed indicates the task handler failed.
	TaskStateFailed TaskState = "failed"
)

// IsTerminal reports whether the state admits no further transitions.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed
}

// CanTransitionTo reports whether a transition from s to next is allowed.
// States move only forward: submitted -> working -> {completed | failed}.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	switch s {
	case TaskStateSubmitted:
		return next == TaskStateWorking || next == TaskStateCompleted || next == TaskStateFailed
	case TaskStateWorking:
		return next == TaskStateCompleted || next == TaskStateFailed
	default:
		return false
	}
}

// Role represents the role of a message sender.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Part is one segment of a message's content. Only text parts are used by
// the pipeline; the type tag keeps the wire shape open for other kinds.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Validate ensures the Part is valid.
func (p Part) Validate() error {
	if p.Type != "text" {
		return fmt.Errorf("unsupported part type: %q", p.Type)
	}
	return nil
}

// Message is a single exchange in a task's history. Messages are treated as
// immutable once constructed; Metadata optionally carries the task_id of the
// task that produced the message for cross-service correlation.
type Message struct {
	Role     Role              `json:"role"`
	Parts    []Part            `json:"parts"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TaskStatus captures the state of a task at a point in time. Message, when
// present, carries the agent's reply (or failure explanation) as text.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Artifact is an opaque output produced by a task handler.
type Artifact struct {
	Name     string            `json:"name,omitempty"`
	Parts    []Part            `json:"parts"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Task is a unit of asynchronous work tracked by a single service. It is
// created on submission and mutated only by the owning service's task
// manager; History is append-only.
type Task struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId"`
	Status    TaskStatus `json:"status"`
	History   []Message  `json:"history,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// SendTaskParams is the task-submission envelope for tasks/send and
// tasks/sendSubscribe. Submitting an id that already exists appends Message
// to the existing task's history instead of creating a new task.
type SendTaskParams struct {
	ID            string  `json:"id"`
	SessionID     string  `json:"sessionId"`
	Message       Message `json:"message"`
	HistoryLength int     `json:"historyLength,omitempty"`
}

// Validate ensures the SendTaskParams is valid.
func (p SendTaskParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	return p.Message.Validate()
}

// TaskStatusUpdateEvent is one element of a tasks/sendSubscribe stream.
// Final marks the terminating event of the stream.
type TaskStatusUpdateEvent struct {
	ID     string     `json:"id"`
	Status TaskStatus `json:"status"`
	Final  bool       `json:"final"`
}

// AgentCard describes an agent service, served on its well-known metadata
// path.
type AgentCard struct {
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	URL          string       `json:"url"`
	Version      string       `json:"version"`
	Capabilities []Capability `json:"capabilities,omitempty"`
}

// Capability describes one capability an agent exposes.
type Capability struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}
