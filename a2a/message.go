// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"fmt"
	"strings"
)

// MetadataTaskID is the metadata key carrying the id of the task that
// produced a message. The coordinator uses it to correlate child tasks
// across service boundaries.
const MetadataTaskID = "task_id"

// NewTextMessage creates a message with a single text part.
func NewTextMessage(role Role, text string) Message {
	return Message{
		Role:  role,
		Parts: []Part{{Type: "text", Text: text}},
	}
}

// NewUserTextMessage creates a user message with a single text part.
func NewUserTextMessage(text string) Message {
	return NewTextMessage(RoleUser, text)
}

// NewAgentTextMessage creates an agent message with a single text part,
// tagged with the id of the task that produced it.
func NewAgentTextMessage(text, taskID string) Message {
	m := NewTextMessage(RoleAgent, text)
	if taskID != "" {
		m.Metadata = map[string]string{MetadataTaskID: taskID}
	}
	return m
}

// Validate ensures the Message is valid.
func (m Message) Validate() error {
	if m.Role != RoleUser && m.Role != RoleAgent {
		return fmt.Errorf("invalid message role: %q", m.Role)
	}
	if len(m.Parts) == 0 {
		return fmt.Errorf("message must contain at least one part")
	}
	for i, part := range m.Parts {
		if err := part.Validate(); err != nil {
			return fmt.Errorf("message part at index %d is invalid: %w", i, err)
		}
	}
	return nil
}

// Text extracts and joins the text content of all text parts with a space.
func (m Message) Text() string {
	var texts []string
	for _, part := range m.Parts {
		if part.Type == "text" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, " ")
}

// TaskID returns the correlation task id carried in the message metadata,
// or an empty string if none is set.
func (m Message) TaskID() string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[MetadataTaskID]
}
