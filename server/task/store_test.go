// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/doublecheck-agents/doublecheck/a2a"
)

func newStoredTask(id, sessionID string) *a2a.Task {
	return &a2a.Task{
		ID:        id,
		SessionID: sessionID,
		Status: a2a.TaskStatus{
			State:     a2a.TaskStateSubmitted,
			Timestamp: time.Now().UTC(),
		},
		History: []a2a.Message{a2a.NewUserTextMessage("hello")},
	}
}

func TestInMemoryStore_SaveAndGet(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	store := NewInMemoryStore()
	if err := store.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	task := newStoredTask("task-1", "session-1")
	if err := store.Save(ctx, task); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}

	got, err := store.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if diff := cmp.Diff(task, got); diff != "" {
		t.Errorf("task mismatch (-want +got):\n%s", diff)
	}
}

func TestInMemoryStore_GetMissing(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()

	_, err := store.Get(t.Context(), "missing")
	var notFound a2a.TaskNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Get() = %v, want TaskNotFoundError", err)
	}
	if notFound.TaskID != "missing" {
		t.Errorf("TaskID = %q, want %q", notFound.TaskID, "missing")
	}
}

func TestInMemoryStore_Isolation(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	store := NewInMemoryStore()

	task := newStoredTask("task-1", "session-1")
	if err := store.Save(ctx, task); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	task.History = append(task.History, a2a.NewUserTextMessage("mutated"))
	task.Status.State = a2a.TaskStateFailed

	got, err := store.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if len(got.History) != 1 {
		t.Errorf("stored history length = %d, want 1", len(got.History))
	}
	if got.Status.State != a2a.TaskStateSubmitted {
		t.Errorf("stored state = %s, want %s", got.Status.State, a2a.TaskStateSubmitted)
	}

	// And mutating a retrieved copy must not affect later reads.
	got.History[0].Parts[0].Text = "scribbled"
	again, err := store.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if again.History[0].Parts[0].Text != "hello" {
		t.Errorf("stored text = %q, want %q", again.History[0].Parts[0].Text, "hello")
	}
}

func TestInMemoryStore_Validation(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	store := NewInMemoryStore()

	if err := store.Save(ctx, nil); err == nil {
		t.Error("Save(nil) expected error")
	}
	if err := store.Save(ctx, &a2a.Task{}); err == nil {
		t.Error("Save() with empty id expected error")
	}
	if _, err := store.Get(ctx, ""); err == nil {
		t.Error("Get() with empty id expected error")
	}
}

func TestInMemoryStore_ListAndCount(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	store := NewInMemoryStore()

	for _, task := range []*a2a.Task{
		newStoredTask("task-1", "session-a"),
		newStoredTask("task-2", "session-a"),
		newStoredTask("task-3", "session-b"),
	} {
		if err := store.Save(ctx, task); err != nil {
			t.Fatalf("Save(%s) returned error: %v", task.ID, err)
		}
	}

	all, err := store.List(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("List() returned error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() returned %d tasks, want 3", len(all))
	}

	sessionA, err := store.List(ctx, "session-a", 0, 0)
	if err != nil {
		t.Fatalf("List(session-a) returned error: %v", err)
	}
	if len(sessionA) != 2 {
		t.Errorf("List(session-a) returned %d tasks, want 2", len(sessionA))
	}

	limited, err := store.List(ctx, "", 2, 0)
	if err != nil {
		t.Fatalf("List(limit=2) returned error: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("List(limit=2) returned %d tasks, want 2", len(limited))
	}

	count, err := store.Count(ctx, "")
	if err != nil {
		t.Fatalf("Count() returned error: %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3", count)
	}

	countB, err := store.Count(ctx, "session-b")
	if err != nil {
		t.Fatalf("Count(session-b) returned error: %v", err)
	}
	if countB != 1 {
		t.Errorf("Count(session-b) = %d, want 1", countB)
	}

	if store.Size() != 3 {
		t.Errorf("Size() = %d, want 3", store.Size())
	}
}

func TestTaskRecord_RoundTrip(t *testing.T) {
	t.Parallel()

	statusMsg := a2a.NewAgentTextMessage("done", "task-1")
	tests := map[string]*a2a.Task{
		"full task": {
			ID:        "task-1",
			SessionID: "session-1",
			Status: a2a.TaskStatus{
				State:     a2a.TaskStateCompleted,
				Message:   &statusMsg,
				Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			},
			History: []a2a.Message{
				a2a.NewUserTextMessage("hello"),
				statusMsg,
			},
			Artifacts: []a2a.Artifact{{
				Name:  "response",
				Parts: statusMsg.Parts,
			}},
		},
		"bare task": {
			ID:        "task-2",
			SessionID: "session-2",
			Status: a2a.TaskStatus{
				State:     a2a.TaskStateSubmitted,
				Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			},
		},
	}

	for name, task := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			record, err := newTaskRecord(task)
			if err != nil {
				t.Fatalf("newTaskRecord() returned error: %v", err)
			}
			if record.ID != task.ID {
				t.Errorf("record ID = %q, want %q", record.ID, task.ID)
			}
			if record.SessionID != task.SessionID {
				t.Errorf("record SessionID = %q, want %q", record.SessionID, task.SessionID)
			}
			if record.State != string(task.Status.State) {
				t.Errorf("record State = %q, want %q", record.State, task.Status.State)
			}

			got, err := record.toTask()
			if err != nil {
				t.Fatalf("toTask() returned error: %v", err)
			}
			if diff := cmp.Diff(task, got); diff != "" {
				t.Errorf("task mismatch after round trip (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTaskRecord_MalformedColumns(t *testing.T) {
	t.Parallel()

	record := taskRecord{
		ID:     "task-1",
		Status: []byte("{not json"),
	}
	if _, err := record.toTask(); err == nil {
		t.Error("toTask() with malformed status column expected error")
	}
}

func TestInMemoryStore_Close(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	store := NewInMemoryStore()

	if err := store.Save(ctx, newStoredTask("task-1", "session-1")); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}
	if err := store.Close(ctx); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}
	if store.Size() != 0 {
		t.Errorf("Size() after Close = %d, want 0", store.Size())
	}
}
