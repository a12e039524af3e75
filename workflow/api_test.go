// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/doublecheck-agents/doublecheck/a2a"
)

// scriptedService answers every submission with a canned terminal task.
type scriptedService struct {
	reply string
	state a2a.TaskState
	err   error

	lastParams a2a.SendTaskParams
}

func (s *scriptedService) OnSendTask(ctx context.Context, params a2a.SendTaskParams) (*a2a.Task, error) {
	s.lastParams = params
	if s.err != nil {
		return nil, s.err
	}
	msg := a2a.NewAgentTextMessage(s.reply, params.ID)
	return &a2a.Task{
		ID:        params.ID,
		SessionID: params.SessionID,
		Status:    a2a.TaskStatus{State: s.state, Message: &msg, Timestamp: time.Now().UTC()},
	}, nil
}

func (s *scriptedService) OnGetTask(ctx context.Context, taskID string, historyLength int) (*a2a.Task, error) {
	return nil, a2a.TaskNotFoundError{TaskID: taskID}
}

func (s *scriptedService) OnSendTaskSubscribe(ctx context.Context, params a2a.SendTaskParams) (<-chan a2a.TaskStatusUpdateEvent, error) {
	return nil, fmt.Errorf("not supported")
}

func postQuery(t *testing.T, url, body string) (int, map[string]string) {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Post() returned error: %v", err)
	}
	defer resp.Body.Close()

	var parsed map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp.StatusCode, parsed
}

func TestQueryHandler(t *testing.T) {
	t.Parallel()

	t.Run("successful query", func(t *testing.T) {
		t.Parallel()

		service := &scriptedService{reply: "the answer", state: a2a.TaskStateCompleted}
		ts := httptest.NewServer(QueryHandler(service, nil))
		t.Cleanup(ts.Close)

		status, body := postQuery(t, ts.URL, `{"query":"what is the answer?"}`)
		if status != http.StatusOK {
			t.Errorf("status = %d, want %d", status, http.StatusOK)
		}
		if body["response"] != "the answer" {
			t.Errorf("response = %q, want %q", body["response"], "the answer")
		}

		// Each query becomes a fresh root task carrying the query text.
		if service.lastParams.ID == "" {
			t.Error("expected generated task id")
		}
		if got := service.lastParams.Message.Text(); got != "what is the answer?" {
			t.Errorf("submitted text = %q", got)
		}
		if service.lastParams.Message.Role != a2a.RoleUser {
			t.Errorf("submitted role = %s, want %s", service.lastParams.Message.Role, a2a.RoleUser)
		}
	})

	t.Run("failed task surfaces as error", func(t *testing.T) {
		t.Parallel()

		service := &scriptedService{reply: "Error processing task: boom", state: a2a.TaskStateFailed}
		ts := httptest.NewServer(QueryHandler(service, nil))
		t.Cleanup(ts.Close)

		status, body := postQuery(t, ts.URL, `{"query":"hello"}`)
		if status != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", status, http.StatusInternalServerError)
		}
		if !strings.Contains(body["error"], "boom") {
			t.Errorf("error = %q, want failure text", body["error"])
		}
	})

	t.Run("service error", func(t *testing.T) {
		t.Parallel()

		service := &scriptedService{err: fmt.Errorf("store down")}
		ts := httptest.NewServer(QueryHandler(service, nil))
		t.Cleanup(ts.Close)

		status, body := postQuery(t, ts.URL, `{"query":"hello"}`)
		if status != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", status, http.StatusInternalServerError)
		}
		if body["error"] == "" {
			t.Error("expected error in response")
		}
	})

	t.Run("invalid payloads", func(t *testing.T) {
		t.Parallel()

		service := &scriptedService{reply: "unused", state: a2a.TaskStateCompleted}
		ts := httptest.NewServer(QueryHandler(service, nil))
		t.Cleanup(ts.Close)

		if status, _ := postQuery(t, ts.URL, `{not json`); status != http.StatusBadRequest {
			t.Errorf("invalid JSON status = %d, want %d", status, http.StatusBadRequest)
		}
		if status, _ := postQuery(t, ts.URL, `{"query":""}`); status != http.StatusBadRequest {
			t.Errorf("empty query status = %d, want %d", status, http.StatusBadRequest)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		t.Parallel()

		service := &scriptedService{reply: "unused", state: a2a.TaskStateCompleted}
		ts := httptest.NewServer(QueryHandler(service, nil))
		t.Cleanup(ts.Close)

		resp, err := http.Get(ts.URL)
		if err != nil {
			t.Fatalf("Get() returned error: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
		}
	})
}
