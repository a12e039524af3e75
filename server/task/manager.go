// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/doublecheck-agents/doublecheck/a2a"
	"github.com/doublecheck-agents/doublecheck/internal/observability"
)

// Handler processes one task. It receives the task in the working state and
// returns the processed task, whose status message carries the reply.
// Returning an error (or panicking) fails the task; the failure is reported
// through the task's terminal status, never as a protocol error.
type Handler interface {
	Handle(ctx context.Context, task *a2a.Task) (*a2a.Task, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task *a2a.Task) (*a2a.Task, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, task *a2a.Task) (*a2a.Task, error) {
	return f(ctx, task)
}

// Manager owns a Store and drives the task lifecycle: it accepts
// submissions, runs the registered handler exactly once per submission, and
// reports the terminal state. It implements a2a.TaskService.
type Manager struct {
	// Name labels the manager in logs and metrics, typically the agent name.
	Name string

	store Store

	// mu serializes submissions so a re-submission for an existing id
	// appends to history without losing updates. Handlers run outside the
	// lock; distinct tasks only contend for the brief upsert window.
	mu      sync.Mutex
	handler Handler

	// Logger is the logger for the manager.
	Logger *slog.Logger

	// Tracer is the tracer for the manager.
	Tracer trace.Tracer
}

var _ a2a.TaskService = (*Manager)(nil)

// NewManager creates a Manager backed by the given store. A nil store
// defaults to a fresh InMemoryStore.
func NewManager(name string, store Store) *Manager {
	if store == nil {
		store = NewInMemoryStore()
	}
	return &Manager{
		Name:   name,
		store:  store,
		Logger: slog.Default(),
		Tracer: otel.GetTracerProvider().Tracer("github.com/doublecheck-agents/doublecheck/server/task"),
	}
}

// WithLogger sets the logger for the Manager.
func (m *Manager) WithLogger(logger *slog.Logger) *Manager {
	m.Logger = logger
	return m
}

// WithTracer sets the tracer for the Manager.
func (m *Manager) WithTracer(tracer trace.Tracer) *Manager {
	m.Tracer = tracer
	return m
}

// Store returns the manager's task store.
func (m *Manager) Store() Store {
	return m.store
}

// RegisterHandler installs the handler invoked for every submitted task.
// At most one handler is active per manager; registering again replaces it.
func (m *Manager) RegisterHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

func (m *Manager) currentHandler() Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}

// OnSendTask handles a tasks/send submission: upsert, run the handler, and
// return the task in a terminal state, truncated to the requested trailing
// history length. Handler failures surface as a FAILED task, not an error.
func (m *Manager) OnSendTask(ctx context.Context, params a2a.SendTaskParams) (*a2a.Task, error) {
	ctx, span := m.Tracer.Start(ctx, "task.manager.OnSendTask",
		trace.WithAttributes(attribute.String("a2a.task_id", params.ID)))
	defer span.End()

	started := time.Now()

	task, err := m.upsert(ctx, params)
	if err != nil {
		return nil, err
	}

	task = m.process(ctx, task)

	if err := m.store.Save(ctx, task); err != nil {
		return nil, NewStoreError("save", task.ID, err)
	}

	observability.ObserveTask(m.Name, string(task.Status.State), time.Since(started))
	m.Logger.InfoContext(ctx, "task finished", "manager", m.Name, "task_id", task.ID, "state", task.Status.State)

	return task.WithHistoryLength(params.HistoryLength), nil
}

// OnGetTask retrieves a task by id.
func (m *Manager) OnGetTask(ctx context.Context, taskID string, historyLength int) (*a2a.Task, error) {
	ctx, span := m.Tracer.Start(ctx, "task.manager.OnGetTask",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return task.WithHistoryLength(historyLength), nil
}

// OnSendTaskSubscribe handles a tasks/sendSubscribe submission. It emits an
// event when the task enters the working state and a final event when it
// reaches a terminal state, then closes the channel. Handlers are atomic
// from the protocol's perspective; no intermediate events are produced.
func (m *Manager) OnSendTaskSubscribe(ctx context.Context, params a2a.SendTaskParams) (<-chan a2a.TaskStatusUpdateEvent, error) {
	ctx, span := m.Tracer.Start(ctx, "task.manager.OnSendTaskSubscribe",
		trace.WithAttributes(attribute.String("a2a.task_id", params.ID)))
	defer span.End()

	task, err := m.upsert(ctx, params)
	if err != nil {
		return nil, err
	}

	events := make(chan a2a.TaskStatusUpdateEvent, 2)
	go func() {
		defer close(events)

		started := time.Now()

		h := m.currentHandler()
		if h != nil {
			m.setStatus(task, a2a.TaskStatus{State: a2a.TaskStateWorking, Timestamp: time.Now().UTC()})
			if err := m.store.Save(ctx, task); err != nil {
				m.Logger.ErrorContext(ctx, "failed to persist working state", "task_id", task.ID, "error", err)
			}
			events <- a2a.TaskStatusUpdateEvent{ID: task.ID, Status: task.Status, Final: false}
			task = m.runHandler(ctx, h, task)
		} else {
			m.setStatus(task, a2a.TaskStatus{State: a2a.TaskStateCompleted, Timestamp: time.Now().UTC()})
		}

		if err := m.store.Save(ctx, task); err != nil {
			m.Logger.ErrorContext(ctx, "failed to persist terminal state", "task_id", task.ID, "error", err)
		}

		observability.ObserveTask(m.Name, string(task.Status.State), time.Since(started))
		events <- a2a.TaskStatusUpdateEvent{ID: task.ID, Status: task.Status, Final: true}
	}()

	return events, nil
}

// upsert creates the task for an unseen id, or appends the submitted
// message to the existing task's history. Re-submission of a known id is
// not an error; the task keeps its identity.
func (m *Manager) upsert(ctx context.Context, params a2a.SendTaskParams) (*a2a.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.store.Get(ctx, params.ID)
	var notFound a2a.TaskNotFoundError
	switch {
	case err == nil:
		task.History = append(task.History, params.Message)
	case errors.As(err, &notFound):
		// Stores may wrap their not-found error; a wrapped miss still
		// takes the create path.
		task, err = a2a.NewTask(params)
		if err != nil {
			return nil, err
		}
	default:
		return nil, NewStoreError("get", params.ID, err)
	}

	if err := m.store.Save(ctx, task); err != nil {
		return nil, NewStoreError("save", params.ID, err)
	}
	return task, nil
}

// process drives the task to a terminal state. Without a handler the task
// is completed as-is with no artifacts (echo behavior).
func (m *Manager) process(ctx context.Context, task *a2a.Task) *a2a.Task {
	h := m.currentHandler()
	if h == nil {
		m.setStatus(task, a2a.TaskStatus{State: a2a.TaskStateCompleted, Timestamp: time.Now().UTC()})
		return task
	}

	m.setStatus(task, a2a.TaskStatus{State: a2a.TaskStateWorking, Timestamp: time.Now().UTC()})
	if err := m.store.Save(ctx, task); err != nil {
		m.Logger.ErrorContext(ctx, "failed to persist working state", "task_id", task.ID, "error", err)
	}

	return m.runHandler(ctx, h, task)
}

// runHandler invokes the handler exactly once, converting errors and panics
// into a FAILED terminal status whose message carries the explanation.
func (m *Manager) runHandler(ctx context.Context, h Handler, task *a2a.Task) *a2a.Task {
	result, err := safeHandle(ctx, h, task)
	if err != nil {
		m.Logger.ErrorContext(ctx, "task handler failed", "manager", m.Name, "task_id", task.ID, "error", err)
		msg := a2a.NewAgentTextMessage(fmt.Sprintf("Error processing task: %v", err), task.ID)
		m.setStatus(task, a2a.TaskStatus{
			State:     a2a.TaskStateFailed,
			Message:   &msg,
			Timestamp: time.Now().UTC(),
		})
		return task
	}

	// Persist the handler's status and artifacts onto the stored task. A
	// handler that leaves the task non-terminal gets normalized to completed.
	status := result.Status
	if !status.State.IsTerminal() {
		status.State = a2a.TaskStateCompleted
	}
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now().UTC()
	}
	m.setStatus(task, status)
	task.History = result.History
	task.Artifacts = result.Artifacts
	return task
}

// setStatus applies a status transition, enforcing the forward-only state
// machine. A forbidden transition is logged and dropped rather than applied;
// terminal states are never overwritten.
func (m *Manager) setStatus(task *a2a.Task, status a2a.TaskStatus) {
	if !task.Status.State.CanTransitionTo(status.State) {
		m.Logger.Warn("dropping forbidden status transition",
			"error", NotUpdatableError{TaskID: task.ID, From: task.Status.State, To: status.State})
		return
	}
	task.Status = status
}

// safeHandle runs the handler, recovering panics into errors.
func safeHandle(ctx context.Context, h Handler, task *a2a.Task) (result *a2a.Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	result, err = h.Handle(ctx, task)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("handler returned nil task")
	}
	return result, nil
}
