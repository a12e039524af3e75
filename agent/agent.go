// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent assembles the four agent services: each one is a protocol
// server fronting a task manager whose handler does the agent's work.
package agent

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/doublecheck-agents/doublecheck/a2a"
	"github.com/doublecheck-agents/doublecheck/config"
	"github.com/doublecheck-agents/doublecheck/server/task"
)

// Agent is one running agent service: its task manager, protocol server,
// and operational endpoints.
type Agent struct {
	Config  config.AgentConfig
	Manager *task.Manager
	Server  *a2a.Server

	logger *slog.Logger
}

// New assembles an agent service from its configuration. A nil store
// defaults to in-memory persistence; the handler does the agent's actual
// work and may be registered later via RegisterHandler.
func New(cfg config.AgentConfig, store task.Store, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("agent", cfg.Name)

	manager := task.NewManager(cfg.Name, store).WithLogger(logger)

	card := a2a.AgentCard{
		Name:        cfg.Name,
		Description: cfg.Description,
		URL:         cfg.URL(),
		Version:     a2a.Version,
		Capabilities: []a2a.Capability{
			{Type: "tasks/send", Description: "Submit a task and wait for its terminal state"},
			{Type: "tasks/get", Description: "Retrieve a task by id"},
			{Type: "tasks/sendSubscribe", Description: "Submit a task and stream status updates"},
		},
	}

	server := a2a.NewServer(cfg.Host, cfg.Port, config.Endpoint, card, manager).WithLogger(logger)
	server.Handle("/metrics", promhttp.Handler())
	server.Handle("/health", http.HandlerFunc(handleHealth))

	return &Agent{
		Config:  cfg,
		Manager: manager,
		Server:  server,
		logger:  logger,
	}
}

// RegisterHandler installs the handler run for every submitted task.
func (a *Agent) RegisterHandler(h task.Handler) {
	a.Manager.RegisterHandler(h)
}

// Handle registers an additional HTTP route on the agent's server.
func (a *Agent) Handle(pattern string, handler http.Handler) {
	a.Server.Handle(pattern, handler)
}

// Serve runs the agent until ctx is canceled.
func (a *Agent) Serve(ctx context.Context) error {
	if err := a.Manager.Store().Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		if err := a.Manager.Store().Close(context.Background()); err != nil {
			a.logger.Warn("failed to close task store", "error", err)
		}
	}()

	return a.Server.Serve(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
}

// reply records the agent's text reply on the task: it becomes the status
// message, the single response artifact, and the newest history entry.
func reply(t *a2a.Task, text string) *a2a.Task {
	msg := a2a.NewAgentTextMessage(text, t.ID)
	t.Status.Message = &msg
	t.History = append(t.History, msg)
	t.Artifacts = []a2a.Artifact{{
		Name:  "response",
		Parts: msg.Parts,
	}}
	return t
}
