// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TaskService is the surface a server dispatches protocol methods to.
// server/task.Manager is the canonical implementation.
type TaskService interface {
	// OnSendTask submits a task and blocks until it reaches a terminal state.
	OnSendTask(ctx context.Context, params SendTaskParams) (*Task, error)

	// OnGetTask retrieves a task by id with the requested trailing history.
	OnGetTask(ctx context.Context, taskID string, historyLength int) (*Task, error)

	// OnSendTaskSubscribe submits a task and returns a channel of status
	// update events, terminated by an event with Final set.
	OnSendTaskSubscribe(ctx context.Context, params SendTaskParams) (<-chan TaskStatusUpdateEvent, error)
}

// Server serves one agent's protocol endpoint plus its agent card.
type Server struct {
	// Host is the host to bind to.
	Host string

	// Port is the port to listen on.
	Port int

	// Endpoint is the path the protocol API is exposed on.
	Endpoint string

	// Service handles the protocol methods.
	Service TaskService

	// AgentCard is served on the well-known agent card path.
	AgentCard AgentCard

	// Logger is the logger to use.
	Logger *slog.Logger

	// Tracer is the tracer to use.
	Tracer trace.Tracer

	mux      *http.ServeMux
	mountAPI sync.Once
	server   *http.Server
}

// NewServer creates a new Server.
func NewServer(host string, port int, endpoint string, card AgentCard, service TaskService) *Server {
	return &Server{
		Host:      host,
		Port:      port,
		Endpoint:  endpoint,
		Service:   service,
		AgentCard: card,
		Logger:    slog.Default(),
		Tracer:    otel.GetTracerProvider().Tracer("github.com/doublecheck-agents/doublecheck/a2a"),
		mux:       http.NewServeMux(),
	}
}

// WithLogger sets the logger for the Server.
func (s *Server) WithLogger(logger *slog.Logger) *Server {
	s.Logger = logger
	return s
}

// WithTracer sets the tracer for the Server.
func (s *Server) WithTracer(tracer trace.Tracer) *Server {
	s.Tracer = tracer
	return s
}

// Handle registers an additional route on the server's mux, e.g. /metrics
// or the manager's /api/query.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Handler returns the fully wired HTTP handler. Useful for tests that mount
// the server behind httptest.
func (s *Server) Handler() http.Handler {
	s.mountAPI.Do(func() {
		s.mux.HandleFunc(s.Endpoint, s.processRequest)
		s.mux.HandleFunc("/.well-known/agent.json", s.handleAgentCardRequest)
	})
	return s.mux
}

// Serve runs the server until ctx is canceled, then shuts it down.
func (s *Server) Serve(ctx context.Context) error {
	if s.AgentCard.Name == "" || s.AgentCard.URL == "" || s.AgentCard.Version == "" {
		return fmt.Errorf("agent card must have name, URL, and version")
	}
	if s.Service == nil {
		return fmt.Errorf("task service cannot be nil")
	}

	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	s.Logger.InfoContext(ctx, "starting agent server", "agent", s.AgentCard.Name, "address", addr, "endpoint", s.Endpoint)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.server.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// handleAgentCardRequest serves the agent's metadata.
func (s *Server) handleAgentCardRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := sonic.ConfigFastest.Marshal(s.AgentCard)
	if err != nil {
		s.Logger.Error("failed to marshal agent card", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.Logger.Error("failed to write response", "error", err)
	}
}

// processRequest is the main handler for the protocol API.
func (s *Server) processRequest(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.Tracer.Start(r.Context(), "a2a.server.processRequest")
	defer span.End()

	if r.Method != http.MethodPost {
		s.writeError(w, "", ErrorCodeInvalidRequest, "Method not allowed")
		return
	}

	var req struct {
		JsonRPC string          `json:"jsonrpc"`
		ID      string          `json:"id,omitempty"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "", ErrorCodeJSONParse, "Invalid JSON payload")
		return
	}

	span.SetAttributes(
		attribute.String("a2a.request_id", req.ID),
		attribute.String("a2a.method", req.Method),
	)

	var (
		result any
		err    error
	)

	switch req.Method {
	case "tasks/send":
		result, err = s.handleSendTask(ctx, req.Params)
	case "tasks/get":
		result, err = s.handleGetTask(ctx, req.Params)
	case "tasks/sendSubscribe":
		// Streaming writes the SSE response directly.
		s.handleSendTaskSubscribe(ctx, w, req.ID, req.Params)
		return
	default:
		s.writeError(w, req.ID, ErrorCodeMethodNotFound, "Method not found")
		return
	}

	if err != nil {
		s.Logger.ErrorContext(ctx, "method execution failed", "method", req.Method, "error", err)
		var perr ProtocolError
		if errors.As(err, &perr) {
			s.writeError(w, req.ID, perr.Code(), perr.Error())
			return
		}
		s.writeError(w, req.ID, ErrorCodeInternalError, fmt.Sprintf("Internal error: %v", err))
		return
	}

	resp := struct {
		JsonRPC string `json:"jsonrpc"`
		ID      string `json:"id,omitempty"`
		Result  any    `json:"result"`
	}{
		JsonRPC: "2.0",
		ID:      req.ID,
		Result:  result,
	}

	data, err := sonic.ConfigFastest.Marshal(resp)
	if err != nil {
		s.Logger.ErrorContext(ctx, "failed to marshal response", "error", err)
		s.writeError(w, req.ID, ErrorCodeInternalError, "Internal error serializing response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.Logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// writeError writes an error response in JSON-RPC format.
func (s *Server) writeError(w http.ResponseWriter, id string, code int, message string) {
	resp := struct {
		JsonRPC string `json:"jsonrpc"`
		ID      string `json:"id,omitempty"`
		Error   struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{
		JsonRPC: "2.0",
		ID:      id,
	}
	resp.Error.Code = code
	resp.Error.Message = message

	data, err := sonic.ConfigFastest.Marshal(resp)
	if err != nil {
		s.Logger.Error("failed to marshal error response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // error is in the JSON-RPC response, not HTTP
	if _, err := w.Write(data); err != nil {
		s.Logger.Error("failed to write error response", "error", err)
	}
}

// handleSendTask handles the tasks/send method.
func (s *Server) handleSendTask(ctx context.Context, params json.RawMessage) (*Task, error) {
	ctx, span := s.Tracer.Start(ctx, "a2a.server.handleSendTask")
	defer span.End()

	var taskParams SendTaskParams
	if err := sonic.ConfigFastest.Unmarshal(params, &taskParams); err != nil {
		return nil, InvalidParamsError{Msg: err.Error()}
	}
	if err := taskParams.Validate(); err != nil {
		return nil, InvalidParamsError{Msg: err.Error()}
	}

	span.SetAttributes(attribute.String("a2a.task_id", taskParams.ID))

	task, err := s.Service.OnSendTask(ctx, taskParams)
	if err != nil {
		return nil, fmt.Errorf("failed to process task: %w", err)
	}

	return task, nil
}

// handleGetTask handles the tasks/get method.
func (s *Server) handleGetTask(ctx context.Context, params json.RawMessage) (*Task, error) {
	ctx, span := s.Tracer.Start(ctx, "a2a.server.handleGetTask")
	defer span.End()

	var taskParams struct {
		ID            string `json:"id"`
		HistoryLength int    `json:"historyLength,omitempty"`
	}
	if err := sonic.ConfigFastest.Unmarshal(params, &taskParams); err != nil {
		return nil, InvalidParamsError{Msg: err.Error()}
	}

	span.SetAttributes(attribute.String("a2a.task_id", taskParams.ID))

	task, err := s.Service.OnGetTask(ctx, taskParams.ID, taskParams.HistoryLength)
	if err != nil {
		return nil, err
	}

	return task, nil
}

// handleSendTaskSubscribe handles the tasks/sendSubscribe method as an SSE
// stream of TaskStatusUpdateEvent, terminated by the final event.
func (s *Server) handleSendTaskSubscribe(ctx context.Context, w http.ResponseWriter, id string, params json.RawMessage) {
	ctx, span := s.Tracer.Start(ctx, "a2a.server.handleSendTaskSubscribe")
	defer span.End()

	var taskParams SendTaskParams
	if err := sonic.ConfigFastest.Unmarshal(params, &taskParams); err != nil {
		s.writeError(w, id, ErrorCodeInvalidParams, err.Error())
		return
	}
	if err := taskParams.Validate(); err != nil {
		s.writeError(w, id, ErrorCodeInvalidParams, err.Error())
		return
	}

	span.SetAttributes(attribute.String("a2a.task_id", taskParams.ID))

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, id, ErrorCodeInternalError, "streaming not supported by response writer")
		return
	}

	eventCh, err := s.Service.OnSendTaskSubscribe(ctx, taskParams)
	if err != nil {
		s.writeError(w, id, ErrorCodeInternalError, fmt.Sprintf("failed to subscribe to task: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range eventCh {
		resp := struct {
			JsonRPC string                `json:"jsonrpc"`
			ID      string                `json:"id,omitempty"`
			Result  TaskStatusUpdateEvent `json:"result"`
		}{
			JsonRPC: "2.0",
			ID:      id,
			Result:  event,
		}

		data, err := sonic.ConfigFastest.Marshal(resp)
		if err != nil {
			s.Logger.ErrorContext(ctx, "failed to marshal event", "error", err)
			continue
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			s.Logger.ErrorContext(ctx, "failed to write event", "error", err)
			return
		}
		flusher.Flush()
	}
}
