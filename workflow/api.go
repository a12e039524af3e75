// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/doublecheck-agents/doublecheck/a2a"
)

// queryRequest is the user-facing query payload.
type queryRequest struct {
	Query string `json:"query"`
}

// queryResponse is the user-facing query result.
type queryResponse struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// QueryHandler serves the manager's user-facing query API. Each POST
// submits a fresh root task to the manager's own task service, so user
// queries get the full task lifecycle: persistence, history, and state.
func QueryHandler(service a2a.TaskService, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeQueryResponse(w, logger, http.StatusMethodNotAllowed, queryResponse{Error: "method not allowed"})
			return
		}

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeQueryResponse(w, logger, http.StatusBadRequest, queryResponse{Error: "invalid JSON payload"})
			return
		}
		if req.Query == "" {
			writeQueryResponse(w, logger, http.StatusBadRequest, queryResponse{Error: "query is required"})
			return
		}

		task, err := service.OnSendTask(r.Context(), a2a.SendTaskParams{
			ID:            uuid.NewString(),
			SessionID:     uuid.NewString(),
			Message:       a2a.NewUserTextMessage(req.Query),
			HistoryLength: 1,
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "query task failed", "error", err)
			writeQueryResponse(w, logger, http.StatusInternalServerError, queryResponse{Error: "failed to process query"})
			return
		}

		if task.Status.State == a2a.TaskStateFailed {
			writeQueryResponse(w, logger, http.StatusInternalServerError, queryResponse{Error: task.StatusText()})
			return
		}

		writeQueryResponse(w, logger, http.StatusOK, queryResponse{Response: task.StatusText()})
	})
}

func writeQueryResponse(w http.ResponseWriter, logger *slog.Logger, status int, resp queryResponse) {
	data, err := sonic.ConfigFastest.Marshal(resp)
	if err != nil {
		logger.Error("failed to marshal query response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logger.Error("failed to write query response", "error", err)
	}
}
