// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const userAgent = "doublecheck/a2a-client " + Version

// Client is a client for a remote agent's protocol endpoint.
type Client struct {
	// HTTPClient is the HTTP client used for requests.
	HTTPClient *http.Client

	// URL is the URL of the remote agent's protocol endpoint.
	URL string

	// Logger for logging operations.
	Logger *slog.Logger

	// Tracer for OpenTelemetry tracing.
	Tracer trace.Tracer
}

// NewClient creates a new Client for the given protocol endpoint URL.
// No default timeout is installed on the HTTP client: a blocked remote call
// is bounded only by the caller's context, and streaming responses stay open
// until the final event.
func NewClient(url string) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("url must be provided")
	}

	return &Client{
		HTTPClient: &http.Client{},
		URL:        url,
		Logger:     slog.Default(),
		Tracer:     otel.GetTracerProvider().Tracer("github.com/doublecheck-agents/doublecheck/a2a"),
	}, nil
}

// WithHTTPClient sets the HTTP client for the Client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.HTTPClient = httpClient
	return c
}

// WithLogger sets the logger for the Client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.Logger = logger
	return c
}

// WithTracer sets the tracer for the Client.
func (c *Client) WithTracer(tracer trace.Tracer) *Client {
	c.Tracer = tracer
	return c
}

// makeRequest creates a JSON-RPC request from a method and params.
func makeRequest(method string, params any, id string) ([]byte, error) {
	req := struct {
		JsonRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  any    `json:"params"`
		ID      string `json:"id,omitempty"`
	}{
		JsonRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}

	return sonic.ConfigFastest.Marshal(req)
}

// post issues a JSON-RPC request and returns the raw HTTP response. The
// caller owns the response body.
func (c *Client) post(ctx context.Context, method string, params any, id string) (*http.Response, error) {
	data, err := makeRequest(method, params, id)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP request failed with status: %s", resp.Status)
	}

	return resp, nil
}

// sendRequest issues a JSON-RPC request and reads the whole response body.
func (c *Client) sendRequest(ctx context.Context, method string, params any, id string) ([]byte, error) {
	ctx, span := c.Tracer.Start(ctx, "a2a.client.sendRequest",
		trace.WithAttributes(
			attribute.String("a2a.method", method),
			attribute.String("a2a.request_id", id),
		))
	defer span.End()

	resp, err := c.post(ctx, method, params, id)
	if err != nil {
		c.Logger.ErrorContext(ctx, "request failed", "method", method, "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return buf.Bytes(), nil
}

// decodeTaskResponse parses a JSON-RPC response carrying a Task result.
func decodeTaskResponse(data []byte) (*Task, error) {
	var jsonRPCResp struct {
		JsonRPC string          `json:"jsonrpc"`
		Result  Task            `json:"result"`
		Error   json.RawMessage `json:"error"`
	}

	if err := sonic.ConfigFastest.Unmarshal(data, &jsonRPCResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(jsonRPCResp.Error) > 0 && string(jsonRPCResp.Error) != "null" {
		var rpcError struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if err := sonic.ConfigFastest.Unmarshal(jsonRPCResp.Error, &rpcError); err != nil {
			return nil, fmt.Errorf("failed to parse error: %w", err)
		}
		return nil, RPCError{ErrCode: rpcError.Code, Msg: rpcError.Message}
	}

	return &jsonRPCResp.Result, nil
}

// SendTask submits a task and blocks until the remote task reaches a
// terminal state.
func (c *Client) SendTask(ctx context.Context, params SendTaskParams) (*Task, error) {
	ctx, span := c.Tracer.Start(ctx, "a2a.client.SendTask",
		trace.WithAttributes(attribute.String("a2a.task_id", params.ID)))
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	responseData, err := c.sendRequest(ctx, "tasks/send", params, params.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to send task: %w", err)
	}

	return decodeTaskResponse(responseData)
}

// GetTask retrieves a task by id with the requested trailing history.
func (c *Client) GetTask(ctx context.Context, taskID string, historyLength int) (*Task, error) {
	ctx, span := c.Tracer.Start(ctx, "a2a.client.GetTask",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	params := struct {
		ID            string `json:"id"`
		HistoryLength int    `json:"historyLength,omitempty"`
	}{
		ID:            taskID,
		HistoryLength: historyLength,
	}

	responseData, err := c.sendRequest(ctx, "tasks/get", params, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return decodeTaskResponse(responseData)
}

// SendTaskSubscribe submits a task and returns a channel of status update
// events decoded from the server's SSE stream. The channel is closed after
// the final event (or on stream error, logged but not surfaced per-event).
func (c *Client) SendTaskSubscribe(ctx context.Context, params SendTaskParams) (<-chan TaskStatusUpdateEvent, error) {
	ctx, span := c.Tracer.Start(ctx, "a2a.client.SendTaskSubscribe",
		trace.WithAttributes(attribute.String("a2a.task_id", params.ID)))
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	resp, err := c.post(ctx, "tasks/sendSubscribe", params, params.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to task: %w", err)
	}

	events := make(chan TaskStatusUpdateEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			var frame struct {
				JsonRPC string                `json:"jsonrpc"`
				Result  TaskStatusUpdateEvent `json:"result"`
			}
			if err := sonic.ConfigFastest.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
				c.Logger.ErrorContext(ctx, "failed to decode stream event", "error", err)
				continue
			}

			select {
			case events <- frame.Result:
			case <-ctx.Done():
				return
			}

			if frame.Result.Final {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			c.Logger.ErrorContext(ctx, "stream read failed", "error", err)
		}
	}()

	return events, nil
}

// Call submits a fresh single-message task to the remote agent and extracts
// the reply from the returned task's status message. It returns the reply
// and the id of the remote (child) task. A remote task that finished in the
// failed state is an error; the child task id is still returned so the
// caller can record it. A missing status message on a successful task is a
// recoverable condition: a synthesized text message is returned instead of
// an error.
func (c *Client) Call(ctx context.Context, message Message) (Message, string, error) {
	ctx, span := c.Tracer.Start(ctx, "a2a.client.Call")
	defer span.End()

	params := SendTaskParams{
		ID:            uuid.NewString(),
		SessionID:     uuid.NewString(),
		Message:       message,
		HistoryLength: 1,
	}
	span.SetAttributes(attribute.String("a2a.task_id", params.ID))

	task, err := c.SendTask(ctx, params)
	if err != nil {
		return Message{}, "", err
	}

	if task.Status.State == TaskStateFailed {
		return Message{}, task.ID, fmt.Errorf("remote task %s failed: %s", task.ID, task.StatusText())
	}

	if task.Status.Message == nil {
		c.Logger.WarnContext(ctx, "remote task carried no status message", "task_id", task.ID, "endpoint", c.URL)
		return NewAgentTextMessage(fmt.Sprintf("No valid response received from %s", c.URL), task.ID), task.ID, nil
	}

	return *task.Status.Message, task.ID, nil
}
