// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/doublecheck-agents/doublecheck/a2a"
	"github.com/doublecheck-agents/doublecheck/agent"
	"github.com/doublecheck-agents/doublecheck/internal/observability"
)

// RejectionResponse is returned to the user when the safeguard screens out
// a query.
const RejectionResponse = "I apologize, but your query contains content that cannot be processed as it may violate our safety guidelines."

// Caller submits a single-message task to a remote agent and returns the
// reply and the remote task id. a2a.Client is the canonical implementation.
type Caller interface {
	Call(ctx context.Context, message a2a.Message) (a2a.Message, string, error)
}

// Coordinator drives a query through the validation pipeline: the safeguard
// screens it, the processor answers it, and the critic rates the answer.
// An UNSAFE verdict short-circuits the pipeline.
type Coordinator struct {
	safeguard Caller
	processor Caller
	critic    Caller
	tracker   *Tracker

	// Logger is the logger for the coordinator.
	Logger *slog.Logger

	// Tracer is the tracer for the coordinator.
	Tracer trace.Tracer
}

// NewCoordinator creates a Coordinator over the three downstream agents.
func NewCoordinator(safeguard, processor, critic Caller) *Coordinator {
	return &Coordinator{
		safeguard: safeguard,
		processor: processor,
		critic:    critic,
		tracker:   NewTracker(),
		Logger:    slog.Default(),
		Tracer:    otel.GetTracerProvider().Tracer("github.com/doublecheck-agents/doublecheck/workflow"),
	}
}

// WithLogger sets the logger for the Coordinator.
func (c *Coordinator) WithLogger(logger *slog.Logger) *Coordinator {
	c.Logger = logger
	return c
}

// WithTracer sets the tracer for the Coordinator.
func (c *Coordinator) WithTracer(tracer trace.Tracer) *Coordinator {
	c.Tracer = tracer
	return c
}

// Tracker returns the coordinator's workflow tracker.
func (c *Coordinator) Tracker() *Tracker {
	return c.tracker
}

// pipelineStage describes one step of the pipeline: how to build its input
// from the query and earlier stage outputs, and whether its reply ends the
// workflow early.
type pipelineStage struct {
	name   Stage
	caller Caller
	input  func(query string, outputs map[Stage]string) string

	// shortCircuit, when set, inspects the stage reply and may end the
	// workflow with the returned response and outcome label.
	shortCircuit func(reply string) (response, outcome string, done bool)
}

// pipeline returns the stages in execution order. Adding or reordering
// stages happens here, not in Run.
func (c *Coordinator) pipeline() []pipelineStage {
	passQuery := func(query string, _ map[Stage]string) string { return query }

	return []pipelineStage{
		{
			name:   StageSafeguard,
			caller: c.safeguard,
			input:  passQuery,
			shortCircuit: func(reply string) (string, string, bool) {
				if IsUnsafe(reply) {
					return RejectionResponse, "rejected", true
				}
				return "", "", false
			},
		},
		{
			name:   StageProcessor,
			caller: c.processor,
			input:  passQuery,
		},
		{
			name:   StageCritic,
			caller: c.critic,
			input: func(query string, outputs map[Stage]string) string {
				return query + agent.CriticDelimiter + outputs[StageProcessor]
			},
		},
	}
}

// Run drives one query through the pipeline and returns the user-facing
// response. Run never fails: downstream errors fold into an error response,
// and an unsafe query yields the rejection response.
func (c *Coordinator) Run(ctx context.Context, workflowID, query string) string {
	ctx, span := c.Tracer.Start(ctx, "workflow.coordinator.Run",
		trace.WithAttributes(attribute.String("workflow.id", workflowID)))
	defer span.End()

	started := time.Now()

	if err := c.tracker.Begin(workflowID); err != nil {
		// A re-submitted root task reruns the pipeline; stage bookkeeping
		// stays with the first run.
		c.Logger.DebugContext(ctx, "workflow already tracked", "workflow_id", workflowID, "error", err)
	}

	outputs := make(map[Stage]string, len(Stages))
	for _, stage := range c.pipeline() {
		reply, err := c.callStage(ctx, workflowID, stage.name, stage.caller,
			a2a.NewUserTextMessage(stage.input(query, outputs)))
		if err != nil {
			return c.fail(ctx, workflowID, started, err)
		}
		outputs[stage.name] = reply

		if stage.shortCircuit != nil {
			if response, outcome, done := stage.shortCircuit(reply); done {
				c.Logger.InfoContext(ctx, "workflow short-circuited",
					"workflow_id", workflowID, "stage", stage.name, "outcome", outcome)
				c.finish(ctx, workflowID, outcome, started)
				return response
			}
		}
	}

	c.finish(ctx, workflowID, "completed", started)
	return fmt.Sprintf("%s\n\n---\nResponse Evaluation: %s", outputs[StageProcessor], outputs[StageCritic])
}

// callStage invokes one downstream agent, records the spawned child task,
// and advances the tracker on success.
func (c *Coordinator) callStage(ctx context.Context, workflowID string, stage Stage, caller Caller, message a2a.Message) (string, error) {
	ctx, span := c.Tracer.Start(ctx, "workflow.coordinator.callStage",
		trace.WithAttributes(attribute.String("workflow.stage", string(stage))))
	defer span.End()

	started := time.Now()

	replyMsg, childTaskID, err := caller.Call(ctx, message)
	if childTaskID != "" {
		if regErr := c.tracker.RegisterChild(workflowID, stage, childTaskID); regErr != nil {
			c.Logger.WarnContext(ctx, "failed to register child task", "workflow_id", workflowID, "stage", stage, "error", regErr)
		}
	}
	if err != nil {
		observability.ObserveStageCall(string(stage), "error", time.Since(started))
		return "", fmt.Errorf("%s stage: %w", stage, err)
	}

	observability.ObserveStageCall(string(stage), "success", time.Since(started))

	if err := c.tracker.Advance(workflowID, stage); err != nil {
		c.Logger.WarnContext(ctx, "failed to advance workflow", "workflow_id", workflowID, "stage", stage, "error", err)
	}

	c.Logger.InfoContext(ctx, "stage completed", "workflow_id", workflowID, "stage", stage, "child_task_id", childTaskID)
	return replyMsg.Text(), nil
}

func (c *Coordinator) finish(ctx context.Context, workflowID, outcome string, started time.Time) {
	if err := c.tracker.Finish(workflowID); err != nil {
		c.Logger.WarnContext(ctx, "failed to finish workflow", "workflow_id", workflowID, "error", err)
	}
	observability.ObserveWorkflow(outcome, time.Since(started))
}

func (c *Coordinator) fail(ctx context.Context, workflowID string, started time.Time, err error) string {
	c.Logger.ErrorContext(ctx, "workflow failed", "workflow_id", workflowID, "error", err)
	c.finish(ctx, workflowID, "error", started)
	return fmt.Sprintf("An error occurred while processing your request: %v", err)
}

// IsUnsafe reports whether a safeguard verdict rejects the query. The
// check is a case-insensitive prefix match so verdict formatting quirks
// don't weaken screening.
func IsUnsafe(verdict string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(verdict)), "UNSAFE")
}
