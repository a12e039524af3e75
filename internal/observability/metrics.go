// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

// Package observability provides Prometheus metrics instrumentation for the
// agent services and the validation workflow.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// TASK METRICS
// =============================================================================

var (
	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doublecheck_tasks_total",
			Help: "Total number of tasks processed",
		},
		[]string{"agent", "state"}, // state: completed, failed
	)

	taskDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doublecheck_task_duration_seconds",
			Help:    "Task processing duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"agent"},
	)
)

// =============================================================================
// WORKFLOW METRICS
// =============================================================================

var (
	workflowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doublecheck_workflows_total",
			Help: "Total number of validation workflows",
		},
		[]string{"outcome"}, // outcome: completed, rejected, error
	)

	workflowDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doublecheck_workflow_duration_seconds",
			Help:    "End-to-end validation workflow duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	workflowStageCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doublecheck_workflow_stage_calls_total",
			Help: "Total number of downstream stage calls",
		},
		[]string{"stage", "status"}, // status: success, error
	)

	workflowStageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doublecheck_workflow_stage_duration_seconds",
			Help:    "Downstream stage call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
)

// =============================================================================
// MODEL METRICS
// =============================================================================

var (
	modelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doublecheck_model_calls_total",
			Help: "Total number of language model API calls",
		},
		[]string{"model", "status"}, // status: success, error
	)

	modelDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doublecheck_model_duration_seconds",
			Help:    "Language model call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// ObserveTask records task lifecycle metrics. Called once per submission
// after the task reaches a terminal state.
func ObserveTask(agent string, state string, duration time.Duration) {
	tasksTotal.WithLabelValues(agent, state).Inc()
	taskDurationSeconds.WithLabelValues(agent).Observe(duration.Seconds())
}

// ObserveWorkflow records the outcome of one validation workflow.
func ObserveWorkflow(outcome string, duration time.Duration) {
	workflowsTotal.WithLabelValues(outcome).Inc()
	workflowDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveStageCall records one downstream agent call made by the workflow.
func ObserveStageCall(stage string, status string, duration time.Duration) {
	workflowStageCallsTotal.WithLabelValues(stage, status).Inc()
	workflowStageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveModelCall records one language model API call.
func ObserveModelCall(model string, status string, duration time.Duration) {
	modelCallsTotal.WithLabelValues(model, status).Inc()
	modelDurationSeconds.WithLabelValues(model).Observe(duration.Seconds())
}
