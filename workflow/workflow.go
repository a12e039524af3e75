// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflow implements the manager's validation pipeline: the stage
// tracker and the coordinator that drives a query through the safeguard,
// processor, and critic agents.
package workflow

import (
	"fmt"
	"sync"
)

// Stage identifies one step of the validation pipeline.
type Stage string

const (
	StageInit      Stage = "init"
	StageSafeguard Stage = "safeguard"
	StageProcessor Stage = "processor"
	StageCritic    Stage = "critic"
	StageComplete  Stage = "complete"
)

// Stages lists the pipeline stages in execution order, excluding the init
// and complete markers.
var Stages = []Stage{StageSafeguard, StageProcessor, StageCritic}

// State is a snapshot of one workflow's progress.
type State struct {
	CurrentStage    Stage
	CompletedStages []Stage
	PendingStages   []Stage
	IsComplete      bool
}

type record struct {
	state    State
	children map[Stage]string
}

// Tracker records per-workflow progress and the child tasks each stage
// spawned. All operations are thread-safe. Entries are retained for the
// process lifetime.
type Tracker struct {
	mu        sync.RWMutex
	workflows map[string]*record
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{workflows: make(map[string]*record)}
}

// Begin registers a new workflow with every stage pending. Beginning an
// already registered workflow is an error.
func (t *Tracker) Begin(workflowID string) error {
	if workflowID == "" {
		return fmt.Errorf("workflow id cannot be empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.workflows[workflowID]; exists {
		return fmt.Errorf("workflow %s already registered", workflowID)
	}

	t.workflows[workflowID] = &record{
		state: State{
			CurrentStage:  StageInit,
			PendingStages: append([]Stage(nil), Stages...),
		},
		children: make(map[Stage]string),
	}
	return nil
}

// Advance marks a pending stage as the current, completed stage. Advancing
// a stage that is not pending is an error, so a stage completes at most
// once and completed and pending stay disjoint.
func (t *Tracker) Advance(workflowID string, stage Stage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.workflows[workflowID]
	if !exists {
		return fmt.Errorf("workflow %s not registered", workflowID)
	}
	if rec.state.IsComplete {
		return fmt.Errorf("workflow %s already complete", workflowID)
	}

	idx := -1
	for i, pending := range rec.state.PendingStages {
		if pending == stage {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("stage %s not pending for workflow %s", stage, workflowID)
	}

	rec.state.PendingStages = append(rec.state.PendingStages[:idx], rec.state.PendingStages[idx+1:]...)
	rec.state.CompletedStages = append(rec.state.CompletedStages, stage)
	rec.state.CurrentStage = stage
	return nil
}

// Finish marks the workflow complete. Stages still pending are dropped;
// a short-circuited workflow finishes without ever running them.
func (t *Tracker) Finish(workflowID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.workflows[workflowID]
	if !exists {
		return fmt.Errorf("workflow %s not registered", workflowID)
	}

	rec.state.CurrentStage = StageComplete
	rec.state.PendingStages = nil
	rec.state.IsComplete = true
	return nil
}

// RegisterChild records the child task a stage spawned. The registry is
// write-once per stage.
func (t *Tracker) RegisterChild(workflowID string, stage Stage, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("child task id cannot be empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.workflows[workflowID]
	if !exists {
		return fmt.Errorf("workflow %s not registered", workflowID)
	}
	if existing, taken := rec.children[stage]; taken {
		return fmt.Errorf("stage %s of workflow %s already has child task %s", stage, workflowID, existing)
	}

	rec.children[stage] = taskID
	return nil
}

// State returns a snapshot of the workflow's progress.
func (t *Tracker) State(workflowID string) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, exists := t.workflows[workflowID]
	if !exists {
		return State{}, false
	}

	out := rec.state
	out.CompletedStages = append([]Stage(nil), rec.state.CompletedStages...)
	out.PendingStages = append([]Stage(nil), rec.state.PendingStages...)
	return out, true
}

// Children returns the child task ids registered for the workflow, keyed
// by stage.
func (t *Tracker) Children(workflowID string) (map[Stage]string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, exists := t.workflows[workflowID]
	if !exists {
		return nil, false
	}

	out := make(map[Stage]string, len(rec.children))
	for stage, taskID := range rec.children {
		out[stage] = taskID
	}
	return out, true
}
