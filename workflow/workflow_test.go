// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTracker_Begin(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()

	if err := tracker.Begin("wf-1"); err != nil {
		t.Fatalf("Begin() returned error: %v", err)
	}

	state, ok := tracker.State("wf-1")
	if !ok {
		t.Fatal("State() reported workflow missing")
	}
	if state.CurrentStage != StageInit {
		t.Errorf("CurrentStage = %s, want %s", state.CurrentStage, StageInit)
	}
	if state.IsComplete {
		t.Error("new workflow reported complete")
	}
	if diff := cmp.Diff(Stages, state.PendingStages); diff != "" {
		t.Errorf("PendingStages mismatch (-want +got):\n%s", diff)
	}
	if len(state.CompletedStages) != 0 {
		t.Errorf("CompletedStages = %v, want empty", state.CompletedStages)
	}

	if err := tracker.Begin("wf-1"); err == nil {
		t.Error("Begin() on registered workflow expected error")
	}
	if err := tracker.Begin(""); err == nil {
		t.Error("Begin() with empty id expected error")
	}
}

func TestTracker_Advance(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	if err := tracker.Begin("wf-1"); err != nil {
		t.Fatalf("Begin() returned error: %v", err)
	}

	for i, stage := range Stages {
		if err := tracker.Advance("wf-1", stage); err != nil {
			t.Fatalf("Advance(%s) returned error: %v", stage, err)
		}

		state, _ := tracker.State("wf-1")
		if state.CurrentStage != stage {
			t.Errorf("CurrentStage = %s, want %s", state.CurrentStage, stage)
		}
		if len(state.CompletedStages) != i+1 {
			t.Errorf("completed = %d, want %d", len(state.CompletedStages), i+1)
		}
		if len(state.PendingStages) != len(Stages)-i-1 {
			t.Errorf("pending = %d, want %d", len(state.PendingStages), len(Stages)-i-1)
		}

		// Completed and pending stay disjoint.
		for _, done := range state.CompletedStages {
			for _, pending := range state.PendingStages {
				if done == pending {
					t.Errorf("stage %s is both completed and pending", done)
				}
			}
		}
	}

	// A stage completes at most once.
	if err := tracker.Advance("wf-1", StageSafeguard); err == nil {
		t.Error("Advance() on completed stage expected error")
	}
	if err := tracker.Advance("missing", StageSafeguard); err == nil {
		t.Error("Advance() on unknown workflow expected error")
	}
}

func TestTracker_Finish(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	if err := tracker.Begin("wf-1"); err != nil {
		t.Fatalf("Begin() returned error: %v", err)
	}
	if err := tracker.Advance("wf-1", StageSafeguard); err != nil {
		t.Fatalf("Advance() returned error: %v", err)
	}

	// Finishing early (short circuit) drops the remaining pending stages.
	if err := tracker.Finish("wf-1"); err != nil {
		t.Fatalf("Finish() returned error: %v", err)
	}

	state, _ := tracker.State("wf-1")
	if !state.IsComplete {
		t.Error("finished workflow not reported complete")
	}
	if state.CurrentStage != StageComplete {
		t.Errorf("CurrentStage = %s, want %s", state.CurrentStage, StageComplete)
	}
	if len(state.PendingStages) != 0 {
		t.Errorf("PendingStages = %v, want empty", state.PendingStages)
	}

	if err := tracker.Advance("wf-1", StageProcessor); err == nil {
		t.Error("Advance() on complete workflow expected error")
	}
	if err := tracker.Finish("missing"); err == nil {
		t.Error("Finish() on unknown workflow expected error")
	}
}

func TestTracker_RegisterChild(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	if err := tracker.Begin("wf-1"); err != nil {
		t.Fatalf("Begin() returned error: %v", err)
	}

	if err := tracker.RegisterChild("wf-1", StageSafeguard, "child-1"); err != nil {
		t.Fatalf("RegisterChild() returned error: %v", err)
	}

	// The registry is write-once per stage.
	if err := tracker.RegisterChild("wf-1", StageSafeguard, "child-2"); err == nil {
		t.Error("RegisterChild() on registered stage expected error")
	}
	if err := tracker.RegisterChild("wf-1", StageProcessor, ""); err == nil {
		t.Error("RegisterChild() with empty task id expected error")
	}
	if err := tracker.RegisterChild("missing", StageSafeguard, "child-3"); err == nil {
		t.Error("RegisterChild() on unknown workflow expected error")
	}

	children, ok := tracker.Children("wf-1")
	if !ok {
		t.Fatal("Children() reported workflow missing")
	}
	want := map[Stage]string{StageSafeguard: "child-1"}
	if diff := cmp.Diff(want, children); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
}

func TestTracker_SnapshotIsolation(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	if err := tracker.Begin("wf-1"); err != nil {
		t.Fatalf("Begin() returned error: %v", err)
	}

	state, _ := tracker.State("wf-1")
	state.PendingStages[0] = StageComplete

	again, _ := tracker.State("wf-1")
	if again.PendingStages[0] != StageSafeguard {
		t.Errorf("snapshot mutation leaked into tracker: %v", again.PendingStages)
	}
}
