// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

// scriptedCompleter returns a canned completion and records the request.
type scriptedCompleter struct {
	content string
	err     error

	lastRequest Request
}

func (s *scriptedCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	s.lastRequest = req
	if s.err != nil {
		return nil, s.err
	}
	return &Response{Content: s.content, Model: req.Model}, nil
}

func TestGuard_Check(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		completion      string
		wantSafe        bool
		wantExplanation string
	}{
		"safe verdict": {
			completion:      "SAFE. The query is a benign factual question.",
			wantSafe:        true,
			wantExplanation: "SAFE. The query is a benign factual question.",
		},
		"unsafe verdict": {
			completion:      "UNSAFE. Prompt injection attempt.",
			wantSafe:        false,
			wantExplanation: "UNSAFE. Prompt injection attempt.",
		},
		"unsafe anywhere wins": {
			completion: "The query looks SAFE at first but is UNSAFE on inspection.",
			wantSafe:   false,
			wantExplanation: "The query looks SAFE at first but is UNSAFE on inspection.",
		},
		"lowercase unsafe": {
			completion:      "unsafe: do not process",
			wantSafe:        false,
			wantExplanation: "unsafe: do not process",
		},
		"whitespace trimmed": {
			completion:      "  SAFE. Fine.  ",
			wantSafe:        true,
			wantExplanation: "SAFE. Fine.",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			completer := &scriptedCompleter{content: tc.completion}
			guard := NewGuard(completer, "guard-model")

			safe, explanation, err := guard.Check(t.Context(), "some query")
			if err != nil {
				t.Fatalf("Check() returned error: %v", err)
			}
			if safe != tc.wantSafe {
				t.Errorf("safe = %v, want %v", safe, tc.wantSafe)
			}
			if explanation != tc.wantExplanation {
				t.Errorf("explanation = %q, want %q", explanation, tc.wantExplanation)
			}
			if completer.lastRequest.Model != "guard-model" {
				t.Errorf("model = %q, want %q", completer.lastRequest.Model, "guard-model")
			}
			if !strings.Contains(completer.lastRequest.Messages[0].Content, "some query") {
				t.Error("prompt does not include the query")
			}
		})
	}

	t.Run("propagates completion error", func(t *testing.T) {
		t.Parallel()

		guard := NewGuard(&scriptedCompleter{err: fmt.Errorf("down")}, "guard-model")
		if _, _, err := guard.Check(t.Context(), "query"); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestGenerator_Generate(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{content: "  Paris.  "}
	generator := NewGenerator(completer, "gen-model")

	answer, err := generator.Generate(t.Context(), "What is the capital of France?")
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}
	if answer != "Paris." {
		t.Errorf("answer = %q, want %q", answer, "Paris.")
	}
	if completer.lastRequest.Model != "gen-model" {
		t.Errorf("model = %q, want %q", completer.lastRequest.Model, "gen-model")
	}
	if !strings.Contains(completer.lastRequest.Messages[0].Content, "What is the capital of France?") {
		t.Error("prompt does not include the query")
	}
}

func TestEvaluator_Evaluate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		completion string
		want       Evaluation
	}{
		"clean JSON": {
			completion: `{"rating": 4, "explanation": "Good answer."}`,
			want:       Evaluation{Rating: 4, Explanation: "Good answer."},
		},
		"JSON wrapped in prose": {
			completion: "Here is my evaluation:\n{\"rating\": 5, \"explanation\": \"Excellent.\"}\nThanks!",
			want:       Evaluation{Rating: 5, Explanation: "Excellent."},
		},
		"JSON in code fence": {
			completion: "```json\n{\"rating\": 2, \"explanation\": \"Gaps.\"}\n```",
			want:       Evaluation{Rating: 2, Explanation: "Gaps."},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			evaluator := NewEvaluator(&scriptedCompleter{content: tc.completion}, "eval-model")

			got, err := evaluator.Evaluate(t.Context(), "query", "response")
			if err != nil {
				t.Fatalf("Evaluate() returned error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Evaluate() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseEvaluation_Fallback(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"not JSON at all":    "I think the answer is quite good.",
		"rating too high":    `{"rating": 9, "explanation": "off the scale"}`,
		"rating too low":     `{"rating": 0, "explanation": "below the scale"}`,
		"rating wrong type":  `{"rating": "five", "explanation": "stringly typed"}`,
		"truncated response": `{"rating": 4, "explan`,
	}

	for name, completion := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := parseEvaluation(completion)
			if got.Rating != 3 {
				t.Errorf("Rating = %d, want fallback 3", got.Rating)
			}
			if !strings.Contains(got.Explanation, "Error parsing evaluation") {
				t.Errorf("Explanation = %q, want parse failure noted", got.Explanation)
			}
			if !strings.Contains(got.Explanation, completion) {
				t.Errorf("Explanation = %q, want original response included", got.Explanation)
			}
		})
	}
}
