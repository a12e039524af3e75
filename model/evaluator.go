// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

const evaluatorPromptFormat = `You are an expert evaluator of AI responses. Please evaluate the following response to the given user query.

User Query: %s

Response: %s

Please provide your evaluation in the following JSON format:
{
    "rating": <integer from 1 to 5>,
    "explanation": <explanation of your evaluation>
}

Where:
- Rating 1 = Poor (does not address the query)
- Rating 2 = Below Average (partially addresses the query but has significant gaps)
- Rating 3 = Average (addresses the query but could be improved)
- Rating 4 = Good (addresses the query well)
- Rating 5 = Excellent (addresses the query completely and provides additional value)

Provide just the JSON format with no additional text.`

// Evaluation is the structured verdict on a generated response.
type Evaluation struct {
	Rating      int    `json:"rating"`
	Explanation string `json:"explanation"`
}

// Evaluator rates generated responses against the originating query.
type Evaluator struct {
	completer Completer
	model     string
}

// NewEvaluator creates an Evaluator using the given model.
func NewEvaluator(completer Completer, model string) *Evaluator {
	return &Evaluator{completer: completer, model: model}
}

// Evaluate rates the response on a 1-5 scale. A reply the model fails to
// structure as JSON degrades to the middle rating with the parse failure
// in the explanation rather than an error.
func (e *Evaluator) Evaluate(ctx context.Context, query, response string) (Evaluation, error) {
	resp, err := e.completer.Complete(ctx, Request{
		Model:    e.model,
		Messages: UserMessage(fmt.Sprintf(evaluatorPromptFormat, query, response)),
	})
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate response: %w", err)
	}

	return parseEvaluation(resp.Content), nil
}

// parseEvaluation extracts the JSON verdict from the model reply, tolerating
// surrounding prose and code fences.
func parseEvaluation(reply string) Evaluation {
	text := strings.TrimSpace(reply)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	var eval Evaluation
	if err := sonic.ConfigFastest.Unmarshal([]byte(text), &eval); err != nil {
		return Evaluation{
			Rating:      3,
			Explanation: fmt.Sprintf("Error parsing evaluation: %v. Original response: %s", err, reply),
		}
	}
	if eval.Rating < 1 || eval.Rating > 5 {
		return Evaluation{
			Rating:      3,
			Explanation: fmt.Sprintf("Error parsing evaluation: rating %d out of range. Original response: %s", eval.Rating, reply),
		}
	}
	if eval.Explanation == "" {
		eval.Explanation = reply
	}
	return eval
}
