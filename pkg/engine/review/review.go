// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package review implements the Reviewer: the LLM-driven judge invoked at
// turn_end, tool_error, and run_end to grade tool outcomes against stated
// expectations and decide whether the run should proceed, gather more
// evidence, ask for clarification, or replan.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentrun/turnengine/pkg/engine/state"
	"github.com/agentrun/turnengine/pkg/model"
)

// Input assembles everything the Reviewer prompt needs.
type Input struct {
	Focus              state.ReviewFocus
	Question           string
	Plan               *state.Plan
	Clarifications     []string
	WorkspaceContext    string
	CurrentTurnOutputs  []*state.ToolExecutionRecord
	CurrentExpectations []*state.Expectation
	Fragments           []*state.Fragment
	ImageCount          int
}

// Reviewer runs LLM-driven review calls and normalizes their output.
type Reviewer struct {
	LLM model.LLM
}

// NewReviewer builds a Reviewer backed by an LLM.
func NewReviewer(llm model.LLM) *Reviewer {
	return &Reviewer{LLM: llm}
}

// Run invokes the Reviewer unless the run's ReviewLock is set, in which
// case it logs and returns (nil, false) so the orchestrator knows no call
// was made.
func (r *Reviewer) Run(ctx context.Context, run *state.AgentRun, in Input) (*state.ReviewResult, bool) {
	if run.Lock.LockedByFinalSynthesis {
		slog.InfoContext(ctx, "review skipped: locked by final synthesis",
			"lockedAtTurn", run.Lock.LockedAtTurn, "focus", in.Focus)
		return nil, false
	}

	result := r.callLLM(ctx, buildPrompt(in))

	run.LatestReview = result
	run.AmbiguityResolved = result.AmbiguityResolved
	return result, true
}

func (r *Reviewer) callLLM(ctx context.Context, prompt string) *state.ReviewResult {
	temp := 0.0
	req := &model.Request{
		SystemInstruction: reviewerSystemInstruction + "\n\n" + prompt,
		Config: &model.GenerateConfig{
			Temperature:      &temp,
			ResponseMIMEType: "application/json",
		},
	}

	for resp, err := range r.LLM.GenerateContent(ctx, req, false) {
		if err != nil {
			slog.WarnContext(ctx, "reviewer LLM call failed", "error", err)
			return state.DefaultReview()
		}
		return Normalize(resp.TextContent())
	}
	return state.DefaultReview()
}

// Normalize parses a ReviewResult from raw LLM text, falling back to the
// safe default on any parse or validation failure so the loop never halts.
func Normalize(raw string) *state.ReviewResult {
	var result state.ReviewResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return state.DefaultReview()
	}
	if result.Status == "" || result.Recommendation == "" {
		return state.DefaultReview()
	}
	return &result
}

const reviewerSystemInstruction = `You are the automatic reviewer for an agent run. Given the plan, the
tool outcomes from the current turn, and the accumulated evidence, return a
JSON object that strictly matches the ReviewResult schema: status
("ok"|"needs_attention"), notes, toolFeedback (list of
{toolName,outcome,summary}), unmetExpectations, planChangeNeeded,
anomalies, recommendation ("proceed"|"gather_more"|"clarify_query"|"replan"),
ambiguityResolved, clarificationQuestions. Output JSON only.`

func buildPrompt(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Review focus: %s\n", in.Focus)
	fmt.Fprintf(&b, "Question: %s\n", in.Question)
	if p := in.Plan; p != nil {
		fmt.Fprintf(&b, "Plan goal: %s\n", p.Goal)
		for _, t := range p.SubTasks {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", t.Status, t.ID, t.Description)
		}
	}
	if len(in.Clarifications) > 0 {
		fmt.Fprintf(&b, "Clarifications so far: %s\n", strings.Join(in.Clarifications, "; "))
	}

	b.WriteString("\nTool outcomes this turn:\n")
	for _, rec := range in.CurrentTurnOutputs {
		fmt.Fprintf(&b, "- %s (turn %d): status=%s error=%q durationMs=%d\n",
			rec.ToolName, rec.TurnNumber, rec.Status, rec.Error, rec.DurationMs)
	}

	b.WriteString("\nExpectations declared this turn:\n")
	for _, exp := range in.CurrentExpectations {
		fmt.Fprintf(&b, "- %s: goal=%q successCriteria=%v assigned=%v\n",
			exp.ToolName, exp.Goal, exp.SuccessCriteria, exp.Assigned())
	}

	b.WriteString("\nAccumulated evidence:\n")
	for i, f := range in.Fragments {
		fmt.Fprintf(&b, "%d. %s: %.300s\n", i+1, f.Source.Title, f.Content)
	}
	fmt.Fprintf(&b, "\n%d image(s) attached.\n", in.ImageCount)

	return b.String()
}
