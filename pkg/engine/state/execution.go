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

package state

import "time"

// ToolExecutionStatus is the outcome of a single tool call.
type ToolExecutionStatus string

const (
	ToolExecutionSuccess ToolExecutionStatus = "success"
	ToolExecutionError   ToolExecutionStatus = "error"
)

// ToolExecutionRecord is the history entry for one executed tool call.
type ToolExecutionRecord struct {
	ToolName         string
	TurnNumber       int
	Arguments        map[string]any
	ArgumentsJSON    string
	Expected         *Expectation
	Status           ToolExecutionStatus
	Error            string
	DurationMs       int64
	EstimatedCostUSD float64
	StartedAt        time.Time
}

// Expectation is a declared, measurable criterion attached to a tool call
// before it executes.
type Expectation struct {
	ToolName       string
	Goal           string
	SuccessCriteria []string
	FailureSignals  []string
	StopCondition   string

	// assigned is true once Assign has matched this expectation to a call.
	assigned bool
}

// Assigned reports whether this expectation has been matched to a tool call.
func (e *Expectation) Assigned() bool { return e.assigned }

// ReviewFocus identifies why the Reviewer was invoked.
type ReviewFocus string

const (
	ReviewFocusTurnEnd  ReviewFocus = "turn_end"
	ReviewFocusToolError ReviewFocus = "tool_error"
	ReviewFocusRunEnd   ReviewFocus = "run_end"
)

// ToolOutcome is the Reviewer's per-tool verdict.
type ToolOutcome string

const (
	ToolOutcomeMet    ToolOutcome = "met"
	ToolOutcomeMissed ToolOutcome = "missed"
	ToolOutcomeError  ToolOutcome = "error"
)

// ToolFeedback is one entry of the Reviewer's per-tool feedback list.
type ToolFeedback struct {
	ToolName string      `json:"toolName"`
	Outcome  ToolOutcome `json:"outcome"`
	Summary  string      `json:"summary"`
}

// ReviewRecommendation is the Reviewer's suggested next action.
type ReviewRecommendation string

const (
	RecommendProceed       ReviewRecommendation = "proceed"
	RecommendGatherMore    ReviewRecommendation = "gather_more"
	RecommendClarifyQuery  ReviewRecommendation = "clarify_query"
	RecommendReplan        ReviewRecommendation = "replan"
)

// ReviewStatus is the top-level verdict of a ReviewResult.
type ReviewStatus string

const (
	ReviewStatusOK             ReviewStatus = "ok"
	ReviewStatusNeedsAttention ReviewStatus = "needs_attention"
)

// ReviewResult is the strictly-typed verdict produced by the Reviewer.
type ReviewResult struct {
	Status                 ReviewStatus          `json:"status"`
	Notes                  string                `json:"notes"`
	ToolFeedback           []ToolFeedback         `json:"toolFeedback"`
	UnmetExpectations      []string              `json:"unmetExpectations"`
	PlanChangeNeeded       bool                  `json:"planChangeNeeded"`
	Anomalies              []string              `json:"anomalies"`
	Recommendation         ReviewRecommendation  `json:"recommendation"`
	AmbiguityResolved      bool                  `json:"ambiguityResolved"`
	ClarificationQuestions []string              `json:"clarificationQuestions"`
}

// DefaultReview is the safe fallback returned when the Reviewer's LLM
// response fails to parse or validate.
func DefaultReview() *ReviewResult {
	return &ReviewResult{
		Status:            ReviewStatusOK,
		Notes:             "no notable findings",
		Recommendation:    RecommendProceed,
		AmbiguityResolved: true,
	}
}
