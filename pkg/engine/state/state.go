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

// Package state holds the data owned exclusively by a single agent run:
// the plan, fragment store, expectation ledger, review lock, and the
// bookkeeping fields the orchestrator mutates turn by turn.
//
// AgentRun itself is not safe for concurrent access from more than one
// goroutine; the orchestrator is the only mutator and runs each AgentRun on
// a single goroutine, per the cooperative single-threaded-per-run model.
// FragmentStore and ExpectationLedger guard their own state with a mutex.
package state

import (
	"context"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
)

// SubTaskStatus is the lifecycle state of a single plan sub-task.
type SubTaskStatus string

const (
	SubTaskPending    SubTaskStatus = "pending"
	SubTaskInProgress SubTaskStatus = "in_progress"
	SubTaskCompleted  SubTaskStatus = "completed"
	SubTaskFailed     SubTaskStatus = "failed"
	SubTaskBlocked    SubTaskStatus = "blocked"
)

// SubTask is one unit of work in a Plan.
type SubTask struct {
	ID             string
	Description    string
	Status         SubTaskStatus
	ToolsRequired  map[string]struct{}
	Result         string
	Error          string
	CompletedAt    time.Time
}

// RequiresTool reports whether name satisfies this sub-task's tool set.
// An empty ToolsRequired set is satisfied by any tool (auto-completing task).
func (t *SubTask) RequiresTool(name string) bool {
	if len(t.ToolsRequired) == 0 {
		return true
	}
	_, ok := t.ToolsRequired[name]
	return ok
}

// Plan is the current goal and its ordered sub-tasks.
type Plan struct {
	Goal     string
	SubTasks []*SubTask
}

// AgentRun is the root aggregate for one user turn: identity, counters,
// and every piece of state the plan/fragment/expectation/review machinery
// mutates across the life of the run.
type AgentRun struct {
	// Identity
	UserID      string
	WorkspaceID string
	ChatID      string
	Question    string
	ModelID     string

	// Counters
	TurnCount        int
	StartedAt        time.Time
	CumulativeCostUSD float64
	CumulativeLatencyMs int64
	CostByToolName    map[string]float64

	// Cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Plan / evidence / expectations owned by this run.
	Plan        *Plan
	Fragments   *FragmentStore
	Expectation *ExpectationLedger

	// Tool execution history, in call order.
	History []*ToolExecutionRecord

	// Messages is the conversation fed back to the model on every turn: the
	// original question, each turn's assistant response, and a text
	// rendering of every tool result, in chronological order.
	Messages []*a2a.Message

	// FailureCounts tracks total failures per tool name for the
	// Pre-Execution Hook's failure budget.
	FailureCounts map[string]int

	// ConsecutiveErrors tracks the two-consecutive-errors review trigger;
	// the Post-Execution Hook resets a tool's count when it succeeds.
	ConsecutiveErrors map[string]int

	// AvailableAgents is populated by the most recent list_custom_agents call.
	AvailableAgents []string

	// AmbiguityResolved gates run_public_agent per the latest review.
	AmbiguityResolved bool

	// LatestReview is the most recently produced ReviewResult, if any.
	LatestReview *ReviewResult

	// Lock prevents further Reviewer invocations after final synthesis starts.
	Lock ReviewLock

	Final FinalSynthesisState

	// Current is reset at the start of every turn; it holds only that turn's
	// artifacts, which are also recorded in the run-wide stores as they
	// arrive.
	Current CurrentTurnArtifacts

	// DelegationEnabled gates run_public_agent; false inside a delegated
	// sub-run to prevent runaway recursion.
	DelegationEnabled bool

	// ParentTurnNumber is set for delegated sub-runs so the parent reviewer
	// can correlate sub-run activity back to its own turn.
	ParentTurnNumber int
}

// NewAgentRun constructs a run bound to ctx; cancel releases resources.
func NewAgentRun(ctx context.Context, userID, workspaceID, chatID, question, modelID string) *AgentRun {
	runCtx, cancel := context.WithCancel(ctx)
	run := &AgentRun{
		UserID:            userID,
		WorkspaceID:       workspaceID,
		ChatID:            chatID,
		Question:          question,
		ModelID:           modelID,
		StartedAt:         time.Now(),
		ctx:               runCtx,
		cancel:            cancel,
		Fragments:         NewFragmentStore(),
		Expectation:       NewExpectationLedger(),
		FailureCounts:     make(map[string]int),
		ConsecutiveErrors: make(map[string]int),
		CostByToolName:    make(map[string]float64),
		DelegationEnabled: true,
	}
	run.Messages = []*a2a.Message{a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: question})}
	return run
}

// Context returns the run's cancellable context.
func (r *AgentRun) Context() context.Context { return r.ctx }

// Cancel stops the run; every suspension point must observe ctx.Done().
func (r *AgentRun) Cancel() { r.cancel() }

// AppendAssistantMessage records the model's turn response in the
// conversation fed back on the next call.
func (r *AgentRun) AppendAssistantMessage(text string) {
	if text == "" {
		return
	}
	r.Messages = append(r.Messages, a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: text}))
}

// AppendToolResultMessage records a tool's outcome as a user-role message
// so the next model call sees what happened without needing a dedicated
// tool-result wire type.
func (r *AgentRun) AppendToolResultMessage(toolName, content string) {
	r.Messages = append(r.Messages, a2a.NewMessage(a2a.MessageRoleUser,
		a2a.TextPart{Text: "Tool " + toolName + " result: " + content}))
}

// RecordCost accumulates per-tool and run-wide cost.
func (r *AgentRun) RecordCost(toolName string, usd float64) {
	r.CumulativeCostUSD += usd
	r.CostByToolName[toolName] += usd
}

// ReviewLock is the latch that stops further Reviewer invocations once
// Final Synthesizer has been requested.
type ReviewLock struct {
	LockedByFinalSynthesis bool
	LockedAtTurn           int
}

// FinalSynthesisState tracks the lifecycle of the terminal synthesis tool.
type FinalSynthesisState struct {
	Requested                  bool
	Completed                  bool
	SuppressAssistantStreaming bool
	StreamedText               string
	AckReceived                bool
}

// CurrentTurnArtifacts accumulates what happens during the in-progress turn.
// The Post-Execution Hook adds each fragment and image both here and to the
// run-wide FragmentStore; nothing is folded over at turn end.
type CurrentTurnArtifacts struct {
	Fragments    []*Fragment
	Expectations []*Expectation
	ToolOutputs  []*ToolExecutionRecord
	Images       []*FragmentImageReference
}

// Reset clears the turn-scoped accumulator at the start of a new turn.
func (c *CurrentTurnArtifacts) Reset() {
	c.Fragments = nil
	c.Expectations = nil
	c.ToolOutputs = nil
	c.Images = nil
}
