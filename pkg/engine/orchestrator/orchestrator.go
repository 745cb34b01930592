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

// Package orchestrator implements the Streaming Orchestrator & Turn
// Scheduler: the cooperative, single-goroutine-per-run event loop that
// drives the LLM through turns, dispatches tool calls through the hooks,
// runs the Reviewer, and streams SSE events to the transport.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentrun/turnengine/pkg/engine/hooks"
	"github.com/agentrun/turnengine/pkg/engine/plan"
	"github.com/agentrun/turnengine/pkg/engine/review"
	"github.com/agentrun/turnengine/pkg/engine/state"
	"github.com/agentrun/turnengine/pkg/engine/tool"
	"github.com/agentrun/turnengine/pkg/model"
)

// MaxTurns bounds every run, delegated sub-runs included; Run does not
// apply the smaller turn bound (delegate.MaxSubAgentTurns) that
// run_public_agent passes to its SubRunner.
const MaxTurns = 50

// ConsecutiveErrorReviewThreshold forces an early tool_error review.
const ConsecutiveErrorReviewThreshold = 2

// Orchestrator wires the LLM, tool registry, and hooks into the turn loop.
type Orchestrator struct {
	LLM      model.LLM
	Registry *tool.Registry
	Pre      *hooks.PreHook
	Post     *hooks.PostHook
	Reviewer *review.Reviewer
	Sink     Sink

	// InstructionBuilder renders the system prompt from Plan + last Review +
	// tool catalog ahead of every LLM call.
	InstructionBuilder func(run *state.AgentRun, tools []tool.Definition) string
}

// Run drives one AgentRun to completion: Planning → Executing → Reviewing,
// looping until the model invokes synthesize_final_answer, a cancellation
// fires, or MaxTurns is exceeded.
func (o *Orchestrator) Run(ctx context.Context, run *state.AgentRun) error {
	runState := StateIdle
	filterResult := o.Registry.Apply(tool.AccessFilterInput{})
	defs := filterResult.Tools

	for {
		select {
		case <-ctx.Done():
			return o.handleCancellation(run)
		default:
		}

		if run.TurnCount >= MaxTurns {
			o.emitError(ctx, "MaxTurnsExceeded", "the run exceeded its maximum turn count")
			return fmt.Errorf("orchestrator: max turns exceeded")
		}

		runState = StatePlanning
		run.Current.Reset()
		run.Expectation.RecordForTurn(run.TurnCount)

		o.Sink.Reasoning(fmt.Sprintf("Turn %d started", run.TurnCount), "")

		runState = StateExecuting
		resp, err := o.callModel(ctx, run, defs)
		if err != nil {
			o.emitError(ctx, "StreamError", err.Error())
			return err
		}

		for _, e := range run.Expectation.Extract(resp.TextContent()) {
			run.Current.Expectations = append(run.Current.Expectations, e)
		}

		if resp.HasToolCalls() {
			o.dispatchToolCalls(ctx, run, resp.ToolCalls)
		} else if !run.Final.SuppressAssistantStreaming {
			if text := resp.TextContent(); text != "" {
				o.Sink.ResponseUpdate(text)
			}
		} else if text := resp.TextContent(); text != "" {
			slog.InfoContext(ctx, "assistant acknowledgement received while streaming suppressed", "text", text)
			run.Final.AckReceived = true
		}

		runState = StateReviewing
		if _, ran := o.Reviewer.Run(ctx, run, review.Input{
			Focus:               state.ReviewFocusTurnEnd,
			Question:            run.Question,
			Plan:                run.Plan,
			CurrentTurnOutputs:  run.Current.ToolOutputs,
			CurrentExpectations: run.Current.Expectations,
			Fragments:           run.Fragments.All(),
			ImageCount:          len(run.Fragments.AllImages()),
		}); ran && run.LatestReview != nil {
			o.emitReviewNotes(run.LatestReview)
		}

		if run.Final.Completed {
			runState = StatePersisting
			break
		}

		run.TurnCount++
	}

	runState = StateDone
	_ = runState
	return nil
}

func (o *Orchestrator) callModel(ctx context.Context, run *state.AgentRun, defs []tool.Definition) (*model.Response, error) {
	instruction := ""
	if o.InstructionBuilder != nil {
		instruction = o.InstructionBuilder(run, defs)
	}

	req := &model.Request{
		SystemInstruction: instruction,
		Messages:          run.Messages,
		Tools:             defs,
	}
	for resp, err := range o.LLM.GenerateContent(ctx, req, false) {
		if err != nil {
			return nil, err
		}
		run.AppendAssistantMessage(resp.TextContent())
		return resp, nil
	}
	return nil, fmt.Errorf("orchestrator: model produced no response")
}

func (o *Orchestrator) dispatchToolCalls(ctx context.Context, run *state.AgentRun, calls []tool.Call) {
	for _, call := range calls {
		decision := o.Pre.Evaluate(ctx, run, call.Name, call.Args)
		if decision.Skip {
			o.Sink.Reasoning(decision.SkipReason, "")
			continue
		}

		entry, ok := o.Registry.Get(call.Name)
		if !ok {
			continue
		}

		expected := run.Expectation.Assign(call.Name)

		start := time.Now()
		result, callErr := entry.Tool.Call(ctx, decision.Args)
		duration := time.Since(start).Milliseconds()

		raw := hooks.RawResult{}
		if callErr != nil {
			raw.Error = callErr.Error()
		} else if result != nil {
			raw.Error = result.Error
			if frags, ok := result.Output["fragments"].([]map[string]any); ok {
				raw.Data = frags
			}
		}

		post, err := o.Post.Run(ctx, run, call.Name, decision.Args, raw, expected, run.TurnCount, duration, 0)
		if err != nil {
			slog.WarnContext(ctx, "post-execution hook failed", "tool", call.Name, "error", err)
			continue
		}

		if run.ConsecutiveErrors[call.Name] >= ConsecutiveErrorReviewThreshold {
			if _, ran := o.Reviewer.Run(ctx, run, review.Input{
				Focus:    state.ReviewFocusToolError,
				Question: run.Question,
				Plan:     run.Plan,
			}); ran && run.LatestReview != nil {
				o.emitReviewNotes(run.LatestReview)
			}
		}

		if call.Name == "toDoWrite" && run.Plan != nil {
			plan.Initialize(run.Plan)
		}

		_ = post
		rec := run.History[len(run.History)-1]
		run.Current.ToolOutputs = append(run.Current.ToolOutputs, rec)

		switch {
		case callErr != nil:
			run.AppendToolResultMessage(call.Name, "error: "+callErr.Error())
		case result != nil:
			run.AppendToolResultMessage(call.Name, result.Content)
		default:
			run.AppendToolResultMessage(call.Name, "(no output)")
		}
	}
}

func (o *Orchestrator) emitReviewNotes(r *state.ReviewResult) {
	if len(r.Anomalies) > 0 {
		o.Sink.Reasoning(fmt.Sprintf("Review flagged anomalies: %v", r.Anomalies), "")
	}
}

func (o *Orchestrator) emitError(ctx context.Context, kind, message string) {
	if err := o.Sink.Error(kind, message, ""); err != nil {
		slog.WarnContext(ctx, "failed to emit error event", "error", err)
	}
	o.Sink.End()
}

func (o *Orchestrator) handleCancellation(run *state.AgentRun) error {
	o.Sink.End()
	return context.Canceled
}
