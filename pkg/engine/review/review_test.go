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

package review

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/agentrun/turnengine/pkg/engine/state"
	"github.com/agentrun/turnengine/pkg/model"
)

type fakeLLM struct {
	text    string
	lastReq *model.Request
}

func (f *fakeLLM) Name() string            { return "fake" }
func (f *fakeLLM) Provider() model.Provider { return model.ProviderAnthropic }
func (f *fakeLLM) Close() error             { return nil }

func (f *fakeLLM) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	f.lastReq = req
	return func(yield func(*model.Response, error) bool) {
		yield(&model.Response{
			Content:      &model.Content{Parts: []a2a.Part{a2a.TextPart{Text: f.text}}, Role: a2a.MessageRoleAgent},
			TurnComplete: true,
		}, nil)
	}
}

func TestReviewer_Run_PromptCarriesPlanAndOutcomes(t *testing.T) {
	llm := &fakeLLM{text: `{"status":"ok","recommendation":"proceed"}`}
	r := NewReviewer(llm)
	run := state.NewAgentRun(context.Background(), "u", "w", "c", "what changed in Q3?", "")

	result, ran := r.Run(context.Background(), run, Input{
		Focus:    state.ReviewFocusTurnEnd,
		Question: run.Question,
		Plan: &state.Plan{
			Goal: "summarize Q3 results",
			SubTasks: []*state.SubTask{
				{ID: "t1", Description: "pull revenue figures", Status: state.SubTaskCompleted},
			},
		},
		CurrentTurnOutputs: []*state.ToolExecutionRecord{
			{ToolName: "searchKnowledgeBase", Status: state.ToolExecutionSuccess},
		},
		CurrentExpectations: []*state.Expectation{
			{ToolName: "searchKnowledgeBase", Goal: "find revenue figures"},
		},
		Fragments: []*state.Fragment{
			{Content: "Q3 revenue was $4.2M.", Source: state.FragmentSource{Title: "Q3 Earnings"}},
		},
		ImageCount: 1,
	})

	require.True(t, ran)
	require.NotNil(t, result)
	assert.Equal(t, state.ReviewStatusOK, result.Status)

	require.NotNil(t, llm.lastReq)
	instr := llm.lastReq.SystemInstruction
	assert.Contains(t, instr, "what changed in Q3?")
	assert.Contains(t, instr, "summarize Q3 results")
	assert.Contains(t, instr, "pull revenue figures")
	assert.Contains(t, instr, "searchKnowledgeBase")
	assert.Contains(t, instr, "Q3 revenue was $4.2M.")
	assert.Contains(t, instr, "1 image(s) attached")
}

func TestReviewer_Run_SkippedWhenLockedByFinalSynthesis(t *testing.T) {
	llm := &fakeLLM{text: `{"status":"ok","recommendation":"proceed"}`}
	r := NewReviewer(llm)
	run := state.NewAgentRun(context.Background(), "u", "w", "c", "q", "")
	run.Lock.LockedByFinalSynthesis = true

	result, ran := r.Run(context.Background(), run, Input{Focus: state.ReviewFocusRunEnd})

	assert.False(t, ran)
	assert.Nil(t, result)
	assert.Nil(t, llm.lastReq)
}

func TestNormalize_FallsBackToDefaultOnInvalidJSON(t *testing.T) {
	result := Normalize("not json")
	assert.Equal(t, state.DefaultReview(), result)
}

func TestNormalize_FallsBackToDefaultOnMissingRequiredFields(t *testing.T) {
	result := Normalize(`{"notes":"incomplete"}`)
	assert.Equal(t, state.DefaultReview(), result)
}
