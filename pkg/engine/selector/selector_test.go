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

package selector

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2aproject/a2a-go/a2a"

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

func TestSelector_Select_PromptCarriesQueryAndCandidates(t *testing.T) {
	llm := &fakeLLM{text: `["sales-agent","support-agent"]`}
	s := NewSelector(llm)

	candidates := []Brief{
		{AgentID: "sales-agent", Name: "Sales Agent", Description: "handles pipeline questions"},
		{AgentID: "support-agent", Name: "Support Agent", Description: "handles ticket questions"},
	}

	scored := s.Select(context.Background(), "what's our pipeline coverage?", candidates)

	require.Len(t, scored, 2)
	assert.Equal(t, "sales-agent", scored[0].Brief.AgentID)

	require.NotNil(t, llm.lastReq)
	instr := llm.lastReq.SystemInstruction
	assert.Contains(t, instr, "what's our pipeline coverage?")
	assert.Contains(t, instr, "sales-agent")
	assert.Contains(t, instr, "handles pipeline questions")
	assert.Contains(t, instr, "support-agent")
}

func TestSelector_Select_FallsBackToHeuristicWhenLLMReturnsNothingUsable(t *testing.T) {
	llm := &fakeLLM{text: "null"}
	s := NewSelector(llm)

	candidates := []Brief{
		{AgentID: "sales-agent", Name: "Sales Agent", Description: "handles pipeline reporting"},
		{AgentID: "hr-agent", Name: "HR Agent", Description: "handles leave requests"},
	}

	scored := s.Select(context.Background(), "pipeline reporting status", candidates)

	require.Len(t, scored, 2)
	assert.Equal(t, "sales-agent", scored[0].Brief.AgentID)
}

func TestRankHeuristic_PenalizesMissingResources(t *testing.T) {
	candidates := []Brief{
		{AgentID: "complete", Name: "complete agent", Description: "billing reports"},
		{AgentID: "partial", Name: "partial agent", Description: "billing reports", MissingResources: []string{"gmail"}},
	}

	scored := rankHeuristic("billing reports", candidates)

	require.Len(t, scored, 2)
	assert.Equal(t, "complete", scored[0].Brief.AgentID)
}
