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

package mcpagent

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/agentrun/turnengine/pkg/engine/tool"
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

func TestAgent_SelectTools_PromptCarriesQueryAndCatalog(t *testing.T) {
	llm := &fakeLLM{text: `{"toolNames":["search_docs"]}`}
	agent := NewAgent(llm, nil)

	conn := Connector{
		ID: "docs-connector",
		Tools: []tool.Definition{
			{Name: "search_docs", Description: "full-text search over the docs corpus"},
			{Name: "list_folders", Description: "enumerate top-level folders"},
		},
	}

	names, err := agent.selectTools(context.Background(), conn, "find the Q3 pricing doc")
	require.NoError(t, err)
	assert.Equal(t, []string{"search_docs"}, names)

	require.NotNil(t, llm.lastReq)
	instr := llm.lastReq.SystemInstruction
	assert.Contains(t, instr, "find the Q3 pricing doc")
	assert.Contains(t, instr, "docs-connector")
	assert.Contains(t, instr, "search_docs")
	assert.Contains(t, instr, "full-text search over the docs corpus")
	assert.Contains(t, instr, "list_folders")
}

func TestAgent_SelectTools_TruncatesAtMaxToolsPerInvocation(t *testing.T) {
	llm := &fakeLLM{text: `{"toolNames":["a","b","c","d"]}`}
	agent := NewAgent(llm, nil)

	conn := Connector{ID: "c", Tools: []tool.Definition{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}}}

	names, err := agent.selectTools(context.Background(), conn, "query")
	require.NoError(t, err)
	assert.Len(t, names, MaxToolsPerInvocation)
}
