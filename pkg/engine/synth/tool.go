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

package synth

import (
	"context"

	"github.com/agentrun/turnengine/pkg/engine/state"
	"github.com/agentrun/turnengine/pkg/engine/tool"
)

// finalAnswerTool adapts the Synthesizer to the Tool interface so it can be
// registered and invoked like any other tool in the catalog.
type finalAnswerTool struct {
	synth       *Synthesizer
	run         *state.AgentRun
	sink        Sink
	currentTurn func() int
}

// NewTool builds synthesize_final_answer, bound to the run it serves.
func NewTool(synth *Synthesizer, run *state.AgentRun, sink Sink, currentTurn func() int) tool.Tool {
	return &finalAnswerTool{synth: synth, run: run, sink: sink, currentTurn: currentTurn}
}

func (t *finalAnswerTool) Name() string { return "synthesize_final_answer" }

func (t *finalAnswerTool) Description() string {
	return "Produce the final, cited answer for the user using all evidence gathered so far."
}

func (t *finalAnswerTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *finalAnswerTool) Call(ctx context.Context, args map[string]any) (*tool.Result, error) {
	if err := t.synth.Run(ctx, t.run, t.sink, t.currentTurn()); err != nil {
		return nil, err
	}
	return &tool.Result{Content: t.run.Final.StreamedText}, nil
}
