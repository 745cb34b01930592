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

package builtin

import (
	"context"
	"fmt"

	"github.com/agentrun/turnengine/pkg/engine/tool"
)

// PlanSink receives the replacement plan built by toDoWrite. toDoWrite is
// the only caller; after a toDoWrite call the orchestrator reinitializes
// the Plan State Machine from the replaced plan.
type PlanSink interface {
	ReplacePlan(goal string, subTasks []SubTaskSpec) error
}

// SubTaskSpec is the wire shape of one sub-task in a toDoWrite call.
type SubTaskSpec struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	ToolsRequired []string `json:"toolsRequired"`
}

type toDoWriteTool struct {
	sink PlanSink
}

// NewToDoWrite builds the toDoWrite tool: the model's sole way to declare
// or replace the run's Plan.
func NewToDoWrite(sink PlanSink) tool.Tool {
	return &toDoWriteTool{sink: sink}
}

func (t *toDoWriteTool) Name() string { return "toDoWrite" }

func (t *toDoWriteTool) Description() string {
	return "Declare or replace the current plan as an ordered list of sub-tasks."
}

func (t *toDoWriteTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"goal": map[string]any{"type": "string"},
			"subTasks": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":            map[string]any{"type": "string"},
						"description":   map[string]any{"type": "string"},
						"toolsRequired": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
					"required": []string{"id", "description"},
				},
			},
		},
		"required": []string{"goal", "subTasks"},
	}
}

func (t *toDoWriteTool) Call(ctx context.Context, args map[string]any) (*tool.Result, error) {
	goal, _ := args["goal"].(string)
	if goal == "" {
		return nil, fmt.Errorf("toDoWrite: missing required argument goal")
	}

	rawTasks, _ := args["subTasks"].([]any)
	subTasks := make([]SubTaskSpec, 0, len(rawTasks))
	for _, raw := range rawTasks {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		spec := SubTaskSpec{
			ID:          fmt.Sprint(m["id"]),
			Description: fmt.Sprint(m["description"]),
		}
		if tools, ok := m["toolsRequired"].([]any); ok {
			for _, tt := range tools {
				if s, ok := tt.(string); ok {
					spec.ToolsRequired = append(spec.ToolsRequired, s)
				}
			}
		}
		subTasks = append(subTasks, spec)
	}

	if err := t.sink.ReplacePlan(goal, subTasks); err != nil {
		return nil, err
	}

	return &tool.Result{Content: fmt.Sprintf("plan updated: %d sub-tasks", len(subTasks))}, nil
}
