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

// Package plan drives the Plan state machine: initialization, advancing
// sub-tasks on tool outcomes, and picking the currently active sub-task.
package plan

import (
	"time"

	"github.com/agentrun/turnengine/pkg/engine/state"
)

// Initialize auto-completes any sub-task with no required tools and
// activates the first remaining pending sub-task.
func Initialize(p *state.Plan) {
	for _, t := range p.SubTasks {
		if len(t.ToolsRequired) == 0 && t.Status == state.SubTaskPending {
			t.Status = state.SubTaskCompleted
			t.CompletedAt = time.Now()
			t.Result = "auto-completed: no tools required"
		}
	}

	for _, t := range p.SubTasks {
		if t.Status == state.SubTaskPending {
			t.Status = state.SubTaskInProgress
			break
		}
	}
}

// ActiveSubTaskID returns the id of the currently active sub-task: first
// in_progress, else first pending, else first blocked. Returns "" if none.
func ActiveSubTaskID(p *state.Plan) string {
	if t := findStatus(p, state.SubTaskInProgress); t != nil {
		return t.ID
	}
	if t := findStatus(p, state.SubTaskPending); t != nil {
		return t.ID
	}
	if t := findStatus(p, state.SubTaskBlocked); t != nil {
		return t.ID
	}
	return ""
}

func findStatus(p *state.Plan, status state.SubTaskStatus) *state.SubTask {
	for _, t := range p.SubTasks {
		if t.Status == status {
			return t
		}
	}
	return nil
}

// AdvanceAfterTool updates the active sub-task based on a tool outcome.
// A completed sub-task is terminal and is never revisited.
func AdvanceAfterTool(p *state.Plan, toolName string, success bool, detail string) {
	activeID := ActiveSubTaskID(p)
	if activeID == "" {
		return
	}

	var active *state.SubTask
	for _, t := range p.SubTasks {
		if t.ID == activeID {
			active = t
			break
		}
	}
	if active == nil || active.Status == state.SubTaskCompleted {
		return
	}

	if success {
		if active.RequiresTool(toolName) {
			active.Status = state.SubTaskCompleted
			active.CompletedAt = time.Now()
			active.Result = detail

			for _, t := range p.SubTasks {
				if t.Status == state.SubTaskPending {
					t.Status = state.SubTaskInProgress
					break
				}
			}
		}
		return
	}

	active.Status = state.SubTaskBlocked
	active.Error = detail
}
