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

// Package instruction builds the system prompt from the run's Plan, its
// latest Review, and the current tool catalog, ahead of every LLM call.
package instruction

import (
	"fmt"
	"strings"

	"github.com/agentrun/turnengine/pkg/engine/state"
	"github.com/agentrun/turnengine/pkg/engine/tool"
)

// Build renders the system instruction for the next LLM call.
func Build(run *state.AgentRun, tools []tool.Definition) string {
	var b strings.Builder

	b.WriteString("You are an enterprise assistant working through a plan of sub-tasks, ")
	b.WriteString("one tool call at a time. Use <expected_results> blocks to declare what ")
	b.WriteString("you expect from the tool calls you are about to make.\n\n")

	if run.Plan != nil {
		fmt.Fprintf(&b, "Goal: %s\n", run.Plan.Goal)
		for _, t := range run.Plan.SubTasks {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", t.Status, t.ID, t.Description)
		}
		b.WriteString("\n")
	}

	if run.LatestReview != nil {
		fmt.Fprintf(&b, "Last review: %s — %s\n", run.LatestReview.Status, run.LatestReview.Notes)
		if len(run.LatestReview.UnmetExpectations) > 0 {
			fmt.Fprintf(&b, "Unmet expectations: %s\n", strings.Join(run.LatestReview.UnmetExpectations, "; "))
		}
		b.WriteString("\n")
	}

	b.WriteString("Available tools:\n")
	for _, def := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
	}

	return b.String()
}
