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

// Package hooks implements the Pre- and Post-Execution Hooks that wrap
// every tool call: schema validation, duplicate suppression, failure
// budgeting, document ranking, and image-reference extraction.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentrun/turnengine/pkg/engine/state"
)

// FailureBudget is the number of recorded failures after which a tool is
// blocked from further execution within the same run.
const FailureBudget = 3

// DuplicateWindow is how long a successful call suppresses an identical
// repeat (same tool name, byte-equal arguments).
const DuplicateWindow = 60 * time.Second

// PreDecision is the outcome of the Pre-Execution Hook.
type PreDecision struct {
	// Skip is true when the call must not execute.
	Skip bool

	// SkipReason explains why, for the Reasoning SSE event.
	SkipReason string

	// Args is the possibly-augmented argument map (excludedIds merged into
	// seenDocuments already happened as a side effect on the run).
	Args map[string]any
}

// PreHook validates and gates tool calls before execution.
type PreHook struct {
	Schemas map[string]*jsonschema.Schema
}

// NewPreHook builds a hook from precompiled tool schemas, keyed by tool name.
func NewPreHook(schemas map[string]*jsonschema.Schema) *PreHook {
	return &PreHook{Schemas: schemas}
}

// Evaluate validates arguments, suppresses duplicate calls, and enforces
// the per-tool failure budget before a tool is allowed to execute.
func (h *PreHook) Evaluate(ctx context.Context, run *state.AgentRun, toolName string, args map[string]any) PreDecision {
	if schema, ok := h.Schemas[toolName]; ok {
		if err := validateAgainstSchema(schema, args); err != nil {
			slog.WarnContext(ctx, "tool argument schema mismatch", "tool", toolName, "error", err)
		}
	}

	argsJSON, _ := canonicalJSON(args)

	for i := len(run.History) - 1; i >= 0; i-- {
		rec := run.History[i]
		if rec.ToolName != toolName || rec.Status != state.ToolExecutionSuccess {
			continue
		}
		if rec.ArgumentsJSON != argsJSON {
			continue
		}
		if time.Since(rec.StartedAt) < DuplicateWindow {
			return PreDecision{
				Skip:       true,
				SkipReason: fmt.Sprintf("Skipping redundant tool call to '%s'.", toolName),
			}
		}
		break
	}

	if run.FailureCounts[toolName] >= FailureBudget {
		return PreDecision{
			Skip:       true,
			SkipReason: fmt.Sprintf("Tool '%s' has failed %d times and is now blocked.", toolName, FailureBudget),
		}
	}

	if raw, ok := args["excludedIds"].([]any); ok {
		ids := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				ids = append(ids, s)
			}
		}
		run.Fragments.MarkSeen(ids...)
	}

	return PreDecision{Args: args}
}

func validateAgainstSchema(schema *jsonschema.Schema, args map[string]any) error {
	return schema.Validate(args)
}

// canonicalJSON serializes args with sorted keys so byte-equal comparisons
// in the duplicate-suppression rule are order-independent.
func canonicalJSON(args map[string]any) (string, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
