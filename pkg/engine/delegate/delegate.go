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

// Package delegate implements the Delegation Sub-Runtime: run_public_agent
// and list_custom_agents. It depends on the orchestrator only through the
// SubRunner function type, so the recursive engine invocation never forms
// an import cycle with the orchestrator package that wires it in.
package delegate

import (
	"context"
	"fmt"

	"github.com/agentrun/turnengine/pkg/engine/state"
	"github.com/agentrun/turnengine/pkg/engine/tool"
)

// MaxSubAgentTurns is the turn bound run_public_agent passes to its
// SubRunner; whether it is enforced is up to the SubRunner.
const MaxSubAgentTurns = 25

// SubRunResult is what a delegated sub-run returns to its parent.
type SubRunResult struct {
	Text            string
	Citations       []Citation
	ImageCitations  []Citation
}

// Citation is a minimal citable reference returned by a sub-run.
type Citation struct {
	DocumentID string
	Title      string
	URL        string
}

// SubRunner executes one delegated sub-agent turn to completion. The
// concrete implementation is the orchestrator, injected at composition
// time to avoid an import cycle.
type SubRunner func(ctx context.Context, agentID, query string, parentTurn int, maxTurns int) (*SubRunResult, error)

// AgentDirectory resolves the agents available for delegation.
type AgentDirectory interface {
	ListAgents(ctx context.Context, workspaceID string) ([]AgentBrief, error)
}

// AgentBrief is the minimal description surfaced by list_custom_agents.
type AgentBrief struct {
	AgentID     string
	Name        string
	Description string
}

type listCustomAgentsTool struct {
	directory AgentDirectory
	run       *state.AgentRun
}

// NewListCustomAgents builds list_custom_agents, which populates the run's
// AvailableAgents list as its side effect.
func NewListCustomAgents(directory AgentDirectory, run *state.AgentRun) tool.Tool {
	return &listCustomAgentsTool{directory: directory, run: run}
}

func (t *listCustomAgentsTool) Name() string        { return "list_custom_agents" }
func (t *listCustomAgentsTool) Description() string { return "List the custom agents available for delegation in this workspace." }
func (t *listCustomAgentsTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *listCustomAgentsTool) Call(ctx context.Context, args map[string]any) (*tool.Result, error) {
	briefs, err := t.directory.ListAgents(ctx, t.run.WorkspaceID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(briefs))
	out := make([]map[string]any, 0, len(briefs))
	for _, b := range briefs {
		ids = append(ids, b.AgentID)
		out = append(out, map[string]any{"agentId": b.AgentID, "name": b.Name, "description": b.Description})
	}
	t.run.AvailableAgents = ids

	return &tool.Result{Output: map[string]any{"agents": out}}, nil
}

type runPublicAgentTool struct {
	run    *state.AgentRun
	runner SubRunner
}

// NewRunPublicAgent builds run_public_agent. It is only callable when
// AmbiguityResolved is true and the target agent appears in the run's
// AvailableAgents list.
func NewRunPublicAgent(run *state.AgentRun, runner SubRunner) tool.Tool {
	return &runPublicAgentTool{run: run, runner: runner}
}

func (t *runPublicAgentTool) Name() string        { return "run_public_agent" }
func (t *runPublicAgentTool) Description() string { return "Delegate part of the task to another agent." }
func (t *runPublicAgentTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agentId": map[string]any{"type": "string"},
			"query":   map[string]any{"type": "string"},
		},
		"required": []string{"agentId", "query"},
	}
}

func (t *runPublicAgentTool) Call(ctx context.Context, args map[string]any) (*tool.Result, error) {
	agentID, _ := args["agentId"].(string)
	query, _ := args["query"].(string)
	if agentID == "" || query == "" {
		return nil, fmt.Errorf("run_public_agent: agentId and query are required")
	}

	if !t.run.AmbiguityResolved {
		return nil, fmt.Errorf("run_public_agent: not permitted until ambiguity is resolved")
	}
	if !contains(t.run.AvailableAgents, agentID) {
		return nil, fmt.Errorf("run_public_agent: %q is not in the available-agents list", agentID)
	}

	result, err := t.runner(ctx, agentID, query, t.run.TurnCount, MaxSubAgentTurns)
	if err != nil {
		return nil, err
	}

	fragments := make([]map[string]any, 0, 1+len(result.Citations)+len(result.ImageCitations))
	fragments = append(fragments, map[string]any{
		"documentId": fmt.Sprintf("agent-%s-%d", agentID, t.run.TurnCount),
		"title":      fmt.Sprintf("Delegated response from %s", agentID),
		"content":    result.Text,
		"app":        "agent",
		"entity":     agentID,
	})
	for _, c := range result.Citations {
		fragments = append(fragments, map[string]any{"documentId": c.DocumentID, "title": c.Title, "url": c.URL, "app": "agent", "entity": agentID})
	}

	return &tool.Result{Output: map[string]any{"fragments": fragments}}, nil
}

func contains(items []string, target string) bool {
	for _, it := range items {
		if it == target {
			return true
		}
	}
	return false
}
