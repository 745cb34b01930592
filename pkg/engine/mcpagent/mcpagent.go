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

// Package mcpagent wraps an MCP connector reclassified past the tool-count
// budget behind a virtual-agent interface: it picks 1-3 of the connector's
// tools via a fast structured-output LLM call, then executes them in order.
package mcpagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentrun/turnengine/pkg/engine/tool"
	"github.com/agentrun/turnengine/pkg/model"
	"github.com/agentrun/turnengine/pkg/ratelimit"
)

// MaxToolsPerInvocation bounds the fast model's tool selection.
const MaxToolsPerInvocation = 3

// Connector wraps one MCP client and its discovered tools, promoted past
// the registry's tool-count budget.
type Connector struct {
	ID     string
	Client *mcpclient.Client
	Tools  []tool.Definition
}

// Agent runs a virtual-agent turn over an MCP connector's tools.
type Agent struct {
	Fast    model.LLM
	Limiter *ratelimit.PerKeyLimiter
}

// NewAgent builds an MCP Agent Runtime backed by a fast model for tool
// selection, rate limited per connector.
func NewAgent(fast model.LLM, limiter *ratelimit.PerKeyLimiter) *Agent {
	return &Agent{Fast: fast, Limiter: limiter}
}

type toolSelection struct {
	ToolNames []string `json:"toolNames"`
}

// Execute selects 1-3 tools from the connector and calls them in order,
// concatenating their textual outputs.
func (a *Agent) Execute(ctx context.Context, conn Connector, query string) (string, error) {
	selected, err := a.selectTools(ctx, conn, query)
	if err != nil {
		return "", err
	}

	var out string
	for _, name := range selected {
		if a.Limiter != nil {
			if err := a.Limiter.Wait(ctx, conn.ID); err != nil {
				return out, err
			}
		}

		result, err := conn.Client.CallTool(ctx, mcp.CallToolRequest{
			Params: mcp.CallToolParams{Name: name, Arguments: map[string]any{"query": query}},
		})
		if err != nil {
			return out, fmt.Errorf("mcpagent: tool %s: %w", name, err)
		}
		for _, c := range result.Content {
			if tc, ok := c.(mcp.TextContent); ok {
				out += tc.Text + "\n"
			}
		}
	}
	return out, nil
}

func (a *Agent) selectTools(ctx context.Context, conn Connector, query string) ([]string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Pick at most %d of the following MCP tools best suited to answer the query, "+
		"in execution order. Respond with JSON {\"toolNames\":[...]}.\n\n", MaxToolsPerInvocation)
	fmt.Fprintf(&b, "Query: %s\n\nTools available on connector %s:\n", query, conn.ID)
	for _, t := range conn.Tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}

	req := &model.Request{
		SystemInstruction: b.String(),
		Config:            &model.GenerateConfig{ResponseMIMEType: "application/json"},
	}

	for resp, err := range a.Fast.GenerateContent(ctx, req, false) {
		if err != nil {
			return nil, fmt.Errorf("mcpagent: tool selection call failed: %w", err)
		}

		var sel toolSelection
		if err := json.Unmarshal([]byte(resp.TextContent()), &sel); err != nil {
			return nil, fmt.Errorf("mcpagent: invalid tool selection response: %w", err)
		}
		if len(sel.ToolNames) > MaxToolsPerInvocation {
			sel.ToolNames = sel.ToolNames[:MaxToolsPerInvocation]
		}
		return sel.ToolNames, nil
	}
	return nil, fmt.Errorf("mcpagent: tool selection produced no response")
}
