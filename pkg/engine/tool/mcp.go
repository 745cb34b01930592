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

package tool

import (
	"context"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"
)

// Source discovers the tools exposed by one connector. MCPSource is the
// only production implementation; tests substitute a stub.
type Source interface {
	Name() string
	DiscoverTools(ctx context.Context) ([]Tool, error)
}

// MCPSource discovers tools from one MCP connector, wrapping each
// discovered tool as a Tool that dispatches through the shared client.
type MCPSource struct {
	ConnectorID string
	Client      *mcpclient.Client
}

// NewMCPSource builds a Source over a connected MCP client.
func NewMCPSource(connectorID string, client *mcpclient.Client) *MCPSource {
	return &MCPSource{ConnectorID: connectorID, Client: client}
}

func (s *MCPSource) Name() string { return s.ConnectorID }

// DiscoverTools lists the connector's tools via JSON-RPC and wraps each one.
func (s *MCPSource) DiscoverTools(ctx context.Context) ([]Tool, error) {
	resp, err := s.Client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp source %s: list tools: %w", s.ConnectorID, err)
	}

	tools := make([]Tool, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		tools = append(tools, &mcpTool{connectorID: s.ConnectorID, client: s.Client, def: t})
	}
	return tools, nil
}

// DiscoverAll discovers tools from every connector concurrently, so one
// slow or unreachable MCP server does not serialize startup behind the
// others. The first discovery error cancels the remaining lookups and is
// returned; callers that want partial results should discover connectors
// individually instead.
func DiscoverAll(ctx context.Context, sources []Source) (map[string][]Tool, error) {
	g, gctx := errgroup.WithContext(ctx)
	out := make([]struct {
		name  string
		tools []Tool
	}, len(sources))

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			tools, err := src.DiscoverTools(gctx)
			if err != nil {
				return fmt.Errorf("discover %s: %w", src.Name(), err)
			}
			out[i].name, out[i].tools = src.Name(), tools
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make(map[string][]Tool, len(sources))
	for _, entry := range out {
		result[entry.name] = entry.tools
	}
	return result, nil
}

type mcpTool struct {
	connectorID string
	client      *mcpclient.Client
	def         mcp.Tool
}

func (t *mcpTool) Name() string        { return t.def.Name }
func (t *mcpTool) Description() string { return t.def.Description }

func (t *mcpTool) Schema() map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": t.def.InputSchema.Properties,
	}
	if len(t.def.InputSchema.Required) > 0 {
		schema["required"] = t.def.InputSchema.Required
	}
	return schema
}

func (t *mcpTool) Call(ctx context.Context, args map[string]any) (*Result, error) {
	resp, err := t.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: t.def.Name, Arguments: args},
	})
	if err != nil {
		return nil, fmt.Errorf("mcp tool %s/%s: %w", t.connectorID, t.def.Name, err)
	}

	var content string
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			content += tc.Text
		}
	}

	result := &Result{Content: content}
	if resp.IsError {
		result.Error = content
	}
	return result, nil
}
