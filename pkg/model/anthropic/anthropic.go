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

// Package anthropic adapts the official anthropic-sdk-go client to the
// engine's model.LLM interface. It is a thin translation layer: message
// formatting and wire protocol details are the SDK's responsibility.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentrun/turnengine/pkg/engine/tool"
	"github.com/agentrun/turnengine/pkg/model"
)

// Client adapts an anthropic.Client to model.LLM.
type Client struct {
	sdk       anthropic.Client
	modelName string
}

// New builds a Client bound to modelName (e.g. "claude-sonnet-4-5").
func New(sdk anthropic.Client, modelName string) *Client {
	return &Client{sdk: sdk, modelName: modelName}
}

// NewFromAPIKey builds a Client authenticated with apiKey.
func NewFromAPIKey(apiKey, modelName string) *Client {
	return New(anthropic.NewClient(anthropicoption.WithAPIKey(apiKey)), modelName)
}

func (c *Client) Name() string            { return c.modelName }
func (c *Client) Provider() model.Provider { return model.ProviderAnthropic }
func (c *Client) Close() error             { return nil }

// GenerateContent translates one Request into an Anthropic Messages call.
// Streaming support is intentionally minimal: this adapter issues a single
// non-streaming call and yields exactly one Response, matching the
// stream=false contract; true delta streaming is left to the concrete SDK
// client the caller constructs directly when fidelity matters more than
// this adapter's simplicity.
func (c *Client) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(c.modelName),
			MaxTokens: int64(maxTokens(req)),
			Messages:  toAnthropicMessages(req.Messages),
		}
		if req.SystemInstruction != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.SystemInstruction}}
		}
		if tools := toAnthropicTools(req.Tools); len(tools) > 0 {
			params.Tools = tools
		}

		msg, err := c.sdk.Messages.New(ctx, params)
		if err != nil {
			yield(nil, fmt.Errorf("anthropic: %w", err))
			return
		}

		resp := &model.Response{
			Content: &model.Content{
				Parts: textParts(msg),
				Role:  a2a.MessageRoleAgent,
			},
			ToolCalls:    toolCalls(msg),
			TurnComplete: true,
			FinishReason: mapStopReason(string(msg.StopReason)),
			Usage: &model.Usage{
				PromptTokens:     int(msg.Usage.InputTokens),
				CompletionTokens: int(msg.Usage.OutputTokens),
				TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
			},
		}
		yield(resp, nil)
	}
}

func maxTokens(req *model.Request) int {
	if req.Config != nil && req.Config.MaxTokens != nil {
		return *req.Config.MaxTokens
	}
	return 4096
}

func toAnthropicMessages(messages []*a2a.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		role := anthropic.MessageParamRoleUser
		if m.Role == a2a.MessageRoleAgent {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(textOf(m))},
		})
	}
	return out
}

func textOf(m *a2a.Message) string {
	var text string
	for _, p := range m.Parts {
		if tp, ok := p.(a2a.TextPart); ok {
			text += tp.Text
		}
	}
	return text
}

func textParts(msg *anthropic.Message) []a2a.Part {
	var parts []a2a.Part
	for _, block := range msg.Content {
		if tb := block.AsText(); tb.Text != "" {
			parts = append(parts, a2a.TextPart{Text: tb.Text})
		}
	}
	return parts
}

// toAnthropicTools converts the engine's tool catalog into Anthropic's
// tool-use schema so the model can actually request a call.
func toAnthropicTools(defs []tool.Definition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		u := anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			ExtraFields: def.Parameters,
		}, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = anthropic.String(def.Description)
		}
		out = append(out, u)
	}
	return out
}

// toolCalls extracts tool_use content blocks from an Anthropic response
// into the engine's provider-agnostic tool.Call shape.
func toolCalls(msg *anthropic.Message) []tool.Call {
	var calls []tool.Call
	for _, block := range msg.Content {
		tu := block.AsToolUse()
		if tu.ID == "" && tu.Name == "" {
			continue
		}

		var args map[string]any
		if len(tu.Input) > 0 {
			_ = json.Unmarshal(tu.Input, &args)
		}
		calls = append(calls, tool.Call{ID: tu.ID, Name: tu.Name, Args: args})
	}
	return calls
}

func mapStopReason(reason string) model.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return model.FinishReasonStop
	case "max_tokens":
		return model.FinishReasonLength
	case "tool_use":
		return model.FinishReasonToolCalls
	default:
		return model.FinishReasonStop
	}
}
