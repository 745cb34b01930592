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

// Package openai adapts the sashabaranov/go-openai client to the engine's
// model.LLM interface, mirroring the anthropic adapter's thin-translation
// approach.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/agentrun/turnengine/pkg/engine/tool"
	"github.com/agentrun/turnengine/pkg/model"
)

// Client adapts a go-openai client to model.LLM.
type Client struct {
	sdk       *gopenai.Client
	modelName string
}

// New builds a Client bound to modelName (e.g. "gpt-4o").
func New(sdk *gopenai.Client, modelName string) *Client {
	return &Client{sdk: sdk, modelName: modelName}
}

// NewFromAPIKey builds a Client authenticated with apiKey.
func NewFromAPIKey(apiKey, modelName string) *Client {
	return New(gopenai.NewClient(apiKey), modelName)
}

func (c *Client) Name() string            { return c.modelName }
func (c *Client) Provider() model.Provider { return model.ProviderOpenAI }
func (c *Client) Close() error             { return nil }

// GenerateContent issues a single non-streaming ChatCompletion call and
// yields exactly one Response.
func (c *Client) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		messages := toOpenAIMessages(req)

		params := gopenai.ChatCompletionRequest{
			Model:    c.modelName,
			Messages: messages,
		}
		if req.Config != nil {
			if req.Config.Temperature != nil {
				params.Temperature = float32(*req.Config.Temperature)
			}
			if req.Config.MaxTokens != nil {
				params.MaxTokens = *req.Config.MaxTokens
			}
		}
		if tools := toOpenAITools(req.Tools); len(tools) > 0 {
			params.Tools = tools
		}

		resp, err := c.sdk.CreateChatCompletion(ctx, params)
		if err != nil {
			yield(nil, fmt.Errorf("openai: %w", err))
			return
		}
		if len(resp.Choices) == 0 {
			yield(nil, fmt.Errorf("openai: empty response"))
			return
		}

		choice := resp.Choices[0]
		out := &model.Response{
			Content: &model.Content{
				Parts: []a2a.Part{a2a.TextPart{Text: choice.Message.Content}},
				Role:  a2a.MessageRoleAgent,
			},
			ToolCalls:    toolCalls(choice.Message.ToolCalls),
			TurnComplete: true,
			FinishReason: mapFinishReason(choice.FinishReason),
			Usage: &model.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}
		yield(out, nil)
	}
}

func toOpenAIMessages(req *model.Request) []gopenai.ChatCompletionMessage {
	var out []gopenai.ChatCompletionMessage
	if req.SystemInstruction != "" {
		out = append(out, gopenai.ChatCompletionMessage{Role: gopenai.ChatMessageRoleSystem, Content: req.SystemInstruction})
	}
	for _, m := range req.Messages {
		role := gopenai.ChatMessageRoleUser
		if m.Role == a2a.MessageRoleAgent {
			role = gopenai.ChatMessageRoleAssistant
		}
		out = append(out, gopenai.ChatCompletionMessage{Role: role, Content: textOf(m)})
	}
	return out
}

// toOpenAITools converts the engine's tool catalog into OpenAI's
// function-calling schema so the model can actually request a call.
func toOpenAITools(defs []tool.Definition) []gopenai.Tool {
	out := make([]gopenai.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, gopenai.Tool{
			Type: gopenai.ToolTypeFunction,
			Function: &gopenai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return out
}

// toolCalls translates OpenAI's tool_calls response entries into the
// engine's provider-agnostic tool.Call shape.
func toolCalls(calls []gopenai.ToolCall) []tool.Call {
	var out []tool.Call
	for _, c := range calls {
		var args map[string]any
		if c.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(c.Function.Arguments), &args)
		}
		out = append(out, tool.Call{ID: c.ID, Name: c.Function.Name, Args: args})
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

func mapFinishReason(reason gopenai.FinishReason) model.FinishReason {
	switch reason {
	case gopenai.FinishReasonStop:
		return model.FinishReasonStop
	case gopenai.FinishReasonLength:
		return model.FinishReasonLength
	case gopenai.FinishReasonFunctionCall, gopenai.FinishReasonToolCalls:
		return model.FinishReasonToolCalls
	case gopenai.FinishReasonContentFilter:
		return model.FinishReasonContent
	default:
		return model.FinishReasonStop
	}
}
