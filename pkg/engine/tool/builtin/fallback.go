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

	"github.com/agentrun/turnengine/pkg/engine/tool"
)

// fallBackTool gives the model an explicit way to admit it has no
// applicable tool for the current request, rather than hallucinating one.
type fallBackTool struct{}

// NewFallBack builds the fall_back tool.
func NewFallBack() tool.Tool { return &fallBackTool{} }

func (t *fallBackTool) Name() string { return "fall_back" }

func (t *fallBackTool) Description() string {
	return "Acknowledge that no available tool can satisfy the current step; proceed with what is already known."
}

func (t *fallBackTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{"type": "string"},
		},
	}
}

func (t *fallBackTool) Call(ctx context.Context, args map[string]any) (*tool.Result, error) {
	reason, _ := args["reason"].(string)
	return &tool.Result{Content: reason}, nil
}
