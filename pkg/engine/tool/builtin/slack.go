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

	"github.com/slack-go/slack"

	"github.com/agentrun/turnengine/pkg/engine/tool"
)

// slackMessagesTool implements getSlackRelatedMessages using the real
// Slack Web API client, gated by the access filter on the Slack app and
// the slackConnected connector flag.
type slackMessagesTool struct {
	client *slack.Client
}

// NewSlackRelatedMessages builds the getSlackRelatedMessages tool.
func NewSlackRelatedMessages(client *slack.Client) tool.Tool {
	return &slackMessagesTool{client: client}
}

func (t *slackMessagesTool) Name() string { return "getSlackRelatedMessages" }

func (t *slackMessagesTool) Description() string {
	return "Search Slack channels the user belongs to for messages related to the query."
}

func (t *slackMessagesTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"q": map[string]any{"type": "string"},
		},
		"required": []string{"q"},
	}
}

func (t *slackMessagesTool) Call(ctx context.Context, args map[string]any) (*tool.Result, error) {
	q, _ := args["q"].(string)
	if q == "" {
		return nil, fmt.Errorf("getSlackRelatedMessages: missing required argument q")
	}

	resp, err := t.client.SearchMessagesContext(ctx, q, slack.NewSearchParameters())
	if err != nil {
		return nil, fmt.Errorf("getSlackRelatedMessages: %w", err)
	}

	fragments := make([]map[string]any, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		fragments = append(fragments, map[string]any{
			"documentId": m.Permalink,
			"title":      m.Channel.Name,
			"content":    m.Text,
			"url":        m.Permalink,
			"app":        "Slack",
			"entity":     m.User,
		})
	}

	return &tool.Result{Output: map[string]any{"fragments": fragments}}, nil
}
