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

// Package builtin implements the engine's built-in tool catalog: search
// tools over the enterprise index and knowledge base, the Google Workspace
// and Slack connectors, todo/plan management, and the fallback tool. Every
// tool here is a thin adapter around an injected backend interface; the
// search index and the Google/Slack APIs are external collaborators.
package builtin

import (
	"context"
	"fmt"

	"github.com/agentrun/turnengine/pkg/engine/tool"
)

// SearchResult is one hit returned by a backend search.
type SearchResult struct {
	DocumentID string
	Title      string
	Content    string
	URL        string
	App        string
	Entity     string
	Confidence float64
}

// SearchBackend is the external collaborator a search tool delegates to.
type SearchBackend interface {
	Search(ctx context.Context, query string, excludedIDs []string) ([]SearchResult, error)
}

// searchTool adapts a SearchBackend to the engine's Tool interface.
type searchTool struct {
	name        string
	description string
	app         string
	backend     SearchBackend
}

// NewSearchGlobal builds the searchGlobal tool over the enterprise index.
func NewSearchGlobal(backend SearchBackend) tool.Tool {
	return &searchTool{
		name:        "searchGlobal",
		description: "Search across the user's connected enterprise content for relevant documents.",
		backend:     backend,
	}
}

// NewSearchKnowledgeBase builds the searchKnowledgeBase tool.
func NewSearchKnowledgeBase(backend SearchBackend) tool.Tool {
	return &searchTool{
		name:        "searchKnowledgeBase",
		description: "Search the configured knowledge base for relevant documents.",
		app:         "KnowledgeBase",
		backend:     backend,
	}
}

// NewConnectorSearch builds a Gmail/Drive/Calendar/Contacts style search
// tool gated on a single app.
func NewConnectorSearch(name, description, app string, backend SearchBackend) tool.Tool {
	return &searchTool{name: name, description: description, app: app, backend: backend}
}

func (t *searchTool) Name() string        { return t.name }
func (t *searchTool) Description() string { return t.description }

func (t *searchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"q":           map[string]any{"type": "string", "description": "search query"},
			"excludedIds": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"q"},
	}
}

func (t *searchTool) Call(ctx context.Context, args map[string]any) (*tool.Result, error) {
	q, _ := args["q"].(string)
	if q == "" {
		return nil, fmt.Errorf("%s: missing required argument q", t.name)
	}

	var excluded []string
	if raw, ok := args["excludedIds"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				excluded = append(excluded, s)
			}
		}
	}

	results, err := t.backend.Search(ctx, q, excluded)
	if err != nil {
		return nil, err
	}

	fragments := make([]map[string]any, 0, len(results))
	for _, r := range results {
		fragments = append(fragments, map[string]any{
			"documentId": r.DocumentID,
			"title":      r.Title,
			"content":    r.Content,
			"url":        r.URL,
			"app":        r.App,
			"entity":     r.Entity,
			"confidence": r.Confidence,
		})
	}

	return &tool.Result{
		Output: map[string]any{"fragments": fragments},
	}, nil
}
