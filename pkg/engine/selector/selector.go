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

// Package selector scores and ranks candidate agents for delegation: an
// LLM-first ranking with a heuristic token-overlap fallback.
package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/agentrun/turnengine/pkg/model"
)

// Brief is the information available about one delegation candidate.
type Brief struct {
	AgentID              string
	Name                 string
	Description          string
	Capabilities         []string
	Domains              []string
	EstimatedCostUSD     float64
	MissingResources     []string
	PartialResources     []string
}

// Scored pairs a Brief with its selection score, highest first.
type Scored struct {
	Brief Brief
	Score float64
}

// Selector ranks candidates for a query.
type Selector struct {
	LLM model.LLM
}

// NewSelector builds a Selector backed by a fast LLM.
func NewSelector(llm model.LLM) *Selector {
	return &Selector{LLM: llm}
}

// Select ranks candidates, preferring the LLM's judgment and falling back
// to the heuristic scorer when the LLM returns nothing usable.
func (s *Selector) Select(ctx context.Context, query string, candidates []Brief) []Scored {
	if s.LLM != nil {
		if ranked := s.rankWithLLM(ctx, query, candidates); ranked != nil {
			return ranked
		}
	}
	return rankHeuristic(query, candidates)
}

func (s *Selector) rankWithLLM(ctx context.Context, query string, candidates []Brief) []Scored {
	req := &model.Request{
		SystemInstruction: selectorPrompt(query, candidates),
	}

	for resp, err := range s.LLM.GenerateContent(ctx, req, false) {
		if err != nil {
			slog.WarnContext(ctx, "agent selector LLM call failed", "error", err)
			return nil
		}

		var ordered []string
		if err := json.Unmarshal([]byte(resp.TextContent()), &ordered); err != nil || len(ordered) == 0 {
			return nil
		}

		byID := make(map[string]Brief, len(candidates))
		for _, c := range candidates {
			byID[c.AgentID] = c
		}

		scored := make([]Scored, 0, len(ordered))
		n := float64(len(ordered))
		for i, id := range ordered {
			brief, ok := byID[id]
			if !ok {
				continue
			}
			scored = append(scored, Scored{Brief: brief, Score: (n - float64(i)) / n})
		}
		return scored
	}
	return nil
}

func selectorPrompt(query string, candidates []Brief) string {
	prompt := fmt.Sprintf("Rank the candidate agents by fitness for the query. Return a JSON array of "+
		"agentIds, most fit first, or null if none are applicable.\n\nQuery: %s\n\nCandidates:\n", query)
	for _, c := range candidates {
		prompt += fmt.Sprintf("- agentId=%s name=%q description=%q capabilities=%v domains=%v estimatedCostUsd=%.4f missingResources=%v partialResources=%v\n",
			c.AgentID, c.Name, c.Description, c.Capabilities, c.Domains, c.EstimatedCostUSD, c.MissingResources, c.PartialResources)
	}
	return prompt
}

// rankHeuristic scores candidates by token overlap between the query and
// the brief's name/description/capabilities/domains, penalized for missing
// or partially-available resources.
func rankHeuristic(query string, candidates []Brief) []Scored {
	queryTokens := tokenize(query)

	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		briefText := strings.Join(append([]string{c.Name, c.Description}, append(c.Capabilities, c.Domains...)...), " ")
		briefTokens := tokenize(briefText)

		score := overlapScore(queryTokens, briefTokens)
		if len(c.MissingResources) > 0 {
			score -= 0.3
		}
		if len(c.PartialResources) > 0 {
			score -= 0.15
		}
		scored = append(scored, Scored{Brief: c, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		tokens[w] = struct{}{}
	}
	return tokens
}

func overlapScore(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var hits int
	for tok := range a {
		if _, ok := b[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}
