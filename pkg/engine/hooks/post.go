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

package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/agentrun/turnengine/pkg/engine/plan"
	"github.com/agentrun/turnengine/pkg/engine/state"
)

// imageFilePattern matches image filenames of the form
// {docIndex}_{docId}_{pageOrChunk}, e.g. "3_abcd1234_p2".
var imageFilePattern = regexp.MustCompile(`\b(\d+)_([A-Za-z0-9][A-Za-z0-9_-]*)_([A-Za-z0-9]+)\b`)

// DocumentRanker is the secondary, temperature-0 LLM call that selects
// which candidate fragments to keep for a tool result.
type DocumentRanker interface {
	// Rank returns 1-based indexes into candidates to keep. A nil/empty
	// result with no error means "keep all" (resolved Open Question #2).
	Rank(ctx context.Context, question string, candidates []RankCandidate) ([]int, error)
}

// RankCandidate is the title+content pair the ranker scores.
type RankCandidate struct {
	Title   string
	Content string
}

// PostResult is the normalized tool-result envelope fed back to the LLM.
// Exactly one of Fragments being non-empty or Empty being true holds.
type PostResult struct {
	Fragments []*state.Fragment
	Empty     bool
}

// PostHook normalizes a completed tool call into fragments: ranking
// candidates, deduplicating against already-seen documents, and extracting
// image references.
type PostHook struct {
	Ranker DocumentRanker
}

// NewPostHook builds a hook backed by a Document Ranker LLM.
func NewPostHook(ranker DocumentRanker) *PostHook {
	return &PostHook{Ranker: ranker}
}

// RawResult is what a tool.Result looks like from the Post-Hook's point of
// view: either a data array/fragments object, or contexts in metadata.
type RawResult struct {
	Data     []map[string]any
	Contexts []map[string]any
	Metadata map[string]any
	Error    string
}

// Run executes the Post-Execution Hook for one completed tool call.
func (h *PostHook) Run(ctx context.Context, run *state.AgentRun, toolName string, args map[string]any, raw RawResult, expected *state.Expectation, turn int, durationMs int64, costUSD float64) (*PostResult, error) {
	argsJSON, _ := json.Marshal(args)
	rec := &state.ToolExecutionRecord{
		ToolName:         toolName,
		TurnNumber:       turn,
		Arguments:        args,
		ArgumentsJSON:    string(argsJSON),
		Expected:         expected,
		DurationMs:       durationMs,
		EstimatedCostUSD: costUSD,
		StartedAt:        time.Now().Add(-time.Duration(durationMs) * time.Millisecond),
	}
	if raw.Error != "" {
		rec.Status = state.ToolExecutionError
		rec.Error = raw.Error
	} else {
		rec.Status = state.ToolExecutionSuccess
	}
	run.History = append(run.History, rec)
	run.CumulativeLatencyMs += durationMs
	run.RecordCost(toolName, costUSD)

	if rec.Status == state.ToolExecutionError {
		run.FailureCounts[toolName]++
		run.ConsecutiveErrors[toolName]++
		if run.Plan != nil {
			plan.AdvanceAfterTool(run.Plan, toolName, false, raw.Error)
		}
		return &PostResult{Empty: true}, nil
	}
	run.ConsecutiveErrors[toolName] = 0
	if run.Plan != nil {
		plan.AdvanceAfterTool(run.Plan, toolName, true, fmt.Sprintf("%s completed", toolName))
	}

	candidates := raw.Data
	if len(candidates) == 0 {
		candidates = raw.Contexts
	}

	var fresh []map[string]any
	for _, c := range candidates {
		docID := stringField(c, "documentId")
		if docID != "" && run.Fragments.Seen(docID) {
			continue
		}
		fresh = append(fresh, c)
	}

	if len(fresh) == 0 {
		return &PostResult{Empty: true}, nil
	}

	keep := fresh
	if h.Ranker != nil {
		rankCandidates := make([]RankCandidate, len(fresh))
		for i, c := range fresh {
			rankCandidates[i] = RankCandidate{Title: stringField(c, "title"), Content: stringField(c, "content")}
		}
		indexes, err := h.Ranker.Rank(ctx, run.Question, rankCandidates)
		if err == nil && len(indexes) > 0 {
			keep = keep[:0]
			for _, idx := range indexes {
				if idx >= 1 && idx <= len(fresh) {
					keep = append(keep, fresh[idx-1])
				}
			}
		}
		// On empty response or ranker error: keep all (resolved open question).
	}

	var kept []*state.Fragment
	for _, c := range keep {
		f := &state.Fragment{
			ID:         fmt.Sprintf("%s-%d-%d", toolName, turn, len(kept)),
			Content:    stringField(c, "content"),
			Confidence: floatField(c, "confidence"),
			Source: state.FragmentSource{
				DocumentID: stringField(c, "documentId"),
				Title:      stringField(c, "title"),
				URL:        stringField(c, "url"),
				App:        stringField(c, "app"),
				Entity:     stringField(c, "entity"),
			},
		}
		if !run.Fragments.Add(turn, f) {
			continue
		}
		kept = append(kept, f)
		run.Current.Fragments = append(run.Current.Fragments, f)

		for _, m := range imageFilePattern.FindAllStringSubmatch(f.Content, -1) {
			ref := &state.FragmentImageReference{
				FileName:         m[0],
				SourceFragmentID: f.ID,
				SourceToolName:   toolName,
			}
			run.Fragments.AddImage(turn, ref)
			run.Current.Images = append(run.Current.Images, ref)
		}
	}

	if len(kept) == 0 {
		return &PostResult{Empty: true}, nil
	}
	return &PostResult{Fragments: kept}, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
