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

package transport

import (
	"context"
	"regexp"

	"github.com/agentrun/turnengine/pkg/engine/orchestrator"
	"github.com/agentrun/turnengine/pkg/engine/state"
	"github.com/agentrun/turnengine/pkg/engine/synth"
)

// citationPattern matches the Final Synthesizer's K[docId_chunkIndex]
// citation markers embedded in streamed answer text.
var citationPattern = regexp.MustCompile(`\[([A-Za-z0-9][A-Za-z0-9.-]*)_(\d+)\]`)

// CitationSink adapts an orchestrator.Sink into the synth.Sink the Final
// Synthesizer streams through. It forwards each chunk as a ResponseUpdate
// event, then scans the chunk for citation markers and emits
// CitationsUpdate immediately after, so citations always follow the text
// that introduced them.
type CitationSink struct {
	Sink orchestrator.Sink
	Run  *state.AgentRun

	seen map[string]int
	next int
}

// NewCitationSink builds a sink bound to one run's fragment store.
func NewCitationSink(sink orchestrator.Sink, run *state.AgentRun) *CitationSink {
	return &CitationSink{Sink: sink, Run: run, seen: make(map[string]int)}
}

// Emit forwards chunk text, then any newly cited fragments, then End when done.
func (c *CitationSink) Emit(ctx context.Context, chunk synth.Chunk) error {
	if chunk.Text != "" {
		if err := c.Sink.ResponseUpdate(chunk.Text); err != nil {
			return err
		}
	}

	if fresh, citationMap := c.extract(chunk.Text); len(fresh) > 0 {
		if err := c.Sink.CitationsUpdate(fresh, citationMap); err != nil {
			return err
		}
	}

	if chunk.Done {
		return c.Sink.End()
	}
	return nil
}

func (c *CitationSink) extract(text string) ([]orchestrator.Citation, map[int]int) {
	matches := citationPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	var fresh []orchestrator.Citation
	citationMap := make(map[int]int)
	for _, m := range matches {
		docID, chunkIdx := m[1], m[2]
		key := docID + "_" + chunkIdx
		ordinal, known := c.seen[key]
		if !known {
			c.next++
			ordinal = c.next
			c.seen[key] = ordinal

			cit := orchestrator.Citation{DocumentID: docID, ChunkIndex: atoiSafe(chunkIdx)}
			if frag := c.findFragment(docID); frag != nil {
				cit.Title = frag.Source.Title
				cit.URL = frag.Source.URL
			}
			fresh = append(fresh, cit)
		}
		citationMap[ordinal] = ordinal
	}
	return fresh, citationMap
}

func (c *CitationSink) findFragment(docID string) *state.Fragment {
	if c.Run == nil {
		return nil
	}
	for _, f := range c.Run.Fragments.All() {
		if f.Source.DocumentID == docID {
			return f
		}
	}
	return nil
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
