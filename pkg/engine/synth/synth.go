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

// Package synth implements the Final Synthesizer: the terminal tool that
// streams the cited, user-facing answer and locks further review.
package synth

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agentrun/turnengine/pkg/engine/state"
	"github.com/agentrun/turnengine/pkg/model"
)

// MaxImages bounds how many images the synthesizer attaches to its prompt.
const MaxImages = 8

// Chunk is one piece of the streamed answer, delivered to the transport
// as it is produced.
type Chunk struct {
	Text string
	Done bool
}

// Sink receives streamed answer chunks; transport.CitationSink is the
// concrete implementation, forwarding each chunk to an orchestrator.Sink.
type Sink interface {
	Emit(ctx context.Context, chunk Chunk) error
}

// Synthesizer drives the terminal synthesis call.
type Synthesizer struct {
	LLM model.LLM
}

// NewSynthesizer builds a Synthesizer backed by the primary model.
func NewSynthesizer(llm model.LLM) *Synthesizer {
	return &Synthesizer{LLM: llm}
}

// Run executes the Final Synthesizer. On success it marks
// Final.Completed=true; on error it rolls back the review lock and
// Final.Requested so the run may recover and retry synthesis.
func (s *Synthesizer) Run(ctx context.Context, run *state.AgentRun, sink Sink, currentTurn int) error {
	run.Lock.LockedByFinalSynthesis = true
	run.Lock.LockedAtTurn = currentTurn
	run.Final.Requested = true

	images := selectImages(run.Fragments.AllImages())
	prompt := buildSystemInstruction(run.Question, run.Fragments.All(), images)

	var streamed string
	var callErr error
	for resp, err := range s.LLM.GenerateContent(ctx, &model.Request{SystemInstruction: prompt}, true) {
		if err != nil {
			callErr = err
			break
		}
		text := resp.TextContent()
		if text == "" {
			continue
		}
		streamed += text
		if emitErr := sink.Emit(ctx, Chunk{Text: text, Done: !resp.Partial && resp.TurnComplete}); emitErr != nil {
			callErr = emitErr
			break
		}
		if resp.Usage != nil {
			run.RecordCost("synthesize_final_answer", estimateCost(resp.Usage))
		}
	}

	if callErr != nil {
		run.Lock.LockedByFinalSynthesis = false
		run.Final.Requested = false
		return fmt.Errorf("final synthesis failed: %w", callErr)
	}

	run.Final.Completed = true
	run.Final.StreamedText = streamed
	return nil
}

// selectImages orders images user-attachments-first, then most-recent-first,
// capped at MaxImages.
func selectImages(images []*state.FragmentImageReference) []*state.FragmentImageReference {
	sorted := append([]*state.FragmentImageReference(nil), images...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IsUserAttachment != sorted[j].IsUserAttachment {
			return sorted[i].IsUserAttachment
		}
		return sorted[i].AddedAtTurn > sorted[j].AddedAtTurn
	})
	if len(sorted) > MaxImages {
		sorted = sorted[:MaxImages]
	}
	return sorted
}

func buildSystemInstruction(question string, fragments []*state.Fragment, images []*state.FragmentImageReference) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Answer the user's question using only the accumulated evidence below. Cite every ")
	b.WriteString("claim using the format K[docId_chunkIndex] (1-based), at most 2 citations per sentence.\n\n")

	b.WriteString("Evidence:\n")
	for i, f := range fragments {
		fmt.Fprintf(&b, "%d. [%s_%d] %s: %s\n", i+1, f.Source.DocumentID, i+1, f.Source.Title, f.Content)
	}

	fmt.Fprintf(&b, "\n%d image(s) are available for reference.\n", len(images))

	return b.String()
}

func estimateCost(u *model.Usage) float64 {
	const perThousandTokens = 0.003
	return float64(u.TotalTokens) / 1000 * perThousandTokens
}
