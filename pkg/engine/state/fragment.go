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

package state

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// FragmentSource is the citation attached to a piece of evidence.
type FragmentSource struct {
	DocumentID string
	Title      string
	URL        string
	App        string
	Entity     string
}

// Fragment is a unit of evidence considered citable by the Final Synthesizer.
type Fragment struct {
	ID         string
	Content    string
	Source     FragmentSource
	Confidence float64
	Images     []string
	Turn       int
}

// FragmentImageReference indexes an image surfaced by a fragment's content.
type FragmentImageReference struct {
	FileName         string
	AddedAtTurn      int
	SourceFragmentID string
	SourceToolName   string
	IsUserAttachment bool
}

// FragmentStore is the per-run accumulator of fragments, images, and the
// seenDocuments set used for duplicate suppression across tool calls.
type FragmentStore struct {
	mu sync.Mutex

	all          []*Fragment
	byTurn       map[int][]*Fragment
	seenDocs     map[string]struct{}
	images       []*FragmentImageReference
	imagesByTurn map[int][]*FragmentImageReference

	enc *tiktoken.Tiktoken
}

// NewFragmentStore returns an empty store. The tokenizer is loaded here,
// best-effort: if it fails to load, Recent falls back to a rune-count
// budget rather than failing the run.
func NewFragmentStore() *FragmentStore {
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &FragmentStore{
		byTurn:       make(map[int][]*Fragment),
		seenDocs:     make(map[string]struct{}),
		imagesByTurn: make(map[int][]*FragmentImageReference),
		enc:          enc,
	}
}

// Seen reports whether a document id has already been surfaced this run.
func (s *FragmentStore) Seen(documentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seenDocs[documentID]
	return ok
}

// MarkSeen adds document ids to the seenDocuments set without attaching a
// fragment; used for excludedIds injected by the Pre-Execution Hook.
func (s *FragmentStore) MarkSeen(documentIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range documentIDs {
		s.seenDocs[id] = struct{}{}
	}
}

// Add records a fragment for the given turn, marking its document seen.
// Fragments whose document id was already seen are rejected (returns false)
// so callers can skip the accompanying image scan.
func (s *FragmentStore) Add(turn int, f *Fragment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.Source.DocumentID != "" {
		if _, dup := s.seenDocs[f.Source.DocumentID]; dup {
			return false
		}
		s.seenDocs[f.Source.DocumentID] = struct{}{}
	}

	f.Turn = turn
	s.all = append(s.all, f)
	s.byTurn[turn] = append(s.byTurn[turn], f)
	return true
}

// AddImage records an image reference for the given turn.
func (s *FragmentStore) AddImage(turn int, ref *FragmentImageReference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref.AddedAtTurn = turn
	s.images = append(s.images, ref)
	s.imagesByTurn[turn] = append(s.imagesByTurn[turn], ref)
}

// All returns every fragment gathered so far, in insertion order.
func (s *FragmentStore) All() []*Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Fragment, len(s.all))
	copy(out, s.all)
	return out
}

// AllImages returns every image reference gathered so far.
func (s *FragmentStore) AllImages() []*FragmentImageReference {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*FragmentImageReference, len(s.images))
	copy(out, s.images)
	return out
}

// ForTurn returns the fragments attached to a specific turn.
func (s *FragmentStore) ForTurn(turn int) []*Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Fragment(nil), s.byTurn[turn]...)
}

// Recent returns the most recent fragments whose combined content fits
// within maxTokens, newest first in selection but returned oldest-first so
// callers can append them to a prompt in chronological order. The newest
// fragment is always included, even when it alone exceeds maxTokens; a
// maxTokens of zero or less returns every fragment.
func (s *FragmentStore) Recent(maxTokens int) []*Fragment {
	s.mu.Lock()
	all := make([]*Fragment, len(s.all))
	copy(all, s.all)
	s.mu.Unlock()

	if maxTokens <= 0 {
		return all
	}

	var budget int
	var selected []*Fragment
	for i := len(all) - 1; i >= 0; i-- {
		f := all[i]
		tokens := s.countTokens(f.Content)
		if budget+tokens > maxTokens && len(selected) > 0 {
			break
		}
		selected = append(selected, f)
		budget += tokens
	}

	// reverse into chronological order
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}
	return selected
}

func (s *FragmentStore) countTokens(text string) int {
	if s.enc == nil {
		return len([]rune(text)) / 4
	}
	return len(s.enc.Encode(text, nil, nil))
}
