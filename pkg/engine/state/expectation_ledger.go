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
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var expectedResultsBlock = regexp.MustCompile(`(?s)<expected_results>(.*?)</expected_results>`)

// ExpectationLedger parses <expected_results> blocks emitted by the model,
// matches them FIFO by tool name to subsequent tool calls, and surfaces
// unassigned expectations to the Reviewer as unmet.
type ExpectationLedger struct {
	mu      sync.Mutex
	pending []*Expectation // buffered, not yet assigned to a turn
	byTool  map[string][]*Expectation
	all     []*Expectation
	flushed bool
}

// NewExpectationLedger returns an empty ledger.
func NewExpectationLedger() *ExpectationLedger {
	return &ExpectationLedger{byTool: make(map[string][]*Expectation)}
}

type rawExpectation struct {
	ToolName        string   `json:"toolName"`
	Goal            string   `json:"goal"`
	SuccessCriteria []string `json:"successCriteria"`
	FailureSignals  []string `json:"failureSignals"`
	StopCondition   string   `json:"stopCondition"`
}

type wrappedExpectations struct {
	ToolExpectations []rawExpectation `json:"toolExpectations"`
}

// Extract parses every <expected_results> block in text. Entries that fail
// schema validation (missing toolName or goal) are dropped, not fatal.
func (l *ExpectationLedger) Extract(text string) []*Expectation {
	var out []*Expectation

	for _, m := range expectedResultsBlock.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if body == "" {
			continue
		}

		var raws []rawExpectation
		var arr []rawExpectation
		if err := json.Unmarshal([]byte(body), &arr); err == nil {
			raws = arr
		} else {
			var wrapped wrappedExpectations
			if err := json.Unmarshal([]byte(body), &wrapped); err == nil {
				raws = wrapped.ToolExpectations
			} else {
				continue
			}
		}

		for _, r := range raws {
			if r.ToolName == "" || r.Goal == "" {
				continue
			}
			out = append(out, &Expectation{
				ToolName:        r.ToolName,
				Goal:            r.Goal,
				SuccessCriteria: r.SuccessCriteria,
				FailureSignals:  r.FailureSignals,
				StopCondition:   r.StopCondition,
			})
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, out...)
	l.all = append(l.all, out...)
	return out
}

// RecordForTurn marks, exactly once, that the first turn has started. It
// keeps no per-turn expectation history: expectations buffered before turn
// 0 stay in the pending queue for Assign.
func (l *ExpectationLedger) RecordForTurn(turn int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if turn != 0 || l.flushed {
		return
	}
	l.flushed = true
}

// Assign matches the oldest unassigned expectation for toolName (FIFO,
// case-insensitive) and marks it assigned. Returns nil if none pending.
func (l *ExpectationLedger) Assign(toolName string) *Expectation {
	l.mu.Lock()
	defer l.mu.Unlock()

	lower := strings.ToLower(toolName)
	for i, e := range l.pending {
		if strings.ToLower(e.ToolName) != lower {
			continue
		}
		e.assigned = true
		l.pending = append(l.pending[:i], l.pending[i+1:]...)
		l.byTool[lower] = append(l.byTool[lower], e)
		return e
	}
	return nil
}

// Unassigned returns expectations never matched to a tool call, formatted
// for the Reviewer as unmet-expectation summaries.
func (l *ExpectationLedger) Unassigned() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for _, e := range l.all {
		if !e.assigned {
			out = append(out, fmt.Sprintf("%s: %s", e.ToolName, e.Goal))
		}
	}
	return out
}
