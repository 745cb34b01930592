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

package orchestrator

import "github.com/agentrun/turnengine/pkg/engine/state"

// RunState is the orchestrator's own state machine position: Idle →
// Planning → Executing → Reviewing → (loop) → Synthesizing → Persisting →
// Done|Error|Stopped.
type RunState string

const (
	StateIdle        RunState = "idle"
	StatePlanning    RunState = "planning"
	StateExecuting   RunState = "executing"
	StateReviewing   RunState = "reviewing"
	StateSynthesizing RunState = "synthesizing"
	StatePersisting  RunState = "persisting"
	StateDone        RunState = "done"
	StateError       RunState = "error"
	StateStopped     RunState = "stopped"
)

// EventKind names the driver events the Turn Scheduler consumes.
type EventKind string

const (
	EventTurnStart       EventKind = "turn_start"
	EventToolRequests    EventKind = "tool_requests"
	EventToolCallStart   EventKind = "tool_call_start"
	EventToolCallEnd     EventKind = "tool_call_end"
	EventTurnEnd         EventKind = "turn_end"
	EventAssistantMessage EventKind = "assistant_message"
	EventFinalOutput     EventKind = "final_output"
	EventTokenUsage      EventKind = "token_usage"
	EventRunEnd          EventKind = "run_end"
	EventReasoning       EventKind = "reasoning"
	EventCitations       EventKind = "citations"
	EventError           EventKind = "error"
)

// Event is one step of the driver event stream the orchestrator consumes.
type Event struct {
	Kind EventKind
	Turn int

	ToolName string
	ToolArgs map[string]any
	ToolCall *state.ToolExecutionRecord

	AssistantText string
	HasToolCalls  bool

	ReasoningText string
	QuickSummary  string

	Citations    []Citation
	CitationMap  map[int]int

	ErrorKind    string
	ErrorMessage string
}

// Citation is one cited fragment surfaced to the client.
type Citation struct {
	DocumentID string
	Title      string
	URL        string
	ChunkIndex int
}

// Sink receives orchestrator-level events for SSE translation. The
// transport package is the concrete implementation.
type Sink interface {
	ResponseMetadata(chatID, messageID string) error
	ChatTitleUpdate(title string) error
	AttachmentUpdate(messageID string, attachments []string) error
	Reasoning(text string, quickSummary string) error
	ResponseUpdate(text string) error
	CitationsUpdate(citations []Citation, citationMap map[int]int) error
	ImageCitationUpdate(citation Citation) error
	Error(kind, message, details string) error
	End() error
}
