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

// Package transport implements the external interface boundary: query
// parameter parsing, the chi HTTP server, and the SSE event writer that
// converts orchestrator.Sink calls into named Server-Sent Events.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/agentrun/turnengine/pkg/engine/orchestrator"
)

// SSEWriter implements orchestrator.Sink over an http.ResponseWriter,
// flushing after every event so the client sees it immediately.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	ended   bool
}

// NewSSEWriter prepares w for event-stream output by setting the
// event-stream response headers, so it must be called before anything is
// written to w.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("transport: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &SSEWriter{w: w, flusher: flusher}, nil
}

func (s *SSEWriter) write(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil
	}

	var data []byte
	switch v := payload.(type) {
	case string:
		data = []byte(v)
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = b
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

type responseMetadataPayload struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId,omitempty"`
}

func (s *SSEWriter) ResponseMetadata(chatID, messageID string) error {
	return s.write("ResponseMetadata", responseMetadataPayload{ChatID: chatID, MessageID: messageID})
}

func (s *SSEWriter) ChatTitleUpdate(title string) error {
	return s.write("ChatTitleUpdate", title)
}

type attachmentUpdatePayload struct {
	MessageID   string   `json:"messageId"`
	Attachments []string `json:"attachments"`
}

func (s *SSEWriter) AttachmentUpdate(messageID string, attachments []string) error {
	return s.write("AttachmentUpdate", attachmentUpdatePayload{MessageID: messageID, Attachments: attachments})
}

type reasoningPayload struct {
	Text         string `json:"text"`
	QuickSummary string `json:"quickSummary,omitempty"`
}

func (s *SSEWriter) Reasoning(text string, quickSummary string) error {
	return s.write("Reasoning", reasoningPayload{Text: text, QuickSummary: quickSummary})
}

func (s *SSEWriter) ResponseUpdate(text string) error {
	return s.write("ResponseUpdate", text)
}

type citationEntry struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	URL        string `json:"url,omitempty"`
	ChunkIndex int    `json:"chunkIndex"`
}

type citationsUpdatePayload struct {
	ContextChunks []citationEntry `json:"contextChunks"`
	CitationMap   map[int]int     `json:"citationMap"`
}

func (s *SSEWriter) CitationsUpdate(citations []orchestrator.Citation, citationMap map[int]int) error {
	entries := make([]citationEntry, len(citations))
	for i, c := range citations {
		entries[i] = citationEntry{DocumentID: c.DocumentID, Title: c.Title, URL: c.URL, ChunkIndex: c.ChunkIndex}
	}
	return s.write("CitationsUpdate", citationsUpdatePayload{ContextChunks: entries, CitationMap: citationMap})
}

func (s *SSEWriter) ImageCitationUpdate(citation orchestrator.Citation) error {
	return s.write("ImageCitationUpdate", citationEntry{
		DocumentID: citation.DocumentID, Title: citation.Title, URL: citation.URL, ChunkIndex: citation.ChunkIndex,
	})
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *SSEWriter) Error(kind, message, details string) error {
	return s.write("Error", errorPayload{Error: kind, Message: message, Details: details})
}

func (s *SSEWriter) End() error {
	s.mu.Lock()
	alreadyEnded := s.ended
	s.mu.Unlock()
	if alreadyEnded {
		return nil
	}

	err := s.write("End", "")

	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	return err
}
