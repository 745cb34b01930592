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
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var cuidPattern = regexp.MustCompile(`^c[a-z0-9]{20,}$`)

// sentinelAgentID is normalized to "no agent selected".
const sentinelAgentID = "default"

// ToolsListEntry is one connector's tool selection from the toolsList
// query parameter.
type ToolsListEntry struct {
	ConnectorID string   `json:"connectorId"`
	Tools       []string `json:"tools"`
}

// ModelConfig is the selectedModelConfig query parameter payload.
type ModelConfig struct {
	Model        string   `json:"model"`
	Reasoning    bool     `json:"reasoning"`
	Websearch    bool     `json:"websearch"`
	DeepResearch bool     `json:"deepResearch"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// ChatRequest is the parsed, validated shape of an incoming streaming
// message request.
type ChatRequest struct {
	Message     string
	ChatID      string
	AgentID     string
	ToolsList   []ToolsListEntry
	ModelConfig *ModelConfig
}

// ErrInvalidInput maps to HTTP 400 in the request validation error taxonomy.
var ErrInvalidInput = errors.New("invalid input")

// ParseChatRequest extracts and validates query parameters.
func ParseChatRequest(r *http.Request) (*ChatRequest, error) {
	q := r.URL.Query()

	message := q.Get("message")
	if message == "" {
		return nil, ErrInvalidInput
	}

	agentID := q.Get("agentId")
	if agentID == "" || !cuidPattern.MatchString(agentID) {
		agentID = sentinelAgentID
	}

	req := &ChatRequest{
		Message: message,
		ChatID:  q.Get("chatId"),
		AgentID: agentID,
	}

	if raw := q.Get("toolsList"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.ToolsList); err != nil {
			return nil, ErrInvalidInput
		}
	}

	if raw := q.Get("selectedModelConfig"); raw != "" {
		var cfg ModelConfig
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return nil, ErrInvalidInput
		}
		req.ModelConfig = &cfg
	}

	return req, nil
}

// StreamHandler executes one chat turn over SSE given a parsed request.
type StreamHandler func(w http.ResponseWriter, r *http.Request, req *ChatRequest)

// NewServer builds the chi router exposing the streaming-message endpoint.
// Error-taxonomy-to-HTTP-status mapping happens here, before any SSE bytes
// are written: bad requests surface as HTTP 400 before any SSE bytes flow.
func NewServer(handle StreamHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/v1/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		req, err := ParseChatRequest(r)
		if err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		handle(w, r, req)
	})

	return r
}
