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

package tool

import (
	"fmt"
	"sort"
	"sync"
)

// ToolBudget is the maximum number of tools (internal + MCP-derived) an
// agent's system prompt may carry before the largest MCP connectors are
// reclassified as virtual agents.
const ToolBudget = 30

// Entry pairs a Tool with the metadata the Access Filter needs.
type Entry struct {
	Tool Tool

	// RequiresApp gates the tool on an app being in the agent's allowed set.
	// Empty means unconditionally available.
	RequiresApp string

	// RequiresConnector gates the tool on a connector-sync flag being true.
	RequiresConnector string

	// MCPConnectorID is set for MCP-derived tools; used for budget
	// reclassification (grouped and reclassified per-connector).
	MCPConnectorID string

	// Internal tools are never removed by the access filter or budget.
	Internal bool
}

// RegistryError is the typed error returned by Registry operations.
type RegistryError struct {
	Component string
	Action    string
	Message   string
	Err       error
}

func (e *RegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Component, e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Component, e.Action, e.Message)
}

func (e *RegistryError) Unwrap() error { return e.Err }

func newRegistryError(action, message string, err error) *RegistryError {
	return &RegistryError{Component: "ToolRegistry", Action: action, Message: message, Err: err}
}

// Registry enumerates internal tools, MCP-derived tools, and delegation
// tools available to an agent run. It is its own entry store rather than a
// generic container: the only thing ever registered is an Entry, and the
// Access Filter needs List() to walk them in registration-order-independent
// fashion, so a dedicated map guarded by one mutex is simpler than a
// type-parameterized layer underneath it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// RegisterTool adds a tool with its access-filter metadata.
func (r *Registry) RegisterTool(e Entry) error {
	if e.Tool == nil {
		return newRegistryError("RegisterTool", "tool cannot be nil", nil)
	}

	name := e.Tool.Name()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return newRegistryError("RegisterTool", "failed to register "+name,
			fmt.Errorf("tool %q already registered", name))
	}
	r.entries[name] = e
	return nil
}

// Get looks up a registered entry by tool name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// List returns every registered entry in no particular order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Count returns the number of registered entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ConnectorFlags reports whether a named connector is synced/connected for
// the current agent run (e.g. "gmailSynced", "slackConnected").
type ConnectorFlags map[string]bool

// AccessFilterInput narrows a Registry to what one agent run may actually
// see.
type AccessFilterInput struct {
	// AllowedApps restricts app-gated tools to this set. A nil map means
	// unrestricted; a non-nil empty map admits no app-gated tool.
	AllowedApps map[string]struct{}

	Connectors ConnectorFlags

	// MCPToolCounts maps connector id to the number of tools it contributes,
	// used for the 30-tool budget reclassification.
	MCPToolCounts map[string]int
}

// FilterResult is the outcome of applying the Access Filter.
type FilterResult struct {
	// Tools are the definitions to expose to the LLM.
	Tools []Definition

	// VirtualAgentConnectors are MCP connectors reclassified out of the
	// direct tool list because the 30-tool budget was exceeded; they remain
	// reachable only through run_public_agent/MCP routing.
	VirtualAgentConnectors []string
}

// Apply enumerates the registry's entries, removes tools whose app/connector
// requirements are not satisfied, then enforces the tool-count budget by
// reclassifying the largest MCP connectors (ties broken by connector id,
// ascending) as virtual agents until the budget holds.
func (r *Registry) Apply(in AccessFilterInput) FilterResult {
	entries := r.List()

	var internal []Entry
	for _, e := range entries {
		if e.MCPConnectorID != "" {
			continue
		}
		if !e.Internal {
			if e.RequiresApp != "" {
				if in.AllowedApps != nil {
					if _, ok := in.AllowedApps[e.RequiresApp]; !ok {
						continue
					}
				}
			}
			if e.RequiresConnector != "" && !in.Connectors[e.RequiresConnector] {
				continue
			}
		}
		internal = append(internal, e)
	}

	type connector struct {
		id    string
		count int
	}
	var connectors []connector
	total := len(internal)
	for id, count := range in.MCPToolCounts {
		connectors = append(connectors, connector{id: id, count: count})
		total += count
	}

	var virtual []string
	if total > ToolBudget {
		// Largest connector first; ties broken by connector id ascending
		// for a stable, reproducible reclassification order.
		sort.Slice(connectors, func(i, j int) bool {
			if connectors[i].count != connectors[j].count {
				return connectors[i].count > connectors[j].count
			}
			return connectors[i].id < connectors[j].id
		})

		for _, c := range connectors {
			if total <= ToolBudget {
				break
			}
			virtual = append(virtual, c.id)
			total -= c.count
		}
	}

	virtualSet := make(map[string]struct{}, len(virtual))
	for _, id := range virtual {
		virtualSet[id] = struct{}{}
	}

	defs := make([]Definition, 0, len(internal))
	for _, e := range internal {
		defs = append(defs, ToDefinition(e.Tool))
	}
	for _, e := range entries {
		if e.MCPConnectorID == "" {
			continue
		}
		if _, reclassified := virtualSet[e.MCPConnectorID]; reclassified {
			continue
		}
		defs = append(defs, ToDefinition(e.Tool))
	}

	return FilterResult{Tools: defs, VirtualAgentConnectors: virtual}
}
