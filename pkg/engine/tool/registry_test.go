package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct{ name string }

func (s *stubTool) Name() string            { return s.name }
func (s *stubTool) Description() string     { return "stub" }
func (s *stubTool) Schema() map[string]any  { return map[string]any{"type": "object"} }
func (s *stubTool) Call(ctx context.Context, args map[string]any) (*Result, error) {
	return &Result{Content: "ok"}, nil
}

func TestRegistry_RegisterTool_RejectsNil(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterTool(Entry{})
	require.Error(t, err)

	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "RegisterTool", regErr.Action)
}

func TestRegistry_Apply_FiltersOnAppAndConnector(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterTool(Entry{Tool: &stubTool{name: "alwaysOn"}}))
	require.NoError(t, r.RegisterTool(Entry{Tool: &stubTool{name: "needsSlackApp"}, RequiresApp: "slack"}))
	require.NoError(t, r.RegisterTool(Entry{Tool: &stubTool{name: "needsSlackConnector"}, RequiresConnector: "slackConnected"}))

	result := r.Apply(AccessFilterInput{
		AllowedApps: map[string]struct{}{"slack": {}},
		Connectors:  ConnectorFlags{"slackConnected": false},
	})

	names := toolNames(result.Tools)
	assert.Contains(t, names, "alwaysOn")
	assert.Contains(t, names, "needsSlackApp")
	assert.NotContains(t, names, "needsSlackConnector")
}

func TestRegistry_Apply_InternalToolsSurviveAppRestriction(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterTool(Entry{Tool: &stubTool{name: "synthesize_final_answer"}, Internal: true}))
	require.NoError(t, r.RegisterTool(Entry{Tool: &stubTool{name: "needsGmail"}, RequiresApp: "gmail"}))

	result := r.Apply(AccessFilterInput{AllowedApps: map[string]struct{}{}})

	names := toolNames(result.Tools)
	assert.Contains(t, names, "synthesize_final_answer")
	assert.NotContains(t, names, "needsGmail")
}

// TestRegistry_Apply_BudgetReclassifiesLargestConnectorFirst exercises the
// resolved tie-break: over budget, the largest MCP connector is reclassified
// first; equal counts break by connector id ascending.
func TestRegistry_Apply_BudgetReclassifiesLargestConnectorFirst(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		require.NoError(t, r.RegisterTool(Entry{Tool: &stubTool{name: "internal" + string(rune('a'+i))}, Internal: true}))
	}

	result := r.Apply(AccessFilterInput{
		MCPToolCounts: map[string]int{
			"connector-b": 20,
			"connector-a": 20,
			"connector-c": 10,
		},
	})

	// total = 5 internal + 50 MCP = 55, over the 30 budget by 25.
	// Largest-first with id tie-break reclassifies connector-a then
	// connector-b (20 each, "a" < "b"), which brings total to 15 — enough,
	// so connector-c (10) stays.
	assert.Equal(t, []string{"connector-a", "connector-b"}, result.VirtualAgentConnectors)
}

func TestRegistry_Apply_UnderBudgetKeepsAllConnectors(t *testing.T) {
	r := NewRegistry()
	result := r.Apply(AccessFilterInput{
		MCPToolCounts: map[string]int{"connector-a": 5, "connector-b": 5},
	})
	assert.Empty(t, result.VirtualAgentConnectors)
}

func toolNames(defs []Definition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Name)
	}
	return out
}
