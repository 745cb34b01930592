package delegate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrun/turnengine/pkg/engine/state"
)

type stubDirectory struct {
	briefs []AgentBrief
}

func (d *stubDirectory) ListAgents(ctx context.Context, workspaceID string) ([]AgentBrief, error) {
	return d.briefs, nil
}

func newRun() *state.AgentRun {
	return state.NewAgentRun(context.Background(), "u", "w", "c", "q", "")
}

func TestListCustomAgents_PopulatesAvailableAgents(t *testing.T) {
	run := newRun()
	dir := &stubDirectory{briefs: []AgentBrief{{AgentID: "finance-bot", Name: "Finance Bot"}}}

	tool := NewListCustomAgents(dir, run)
	_, err := tool.Call(context.Background(), map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, []string{"finance-bot"}, run.AvailableAgents)
}

func TestRunPublicAgent_RejectsUntilAmbiguityResolved(t *testing.T) {
	run := newRun()
	run.AvailableAgents = []string{"finance-bot"}

	called := false
	runner := SubRunner(func(ctx context.Context, agentID, query string, parentTurn, maxTurns int) (*SubRunResult, error) {
		called = true
		return &SubRunResult{Text: "done"}, nil
	})

	tool := NewRunPublicAgent(run, runner)
	_, err := tool.Call(context.Background(), map[string]any{"agentId": "finance-bot", "query": "q3 numbers"})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestRunPublicAgent_RejectsUnknownAgent(t *testing.T) {
	run := newRun()
	run.AmbiguityResolved = true
	run.AvailableAgents = []string{"finance-bot"}

	runner := SubRunner(func(ctx context.Context, agentID, query string, parentTurn, maxTurns int) (*SubRunResult, error) {
		t.Fatal("runner must not be invoked for an agent outside AvailableAgents")
		return nil, nil
	})

	tool := NewRunPublicAgent(run, runner)
	_, err := tool.Call(context.Background(), map[string]any{"agentId": "unknown-bot", "query": "q"})
	assert.Error(t, err)
}

func TestRunPublicAgent_DelegatesAndFoldsCitationsIntoFragments(t *testing.T) {
	run := newRun()
	run.AmbiguityResolved = true
	run.AvailableAgents = []string{"finance-bot"}

	runner := SubRunner(func(ctx context.Context, agentID, query string, parentTurn, maxTurns int) (*SubRunResult, error) {
		assert.Equal(t, "finance-bot", agentID)
		assert.Equal(t, MaxSubAgentTurns, maxTurns)
		return &SubRunResult{
			Text:      "Q3 revenue grew 12%",
			Citations: []Citation{{DocumentID: "doc-1", Title: "Q3 Report"}},
		}, nil
	})

	tool := NewRunPublicAgent(run, runner)
	result, err := tool.Call(context.Background(), map[string]any{"agentId": "finance-bot", "query": "q3 revenue"})
	require.NoError(t, err)

	fragments, ok := result.Output["fragments"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, fragments, 2)
	assert.Equal(t, "doc-1", fragments[1]["documentId"])
}
