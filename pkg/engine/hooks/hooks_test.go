package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrun/turnengine/pkg/engine/state"
)

func newTestRun() *state.AgentRun {
	return state.NewAgentRun(context.Background(), "user-1", "ws-1", "chat-1", "what changed in Q3?", "")
}

func TestPreHook_DuplicateSuppression(t *testing.T) {
	pre := NewPreHook(nil)
	post := NewPostHook(nil)
	run := newTestRun()

	args := map[string]any{"q": "Q3 results"}

	decision := pre.Evaluate(context.Background(), run, "searchGlobal", args)
	require.False(t, decision.Skip)

	_, err := post.Run(context.Background(), run, "searchGlobal", decision.Args, RawResult{}, nil, 0, 10, 0)
	require.NoError(t, err)

	// Same tool, same args, within the duplicate window: must be skipped.
	decision = pre.Evaluate(context.Background(), run, "searchGlobal", args)
	assert.True(t, decision.Skip)
	assert.Contains(t, decision.SkipReason, "redundant")
}

func TestPreHook_DifferentArgsAreNotDuplicates(t *testing.T) {
	pre := NewPreHook(nil)
	post := NewPostHook(nil)
	run := newTestRun()

	decision := pre.Evaluate(context.Background(), run, "searchGlobal", map[string]any{"q": "Q3"})
	_, err := post.Run(context.Background(), run, "searchGlobal", decision.Args, RawResult{}, nil, 0, 10, 0)
	require.NoError(t, err)

	decision = pre.Evaluate(context.Background(), run, "searchGlobal", map[string]any{"q": "Q4"})
	assert.False(t, decision.Skip)
}

func TestPreHook_FailureBudgetBlocksTool(t *testing.T) {
	pre := NewPreHook(nil)
	post := NewPostHook(nil)
	run := newTestRun()

	for i := 0; i < FailureBudget; i++ {
		_, err := post.Run(context.Background(), run, "flaky", map[string]any{"n": i}, RawResult{Error: "boom"}, nil, 0, 5, 0)
		require.NoError(t, err)
	}

	decision := pre.Evaluate(context.Background(), run, "flaky", map[string]any{"n": 99})
	assert.True(t, decision.Skip)
	assert.Contains(t, decision.SkipReason, "blocked")
}

type stubRanker struct {
	indexes []int
	err     error
}

func (s *stubRanker) Rank(ctx context.Context, question string, candidates []RankCandidate) ([]int, error) {
	return s.indexes, s.err
}

func TestPostHook_RankerErrorKeepsAllCandidates(t *testing.T) {
	post := NewPostHook(&stubRanker{err: assert.AnError})
	run := newTestRun()

	raw := RawResult{Data: []map[string]any{
		{"documentId": "doc-1", "title": "A", "content": "alpha"},
		{"documentId": "doc-2", "title": "B", "content": "beta"},
	}}

	result, err := post.Run(context.Background(), run, "searchGlobal", nil, raw, nil, 0, 10, 0)
	require.NoError(t, err)
	require.False(t, result.Empty)
	assert.Len(t, result.Fragments, 2)
}

func TestPostHook_RankerNarrowsCandidates(t *testing.T) {
	post := NewPostHook(&stubRanker{indexes: []int{2}})
	run := newTestRun()

	raw := RawResult{Data: []map[string]any{
		{"documentId": "doc-1", "title": "A", "content": "alpha"},
		{"documentId": "doc-2", "title": "B", "content": "beta"},
	}}

	result, err := post.Run(context.Background(), run, "searchGlobal", nil, raw, nil, 0, 10, 0)
	require.NoError(t, err)
	require.Len(t, result.Fragments, 1)
	assert.Equal(t, "doc-2", result.Fragments[0].Source.DocumentID)
}

func TestPostHook_DeduplicatesAlreadySeenDocuments(t *testing.T) {
	post := NewPostHook(nil)
	run := newTestRun()
	run.Fragments.MarkSeen("doc-1")

	raw := RawResult{Data: []map[string]any{
		{"documentId": "doc-1", "title": "A", "content": "alpha"},
		{"documentId": "doc-2", "title": "B", "content": "beta"},
	}}

	result, err := post.Run(context.Background(), run, "searchGlobal", nil, raw, nil, 0, 10, 0)
	require.NoError(t, err)
	require.Len(t, result.Fragments, 1)
	assert.Equal(t, "doc-2", result.Fragments[0].Source.DocumentID)
}

func TestPostHook_ExtractsImageReferences(t *testing.T) {
	post := NewPostHook(nil)
	run := newTestRun()

	raw := RawResult{Data: []map[string]any{
		{"documentId": "doc-1", "title": "Deck", "content": "see slide 3_doc1_p2 for the chart"},
	}}

	result, err := post.Run(context.Background(), run, "searchGlobal", nil, raw, nil, 0, 10, 0)
	require.NoError(t, err)
	require.Len(t, result.Fragments, 1)
	require.Len(t, run.Current.Images, 1)
	assert.Equal(t, "3_doc1_p2", run.Current.Images[0].FileName)
}

func TestPostHook_ToolErrorRecordsFailureAndSkipsFragments(t *testing.T) {
	post := NewPostHook(nil)
	run := newTestRun()

	result, err := post.Run(context.Background(), run, "searchGlobal", nil, RawResult{Error: "timeout"}, nil, 0, 10, 0)
	require.NoError(t, err)
	assert.True(t, result.Empty)
	assert.Equal(t, 1, run.FailureCounts["searchGlobal"])
}
