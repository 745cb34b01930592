package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrun/turnengine/pkg/engine/orchestrator"
	"github.com/agentrun/turnengine/pkg/engine/state"
	"github.com/agentrun/turnengine/pkg/engine/synth"
)

type recordingSink struct {
	text      []string
	citations [][]orchestrator.Citation
	ended     bool
}

func (r *recordingSink) ResponseMetadata(chatID, messageID string) error { return nil }
func (r *recordingSink) ChatTitleUpdate(title string) error              { return nil }
func (r *recordingSink) AttachmentUpdate(messageID string, attachments []string) error {
	return nil
}
func (r *recordingSink) Reasoning(text, quickSummary string) error { return nil }
func (r *recordingSink) ResponseUpdate(text string) error {
	r.text = append(r.text, text)
	return nil
}
func (r *recordingSink) CitationsUpdate(citations []orchestrator.Citation, citationMap map[int]int) error {
	r.citations = append(r.citations, citations)
	return nil
}
func (r *recordingSink) ImageCitationUpdate(citation orchestrator.Citation) error { return nil }
func (r *recordingSink) Error(kind, message, details string) error               { return nil }
func (r *recordingSink) End() error                                              { r.ended = true; return nil }

func TestCitationSink_EmitsTextBeforeCitations(t *testing.T) {
	run := state.NewAgentRun(context.Background(), "u", "w", "c", "q", "")
	run.Fragments.Add(0, &state.Fragment{ID: "f1", Source: state.FragmentSource{DocumentID: "doc1", Title: "Q3 Report", URL: "https://x/doc1"}})

	rec := &recordingSink{}
	sink := NewCitationSink(rec, run)

	err := sink.Emit(context.Background(), synth.Chunk{Text: "revenue grew [doc1_2] this quarter"})
	require.NoError(t, err)

	require.Len(t, rec.text, 1)
	assert.Equal(t, "revenue grew [doc1_2] this quarter", rec.text[0])

	require.Len(t, rec.citations, 1)
	require.Len(t, rec.citations[0], 1)
	assert.Equal(t, "doc1", rec.citations[0][0].DocumentID)
	assert.Equal(t, 2, rec.citations[0][0].ChunkIndex)
	assert.Equal(t, "Q3 Report", rec.citations[0][0].Title)
}

func TestCitationSink_DoesNotReemitSeenCitations(t *testing.T) {
	run := state.NewAgentRun(context.Background(), "u", "w", "c", "q", "")
	rec := &recordingSink{}
	sink := NewCitationSink(rec, run)

	require.NoError(t, sink.Emit(context.Background(), synth.Chunk{Text: "see [doc1_1]"}))
	require.NoError(t, sink.Emit(context.Background(), synth.Chunk{Text: "again [doc1_1] and new [doc2_1]"}))

	// First chunk emits one citation; second chunk must only emit the fresh one.
	require.Len(t, rec.citations, 2)
	assert.Len(t, rec.citations[0], 1)
	assert.Len(t, rec.citations[1], 1)
	assert.Equal(t, "doc2", rec.citations[1][0].DocumentID)
}

func TestCitationSink_EndsStreamOnDoneChunk(t *testing.T) {
	run := state.NewAgentRun(context.Background(), "u", "w", "c", "q", "")
	rec := &recordingSink{}
	sink := NewCitationSink(rec, run)

	require.NoError(t, sink.Emit(context.Background(), synth.Chunk{Text: "final.", Done: true}))
	assert.True(t, rec.ended)
}
