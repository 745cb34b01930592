package synth

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/agentrun/turnengine/pkg/engine/state"
	"github.com/agentrun/turnengine/pkg/model"
)

type fakeLLM struct {
	chunks []string
	failAt int // -1 means never fail

	lastReq *model.Request
}

func (f *fakeLLM) Name() string            { return "fake" }
func (f *fakeLLM) Provider() model.Provider { return model.ProviderAnthropic }
func (f *fakeLLM) Close() error             { return nil }

func (f *fakeLLM) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	f.lastReq = req
	return func(yield func(*model.Response, error) bool) {
		for i, c := range f.chunks {
			if f.failAt == i {
				yield(nil, errors.New("upstream disconnected"))
				return
			}
			resp := &model.Response{
				Content:      &model.Content{Parts: []a2a.Part{a2a.TextPart{Text: c}}, Role: a2a.MessageRoleAgent},
				Partial:      i < len(f.chunks)-1,
				TurnComplete: i == len(f.chunks)-1,
			}
			if !yield(resp, nil) {
				return
			}
		}
	}
}

type collectingSink struct {
	chunks []Chunk
}

func (s *collectingSink) Emit(ctx context.Context, chunk Chunk) error {
	s.chunks = append(s.chunks, chunk)
	return nil
}

func newRun() *state.AgentRun {
	return state.NewAgentRun(context.Background(), "u", "w", "c", "q3 revenue?", "")
}

func TestSynthesizer_Run_StreamsAndCompletes(t *testing.T) {
	run := newRun()
	llm := &fakeLLM{failAt: -1, chunks: []string{"Revenue grew ", "12% [doc1_1]."}}
	sink := &collectingSink{}

	synth := NewSynthesizer(llm)
	err := synth.Run(context.Background(), run, sink, 3)
	require.NoError(t, err)

	assert.True(t, run.Final.Completed)
	assert.Equal(t, "Revenue grew 12% [doc1_1].", run.Final.StreamedText)
	assert.True(t, run.Lock.LockedByFinalSynthesis)
	assert.Equal(t, 3, run.Lock.LockedAtTurn)
	require.Len(t, sink.chunks, 2)
	assert.True(t, sink.chunks[1].Done)
}

// TestSynthesizer_Run_RollsBackLockOnFailure is the resolved-open-question
// behavior: a failed synthesis attempt must not leave the run permanently
// locked out of review, or stuck thinking synthesis was requested.
func TestSynthesizer_Run_RollsBackLockOnFailure(t *testing.T) {
	run := newRun()
	llm := &fakeLLM{failAt: 0, chunks: []string{"won't reach this"}}
	sink := &collectingSink{}

	synth := NewSynthesizer(llm)
	err := synth.Run(context.Background(), run, sink, 1)
	require.Error(t, err)

	assert.False(t, run.Lock.LockedByFinalSynthesis)
	assert.False(t, run.Final.Requested)
	assert.False(t, run.Final.Completed)
}

func TestSynthesizer_Run_PromptCarriesQuestionAndEvidence(t *testing.T) {
	run := newRun()
	run.Fragments.Add(0, &state.Fragment{
		Content: "Q3 revenue was $4.2M.",
		Source:  state.FragmentSource{DocumentID: "doc1", Title: "Q3 Earnings"},
	})
	llm := &fakeLLM{failAt: -1, chunks: []string{"done"}}
	sink := &collectingSink{}

	synth := NewSynthesizer(llm)
	require.NoError(t, synth.Run(context.Background(), run, sink, 1))

	require.NotNil(t, llm.lastReq)
	assert.Contains(t, llm.lastReq.SystemInstruction, "q3 revenue?")
	assert.Contains(t, llm.lastReq.SystemInstruction, "Q3 revenue was $4.2M.")
	assert.Contains(t, llm.lastReq.SystemInstruction, "[doc1_1]")
}

func TestSelectImages_UserAttachmentsFirstThenMostRecent(t *testing.T) {
	images := []*state.FragmentImageReference{
		{FileName: "old-tool-image", AddedAtTurn: 1, IsUserAttachment: false},
		{FileName: "user-attachment", AddedAtTurn: 0, IsUserAttachment: true},
		{FileName: "new-tool-image", AddedAtTurn: 2, IsUserAttachment: false},
	}

	out := selectImages(images)
	require.Len(t, out, 3)
	assert.Equal(t, "user-attachment", out[0].FileName)
	assert.Equal(t, "new-tool-image", out[1].FileName)
	assert.Equal(t, "old-tool-image", out[2].FileName)
}

func TestSelectImages_CapsAtMaxImages(t *testing.T) {
	var images []*state.FragmentImageReference
	for i := 0; i < MaxImages+5; i++ {
		images = append(images, &state.FragmentImageReference{FileName: "img", AddedAtTurn: i})
	}
	assert.Len(t, selectImages(images), MaxImages)
}
