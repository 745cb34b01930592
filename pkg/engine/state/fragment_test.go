package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragmentStore_AddRejectsDuplicateDocument(t *testing.T) {
	store := NewFragmentStore()

	ok := store.Add(0, &Fragment{ID: "f1", Source: FragmentSource{DocumentID: "doc-1"}})
	require.True(t, ok)

	ok = store.Add(1, &Fragment{ID: "f2", Source: FragmentSource{DocumentID: "doc-1"}})
	assert.False(t, ok, "a document already seen must not be added twice")
	assert.Len(t, store.All(), 1)
}

func TestFragmentStore_MarkSeenBlocksFutureAdd(t *testing.T) {
	store := NewFragmentStore()
	store.MarkSeen("doc-9")

	assert.True(t, store.Seen("doc-9"))
	ok := store.Add(0, &Fragment{ID: "f1", Source: FragmentSource{DocumentID: "doc-9"}})
	assert.False(t, ok)
}

func TestFragmentStore_ForTurnIsolatesFragmentsByTurn(t *testing.T) {
	store := NewFragmentStore()
	store.Add(0, &Fragment{ID: "f1", Source: FragmentSource{DocumentID: "doc-1"}})
	store.Add(1, &Fragment{ID: "f2", Source: FragmentSource{DocumentID: "doc-2"}})

	assert.Len(t, store.ForTurn(0), 1)
	assert.Len(t, store.ForTurn(1), 1)
	assert.Len(t, store.ForTurn(2), 0)
}

func TestFragmentStore_RecentRespectsTokenBudget(t *testing.T) {
	store := NewFragmentStore()
	for i := 0; i < 5; i++ {
		store.Add(i, &Fragment{
			ID:      string(rune('a' + i)),
			Content: "some reasonably long piece of evidence content to burn tokens",
			Source:  FragmentSource{DocumentID: string(rune('A' + i))},
		})
	}

	recent := store.Recent(1)
	require.NotEmpty(t, recent)
	assert.LessOrEqual(t, len(recent), 5)

	// oldest-first ordering: whatever survives the budget keeps turn order.
	for i := 1; i < len(recent); i++ {
		assert.LessOrEqual(t, recent[i-1].Turn, recent[i].Turn)
	}
}

func TestFragmentStore_AddImageTracksByTurn(t *testing.T) {
	store := NewFragmentStore()
	store.AddImage(2, &FragmentImageReference{FileName: "3_doc1_p2"})

	assert.Len(t, store.AllImages(), 1)
	assert.Equal(t, 2, store.AllImages()[0].AddedAtTurn)
}
