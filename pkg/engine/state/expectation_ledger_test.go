package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectationLedger_ExtractWrappedBlock(t *testing.T) {
	l := NewExpectationLedger()

	text := `Before I search, here's what I expect:
<expected_results>
{"toolExpectations": [{"toolName": "searchGlobal", "goal": "find Q3 revenue", "successCriteria": ["at least one hit"]}]}
</expected_results>
Proceeding now.`

	out := l.Extract(text)
	require.Len(t, out, 1)
	assert.Equal(t, "searchGlobal", out[0].ToolName)
	assert.Equal(t, "find Q3 revenue", out[0].Goal)
	assert.False(t, out[0].Assigned())
}

func TestExpectationLedger_ExtractBareArrayBlock(t *testing.T) {
	l := NewExpectationLedger()

	text := `<expected_results>[{"toolName": "searchGlobal", "goal": "find data"}]</expected_results>`
	out := l.Extract(text)
	require.Len(t, out, 1)
	assert.Equal(t, "searchGlobal", out[0].ToolName)
}

func TestExpectationLedger_DropsEntriesMissingRequiredFields(t *testing.T) {
	l := NewExpectationLedger()

	text := `<expected_results>[{"toolName": "searchGlobal"}, {"goal": "no tool name"}]</expected_results>`
	out := l.Extract(text)
	assert.Empty(t, out)
}

func TestExpectationLedger_AssignMatchesFIFOCaseInsensitive(t *testing.T) {
	l := NewExpectationLedger()
	l.Extract(`<expected_results>[{"toolName": "searchGlobal", "goal": "first"}, {"toolName": "SearchGlobal", "goal": "second"}]</expected_results>`)

	first := l.Assign("searchglobal")
	require.NotNil(t, first)
	assert.Equal(t, "first", first.Goal)
	assert.True(t, first.Assigned())

	second := l.Assign("SEARCHGLOBAL")
	require.NotNil(t, second)
	assert.Equal(t, "second", second.Goal)

	assert.Nil(t, l.Assign("searchglobal"))
}

func TestExpectationLedger_UnassignedSurfacesUnmatchedEntries(t *testing.T) {
	l := NewExpectationLedger()
	l.Extract(`<expected_results>[{"toolName": "searchGlobal", "goal": "find revenue"}]</expected_results>`)

	unmet := l.Unassigned()
	require.Len(t, unmet, 1)
	assert.Contains(t, unmet[0], "searchGlobal")
	assert.Contains(t, unmet[0], "find revenue")

	l.Assign("searchGlobal")
	assert.Empty(t, l.Unassigned())
}
