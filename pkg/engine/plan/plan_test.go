package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentrun/turnengine/pkg/engine/state"
)

func newPlan() *state.Plan {
	return &state.Plan{
		Goal: "summarize Q3",
		SubTasks: []*state.SubTask{
			{ID: "t1", Description: "no tools needed", Status: state.SubTaskPending},
			{ID: "t2", Description: "search for data", Status: state.SubTaskPending, ToolsRequired: map[string]struct{}{"searchGlobal": {}}},
			{ID: "t3", Description: "write summary", Status: state.SubTaskPending, ToolsRequired: map[string]struct{}{"synthesize_final_answer": {}}},
		},
	}
}

func TestInitialize_AutoCompletesToollessSubTasksAndActivatesNext(t *testing.T) {
	p := newPlan()
	Initialize(p)

	assert.Equal(t, state.SubTaskCompleted, p.SubTasks[0].Status)
	assert.Equal(t, state.SubTaskInProgress, p.SubTasks[1].Status)
	assert.Equal(t, state.SubTaskPending, p.SubTasks[2].Status)
}

func TestAdvanceAfterTool_CompletesActiveOnMatchingToolSuccess(t *testing.T) {
	p := newPlan()
	Initialize(p)

	AdvanceAfterTool(p, "searchGlobal", true, "searchGlobal completed")

	assert.Equal(t, state.SubTaskCompleted, p.SubTasks[1].Status)
	assert.Equal(t, state.SubTaskInProgress, p.SubTasks[2].Status)
}

func TestAdvanceAfterTool_IgnoresNonMatchingTool(t *testing.T) {
	p := newPlan()
	Initialize(p)

	AdvanceAfterTool(p, "getSlackRelatedMessages", true, "irrelevant")

	assert.Equal(t, state.SubTaskInProgress, p.SubTasks[1].Status, "a tool outside the active sub-task's set must not advance it")
}

func TestAdvanceAfterTool_FailureBlocksActiveSubTask(t *testing.T) {
	p := newPlan()
	Initialize(p)

	AdvanceAfterTool(p, "searchGlobal", false, "backend unavailable")

	assert.Equal(t, state.SubTaskBlocked, p.SubTasks[1].Status)
	assert.Equal(t, "backend unavailable", p.SubTasks[1].Error)
}

func TestAdvanceAfterTool_CompletedSubTaskIsNeverRevisited(t *testing.T) {
	p := newPlan()
	Initialize(p)
	AdvanceAfterTool(p, "searchGlobal", true, "done")

	// t2 is now completed; a later failure attributed to searchGlobal must
	// not reopen it since t3 (needing synthesize_final_answer) is active.
	AdvanceAfterTool(p, "searchGlobal", false, "late failure")
	assert.Equal(t, state.SubTaskCompleted, p.SubTasks[1].Status)
}

func TestActiveSubTaskID_PrefersInProgressThenPendingThenBlocked(t *testing.T) {
	p := &state.Plan{SubTasks: []*state.SubTask{
		{ID: "a", Status: state.SubTaskBlocked},
		{ID: "b", Status: state.SubTaskPending},
	}}
	assert.Equal(t, "b", ActiveSubTaskID(p))

	p.SubTasks = append(p.SubTasks, &state.SubTask{ID: "c", Status: state.SubTaskInProgress})
	assert.Equal(t, "c", ActiveSubTaskID(p))
}
