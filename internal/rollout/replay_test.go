package rollout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumhq/stratum-agent/internal/models"
)

func TestBuildTurns_TwoTurns(t *testing.T) {
	events := []Event{
		{Type: EventUserMessage, Content: "First"},
		{Type: EventAgentMessage, Content: "Hi"},
		{Type: EventAgentReasoning, Summary: []string{"thinking"}},
		{Type: EventUserMessage, Content: "Second"},
		{Type: EventAgentMessage, Content: "Reply two"},
	}

	turns := BuildTurns(events)
	require.Len(t, turns, 2)

	first := turns[0]
	assert.Equal(t, "turn-1", first.ID)
	require.Len(t, first.Items, 3)
	assert.Equal(t, "item-1", first.Items[0].ID)
	assert.Equal(t, ThreadUserMessage, first.Items[0].Type)
	assert.Equal(t, "First", first.Items[0].Text)
	assert.Equal(t, "item-2", first.Items[1].ID)
	assert.Equal(t, ThreadAgentMessage, first.Items[1].Type)
	assert.Equal(t, "Hi", first.Items[1].Text)
	assert.Equal(t, "item-3", first.Items[2].ID)
	assert.Equal(t, ThreadReasoning, first.Items[2].Type)
	assert.Equal(t, []string{"thinking"}, first.Items[2].Summary)

	second := turns[1]
	assert.Equal(t, "turn-2", second.ID)
	require.Len(t, second.Items, 2)
	assert.Equal(t, "item-4", second.Items[0].ID)
	assert.Equal(t, "Second", second.Items[0].Text)
	assert.Equal(t, "item-5", second.Items[1].ID)
	assert.Equal(t, "Reply two", second.Items[1].Text)
}

func TestBuildTurns_ToolCallAttachesOutput(t *testing.T) {
	ok := true
	events := []Event{
		{Type: EventUserMessage, Content: "run it"},
		{Type: EventTaskStarted, TurnID: "t1"},
		{Type: EventFunctionCall, CallID: "c1", Name: "shell", Arguments: `{"command":["echo","ok"]}`},
		{Type: EventFunctionCallOutput, CallID: "c1", Output: "ok\n", Success: &ok},
		{Type: EventAgentMessage, Content: "done"},
		{Type: EventTaskComplete},
	}

	turns := BuildTurns(events)
	require.Len(t, turns, 1)
	turn := turns[0]
	assert.Equal(t, TurnCompleted, turn.Status)
	require.Len(t, turn.Items, 3)

	call := turn.Items[1]
	assert.Equal(t, ThreadCommandExecution, call.Type)
	assert.Equal(t, "c1", call.CallID)
	assert.Equal(t, "ok\n", call.Output)
	require.NotNil(t, call.Success)
	assert.True(t, *call.Success)
}

func TestBuildTurns_AbortMarksInterrupted(t *testing.T) {
	events := []Event{
		{Type: EventUserMessage, Content: "go"},
		{Type: EventAgentMessage, Content: "working"},
		{Type: EventTurnAborted, Content: "interrupted"},
		{Type: EventUserMessage, Content: "again"},
		{Type: EventTaskComplete},
	}

	turns := BuildTurns(events)
	require.Len(t, turns, 2)
	assert.Equal(t, TurnInterrupted, turns[0].Status)
	assert.Equal(t, TurnCompleted, turns[1].Status)
}

func TestBuildTurns_IgnoresOrphanOutputAndPreamble(t *testing.T) {
	events := []Event{
		// Events before the first user message have no turn to land in.
		{Type: EventAgentMessage, Content: "stray"},
		{Type: EventFunctionCallOutput, CallID: "ghost", Output: "x"},
		{Type: EventUserMessage, Content: "hello"},
		{Type: EventFunctionCallOutput, CallID: "ghost", Output: "x"},
		{Type: EventTokenCount, TotalTokens: 42},
		{Type: EventAgentMessage, Content: "hi"},
	}

	turns := BuildTurns(events)
	require.Len(t, turns, 1)
	require.Len(t, turns[0].Items, 2)
	assert.Equal(t, ThreadUserMessage, turns[0].Items[0].Type)
	assert.Equal(t, ThreadAgentMessage, turns[0].Items[1].Type)
}

func TestBuildTurns_ReplayIsIdempotent(t *testing.T) {
	failed := false
	events := []Event{
		{Type: EventUserMessage, Content: "First"},
		{Type: EventTaskStarted},
		{Type: EventAgentReasoning, Summary: []string{"plan", "act"}},
		{Type: EventFunctionCall, CallID: "c1", Name: "apply_patch", Arguments: "patch"},
		{Type: EventFunctionCallOutput, CallID: "c1", Output: "conflict", Success: &failed},
		{Type: EventAgentMessage, Content: "could not apply"},
		{Type: EventTaskComplete},
		{Type: EventUserMessage, Content: "Second"},
		{Type: EventFunctionCall, CallID: "c2", Name: "mcp__docs__search", Arguments: `{"q":"x"}`},
		{Type: EventTurnAborted, Content: "interrupted"},
	}

	once := BuildTurns(events)
	twice := BuildTurns(Serialize(once))
	assert.Equal(t, once, twice)
}

func TestClassifyToolName(t *testing.T) {
	cases := map[string]ThreadItemType{
		"shell":            ThreadCommandExecution,
		"exec_command":     ThreadCommandExecution,
		"read_file":        ThreadCommandExecution,
		"apply_patch":      ThreadFileChange,
		"write_file":       ThreadFileChange,
		"update_plan":      ThreadTodoList,
		"web_search":       ThreadWebSearch,
		"mcp__srv__lookup": ThreadMcpToolCall,
	}
	for name, want := range cases {
		assert.Equal(t, want, classifyToolName(name), name)
	}
}

func TestFromConversationItem_TurnMarkers(t *testing.T) {
	started := FromConversationItem(models.ConversationItem{
		Type: models.ItemTypeTurnStarted, TurnID: "t1",
	})
	require.Len(t, started, 1)
	assert.Equal(t, EventTaskStarted, started[0].Type)

	completed := FromConversationItem(models.ConversationItem{
		Type: models.ItemTypeTurnComplete, TurnID: "t1",
	})
	require.Len(t, completed, 1)
	assert.Equal(t, EventTaskComplete, completed[0].Type)

	aborted := FromConversationItem(models.ConversationItem{
		Type: models.ItemTypeTurnComplete, TurnID: "t1", Content: "interrupted",
	})
	require.Len(t, aborted, 1)
	assert.Equal(t, EventTurnAborted, aborted[0].Type)
}

func TestFromConversationItem_FunctionCallAndOutput(t *testing.T) {
	call := FromConversationItem(models.ConversationItem{
		Type:      models.ItemTypeFunctionCall,
		CallID:    "c1",
		Name:      "shell",
		Arguments: `{"command":["ls"]}`,
	})
	require.Len(t, call, 1)
	assert.Equal(t, EventFunctionCall, call[0].Type)
	assert.Equal(t, "c1", call[0].CallID)

	ok := true
	out := FromConversationItem(models.ConversationItem{
		Type:   models.ItemTypeFunctionCallOutput,
		CallID: "c1",
		Output: &models.FunctionCallOutputPayload{Content: "ok", Success: &ok},
	})
	require.Len(t, out, 1)
	assert.Equal(t, EventFunctionCallOutput, out[0].Type)
	assert.Equal(t, "ok", out[0].Output)
	require.NotNil(t, out[0].Success)
}

func TestFromConversationItem_AssistantToolCalls(t *testing.T) {
	events := FromConversationItem(models.ConversationItem{
		Type:    models.ItemTypeAssistantMessage,
		Content: "let me check",
		ToolCalls: []models.ToolCall{
			{ID: "c9", Name: "grep_files", Arguments: map[string]interface{}{"pattern": "x"}},
		},
	})
	require.Len(t, events, 2)
	assert.Equal(t, EventAgentMessage, events[0].Type)
	assert.Equal(t, EventFunctionCall, events[1].Type)
	assert.Equal(t, "c9", events[1].CallID)
	assert.Contains(t, events[1].Arguments, `"pattern":"x"`)
}

func TestFromConversationItem_ModelSwitchIgnored(t *testing.T) {
	events := FromConversationItem(models.ConversationItem{Type: models.ItemTypeModelSwitch})
	assert.Empty(t, events)
}

func TestFromConversationItem_LifecycleMarkers(t *testing.T) {
	begin := FromConversationItem(models.ConversationItem{
		Type:      models.ItemTypeExecCommandBegin,
		TurnID:    "t1",
		CallID:    "c1",
		Name:      "shell",
		Arguments: `{"command": "echo ok"}`,
	})
	require.Len(t, begin, 1)
	assert.Equal(t, EventExecCommandBegin, begin[0].Type)
	assert.Equal(t, "c1", begin[0].CallID)

	ok := true
	zero := 0
	end := FromConversationItem(models.ConversationItem{
		Type:     models.ItemTypeExecCommandEnd,
		TurnID:   "t1",
		CallID:   "c1",
		Name:     "shell",
		ExitCode: &zero,
		Output:   &models.FunctionCallOutputPayload{Content: "ok\n", Success: &ok},
	})
	require.Len(t, end, 1)
	assert.Equal(t, EventExecCommandEnd, end[0].Type)
	assert.Equal(t, "ok\n", end[0].Output)
	require.NotNil(t, end[0].ExitCode)
	assert.Equal(t, 0, *end[0].ExitCode)
}

func TestFromConversationItem_PatchApplyEnd(t *testing.T) {
	ok := true
	events := FromConversationItem(models.ConversationItem{
		Type:   models.ItemTypePatchApplyEnd,
		CallID: "c3",
		Name:   "apply_patch",
		Output: &models.FunctionCallOutputPayload{Content: "Success. Updated story.txt", Success: &ok},
	})
	require.Len(t, events, 1)
	assert.Equal(t, EventPatchApplyEnd, events[0].Type)
	require.NotNil(t, events[0].Success)
	assert.True(t, *events[0].Success)
}

func TestFromConversationItem_UndoCompleted(t *testing.T) {
	ok := true
	events := FromConversationItem(models.ConversationItem{
		Type:    models.ItemTypeUndoCompleted,
		Content: "Restored turn-3",
		Output:  &models.FunctionCallOutputPayload{Content: "Restored turn-3", Success: &ok},
	})
	require.Len(t, events, 1)
	assert.Equal(t, EventUndoCompleted, events[0].Type)
	assert.Equal(t, "Restored turn-3", events[0].Content)
}

func TestBuildTurns_IgnoresLifecycleEvents(t *testing.T) {
	zero := 0
	events := []Event{
		{Type: EventUserMessage, Content: "run it"},
		{Type: EventExecCommandBegin, CallID: "c1", Name: "shell"},
		{Type: EventFunctionCall, CallID: "c1", Name: "shell", Arguments: `{"command":["echo","ok"]}`},
		{Type: EventFunctionCallOutput, CallID: "c1", Output: "ok\n"},
		{Type: EventExecCommandEnd, CallID: "c1", Name: "shell", ExitCode: &zero},
		{Type: EventTaskComplete},
	}

	turns := BuildTurns(events)
	require.Len(t, turns, 1)
	// Only the user message and the function call become thread items; the
	// lifecycle markers carry no additional thread state.
	require.Len(t, turns[0].Items, 2)
	assert.Equal(t, ThreadCommandExecution, turns[0].Items[1].Type)
	assert.Equal(t, "ok\n", turns[0].Items[1].Output)
}
