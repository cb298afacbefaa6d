package rollout

import (
	"fmt"
	"strings"
)

// TurnStatus is the replay-time status of a reconstructed turn.
type TurnStatus string

const (
	TurnInProgress  TurnStatus = "in_progress"
	TurnCompleted   TurnStatus = "completed"
	TurnInterrupted TurnStatus = "interrupted"
)

// ThreadItemType discriminates the variants of a ThreadItem.
type ThreadItemType string

const (
	ThreadUserMessage      ThreadItemType = "user_message"
	ThreadAgentMessage     ThreadItemType = "agent_message"
	ThreadReasoning        ThreadItemType = "reasoning"
	ThreadCommandExecution ThreadItemType = "command_execution"
	ThreadFileChange       ThreadItemType = "file_change"
	ThreadMcpToolCall      ThreadItemType = "mcp_tool_call"
	ThreadWebSearch        ThreadItemType = "web_search"
	ThreadTodoList         ThreadItemType = "todo_list"
	ThreadError            ThreadItemType = "error"
)

// ThreadItem is one reconstructed element of a turn.
type ThreadItem struct {
	ID   string         `json:"id"`
	Type ThreadItemType `json:"type"`

	Text    string   `json:"text,omitempty"`
	Summary []string `json:"summary,omitempty"`

	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
	Success   *bool  `json:"success,omitempty"`
}

// Turn is one user input plus everything the agent did in response.
type Turn struct {
	ID     string       `json:"id"`
	Items  []ThreadItem `json:"items"`
	Status TurnStatus   `json:"status"`
}

// BuildTurns replays a journaled event sequence into turns. A user_message
// starts a new turn; agent messages, reasoning, and tool calls accumulate
// into the current one; turn_aborted marks it interrupted; events the
// builder does not recognize are ignored. Ids are deterministic (turn-N,
// item-N in encounter order) so a replayed conversation compares
// structurally to a live one.
func BuildTurns(events []Event) []Turn {
	b := builder{}
	for _, ev := range events {
		b.apply(ev)
	}
	return b.finish()
}

type builder struct {
	turns    []Turn
	current  *Turn
	nextItem int
	// callIndex maps an open call_id to its item position in the current
	// turn so the matching output attaches to the same item.
	callIndex map[string]int
}

func (b *builder) apply(ev Event) {
	switch ev.Type {
	case EventUserMessage:
		b.startTurn()
		b.addItem(ThreadItem{Type: ThreadUserMessage, Text: ev.Content})
	case EventAgentMessage:
		if b.current == nil {
			return
		}
		b.addItem(ThreadItem{Type: ThreadAgentMessage, Text: ev.Content})
	case EventAgentReasoning:
		if b.current == nil {
			return
		}
		summary := ev.Summary
		if len(summary) == 0 && ev.Content != "" {
			summary = []string{ev.Content}
		}
		b.addItem(ThreadItem{Type: ThreadReasoning, Summary: summary})
	case EventFunctionCall:
		if b.current == nil {
			return
		}
		idx := b.addItem(ThreadItem{
			Type:      classifyToolName(ev.Name),
			CallID:    ev.CallID,
			Name:      ev.Name,
			Arguments: ev.Arguments,
		})
		if ev.CallID != "" {
			b.callIndex[ev.CallID] = idx
		}
	case EventFunctionCallOutput:
		if b.current == nil {
			return
		}
		idx, ok := b.callIndex[ev.CallID]
		if !ok {
			// Orphan output: no matching call in this turn. Ignore.
			return
		}
		b.current.Items[idx].Output = ev.Output
		b.current.Items[idx].Success = ev.Success
		delete(b.callIndex, ev.CallID)
	case EventTaskComplete:
		if b.current != nil {
			b.current.Status = TurnCompleted
		}
	case EventTurnAborted:
		if b.current != nil {
			b.current.Status = TurnInterrupted
		}
	case EventError:
		if b.current == nil {
			return
		}
		b.addItem(ThreadItem{Type: ThreadError, Text: ev.Content})
	default:
		// task_started, token_count, session_meta, unknown: not part of the
		// reconstructed thread.
	}
}

func (b *builder) startTurn() {
	b.flush()
	b.current = &Turn{
		ID:     fmt.Sprintf("turn-%d", len(b.turns)+1),
		Status: TurnInProgress,
	}
	b.callIndex = map[string]int{}
}

func (b *builder) addItem(item ThreadItem) int {
	b.nextItem++
	item.ID = fmt.Sprintf("item-%d", b.nextItem)
	b.current.Items = append(b.current.Items, item)
	return len(b.current.Items) - 1
}

func (b *builder) flush() {
	if b.current != nil {
		b.turns = append(b.turns, *b.current)
		b.current = nil
	}
}

func (b *builder) finish() []Turn {
	b.flush()
	return b.turns
}

// Serialize converts reconstructed turns back into the event sequence that
// would rebuild them. BuildTurns(Serialize(BuildTurns(evs))) equals
// BuildTurns(evs) for any input, which resume relies on.
func Serialize(turns []Turn) []Event {
	var events []Event
	for _, turn := range turns {
		for _, item := range turn.Items {
			switch item.Type {
			case ThreadUserMessage:
				events = append(events, Event{Type: EventUserMessage, Content: item.Text})
			case ThreadAgentMessage:
				events = append(events, Event{Type: EventAgentMessage, Content: item.Text})
			case ThreadReasoning:
				events = append(events, Event{Type: EventAgentReasoning, Summary: item.Summary})
			case ThreadError:
				events = append(events, Event{Type: EventError, Content: item.Text})
			case ThreadCommandExecution, ThreadFileChange, ThreadMcpToolCall, ThreadWebSearch, ThreadTodoList:
				events = append(events, Event{
					Type:      EventFunctionCall,
					CallID:    item.CallID,
					Name:      item.Name,
					Arguments: item.Arguments,
				})
				if item.Output != "" || item.Success != nil {
					events = append(events, Event{
						Type:    EventFunctionCallOutput,
						CallID:  item.CallID,
						Output:  item.Output,
						Success: item.Success,
					})
				}
			}
		}
		switch turn.Status {
		case TurnCompleted:
			events = append(events, Event{Type: EventTaskComplete})
		case TurnInterrupted:
			events = append(events, Event{Type: EventTurnAborted, Content: "interrupted"})
		}
	}
	return events
}

// classifyToolName maps a function-call tool name to the thread item kind
// shown in the UI.
func classifyToolName(name string) ThreadItemType {
	switch {
	case strings.HasPrefix(name, "mcp__"):
		return ThreadMcpToolCall
	case name == "apply_patch" || name == "write_file":
		return ThreadFileChange
	case name == "update_plan":
		return ThreadTodoList
	case name == "web_search":
		return ThreadWebSearch
	default:
		return ThreadCommandExecution
	}
}
