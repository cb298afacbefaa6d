package rollout

import (
	"encoding/json"

	"github.com/stratumhq/stratum-agent/internal/models"
)

// interruptedMarker is the Content the workflow puts on a turn_complete
// history item when the turn was interrupted rather than finished.
const interruptedMarker = "interrupted"

// FromConversationItem translates a workflow history item into the journal
// event(s) it corresponds to. Items with no journal representation (model
// switches, empty assistant placeholders) return an empty slice.
func FromConversationItem(item models.ConversationItem) []Event {
	switch item.Type {
	case models.ItemTypeTurnStarted:
		return []Event{{Type: EventTaskStarted, TurnID: item.TurnID}}

	case models.ItemTypeTurnComplete:
		if item.Content == interruptedMarker {
			return []Event{{Type: EventTurnAborted, TurnID: item.TurnID, Content: interruptedMarker}}
		}
		return []Event{{Type: EventTaskComplete, TurnID: item.TurnID}}

	case models.ItemTypeUserMessage:
		return []Event{{Type: EventUserMessage, TurnID: item.TurnID, Content: item.Content}}

	case models.ItemTypeAssistantMessage:
		var events []Event
		if item.Content != "" {
			events = append(events, Event{Type: EventAgentMessage, TurnID: item.TurnID, Content: item.Content})
		}
		// Chat Completions attaches tool calls to the assistant message
		// instead of emitting sibling function_call items.
		for _, tc := range item.ToolCalls {
			args := ""
			if tc.Arguments != nil {
				if data, err := json.Marshal(tc.Arguments); err == nil {
					args = string(data)
				}
			}
			events = append(events, Event{
				Type:      EventFunctionCall,
				TurnID:    item.TurnID,
				CallID:    tc.ID,
				Name:      tc.Name,
				Arguments: args,
			})
		}
		return events

	case models.ItemTypeFunctionCall:
		return []Event{{
			Type:      EventFunctionCall,
			TurnID:    item.TurnID,
			CallID:    item.CallID,
			Name:      item.Name,
			Arguments: item.Arguments,
		}}

	case models.ItemTypeFunctionCallOutput:
		ev := Event{Type: EventFunctionCallOutput, TurnID: item.TurnID, CallID: item.CallID}
		if item.Output != nil {
			ev.Output = item.Output.Content
			ev.Success = item.Output.Success
		}
		return []Event{ev}

	case models.ItemTypeExecCommandBegin, models.ItemTypePatchApplyBegin,
		models.ItemTypeMcpToolCallBegin, models.ItemTypeWebSearchBegin:
		return []Event{{
			Type:      lifecycleEventType(item.Type),
			TurnID:    item.TurnID,
			CallID:    item.CallID,
			Name:      item.Name,
			Arguments: item.Arguments,
		}}

	case models.ItemTypeExecCommandEnd, models.ItemTypePatchApplyEnd,
		models.ItemTypeMcpToolCallEnd, models.ItemTypeWebSearchEnd:
		ev := Event{
			Type:     lifecycleEventType(item.Type),
			TurnID:   item.TurnID,
			CallID:   item.CallID,
			Name:     item.Name,
			ExitCode: item.ExitCode,
		}
		if item.Output != nil {
			ev.Output = item.Output.Content
			ev.Success = item.Output.Success
		}
		return []Event{ev}

	case models.ItemTypeUndoCompleted:
		ev := Event{Type: EventUndoCompleted, Content: item.Content}
		if item.Output != nil {
			ev.Success = item.Output.Success
		}
		return []Event{ev}

	case models.ItemTypeToolResult:
		ev := Event{Type: EventFunctionCallOutput, TurnID: item.TurnID, CallID: item.ToolCallID}
		if item.ToolError != "" {
			ev.Output = item.ToolError
			failed := false
			ev.Success = &failed
		} else {
			ev.Output = item.ToolOutput
		}
		return []Event{ev}

	default:
		return nil
	}
}

// lifecycleEventType maps a lifecycle marker item type to its journal event
// type; the names coincide one for one.
func lifecycleEventType(t models.ConversationItemType) EventType {
	return EventType(t)
}
