// Package models contains shared types used across the workflow, activities,
// and llm packages.
package models

// ConversationItemType identifies the variant of a ConversationItem.
type ConversationItemType string

const (
	ItemTypeTurnStarted        ConversationItemType = "turn_started"
	ItemTypeTurnComplete       ConversationItemType = "turn_complete"
	ItemTypeUserMessage        ConversationItemType = "user_message"
	ItemTypeAssistantMessage   ConversationItemType = "assistant_message"
	ItemTypeFunctionCall       ConversationItemType = "function_call"
	ItemTypeFunctionCallOutput ConversationItemType = "function_call_output"
	ItemTypeToolResult         ConversationItemType = "tool_result"
	ItemTypeModelSwitch        ConversationItemType = "model_switch"

	// Per-kind tool lifecycle markers. Emitted around tool dispatch for the
	// UI/journal; never sent to the model (provider translations skip them).
	ItemTypeExecCommandBegin ConversationItemType = "exec_command_begin"
	ItemTypeExecCommandEnd   ConversationItemType = "exec_command_end"
	ItemTypePatchApplyBegin  ConversationItemType = "patch_apply_begin"
	ItemTypePatchApplyEnd    ConversationItemType = "patch_apply_end"
	ItemTypeMcpToolCallBegin ConversationItemType = "mcp_tool_call_begin"
	ItemTypeMcpToolCallEnd   ConversationItemType = "mcp_tool_call_end"
	ItemTypeWebSearchBegin   ConversationItemType = "web_search_begin"
	ItemTypeWebSearchEnd     ConversationItemType = "web_search_end"

	// ItemTypeUndoCompleted reports the outcome of an undo request.
	ItemTypeUndoCompleted ConversationItemType = "undo_completed"
)

// FunctionCallOutputPayload is the result of dispatching a FunctionCall item.
// Content is always the model-facing text; Success distinguishes a tool that
// ran and failed (still reported to the model, never surfaced as a Go error)
// from one that completed normally.
type FunctionCallOutputPayload struct {
	Content string `json:"content"`
	Success *bool  `json:"success,omitempty"`
}

// ConversationItem is a single element of turn history. Only the fields
// relevant to Type are populated; the rest are zero.
//
// This is the Go analog of a ResponseItem tagged union: messages, function
// calls and their outputs, turn markers and tool lifecycle markers all flow
// through this one struct, discriminated by Type.
type ConversationItem struct {
	Type ConversationItemType `json:"type"`

	// Seq is the item's position in conversation history, assigned by the
	// history store on append. Pollers use it to skip already-seen items.
	Seq int `json:"seq"`

	// TurnID associates the item with the turn that produced it.
	TurnID string `json:"turn_id,omitempty"`

	// Content holds message text for UserMessage/AssistantMessage items.
	Content string `json:"content,omitempty"`

	// CallID, Name, Arguments populate FunctionCall items. Arguments is the
	// raw JSON-encoded argument string, matching custom-tool-call semantics
	// where arguments may not be well-formed JSON.
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// ToolCalls populates an AssistantMessage item that requested tool calls
	// in providers (OpenAI Chat Completions) where tool calls are attached to
	// the assistant message rather than emitted as sibling items.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Output populates FunctionCallOutput items and the per-kind End
	// markers. CallID above carries the matching call_id (invariant:
	// exactly one output per call_id).
	Output *FunctionCallOutputPayload `json:"output,omitempty"`

	// ExitCode populates ExecCommandEnd markers when the runtime reported
	// a process exit status.
	ExitCode *int `json:"exit_code,omitempty"`

	// ToolCallID/ToolOutput/ToolError populate ToolResult items used by the
	// OpenAI Chat Completions message-array translation.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolOutput string `json:"tool_output,omitempty"`
	ToolError  string `json:"tool_error,omitempty"`
}

// ToolCall represents a single tool invocation requested by the model.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// FinishReason indicates why the model stopped generating for this call.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content_filter"
)

// TokenUsage tracks token consumption for a single model call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// WebSearchMode selects whether and how a provider's native web-search tool
// is attached to a request. Only meaningful for OpenAI-compatible backends.
type WebSearchMode string

const (
	WebSearchModeOff  WebSearchMode = ""
	WebSearchModeOn   WebSearchMode = "on"
	WebSearchModeAuto WebSearchMode = "auto"
)

// ApprovalMode is the session's approval policy (Untrusted/OnFailure/
// OnRequest/Never). String values align with execpolicy's heuristic-fallback
// mode names so the policy can be passed straight through via string(mode).
type ApprovalMode string

const (
	ApprovalUnlessTrusted ApprovalMode = "unless-trusted"
	ApprovalOnFailure     ApprovalMode = "on-failure"
	ApprovalOnRequest     ApprovalMode = "on-request"
	ApprovalNever         ApprovalMode = "never"
)

// ShellToolKind selects which shell tool variant (if any) is exposed to the
// model for a session.
type ShellToolKind int

const (
	ShellToolDefault ShellToolKind = iota
	ShellToolShellCommand
	ShellToolDisabled
)

// ResolvedShellType returns which shell tool variant this configuration
// exposes, defaulting to ShellToolDefault when EnableShell is set.
func (t ToolsConfig) ResolvedShellType() ShellToolKind {
	if !t.EnableShell {
		return ShellToolDisabled
	}
	if t.ShellCommandVariant {
		return ShellToolShellCommand
	}
	return ShellToolDefault
}
