// Package workflow contains Temporal workflow definitions.
//
// state.go manages workflow state, separated from workflow logic.
//
package workflow

import (
	"fmt"

	"github.com/stratumhq/stratum-agent/internal/history"
	"github.com/stratumhq/stratum-agent/internal/models"
	"github.com/stratumhq/stratum-agent/internal/tools"
)

// Handler name constants for Temporal query and update handlers.
const (
	// QueryGetConversationItems returns conversation history.
	QueryGetConversationItems = "get_conversation_items"

	// QueryGetTurnStatus returns the current turn phase and stats.
	// Used by the interactive CLI to drive spinner/state transitions.
	QueryGetTurnStatus = "get_turn_status"

	// UpdateUserInput submits a new user message to the workflow.
	UpdateUserInput = "user_input"

	// UpdateInterrupt aborts the current turn.
	UpdateInterrupt = "interrupt"

	// UpdateShutdown ends the session.
	UpdateShutdown = "shutdown"

	// UpdateApprovalResponse submits the user's tool approval decision.
	UpdateApprovalResponse = "approval_response"

	// UpdateEscalationResponse submits the user's escalation decision (on-failure mode).
	UpdateEscalationResponse = "escalation_response"

	// UpdateUserInputQuestionResponse submits the user's answers to request_user_input questions.
	UpdateUserInputQuestionResponse = "user_input_question_response"

	// UpdateCompact triggers manual context compaction.
	UpdateCompact = "compact"

	// UpdateUndo restores the ghost snapshot captured by the last turn that
	// applied file changes.
	UpdateUndo = "undo"

	// UpdateModel switches the model/provider for the remainder of the session.
	UpdateModel = "update_model"

	// UpdateGetStateUpdate long-polls for new history items or a phase change.
	UpdateGetStateUpdate = "get_state_update"

	// UpdatePlanRequest spawns a planner subagent to produce a plan for the session.
	UpdatePlanRequest = "plan_request"

	// SignalAgentInput delivers a user message to a child agent workflow.
	SignalAgentInput = "agent_input"

	// SignalAgentShutdown requests a child agent workflow to shut down.
	SignalAgentShutdown = "agent_shutdown"
)

// TurnPhase indicates the current phase of the workflow turn.
type TurnPhase string

const (
	PhaseWaitingForInput    TurnPhase = "waiting_for_input"
	PhaseLLMCalling         TurnPhase = "llm_calling"
	PhaseToolExecuting      TurnPhase = "tool_executing"
	PhaseApprovalPending    TurnPhase = "approval_pending"
	PhaseEscalationPending  TurnPhase = "escalation_pending"
	PhaseUserInputPending   TurnPhase = "user_input_pending"
	PhaseCompacting         TurnPhase = "compacting"
	PhaseWaitingForAgents   TurnPhase = "waiting_for_agents"
)

// TurnStatus is the response from the get_turn_status query.
type TurnStatus struct {
	Phase                   TurnPhase                `json:"phase"`
	CurrentTurnID           string                   `json:"current_turn_id"`
	ToolsInFlight           []string                 `json:"tools_in_flight,omitempty"`
	PendingApprovals        []PendingApproval        `json:"pending_approvals,omitempty"`
	PendingEscalations      []EscalationRequest      `json:"pending_escalations,omitempty"`
	PendingUserInputRequest *PendingUserInputRequest `json:"pending_user_input_request,omitempty"`
	IterationCount          int                      `json:"iteration_count"`
	TotalTokens             int                      `json:"total_tokens"`
	TotalCachedTokens       int                      `json:"total_cached_tokens,omitempty"`
	TurnCount               int                      `json:"turn_count"`
	WorkerVersion           string                   `json:"worker_version,omitempty"`
	Suggestion              string                   `json:"suggestion,omitempty"`
	Plan                    PlanState                `json:"plan,omitempty"`
	ChildAgents             []ChildAgentSummary      `json:"child_agents,omitempty"`
}

// PlanStep is a single step in an update_plan call.
type PlanStep struct {
	Step   string `json:"step"`
	Status string `json:"status"` // "pending", "in_progress", "completed"
}

// PlanState is the agent's current self-reported plan, set by the
// update_plan tool and surfaced through get_turn_status.
type PlanState struct {
	Explanation string     `json:"explanation,omitempty"`
	Steps       []PlanStep `json:"steps,omitempty"`
}

// ChildAgentSummary is a compact view of a subagent's status, surfaced
// through get_turn_status so the CLI can render a collaboration tree.
type ChildAgentSummary struct {
	AgentID    string      `json:"agent_id"`
	WorkflowID string      `json:"workflow_id"`
	Role       AgentRole   `json:"role"`
	Status     AgentStatus `json:"status"`
}

// WorkflowInput is the initial input to start a conversation.
//
type WorkflowInput struct {
	ConversationID string                      `json:"conversation_id"`
	UserMessage    string                      `json:"user_message"`
	Config         models.SessionConfiguration `json:"config"`
	// Depth tracks subagent nesting level. 0 = top-level, 1 = child.
	Depth int `json:"depth,omitempty"`
}

// UserInput is the payload for the user_input Update.
type UserInput struct {
	Content string `json:"content"`
}

// InterruptRequest is the payload for the interrupt Update.
type InterruptRequest struct{}

// InterruptResponse is returned by the interrupt Update.
type InterruptResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// ShutdownRequest is the payload for the shutdown Update.
type ShutdownRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ShutdownResponse is returned by the shutdown Update.
type ShutdownResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// PendingApproval describes a tool call awaiting user approval.
type PendingApproval struct {
	CallID    string `json:"call_id"`
	ToolName  string `json:"tool_name"`
	Arguments string `json:"arguments"` // Raw JSON string of arguments
	Reason    string `json:"reason,omitempty"` // Why approval is needed (from policy justification or heuristic)
}

// ApprovalResponse is the user's decision on pending tool approvals.
type ApprovalResponse struct {
	Approved []string `json:"approved"` // CallIDs the user approved
	Denied   []string `json:"denied"`   // CallIDs the user denied

	// ApprovedForSession lists CallIDs approved for the rest of the session:
	// they run now and their command fingerprints are cached so matching
	// calls skip the prompt. Denials are never cached.
	ApprovedForSession []string `json:"approved_for_session,omitempty"`
}

// ApprovalResponseAck is returned by the approval_response Update after acceptance.
type ApprovalResponseAck struct{}

// EscalationRequest describes a failed sandboxed tool call awaiting user escalation.
type EscalationRequest struct {
	CallID    string `json:"call_id"`
	ToolName  string `json:"tool_name"`
	Arguments string `json:"arguments"`
	Output    string `json:"output"`     // Failed output from sandboxed execution
	Reason    string `json:"reason"`     // Why escalation is needed
}

// EscalationResponse is the user's decision on escalation.
type EscalationResponse struct {
	Approved []string `json:"approved"` // CallIDs to re-execute without sandbox
	Denied   []string `json:"denied"`   // CallIDs to reject
}

// EscalationResponseAck is returned by the escalation_response Update.
type EscalationResponseAck struct{}

// RequestUserInputQuestionOption describes a single option for a user input question.
type RequestUserInputQuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// RequestUserInputQuestion describes a single question for the user.
type RequestUserInputQuestion struct {
	ID       string                           `json:"id"`
	Header   string                           `json:"header,omitempty"`
	Question string                           `json:"question"`
	IsOther  bool                             `json:"is_other,omitempty"`
	Options  []RequestUserInputQuestionOption `json:"options"`
}

// PendingUserInputRequest describes a request_user_input call awaiting user response.
type PendingUserInputRequest struct {
	CallID    string                     `json:"call_id"`
	Questions []RequestUserInputQuestion `json:"questions"`
}

// UserInputQuestionAnswer holds the selected answers for a single question.
type UserInputQuestionAnswer struct {
	Answers []string `json:"answers"`
}

// UserInputQuestionResponse is the user's response to a request_user_input call.
type UserInputQuestionResponse struct {
	Answers map[string]UserInputQuestionAnswer `json:"answers"`
}

// UserInputQuestionResponseAck is returned by the user_input_question_response Update.
type UserInputQuestionResponseAck struct{}

// UndoRequest is the payload for the undo Update.
type UndoRequest struct{}

// UndoResponse is returned by the undo Update.
type UndoResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// CompactRequest is the payload for the compact Update.
type CompactRequest struct{}

// CompactResponse is returned by the compact Update.
type CompactResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// UpdateModelRequest is the payload for the update_model Update.
type UpdateModelRequest struct {
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	ContextWindow int    `json:"context_window,omitempty"`
}

// UpdateModelResponse is returned by the update_model Update.
type UpdateModelResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// StateUpdateRequest is the payload for the get_state_update Update. It
// long-polls: the handler blocks until a new history item appears or the
// phase diverges from SincePhase, then returns everything new.
type StateUpdateRequest struct {
	SinceSeq   int       `json:"since_seq"`
	SincePhase TurnPhase `json:"since_phase"`
}

// StateUpdateResponse is returned by the get_state_update Update and by the
// user_input Update (which reuses it to hand back a full initial snapshot).
type StateUpdateResponse struct {
	TurnID    string                    `json:"turn_id,omitempty"`
	Items     []models.ConversationItem `json:"items,omitempty"`
	Status    TurnStatus                `json:"status"`
	Compacted bool                      `json:"compacted"`
	Completed bool                      `json:"completed"`
}

// PlanRequest is the payload for the plan_request Update.
type PlanRequest struct {
	Message string `json:"message"`
}

// PlanRequestAccepted is returned by the plan_request Update after the
// planner subagent has been spawned.
type PlanRequestAccepted struct {
	AgentID    string `json:"agent_id"`
	WorkflowID string `json:"workflow_id"`
}

// AgentInputSignal is the payload for the agent_input signal.
// Sent from parent to child workflow via SignalExternalWorkflow.
type AgentInputSignal struct {
	Content   string `json:"content"`
	Interrupt bool   `json:"interrupt"`
}

// SessionState is passed through ContinueAsNew.
// Uses ContextManager interface to allow pluggable storage backends.
//
type SessionState struct {
	ConversationID string                      `json:"conversation_id"`
	History        history.ContextManager      `json:"-"`             // Not serialized directly; see note below
	HistoryItems   []models.ConversationItem   `json:"history_items"` // Serialized form for ContinueAsNew
	ToolSpecs      []tools.ToolSpec            `json:"tool_specs"`
	Config         models.SessionConfiguration `json:"config"`

	// ResolvedProfile holds the provider/model-specific overrides (base
	// prompt, tool disables, temperature/token/context-window caps) resolved
	// once at startup from the model profile registry.
	ResolvedProfile models.ResolvedProfile `json:"resolved_profile,omitempty"`

	// McpToolLookup maps qualified MCP tool names to their server/tool
	// routing info, populated once during MCP server initialization.
	McpToolLookup map[string]tools.McpToolRef `json:"-"`

	// Plan is the agent's self-reported plan, set by the update_plan tool.
	Plan PlanState `json:"plan,omitempty"`

	// Iteration tracking
	IterationCount int `json:"iteration_count"`
	MaxIterations  int `json:"max_iterations"`

	// Exec policy rules (serialized text, persists across ContinueAsNew)
	ExecPolicyRules string `json:"exec_policy_rules,omitempty"`

	// Approvals caches approved-for-session command fingerprints so a
	// blessed command is not re-prompted. Persists across ContinueAsNew.
	Approvals *ApprovalCache `json:"approvals,omitempty"`

	// SnapshotTurns lists the turn IDs that captured a ghost snapshot, in
	// order; the last entry is the next undo target. Persists across
	// ContinueAsNew.
	SnapshotTurns []string `json:"snapshot_turns,omitempty"`

	// Total iterations across all turns (persists across ContinueAsNew).
	// Used to trigger ContinueAsNew when history grows too large.
	TotalIterationsForCAN int `json:"total_iterations_for_can"`

	// OpenAI Responses API: last response ID for incremental sends
	// Persists across CAN to enable chaining across workflow continuations.
	LastResponseID string `json:"last_response_id,omitempty"`

	// Transient: tracks how many history items were sent in the last LLM call,
	// enabling incremental sends (only new items after this index).
	// Reset on history modification (compaction, DropOldestUserTurns).
	lastSentHistoryLen int `json:"-"`

	// Context compaction tracking
	CompactionCount   int  `json:"compaction_count"`   // How many times compaction has occurred
	compactedThisTurn bool `json:"-"`                  // Prevents double compaction in one turn

	// Repeated tool call detection (transient — not serialized)
	lastToolKey string `json:"-"`
	repeatCount int    `json:"-"`

	// Cumulative stats (persist across ContinueAsNew)
	TotalTokens       int      `json:"total_tokens"`
	TotalCachedTokens int      `json:"total_cached_tokens,omitempty"`
	ToolCallsExecuted []string `json:"tool_calls_executed"`

	// Model-switch tracking: set by the update_model Update so the next LLM
	// call can inject a model-switch marker and consider re-compacting for
	// the new model's context window.
	PreviousModel         string `json:"previous_model,omitempty"`
	PreviousContextWindow int    `json:"previous_context_window,omitempty"`
	modelSwitched         bool   `json:"-"`

	// Subagent control — manages child workflow lifecycles.
	AgentCtl *AgentControl `json:"agent_ctl,omitempty"`

	// TurnCounter produces unique, deterministic turn IDs. Persists across
	// ContinueAsNew so IDs stay unique for the lifetime of the conversation.
	TurnCounter int `json:"turn_counter"`
}

// noteSnapshotTurn records that turnID captured a ghost snapshot, making it
// the next undo target. Idempotent for repeated patches within one turn.
func (s *SessionState) noteSnapshotTurn(turnID string) {
	if n := len(s.SnapshotTurns); n > 0 && s.SnapshotTurns[n-1] == turnID {
		return
	}
	s.SnapshotTurns = append(s.SnapshotTurns, turnID)
}

// approvalCache returns the session approval cache, creating it on first
// use (including after deserialization from ContinueAsNew).
func (s *SessionState) approvalCache() *ApprovalCache {
	if s.Approvals == nil {
		s.Approvals = NewApprovalCache()
	}
	return s.Approvals
}

// nextTurnID returns a new turn ID by incrementing TurnCounter. Deterministic,
// so unlike agent IDs (which use SideEffect) it needs no workflow.Now call.
func (s *SessionState) nextTurnID() string {
	s.TurnCounter++
	return fmt.Sprintf("turn-%d", s.TurnCounter)
}

// WorkflowResult is the final result of the workflow.
type WorkflowResult struct {
	ConversationID    string   `json:"conversation_id"`
	TotalIterations   int      `json:"total_iterations"`
	TotalTokens       int      `json:"total_tokens"`
	ToolCallsExecuted []string `json:"tool_calls_executed"`
	EndReason         string   `json:"end_reason,omitempty"` // "shutdown", "error"
	// FinalMessage is the last assistant message from the workflow.
	// Used by parent workflows to get the child's result.
	FinalMessage string `json:"final_message,omitempty"`
}

// initHistory initializes the History field from HistoryItems.
// Called after deserialization (ContinueAsNew) to restore the interface.
func (s *SessionState) initHistory() {
	h := history.NewInMemoryHistory()
	for _, item := range s.HistoryItems {
		h.AddItem(item)
	}
	s.History = h
}

// syncHistoryItems copies history to HistoryItems for serialization.
// Called before ContinueAsNew to persist state.
func (s *SessionState) syncHistoryItems() {
	items, _ := s.History.GetRawItems()
	s.HistoryItems = items
}
