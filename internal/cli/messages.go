package cli

import (
	"github.com/stratumhq/stratum-agent/internal/models"
	"github.com/stratumhq/stratum-agent/internal/workflow"
)

// WorkflowStartedMsg is sent when a workflow has been started or resumed.
type WorkflowStartedMsg struct {
	WorkflowID string
	Items      []models.ConversationItem // Non-nil only for resume
	Status     workflow.TurnStatus       // Non-zero only for resume
	IsResume   bool
}

// WorkflowStartErrorMsg is sent when starting/resuming a workflow fails.
type WorkflowStartErrorMsg struct {
	Err error
}

// PollResultMsg wraps a PollResult from the polling goroutine.
type PollResultMsg struct {
	Result PollResult
}

// UserInputSentMsg is sent after user input has been successfully sent.
type UserInputSentMsg struct {
	TurnID string
}

// UserInputErrorMsg is sent when sending user input fails.
type UserInputErrorMsg struct {
	Err error
}

// InterruptSentMsg is sent after an interrupt has been successfully sent.
type InterruptSentMsg struct{}

// InterruptErrorMsg is sent when sending an interrupt fails.
type InterruptErrorMsg struct {
	Err error
}

// ShutdownSentMsg is sent after a shutdown has been successfully sent.
type ShutdownSentMsg struct{}

// ShutdownErrorMsg is sent when sending a shutdown fails.
type ShutdownErrorMsg struct {
	Err error
}

// ApprovalSentMsg is sent after an approval response has been sent.
type ApprovalSentMsg struct{}

// ApprovalErrorMsg is sent when sending an approval response fails.
type ApprovalErrorMsg struct {
	Err error
}

// EscalationSentMsg is sent after an escalation response has been sent.
type EscalationSentMsg struct{}

// EscalationErrorMsg is sent when sending an escalation response fails.
type EscalationErrorMsg struct {
	Err error
}

// SessionCompletedMsg is sent when the workflow completes.
type SessionCompletedMsg struct {
	Result *workflow.WorkflowResult // nil if unavailable
}

// SessionErrorMsg is sent when the workflow encounters an unrecoverable error.
type SessionErrorMsg struct {
	Err error
}

// UserInputQuestionSentMsg is sent after a user input question response has been sent.
type UserInputQuestionSentMsg struct{}

// UserInputQuestionErrorMsg is sent when sending a user input question response fails.
type UserInputQuestionErrorMsg struct {
	Err error
}

// CompactSentMsg is sent after a compact request was acknowledged.
type CompactSentMsg struct{}

// CompactErrorMsg is sent when sending a compact request fails.
type CompactErrorMsg struct {
	Err error
}

// UndoSentMsg carries the workflow's undo result.
type UndoSentMsg struct {
	Success bool
	Message string
}

// UndoErrorMsg is sent when sending an undo request fails.
type UndoErrorMsg struct {
	Err error
}

// PlanRequestAcceptedMsg is sent when the workflow accepted a plan request
// and spawned a planner subagent.
type PlanRequestAcceptedMsg struct {
	AgentID    string
	WorkflowID string
}

// PlanRequestErrorMsg is sent when sending a plan request fails.
type PlanRequestErrorMsg struct {
	Err error
}

// PlannerCompletedMsg carries the planner subagent's final plan text; empty
// when the planner produced none.
type PlannerCompletedMsg struct {
	PlanText string
}

// ModelUpdateSentMsg is sent after a model switch was acknowledged.
type ModelUpdateSentMsg struct {
	Provider string
	Model    string
}

// ModelUpdateErrorMsg is sent when a model switch fails.
type ModelUpdateErrorMsg struct {
	Err error
}

// modelOption is one selectable entry in the model picker.
type modelOption struct {
	Provider    string
	Model       string
	DisplayName string
}

// ModelsFetchedMsg carries the provider model listings for the picker; nil
// Models means fall back to the built-in list.
type ModelsFetchedMsg struct {
	Models []modelOption
	Err    error
}
