package activities

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/stratumhq/stratum-agent/internal/feedback"
	"github.com/stratumhq/stratum-agent/internal/mcp"
	"github.com/stratumhq/stratum-agent/internal/models"
	"github.com/stratumhq/stratum-agent/internal/telemetry"
	"github.com/stratumhq/stratum-agent/internal/tools"
	"github.com/stratumhq/stratum-agent/internal/tools/patch"
)

// mcpHandlerName is the single registry entry every MCP-qualified tool
// call is routed through, regardless of which server or tool it names.
const mcpHandlerName = "mcp"

// ToolActivityInput is the input for tool execution.
//
type ToolActivityInput struct {
	CallID         string                 `json:"call_id"`
	ToolName       string                 `json:"tool_name"`
	Arguments      map[string]interface{} `json:"arguments"`
	Cwd            string                 `json:"cwd,omitempty"`
	AgentHome      string                 `json:"agent_home,omitempty"`
	ConversationID string                 `json:"conversation_id,omitempty"`

	// TurnID scopes ghost snapshots: every apply_patch in one turn merges
	// into the same snapshot so undo restores the turn's starting state.
	TurnID string `json:"turn_id,omitempty"`

	// CaptureSnapshot asks apply_patch to record a ghost snapshot of the
	// affected files before writing, enabling undo.
	CaptureSnapshot bool `json:"capture_snapshot,omitempty"`

	// McpToolRef, if set, routes this call through the "mcp" handler to the
	// named server + tool instead of a flat handler-name lookup.
	McpToolRef *tools.McpToolRef `json:"mcp_tool_ref,omitempty"`

	// SessionID scopes the McpStore lookup to this conversation's servers.
	SessionID string `json:"session_id,omitempty"`

	// McpServers lets MCPHandler auto-reconnect a server after a worker
	// restart, without the workflow needing to re-run InitializeMcpServers.
	McpServers map[string]mcp.McpServerConfig `json:"mcp_servers,omitempty"`
}

// ToolActivityOutput is the output from tool execution.
// Only returned on successful activity completion. Infrastructure errors
// are returned as temporal.ApplicationError (retryable or non-retryable).
//
type ToolActivityOutput struct {
	CallID  string `json:"call_id"`
	Content string `json:"content,omitempty"`
	Success *bool  `json:"success,omitempty"`

	// ExitCode is the child process exit status for command-running tools.
	ExitCode *int `json:"exit_code,omitempty"`

	// SnapshotPath is the ghost snapshot directory captured by apply_patch,
	// if any; the workflow records it as the undo target.
	SnapshotPath string `json:"snapshot_path,omitempty"`
}

// ToolActivities contains tool-related activities.
type ToolActivities struct {
	registry *tools.ToolRegistry
	emitter  *telemetry.ToolEmitter
}

// NewToolActivities creates a new ToolActivities instance.
func NewToolActivities(registry *tools.ToolRegistry) *ToolActivities {
	return &ToolActivities{registry: registry, emitter: telemetry.NewToolEmitter()}
}

// ExecuteTool executes a single tool call.
//
// Error handling:
//   - Tool not found → non-retryable ApplicationError (ToolNotFound)
//   - Handler validation error → non-retryable ApplicationError (ToolValidation)
//   - Handler timeout → non-retryable ApplicationError (ToolTimeout)
//   - Tool runs but fails (e.g., command exits non-zero) → successful return with Success=false
//   - Tool runs successfully → successful return with Success=true
//
// A recovered panic and a process-spawn failure are both captured locally via
// internal/feedback before being reported back to the workflow, so a crash
// during manual triage isn't lost once the activity's ordinary error path
// converts it into a tool result.
func (a *ToolActivities) ExecuteTool(ctx context.Context, input ToolActivityInput) (out ToolActivityOutput, err error) {
	ctx, finish := a.emitter.Begin(ctx, input.ToolName, input.CallID)

	defer func() {
		if r := recover(); r != nil {
			_ = feedback.RecordPanic(input.AgentHome, input.ConversationID, input.CallID, input.ToolName, r)
			finish(telemetry.OutcomeError, fmt.Sprintf("panic: %v", r))
			err = models.NewToolValidationError(input.ToolName, fmt.Errorf("panic: %v", r))
			return
		}
		switch {
		case err != nil:
			finish(telemetry.OutcomeError, err.Error())
		case out.Success != nil && !*out.Success:
			finish(telemetry.OutcomeFailure, out.Content)
		default:
			finish(telemetry.OutcomeSuccess, "")
		}
	}()

	handlerName := input.ToolName
	if input.McpToolRef != nil {
		handlerName = mcpHandlerName
	}
	handler, err := a.registry.GetHandler(handlerName)
	if err != nil {
		return ToolActivityOutput{}, models.NewToolNotFoundError(input.ToolName)
	}

	invocation := &tools.ToolInvocation{
		CallID:          input.CallID,
		ToolName:        input.ToolName,
		Arguments:       input.Arguments,
		Cwd:             input.Cwd,
		AgentHome:       input.AgentHome,
		ConversationID:  input.ConversationID,
		TurnID:          input.TurnID,
		CaptureSnapshot: input.CaptureSnapshot,
	}
	if input.McpToolRef != nil {
		invocation.McpToolRef = input.McpToolRef
		invocation.SessionID = input.SessionID
		if input.McpServers != nil {
			invocation.McpServers = input.McpServers
		}
	}

	output, err := handler.Handle(ctx, invocation)
	if err != nil {
		if spawnErr := new(exec.Error); errors.As(err, &spawnErr) {
			_ = feedback.RecordSpawnFailure(input.AgentHome, input.ConversationID, input.CallID, input.ToolName, err, stringifyArgs(input.Arguments))
		}
		return ToolActivityOutput{}, classifyHandlerError(input.ToolName, err)
	}

	return ToolActivityOutput{
		CallID:       input.CallID,
		Content:      output.Content,
		Success:      output.Success,
		ExitCode:     output.ExitCode,
		SnapshotPath: output.SnapshotPath,
	}, nil
}

// stringifyArgs renders tool arguments as strings for feedback capture,
// which redacts by key name and doesn't need the original types back.
func stringifyArgs(args map[string]interface{}) map[string]string {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]string, len(args))
	for k, v := range args {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

// classifyHandlerError converts a handler error into the appropriate
// temporal.ApplicationError based on the error context.
//
// Handler errors are non-retryable by default because they represent
// validation failures (missing args, bad types) or execution issues
// (timeouts) that won't resolve on retry. A handler that detects a
// transient issue wraps it with tools.NewTransientError; such errors are
// returned unchanged, which leaves them retryable.
func classifyHandlerError(toolName string, err error) error {
	if tools.IsTransientError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewToolTimeoutError(toolName, err)
	}

	// Default: treat handler errors as validation/execution errors (non-retryable).
	// The same invalid input will produce the same error on retry.
	return models.NewToolValidationError(toolName, err)
}

// RestoreSnapshotInput identifies the ghost snapshot to restore.
type RestoreSnapshotInput struct {
	AgentHome      string `json:"agent_home"`
	ConversationID string `json:"conversation_id"`
	TurnID         string `json:"turn_id"`
}

// RestoreSnapshotOutput reports what the restore touched.
type RestoreSnapshotOutput struct {
	FilesRestored int `json:"files_restored"`
}

// RestoreSnapshot restores the ghost snapshot captured by the given turn's
// apply_patch calls and removes the consumed snapshot directory.
func (a *ToolActivities) RestoreSnapshot(_ context.Context, input RestoreSnapshotInput) (RestoreSnapshotOutput, error) {
	dir := patch.SnapshotDir(input.AgentHome, input.ConversationID, input.TurnID)
	restored, err := patch.RestoreSnapshot(dir)
	if err != nil {
		return RestoreSnapshotOutput{}, err
	}
	return RestoreSnapshotOutput{FilesRestored: restored}, nil
}
