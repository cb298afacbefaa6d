// Package workflow contains Temporal workflow definitions.
//
// agentic.go is the workflow entry point: it assembles a fresh SessionState
// and LoopControl, then drives the multi-turn loop implemented across
// turn.go, compaction.go, subagent.go, and handlers.go. The ApprovalGate
// type and its classification helpers also live here since they're shared
// by turn.go and escalation.go but don't belong to either file's main concern.
package workflow

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/stratumhq/stratum-agent/internal/execpolicy"
	"github.com/stratumhq/stratum-agent/internal/history"
	"github.com/stratumhq/stratum-agent/internal/instructions"
	"github.com/stratumhq/stratum-agent/internal/models"
	"github.com/stratumhq/stratum-agent/internal/tools"
)

// IdleTimeout is how long the workflow waits for user input before triggering ContinueAsNew.
const IdleTimeout = 24 * time.Hour

// maxIterationsBeforeCAN is the total iteration count across all turns in a
// single workflow run before triggering ContinueAsNew to keep history bounded.
const maxIterationsBeforeCAN = 100

// maxRepeatToolCalls is the number of consecutive identical tool call batches
// before the turn is ended early to prevent tight loops.
const maxRepeatToolCalls = 3

// AgenticWorkflow is the main durable agentic loop.
func AgenticWorkflow(ctx workflow.Context, input WorkflowInput) (WorkflowResult, error) {
	state := SessionState{
		ConversationID: input.ConversationID,
		History:        history.NewInMemoryHistory(),
		Config:         input.Config,
		MaxIterations:  20,
		IterationCount: 0,
		AgentCtl:       NewAgentControl(input.Depth),
	}
	ctrl := &LoopControl{}

	// Resolve the model profile before building tool specs — buildToolSpecs
	// needs profile.Tools.Disable to filter the final list.
	state.resolveProfile()
	state.ToolSpecs = buildToolSpecs(input.Config.Tools, state.ResolvedProfile)

	// Instructions and exec policy may already be assembled by HarnessWorkflow
	// (the top-level session entry point); only resolve them here when a
	// subagent or direct caller starts this workflow without that prep.
	if state.Config.BaseInstructions == "" {
		state.resolveInstructions(ctx)
	}
	if state.Config.ExecPolicyRules != "" {
		state.ExecPolicyRules = state.Config.ExecPolicyRules
	} else {
		state.loadExecPolicy(ctx)
	}

	if err := state.initMcpServers(ctx); err != nil {
		return WorkflowResult{}, err
	}

	turnID := state.nextTurnID()

	// Add initial TurnStarted marker
	if err := state.History.AddItem(models.ConversationItem{
		Type:   models.ItemTypeTurnStarted,
		TurnID: turnID,
	}); err != nil {
		return WorkflowResult{}, fmt.Errorf("failed to add turn started: %w", err)
	}

	// Add environment context as the first user message
	if state.Config.Cwd != "" {
		envCtx := instructions.BuildEnvironmentContext(state.Config.Cwd, "")
		if err := state.History.AddItem(models.ConversationItem{
			Type:    models.ItemTypeUserMessage,
			Content: envCtx,
			TurnID:  turnID,
		}); err != nil {
			return WorkflowResult{}, fmt.Errorf("failed to add environment context: %w", err)
		}
	}

	// Add initial user message to history
	if err := state.History.AddItem(models.ConversationItem{
		Type:    models.ItemTypeUserMessage,
		Content: input.UserMessage,
		TurnID:  turnID,
	}); err != nil {
		return WorkflowResult{}, fmt.Errorf("failed to add user message: %w", err)
	}

	ctrl.SetPendingUserInput(turnID)

	state.registerHandlers(ctx, ctrl)
	return state.runMultiTurnLoop(ctx, ctrl)
}

// AgenticWorkflowContinued handles ContinueAsNew.
func AgenticWorkflowContinued(ctx workflow.Context, state SessionState) (WorkflowResult, error) {
	// Restore History interface from serialized HistoryItems
	state.initHistory()
	if state.AgentCtl == nil {
		state.AgentCtl = NewAgentControl(0)
	}
	ctrl := &LoopControl{}
	state.registerHandlers(ctx, ctrl)
	return state.runMultiTurnLoop(ctx, ctrl)
}

// runMultiTurnLoop is the outer loop that waits for user input between turns.
func (s *SessionState) runMultiTurnLoop(ctx workflow.Context, ctrl *LoopControl) (WorkflowResult, error) {
	logger := workflow.GetLogger(ctx)

	for {
		// Wait for pending user input (first turn has it set already)
		if !ctrl.HasPendingWork() {
			ctrl.SetPhase(PhaseWaitingForInput)
			ctrl.ClearToolsInFlight()
			logger.Info("Waiting for user input or shutdown")
			timedOut, err := ctrl.WaitForInput(ctx)
			if err != nil {
				return WorkflowResult{}, fmt.Errorf("await failed: %w", err)
			}
			if timedOut {
				logger.Info("Idle timeout reached, triggering ContinueAsNew")
				return s.continueAsNew(ctx, ctrl)
			}
		}

		// Check for shutdown
		if ctrl.IsShutdown() {
			logger.Info("Shutdown requested, completing workflow")
			return WorkflowResult{
				ConversationID:    s.ConversationID,
				TotalIterations:   s.IterationCount,
				TotalTokens:       s.TotalTokens,
				ToolCallsExecuted: s.ToolCallsExecuted,
				EndReason:         "shutdown",
				FinalMessage:      extractFinalMessage(mustRawItems(s)),
			}, nil
		}

		// Manual /compact request, outside of a turn.
		if ctrl.IsCompactRequested() {
			ctrl.ClearCompactRequested()
			if err := s.performCompaction(ctx, ctrl); err != nil {
				logger.Warn("Manual compaction failed", "error", err)
			}
			continue
		}

		// Reset for new turn
		ctrl.StartTurn()
		s.IterationCount = 0

		// Run the agentic turn
		done, err := s.runAgenticTurn(ctx, ctrl)
		if err != nil {
			return WorkflowResult{}, err
		}

		if done {
			// ContinueAsNew was triggered
			return s.continueAsNew(ctx, ctrl)
		}

		// Accumulate iterations for CAN threshold across turns.
		s.TotalIterationsForCAN += s.IterationCount
		if s.TotalIterationsForCAN >= maxIterationsBeforeCAN {
			logger.Info("Total iterations across turns reached CAN threshold",
				"total", s.TotalIterationsForCAN)
			return s.continueAsNew(ctx, ctrl)
		}

		// Turn complete — add TurnComplete marker (unless interrupted, which already added it)
		if !ctrl.IsInterrupted() {
			_ = s.History.AddItem(models.ConversationItem{
				Type:   models.ItemTypeTurnComplete,
				TurnID: ctrl.CurrentTurnID(),
			})
			ctrl.NotifyItemAdded()
		}

		if !s.Config.DisableSuggestions {
			s.generateSuggestion(ctx, ctrl)
		}

		ctrl.SetPhase(PhaseWaitingForInput)
		ctrl.ClearToolsInFlight()
		logger.Info("Turn complete, waiting for next input", "turn_id", ctrl.CurrentTurnID())
	}
}

// mustRawItems fetches raw history items, returning nil on error. Used only
// for best-effort FinalMessage extraction on shutdown.
func mustRawItems(s *SessionState) []models.ConversationItem {
	items, _ := s.History.GetRawItems()
	return items
}

// awaitWithIdleTimeout waits for condition or idle timeout.
// Returns (timedOut, error).
func awaitWithIdleTimeout(ctx workflow.Context, condition func() bool) (bool, error) {
	ok, err := workflow.AwaitWithTimeout(ctx, IdleTimeout, condition)
	if err != nil {
		return false, err
	}
	return !ok, nil // ok=false means timed out
}

// continueAsNew prepares state and triggers ContinueAsNew.
func (s *SessionState) continueAsNew(ctx workflow.Context, ctrl *LoopControl) (WorkflowResult, error) {
	ctrl.SetDraining()

	// Wait for all update handlers to finish before ContinueAsNew
	_ = workflow.Await(ctx, func() bool {
		return workflow.AllHandlersFinished(ctx)
	})

	s.syncHistoryItems()
	return WorkflowResult{}, workflow.NewContinueAsNewError(ctx, "AgenticWorkflowContinued", *s)
}

// ApprovalGate holds the approval mode, exec policy rules, and session
// approval cache for a single turn, so runAgenticTurn doesn't have to thread
// them through every call in the approve/execute pipeline.
type ApprovalGate struct {
	mode        models.ApprovalMode
	policyRules string
	cache       *ApprovalCache
}

// NewApprovalGate builds an ApprovalGate for the given approval mode,
// serialized exec policy rules, and session approval cache.
func NewApprovalGate(mode models.ApprovalMode, policyRules string, cache *ApprovalCache) *ApprovalGate {
	return &ApprovalGate{mode: mode, policyRules: policyRules, cache: cache}
}

// Classify determines which of functionCalls need user approval and which
// are outright forbidden by exec policy.
func (g *ApprovalGate) Classify(functionCalls []models.ConversationItem) (pending []PendingApproval, forbidden []models.ConversationItem) {
	return classifyToolsForApproval(functionCalls, g.mode, g.policyRules, g.cache)
}

// ApplyDecision filters calls by the user's approval response, returning the
// approved calls and denied-result history items for the rest. Calls the
// user approved for the session have their fingerprints cached so they skip
// the prompt next time.
func (g *ApprovalGate) ApplyDecision(calls []models.ConversationItem, resp *ApprovalResponse) (approved []models.ConversationItem, denied []models.ConversationItem) {
	return applyApprovalDecision(calls, resp, g.cache)
}

// classifyToolsForApproval determines which tool calls need user approval.
// Uses the exec policy engine when available, falling back to heuristic classification.
//
// Returns:
//   - pending: tools needing approval (shown to user)
//   - forbidden: tools that are forbidden (denied immediately)
func classifyToolsForApproval(
	functionCalls []models.ConversationItem,
	mode models.ApprovalMode,
	policyRules string,
	cache *ApprovalCache,
) (pending []PendingApproval, forbidden []models.ConversationItem) {
	// Empty/unset mode or "never" → auto-approve all (backward compat),
	// except that a call requesting escalated permissions is rejected
	// outright: there is no one to prompt, and escalation must never be
	// granted silently.
	if mode == "" || mode == models.ApprovalNever {
		for _, fc := range functionCalls {
			if !requestsEscalation(fc.Arguments) {
				continue
			}
			falseVal := false
			forbidden = append(forbidden, models.ConversationItem{
				Type:   models.ItemTypeFunctionCallOutput,
				CallID: fc.CallID,
				Output: &models.FunctionCallOutputPayload{
					Content: escalationRejection,
					Success: &falseVal,
				},
			})
		}
		return nil, forbidden
	}

	// Build exec policy manager from serialized rules
	var policyMgr *execpolicy.ExecPolicyManager
	if policyRules != "" {
		mgr, err := execpolicy.LoadExecPolicyFromSource(policyRules)
		if err == nil {
			policyMgr = mgr
		}
	}

	for _, fc := range functionCalls {
		req, reason := evaluateToolApproval(fc.Name, fc.Arguments, policyMgr, mode)
		switch req {
		case tools.ApprovalSkip:
			continue // auto-approved
		case tools.ApprovalNeeded:
			if cache.IsApproved(commandFingerprint(fc.Name, fc.Arguments)) {
				continue // user already approved this command for the session
			}
			pending = append(pending, PendingApproval{
				CallID:    fc.CallID,
				ToolName:  fc.Name,
				Arguments: fc.Arguments,
				Reason:    reason,
			})
		case tools.ApprovalForbidden:
			falseVal := false
			msg := "This command is forbidden by exec policy."
			if reason != "" {
				msg = fmt.Sprintf("Forbidden: %s", reason)
			}
			forbidden = append(forbidden, models.ConversationItem{
				Type:   models.ItemTypeFunctionCallOutput,
				CallID: fc.CallID,
				Output: &models.FunctionCallOutputPayload{
					Content: msg,
					Success: &falseVal,
				},
			})
		}
	}
	return pending, forbidden
}

// evaluateToolApproval determines the approval requirement for a single tool call.
// Returns the requirement and a human-readable reason.
func evaluateToolApproval(
	toolName, arguments string,
	policyMgr *execpolicy.ExecPolicyManager,
	mode models.ApprovalMode,
) (tools.ExecApprovalRequirement, string) {
	switch toolName {
	case "read_file", "list_dir", "grep_files", "request_user_input", "update_plan",
		"spawn_agent", "send_input", "wait", "close_agent", "resume_agent":
		return tools.ApprovalSkip, "" // Read-only / workflow-intercepted tools always safe

	case "shell", "shell_command", "exec_command":
		return evaluateShellApproval(arguments, policyMgr, mode)

	case "write_stdin":
		// Input into a session whose spawn was already approved.
		return tools.ApprovalSkip, ""

	case "write_file", "apply_patch":
		if mode == models.ApprovalNever {
			return tools.ApprovalSkip, ""
		}
		return tools.ApprovalNeeded, "mutating file operation"

	default:
		if mode == models.ApprovalNever {
			return tools.ApprovalSkip, ""
		}
		return tools.ApprovalNeeded, "unknown tool"
	}
}

// evaluateShellApproval evaluates a shell-style tool call through the exec
// policy engine. Accepts the shell tool's script string ("command"), the
// shell_command tool's argv array ("command"), and exec_command's script
// string ("cmd").
func evaluateShellApproval(
	arguments string,
	policyMgr *execpolicy.ExecPolicyManager,
	mode models.ApprovalMode,
) (tools.ExecApprovalRequirement, string) {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return tools.ApprovalNeeded, "cannot parse arguments"
	}
	cmdVec := shellCommandVector(args)
	if len(cmdVec) == 0 {
		return tools.ApprovalNeeded, "missing command"
	}

	// Use exec policy if available
	if policyMgr != nil {
		eval := policyMgr.GetEvaluation(cmdVec, string(mode))
		req := decisionToApprovalReq(eval.Decision)
		return req, eval.Justification
	}

	// Fallback to heuristic (same as before exec policy was added)
	if mode == models.ApprovalNever || mode == "" {
		return tools.ApprovalSkip, ""
	}
	if mode == models.ApprovalOnFailure {
		return tools.ApprovalSkip, "" // runs in sandbox
	}
	// unless-trusted: use command_safety heuristic
	mgr := execpolicy.NewExecPolicyManager(execpolicy.NewPolicy())
	return mgr.EvaluateCommand(cmdVec, string(mode)), ""
}

// shellCommandVector extracts the command vector from shell-style tool
// arguments: a script string becomes ["bash", "-c", script]; an argv array
// passes through as-is.
func shellCommandVector(args map[string]interface{}) []string {
	if script, ok := args["command"].(string); ok && script != "" {
		return []string{"bash", "-c", script}
	}
	if script, ok := args["cmd"].(string); ok && script != "" {
		return []string{"bash", "-c", script}
	}
	if list, ok := args["command"].([]interface{}); ok && len(list) > 0 {
		argv := make([]string, 0, len(list))
		for _, elem := range list {
			if s, ok := elem.(string); ok {
				argv = append(argv, s)
			}
		}
		if len(argv) > 0 {
			return argv
		}
	}
	return nil
}

// decisionToApprovalReq maps a policy Decision to ExecApprovalRequirement.
func decisionToApprovalReq(d execpolicy.Decision) tools.ExecApprovalRequirement {
	switch d {
	case execpolicy.DecisionAllow:
		return tools.ApprovalSkip
	case execpolicy.DecisionPrompt:
		return tools.ApprovalNeeded
	case execpolicy.DecisionForbidden:
		return tools.ApprovalForbidden
	default:
		return tools.ApprovalNeeded
	}
}

// truncate returns s truncated to n bytes with "..." appended if it was longer.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// applyApprovalDecision filters function calls based on the approval response.
// Returns approved function calls and denied result items for history. Calls
// listed in ApprovedForSession are approved and their fingerprints cached;
// denials are never cached.
func applyApprovalDecision(functionCalls []models.ConversationItem, resp *ApprovalResponse, cache *ApprovalCache) ([]models.ConversationItem, []models.ConversationItem) {
	if resp == nil {
		return functionCalls, nil
	}

	deniedSet := make(map[string]bool, len(resp.Denied))
	for _, id := range resp.Denied {
		deniedSet[id] = true
	}
	sessionSet := make(map[string]bool, len(resp.ApprovedForSession))
	for _, id := range resp.ApprovedForSession {
		sessionSet[id] = true
	}

	var approved []models.ConversationItem
	var denied []models.ConversationItem

	for _, fc := range functionCalls {
		if deniedSet[fc.CallID] {
			falseVal := false
			denied = append(denied, models.ConversationItem{
				Type:   models.ItemTypeFunctionCallOutput,
				CallID: fc.CallID,
				Output: &models.FunctionCallOutputPayload{
					Content: "User denied execution of this tool call.",
					Success: &falseVal,
				},
			})
		} else {
			if sessionSet[fc.CallID] {
				cache.Remember(commandFingerprint(fc.Name, fc.Arguments))
			}
			approved = append(approved, fc)
		}
	}

	return approved, denied
}

// toolCallsKey produces a deterministic hash for a batch of tool calls
// based on tool names and arguments, used for repeat detection.
func toolCallsKey(calls []models.ConversationItem) string {
	// Build a sorted list of "name:args" strings for deterministic ordering.
	parts := make([]string, len(calls))
	for i, c := range calls {
		parts[i] = c.Name + ":" + c.Arguments
	}
	sort.Strings(parts)
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// toInt64 converts a JSON-decoded number (float64) to int64.
func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}
