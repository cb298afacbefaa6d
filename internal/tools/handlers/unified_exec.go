package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/stratumhq/stratum-agent/internal/execsession"
	"github.com/stratumhq/stratum-agent/internal/tools"
)

// UnifiedExecTool implements exec_command: it opens a session (a PTY when
// tty=true, pipes otherwise) through a shared UnifiedExecManager and either returns the
// command's output immediately (if it finished within yield_time_ms) or a
// session_id for follow-up write_stdin calls.
type UnifiedExecTool struct {
	manager *execsession.UnifiedExecManager
}

// NewUnifiedExecTool creates the exec_command handler over the given
// session registry. Callers share one UnifiedExecManager across the worker
// process so sessions outlive the turn that created them; interrupting a
// turn never kills a running session.
func NewUnifiedExecTool(manager *execsession.UnifiedExecManager) *UnifiedExecTool {
	return &UnifiedExecTool{manager: manager}
}

func (t *UnifiedExecTool) Name() string { return "exec_command" }

func (t *UnifiedExecTool) Kind() tools.ToolKind { return tools.ToolKindFunction }

// IsMutating always reports true: a unified exec session can run arbitrary
// interactive commands, so it is never treated as read-only for approval
// bypass purposes.
func (t *UnifiedExecTool) IsMutating(*tools.ToolInvocation) bool { return true }

func (t *UnifiedExecTool) Handle(ctx context.Context, invocation *tools.ToolInvocation) (*tools.ToolOutput, error) {
	cmdArg, ok := invocation.Arguments["cmd"]
	if !ok {
		return nil, tools.NewValidationError("missing required argument: cmd")
	}
	cmd, ok := cmdArg.(string)
	if !ok || cmd == "" {
		return nil, tools.NewValidationError("cmd must be a non-empty string")
	}

	workdir, _ := invocation.Arguments["workdir"].(string)
	if workdir == "" {
		workdir = invocation.Cwd
	}
	shellBin := shellArg(invocation.Arguments)
	login := boolArgDefault(invocation.Arguments, "login", true)
	tty := boolArgDefault(invocation.Arguments, "tty", false)
	yieldMs := intArg(invocation.Arguments, "yield_time_ms")
	maxTokens := intArg(invocation.Arguments, "max_output_tokens")

	args := []string{}
	if login {
		args = append(args, "-l")
	}
	args = append(args, "-c", cmd)

	opts := execsession.SessionOpts{
		Command: append([]string{shellBin}, args...),
		Cwd:     workdir,
		TTY:     tty,
	}

	result, err := t.manager.ExecCommand(opts, yieldMs, maxTokens, invocation.Heartbeat)
	if err != nil {
		success := false
		return &tools.ToolOutput{Content: "execution error: " + err.Error(), Success: &success}, nil
	}

	return execResultToOutput(result), nil
}

// WriteStdinTool implements write_stdin: pipes input to a running unified
// exec session and returns whatever output has accumulated.
type WriteStdinTool struct {
	manager *execsession.UnifiedExecManager
}

// NewWriteStdinTool creates the write_stdin handler over the given session
// registry, which must be the same UnifiedExecManager used by exec_command.
func NewWriteStdinTool(manager *execsession.UnifiedExecManager) *WriteStdinTool {
	return &WriteStdinTool{manager: manager}
}

func (t *WriteStdinTool) Name() string { return "write_stdin" }

func (t *WriteStdinTool) Kind() tools.ToolKind { return tools.ToolKindFunction }

// IsMutating always reports true for the same reason as UnifiedExecTool.
func (t *WriteStdinTool) IsMutating(*tools.ToolInvocation) bool { return true }

func (t *WriteStdinTool) Handle(ctx context.Context, invocation *tools.ToolInvocation) (*tools.ToolOutput, error) {
	sessionID, ok := int32Arg(invocation.Arguments, "session_id")
	if !ok {
		return nil, tools.NewValidationError("missing required argument: session_id")
	}
	chars, _ := invocation.Arguments["chars"].(string)
	yieldMs := intArg(invocation.Arguments, "yield_time_ms")
	if yieldMs == 0 && chars == "" {
		yieldMs = 5000 // empty polls wait longer by default, per the tool spec.
	}
	maxTokens := intArg(invocation.Arguments, "max_output_tokens")

	result, err := t.manager.WriteStdin(sessionID, []byte(chars), yieldMs, maxTokens, invocation.Heartbeat)
	if err != nil {
		if errors.Is(err, execsession.ErrUnknownSessionID) {
			success := false
			return &tools.ToolOutput{Content: err.Error(), Success: &success}, nil
		}
		success := false
		return &tools.ToolOutput{Content: "execution error: " + err.Error(), Success: &success}, nil
	}

	return execResultToOutput(result), nil
}

// execResultToOutput renders a session result as model-facing text. When
// the child is still running, the session_id line lets the model address it
// in a follow-up write_stdin call; the output itself is still carried
// verbatim so scripted assertions never need to parse the prefix.
func execResultToOutput(result execsession.ExecCommandResult) *tools.ToolOutput {
	success := true
	if result.ExitCode != nil && *result.ExitCode != 0 {
		success = false
	}
	content := string(result.Output)
	if result.SessionID != nil {
		content = fmt.Sprintf("[session_id=%d]\n%s", *result.SessionID, content)
	}
	return &tools.ToolOutput{Content: content, Success: &success}
}

func shellArg(args map[string]interface{}) string {
	if s, ok := args["shell"].(string); ok && s != "" {
		return s
	}
	if s := os.Getenv("SHELL"); s != "" {
		return s
	}
	return "/bin/bash"
}

func boolArgDefault(args map[string]interface{}, key string, def bool) bool {
	v, ok := args[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func intArg(args map[string]interface{}, key string) int {
	v, ok := args[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	}
	return 0
}

func int32Arg(args map[string]interface{}, key string) (int32, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int32(n), true
	case int:
		return int32(n), true
	case int32:
		return n, true
	case int64:
		return int32(n), true
	}
	return 0, false
}
