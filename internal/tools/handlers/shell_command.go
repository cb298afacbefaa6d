package handlers

import (
	"context"

	"github.com/stratumhq/stratum-agent/internal/command_safety"
	"github.com/stratumhq/stratum-agent/internal/sandbox"
	"github.com/stratumhq/stratum-agent/internal/tools"
)

// ShellCommandTool executes an argv array directly, without shell
// interpretation. The structured counterpart of ShellTool.
//
type ShellCommandTool struct {
	inner *ShellTool
}

// NewShellCommandTool creates a shell_command handler backed by the same
// sandbox manager as the given shell tool.
func NewShellCommandTool(mgr sandbox.SandboxManager) *ShellCommandTool {
	return &ShellCommandTool{inner: &ShellTool{sandboxMgr: mgr}}
}

// Name returns the tool's name.
func (t *ShellCommandTool) Name() string {
	return "shell_command"
}

// Kind returns ToolKindFunction.
func (t *ShellCommandTool) Kind() tools.ToolKind {
	return tools.ToolKindFunction
}

// IsMutating returns true if the command might modify the environment.
func (t *ShellCommandTool) IsMutating(invocation *tools.ToolInvocation) bool {
	argv, err := argvFromInvocation(invocation)
	if err != nil || len(argv) == 0 {
		return true
	}
	return !command_safety.IsKnownSafeCommand(argv)
}

// Handle executes the argv array through the shared shell execution path.
func (t *ShellCommandTool) Handle(ctx context.Context, invocation *tools.ToolInvocation) (*tools.ToolOutput, error) {
	argv, err := argvFromInvocation(invocation)
	if err != nil {
		return nil, err
	}

	cwd := invocation.Cwd
	if workdir, ok := invocation.Arguments["workdir"].(string); ok && workdir != "" {
		cwd = workdir
	}

	spec := sandbox.CommandSpec{
		Program: argv[0],
		Args:    argv[1:],
		Cwd:     cwd,
	}
	return t.inner.runSpec(ctx, invocation, spec)
}

// argvFromInvocation extracts the command argv array from the invocation
// arguments. JSON decoding hands us []interface{}; each element must be a
// non-empty program/argument string.
func argvFromInvocation(invocation *tools.ToolInvocation) ([]string, error) {
	raw, ok := invocation.Arguments["command"]
	if !ok {
		return nil, tools.NewValidationError("missing required argument: command")
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, tools.NewValidationError("command must be an array of strings")
	}
	if len(list) == 0 {
		return nil, tools.NewValidationError("command cannot be empty")
	}
	argv := make([]string, len(list))
	for i, elem := range list {
		s, ok := elem.(string)
		if !ok {
			return nil, tools.NewValidationError("command must be an array of strings")
		}
		argv[i] = s
	}
	if argv[0] == "" {
		return nil, tools.NewValidationError("command program cannot be empty")
	}
	return argv, nil
}
