package handlers

import (
	"context"
	"os"

	"github.com/stratumhq/stratum-agent/internal/tools"
	"github.com/stratumhq/stratum-agent/internal/tools/patch"
)

// ApplyPatchTool applies structured file patches.
//
type ApplyPatchTool struct{}

// NewApplyPatchTool creates a new apply_patch tool handler.
func NewApplyPatchTool() *ApplyPatchTool {
	return &ApplyPatchTool{}
}

// Name returns the tool's name.
func (t *ApplyPatchTool) Name() string {
	return "apply_patch"
}

// Kind returns ToolKindFunction.
func (t *ApplyPatchTool) Kind() tools.ToolKind {
	return tools.ToolKindFunction
}

// IsMutating returns true - apply_patch always modifies the environment.
//
func (t *ApplyPatchTool) IsMutating(invocation *tools.ToolInvocation) bool {
	return true
}

// Handle parses the patch from the "input" argument and applies it to the filesystem.
//
func (t *ApplyPatchTool) Handle(_ context.Context, invocation *tools.ToolInvocation) (*tools.ToolOutput, error) {
	inputArg, ok := invocation.Arguments["input"]
	if !ok {
		return nil, tools.NewValidationError("missing required argument: input")
	}

	input, ok := inputArg.(string)
	if !ok {
		return nil, tools.NewValidationError("input must be a string")
	}

	if input == "" {
		return nil, tools.NewValidationError("input cannot be empty")
	}

	// Resolve relative paths against the invocation cwd, falling back to
	// the process working directory.
	cwd := invocation.Cwd
	if cwd == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			success := false
			return &tools.ToolOutput{
				Content: "Failed to determine working directory: " + err.Error(),
				Success: &success,
			}, nil
		}
	}

	// Ghost snapshot: capture affected files before writing so the turn can
	// be undone. One snapshot per turn; repeated patches merge into it.
	snapshotDir := ""
	if invocation.CaptureSnapshot && invocation.AgentHome != "" &&
		invocation.ConversationID != "" && invocation.TurnID != "" {
		snapshotDir = patch.SnapshotDir(invocation.AgentHome, invocation.ConversationID, invocation.TurnID)
	}

	result, err := patch.ApplyWithSnapshot(input, cwd, snapshotDir)
	if err != nil {
		success := false
		return &tools.ToolOutput{
			Content: err.Error(),
			Success: &success,
		}, nil
	}

	success := true
	return &tools.ToolOutput{
		Content:      result,
		Success:      &success,
		SnapshotPath: snapshotDir,
	}, nil
}
