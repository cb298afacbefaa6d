// Interactive CLI for stratum-agent workflows.
//
// A line-oriented REPL that connects to a Temporal workflow, shows
// conversation items as they appear, and lets you type follow-up messages.
// For the full-screen TUI, use tcx instead.
//
// Usage:
//
//	cli -m "hello"                    Start new session with initial message
//	cli                               Start new session, enter input immediately
//	cli --session <id>               Resume existing session
//	cli -m "hello" --model gpt-4o    Use a specific model
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stratumhq/stratum-agent/internal/cli"
	"github.com/stratumhq/stratum-agent/internal/models"
)

func main() {
	message := flag.String("m", "", "Initial message (starts new workflow)")
	message2 := flag.String("message", "", "Initial message (alias for -m)")
	session := flag.String("session", "", "Resume existing session")
	workflowID := flag.String("workflow-id", "", "Resume existing session (alias for --session)")
	model := flag.String("model", "gpt-4o-mini", "LLM model to use")
	provider := flag.String("provider", "", "LLM provider (openai, anthropic)")
	temporalHost := flag.String("temporal-host", "", "Temporal server address (overrides envconfig/env vars)")
	noMarkdown := flag.Bool("no-markdown", false, "Disable markdown rendering")
	noColor := flag.Bool("no-color", false, "Disable colored output")
	enableShell := flag.Bool("enable-shell", true, "Enable shell tool")
	enableRead := flag.Bool("enable-read-file", true, "Enable read_file tool")
	enableUnified := flag.Bool("enable-unified-exec", false, "Enable interactive exec_command/write_stdin tools")
	fullAuto := flag.Bool("full-auto", false, "Auto-approve all tool calls without prompting")
	approvalMode := flag.String("approval-mode", "", "Approval mode: unless-trusted, never, on-failure, on-request")
	sandboxMode := flag.String("sandbox", "", "Sandbox mode: full-access, read-only, workspace-write")
	sandboxWritable := flag.String("sandbox-writable", "", "Comma-separated writable roots for workspace-write sandbox")
	sandboxNetwork := flag.Bool("sandbox-network", true, "Allow network access in sandbox")
	agentHome := flag.String("agent-home", "", "Path to agent config directory (default: ~/.stratum)")
	flag.Parse()

	// Support both -m and --message
	msg := *message
	if msg == "" {
		msg = *message2
	}

	// Support both --session and --workflow-id (backward compat)
	sess := *session
	if sess == "" {
		sess = *workflowID
	}

	var resolvedApproval models.ApprovalMode
	switch {
	case *approvalMode != "":
		resolvedApproval = models.ApprovalMode(*approvalMode)
	case *fullAuto:
		resolvedApproval = models.ApprovalNever
	default:
		resolvedApproval = models.ApprovalUnlessTrusted
	}

	var writableRoots []string
	if *sandboxWritable != "" {
		for _, root := range strings.Split(*sandboxWritable, ",") {
			root = strings.TrimSpace(root)
			if root != "" {
				writableRoots = append(writableRoots, root)
			}
		}
	}

	cwd, _ := os.Getwd()

	configDir := *agentHome
	if configDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configDir = filepath.Join(home, ".stratum")
		}
	}

	config := cli.Config{
		TemporalHost:         *temporalHost,
		Session:              sess,
		Message:              msg,
		Model:                *model,
		Provider:             *provider,
		NoMarkdown:           *noMarkdown,
		NoColor:              *noColor,
		EnableShell:          *enableShell,
		EnableRead:           *enableRead,
		EnableUnified:        *enableUnified,
		Cwd:                  cwd,
		ApprovalMode:         resolvedApproval,
		SandboxMode:          *sandboxMode,
		SandboxWritableRoots: writableRoots,
		SandboxNetworkAccess: *sandboxNetwork,
		AgentHome:            configDir,
	}

	app := cli.NewApp(config)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
