package cli

import (
	"time"

	"github.com/stratumhq/stratum-agent/internal/models"
)

const (
	TaskQueue         = "stratum-agent"
	PollInterval      = 200 * time.Millisecond
	MaxTextareaHeight = 10 // Maximum height for multi-line input
)

// State represents the CLI state machine state. Shared between the plain
// REPL (App) and the full-screen TUI (Model).
type State int

const (
	StateStartup State = iota
	StateInput
	StateWatching
	StateApproval          // Waiting for user to approve/deny tool calls
	StateEscalation        // Waiting for user to approve/deny sandbox escalation
	StateUserInputQuestion // Waiting for user to answer an agent question (TUI only)
	StateShutdown
)

// Config holds CLI configuration, shared by both frontends.
type Config struct {
	TemporalHost string
	Session      string // Resume existing session (workflow ID)
	Message      string // Initial message for new workflow
	Model        string
	Provider     string // LLM provider (openai, anthropic)
	NoMarkdown   bool
	NoColor      bool
	EnableShell   bool
	EnableRead    bool
	EnableUnified bool // exec_command/write_stdin interactive PTY pair
	Cwd          string
	ApprovalMode models.ApprovalMode

	// Sandbox settings
	SandboxMode          string   // "full-access", "read-only", "workspace-write"
	SandboxWritableRoots []string // Writable roots for workspace-write mode
	SandboxNetworkAccess bool     // Whether network is allowed

	// Agent home config
	AgentHome string // Path to agent config directory (default: ~/.stratum)

	// Instruction sources (populated by CLI main)
	CLIProjectDocs           string // AGENTS.md from CLI's local project
	UserPersonalInstructions string // From ~/.stratum/instructions.md

	// DisableSuggestions turns off follow-up suggestion generation.
	DisableSuggestions bool

	// TUI settings
	Inline bool // Disable alt-screen mode
}
