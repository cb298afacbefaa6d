package models

import "github.com/stratumhq/stratum-agent/internal/mcp"

// ModelConfig configures the LLM model parameters
//
type ModelConfig struct {
	Provider      string  `json:"provider,omitempty"` // "anthropic", "openai"
	Model         string  `json:"model"`          // e.g., "gpt-3.5-turbo", "gpt-4"
	Temperature   float64 `json:"temperature"`    // 0.0 to 2.0
	MaxTokens     int     `json:"max_tokens"`     // Max tokens to generate
	ContextWindow int     `json:"context_window"` // Max context window size
}

// DefaultModelConfig returns a sensible default configuration
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Provider:      "openai",
		Model:         "gpt-4o-mini",
		Temperature:   0.7,
		MaxTokens:     4096,
		ContextWindow: 128000,
	}
}

// ToolsConfig configures which tools are enabled
//
type ToolsConfig struct {
	EnableShell    bool `json:"enable_shell"`
	EnableReadFile bool `json:"enable_read_file"`
	EnableWriteFile  bool `json:"enable_write_file,omitempty"`  // Built-in write_file tool
	EnableListDir    bool `json:"enable_list_dir,omitempty"`    // Built-in list_dir tool
	EnableGrepFiles  bool `json:"enable_grep_files,omitempty"`  // Built-in grep_files tool
	EnableApplyPatch bool `json:"enable_apply_patch,omitempty"` // Built-in apply_patch tool
	EnableUpdatePlan bool `json:"enable_update_plan,omitempty"` // Built-in update_plan tool
	EnableCollab     bool `json:"enable_collab,omitempty"`      // Built-in request_user_input tool

	// EnableUnifiedExec exposes the interactive exec_command/write_stdin
	// pair: commands run in a PTY session that can outlive the tool call
	// and accept further stdin in later calls.
	EnableUnifiedExec bool `json:"enable_unified_exec,omitempty"`

	// ShellCommandVariant selects the "shell_command" tool variant (structured
	// argv + workdir) over the default freeform "shell" tool.
	ShellCommandVariant bool `json:"shell_command_variant,omitempty"`
}

// DefaultToolsConfig returns default tools configuration
func DefaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		EnableShell:      true,
		EnableReadFile:   true,
		EnableWriteFile:  true,
		EnableListDir:    true,
		EnableGrepFiles:  true,
		EnableApplyPatch: true,
	}
}

// SessionConfiguration configures a complete agentic session.
//
type SessionConfiguration struct {
	// Instructions hierarchy (maps to a three-tier instruction hierarchy)
	BaseInstructions      string `json:"base_instructions,omitempty"`      // Core system prompt for the model
	DeveloperInstructions string `json:"developer_instructions,omitempty"` // Developer overrides (sent as developer message)
	UserInstructions      string `json:"user_instructions,omitempty"`      // Project docs (AGENTS.md content)

	// Model configuration
	Model ModelConfig `json:"model"`

	// Tool configuration
	Tools ToolsConfig `json:"tools"`

	// Execution context
	Cwd string `json:"cwd,omitempty"` // Working directory for tool execution

	// ApprovalMode governs when a tool call is suspended for user approval.
	ApprovalMode ApprovalMode `json:"approval_mode,omitempty"`

	// Session metadata
	SessionSource string `json:"session_source,omitempty"` // "cli", "api", "exec" for logging/tracking

	// AgentHome is the base directory for per-user agent state ($AGENT_HOME,
	// default ~/.stratum): exec policy rules, personal instructions, rollout
	// archive, feedback capture.
	AgentHome string `json:"agent_home,omitempty"`

	// SessionTaskQueue routes this session's tool/LLM activities to a
	// dedicated Temporal task queue (multi-host worker routing), falling
	// back to the worker's default queue when empty.
	SessionTaskQueue string `json:"session_task_queue,omitempty"`

	// ExecPolicyRules is the serialized .rules source loaded from
	// AgentHome/rules at harness resolution time, passed down so a fresh
	// AgenticWorkflow doesn't need to re-load it from disk on every turn.
	ExecPolicyRules string `json:"exec_policy_rules,omitempty"`

	// SandboxMode selects the SandboxBackend policy: "full-access",
	// "read-only", or "workspace-write".
	SandboxMode string `json:"sandbox_mode,omitempty"`

	// SandboxWritableRoots lists additional writable roots for
	// workspace-write mode, beyond Cwd.
	SandboxWritableRoots []string `json:"sandbox_writable_roots,omitempty"`

	// SandboxNetworkAccess allows network access inside the sandbox when true.
	SandboxNetworkAccess bool `json:"sandbox_network_access,omitempty"`

	// DisableSuggestions turns off post-turn prompt suggestions.
	DisableSuggestions bool `json:"disable_suggestions,omitempty"`

	// DisableGhostCommit turns off the pre-apply ghost snapshots apply_patch
	// captures (and with them undo support). Snapshots also require a
	// non-empty AgentHome to store under.
	DisableGhostCommit bool `json:"disable_ghost_commit,omitempty"`

	// McpServers configures the MCP servers to connect for this session,
	// keyed by server name.
	McpServers map[string]mcp.McpServerConfig `json:"mcp_servers,omitempty"`

	// AutoCompactTokenLimit triggers proactive history compaction once the
	// prompt's token estimate exceeds this value. Zero disables proactive
	// compaction (compaction still happens reactively on context overflow).
	AutoCompactTokenLimit int `json:"auto_compact_token_limit,omitempty"`

	// CLIProjectDocs carries AGENTS.md-equivalent content discovered by the
	// CLI's own working directory scan, used when the worker's own scan
	// (WorkerProjectDocs) finds nothing.
	CLIProjectDocs string `json:"cli_project_docs,omitempty"`

	// UserPersonalInstructions carries ~/.stratum/instructions.md content,
	// always appended to the merged user-tier instructions.
	UserPersonalInstructions string `json:"user_personal_instructions,omitempty"`
}

// DefaultSessionConfiguration returns sensible defaults.
func DefaultSessionConfiguration() SessionConfiguration {
	return SessionConfiguration{
		Model:        DefaultModelConfig(),
		Tools:        DefaultToolsConfig(),
		ApprovalMode: ApprovalUnlessTrusted,
	}
}
