// Package rollout persists a conversation's event stream as an append-only
// line-delimited JSON journal, one file per conversation under
// $AGENT_HOME/sessions/<yyyy>/<mm>/<dd>/rollout-<ts>-<id>.jsonl.
//
// The first line of every file is a header record; every subsequent line is
// one Event. Files are written by the CLI as it drains the workflow's item
// stream and read back for resume, listing, and replay into Turn/ThreadItem
// structures for UI reconstruction.
package rollout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EventType discriminates the variants of an Event.
type EventType string

const (
	EventSessionMeta        EventType = "session_meta"
	EventUserMessage        EventType = "user_message"
	EventAgentMessage       EventType = "agent_message"
	EventAgentReasoning     EventType = "agent_reasoning"
	EventFunctionCall       EventType = "function_call"
	EventFunctionCallOutput EventType = "function_call_output"
	EventTaskStarted        EventType = "task_started"
	EventTaskComplete       EventType = "task_complete"
	EventTurnAborted        EventType = "turn_aborted"
	EventTokenCount         EventType = "token_count"
	EventError              EventType = "error"

	// Per-kind tool lifecycle events, mirrored from the workflow's marker
	// items. An End always follows its Begin with the same call_id.
	EventExecCommandBegin EventType = "exec_command_begin"
	EventExecCommandEnd   EventType = "exec_command_end"
	EventPatchApplyBegin  EventType = "patch_apply_begin"
	EventPatchApplyEnd    EventType = "patch_apply_end"
	EventMcpToolCallBegin EventType = "mcp_tool_call_begin"
	EventMcpToolCallEnd   EventType = "mcp_tool_call_end"
	EventWebSearchBegin   EventType = "web_search_begin"
	EventWebSearchEnd     EventType = "web_search_end"

	// EventUndoCompleted reports the outcome of an undo request.
	EventUndoCompleted EventType = "undo_completed"
)

// Header is the first record of a rollout file.
type Header struct {
	ConversationID string `json:"conversation_id"`
	ModelProvider  string `json:"model_provider,omitempty"`
	Cwd            string `json:"cwd,omitempty"`
	CLIVersion     string `json:"cli_version,omitempty"`
	Source         string `json:"source,omitempty"` // "cli", "tui", "ide"
}

// Event is one journaled line. Only the fields relevant to Type are
// populated; the rest are zero.
type Event struct {
	Type EventType `json:"type"`

	// TurnID associates the event with the turn that produced it.
	TurnID string `json:"turn_id,omitempty"`

	// Content carries message text (user_message, agent_message, error) or
	// the abort reason for turn_aborted.
	Content string `json:"content,omitempty"`

	// Summary carries reasoning summary lines for agent_reasoning.
	Summary []string `json:"summary,omitempty"`

	// CallID/Name/Arguments populate function_call; CallID/Output populate
	// function_call_output.
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
	Success   *bool  `json:"success,omitempty"`

	// ExitCode populates exec_command_end when the runtime reported a
	// process exit status.
	ExitCode *int `json:"exit_code,omitempty"`

	// TotalTokens populates token_count.
	TotalTokens int `json:"total_tokens,omitempty"`
}

const (
	sessionsDir = "sessions"
	archivedDir = "archived"

	// filenameTimeLayout is the timestamp prefix embedded in rollout
	// filenames. Lexicographic order on the basename equals chronological
	// order, which listing relies on.
	filenameTimeLayout = "20060102T150405Z"
)

// Filename returns the rollout basename for a conversation started at ts.
func Filename(ts time.Time, conversationID string) string {
	return fmt.Sprintf("rollout-%s-%s.jsonl", ts.UTC().Format(filenameTimeLayout), conversationID)
}

// FilePath returns the full journal path for a conversation started at ts,
// partitioned by date under agentHome/sessions.
func FilePath(agentHome string, ts time.Time, conversationID string) string {
	u := ts.UTC()
	return filepath.Join(agentHome, sessionsDir,
		fmt.Sprintf("%04d", u.Year()),
		fmt.Sprintf("%02d", int(u.Month())),
		fmt.Sprintf("%02d", u.Day()),
		Filename(u, conversationID))
}

// ParseFilename extracts the timestamp and conversation id from a rollout
// basename. Returns ok=false for names that are not rollout files.
func ParseFilename(base string) (ts time.Time, conversationID string, ok bool) {
	name := strings.TrimSuffix(base, ".jsonl")
	if name == base || !strings.HasPrefix(name, "rollout-") {
		return time.Time{}, "", false
	}
	rest := name[len("rollout-"):]
	i := strings.Index(rest, "-")
	if i < 0 {
		return time.Time{}, "", false
	}
	ts, err := time.Parse(filenameTimeLayout, rest[:i])
	if err != nil {
		return time.Time{}, "", false
	}
	id := rest[i+1:]
	if id == "" {
		return time.Time{}, "", false
	}
	return ts, id, true
}

// DefaultAgentHome resolves $AGENT_HOME, defaulting to ~/.stratum.
func DefaultAgentHome() string {
	if home := os.Getenv("AGENT_HOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".stratum"
	}
	return filepath.Join(userHome, ".stratum")
}
