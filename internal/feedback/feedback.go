// Package feedback captures crash-feedback records for local, opt-in
// inspection. Nothing in this package transmits a record anywhere: every
// record is appended to a file under $AGENT_HOME/feedback/ and stays there
// until a human reads or ships it manually, matching the constraint that
// "errors never include secrets" and are never transmitted automatically.
package feedback

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/stratumhq/stratum-agent/internal/version"
)

const feedbackDirName = "feedback"

// Record is a single crash-feedback entry.
type Record struct {
	Timestamp      time.Time         `json:"timestamp"`
	ConversationID string            `json:"conversation_id,omitempty"`
	CallID         string            `json:"call_id,omitempty"`
	ToolName       string            `json:"tool_name,omitempty"`
	Kind           string            `json:"kind"` // "panic" | "spawn_error"
	Message        string            `json:"message"`
	RedactedInput  map[string]string `json:"redacted_input,omitempty"`
	WorkerVersion  string            `json:"worker_version"`
}

// secretLikePattern matches argument values that look like tokens, keys, or
// passwords, so redact() can mask them before a record is written to disk.
var secretLikePattern = regexp.MustCompile(`(?i)(key|token|secret|password|bearer)`)

// redact masks values of keys that look secret-bearing. It never inspects
// the command itself — only named argument keys the caller supplies — since
// the core can't know which bytes of an arbitrary shell command are
// sensitive.
func redact(fields map[string]string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if secretLikePattern.MatchString(k) {
			out[k] = "[redacted]"
			continue
		}
		out[k] = v
	}
	return out
}

// dirFor returns $AGENT_HOME/feedback, defaulting AGENT_HOME to ~/.stratum
// when agentHome is empty (matching the convention used throughout
// internal/workflow and internal/execpolicy).
func dirFor(agentHome string) (string, error) {
	if agentHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("feedback: resolve home directory: %w", err)
		}
		agentHome = filepath.Join(home, ".stratum")
	}
	return filepath.Join(agentHome, feedbackDirName), nil
}

// Capture appends a feedback record to today's feedback file. Failures to
// write are returned to the caller, which may log or ignore them — feedback
// capture is best-effort diagnostic tooling, never load-bearing for the turn
// it describes.
func Capture(agentHome string, rec Record) error {
	dir, err := dirFor(agentHome)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("feedback: create feedback directory: %w", err)
	}

	rec.RedactedInput = redact(rec.RedactedInput)
	if rec.WorkerVersion == "" {
		rec.WorkerVersion = version.GitCommit
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	filename := rec.Timestamp.Format("2006-01-02") + ".jsonl"
	path := filepath.Join(dir, filename)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("feedback: open feedback file: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("feedback: encode record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("feedback: write record: %w", err)
	}
	return nil
}

// RecordPanic builds and captures a Record for a recovered panic, e.g. one
// caught inside a tool activity's handler invocation.
func RecordPanic(agentHome, conversationID, callID, toolName string, recovered interface{}) error {
	return Capture(agentHome, Record{
		ConversationID: conversationID,
		CallID:         callID,
		ToolName:       toolName,
		Kind:           "panic",
		Message:        fmt.Sprintf("%v", recovered),
	})
}

// RecordSpawnFailure builds and captures a Record for a ToolError{Spawn}:
// the process could not even be launched (missing binary, permission
// denied, exhausted resources).
func RecordSpawnFailure(agentHome, conversationID, callID, toolName string, cause error, args map[string]string) error {
	return Capture(agentHome, Record{
		ConversationID: conversationID,
		CallID:         callID,
		ToolName:       toolName,
		Kind:           "spawn_error",
		Message:        cause.Error(),
		RedactedInput:  args,
	})
}
