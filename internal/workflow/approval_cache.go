package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// escalationRejection is the model-facing refusal for a tool call that asks
// for escalated permissions when the approval policy can never grant them.
const escalationRejection = "approval policy is Never; reject command — you should not ask for escalated permissions if the approval policy is Never"

// ApprovalCache remembers approved-for-session command fingerprints so a
// command the user has already blessed is not re-prompted within the same
// conversation. Denials and aborts are never cached. The cache lives on
// SessionState and is serialized across ContinueAsNew.
//
type ApprovalCache struct {
	Fingerprints map[string]bool `json:"fingerprints,omitempty"`
}

// NewApprovalCache creates an empty cache.
func NewApprovalCache() *ApprovalCache {
	return &ApprovalCache{Fingerprints: make(map[string]bool)}
}

// IsApproved reports whether the fingerprint was approved for this session.
func (c *ApprovalCache) IsApproved(fingerprint string) bool {
	if c == nil {
		return false
	}
	return c.Fingerprints[fingerprint]
}

// Remember marks a fingerprint as approved for the rest of the session.
func (c *ApprovalCache) Remember(fingerprint string) {
	if c == nil {
		return
	}
	if c.Fingerprints == nil {
		c.Fingerprints = make(map[string]bool)
	}
	c.Fingerprints[fingerprint] = true
}

// commandFingerprint normalizes a tool call into the cache key. Shell-style
// calls are keyed by their whitespace-collapsed command so cosmetic
// re-spacing still hits the cache; everything else is keyed by tool name
// plus raw arguments.
func commandFingerprint(toolName, arguments string) string {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(arguments), &args); err == nil {
		switch toolName {
		case "shell":
			if cmd, ok := args["command"].(string); ok {
				return "shell:" + strings.Join(strings.Fields(cmd), " ")
			}
		case "exec_command":
			if cmd, ok := args["cmd"].(string); ok {
				return "exec_command:" + strings.Join(strings.Fields(cmd), " ")
			}
		case "shell_command":
			if argv, ok := args["command"].([]interface{}); ok {
				parts := make([]string, 0, len(argv))
				for _, a := range argv {
					if s, ok := a.(string); ok {
						parts = append(parts, s)
					}
				}
				return "shell_command:" + strings.Join(parts, " ")
			}
		}
	}
	return fmt.Sprintf("%s:%s", toolName, arguments)
}

// requestsEscalation reports whether the tool call's arguments carry
// with_escalated_permissions=true.
func requestsEscalation(arguments string) bool {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return false
	}
	escalated, _ := args["with_escalated_permissions"].(bool)
	return escalated
}
