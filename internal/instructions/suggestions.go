package instructions

import (
	"fmt"
	"strings"
)

// SuggestionSystemPrompt is the system prompt for the follow-up suggestion
// model. It asks for exactly one short next-step prompt, with no framing the
// CLI would have to strip.
const SuggestionSystemPrompt = `You suggest the user's next prompt to a coding agent.
Given the latest exchange, reply with exactly one short follow-up prompt the user is likely to want next.
Rules:
- One line, at most 12 words, imperative voice.
- No quotes, no numbering, no explanation, no trailing punctuation.
- If no useful follow-up exists, reply with an empty string.`

// BuildSuggestionInput formats the last exchange into the user message sent
// to the suggestion model.
func BuildSuggestionInput(userMessage, assistantMessage string, toolSummaries []string) string {
	var b strings.Builder
	if userMessage != "" {
		fmt.Fprintf(&b, "User asked:\n%s\n\n", userMessage)
	}
	if len(toolSummaries) > 0 {
		fmt.Fprintf(&b, "Tools used: %s\n\n", strings.Join(toolSummaries, ", "))
	}
	if assistantMessage != "" {
		fmt.Fprintf(&b, "Agent replied:\n%s\n", assistantMessage)
	}
	return strings.TrimSpace(b.String())
}

// FormatToolSummary renders one tool invocation for the suggestion input.
func FormatToolSummary(name string, success bool) string {
	if success {
		return name
	}
	return name + " (failed)"
}

// ParseSuggestionResponse normalizes the model's reply into a single clean
// suggestion line, stripping quoting and list markers models tend to add
// despite the prompt. Returns "" when the reply is unusable.
func ParseSuggestionResponse(content string) string {
	line := content
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	line = strings.Trim(line, `"'`)
	for _, prefix := range []string{"- ", "* ", "1. ", "1) "} {
		line = strings.TrimPrefix(line, prefix)
	}
	line = strings.TrimSpace(line)
	if len(line) > 120 {
		return ""
	}
	return line
}

// SuggestionModelForProvider picks the cheap model used for suggestion
// generation, staying within the provider the session already uses so no
// extra credentials are needed.
func SuggestionModelForProvider(provider string) (model, resolvedProvider string) {
	switch provider {
	case "anthropic":
		return "claude-3-5-haiku-latest", "anthropic"
	default:
		return "gpt-4o-mini", "openai"
	}
}
