package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/stratumhq/stratum-agent/internal/models"
)

// ANSI color codes for the line-oriented REPL renderer. Renderer.color
// returns "" for all of them when color is disabled.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorFaint  = "\033[2m"
)

// maxOutputLines bounds tool output in the REPL before truncation.
const maxOutputLines = 20

// Renderer writes conversation items as plain terminal lines. The REPL
// counterpart of ItemRenderer: output goes straight to a writer instead of
// a viewport, and color is raw ANSI instead of lipgloss styles.
type Renderer struct {
	out        io.Writer
	noColor    bool
	noMarkdown bool
	mdRenderer *glamour.TermRenderer
}

// NewRenderer creates a REPL renderer writing to out.
func NewRenderer(out io.Writer, noColor, noMarkdown bool) *Renderer {
	r := &Renderer{out: out, noColor: noColor, noMarkdown: noMarkdown}
	if !noMarkdown {
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(100),
		)
		if err == nil {
			r.mdRenderer = md
		}
	}
	return r
}

// color returns the ANSI code, or "" when color is disabled.
func (r *Renderer) color(c string) string {
	if r.noColor {
		return ""
	}
	return c
}

// RenderItem writes one live conversation item and reports whether anything
// was written. User messages are skipped live: readline already echoed them.
func (r *Renderer) RenderItem(item models.ConversationItem) bool {
	return r.render(item, false)
}

// RenderItemForResume writes one item while replaying history, including
// user messages.
func (r *Renderer) RenderItemForResume(item models.ConversationItem) bool {
	return r.render(item, true)
}

func (r *Renderer) render(item models.ConversationItem, isResume bool) bool {
	switch item.Type {
	case models.ItemTypeTurnStarted:
		fmt.Fprintf(r.out, "%s── Turn %s ──%s\n", r.color(colorFaint), item.TurnID, r.color(colorReset))
		return true

	case models.ItemTypeUserMessage:
		if !isResume {
			return false
		}
		fmt.Fprintf(r.out, "%s> %s%s\n", r.color(colorCyan), item.Content, r.color(colorReset))
		return true

	case models.ItemTypeAssistantMessage:
		return r.renderAssistantMessage(item.Content)

	case models.ItemTypeFunctionCall:
		fmt.Fprintf(r.out, "%s• %s%s %s\n",
			r.color(colorYellow), item.Name, r.color(colorReset),
			formatApprovalDetail(item.Name, item.Arguments))
		return true

	case models.ItemTypeFunctionCallOutput:
		return r.renderOutput(item)

	case models.ItemTypeUndoCompleted:
		if item.Content == "" {
			return false
		}
		fmt.Fprintf(r.out, "%s%s%s\n", r.color(colorFaint), item.Content, r.color(colorReset))
		return true

	default:
		// Turn-complete, lifecycle markers, and other non-visual items.
		return false
	}
}

func (r *Renderer) renderAssistantMessage(content string) bool {
	if content == "" {
		return false
	}
	if r.mdRenderer != nil {
		if rendered, err := r.mdRenderer.Render(content); err == nil {
			fmt.Fprint(r.out, rendered)
			return true
		}
	}
	fmt.Fprint(r.out, "\n"+content+"\n\n")
	return true
}

func (r *Renderer) renderOutput(item models.ConversationItem) bool {
	if item.Output == nil {
		return false
	}
	isFailure := item.Output.Success != nil && !*item.Output.Success
	lineColor := colorFaint
	if isFailure {
		lineColor = colorRed
	}

	content := strings.TrimRight(item.Output.Content, "\n")
	if content == "" {
		fmt.Fprintf(r.out, "  └ %s(no output)%s\n", r.color(lineColor), r.color(colorReset))
		return true
	}

	lines := strings.Split(content, "\n")
	omitted := 0
	if len(lines) > maxOutputLines {
		omitted = len(lines) - maxOutputLines
		lines = lines[:maxOutputLines]
	}
	for i, line := range lines {
		prefix := "    "
		if i == 0 {
			prefix = "  └ "
		}
		fmt.Fprintf(r.out, "%s%s%s%s\n", prefix, r.color(lineColor), line, r.color(colorReset))
	}
	if omitted > 0 {
		fmt.Fprintf(r.out, "    %s... (%d more lines)%s\n", r.color(colorFaint), omitted, r.color(colorReset))
	}
	return true
}

// RenderStatusLine writes the model/token/turn status footer.
func (r *Renderer) RenderStatusLine(model string, totalTokens, turnCount int) {
	fmt.Fprintf(r.out, "%s[%s | %s tokens | turn %d]%s\n",
		r.color(colorFaint), model, formatTokens(totalTokens), turnCount, r.color(colorReset))
}
