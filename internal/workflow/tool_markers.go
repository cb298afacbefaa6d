package workflow

import (
	"strings"

	"github.com/stratumhq/stratum-agent/internal/models"
)

// toolMarkerTypes returns the begin/end lifecycle marker types for a tool,
// or ok=false for tools with no lifecycle surface (plain reads, tools the
// workflow intercepts without dispatching).
func toolMarkerTypes(toolName string) (begin, end models.ConversationItemType, ok bool) {
	switch {
	case strings.HasPrefix(toolName, "mcp__"):
		return models.ItemTypeMcpToolCallBegin, models.ItemTypeMcpToolCallEnd, true
	case toolName == "shell" || toolName == "shell_command" ||
		toolName == "exec_command" || toolName == "write_stdin":
		return models.ItemTypeExecCommandBegin, models.ItemTypeExecCommandEnd, true
	case toolName == "apply_patch" || toolName == "write_file":
		return models.ItemTypePatchApplyBegin, models.ItemTypePatchApplyEnd, true
	case toolName == "web_search":
		return models.ItemTypeWebSearchBegin, models.ItemTypeWebSearchEnd, true
	}
	return "", "", false
}

// recordToolBeginMarkers appends a lifecycle Begin marker for each call that
// has one, immediately before dispatch.
func (s *SessionState) recordToolBeginMarkers(ctrl *LoopControl, calls []models.ConversationItem) {
	for _, fc := range calls {
		begin, _, ok := toolMarkerTypes(fc.Name)
		if !ok {
			continue
		}
		_ = s.History.AddItem(models.ConversationItem{
			Type:      begin,
			TurnID:    ctrl.CurrentTurnID(),
			CallID:    fc.CallID,
			Name:      fc.Name,
			Arguments: fc.Arguments,
		})
		ctrl.NotifyItemAdded()
	}
}
