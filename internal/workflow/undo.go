// undo.go restores ghost snapshots captured by apply_patch, one turn at a
// time, newest first.
package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/stratumhq/stratum-agent/internal/activities"
	"github.com/stratumhq/stratum-agent/internal/models"
)

// noSnapshotMessage is reported when undo is requested past the oldest
// retained snapshot.
const noSnapshotMessage = "No ghost snapshot available to undo"

// handleUndo pops the most recent snapshot turn, restores it via the
// RestoreSnapshot activity, and records an UndoCompleted history item either
// way. Restore failures are reported to the caller, never escalated into a
// workflow failure.
func (s *SessionState) handleUndo(ctx workflow.Context, ctrl *LoopControl) (UndoResponse, error) {
	logger := workflow.GetLogger(ctx)

	if len(s.SnapshotTurns) == 0 {
		s.recordUndoCompleted(ctrl, false, noSnapshotMessage)
		return UndoResponse{Success: false, Message: noSnapshotMessage}, nil
	}
	turnID := s.SnapshotTurns[len(s.SnapshotTurns)-1]

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	if s.Config.SessionTaskQueue != "" {
		actOpts.TaskQueue = s.Config.SessionTaskQueue
	}
	actCtx := workflow.WithActivityOptions(ctx, actOpts)

	input := activities.RestoreSnapshotInput{
		AgentHome:      s.Config.AgentHome,
		ConversationID: s.ConversationID,
		TurnID:         turnID,
	}
	var out activities.RestoreSnapshotOutput
	if err := workflow.ExecuteActivity(actCtx, "RestoreSnapshot", input).Get(ctx, &out); err != nil {
		logger.Error("Undo failed", "turn_id", turnID, "error", err)
		msg := "Undo failed: " + err.Error()
		s.recordUndoCompleted(ctrl, false, msg)
		return UndoResponse{Success: false, Message: msg}, nil
	}

	// The snapshot is consumed; the previous one becomes the next target.
	s.SnapshotTurns = s.SnapshotTurns[:len(s.SnapshotTurns)-1]

	logger.Info("Undo completed", "turn_id", turnID, "files_restored", out.FilesRestored)
	msg := "Restored " + turnID
	s.recordUndoCompleted(ctrl, true, msg)
	return UndoResponse{Success: true, Message: msg}, nil
}

// recordUndoCompleted appends the UndoCompleted history item for the UI and
// the journal.
func (s *SessionState) recordUndoCompleted(ctrl *LoopControl, success bool, message string) {
	_ = s.History.AddItem(models.ConversationItem{
		Type:    models.ItemTypeUndoCompleted,
		Content: message,
		Output: &models.FunctionCallOutputPayload{
			Content: message,
			Success: &success,
		},
	})
	ctrl.NotifyItemAdded()
}
