// Package workflow contains Temporal workflow definitions.
//
// plan.go handles interception of update_plan tool calls. The tool is
// declared in tools.NewUpdatePlanToolSpec but never dispatched as an
// activity: the workflow parses its arguments directly and stores the
// result on SessionState.Plan, where get_turn_status surfaces it.
package workflow

import (
	"encoding/json"
	"fmt"

	"go.temporal.io/sdk/workflow"

	"github.com/stratumhq/stratum-agent/internal/models"
)

// handleUpdatePlan intercepts an update_plan tool call, replaces the
// session's current plan with the submitted steps, and returns a
// FunctionCallOutput acknowledging the update.
func (s *SessionState) handleUpdatePlan(ctx workflow.Context, ctrl *LoopControl, fc models.ConversationItem) (models.ConversationItem, error) {
	logger := workflow.GetLogger(ctx)

	var args struct {
		Explanation string `json:"explanation"`
		Plan        []struct {
			Step   string `json:"step"`
			Status string `json:"status"`
		} `json:"plan"`
	}
	if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
		logger.Warn("Invalid update_plan args", "error", err)
		falseVal := false
		return models.ConversationItem{
			Type:   models.ItemTypeFunctionCallOutput,
			CallID: fc.CallID,
			Output: &models.FunctionCallOutputPayload{
				Content: fmt.Sprintf("Invalid update_plan arguments: %v", err),
				Success: &falseVal,
			},
		}, nil
	}

	if len(args.Plan) == 0 {
		falseVal := false
		return models.ConversationItem{
			Type:   models.ItemTypeFunctionCallOutput,
			CallID: fc.CallID,
			Output: &models.FunctionCallOutputPayload{
				Content: "plan must contain at least one step",
				Success: &falseVal,
			},
		}, nil
	}

	steps := make([]PlanStep, len(args.Plan))
	for i, st := range args.Plan {
		steps[i] = PlanStep{Step: st.Step, Status: st.Status}
	}

	s.Plan = PlanState{
		Explanation: args.Explanation,
		Steps:       steps,
	}
	ctrl.NotifyItemAdded()

	logger.Info("Plan updated", "step_count", len(steps))

	trueVal := true
	return models.ConversationItem{
		Type:   models.ItemTypeFunctionCallOutput,
		CallID: fc.CallID,
		Output: &models.FunctionCallOutputPayload{
			Content: "Plan updated.",
			Success: &trueVal,
		},
	}, nil
}
