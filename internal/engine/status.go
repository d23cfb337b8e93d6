// internal/engine/status.go
package engine

import (
	"fmt"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
)

// ApprovalStatusFor builds the per-step decision picture for one command:
// which steps are decided, by whom, and whether every step has an answer.
func (e *Engine) ApprovalStatusFor(userID, commandID string) (*models.ApprovalStatus, error) {
	cmd, err := e.loadCommand(commandID, userID)
	if err != nil {
		return nil, err
	}

	approvals, err := e.st.ListStepApprovals(commandID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals for '%s': %w", commandID, err)
	}
	byIndex := make(map[int]models.StepApproval, len(approvals))
	for _, a := range approvals {
		byIndex[a.StepIndex] = a
	}

	status := &models.ApprovalStatus{
		CommandID:  commandID,
		TotalSteps: len(cmd.Steps),
		Steps:      make([]models.StepApprovalInfo, 0, len(cmd.Steps)),
	}
	for _, step := range cmd.Steps {
		info := models.StepApprovalInfo{
			StepIndex:     step.Index,
			Command:       step.Command,
			Explanation:   step.Explanation,
			RiskLevel:     step.RiskLevel,
			EstimatedTime: step.EstimatedTime,
			Status:        "pending",
		}
		if a, ok := byIndex[step.Index]; ok {
			approved := a.Approved
			at := a.ApprovedAt
			info.Approved = &approved
			info.ApprovedBy = a.ApprovedBy
			info.Reason = a.Reason
			info.ApprovedAt = &at
			if approved {
				info.Status = "approved"
				status.ApprovedSteps++
			} else {
				info.Status = "rejected"
				status.RejectedSteps++
			}
		} else {
			status.PendingSteps++
		}
		status.Steps = append(status.Steps, info)
	}

	status.CanExecute = status.PendingSteps == 0 && status.ApprovedSteps > 0
	return status, nil
}
