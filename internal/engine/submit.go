// internal/engine/submit.go
package engine

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
)

// CreateCommand persists a freshly generated plan in pending_approval,
// assigning its id and normalizing step indexes. A plan with no steps has
// nothing to decide and is stored already completed with a successful
// empty aggregate.
func (e *Engine) CreateCommand(cmd *models.CommandPlan) (*models.CommandPlan, error) {
	cmd.ID = uuid.NewString()
	cmd.CreatedAt = time.Now().UTC()
	cmd.Status = models.StatusPendingApproval
	for i := range cmd.Steps {
		cmd.Steps[i].Index = i
	}

	if len(cmd.Steps) == 0 {
		cmd.Status = models.StatusCompleted
		now := cmd.CreatedAt
		cmd.CompletedAt = &now
		agg := models.NewExecutionAggregate(0)
		ok := true
		agg.Success = &ok
		cmd.ExecutionResults = agg
	}

	if err := e.st.CreateCommand(cmd); err != nil {
		return nil, fmt.Errorf("failed to persist command: %w", err)
	}

	e.audit(cmd.UserID, "command_submitted", cmd.ID, cmd.ConnectionID, true, map[string]string{
		"steps":      fmt.Sprintf("%d", len(cmd.Steps)),
		"risk_level": string(cmd.RiskLevel),
	})
	log.Infof("command '%s' created for user '%s' with %d steps (risk: %s)",
		cmd.ID, cmd.UserID, len(cmd.Steps), cmd.RiskLevel)
	return cmd, nil
}
