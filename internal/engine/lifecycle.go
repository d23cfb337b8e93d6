// internal/engine/lifecycle.go
package engine

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
)

// statusRank orders the forward-only lifecycle. rejected shares the top
// rank with the other terminal states so nothing can leave it.
func statusRank(s models.CommandStatus) int {
	switch s {
	case models.StatusPendingApproval:
		return 0
	case models.StatusApproved:
		return 1
	case models.StatusExecuting:
		return 2
	case models.StatusCompleted, models.StatusFailed, models.StatusRejected:
		return 3
	default:
		return -1
	}
}

// advanceStatus moves the command forward to the given status. Backward
// transitions are silently ignored, so a late approval of step 3 cannot
// pull an executing command back to approved.
func (e *Engine) advanceStatus(cmd *models.CommandPlan, to models.CommandStatus) {
	if statusRank(to) <= statusRank(cmd.Status) {
		return
	}
	if err := e.st.UpdateCommandStatus(cmd.ID, to, time.Now().UTC()); err != nil {
		log.Errorf("failed to update command '%s' status to %s: %v", cmd.ID, to, err)
		return
	}
	cmd.Status = to
}

// RejectCommand rejects a whole plan before any step has been decided. It
// is only valid from pending_approval; once step decisions start arriving
// the plan resolves step by step instead.
func (e *Engine) RejectCommand(userID, commandID, reason string) (*models.CommandPlan, error) {
	cmd, err := e.loadCommand(commandID, userID)
	if err != nil {
		return nil, err
	}
	if cmd.Status != models.StatusPendingApproval {
		return nil, fmt.Errorf("%w (current status: %s)", ErrCommandNotPending, cmd.Status)
	}

	if err := e.st.UpdateCommandStatus(commandID, models.StatusRejected, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to reject command '%s': %w", commandID, err)
	}
	cmd.Status = models.StatusRejected

	e.audit(userID, "command_rejected", commandID, cmd.ConnectionID, true, map[string]string{
		"reason": reason,
	})
	log.Infof("command '%s' rejected by user '%s'", commandID, userID)
	return cmd, nil
}
