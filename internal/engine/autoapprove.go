// internal/engine/autoapprove.go
package engine

import (
	"errors"

	"github.com/charmbracelet/log"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
	"github.com/otium-ai/ops-agent-api-server/internal/safety"
)

// SystemActor is recorded as the approver of auto-approved steps.
const SystemActor = "system"

// AutoApproveSafeSteps approves and executes every step of a fresh plan
// that is a low-risk read-only diagnostic, recording "system" as the
// approver. Anything mutating, privileged, or not provably read-only is
// left pending for a human. Returns the decisions it made.
func (e *Engine) AutoApproveSafeSteps(userID, commandID string) ([]models.StepDecisionOutcome, error) {
	cmd, err := e.loadCommand(commandID, userID)
	if err != nil {
		return nil, err
	}

	var outcomes []models.StepDecisionOutcome
	for _, step := range cmd.Steps {
		if step.RiskLevel != models.RiskLow || !safety.IsSafeReadOnly(step.Command) {
			continue
		}
		outcome, err := e.decideStepAs(SystemActor, userID, commandID, step.Index, true, "auto-approved read-only command")
		if err != nil {
			// A human decision beat us to this step; leave it be.
			if errors.Is(err, ErrStepAlreadyDecided) || errors.Is(err, ErrCommandFinalized) {
				continue
			}
			return outcomes, err
		}
		log.Infof("auto-approved step %d of command '%s' (%s)", step.Index, commandID, step.Command)
		outcomes = append(outcomes, *outcome)
	}
	return outcomes, nil
}
