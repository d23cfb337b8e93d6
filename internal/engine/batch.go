// internal/engine/batch.go
package engine

import (
	"github.com/charmbracelet/log"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
)

// DecideSteps applies one approve/reject decision to several step indices in
// a single call. Indices go through the same path as single-step decisions,
// in the order given; an index that is out of range, already decided, or
// decided after the plan finalized mid-batch is reported in its own slot
// without aborting the rest. Only an unknown command fails the whole batch.
func (e *Engine) DecideSteps(userID, commandID string, stepIndexes []int, approved bool, reason string) (*models.BatchDecisionResult, error) {
	if _, err := e.loadCommand(commandID, userID); err != nil {
		return nil, err
	}

	result := &models.BatchDecisionResult{CommandID: commandID}
	for _, idx := range stepIndexes {
		outcome, err := e.DecideStep(userID, commandID, idx, approved, reason)
		if err != nil {
			log.Warnf("batch decision on command '%s' step %d: %v", commandID, idx, err)
			result.Decisions = append(result.Decisions, models.BatchStepDecision{StepIndex: idx, Error: err.Error()})
			continue
		}
		result.Decisions = append(result.Decisions, models.BatchStepDecision{StepIndex: idx, Outcome: outcome})
		result.CommandStatus = outcome.CommandStatus
	}

	// Every index may have errored; report the status the command is in now.
	if result.CommandStatus == "" {
		if cmd, err := e.loadCommand(commandID, userID); err == nil {
			result.CommandStatus = cmd.Status
		}
	}
	return result, nil
}
