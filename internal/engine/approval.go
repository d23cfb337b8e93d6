// internal/engine/approval.go
package engine

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
	"github.com/otium-ai/ops-agent-api-server/internal/safety"
	"github.com/otium-ai/ops-agent-api-server/internal/store"
)

// Engine processes step-approval decisions end-to-end: it records the
// decision, executes approved steps immediately over SSH, folds the result
// into the command's aggregate and advances the command lifecycle.
type Engine struct {
	st        store.Store
	transport Transport
	gate      *safety.Gate
	resolver  *ConnectionResolver
	agg       *Aggregator

	commandTimeout time.Duration
}

func NewEngine(st store.Store, transport Transport, gate *safety.Gate, commandTimeout time.Duration) *Engine {
	if commandTimeout <= 0 {
		commandTimeout = 300 * time.Second
	}
	return &Engine{
		st:             st,
		transport:      transport,
		gate:           gate,
		resolver:       NewConnectionResolver(transport, st),
		agg:            NewAggregator(st),
		commandTimeout: commandTimeout,
	}
}

// DecideStep applies one approve/reject decision to a single step.
//
// The decision is write-once: a second call for the same step fails with
// ErrStepAlreadyDecided. Rejections are recorded and resolve the step as
// skipped with no execution. Approvals execute the step synchronously;
// every execution failure (stale connection, safety block, non-zero exit,
// transport error, timeout) becomes a recorded StepExecutionResult rather
// than an error return.
func (e *Engine) DecideStep(userID, commandID string, stepIndex int, approved bool, reason string) (*models.StepDecisionOutcome, error) {
	return e.decideStepAs(userID, userID, commandID, stepIndex, approved, reason)
}

// decideStepAs is DecideStep with an explicit deciding actor, which is the
// literal "system" for auto-approved steps.
func (e *Engine) decideStepAs(actor, userID, commandID string, stepIndex int, approved bool, reason string) (*models.StepDecisionOutcome, error) {
	cmd, err := e.loadCommand(commandID, userID)
	if err != nil {
		return nil, err
	}
	switch cmd.Status {
	case models.StatusCompleted, models.StatusFailed, models.StatusRejected:
		return nil, ErrCommandFinalized
	}

	if stepIndex < 0 || stepIndex >= len(cmd.Steps) {
		return nil, fmt.Errorf("%w: %d (plan has %d steps)", ErrInvalidStepIndex, stepIndex, len(cmd.Steps))
	}
	step := cmd.Steps[stepIndex]

	// Persisting the approval doubles as the already-decided check: the
	// store enforces uniqueness on (command_id, step_index).
	approval := &models.StepApproval{
		CommandID:  commandID,
		StepIndex:  stepIndex,
		Approved:   approved,
		Reason:     reason,
		ApprovedBy: actor,
		ApprovedAt: time.Now().UTC(),
	}
	if err := e.st.CreateStepApproval(approval); err != nil {
		if err == store.ErrDuplicate {
			return nil, ErrStepAlreadyDecided
		}
		return nil, fmt.Errorf("failed to record step approval: %w", err)
	}

	decision := "rejected"
	var result models.StepExecutionResult
	if approved {
		decision = "approved"
		e.advanceStatus(cmd, models.StatusApproved)
		e.advanceStatus(cmd, models.StatusExecuting)
		result = e.executeStep(userID, cmd, step)
	} else {
		skipReason := reason
		if skipReason == "" {
			skipReason = "rejected by user"
		}
		result = models.StepExecutionResult{
			StepIndex: stepIndex,
			Command:   step.Command,
			Status:    models.StepSkipped,
			Reason:    skipReason,
		}
	}

	agg, err := e.agg.Apply(commandID, userID, result)
	if err != nil {
		return nil, err
	}

	status := e.finalizeIfDecided(cmd, agg)
	e.audit(userID, "step_"+decision, commandID, cmd.ConnectionID, result.Status != models.StepFailed && result.Status != models.StepError, map[string]string{
		"step_index":  fmt.Sprintf("%d", stepIndex),
		"step_status": string(result.Status),
		"decided_by":  actor,
	})
	log.Infof("step %d of command '%s' %s by '%s' (status: %s)",
		stepIndex, commandID, decision, actor, result.Status)

	return &models.StepDecisionOutcome{
		CommandID:     commandID,
		StepIndex:     stepIndex,
		Decision:      decision,
		StepResult:    &result,
		FullyDecided:  agg.DecidedSteps() == agg.TotalSteps,
		CommandStatus: status,
		Aggregate:     agg,
	}, nil
}

// executeStep runs one approved step. All failure modes come back as data.
func (e *Engine) executeStep(userID string, cmd *models.CommandPlan, step models.Step) models.StepExecutionResult {
	result := models.StepExecutionResult{
		StepIndex: step.Index,
		Command:   step.Command,
	}

	connID, err := e.resolver.ResolveActive(userID, cmd.ConnectionID)
	if err != nil {
		result.Status = models.StepError
		result.Error = "SSH session expired"
		return result
	}

	if dangerous, pattern := e.gate.IsDangerous(step.Command); dangerous {
		log.Warnf("blocked dangerous command for user '%s': %q matched %q",
			userID, step.Command, pattern)
		result.Status = models.StepSkipped
		result.Reason = fmt.Sprintf("blocked by safety policy: matched %q", pattern)
		return result
	}

	start := time.Now()
	res, err := e.transport.Execute(connID, step.Command, e.commandTimeout)
	result.ExecutionTime = time.Since(start).Seconds()
	if err != nil {
		result.Status = models.StepError
		result.Error = err.Error()
		return result
	}

	result.Stdout = res.Stdout
	result.Stderr = res.Stderr
	result.ExitCode = res.ExitCode
	if res.ExitCode == 0 {
		result.Status = models.StepSuccess
		result.Success = true
	} else {
		result.Status = models.StepFailed
	}
	return result
}

// finalizeIfDecided moves the command to its terminal status once every
// step has an outcome, and returns the status the command is in now.
func (e *Engine) finalizeIfDecided(cmd *models.CommandPlan, agg *models.ExecutionAggregate) models.CommandStatus {
	if agg.DecidedSteps() != agg.TotalSteps || agg.Success == nil {
		return cmd.Status
	}
	// completed is reserved for plans where every step ran and succeeded;
	// a rejected or safety-skipped step leaves the plan failed even though
	// the aggregate's success flag only tracks execution failures.
	final := models.StatusFailed
	if *agg.Success && agg.SkippedSteps == 0 {
		final = models.StatusCompleted
	}
	e.advanceStatus(cmd, final)
	e.agg.Forget(cmd.ID)
	return cmd.Status
}

func (e *Engine) loadCommand(commandID, userID string) (*models.CommandPlan, error) {
	cmd, err := e.st.GetCommand(commandID, userID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrCommandNotFound
		}
		return nil, fmt.Errorf("failed to load command '%s': %w", commandID, err)
	}
	return cmd, nil
}

func (e *Engine) audit(userID, action, commandID, connectionID string, success bool, details map[string]string) {
	entry := &models.AuditEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Action:       action,
		Details:      details,
		CommandID:    commandID,
		ConnectionID: connectionID,
		Success:      success,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.st.AppendAudit(entry); err != nil {
		log.Warnf("failed to append audit entry for action '%s': %v", action, err)
	}
}
