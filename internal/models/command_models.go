// internal/models/command_models.go
package models

import "time"

// RiskLevel classifies how destructive a command or plan is expected to be.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// CommandStatus is the top-level lifecycle state of a command plan.
// Transitions only move forward; "rejected" is terminal from pending_approval.
type CommandStatus string

const (
	StatusPendingApproval CommandStatus = "pending_approval"
	StatusApproved        CommandStatus = "approved"
	StatusExecuting       CommandStatus = "executing"
	StatusCompleted       CommandStatus = "completed"
	StatusFailed          CommandStatus = "failed"
	StatusRejected        CommandStatus = "rejected"
)

// StepStatus is the terminal outcome of a single plan step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepError   StepStatus = "error"
	StepSkipped StepStatus = "skipped"
)

// Step is one shell command within a plan. Steps are immutable once the plan
// is generated; mutable per-step state lives in approvals and results.
type Step struct {
	Index         int       `json:"index"`
	Command       string    `json:"command"`
	Explanation   string    `json:"explanation"`
	RiskLevel     RiskLevel `json:"risk_level"`
	EstimatedTime string    `json:"estimated_time,omitempty"`
}

// CommandPlan is one user request and its generated multi-step plan.
type CommandPlan struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	ConnectionID string        `json:"connection_id"`
	Request      string        `json:"request"`
	Intent       string        `json:"intent"`
	Action       string        `json:"action"`
	RiskLevel    RiskLevel     `json:"risk_level"`
	Status       CommandStatus `json:"status"`
	Steps        []Step        `json:"steps"`

	ExecutionResults *ExecutionAggregate `json:"execution_results,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StepApproval is the write-once decision record for one step.
// At most one exists per (command_id, step_index).
type StepApproval struct {
	CommandID  string    `json:"command_id"`
	StepIndex  int       `json:"step_index"`
	Approved   bool      `json:"approved"`
	Reason     string    `json:"reason,omitempty"`
	ApprovedBy string    `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
}

// StepExecutionResult is the outcome of one step that reached a decision.
// Rejected and safety-blocked steps get a result with status "skipped" and
// no execution.
type StepExecutionResult struct {
	StepIndex     int        `json:"step_index"`
	Command       string     `json:"command"`
	Success       bool       `json:"success"`
	Status        StepStatus `json:"status"`
	Stdout        string     `json:"stdout,omitempty"`
	Stderr        string     `json:"stderr,omitempty"`
	Error         string     `json:"error,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	ExitCode      int        `json:"exit_code"`
	ExecutionTime float64    `json:"execution_time_seconds"`
}

// ExecutionAggregate is the rolled-up state across all decided steps of a
// plan. Success stays nil until every step has reached a terminal outcome.
type ExecutionAggregate struct {
	Success            *bool                 `json:"success"`
	TotalSteps         int                   `json:"total_steps"`
	SuccessfulSteps    int                   `json:"successful_steps"`
	FailedSteps        int                   `json:"failed_steps"`
	SkippedSteps       int                   `json:"skipped_steps"`
	TotalExecutionTime float64               `json:"total_execution_time"`
	StepResults        []StepExecutionResult `json:"step_results"`
}

// DecidedSteps is the number of steps with a terminal outcome.
func (a *ExecutionAggregate) DecidedSteps() int {
	return a.SuccessfulSteps + a.FailedSteps + a.SkippedSteps
}

// NewExecutionAggregate returns an empty aggregate for a plan of the given size.
func NewExecutionAggregate(totalSteps int) *ExecutionAggregate {
	return &ExecutionAggregate{
		TotalSteps:  totalSteps,
		StepResults: []StepExecutionResult{},
	}
}

// TaskRequest is the payload for submitting a natural-language request.
type TaskRequest struct {
	Request      string `json:"request" binding:"required"`
	ConnectionID string `json:"connection_id" binding:"required"`
}

// StepApprovalRequest is the payload for deciding a single step.
// Pointers distinguish "absent" from zero values (step 0, approved=false).
type StepApprovalRequest struct {
	StepIndex *int   `json:"step_index" binding:"required"`
	Approved  *bool  `json:"approved" binding:"required"`
	Reason    string `json:"reason,omitempty"`
}

// BatchStepApprovalRequest applies one approve/reject decision to several
// steps in a single call.
type BatchStepApprovalRequest struct {
	StepIndexes []int  `json:"step_indexes" binding:"required"`
	Approved    *bool  `json:"approved" binding:"required"`
	Reason      string `json:"reason,omitempty"`
}

// BatchStepDecision is the result for one index of a batch decision.
// Exactly one of Outcome and Error is set.
type BatchStepDecision struct {
	StepIndex int                  `json:"step_index"`
	Outcome   *StepDecisionOutcome `json:"outcome,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// BatchDecisionResult collects the per-index results of a batch decision
// and the command's status after the whole batch was applied.
type BatchDecisionResult struct {
	CommandID     string              `json:"command_id"`
	Decisions     []BatchStepDecision `json:"decisions"`
	CommandStatus CommandStatus       `json:"command_status"`
}

// StepApprovalInfo describes one step and its decision state for status views.
type StepApprovalInfo struct {
	StepIndex     int        `json:"step_index"`
	Command       string     `json:"command"`
	Explanation   string     `json:"explanation"`
	RiskLevel     RiskLevel  `json:"risk_level"`
	EstimatedTime string     `json:"estimated_time,omitempty"`
	Status        string     `json:"status"`
	Approved      *bool      `json:"approved"`
	ApprovedBy    string     `json:"approved_by,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
}

// ApprovalStatus is the full per-step decision picture for one command.
type ApprovalStatus struct {
	CommandID     string             `json:"command_id"`
	TotalSteps    int                `json:"total_steps"`
	ApprovedSteps int                `json:"approved_steps"`
	RejectedSteps int                `json:"rejected_steps"`
	PendingSteps  int                `json:"pending_steps"`
	CanExecute    bool               `json:"can_execute"`
	Steps         []StepApprovalInfo `json:"steps"`
}

// StepDecisionOutcome summarizes one decideStep call: the step's resolved
// state, whether the whole plan is now fully decided, and the current
// aggregate. Callers never need a second round trip to learn completion.
type StepDecisionOutcome struct {
	CommandID     string               `json:"command_id"`
	StepIndex     int                  `json:"step_index"`
	Decision      string               `json:"decision"`
	StepResult    *StepExecutionResult `json:"step_result,omitempty"`
	FullyDecided  bool                 `json:"fully_decided"`
	CommandStatus CommandStatus        `json:"command_status"`
	Aggregate     *ExecutionAggregate  `json:"execution_results"`
}

// AuditEntry records one user-visible action against a command or connection.
type AuditEntry struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Action       string            `json:"action"`
	Details      map[string]string `json:"details,omitempty"`
	CommandID    string            `json:"command_id,omitempty"`
	ConnectionID string            `json:"connection_id,omitempty"`
	Success      bool              `json:"success"`
	CreatedAt    time.Time         `json:"created_at"`
}

// User is an API account. Passwords are stored as bcrypt hashes.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
