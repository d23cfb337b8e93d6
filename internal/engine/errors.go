// internal/engine/errors.go
package engine

import "errors"

var (
	// ErrCommandNotFound is returned when a command id does not exist for
	// the requesting user.
	ErrCommandNotFound = errors.New("command not found")

	// ErrInvalidStepIndex is returned when a step index falls outside the
	// plan's step range.
	ErrInvalidStepIndex = errors.New("invalid step index")

	// ErrStepAlreadyDecided is returned on a second decision for the same
	// (command, step). Decisions are write-once; callers re-posting an
	// approval get this error rather than a silent retry.
	ErrStepAlreadyDecided = errors.New("step already decided")

	// ErrCommandFinalized is returned when a step decision arrives for a
	// plan already in a terminal state (completed, failed or rejected).
	ErrCommandFinalized = errors.New("command is no longer awaiting step decisions")

	// ErrCommandNotPending is returned when a whole-plan rejection targets
	// a command that has left pending_approval.
	ErrCommandNotPending = errors.New("command is not pending approval")

	// ErrNoActiveConnection is returned when no live SSH connection exists
	// for the user. The client should reconnect and try again.
	ErrNoActiveConnection = errors.New("no active ssh connection")
)
