// internal/store/store.go
package store

import (
	"errors"
	"time"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint would be violated,
	// notably a second approval for the same (command_id, step_index).
	ErrDuplicate = errors.New("record already exists")
)

// Store is the persistence boundary for the approval/execution engine.
// The engine requires read-after-write consistency within one logical
// operation; both implementations provide it.
type Store interface {
	// Users
	CreateUser(u *models.User) error
	GetUserByUsername(username string) (*models.User, error)
	CountUsers() (int, error)

	// Connections
	SaveConnection(c *models.Connection) error
	GetConnection(id string) (*models.Connection, error)
	ListConnectionsByUser(userID string) ([]models.Connection, error)
	MarkConnectionDisconnected(id string, at time.Time) error

	// Command plans
	CreateCommand(cmd *models.CommandPlan) error
	GetCommand(id, userID string) (*models.CommandPlan, error)
	ListCommandsByUser(userID string) ([]models.CommandPlan, error)
	UpdateCommandStatus(id string, status models.CommandStatus, at time.Time) error
	UpdateExecutionResults(id string, agg *models.ExecutionAggregate) error

	// Step approvals: write-once per (command_id, step_index).
	CreateStepApproval(a *models.StepApproval) error
	ListStepApprovals(commandID string) ([]models.StepApproval, error)

	// Audit log
	AppendAudit(e *models.AuditEntry) error

	Close() error
}
