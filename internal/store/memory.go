// internal/store/memory.go
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
)

// MemoryStore keeps all records in process memory. It is the default
// backend and the one unit tests run against.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]*models.User // keyed by username
	connections map[string]*models.Connection
	commands    map[string]*models.CommandPlan
	approvals   map[string]map[int]*models.StepApproval // command id -> step index
	audit       []*models.AuditEntry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*models.User),
		connections: make(map[string]*models.Connection),
		commands:    make(map[string]*models.CommandPlan),
		approvals:   make(map[string]map[int]*models.StepApproval),
	}
}

func (s *MemoryStore) CreateUser(u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.Username]; exists {
		return ErrDuplicate
	}
	clone := *u
	s.users[u.Username] = &clone
	return nil
}

func (s *MemoryStore) GetUserByUsername(username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *MemoryStore) CountUsers() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *MemoryStore) SaveConnection(c *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *c
	s.connections[c.ID] = &clone
	return nil
}

func (s *MemoryStore) GetConnection(id string) (*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *MemoryStore) ListConnectionsByUser(userID string) ([]models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.Connection, 0)
	for _, c := range s.connections {
		if c.UserID == userID {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ConnectedAt.Equal(result[j].ConnectedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].ConnectedAt.Before(result[j].ConnectedAt)
	})
	return result, nil
}

func (s *MemoryStore) MarkConnectionDisconnected(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = models.ConnectionDisconnected
	c.DisconnectedAt = &at
	return nil
}

func (s *MemoryStore) CreateCommand(cmd *models.CommandPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.commands[cmd.ID]; exists {
		return ErrDuplicate
	}
	s.commands[cmd.ID] = copyCommand(cmd)
	return nil
}

func (s *MemoryStore) GetCommand(id, userID string) (*models.CommandPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cmd, ok := s.commands[id]
	if !ok || cmd.UserID != userID {
		return nil, ErrNotFound
	}
	return copyCommand(cmd), nil
}

func (s *MemoryStore) ListCommandsByUser(userID string) ([]models.CommandPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.CommandPlan, 0)
	for _, cmd := range s.commands {
		if cmd.UserID == userID {
			result = append(result, *copyCommand(cmd))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) UpdateCommandStatus(id string, status models.CommandStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.commands[id]
	if !ok {
		return ErrNotFound
	}
	cmd.Status = status
	stampStatus(cmd, status, at)
	return nil
}

func (s *MemoryStore) UpdateExecutionResults(id string, agg *models.ExecutionAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.commands[id]
	if !ok {
		return ErrNotFound
	}
	cmd.ExecutionResults = copyAggregate(agg)
	return nil
}

func (s *MemoryStore) CreateStepApproval(a *models.StepApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byStep, ok := s.approvals[a.CommandID]
	if !ok {
		byStep = make(map[int]*models.StepApproval)
		s.approvals[a.CommandID] = byStep
	}
	if _, exists := byStep[a.StepIndex]; exists {
		return ErrDuplicate
	}
	clone := *a
	byStep[a.StepIndex] = &clone
	return nil
}

func (s *MemoryStore) ListStepApprovals(commandID string) ([]models.StepApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byStep := s.approvals[commandID]
	result := make([]models.StepApproval, 0, len(byStep))
	for _, a := range byStep {
		result = append(result, *a)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StepIndex < result[j].StepIndex
	})
	return result, nil
}

func (s *MemoryStore) AppendAudit(e *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *e
	s.audit = append(s.audit, &clone)
	return nil
}

// AuditEntries returns a snapshot of the audit log, newest last. Only used
// by tests and diagnostics.
func (s *MemoryStore) AuditEntries() []models.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.AuditEntry, 0, len(s.audit))
	for _, e := range s.audit {
		result = append(result, *e)
	}
	return result
}

func (s *MemoryStore) Close() error { return nil }

// stampStatus records the timestamp matching a status transition.
func stampStatus(cmd *models.CommandPlan, status models.CommandStatus, at time.Time) {
	switch status {
	case models.StatusApproved:
		if cmd.ApprovedAt == nil {
			t := at
			cmd.ApprovedAt = &t
		}
	case models.StatusExecuting:
		if cmd.ExecutedAt == nil {
			t := at
			cmd.ExecutedAt = &t
		}
	case models.StatusCompleted, models.StatusFailed, models.StatusRejected:
		if cmd.CompletedAt == nil {
			t := at
			cmd.CompletedAt = &t
		}
	}
}

func copyCommand(cmd *models.CommandPlan) *models.CommandPlan {
	clone := *cmd
	clone.Steps = append([]models.Step(nil), cmd.Steps...)
	clone.ExecutionResults = copyAggregate(cmd.ExecutionResults)
	return &clone
}

func copyAggregate(agg *models.ExecutionAggregate) *models.ExecutionAggregate {
	if agg == nil {
		return nil
	}
	clone := *agg
	clone.StepResults = append([]models.StepExecutionResult(nil), agg.StepResults...)
	if agg.Success != nil {
		v := *agg.Success
		clone.Success = &v
	}
	return &clone
}
