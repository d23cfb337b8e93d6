// internal/api/server.go
package api

import (
	"time"

	"github.com/otium-ai/ops-agent-api-server/internal/agent"
	"github.com/otium-ai/ops-agent-api-server/internal/engine"
	"github.com/otium-ai/ops-agent-api-server/internal/models"
	"github.com/otium-ai/ops-agent-api-server/internal/store"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// SessionManager is the SSH connection surface the handlers use.
// *ssh.Manager satisfies it; tests plug in fakes.
type SessionManager interface {
	Open(userID, hostname string, port int, username, password string) (models.Connection, error)
	Close(connID string) bool
	IsAlive(connID string) bool
	Connections(userID string) []models.Connection
	Execute(connID, command string, timeout time.Duration) (models.ExecResult, error)
}

// SystemDetector summarizes a remote host for plan generation.
type SystemDetector interface {
	Detect(connID string) (models.SystemContext, error)
}

// Server wires the HTTP handlers to the engine and its collaborators.
type Server struct {
	st        store.Store
	sessions  SessionManager
	engine    *engine.Engine
	generator agent.PlanGenerator
	detector  SystemDetector
}

func NewServer(st store.Store, sessions SessionManager, eng *engine.Engine, generator agent.PlanGenerator, detector SystemDetector) *Server {
	return &Server{
		st:        st,
		sessions:  sessions,
		engine:    eng,
		generator: generator,
		detector:  detector,
	}
}
