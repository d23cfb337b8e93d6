// internal/engine/resolver.go
package engine

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
	"github.com/otium-ai/ops-agent-api-server/internal/store"
)

// Transport is the slice of the SSH connection manager the engine needs.
// *ssh.Manager satisfies it; tests substitute fakes.
type Transport interface {
	Execute(connID, command string, timeout time.Duration) (models.ExecResult, error)
	IsAlive(connID string) bool
	Connections(userID string) []models.Connection
}

// ConnectionResolver maps the connection id a plan was created against to a
// connection that is actually alive right now. Plans outlive connections: a
// user can disconnect and reconnect (getting a new id) between submitting a
// request and approving its steps.
type ConnectionResolver struct {
	transport Transport
	st        store.Store
}

func NewConnectionResolver(transport Transport, st store.Store) *ConnectionResolver {
	return &ConnectionResolver{transport: transport, st: st}
}

// ResolveActive returns a live connection id for the user. The requested id
// wins if it still responds; otherwise the oldest alive connection stands in
// for it. With no alive connection it fails with ErrNoActiveConnection.
func (r *ConnectionResolver) ResolveActive(userID, requestedID string) (string, error) {
	conns := r.transport.Connections(userID)

	var alive []string
	for _, c := range conns {
		if r.transport.IsAlive(c.ID) {
			alive = append(alive, c.ID)
		}
	}

	for _, id := range alive {
		if id == requestedID {
			return id, nil
		}
	}

	if requestedID != "" {
		// The plan's connection is gone; record that so status views stop
		// showing it as connected.
		r.markStale(requestedID)
	}

	if len(alive) > 0 {
		log.Infof("connection '%s' is stale for user '%s', substituting '%s'",
			requestedID, userID, alive[0])
		return alive[0], nil
	}
	return "", ErrNoActiveConnection
}

func (r *ConnectionResolver) markStale(connID string) {
	err := r.st.MarkConnectionDisconnected(connID, time.Now().UTC())
	if err != nil && err != store.ErrNotFound {
		log.Warnf("failed to mark connection '%s' disconnected: %v", connID, err)
	}
}
