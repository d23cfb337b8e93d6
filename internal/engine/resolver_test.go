// internal/engine/resolver_test.go
package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
	"github.com/otium-ai/ops-agent-api-server/internal/store"
)

func TestResolveActivePrefersRequestedConnection(t *testing.T) {
	st := store.NewMemoryStore()
	transport := newFakeTransport()
	base := time.Now()
	transport.addConn("older", "u1", true, base)
	transport.addConn("requested", "u1", true, base.Add(time.Minute))

	r := NewConnectionResolver(transport, st)
	id, err := r.ResolveActive("u1", "requested")
	require.NoError(t, err)
	require.Equal(t, "requested", id)
}

func TestResolveActiveSubstitutesOldestAlive(t *testing.T) {
	st := store.NewMemoryStore()
	transport := newFakeTransport()
	base := time.Now()
	transport.addConn("gone", "u1", false, base)
	transport.addConn("second", "u1", true, base.Add(2*time.Minute))
	transport.addConn("first", "u1", true, base.Add(time.Minute))
	require.NoError(t, st.SaveConnection(&models.Connection{
		ID: "gone", UserID: "u1", Status: models.ConnectionConnected, ConnectedAt: base,
	}))

	r := NewConnectionResolver(transport, st)
	id, err := r.ResolveActive("u1", "gone")
	require.NoError(t, err)
	require.Equal(t, "first", id)

	conn, err := st.GetConnection("gone")
	require.NoError(t, err)
	require.Equal(t, models.ConnectionDisconnected, conn.Status)
}

func TestResolveActiveIgnoresOtherUsersConnections(t *testing.T) {
	st := store.NewMemoryStore()
	transport := newFakeTransport()
	transport.addConn("theirs", "u2", true, time.Now())

	r := NewConnectionResolver(transport, st)
	_, err := r.ResolveActive("u1", "theirs")
	require.ErrorIs(t, err, ErrNoActiveConnection)
}

func TestResolveActiveNoConnections(t *testing.T) {
	st := store.NewMemoryStore()
	transport := newFakeTransport()

	r := NewConnectionResolver(transport, st)
	_, err := r.ResolveActive("u1", "anything")
	require.ErrorIs(t, err, ErrNoActiveConnection)
}
