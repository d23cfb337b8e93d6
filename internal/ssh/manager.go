// internal/ssh/manager.go
package ssh

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	gossh "golang.org/x/crypto/ssh"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
)

const (
	// DefaultPort is assumed when a connect request omits the port.
	DefaultPort = 22

	verifyCommand = `echo "Connection test"`
	probeCommand  = `echo "ping"`
)

// Client is the minimal surface the manager needs from an established SSH
// connection. The real implementation wraps *gossh.Client; tests substitute
// in-memory fakes via the dial function.
type Client interface {
	Exec(command string) (models.ExecResult, error)
	Close() error
}

type realClient struct {
	c *gossh.Client
}

func (r *realClient) Exec(command string) (models.ExecResult, error) {
	session, err := r.c.NewSession()
	if err != nil {
		return models.ExecResult{}, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runErr := session.Run(command)
	result := models.ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr != nil {
		var exitErr *gossh.ExitError
		if errors.As(runErr, &exitErr) {
			// Non-zero exit is a result, not a transport failure.
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return result, fmt.Errorf("failed to run command: %w", runErr)
	}
	return result, nil
}

func (r *realClient) Close() error { return r.c.Close() }

// DialFunc establishes an SSH connection. Overridable in tests.
type DialFunc func(addr string, cfg *gossh.ClientConfig) (Client, error)

func dialSSHConnection(addr string, cfg *gossh.ClientConfig) (Client, error) {
	c, err := gossh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, err
	}
	return &realClient{c: c}, nil
}

// connection pairs a live client with its metadata. execMu serializes
// command execution on the handle; concurrent callers queue rather than
// multiplex over the same channel.
type connection struct {
	info     models.Connection
	client   Client
	lastUsed time.Time

	execMu sync.Mutex
}

// ManagerOptions carries the tunables for a Manager. Zero values fall back
// to sensible defaults.
type ManagerOptions struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	ProbeTimeout   time.Duration
	SweepInterval  time.Duration
	IdleTimeout    time.Duration
}

func (o *ManagerOptions) applyDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 300 * time.Second
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 5 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 60 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 60 * time.Minute
	}
}

// Manager owns all live SSH connections for the process. It hands out
// opaque connection ids and evicts idle connections in the background.
type Manager struct {
	mu    sync.Mutex
	conns map[string]*connection

	dial DialFunc
	opts ManagerOptions

	// onEvict is invoked (outside the manager lock) after the inactivity
	// sweep closes a connection, so callers can mark it disconnected in
	// their own records.
	onEvict func(connID string)

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewManager creates a connection manager and starts its inactivity sweep.
func NewManager(opts ManagerOptions) *Manager {
	opts.applyDefaults()
	m := &Manager{
		conns:      make(map[string]*connection),
		dial:       dialSSHConnection,
		opts:       opts,
		shutdownCh: make(chan struct{}),
	}
	go m.sweepLoop()
	log.Debug("SSH connection manager started",
		"sweepInterval", opts.SweepInterval, "idleTimeout", opts.IdleTimeout)
	return m
}

// SetDialFunc replaces the SSH dialer. Intended for tests.
func (m *Manager) SetDialFunc(dial DialFunc) { m.dial = dial }

// SetEvictHandler registers a callback fired when the sweep closes an idle
// connection.
func (m *Manager) SetEvictHandler(fn func(connID string)) { m.onEvict = fn }

// Open dials the target host, verifies the session with a test command and
// registers the connection under a fresh id. Failures come back as a
// *ConnectError; nothing is raised past this boundary.
func (m *Manager) Open(userID, hostname string, port int, username, password string) (models.Connection, error) {
	if port <= 0 {
		port = DefaultPort
	}
	addr := net.JoinHostPort(hostname, fmt.Sprintf("%d", port))
	cfg := &gossh.ClientConfig{
		User:            username,
		Auth:            []gossh.AuthMethod{gossh.Password(password)},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		Timeout:         m.opts.ConnectTimeout,
	}

	client, err := m.dial(addr, cfg)
	if err != nil {
		log.Warnf("SSH connect to %s@%s failed: %v", username, addr, err)
		return models.Connection{}, classifyDialError(err)
	}

	// A session that dials but cannot run a trivial command is useless;
	// reject it up front instead of failing on the first real step.
	verify, err := runWithTimeout(client, verifyCommand, m.opts.ProbeTimeout)
	if err != nil || verify.ExitCode != 0 {
		client.Close()
		if err == nil {
			err = fmt.Errorf("connection test exited with code %d", verify.ExitCode)
		}
		log.Warnf("SSH connection test to %s@%s failed: %v", username, addr, err)
		return models.Connection{}, &ConnectError{Kind: ConnectProtocol, Err: err}
	}

	now := time.Now().UTC()
	conn := &connection{
		info: models.Connection{
			ID:          uuid.NewString(),
			UserID:      userID,
			Hostname:    hostname,
			Port:        port,
			Username:    username,
			Status:      models.ConnectionConnected,
			ConnectedAt: now,
			LastUsedAt:  now,
		},
		client:   client,
		lastUsed: now,
	}

	m.mu.Lock()
	m.conns[conn.info.ID] = conn
	m.mu.Unlock()

	log.Infof("SSH connection '%s' established for user '%s' (%s@%s)",
		conn.info.ID, userID, username, addr)
	return conn.info, nil
}

// Execute runs a command on an established connection with a hard timeout.
// The connection's exec mutex serializes concurrent callers. A zero timeout
// uses the manager's default command timeout.
func (m *Manager) Execute(connID, command string, timeout time.Duration) (models.ExecResult, error) {
	conn, ok := m.get(connID)
	if !ok {
		return models.ExecResult{}, ErrConnectionNotFound
	}
	if timeout <= 0 {
		timeout = m.opts.CommandTimeout
	}

	conn.execMu.Lock()
	defer conn.execMu.Unlock()

	m.touch(conn)
	return runWithTimeout(conn.client, command, timeout)
}

// IsAlive probes a connection with a lightweight remote echo. It returns
// false for unknown ids rather than an error.
func (m *Manager) IsAlive(connID string) bool {
	conn, ok := m.get(connID)
	if !ok {
		return false
	}

	conn.execMu.Lock()
	defer conn.execMu.Unlock()

	res, err := runWithTimeout(conn.client, probeCommand, m.opts.ProbeTimeout)
	if err != nil || res.ExitCode != 0 {
		return false
	}
	m.touch(conn)
	return true
}

// Close tears down a connection. It reports whether the id was live, so a
// second call is a harmless no-op returning false.
func (m *Manager) Close(connID string) bool {
	m.mu.Lock()
	conn, ok := m.conns[connID]
	if ok {
		delete(m.conns, connID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	conn.execMu.Lock()
	conn.client.Close()
	conn.execMu.Unlock()
	log.Infof("SSH connection '%s' closed", connID)
	return true
}

// Get returns the current metadata for a connection.
func (m *Manager) Get(connID string) (models.Connection, bool) {
	conn, ok := m.get(connID)
	if !ok {
		return models.Connection{}, false
	}
	m.mu.Lock()
	info := conn.info
	info.LastUsedAt = conn.lastUsed
	m.mu.Unlock()
	return info, true
}

// Connections lists the live connections owned by a user, oldest first.
func (m *Manager) Connections(userID string) []models.Connection {
	m.mu.Lock()
	out := make([]models.Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		if conn.info.UserID == userID {
			info := conn.info
			info.LastUsedAt = conn.lastUsed
			out = append(out, info)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectedAt.Before(out[j].ConnectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AliveConnections probes each of a user's connections and returns the ids
// that respond, in the same stable order as Connections.
func (m *Manager) AliveConnections(userID string) []string {
	var alive []string
	for _, info := range m.Connections(userID) {
		if m.IsAlive(info.ID) {
			alive = append(alive, info.ID)
		}
	}
	return alive
}

// Shutdown stops the sweep goroutine and closes every live connection.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() { close(m.shutdownCh) })

	m.mu.Lock()
	conns := make([]*connection, 0, len(m.conns))
	for id, conn := range m.conns {
		conns = append(conns, conn)
		delete(m.conns, id)
	}
	m.mu.Unlock()

	for _, conn := range conns {
		conn.execMu.Lock()
		conn.client.Close()
		conn.execMu.Unlock()
	}
	log.Info("SSH connection manager shut down", "closed", len(conns))
}

func (m *Manager) get(connID string) (*connection, bool) {
	m.mu.Lock()
	conn, ok := m.conns[connID]
	m.mu.Unlock()
	return conn, ok
}

func (m *Manager) touch(conn *connection) {
	m.mu.Lock()
	conn.lastUsed = time.Now().UTC()
	m.mu.Unlock()
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweepIdle()
		case <-m.shutdownCh:
			return
		}
	}
}

func (m *Manager) sweepIdle() {
	cutoff := time.Now().UTC().Add(-m.opts.IdleTimeout)

	m.mu.Lock()
	var stale []*connection
	for _, conn := range m.conns {
		if conn.lastUsed.Before(cutoff) {
			stale = append(stale, conn)
		}
	}
	m.mu.Unlock()

	for _, conn := range stale {
		// Waiting on execMu means an in-flight command postpones eviction;
		// the next sweep picks the connection up again if it stays idle.
		conn.execMu.Lock()
		m.mu.Lock()
		idle := conn.lastUsed.Before(cutoff)
		if idle {
			delete(m.conns, conn.info.ID)
		}
		m.mu.Unlock()
		if idle {
			conn.client.Close()
		}
		conn.execMu.Unlock()

		if idle {
			log.Infof("SSH connection '%s' evicted after %s of inactivity",
				conn.info.ID, m.opts.IdleTimeout)
			if m.onEvict != nil {
				m.onEvict(conn.info.ID)
			}
		}
	}
}

// runWithTimeout executes a command in its own goroutine and abandons it at
// the deadline. The abandoned goroutine drains into the buffered channel so
// it never leaks a blocked send.
func runWithTimeout(c Client, command string, timeout time.Duration) (models.ExecResult, error) {
	type outcome struct {
		res models.ExecResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := c.Exec(command)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-time.After(timeout):
		return models.ExecResult{}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

func classifyDialError(err error) *ConnectError {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "permission denied"):
		return &ConnectError{Kind: ConnectAuthFailed, Err: err}
	case isTimeoutErr(err):
		return &ConnectError{Kind: ConnectTimeout, Err: err}
	case strings.Contains(msg, "handshake failed"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no route to host"):
		return &ConnectError{Kind: ConnectProtocol, Err: err}
	default:
		return &ConnectError{Kind: ConnectUnknown, Err: err}
	}
}

func isTimeoutErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "i/o timeout")
}
