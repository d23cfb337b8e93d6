// internal/models/ssh_models.go
package models

import "time"

// ConnectionStatus is the lifecycle state of a logical SSH connection.
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// Connection is a logical SSH session handle. A connection is never
// resurrected: reconnecting creates a new id.
type Connection struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	Hostname       string           `json:"hostname"`
	Username       string           `json:"username"`
	Port           int              `json:"port"`
	Status         ConnectionStatus `json:"status"`
	ConnectedAt    time.Time        `json:"connected_at"`
	LastUsedAt     time.Time        `json:"last_used_at"`
	DisconnectedAt *time.Time       `json:"disconnected_at,omitempty"`
}

// ExecResult is the raw outcome of running one command over a transport.
type ExecResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// ConnectRequest is the payload for opening a new SSH connection.
type ConnectRequest struct {
	Hostname string `json:"hostname" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Port     int    `json:"port,omitempty"`
}

// ConnectResponse is returned after a successful connect.
type ConnectResponse struct {
	ConnectionID string `json:"connection_id"`
	Hostname     string `json:"hostname"`
	Username     string `json:"username"`
	Port         int    `json:"port"`
}
