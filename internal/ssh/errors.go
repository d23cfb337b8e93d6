// internal/ssh/errors.go
package ssh

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionNotFound is returned when a connection id is unknown to
	// the manager (never opened, or already closed/evicted).
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrTimeout is returned when a remote command exceeds its deadline.
	ErrTimeout = errors.New("command execution timed out")
)

// ConnectErrorKind classifies why a connection attempt failed.
type ConnectErrorKind string

const (
	ConnectAuthFailed ConnectErrorKind = "auth_failed"
	ConnectProtocol   ConnectErrorKind = "protocol_error"
	ConnectTimeout    ConnectErrorKind = "timeout"
	ConnectUnknown    ConnectErrorKind = "unknown"
)

// ConnectError is the typed failure returned by Open. Nothing is raised
// past this boundary.
type ConnectError struct {
	Kind ConnectErrorKind
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("ssh connect failed (%s): %v", e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
