// internal/api/helpers.go
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/otium-ai/ops-agent-api-server/internal/engine"
	"github.com/otium-ai/ops-agent-api-server/internal/models"
)

// respondEngineError maps engine errors onto HTTP status codes: validation
// failures are 400, unknown ids 404, conflicts with current state 409.
func respondEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrCommandNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Command not found"})
	case errors.Is(err, engine.ErrInvalidStepIndex):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, engine.ErrStepAlreadyDecided):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "Step has already been decided"})
	case errors.Is(err, engine.ErrCommandFinalized):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "Command is already in a terminal state"})
	case errors.Is(err, engine.ErrCommandNotPending):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, engine.ErrNoActiveConnection):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "No active SSH connection, please reconnect"})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}

// ownsConnection reports whether the connection id belongs to the user.
// Ids from other users look the same as unknown ids to the caller.
func (s *Server) ownsConnection(userID, connID string) bool {
	for _, conn := range s.sessions.Connections(userID) {
		if conn.ID == connID {
			return true
		}
	}
	return false
}

// recordAudit appends a best-effort audit entry for connection-level actions.
func (s *Server) recordAudit(userID, action, connectionID string, success bool, details map[string]string) {
	entry := &models.AuditEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Action:       action,
		Details:      details,
		ConnectionID: connectionID,
		Success:      success,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.st.AppendAudit(entry); err != nil {
		log.Warnf("failed to append audit entry for action '%s': %v", action, err)
	}
}
