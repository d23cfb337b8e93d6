// internal/api/connection_handlers.go
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
	"github.com/otium-ai/ops-agent-api-server/internal/safety"
	"github.com/otium-ai/ops-agent-api-server/internal/ssh"
)

// ConnectHandler opens a new SSH connection for the authenticated user.
func (s *Server) ConnectHandler(c *gin.Context) {
	userID := c.GetString("userID")
	username := c.GetString("username")

	var req models.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Connect failed for user '%s': Invalid request body: %v", username, err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	if !safety.IsValidHostname(req.Hostname) {
		log.Warnf("Connect failed for user '%s': Invalid hostname '%s'", username, req.Hostname)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid hostname"})
		return
	}
	if req.Port == 0 {
		req.Port = ssh.DefaultPort
	}
	if !safety.IsValidPort(req.Port) {
		log.Warnf("Connect failed for user '%s': Invalid port %d", username, req.Port)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid port"})
		return
	}

	conn, err := s.sessions.Open(userID, req.Hostname, req.Port, req.Username, req.Password)
	if err != nil {
		s.recordAudit(userID, "ssh_connect", "", false, map[string]string{
			"hostname": req.Hostname,
		})
		var connErr *ssh.ConnectError
		if errors.As(err, &connErr) && connErr.Kind == ssh.ConnectAuthFailed {
			log.Infof("Connect failed for user '%s': SSH authentication to %s@%s rejected",
				username, req.Username, req.Hostname)
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "SSH authentication failed"})
			return
		}
		log.Warnf("Connect failed for user '%s': %v", username, err)
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "Failed to establish SSH connection"})
		return
	}

	if err := s.st.SaveConnection(&conn); err != nil {
		log.Errorf("Connect succeeded for user '%s' but saving the record failed: %v", username, err)
		s.sessions.Close(conn.ID)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to record connection"})
		return
	}

	s.recordAudit(userID, "ssh_connect", conn.ID, true, map[string]string{
		"hostname": req.Hostname,
	})
	c.JSON(http.StatusCreated, models.ConnectResponse{
		ConnectionID: conn.ID,
		Hostname:     conn.Hostname,
		Username:     conn.Username,
		Port:         conn.Port,
	})
}

// ListConnectionsHandler lists the user's connections, oldest first.
func (s *Server) ListConnectionsHandler(c *gin.Context) {
	userID := c.GetString("userID")

	conns, err := s.st.ListConnectionsByUser(userID)
	if err != nil {
		log.Errorf("ListConnections failed for user '%s': %v", c.GetString("username"), err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to list connections"})
		return
	}
	c.JSON(http.StatusOK, conns)
}

// DisconnectHandler closes one of the user's connections.
func (s *Server) DisconnectHandler(c *gin.Context) {
	userID := c.GetString("userID")
	username := c.GetString("username")
	connID := c.Param("id")

	if !s.ownsConnection(userID, connID) || !s.sessions.Close(connID) {
		log.Warnf("Disconnect failed for user '%s': Connection '%s' not found", username, connID)
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Connection not found"})
		return
	}

	if err := s.st.MarkConnectionDisconnected(connID, time.Now().UTC()); err != nil {
		log.Warnf("Disconnect: failed to mark connection '%s' disconnected: %v", connID, err)
	}
	s.recordAudit(userID, "ssh_disconnect", connID, true, nil)

	log.Infof("User '%s' disconnected connection '%s'", username, connID)
	c.JSON(http.StatusOK, models.GenericSuccessResponse{Message: "Connection closed"})
}
