// internal/api/auth_handlers.go
package api

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/otium-ai/ops-agent-api-server/internal/auth"
	"github.com/otium-ai/ops-agent-api-server/internal/models"
	"github.com/otium-ai/ops-agent-api-server/internal/store"
)

// LoginHandler authenticates a user and returns a JWT token.
func (s *Server) LoginHandler(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login failed: Invalid request body: %v", err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	user, err := s.st.GetUserByUsername(req.Username)
	if err != nil {
		if err == store.ErrNotFound {
			log.Infof("Login failed for user '%s': Invalid username or password", req.Username)
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid username or password"})
			return
		}
		log.Errorf("Login failed for user '%s': Error loading account: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Error validating credentials"})
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		log.Infof("Login failed for user '%s': Invalid username or password", req.Username)
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid username or password"})
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Username)
	if err != nil {
		log.Errorf("Login successful for user '%s', but failed to generate token: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate token"})
		return
	}

	log.Infof("User '%s' logged in successfully", req.Username)
	c.JSON(http.StatusOK, models.LoginResponse{Token: token})
}

// HealthHandler reports service health and the backing store's reachability.
func (s *Server) HealthHandler(c *gin.Context) {
	storeStatus := "ok"
	if pinger, ok := s.st.(interface{ Ping() error }); ok {
		if err := pinger.Ping(); err != nil {
			storeStatus = "unreachable"
		}
	}

	c.JSON(http.StatusOK, models.HealthResponse{
		Status:      "ok",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Version:     Version,
		StoreStatus: storeStatus,
		Features:    []string{"ssh_connections", "command_plans", "step_approval", "safety_gate"},
	})
}
