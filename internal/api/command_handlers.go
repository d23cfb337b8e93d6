// internal/api/command_handlers.go
package api

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/otium-ai/ops-agent-api-server/internal/agent"
	"github.com/otium-ai/ops-agent-api-server/internal/config"
	"github.com/otium-ai/ops-agent-api-server/internal/models"
	"github.com/otium-ai/ops-agent-api-server/internal/safety"
)

// SubmitCommandHandler turns a natural-language request into a step plan
// awaiting approval: detect the remote system, generate the plan, persist
// it in pending_approval. Nothing executes here.
func (s *Server) SubmitCommandHandler(c *gin.Context) {
	userID := c.GetString("userID")
	username := c.GetString("username")

	var req models.TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("SubmitCommand failed for user '%s': Invalid request body: %v", username, err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}
	if !safety.IsValidTaskRequest(req.Request) {
		log.Warnf("SubmitCommand failed for user '%s': Invalid request text", username)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Request text must be non-empty and at most 1000 characters"})
		return
	}

	if !s.ownsConnection(userID, req.ConnectionID) {
		log.Warnf("SubmitCommand failed for user '%s': Connection '%s' not found", username, req.ConnectionID)
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Connection not found"})
		return
	}
	if !s.sessions.IsAlive(req.ConnectionID) {
		log.Warnf("SubmitCommand failed for user '%s': Connection '%s' is not alive", username, req.ConnectionID)
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "No active SSH connection, please reconnect"})
		return
	}

	sys, err := s.detector.Detect(req.ConnectionID)
	if err != nil {
		log.Errorf("SubmitCommand failed for user '%s': System detection error: %v", username, err)
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "Failed to inspect the remote system"})
		return
	}

	plan, err := s.generator.Generate(req.Request, sys)
	if err != nil {
		if errors.Is(err, agent.ErrNoPlanGenerated) {
			log.Infof("SubmitCommand for user '%s': no plan for request %q", username, req.Request)
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Could not generate a plan for this request, please rephrase"})
			return
		}
		log.Errorf("SubmitCommand failed for user '%s': Plan generation error: %v", username, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate a plan"})
		return
	}

	cmd := &models.CommandPlan{
		UserID:       userID,
		ConnectionID: req.ConnectionID,
		Request:      req.Request,
		Intent:       plan.Intent,
		Action:       plan.Action,
		RiskLevel:    plan.RiskLevel,
		Steps:        plan.Steps,
	}
	if _, err := s.engine.CreateCommand(cmd); err != nil {
		log.Errorf("SubmitCommand failed for user '%s': %v", username, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to save command"})
		return
	}

	if config.AppConfig.AutoApproveSafeSteps && cmd.Status == models.StatusPendingApproval {
		if _, err := s.engine.AutoApproveSafeSteps(userID, cmd.ID); err != nil {
			log.Warnf("SubmitCommand: auto-approval on command '%s' failed: %v", cmd.ID, err)
		}
		// Re-read so the response reflects any auto-executed steps.
		if latest, err := s.st.GetCommand(cmd.ID, userID); err == nil {
			cmd = latest
		}
	}

	log.Infof("User '%s' submitted command '%s' (%d steps, risk: %s)",
		username, cmd.ID, len(cmd.Steps), cmd.RiskLevel)
	c.JSON(http.StatusCreated, cmd)
}

// ListCommandsHandler lists the user's command plans, newest first.
func (s *Server) ListCommandsHandler(c *gin.Context) {
	userID := c.GetString("userID")

	cmds, err := s.st.ListCommandsByUser(userID)
	if err != nil {
		log.Errorf("ListCommands failed for user '%s': %v", c.GetString("username"), err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to list commands"})
		return
	}
	c.JSON(http.StatusOK, cmds)
}

// GetCommandHandler returns one command plan with its execution results.
func (s *Server) GetCommandHandler(c *gin.Context) {
	userID := c.GetString("userID")

	cmd, err := s.st.GetCommand(c.Param("id"), userID)
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Command not found"})
		return
	}
	c.JSON(http.StatusOK, cmd)
}

// ApproveStepHandler applies one approve/reject decision to a single step.
// Approved steps execute immediately; the response carries the step's
// outcome and the up-to-date aggregate.
func (s *Server) ApproveStepHandler(c *gin.Context) {
	userID := c.GetString("userID")
	username := c.GetString("username")
	commandID := c.Param("id")

	var req models.StepApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("ApproveStep failed for user '%s': Invalid request body: %v", username, err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	outcome, err := s.engine.DecideStep(userID, commandID, *req.StepIndex, *req.Approved, req.Reason)
	if err != nil {
		log.Warnf("ApproveStep failed for user '%s' on command '%s' step %d: %v",
			username, commandID, *req.StepIndex, err)
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// ApproveStepsHandler applies one approve/reject decision to several steps
// in a single call. Per-index failures (already decided, out of range) land
// in their own result slot; only an unknown command fails the whole batch.
func (s *Server) ApproveStepsHandler(c *gin.Context) {
	userID := c.GetString("userID")
	username := c.GetString("username")
	commandID := c.Param("id")

	var req models.BatchStepApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("ApproveSteps failed for user '%s': Invalid request body: %v", username, err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}
	if len(req.StepIndexes) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "step_indexes must not be empty"})
		return
	}

	result, err := s.engine.DecideSteps(userID, commandID, req.StepIndexes, *req.Approved, req.Reason)
	if err != nil {
		log.Warnf("ApproveSteps failed for user '%s' on command '%s': %v", username, commandID, err)
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ApprovalStatusHandler returns the per-step decision picture for a command.
func (s *Server) ApprovalStatusHandler(c *gin.Context) {
	userID := c.GetString("userID")

	status, err := s.engine.ApprovalStatusFor(userID, c.Param("id"))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// RejectCommandHandler rejects a whole plan before any step was decided.
func (s *Server) RejectCommandHandler(c *gin.Context) {
	userID := c.GetString("userID")
	username := c.GetString("username")
	commandID := c.Param("id")

	var body struct {
		Reason string `json:"reason"`
	}
	// Body is optional for whole-plan rejection.
	_ = c.ShouldBindJSON(&body)

	cmd, err := s.engine.RejectCommand(userID, commandID, body.Reason)
	if err != nil {
		log.Warnf("RejectCommand failed for user '%s' on command '%s': %v", username, commandID, err)
		respondEngineError(c, err)
		return
	}

	log.Infof("User '%s' rejected command '%s'", username, commandID)
	c.JSON(http.StatusOK, cmd)
}
