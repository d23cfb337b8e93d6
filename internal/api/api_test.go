// internal/api/api_test.go
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/suite"

	"github.com/otium-ai/ops-agent-api-server/internal/agent"
	"github.com/otium-ai/ops-agent-api-server/internal/auth"
	"github.com/otium-ai/ops-agent-api-server/internal/config"
	"github.com/otium-ai/ops-agent-api-server/internal/engine"
	"github.com/otium-ai/ops-agent-api-server/internal/models"
	"github.com/otium-ai/ops-agent-api-server/internal/safety"
	"github.com/otium-ai/ops-agent-api-server/internal/store"
)

// fakeSessions fakes the SSH manager with always-successful remote
// execution.
type fakeSessions struct {
	mu    sync.Mutex
	conns map[string]models.Connection
	alive map[string]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		conns: make(map[string]models.Connection),
		alive: make(map[string]bool),
	}
}

func (f *fakeSessions) Open(userID, hostname string, port int, username, password string) (models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn := models.Connection{
		ID: uuid.NewString(), UserID: userID, Hostname: hostname, Port: port,
		Username: username, Status: models.ConnectionConnected, ConnectedAt: time.Now().UTC(),
	}
	f.conns[conn.ID] = conn
	f.alive[conn.ID] = true
	return conn, nil
}

func (f *fakeSessions) Close(connID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alive[connID] {
		return false
	}
	delete(f.alive, connID)
	delete(f.conns, connID)
	return true
}

// kill marks a connection dead without removing it, like a dropped SSH
// session the sweeper has not reaped yet.
func (f *fakeSessions) kill(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive[connID] = false
}

func (f *fakeSessions) IsAlive(connID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[connID]
}

func (f *fakeSessions) Connections(userID string) []models.Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Connection
	for _, c := range f.conns {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeSessions) Execute(connID, command string, timeout time.Duration) (models.ExecResult, error) {
	return models.ExecResult{ExitCode: 0, Stdout: "ok"}, nil
}

// fakeDetector reports a fixed Debian-ish host and records which
// connections it was asked to probe.
type fakeDetector struct {
	mu     sync.Mutex
	probed []string
}

func (f *fakeDetector) Detect(connID string) (models.SystemContext, error) {
	f.mu.Lock()
	f.probed = append(f.probed, connID)
	f.mu.Unlock()
	return models.SystemContext{
		OSName: "Ubuntu", OSVersion: "22.04", OSFamily: "debian",
		PackageManager: "apt-get", ServiceManager: "systemd",
	}, nil
}

func (f *fakeDetector) probedConnections() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.probed...)
}

type APISuite struct {
	suite.Suite
	router   *gin.Engine
	st       *store.MemoryStore
	sessions *fakeSessions
	detector *fakeDetector
	token    string
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupSuite() {
	// Optional local overrides, same convention as the server's .env.
	_ = godotenv.Load(".env.test")

	gin.SetMode(gin.TestMode)
	config.AppConfig.JWTSecret = "api-test-secret"
	config.AppConfig.JWTExpiration = time.Hour
	auth.InitAuth()
	// IssuedAt has second granularity; step past the start boundary.
	time.Sleep(1100 * time.Millisecond)
}

func (s *APISuite) SetupTest() {
	s.st = store.NewMemoryStore()
	s.sessions = newFakeSessions()

	hash, err := auth.HashPassword("password123")
	s.Require().NoError(err)
	s.Require().NoError(s.st.CreateUser(&models.User{
		ID: "u1", Username: "alice", PasswordHash: hash, Role: "admin",
	}))

	s.detector = &fakeDetector{}
	eng := engine.NewEngine(s.st, s.sessions, safety.NewGate(), time.Second)
	server := NewServer(s.st, s.sessions, eng, agent.NewRuleBasedGenerator(), s.detector)

	s.router = gin.New()
	SetupRoutes(s.router, server)

	s.token = s.login("alice", "password123")
}

// do performs a JSON request against the in-process router.
func (s *APISuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *APISuite) decode(w *httptest.ResponseRecorder, out any) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), out))
}

func (s *APISuite) login(username, password string) string {
	w := s.do(http.MethodPost, "/login", "", models.LoginRequest{
		Username: username, Password: password,
	})
	s.Require().Equal(http.StatusOK, w.Code, "login response: %s", w.Body.String())
	var resp models.LoginResponse
	s.decode(w, &resp)
	s.Require().NotEmpty(resp.Token)
	return resp.Token
}

func (s *APISuite) connect() string {
	w := s.do(http.MethodPost, "/api/v1/connections", s.token, models.ConnectRequest{
		Hostname: "server01.example.com", Username: "root", Password: "secret",
	})
	s.Require().Equal(http.StatusCreated, w.Code, "connect response: %s", w.Body.String())
	var resp models.ConnectResponse
	s.decode(w, &resp)
	s.Require().NotEmpty(resp.ConnectionID)
	return resp.ConnectionID
}

func (s *APISuite) submit(connID, request string) models.CommandPlan {
	w := s.do(http.MethodPost, "/api/v1/commands", s.token, models.TaskRequest{
		Request: request, ConnectionID: connID,
	})
	s.Require().Equal(http.StatusCreated, w.Code, "submit response: %s", w.Body.String())
	var cmd models.CommandPlan
	s.decode(w, &cmd)
	return cmd
}

func (s *APISuite) TestLoginRejectsBadCredentials() {
	w := s.do(http.MethodPost, "/login", "", models.LoginRequest{
		Username: "alice", Password: "wrong",
	})
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/login", "", models.LoginRequest{
		Username: "nobody", Password: "whatever",
	})
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *APISuite) TestAuthRequired() {
	w := s.do(http.MethodGet, "/api/v1/commands", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/v1/commands", "garbage-token", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *APISuite) TestHealth() {
	w := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, w.Code)

	var resp models.HealthResponse
	s.decode(w, &resp)
	s.Equal("ok", resp.Status)
	s.Equal(Version, resp.Version)
}

func (s *APISuite) TestConnectionLifecycle() {
	connID := s.connect()

	w := s.do(http.MethodGet, "/api/v1/connections", s.token, nil)
	s.Equal(http.StatusOK, w.Code)
	var conns []models.Connection
	s.decode(w, &conns)
	s.Require().Len(conns, 1)
	s.Equal(connID, conns[0].ID)

	w = s.do(http.MethodDelete, "/api/v1/connections/"+connID, s.token, nil)
	s.Equal(http.StatusOK, w.Code)

	// Disconnecting twice is not found, not an error.
	w = s.do(http.MethodDelete, "/api/v1/connections/"+connID, s.token, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *APISuite) TestConnectValidation() {
	w := s.do(http.MethodPost, "/api/v1/connections", s.token, models.ConnectRequest{
		Hostname: "bad host name", Username: "root", Password: "secret",
	})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/connections", s.token, map[string]any{
		"hostname": "h.example.com", "username": "root", "password": "x", "port": 99999,
	})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *APISuite) TestSubmitAndApproveFlow() {
	connID := s.connect()
	cmd := s.submit(connID, "install nginx")

	s.Equal(models.StatusPendingApproval, cmd.Status)
	s.Require().Len(cmd.Steps, 1)
	s.Equal("sudo apt-get install -y nginx", cmd.Steps[0].Command)

	// Approval status before any decision.
	w := s.do(http.MethodGet, fmt.Sprintf("/api/v1/commands/%s/approval-status", cmd.ID), s.token, nil)
	s.Equal(http.StatusOK, w.Code)
	var status models.ApprovalStatus
	s.decode(w, &status)
	s.Equal(1, status.PendingSteps)

	// Approve the single step; it executes immediately.
	idx, approved := 0, true
	w = s.do(http.MethodPost, fmt.Sprintf("/api/v1/commands/%s/approve-step", cmd.ID), s.token,
		models.StepApprovalRequest{StepIndex: &idx, Approved: &approved})
	s.Require().Equal(http.StatusOK, w.Code, "approve response: %s", w.Body.String())

	var outcome models.StepDecisionOutcome
	s.decode(w, &outcome)
	s.Equal("approved", outcome.Decision)
	s.True(outcome.FullyDecided)
	s.Equal(models.StatusCompleted, outcome.CommandStatus)
	s.Require().NotNil(outcome.StepResult)
	s.Equal(models.StepSuccess, outcome.StepResult.Status)

	// A second decision on the same step conflicts.
	w = s.do(http.MethodPost, fmt.Sprintf("/api/v1/commands/%s/approve-step", cmd.ID), s.token,
		models.StepApprovalRequest{StepIndex: &idx, Approved: &approved})
	s.Equal(http.StatusConflict, w.Code)

	// The persisted command reflects the terminal state.
	w = s.do(http.MethodGet, "/api/v1/commands/"+cmd.ID, s.token, nil)
	s.Equal(http.StatusOK, w.Code)
	var final models.CommandPlan
	s.decode(w, &final)
	s.Equal(models.StatusCompleted, final.Status)
	s.Require().NotNil(final.ExecutionResults)
	s.Equal(1, final.ExecutionResults.SuccessfulSteps)
}

func (s *APISuite) TestApproveStepValidation() {
	connID := s.connect()
	cmd := s.submit(connID, "install nginx")

	idx, approved := 5, true
	w := s.do(http.MethodPost, fmt.Sprintf("/api/v1/commands/%s/approve-step", cmd.ID), s.token,
		models.StepApprovalRequest{StepIndex: &idx, Approved: &approved})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/commands/no-such-id/approve-step", s.token,
		models.StepApprovalRequest{StepIndex: &idx, Approved: &approved})
	s.Equal(http.StatusNotFound, w.Code)

	// step_index and approved are required, including their zero values.
	w = s.do(http.MethodPost, fmt.Sprintf("/api/v1/commands/%s/approve-step", cmd.ID), s.token,
		map[string]any{"approved": true})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *APISuite) TestRejectCommand() {
	connID := s.connect()
	cmd := s.submit(connID, "update all packages")

	w := s.do(http.MethodPost, fmt.Sprintf("/api/v1/commands/%s/reject", cmd.ID), s.token,
		map[string]string{"reason": "wrong host"})
	s.Require().Equal(http.StatusOK, w.Code)

	var rejected models.CommandPlan
	s.decode(w, &rejected)
	s.Equal(models.StatusRejected, rejected.Status)

	// No step decisions after a whole-plan rejection.
	idx, approved := 0, true
	w = s.do(http.MethodPost, fmt.Sprintf("/api/v1/commands/%s/approve-step", cmd.ID), s.token,
		models.StepApprovalRequest{StepIndex: &idx, Approved: &approved})
	s.Equal(http.StatusConflict, w.Code)
}

func (s *APISuite) TestSubmitRequiresLiveConnection() {
	connID := s.connect()
	s.sessions.kill(connID)

	w := s.do(http.MethodPost, "/api/v1/commands", s.token, models.TaskRequest{
		Request: "install nginx", ConnectionID: connID,
	})
	s.Equal(http.StatusConflict, w.Code)

	// An id the user never owned reads as not found, not as stale.
	w = s.do(http.MethodPost, "/api/v1/commands", s.token, models.TaskRequest{
		Request: "install nginx", ConnectionID: "stale-id",
	})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *APISuite) TestSubmitUnplannableRequest() {
	connID := s.connect()

	w := s.do(http.MethodPost, "/api/v1/commands", s.token, models.TaskRequest{
		Request: "compose a haiku about routers", ConnectionID: connID,
	})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *APISuite) TestCommandsAreUserScoped() {
	connID := s.connect()
	cmd := s.submit(connID, "install nginx")

	hash, err := auth.HashPassword("password456")
	s.Require().NoError(err)
	s.Require().NoError(s.st.CreateUser(&models.User{
		ID: "u2", Username: "bob", PasswordHash: hash,
	}))
	bobToken := s.login("bob", "password456")

	w := s.do(http.MethodGet, "/api/v1/commands/"+cmd.ID, bobToken, nil)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/v1/commands", bobToken, nil)
	s.Equal(http.StatusOK, w.Code)
	var cmds []models.CommandPlan
	s.decode(w, &cmds)
	s.Empty(cmds)
}

func (s *APISuite) TestSubmitRejectsConnectionOfAnotherUser() {
	aliceConn := s.connect()

	hash, err := auth.HashPassword("password456")
	s.Require().NoError(err)
	s.Require().NoError(s.st.CreateUser(&models.User{
		ID: "u2", Username: "bob", PasswordHash: hash,
	}))
	bobToken := s.login("bob", "password456")

	w := s.do(http.MethodPost, "/api/v1/commands", bobToken, models.TaskRequest{
		Request: "install nginx", ConnectionID: aliceConn,
	})
	s.Equal(http.StatusNotFound, w.Code)

	// Alice's session was never probed and bob got no command out of it.
	s.Empty(s.detector.probedConnections())
	w = s.do(http.MethodGet, "/api/v1/commands", bobToken, nil)
	s.Equal(http.StatusOK, w.Code)
	var cmds []models.CommandPlan
	s.decode(w, &cmds)
	s.Empty(cmds)
}

func (s *APISuite) TestBatchApproveCompletesCommand() {
	connID := s.connect()
	cmd := s.submit(connID, "update all packages")
	s.Require().Len(cmd.Steps, 2)

	approved := true
	w := s.do(http.MethodPost, "/api/v1/commands/"+cmd.ID+"/approve-steps", s.token,
		models.BatchStepApprovalRequest{StepIndexes: []int{0, 1}, Approved: &approved})
	s.Require().Equal(http.StatusOK, w.Code, "batch response: %s", w.Body.String())

	var result models.BatchDecisionResult
	s.decode(w, &result)
	s.Require().Len(result.Decisions, 2)
	for _, d := range result.Decisions {
		s.Empty(d.Error)
		s.Require().NotNil(d.Outcome)
		s.Equal(models.StepSuccess, d.Outcome.StepResult.Status)
	}
	s.Equal(models.StatusCompleted, result.CommandStatus)

	// Replaying the batch reports each index as already settled.
	w = s.do(http.MethodPost, "/api/v1/commands/"+cmd.ID+"/approve-steps", s.token,
		models.BatchStepApprovalRequest{StepIndexes: []int{0, 1}, Approved: &approved})
	s.Require().Equal(http.StatusOK, w.Code)
	// Decode into a fresh value: with omitempty, absent outcome fields would
	// otherwise leave the first response's pointers in the reused slice.
	var replay models.BatchDecisionResult
	s.decode(w, &replay)
	for _, d := range replay.Decisions {
		s.NotEmpty(d.Error)
		s.Nil(d.Outcome)
	}
	s.Equal(models.StatusCompleted, replay.CommandStatus)
}

func (s *APISuite) TestBatchApproveValidation() {
	connID := s.connect()
	cmd := s.submit(connID, "install nginx")

	approved := true
	w := s.do(http.MethodPost, "/api/v1/commands/"+cmd.ID+"/approve-steps", s.token,
		models.BatchStepApprovalRequest{StepIndexes: []int{}, Approved: &approved})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/commands/missing/approve-steps", s.token,
		models.BatchStepApprovalRequest{StepIndexes: []int{0}, Approved: &approved})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *APISuite) TestSubmitAutoApprovesDiagnosticPlan() {
	config.AppConfig.AutoApproveSafeSteps = true
	defer func() { config.AppConfig.AutoApproveSafeSteps = false }()

	connID := s.connect()
	cmd := s.submit(connID, "how much disk space is left")

	// A read-only diagnostic plan runs without a human decision.
	s.Equal(models.StatusCompleted, cmd.Status)
	s.Require().NotNil(cmd.ExecutionResults)
	s.Require().NotNil(cmd.ExecutionResults.Success)
	s.True(*cmd.ExecutionResults.Success)

	approvals, err := s.st.ListStepApprovals(cmd.ID)
	s.Require().NoError(err)
	s.Require().Len(approvals, len(cmd.Steps))
	for _, a := range approvals {
		s.Equal("system", a.ApprovedBy)
	}
}

func (s *APISuite) TestSubmitLeavesMutatingPlanPendingDespiteAutoApproval() {
	config.AppConfig.AutoApproveSafeSteps = true
	defer func() { config.AppConfig.AutoApproveSafeSteps = false }()

	connID := s.connect()
	cmd := s.submit(connID, "install nginx")

	s.Equal(models.StatusPendingApproval, cmd.Status)
	approvals, err := s.st.ListStepApprovals(cmd.ID)
	s.Require().NoError(err)
	s.Empty(approvals)
}
