// internal/engine/autoapprove_test.go
package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
)

func TestAutoApproveSafeStepsLeavesPrivilegedStepsPending(t *testing.T) {
	eng, st, transport := newTestEngine(t)
	transport.addConn("conn1", "u1", true, time.Now())

	cmd, err := eng.CreateCommand(&models.CommandPlan{
		UserID:       "u1",
		ConnectionID: "conn1",
		Request:      "check disk then restart nginx",
		Steps: []models.Step{
			{Index: 0, Command: "df -h", RiskLevel: models.RiskLow},
			{Index: 1, Command: "sudo systemctl restart nginx", RiskLevel: models.RiskMedium},
		},
	})
	require.NoError(t, err)

	outcomes, err := eng.AutoApproveSafeSteps("u1", cmd.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, 0, outcomes[0].StepIndex)
	require.Equal(t, models.StepSuccess, outcomes[0].StepResult.Status)
	require.False(t, outcomes[0].FullyDecided)

	require.Equal(t, []string{"df -h"}, transport.executedCommands())

	approvals, err := st.ListStepApprovals(cmd.ID)
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	require.Equal(t, SystemActor, approvals[0].ApprovedBy)

	fresh, err := st.GetCommand(cmd.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, models.StatusExecuting, fresh.Status)

	// The remaining step is still the human's call.
	status, err := eng.ApprovalStatusFor("u1", cmd.ID)
	require.NoError(t, err)
	require.Equal(t, 1, status.PendingSteps)
}

func TestAutoApproveSafeStepsCompletesFullyDiagnosticPlan(t *testing.T) {
	eng, st, transport := newTestEngine(t)
	transport.addConn("conn1", "u1", true, time.Now())

	cmd, err := eng.CreateCommand(&models.CommandPlan{
		UserID:       "u1",
		ConnectionID: "conn1",
		Request:      "how much disk and memory is free",
		Steps: []models.Step{
			{Index: 0, Command: "df -h", RiskLevel: models.RiskLow},
			{Index: 1, Command: "free -m", RiskLevel: models.RiskLow},
		},
	})
	require.NoError(t, err)

	outcomes, err := eng.AutoApproveSafeSteps("u1", cmd.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	require.True(t, outcomes[1].FullyDecided)
	require.Equal(t, models.StatusCompleted, outcomes[1].CommandStatus)

	fresh, err := st.GetCommand(cmd.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, fresh.Status)
	require.NotNil(t, fresh.ExecutionResults.Success)
	require.True(t, *fresh.ExecutionResults.Success)
	require.Equal(t, 2, fresh.ExecutionResults.SuccessfulSteps)
}

func TestAutoApproveSafeStepsSkipsRiskMismatch(t *testing.T) {
	eng, st, transport := newTestEngine(t)
	transport.addConn("conn1", "u1", true, time.Now())

	// Safe text but not labeled low risk: the label wins, nothing runs.
	cmd, err := eng.CreateCommand(&models.CommandPlan{
		UserID:       "u1",
		ConnectionID: "conn1",
		Request:      "check disk",
		Steps: []models.Step{
			{Index: 0, Command: "df -h", RiskLevel: models.RiskMedium},
		},
	})
	require.NoError(t, err)

	outcomes, err := eng.AutoApproveSafeSteps("u1", cmd.ID)
	require.NoError(t, err)
	require.Empty(t, outcomes)
	require.Empty(t, transport.executedCommands())

	fresh, err := st.GetCommand(cmd.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingApproval, fresh.Status)
}

func TestAutoApproveSafeStepsIgnoresAlreadyDecidedSteps(t *testing.T) {
	eng, _, transport := newTestEngine(t)
	transport.addConn("conn1", "u1", true, time.Now())

	cmd := seedCommand(t, eng, "u1", "conn1", "df -h", "free -m")

	_, err := eng.DecideStep("u1", cmd.ID, 0, false, "not now")
	require.NoError(t, err)

	outcomes, err := eng.AutoApproveSafeSteps("u1", cmd.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, 1, outcomes[0].StepIndex)
}

func TestAutoApproveSafeStepsUnknownCommand(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.AutoApproveSafeSteps("u1", "missing")
	require.ErrorIs(t, err, ErrCommandNotFound)
}
