// internal/engine/status_test.go
package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
	"github.com/otium-ai/ops-agent-api-server/internal/store"
)

func TestApprovalStatusTracksDecisions(t *testing.T) {
	eng, _, transport := newTestEngine(t)
	transport.addConn("conn1", "u1", true, time.Now())

	cmd := seedCommand(t, eng, "u1", "conn1", "df -h", "free -h", "uptime")

	status, err := eng.ApprovalStatusFor("u1", cmd.ID)
	require.NoError(t, err)
	require.Equal(t, 3, status.TotalSteps)
	require.Equal(t, 3, status.PendingSteps)
	require.False(t, status.CanExecute)
	require.Equal(t, "pending", status.Steps[0].Status)
	require.Nil(t, status.Steps[0].Approved)

	_, err = eng.DecideStep("u1", cmd.ID, 0, true, "")
	require.NoError(t, err)
	_, err = eng.DecideStep("u1", cmd.ID, 2, false, "skip this one")
	require.NoError(t, err)

	status, err = eng.ApprovalStatusFor("u1", cmd.ID)
	require.NoError(t, err)
	require.Equal(t, 1, status.ApprovedSteps)
	require.Equal(t, 1, status.RejectedSteps)
	require.Equal(t, 1, status.PendingSteps)
	require.False(t, status.CanExecute)

	require.Equal(t, "approved", status.Steps[0].Status)
	require.Equal(t, "u1", status.Steps[0].ApprovedBy)
	require.Equal(t, "rejected", status.Steps[2].Status)
	require.Equal(t, "skip this one", status.Steps[2].Reason)
	require.NotNil(t, status.Steps[2].ApprovedAt)
}

func TestApprovalStatusUnknownCommand(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	_, err := eng.ApprovalStatusFor("u1", "missing")
	require.ErrorIs(t, err, ErrCommandNotFound)
}

func TestAggregatorAppendsInArrivalOrder(t *testing.T) {
	eng, st, transport := newTestEngine(t)
	transport.addConn("conn1", "u1", true, time.Now())

	cmd := seedCommand(t, eng, "u1", "conn1", "a", "b", "c")

	// Steps approved out of index order; results keep arrival order.
	for _, idx := range []int{2, 0, 1} {
		_, err := eng.DecideStep("u1", cmd.ID, idx, true, "")
		require.NoError(t, err)
	}

	final, err := st.GetCommand(cmd.ID, "u1")
	require.NoError(t, err)
	results := final.ExecutionResults.StepResults
	require.Len(t, results, 3)
	require.Equal(t, 2, results[0].StepIndex)
	require.Equal(t, 0, results[1].StepIndex)
	require.Equal(t, 1, results[2].StepIndex)
}

func TestAggregatorCountsErrorAsFailed(t *testing.T) {
	st := store.NewMemoryStore()
	agg := NewAggregator(st)

	require.NoError(t, st.CreateCommand(&models.CommandPlan{
		ID: "cmd1", UserID: "u1", Status: models.StatusExecuting,
		Steps: []models.Step{{Index: 0}, {Index: 1}},
	}))

	out, err := agg.Apply("cmd1", "u1", models.StepExecutionResult{
		StepIndex: 0, Status: models.StepError, Error: "boom",
	})
	require.NoError(t, err)
	require.Equal(t, 1, out.FailedSteps)
	require.Nil(t, out.Success)

	out, err = agg.Apply("cmd1", "u1", models.StepExecutionResult{
		StepIndex: 1, Status: models.StepSuccess, Success: true,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Success)
	require.False(t, *out.Success)
}
