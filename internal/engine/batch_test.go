// internal/engine/batch_test.go
package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
)

func TestDecideStepsApprovesAllIndices(t *testing.T) {
	eng, st, transport := newTestEngine(t)
	transport.addConn("conn1", "u1", true, time.Now())
	cmd := seedCommand(t, eng, "u1", "conn1", "echo one", "echo two", "echo three")

	result, err := eng.DecideSteps("u1", cmd.ID, []int{0, 1, 2}, true, "")
	require.NoError(t, err)
	require.Len(t, result.Decisions, 3)
	for i, d := range result.Decisions {
		require.Equal(t, i, d.StepIndex)
		require.Empty(t, d.Error)
		require.NotNil(t, d.Outcome)
		require.Equal(t, models.StepSuccess, d.Outcome.StepResult.Status)
	}
	require.Equal(t, models.StatusCompleted, result.CommandStatus)
	require.Equal(t, []string{"echo one", "echo two", "echo three"}, transport.executedCommands())

	fresh, err := st.GetCommand(cmd.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, fresh.Status)
}

func TestDecideStepsRejectBatchFailsCommand(t *testing.T) {
	eng, st, transport := newTestEngine(t)
	transport.addConn("conn1", "u1", true, time.Now())
	cmd := seedCommand(t, eng, "u1", "conn1", "echo one", "echo two")

	result, err := eng.DecideSteps("u1", cmd.ID, []int{0, 1}, false, "not today")
	require.NoError(t, err)
	require.Len(t, result.Decisions, 2)
	for _, d := range result.Decisions {
		require.Empty(t, d.Error)
		require.Equal(t, models.StepSkipped, d.Outcome.StepResult.Status)
	}
	require.Equal(t, models.StatusFailed, result.CommandStatus)
	require.Empty(t, transport.executedCommands())

	fresh, err := st.GetCommand(cmd.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, fresh.ExecutionResults.SkippedSteps)
}

func TestDecideStepsReportsBadIndicesWithoutAborting(t *testing.T) {
	eng, _, transport := newTestEngine(t)
	transport.addConn("conn1", "u1", true, time.Now())
	cmd := seedCommand(t, eng, "u1", "conn1", "echo one", "echo two")

	// Step 0 was already decided by hand; index 9 does not exist.
	_, err := eng.DecideStep("u1", cmd.ID, 0, true, "")
	require.NoError(t, err)

	result, err := eng.DecideSteps("u1", cmd.ID, []int{0, 9, 1}, true, "")
	require.NoError(t, err)
	require.Len(t, result.Decisions, 3)

	require.NotEmpty(t, result.Decisions[0].Error)
	require.Nil(t, result.Decisions[0].Outcome)
	require.NotEmpty(t, result.Decisions[1].Error)
	require.NotNil(t, result.Decisions[2].Outcome)
	require.Equal(t, models.StatusCompleted, result.CommandStatus)
}

func TestDecideStepsDuplicateIndexIsDecidedOnce(t *testing.T) {
	eng, _, transport := newTestEngine(t)
	transport.addConn("conn1", "u1", true, time.Now())
	cmd := seedCommand(t, eng, "u1", "conn1", "echo one", "echo two")

	result, err := eng.DecideSteps("u1", cmd.ID, []int{0, 0, 1}, true, "")
	require.NoError(t, err)
	require.Len(t, result.Decisions, 3)
	require.NotNil(t, result.Decisions[0].Outcome)
	require.NotEmpty(t, result.Decisions[1].Error)
	require.Equal(t, []string{"echo one", "echo two"}, transport.executedCommands())
}

func TestDecideStepsOnFinalizedCommandReportsStatus(t *testing.T) {
	eng, _, transport := newTestEngine(t)
	transport.addConn("conn1", "u1", true, time.Now())
	cmd := seedCommand(t, eng, "u1", "conn1", "echo one")

	_, err := eng.RejectCommand("u1", cmd.ID, "changed my mind")
	require.NoError(t, err)

	result, err := eng.DecideSteps("u1", cmd.ID, []int{0}, true, "")
	require.NoError(t, err)
	require.NotEmpty(t, result.Decisions[0].Error)
	require.Equal(t, models.StatusRejected, result.CommandStatus)
}

func TestDecideStepsUnknownCommand(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.DecideSteps("u1", "missing", []int{0}, true, "")
	require.ErrorIs(t, err, ErrCommandNotFound)
}
