// internal/engine/aggregator.go
package engine

import (
	"fmt"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
	"github.com/otium-ai/ops-agent-api-server/internal/store"
)

// Aggregator folds step results into a command's execution aggregate. Two
// steps of the same command can finish at nearly the same time; the
// per-command lock covers the whole read-merge-write so neither caller can
// overwrite the other's contribution.
type Aggregator struct {
	st    store.Store
	locks cmap.ConcurrentMap[string, *sync.Mutex]
}

func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{
		st:    st,
		locks: cmap.New[*sync.Mutex](),
	}
}

func (a *Aggregator) lockFor(commandID string) *sync.Mutex {
	mu, _ := a.locks.Get(commandID)
	if mu == nil {
		a.locks.SetIfAbsent(commandID, &sync.Mutex{})
		mu, _ = a.locks.Get(commandID)
	}
	return mu
}

// Apply merges one step result into the command's aggregate and persists
// the updated aggregate. The latest persisted aggregate is re-read inside
// the critical section; callers must not pass in a cached copy.
//
// Merge rule: error counts toward failed_steps; the aggregate's success is
// set only once every step has a terminal outcome, and is true iff no step
// failed.
func (a *Aggregator) Apply(commandID, userID string, result models.StepExecutionResult) (*models.ExecutionAggregate, error) {
	mu := a.lockFor(commandID)
	mu.Lock()
	defer mu.Unlock()

	cmd, err := a.st.GetCommand(commandID, userID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrCommandNotFound
		}
		return nil, fmt.Errorf("failed to load command '%s': %w", commandID, err)
	}

	agg := cmd.ExecutionResults
	if agg == nil {
		agg = models.NewExecutionAggregate(len(cmd.Steps))
	}

	switch result.Status {
	case models.StepSuccess:
		agg.SuccessfulSteps++
	case models.StepFailed, models.StepError:
		agg.FailedSteps++
	case models.StepSkipped:
		agg.SkippedSteps++
	}
	agg.TotalExecutionTime += result.ExecutionTime
	agg.StepResults = append(agg.StepResults, result)

	if agg.DecidedSteps() == agg.TotalSteps {
		ok := agg.FailedSteps == 0
		agg.Success = &ok
	}

	if err := a.st.UpdateExecutionResults(commandID, agg); err != nil {
		return nil, fmt.Errorf("failed to persist execution results for '%s': %w", commandID, err)
	}
	return agg, nil
}

// Forget drops the lock entry for a finished command.
func (a *Aggregator) Forget(commandID string) {
	a.locks.Remove(commandID)
}
