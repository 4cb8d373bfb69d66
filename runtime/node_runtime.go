package runtime

import (
	"fmt"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/warriorguo/dagflow/types"
)

// TaskStats counts the tries of one task across all runs of the engine.
type TaskStats struct {
	CurrentRunning int32
	SuccessTimes   int64
	FailedTimes    int64
	SkippedTimes   int64
}

type taskRuntime struct {
	taskID string
	op     types.Operator

	stats *TaskStats
}

func newTaskRuntime(taskID string, op types.Operator) *taskRuntime {
	return &taskRuntime{taskID: taskID, op: op, stats: &TaskStats{}}
}

func (n *taskRuntime) runHandler(fc *flowContext) (output types.Data, retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = types.NewFatalError(fmt.Errorf("panic on %s: %v", n.taskID, r))
		}
	}()
	if n.op == nil {
		return nil, types.NewFatalError(errors.NotFoundf("operator of task %s", n.taskID))
	}
	return n.op.Execute(fc)
}

func (n *taskRuntime) runOnce(fc *flowContext) (types.Data, error) {
	atomic.AddInt32(&n.stats.CurrentRunning, 1)
	defer atomic.AddInt32(&n.stats.CurrentRunning, -1)

	output, err := n.runHandler(fc)
	switch {
	case err == nil:
		atomic.AddInt64(&n.stats.SuccessTimes, 1)
	case types.IsSkip(err):
		atomic.AddInt64(&n.stats.SkippedTimes, 1)
	default:
		atomic.AddInt64(&n.stats.FailedTimes, 1)
	}
	return output, err
}

func (n *taskRuntime) loadStats() TaskStats {
	return TaskStats{
		CurrentRunning: atomic.LoadInt32(&n.stats.CurrentRunning),
		SuccessTimes:   atomic.LoadInt64(&n.stats.SuccessTimes),
		FailedTimes:    atomic.LoadInt64(&n.stats.FailedTimes),
		SkippedTimes:   atomic.LoadInt64(&n.stats.SkippedTimes),
	}
}
