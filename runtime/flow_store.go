package runtime

import (
	"context"
	"sort"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/dagflow/types"
	"github.com/warriorguo/dagflow/utils"
)

const (
	DAGRunPath       = "/dag_run/"
	TaskInstancePath = "/task_instance/"
	// keys are the IDs of paused DAGs
	DAGPausedPath = "/dag_paused/"
)

func runKey(dagID, runID string) string {
	return dagID + "/" + runID
}

func dagRunSavePath(dagID string) string {
	return DAGRunPath + dagID + "/"
}

func taskInstanceSavePath(dagID, runID string) string {
	return TaskInstancePath + runKey(dagID, runID) + "/"
}

func (f *flow) savePlan(ctx context.Context, dagID, runID string, plan *dagExecutePlan) error {
	b, err := utils.Serialize(plan)
	if err != nil {
		return errors.Trace(err)
	}

	return errors.Trace(f.store.Set(ctx, DAGPlanPath, runKey(dagID, runID), b))
}

func (f *flow) loadPlan(ctx context.Context, dagID, runID string) (*dagExecutePlan, error) {
	b, err := f.store.Get(ctx, DAGPlanPath, runKey(dagID, runID))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b == nil {
		return nil, errors.NotFoundf("DAG plan of run %s", runKey(dagID, runID))
	}

	plan := &dagExecutePlan{}
	if err := utils.Unserialize(b, plan); err != nil {
		return nil, errors.Trace(err)
	}
	return plan, nil
}

func (f *flow) saveRun(ctx context.Context, run *types.DagRun) error {
	b, err := utils.Serialize(run)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(f.store.Set(ctx, dagRunSavePath(run.DAGID), run.RunID, b))
}

// loadRun returns nil without error for an unknown run.
func (f *flow) loadRun(ctx context.Context, dagID, runID string) (*types.DagRun, error) {
	b, err := f.store.Get(ctx, dagRunSavePath(dagID), runID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b == nil {
		return nil, nil
	}

	run := &types.DagRun{}
	if err := utils.Unserialize(b, run); err != nil {
		return nil, errors.Annotatef(err, "unserialize run %s", runKey(dagID, runID))
	}
	return run, nil
}

func (f *flow) saveTaskInstance(ctx context.Context, ti *types.TaskInstance) error {
	b, err := utils.Serialize(ti)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(f.store.Set(ctx, taskInstanceSavePath(ti.DAGID, ti.RunID), ti.TaskID, b))
}

func (f *flow) loadTaskInstance(ctx context.Context, dagID, runID, taskID string) (*types.TaskInstance, error) {
	b, err := f.store.Get(ctx, taskInstanceSavePath(dagID, runID), taskID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b == nil {
		return nil, nil
	}

	ti := &types.TaskInstance{}
	if err := utils.Unserialize(b, ti); err != nil {
		return nil, errors.Trace(err)
	}
	return ti, nil
}

func (f *flow) loadTaskInstances(ctx context.Context, dagID, runID string) (map[string]*types.TaskInstance, error) {
	taskIDs, err := f.listKeys(ctx, taskInstanceSavePath(dagID, runID))
	if err != nil {
		return nil, errors.Trace(err)
	}

	tis := make(map[string]*types.TaskInstance, len(taskIDs))
	for _, taskID := range taskIDs {
		ti, err := f.loadTaskInstance(ctx, dagID, runID, taskID)
		if err != nil {
			log.Errorf("load task instance %s of %s failed: %v", taskID, runKey(dagID, runID), err)
			continue
		}
		if ti != nil {
			tis[taskID] = ti
		}
	}
	return tis, nil
}

func (f *flow) listKeys(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := f.store.List(ctx, prefix, func(key string) bool {
		keys = append(keys, key)
		return true
	})
	return keys, errors.Trace(err)
}

// listRuns returns the stored runs of a DAG ordered by logical date.
func (f *flow) listRuns(ctx context.Context, dagID string) ([]*types.DagRun, error) {
	runIDs, err := f.listKeys(ctx, dagRunSavePath(dagID))
	if err != nil {
		return nil, errors.Trace(err)
	}

	runs := make([]*types.DagRun, 0, len(runIDs))
	for _, runID := range runIDs {
		run, err := f.loadRun(ctx, dagID, runID)
		if err != nil {
			log.Errorf("load run %s failed: %v", runKey(dagID, runID), err)
			continue
		}
		if run != nil {
			runs = append(runs, run)
		}
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].LogicalDate.Equal(runs[j].LogicalDate) {
			return runs[i].RunID < runs[j].RunID
		}
		return runs[i].LogicalDate.Before(runs[j].LogicalDate)
	})
	return runs, nil
}

/**
 * pastSatisfied reports whether the same task of the previous run, by
 * logical date, succeeded or was skipped. Without a previous run or task
 * instance it passes.
 */
func (f *flow) pastSatisfied(ctx context.Context, run *types.DagRun, taskID string) (bool, error) {
	runs, err := f.listRuns(ctx, run.DAGID)
	if err != nil {
		return false, errors.Trace(err)
	}

	var previous *types.DagRun
	for _, other := range runs {
		if other.LogicalDate.Before(run.LogicalDate) {
			previous = other
		}
	}
	if previous == nil {
		return true, nil
	}

	ti, err := f.loadTaskInstance(ctx, previous.DAGID, previous.RunID, taskID)
	if err != nil {
		return false, errors.Trace(err)
	}
	if ti == nil {
		return true, nil
	}
	return ti.State == types.Success || ti.State == types.Skipped, nil
}

func (f *flow) ReloadRuns(ctx context.Context) (map[string]error, error) {
	return f.reloadRuns(ctx)
}
