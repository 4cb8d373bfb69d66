package runtime

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/dagflow/schedule"
	"github.com/warriorguo/dagflow/store"
	"github.com/warriorguo/dagflow/templating"
	"github.com/warriorguo/dagflow/types"
	"github.com/warriorguo/dagflow/utils"
)

var (
	_ types.FlowEngine = &flow{}
)

func NewFlowEngine(store store.Store, opts *types.FlowOptions) types.FlowEngine {
	flow := newFlow(store, opts)
	return flow
}

type flow struct {
	flowExecute

	gt    *globalTasks
	shell string

	dagMu       sync.Mutex
	dagEntities map[string]*dagEntity
}

func newFlow(store store.Store, opts *types.FlowOptions) *flow {
	f := &flow{}
	ctx := opts.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	f.ctx, f.cancel = context.WithCancel(ctx)
	f.store = store
	f.running.Store(true)
	f.batchRunner = newBatchRunner(opts.MaxActiveTasks, opts.TaskRunAsync)
	f.pollInterval = opts.PollInterval
	if f.pollInterval <= 0 {
		f.pollInterval = 200 * time.Millisecond
	}
	f.paused = make(map[string]bool)
	f.hostname, _ = os.Hostname()
	f.shell = opts.Shell
	f.gt = newGlobalTasks()
	f.dagEntities = make(map[string]*dagEntity)

	if opts.AutoStart {
		f.asyncRun()
	}
	return f
}

func makeRunID(runType types.RunType, logicalDate time.Time) string {
	return string(runType) + "__" + logicalDate.UTC().Format(templating.TSLayout)
}

func (f *flow) RegisterDAG(dagID string, args types.DAGArgs, handler types.DAGHandler) error {
	if !f.running.Load() {
		return errors.MethodNotAllowedf("not running")
	}
	if err := validateID("dag_id", dagID); err != nil {
		return errors.Trace(err)
	}
	if handler == nil {
		return errors.BadRequestf("DAG %s handler is nil", dagID)
	}
	if _, exists := f.getDAG(dagID); exists {
		return errors.AlreadyExistsf("DAG %s", dagID)
	}

	args = types.NewDAGArgs(args)
	sched, err := schedule.Resolve(args)
	if err != nil {
		return errors.Annotatef(err, "DAG %s schedule", dagID)
	}
	paused, err := f.loadPaused(f.ctx, dagID)
	if err != nil {
		return errors.Annotatef(err, "DAG %s paused flag", dagID)
	}

	dag := newDAGEntity(dagID, args, sched, f)
	if err := handler(dag); err != nil {
		f.gt.removeDAG(dagID, dag.TaskIDs())
		return errors.Trace(err)
	}
	if err := dag.validate(); err != nil {
		f.gt.removeDAG(dagID, dag.TaskIDs())
		return errors.Trace(err)
	}
	for _, taskID := range dag.TaskIDs() {
		if op, ok := dag.Operator(taskID); ok {
			if shellOp, ok := op.(types.ShellOperator); ok {
				shellOp.SetDefaultShell(f.shell)
			}
		}
	}

	f.dagMu.Lock()
	defer f.dagMu.Unlock()
	if _, exists := f.dagEntities[dagID]; exists {
		f.gt.removeDAG(dagID, dag.taskIDs())
		return errors.AlreadyExistsf("DAG %s", dagID)
	}
	f.dagEntities[dagID] = dag
	f.markPaused(dagID, paused)
	log.Debugf("DAG %s registered with %d tasks, schedule %s", dagID, len(dag.Tasks), sched)
	return nil
}

// validate checks the DAG is not empty, acyclic and every task has an operator.
func (de *dagEntity) validate() error {
	de.mu.RLock()
	defer de.mu.RUnlock()

	if err := de.dagExecutePlan.validate(); err != nil {
		return errors.Trace(err)
	}
	for _, taskID := range de.taskIDs() {
		if de.belongFlow.gt.get(de.DAGID, taskID) == nil {
			return errors.NotFoundf("operator of task %s", taskID)
		}
	}
	return nil
}

func (f *flow) GetDAG(dagID string) (types.DAG, bool) {
	dag, exists := f.getDAG(dagID)
	if !exists {
		return nil, false
	}
	return dag, true
}

func (f *flow) getDAG(dagID string) (*dagEntity, bool) {
	f.dagMu.Lock()
	defer f.dagMu.Unlock()
	dag, exists := f.dagEntities[dagID]
	return dag, exists
}

func (f *flow) ListDAGs() []types.DAG {
	f.dagMu.Lock()
	defer f.dagMu.Unlock()

	dags := make([]types.DAG, 0, len(f.dagEntities))
	for _, dagID := range utils.SortedKeys(f.dagEntities) {
		dags = append(dags, f.dagEntities[dagID])
	}
	return dags
}

func (f *flow) ListDAGNames() ([]string, error) {
	f.dagMu.Lock()
	defer f.dagMu.Unlock()
	return utils.SortedKeys(f.dagEntities), nil
}

func (f *flow) RenderDAG(dagID string) (string, error) {
	dag, exists := f.getDAG(dagID)
	if !exists {
		return "", errors.NotFoundf("DAG: %s", dagID)
	}
	return f.renderDOT(dag.snapshot(), nil)
}

func (f *flow) TriggerDAG(ctx context.Context, dagID string, logicalDate time.Time, conf types.Data) (string, error) {
	dag, exists := f.getDAG(dagID)
	if !exists {
		return "", errors.NotFoundf("DAG: %s", dagID)
	}
	runID := makeRunID(types.RunTypeManual, logicalDate)
	interval := dag.schedule.ManualDataInterval(logicalDate)
	err := f.createRun(ctx, dag, runID, types.RunTypeManual, logicalDate, interval, conf)
	return runID, errors.Trace(err)
}

func (f *flow) RunDAG(ctx context.Context, dagID, runID string, conf types.Data) error {
	dag, exists := f.getDAG(dagID)
	if !exists {
		return errors.NotFoundf("DAG: %s", dagID)
	}
	if strings.TrimSpace(runID) == "" {
		return errors.BadRequestf("run id is empty")
	}
	if err := validateRunID(runID); err != nil {
		return errors.Trace(err)
	}
	now := time.Now().UTC()
	return f.createRun(ctx, dag, runID, types.RunTypeManual, now, dag.schedule.ManualDataInterval(now), conf)
}

func (f *flow) TriggerRun(ctx context.Context, dagID string, runType types.RunType, interval types.DataInterval, conf types.Data) (string, error) {
	dag, exists := f.getDAG(dagID)
	if !exists {
		return "", errors.NotFoundf("DAG: %s", dagID)
	}
	runID := makeRunID(runType, interval.Start)
	err := f.createRun(ctx, dag, runID, runType, interval.Start, interval, conf)
	return runID, errors.Trace(err)
}

func (f *flow) createRun(ctx context.Context, dag *dagEntity, runID string, runType types.RunType,
	logicalDate time.Time, interval types.DataInterval, conf types.Data) error {
	if !f.running.Load() {
		return errors.MethodNotAllowedf("not running")
	}
	if f.hasRun(dag.DAGID, runID) {
		return errors.AlreadyExistsf("run %s", runKey(dag.DAGID, runID))
	}
	existing, err := f.loadRun(ctx, dag.DAGID, runID)
	if err != nil {
		return errors.Trace(err)
	}
	if existing != nil {
		return errors.AlreadyExistsf("run %s", runKey(dag.DAGID, runID))
	}

	run := &types.DagRun{
		RunID:        runID,
		DAGID:        dag.DAGID,
		RunType:      runType,
		LogicalDate:  logicalDate.UTC(),
		DataInterval: interval,
		State:        types.Queued,
		QueuedAt:     time.Now(),
		Conf:         conf,
	}
	plan := dag.snapshot()
	r, err := newRunRunner(f, plan, dag.Args().Params, run, nil)
	if err != nil {
		return errors.Trace(err)
	}

	if err := f.savePlan(ctx, dag.DAGID, runID, plan); err != nil {
		return errors.Trace(err)
	}
	for _, ti := range r.tis {
		if err := f.saveTaskInstance(ctx, ti); err != nil {
			return errors.Trace(err)
		}
	}
	if err := f.saveRun(ctx, run); err != nil {
		return errors.Trace(err)
	}
	if err := f.startRun(r); err != nil {
		return errors.Trace(err)
	}
	log.Infof("created run %s, logical date %s", r.key(), run.LogicalDate.Format(templating.TSLayout))
	return nil
}

func (f *flow) lookupTask(dagID, taskID string) (*dagEntity, *taskRuntime, types.TaskArgs, error) {
	dag, exists := f.getDAG(dagID)
	if !exists {
		return nil, nil, types.TaskArgs{}, errors.NotFoundf("DAG: %s", dagID)
	}
	args, exists := dag.TaskArgs(taskID)
	if !exists {
		return nil, nil, types.TaskArgs{}, errors.NotFoundf("task %s in DAG %s", taskID, dagID)
	}
	return dag, f.gt.get(dagID, taskID), args, nil
}

func (f *flow) TestTask(ctx context.Context, dagID, taskID string, logicalDate time.Time) (*types.TaskInstance, error) {
	dag, rt, args, err := f.lookupTask(dagID, taskID)
	if err != nil {
		return nil, errors.Trace(err)
	}

	run := &types.DagRun{
		RunID:        "test__" + logicalDate.UTC().Format(templating.TSLayout),
		DAGID:        dagID,
		RunType:      types.RunTypeManual,
		LogicalDate:  logicalDate.UTC(),
		DataInterval: dag.schedule.ManualDataInterval(logicalDate),
		State:        types.Running,
	}
	ti := &types.TaskInstance{
		DAGID:     dagID,
		TaskID:    taskID,
		RunID:     run.RunID,
		State:     types.Running,
		TryNumber: 1,
		MaxTries:  args.Retries + 1,
		JobID:     uuid.NewString(),
		Hostname:  f.hostname,
		Start:     time.Now(),
	}

	tryCtx, cancel := context.WithCancel(ctx)
	if args.ExecutionTimeout > 0 {
		tryCtx, cancel = context.WithTimeout(ctx, args.ExecutionTimeout)
	}
	defer cancel()

	output, runErr := rt.runOnce(newFlowContext(tryCtx, run, ti, args, dag.Args().Params))
	ti.End = time.Now()
	ti.Duration = ti.End.Sub(ti.Start)
	switch {
	case runErr == nil:
		ti.State = types.Success
		ti.Output = output
	case types.IsSkip(runErr):
		ti.State = types.Skipped
	default:
		ti.State = types.Failed
		ti.Error = runErr.Error()
	}
	return ti, nil
}

func (f *flow) RenderTask(dagID, taskID string, logicalDate time.Time) (map[string]string, error) {
	dag, rt, args, err := f.lookupTask(dagID, taskID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	templated, ok := rt.op.(types.TemplatedOperator)
	if !ok {
		return nil, errors.NotSupportedf("task %s has no templated fields", taskID)
	}

	run := &types.DagRun{
		RunID:        makeRunID(types.RunTypeManual, logicalDate),
		DAGID:        dagID,
		LogicalDate:  logicalDate.UTC(),
		DataInterval: dag.schedule.ManualDataInterval(logicalDate),
	}
	ti := &types.TaskInstance{DAGID: dagID, TaskID: taskID, RunID: run.RunID, TryNumber: 1}
	fc := newFlowContext(context.Background(), run, ti, args, dag.Args().Params)
	fields, err := templated.RenderTemplateFields(fc.GetTemplateContext())
	return fields, errors.Trace(err)
}

func (f *flow) GetRunStatus(ctx context.Context, dagID, runID string) (*types.RunStatus, error) {
	if r := f.getRunner(dagID, runID); r != nil {
		return r.status(), nil
	}

	run, err := f.loadRun(ctx, dagID, runID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if run == nil {
		return nil, errors.NotFoundf("run %s", runKey(dagID, runID))
	}
	tis, err := f.loadTaskInstances(ctx, dagID, runID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &types.RunStatus{Run: run, Tasks: tis}, nil
}

func (f *flow) ListRuns(ctx context.Context, dagID string) ([]*types.DagRun, error) {
	if _, exists := f.getDAG(dagID); !exists {
		return nil, errors.NotFoundf("DAG: %s", dagID)
	}
	return f.listRuns(ctx, dagID)
}

func (f *flow) RenderRun(ctx context.Context, dagID, runID string) (string, error) {
	plan, err := f.loadPlan(ctx, dagID, runID)
	if err != nil {
		return "", errors.Trace(err)
	}
	status, err := f.GetRunStatus(ctx, dagID, runID)
	if err != nil {
		return "", errors.Trace(err)
	}
	return f.renderDOT(plan, status.Tasks)
}

func (f *flow) WaitRun(ctx context.Context, dagID, runID string) (*types.RunStatus, error) {
	if r := f.getRunner(dagID, runID); r != nil {
		select {
		case <-r.done():
			return r.status(), nil
		case <-ctx.Done():
			return nil, errors.Annotatef(ctx.Err(), "wait run %s", runKey(dagID, runID))
		}
	}
	return f.GetRunStatus(ctx, dagID, runID)
}

func (f *flow) MarkRunFailed(ctx context.Context, dagID, runID string) error {
	if r := f.getRunner(dagID, runID); r != nil {
		r.markFailed(ctx)
		return nil
	}

	run, err := f.loadRun(ctx, dagID, runID)
	if err != nil {
		return errors.Trace(err)
	}
	if run == nil {
		return errors.NotFoundf("run %s", runKey(dagID, runID))
	}
	run.State = types.Failed
	if run.EndTime.IsZero() {
		run.EndTime = time.Now()
	}
	return errors.Trace(f.saveRun(ctx, run))
}

func (f *flow) PauseDAG(dagID string) error {
	if _, exists := f.getDAG(dagID); !exists {
		return errors.NotFoundf("DAG: %s", dagID)
	}
	return errors.Trace(f.setPaused(f.ctx, dagID, true))
}

func (f *flow) UnpauseDAG(dagID string) error {
	if _, exists := f.getDAG(dagID); !exists {
		return errors.NotFoundf("DAG: %s", dagID)
	}
	return errors.Trace(f.setPaused(f.ctx, dagID, false))
}

// ActiveRuns counts the unfinished runs of dagID loaded in the engine.
func (f *flow) ActiveRuns(dagID string) int {
	return f.activeRuns(dagID)
}

// TaskStats returns the try counters of a task since the engine started.
func (f *flow) TaskStats(dagID, taskID string) (TaskStats, bool) {
	rt := f.gt.get(dagID, taskID)
	if rt == nil {
		return TaskStats{}, false
	}
	return rt.loadStats(), true
}

func (f *flow) reloadRuns(ctx context.Context) (map[string]error, error) {
	errs := make(map[string]error, 0)
	dagIDs, _ := f.ListDAGNames()
	for _, dagID := range dagIDs {
		runIDs, err := f.listKeys(ctx, dagRunSavePath(dagID))
		if err != nil {
			return errs, errors.Trace(err)
		}
		for _, runID := range runIDs {
			if err := f.rerunRun(ctx, dagID, runID); err != nil {
				errs[runKey(dagID, runID)] = errors.Trace(err)
			}
		}
	}
	if len(errs) == 0 {
		errs = nil
	}
	return errs, nil
}

func (f *flow) rerunRun(ctx context.Context, dagID, runID string) error {
	if f.hasRun(dagID, runID) {
		return errors.AlreadyExistsf("run already loaded: %s", runKey(dagID, runID))
	}

	run, err := f.loadRun(ctx, dagID, runID)
	if err != nil {
		return errors.Trace(err)
	}
	if run == nil {
		return errors.NotFoundf("run %s", runKey(dagID, runID))
	}
	if run.State.IsFinished() {
		return nil
	}

	plan, err := f.loadPlan(ctx, dagID, runID)
	if err != nil {
		return errors.Trace(err)
	}
	for taskID := range plan.Tasks {
		if f.gt.get(dagID, taskID) == nil {
			return errors.NotFoundf("operator of task %s", taskID)
		}
	}
	tis, err := f.loadTaskInstances(ctx, dagID, runID)
	if err != nil {
		return errors.Trace(err)
	}
	for _, ti := range tis {
		if ti.State == types.Running || ti.State == types.Queued {
			log.Warnf("reset %s of %s from %v", ti.TaskID, runKey(dagID, runID), ti.State)
			ti.State = types.None
			if err := f.saveTaskInstance(ctx, ti); err != nil {
				return errors.Trace(err)
			}
		}
	}

	dag, _ := f.getDAG(dagID)
	r, err := newRunRunner(f, plan, dag.Args().Params, run, tis)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(f.startRun(r))
}

// Close stops the engine and closes its store.
func (f *flow) Close(ctx context.Context) error {
	if !f.running.Load() {
		return nil
	}

	f.running.Store(false)
	f.cancel()

	if f.exitCh != nil {
		<-f.exitCh
	}

	if err := f.batchRunner.stopWait(ctx); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(f.store.Close())
}

func (f *flow) RunOnce() error {
	return f.runOnce()
}
