package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/dagflow/types"
	"github.com/warriorguo/dagflow/utils"
)

func newBatchRunner(concurrency int, asyncFlag bool) *batchRunner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &batchRunner{
		wp:        workerpool.New(concurrency),
		asyncFlag: asyncFlag,
		maxActive: int32(concurrency),
	}
}

/**
 * batchRunner drives every loaded run, task tries of all runs share
 * the worker pool and the MaxActiveTasks budget.
 */
type batchRunner struct {
	mu sync.Mutex

	wp        *workerpool.WorkerPool
	asyncFlag bool
	maxActive int32
	active    int32
	runners   map[string]*runRunner
}

func (b *batchRunner) exists(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, exists := b.runners[key]
	return exists
}

func (b *batchRunner) get(key string) *runRunner {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.runners[key]
}

func (b *batchRunner) add(key string, r *runRunner) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.runners == nil {
		b.runners = make(map[string]*runRunner)
	}
	if _, exists := b.runners[key]; exists {
		return errors.AlreadyExistsf("run: %s", key)
	}
	b.runners[key] = r
	return nil
}

func (b *batchRunner) count(filter func(r *runRunner) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, r := range b.runners {
		if filter(r) {
			n++
		}
	}
	return n
}

func (b *batchRunner) isEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.runners) == 0
}

func (b *batchRunner) stopWait(ctx context.Context) error {
	b.wp.StopWait()

	b.mu.Lock()
	defer b.mu.Unlock()

	for key, r := range b.runners {
		log.Infof("run %s left unfinished, state: %v", key, r.state())
	}
	b.runners = nil
	return nil
}

func (b *batchRunner) runOnce(ctx context.Context, isPaused func(dagID string) bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.runners) == 0 {
		return nil
	}

	keys := utils.SortedKeys(b.runners)
	for _, key := range keys {
		r := b.runners[key]
		if isPaused(r.run.DAGID) {
			continue
		}

		free := int(b.maxActive - atomic.LoadInt32(&b.active))
		taskIDs, err := r.prepare(ctx, time.Now(), free)
		if err != nil {
			return errors.Annotatef(err, "prepare run %s", key)
		}

		for _, taskID := range taskIDs {
			atomic.AddInt32(&b.active, 1)
			if b.asyncFlag {
				r, taskID := r, taskID
				b.wp.Submit(func() {
					defer atomic.AddInt32(&b.active, -1)
					r.execute(ctx, taskID)
				})
			} else {
				r.execute(ctx, taskID)
				atomic.AddInt32(&b.active, -1)
			}
		}
	}

	for _, key := range keys {
		if b.runners[key].canRemove() {
			delete(b.runners, key)
		}
	}
	return nil
}

// runRunner keeps the task instances of one DAG run and moves them along.
type runRunner struct {
	mu sync.Mutex

	belongFlow *flow

	plan   *dagExecutePlan
	order  []string
	params types.Data

	run     *types.DagRun
	tis     map[string]*types.TaskInstance
	running map[string]context.CancelFunc

	terminated bool
	doneOnce   sync.Once
	doneCh     chan struct{}
}

func newRunRunner(f *flow, plan *dagExecutePlan, params types.Data, run *types.DagRun,
	tis map[string]*types.TaskInstance) (*runRunner, error) {
	order, err := plan.topoOrder()
	if err != nil {
		return nil, errors.Trace(err)
	}

	if tis == nil {
		tis = make(map[string]*types.TaskInstance, len(plan.Tasks))
	}
	for taskID, info := range plan.Tasks {
		if _, exists := tis[taskID]; exists {
			continue
		}
		tis[taskID] = &types.TaskInstance{
			DAGID:    run.DAGID,
			TaskID:   taskID,
			RunID:    run.RunID,
			State:    types.None,
			MaxTries: info.Args.Retries + 1,
		}
	}

	r := &runRunner{
		belongFlow: f,
		plan:       plan,
		order:      order,
		params:     params,
		run:        run,
		tis:        tis,
		running:    make(map[string]context.CancelFunc),
		doneCh:     make(chan struct{}),
	}
	if run.State.IsFinished() {
		r.markDone()
	}
	return r, nil
}

func (r *runRunner) key() string {
	return runKey(r.run.DAGID, r.run.RunID)
}

func (r *runRunner) state() types.StatusType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run.State
}

func (r *runRunner) isActive() bool {
	return !r.state().IsFinished()
}

func (r *runRunner) canRemove() bool {
	if !r.mu.TryLock() {
		return false
	}
	defer r.mu.Unlock()

	return r.run.State.IsFinished() && len(r.running) == 0
}

func (r *runRunner) markDone() {
	r.doneOnce.Do(func() {
		close(r.doneCh)
	})
}

func (r *runRunner) done() <-chan struct{} {
	return r.doneCh
}

func (r *runRunner) persist(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func (r *runRunner) saveRun(ctx context.Context) {
	if err := r.belongFlow.saveRun(r.persist(ctx), r.run); err != nil {
		log.Errorf("%s failed to save run: %v", r.key(), err)
	}
}

func (r *runRunner) saveTaskInstance(ctx context.Context, ti *types.TaskInstance) {
	if err := r.belongFlow.saveTaskInstance(r.persist(ctx), ti); err != nil {
		log.Errorf("%s failed to save task instance %s: %v", r.key(), ti.TaskID, err)
	}
}

func (r *runRunner) upstreamStates(taskID string) []types.StatusType {
	upstream := r.plan.upstream(taskID)
	states := make([]types.StatusType, 0, len(upstream))
	for _, up := range upstream {
		states = append(states, r.tis[up].State)
	}
	return states
}

/**
 * prepare walks the task instances in topological order, settles the ones
 * whose trigger rule can not be met and queues at most limit runnable ones.
 */
func (r *runRunner) prepare(ctx context.Context, now time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.run.State.IsFinished() {
		return nil, nil
	}
	if r.run.State != types.Running {
		r.run.State = types.Running
		r.run.StartTime = now
		r.saveRun(ctx)
	}

	ready := make([]string, 0)
	for _, taskID := range r.order {
		ti := r.tis[taskID]
		switch ti.State {
		case types.None, types.Scheduled:
		case types.UpForRetry:
			if now.Before(ti.NextRetry) {
				continue
			}
		default:
			continue
		}

		state, settled := triggerRuleState(r.plan.Tasks[taskID].Args.TriggerRule, r.upstreamStates(taskID))
		if !settled {
			continue
		}
		if state != types.Queued {
			ti.State = state
			ti.End = now
			r.saveTaskInstance(ctx, ti)
			log.Infof("%s marking %s as %v", r.key(), taskID, state)
			continue
		}
		if len(ready) >= limit {
			continue
		}

		if r.plan.Tasks[taskID].Args.DependsOnPast {
			passed, err := r.belongFlow.pastSatisfied(r.persist(ctx), r.run, taskID)
			if err != nil {
				log.Errorf("%s failed to check previous %s: %v", r.key(), taskID, err)
				continue
			}
			if !passed {
				log.Debugf("%s %s waits for its previous task instance", r.key(), taskID)
				continue
			}
		}

		ti.State = types.Queued
		r.saveTaskInstance(ctx, ti)
		ready = append(ready, taskID)
	}

	r.checkFinished(ctx, now)
	return ready, nil
}

func (r *runRunner) startTry(ctx context.Context, taskID string) (*flowContext, *taskRuntime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ti := r.tis[taskID]
	if ti.State != types.Queued {
		return nil, nil, errors.Forbiddenf("%s is %v, not queued", taskID, ti.State)
	}
	if ctx.Err() != nil {
		ti.State = types.None
		r.saveTaskInstance(ctx, ti)
		return nil, nil, errors.Annotatef(ctx.Err(), "engine closed before %s started", taskID)
	}

	args := r.plan.Tasks[taskID].Args
	ti.TryNumber++
	ti.MaxTries = args.Retries + 1
	ti.State = types.Running
	ti.Start = time.Now()
	ti.End = time.Time{}
	ti.Duration = 0
	ti.Error = ""
	ti.NextRetry = time.Time{}
	ti.JobID = uuid.NewString()
	ti.Hostname = r.belongFlow.hostname

	tryCtx, cancel := context.WithCancel(ctx)
	if args.ExecutionTimeout > 0 {
		tryCtx, cancel = context.WithTimeout(ctx, args.ExecutionTimeout)
	}
	r.running[taskID] = cancel
	r.saveTaskInstance(ctx, ti)

	fc := newFlowContext(tryCtx, r.run, ti, args, r.params)
	fc.Logger().Infof("Starting attempt %d of %d", ti.TryNumber, ti.MaxTries)
	return fc, r.belongFlow.gt.get(r.run.DAGID, taskID), nil
}

func (r *runRunner) execute(ctx context.Context, taskID string) {
	fc, rt, err := r.startTry(ctx, taskID)
	if err != nil {
		log.Debugf("%s skip executing %s: %v", r.key(), taskID, err)
		return
	}

	var output types.Data
	var runErr error
	if rt == nil {
		runErr = types.NewFatalError(errors.NotFoundf("operator of task %s", taskID))
	} else {
		output, runErr = rt.runOnce(fc)
	}
	if runErr == nil && fc.Err() != nil {
		runErr = errors.Annotatef(fc.Err(), "task %s", taskID)
	}
	r.endTry(ctx, fc, output, runErr)
}

func (r *runRunner) endTry(ctx context.Context, fc *flowContext, output types.Data, runErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	taskID := fc.GetTaskID()
	if cancel, exists := r.running[taskID]; exists {
		cancel()
		delete(r.running, taskID)
	}

	now := time.Now()
	ti := r.tis[taskID]
	ti.End = now
	ti.Duration = now.Sub(ti.Start)
	args := r.plan.Tasks[taskID].Args
	logger := fc.Logger()

	switch {
	case runErr == nil:
		ti.State = types.Success
		ti.Output = output

	case ctx.Err() != nil && !r.terminated:
		// engine is closing, the try is handed back for ReloadRuns
		ti.State = types.None
		ti.TryNumber--
		ti.Error = ""
		logger.Warnf("try interrupted by shutdown: %v", runErr)
		r.saveTaskInstance(ctx, ti)
		return

	case r.terminated:
		ti.State = types.Failed

	case types.IsSkip(runErr):
		ti.State = types.Skipped

	case types.IsFatal(runErr):
		ti.State = types.Failed

	case ti.TryNumber < ti.MaxTries:
		delay := args.RetryDelayFor(ti.TryNumber)
		if backoff, ok := types.RetryBackoff(runErr); ok {
			delay = backoff
		}
		ti.State = types.UpForRetry
		ti.NextRetry = now.Add(delay)

	default:
		ti.State = types.Failed
	}

	if runErr != nil && ti.State != types.Skipped {
		ti.Error = runErr.Error()
		logger.Errorf("Task failed: %v", runErr)
	}
	logger.Infof("Marking task as %v, duration: %v", ti.State, ti.Duration)
	if ti.State == types.UpForRetry {
		logger.Infof("Next try at %v", ti.NextRetry.Format(time.RFC3339))
	}
	r.saveTaskInstance(ctx, ti)
	r.checkFinished(ctx, now)
}

func (r *runRunner) checkFinished(ctx context.Context, now time.Time) {
	if r.run.State.IsFinished() {
		return
	}
	state, finished := runState(r.tis)
	if !finished {
		return
	}
	r.run.State = state
	r.run.EndTime = now
	r.saveRun(ctx)
	r.markDone()
	log.Infof("Marking run %s %v", r.key(), state)
}

// markFailed cancels the running tries and skips every task that has not finished.
func (r *runRunner) markFailed(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.terminated = true
	for _, cancel := range r.running {
		cancel()
	}

	now := time.Now()
	for _, taskID := range r.order {
		ti := r.tis[taskID]
		if ti.State.IsFinished() || ti.State == types.Running {
			continue
		}
		ti.State = types.Skipped
		ti.End = now
		r.saveTaskInstance(ctx, ti)
	}

	r.run.State = types.Failed
	r.run.EndTime = now
	r.saveRun(ctx)
	r.markDone()
}

func (r *runRunner) status() *types.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := *r.run
	status := &types.RunStatus{
		Run:   &run,
		Tasks: make(map[string]*types.TaskInstance, len(r.tis)),
	}
	for taskID, ti := range r.tis {
		copied := *ti
		status.Tasks[taskID] = &copied
	}
	return status
}
