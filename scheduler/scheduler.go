// Package scheduler creates the scheduled runs of registered DAGs.
//
// Every DAG with a schedule gets a cron entry firing when one of its data
// intervals may become due. A periodic sync entry covers DAGs registered or
// unpaused after Start and intervals missed while the process was down.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/mcuadros/go-defaults"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/dagflow/schedule"
	"github.com/warriorguo/dagflow/types"
)

// Engine is the part of types.FlowEngine the scheduler drives.
type Engine interface {
	GetDAG(dagID string) (types.DAG, bool)
	ListDAGNames() ([]string, error)
	IsPaused(dagID string) bool
	ListRuns(ctx context.Context, dagID string) ([]*types.DagRun, error)
	TriggerRun(ctx context.Context, dagID string, runType types.RunType, interval types.DataInterval, conf types.Data) (string, error)
}

type Options struct {
	/**
	 * default: 30s, how often every DAG is checked regardless of its
	 * own cron entry.
	 */
	SyncInterval time.Duration `default:"30s"`
	// Now is the clock used to decide which intervals are due.
	Now func() time.Time
}

type Option func(*Options)

func WithSyncInterval(d time.Duration) Option {
	return func(opts *Options) {
		opts.SyncInterval = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

type Scheduler struct {
	engine Engine
	opts   *Options
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
	// ticks of the same DAG never overlap
	dagLocks map[string]*sync.Mutex
	started  bool
}

func NewScheduler(engine Engine, opts ...Option) *Scheduler {
	o := &Options{Now: time.Now}
	defaults.SetDefaults(o)
	for _, opt := range opts {
		opt(o)
	}

	logger := cron.PrintfLogger(log.WithField("component", "cron"))
	return &Scheduler{
		engine: engine,
		opts:   o,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		entries:  make(map[string]cron.EntryID),
		dagLocks: make(map[string]*sync.Mutex),
	}
}

// Start schedules every registered DAG, creates the runs already due and
// starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.AlreadyExistsf("scheduler started")
	}
	s.started = true
	s.mu.Unlock()

	if err := s.Sync(ctx); err != nil {
		return errors.Trace(err)
	}
	if _, err := s.cron.AddFunc("@every "+s.opts.SyncInterval.String(), func() {
		if err := s.Sync(context.Background()); err != nil {
			log.Errorf("sync DAGs failed: %v", err)
		}
	}); err != nil {
		return errors.Annotatef(err, "add sync entry")
	}

	s.cron.Start()
	log.Infof("scheduler started with %d scheduled DAGs", len(s.EntryDAGs()))
	return nil
}

// Stop stops the cron loop and waits for running ticks until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		log.Infof("scheduler stopped")
		return nil
	case <-ctx.Done():
		return errors.Annotatef(ctx.Err(), "stop scheduler")
	}
}

// Sync adds cron entries for new DAGs and ticks every DAG once.
func (s *Scheduler) Sync(ctx context.Context) error {
	dagIDs, err := s.engine.ListDAGNames()
	if err != nil {
		return errors.Trace(err)
	}
	for _, dagID := range dagIDs {
		if err := s.ensureEntry(dagID); err != nil {
			log.Errorf("schedule DAG %s failed: %v", dagID, err)
			continue
		}
		if _, err := s.Tick(ctx, dagID); err != nil {
			log.Errorf("tick DAG %s failed: %v", dagID, err)
		}
	}
	return nil
}

// EntryDAGs lists the DAGs owning a cron entry.
func (s *Scheduler) EntryDAGs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	dagIDs := make([]string, 0, len(s.entries))
	for dagID := range s.entries {
		dagIDs = append(dagIDs, dagID)
	}
	return dagIDs
}

func (s *Scheduler) ensureEntry(dagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[dagID]; exists {
		return nil
	}

	dag, exists := s.engine.GetDAG(dagID)
	if !exists {
		return errors.NotFoundf("DAG: %s", dagID)
	}
	args := dag.Args()
	sched, err := schedule.Resolve(args)
	if err != nil {
		return errors.Trace(err)
	}
	trigger := sched.Trigger(args.StartDate)
	if trigger == nil {
		return nil
	}

	s.entries[dagID] = s.cron.Schedule(trigger, cron.FuncJob(func() {
		if _, err := s.Tick(context.Background(), dagID); err != nil {
			log.Errorf("tick DAG %s failed: %v", dagID, err)
		}
	}))
	log.Debugf("DAG %s scheduled with %s", dagID, sched)
	return nil
}

func (s *Scheduler) dagLock(dagID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, exists := s.dagLocks[dagID]
	if !exists {
		l = &sync.Mutex{}
		s.dagLocks[dagID] = l
	}
	return l
}

/**
 * Tick creates the scheduled runs of dagID that are due, oldest first,
 * and returns their run IDs.
 * Without catchup only the latest due interval is created. Paused DAGs and
 * DAGs with MaxActiveRuns unfinished runs get nothing.
 */
func (s *Scheduler) Tick(ctx context.Context, dagID string) ([]string, error) {
	l := s.dagLock(dagID)
	l.Lock()
	defer l.Unlock()

	dag, exists := s.engine.GetDAG(dagID)
	if !exists {
		return nil, errors.NotFoundf("DAG: %s", dagID)
	}
	if s.engine.IsPaused(dagID) {
		return nil, nil
	}
	args := dag.Args()
	sched, err := schedule.Resolve(args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if schedule.IsManual(sched) {
		return nil, nil
	}

	runs, err := s.engine.ListRuns(ctx, dagID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	last, active := lastScheduled(runs)

	restriction := schedule.Restriction{
		StartDate: args.StartDate,
		EndDate:   args.EndDate,
		Catchup:   args.Catchup,
		Now:       s.opts.Now(),
	}

	runIDs := make([]string, 0)
	for args.MaxActiveRuns <= 0 || active < args.MaxActiveRuns {
		interval, due := sched.NextDataInterval(last, restriction)
		if !due {
			break
		}
		// a schedule that stops advancing would create the same run forever
		if interval.Start.IsZero() || (last != nil && !interval.Start.After(last.Start)) {
			log.WithField("dag_id", dagID).Warnf("schedule %s did not advance past %s", sched, interval.Start)
			break
		}

		runID, err := s.engine.TriggerRun(ctx, dagID, types.RunTypeScheduled, interval, nil)
		if err != nil && !errors.Is(err, errors.AlreadyExists) {
			return runIDs, errors.Annotatef(err, "create run of %s for %s", dagID, interval.Start)
		}
		if err == nil {
			log.WithFields(log.Fields{"dag_id": dagID, "run_id": runID}).
				Infof("scheduled run created for [%s, %s)", interval.Start, interval.End)
			runIDs = append(runIDs, runID)
			active++
		}
		last = &interval
	}
	return runIDs, nil
}

// lastScheduled returns the latest scheduled data interval and the number of unfinished runs.
func lastScheduled(runs []*types.DagRun) (*types.DataInterval, int) {
	var last *types.DataInterval
	active := 0
	for _, run := range runs {
		if !run.State.IsFinished() {
			active++
		}
		if run.RunType != types.RunTypeScheduled {
			continue
		}
		if last == nil || run.DataInterval.Start.After(last.Start) {
			interval := run.DataInterval
			last = &interval
		}
	}
	return last, active
}
