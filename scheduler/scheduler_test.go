package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warriorguo/dagflow/runtime"
	"github.com/warriorguo/dagflow/store/mem"
	"github.com/warriorguo/dagflow/types"
)

var (
	startDate = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	now       = time.Date(2021, 1, 4, 0, 30, 0, 0, time.UTC)
)

func newEngine(t *testing.T) types.FlowEngine {
	opts := types.NewFlowOptions()
	opts.AutoStart = false
	opts.MemStore = true
	opts.TaskRunAsync = false
	engine := runtime.NewFlowEngine(mem.NewMemStore(), opts)
	t.Cleanup(func() {
		engine.Close(context.Background())
	})
	return engine
}

func noop(ctx types.Context) (types.Data, error) {
	return types.Data{}, nil
}

func register(t *testing.T, engine types.FlowEngine, dagID string, args types.DAGArgs) {
	require.Nil(t, engine.RegisterDAG(dagID, args, func(dag types.DAG) error {
		return dag.Task("print_date", types.OperatorFunc(noop))
	}))
}

func fixedClock() Option {
	return WithClock(func() time.Time { return now })
}

func TestTickCatchup(t *testing.T) {
	engine := newEngine(t)
	register(t, engine, "daily", types.DAGArgs{Schedule: "@daily", StartDate: startDate, Catchup: true})

	s := NewScheduler(engine, fixedClock())
	runIDs, err := s.Tick(context.Background(), "daily")
	require.Nil(t, err)
	assert.Equal(t, []string{
		"scheduled__2021-01-01T00:00:00+00:00",
		"scheduled__2021-01-02T00:00:00+00:00",
		"scheduled__2021-01-03T00:00:00+00:00",
	}, runIDs)

	status, err := engine.GetRunStatus(context.Background(), "daily", runIDs[2])
	require.Nil(t, err)
	assert.Equal(t, types.RunTypeScheduled, status.Run.RunType)
	assert.Equal(t, startDate.AddDate(0, 0, 2), status.Run.LogicalDate)
	assert.Equal(t, startDate.AddDate(0, 0, 3), status.Run.DataInterval.End)

	// nothing new is due
	runIDs, err = s.Tick(context.Background(), "daily")
	require.Nil(t, err)
	assert.Empty(t, runIDs)
}

func TestTickWithoutCatchup(t *testing.T) {
	engine := newEngine(t)
	register(t, engine, "daily", types.DAGArgs{Schedule: "@daily", StartDate: startDate})

	s := NewScheduler(engine, fixedClock())
	runIDs, err := s.Tick(context.Background(), "daily")
	require.Nil(t, err)
	assert.Equal(t, []string{"scheduled__2021-01-03T00:00:00+00:00"}, runIDs)

	runIDs, err = s.Tick(context.Background(), "daily")
	require.Nil(t, err)
	assert.Empty(t, runIDs)
}

func TestTickInterval(t *testing.T) {
	engine := newEngine(t)
	register(t, engine, "twice_daily", types.DAGArgs{ScheduleInterval: 12 * time.Hour, StartDate: startDate, Catchup: true})

	s := NewScheduler(engine, fixedClock())
	runIDs, err := s.Tick(context.Background(), "twice_daily")
	require.Nil(t, err)
	assert.Len(t, runIDs, 6)
	assert.Equal(t, "scheduled__2021-01-03T12:00:00+00:00", runIDs[5])
}

func TestTickMaxActiveRuns(t *testing.T) {
	engine := newEngine(t)
	register(t, engine, "daily", types.DAGArgs{Schedule: "@daily", StartDate: startDate, Catchup: true, MaxActiveRuns: 2})

	s := NewScheduler(engine, fixedClock())
	runIDs, err := s.Tick(context.Background(), "daily")
	require.Nil(t, err)
	assert.Len(t, runIDs, 2)

	runIDs, err = s.Tick(context.Background(), "daily")
	require.Nil(t, err)
	assert.Empty(t, runIDs)

	// finishing the queued runs frees the slots
	assert.Nil(t, engine.RunOnce())
	runIDs, err = s.Tick(context.Background(), "daily")
	require.Nil(t, err)
	assert.Equal(t, []string{"scheduled__2021-01-03T00:00:00+00:00"}, runIDs)
}

func TestTickSkipped(t *testing.T) {
	engine := newEngine(t)
	register(t, engine, "paused", types.DAGArgs{Schedule: "@daily", StartDate: startDate, Catchup: true})
	register(t, engine, "manual", types.DAGArgs{StartDate: startDate})
	assert.Nil(t, engine.PauseDAG("paused"))

	s := NewScheduler(engine, fixedClock())
	runIDs, err := s.Tick(context.Background(), "paused")
	assert.Nil(t, err)
	assert.Empty(t, runIDs)

	runIDs, err = s.Tick(context.Background(), "manual")
	assert.Nil(t, err)
	assert.Empty(t, runIDs)

	_, err = s.Tick(context.Background(), "unknown")
	assert.NotNil(t, err)

	assert.Nil(t, engine.UnpauseDAG("paused"))
	runIDs, err = s.Tick(context.Background(), "paused")
	assert.Nil(t, err)
	assert.Len(t, runIDs, 3)
}

func TestTickOnce(t *testing.T) {
	engine := newEngine(t)
	register(t, engine, "once", types.DAGArgs{Schedule: "@once", StartDate: startDate})

	s := NewScheduler(engine, fixedClock())
	runIDs, err := s.Tick(context.Background(), "once")
	require.Nil(t, err)
	assert.Equal(t, []string{"scheduled__2021-01-01T00:00:00+00:00"}, runIDs)

	runIDs, err = s.Tick(context.Background(), "once")
	require.Nil(t, err)
	assert.Empty(t, runIDs)
}

func TestTickIgnoresManualRuns(t *testing.T) {
	engine := newEngine(t)
	register(t, engine, "daily", types.DAGArgs{Schedule: "@daily", StartDate: startDate})

	_, err := engine.TriggerDAG(context.Background(), "daily", startDate.AddDate(0, 0, 3), nil)
	require.Nil(t, err)

	s := NewScheduler(engine, fixedClock())
	runIDs, err := s.Tick(context.Background(), "daily")
	require.Nil(t, err)
	assert.Equal(t, []string{"scheduled__2021-01-03T00:00:00+00:00"}, runIDs)
}

func TestTickNeverFiring(t *testing.T) {
	engine := newEngine(t)
	register(t, engine, "never", types.DAGArgs{Schedule: "0 0 30 2 *", StartDate: startDate, Catchup: true})

	s := NewScheduler(engine, fixedClock())
	type result struct {
		runIDs []string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		runIDs, err := s.Tick(context.Background(), "never")
		done <- result{runIDs, err}
	}()

	select {
	case res := <-done:
		assert.Nil(t, res.err)
		assert.Empty(t, res.runIDs)
	case <-time.After(5 * time.Second):
		t.Fatal("tick of a schedule that never fires did not return")
	}

	runs, err := engine.ListRuns(context.Background(), "never")
	require.Nil(t, err)
	assert.Empty(t, runs)

	// the DAG does not hold up the others
	register(t, engine, "daily", types.DAGArgs{Schedule: "@daily", StartDate: startDate})
	require.Nil(t, s.Start(context.Background()))
	defer s.Stop(context.Background())
	runs, err = engine.ListRuns(context.Background(), "daily")
	require.Nil(t, err)
	assert.Len(t, runs, 1)
}

func TestStartStop(t *testing.T) {
	engine := newEngine(t)
	register(t, engine, "daily", types.DAGArgs{Schedule: "@daily", StartDate: startDate})
	register(t, engine, "manual", types.DAGArgs{StartDate: startDate})

	s := NewScheduler(engine, fixedClock(), WithSyncInterval(time.Hour))
	require.Nil(t, s.Start(context.Background()))
	assert.NotNil(t, s.Start(context.Background()))
	assert.Equal(t, []string{"daily"}, s.EntryDAGs())

	runs, err := engine.ListRuns(context.Background(), "daily")
	require.Nil(t, err)
	assert.Len(t, runs, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Nil(t, s.Stop(ctx))
}

func TestLastScheduled(t *testing.T) {
	last, active := lastScheduled(nil)
	assert.Nil(t, last)
	assert.Equal(t, 0, active)

	day := 24 * time.Hour
	runs := []*types.DagRun{
		{RunType: types.RunTypeScheduled, State: types.Success, DataInterval: types.DataInterval{Start: startDate.Add(day), End: startDate.Add(2 * day)}},
		{RunType: types.RunTypeScheduled, State: types.Running, DataInterval: types.DataInterval{Start: startDate, End: startDate.Add(day)}},
		{RunType: types.RunTypeManual, State: types.Queued, DataInterval: types.DataInterval{Start: startDate.Add(5 * day), End: startDate.Add(6 * day)}},
	}
	last, active = lastScheduled(runs)
	require.NotNil(t, last)
	assert.Equal(t, startDate.Add(day), last.Start)
	assert.Equal(t, 2, active)
}
