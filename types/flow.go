package types

import (
	"context"
	"time"
)

type FlowEngine interface {
	RegisterDAG(dagID string, args DAGArgs, handler DAGHandler) error
	GetDAG(dagID string) (DAG, bool)
	ListDAGs() []DAG
	ListDAGNames() ([]string, error)
	/**
	 * RenderDAG will return the DOT string of the DAG given the ID.
	 */
	RenderDAG(dagID string) (string, error)

	/**
	 * TriggerDAG queues a manual run for logicalDate and returns its run ID.
	 */
	TriggerDAG(ctx context.Context, dagID string, logicalDate time.Time, conf Data) (string, error)
	/**
	 * RunDAG queues a manual run under a caller chosen run ID,
	 * the logical date is the current time.
	 */
	RunDAG(ctx context.Context, dagID, runID string, conf Data) error
	/**
	 * TriggerRun queues a run for an explicit data interval, used by the scheduler.
	 */
	TriggerRun(ctx context.Context, dagID string, runType RunType, interval DataInterval, conf Data) (string, error)
	/**
	 * TestTask runs a single task for logicalDate, ignoring dependencies
	 * and without persisting any state.
	 */
	TestTask(ctx context.Context, dagID, taskID string, logicalDate time.Time) (*TaskInstance, error)
	RenderTask(dagID, taskID string, logicalDate time.Time) (map[string]string, error)

	/**
	 * Runs are identified by DAG ID and run ID.
	 */
	GetRunStatus(ctx context.Context, dagID, runID string) (*RunStatus, error)
	ListRuns(ctx context.Context, dagID string) ([]*DagRun, error)
	RenderRun(ctx context.Context, dagID, runID string) (string, error)
	/**
	 * WaitRun blocks until the run finishes or ctx is done.
	 */
	WaitRun(ctx context.Context, dagID, runID string) (*RunStatus, error)
	MarkRunFailed(ctx context.Context, dagID, runID string) error

	PauseDAG(dagID string) error
	UnpauseDAG(dagID string) error
	IsPaused(dagID string) bool

	/**
	 * close the engine, running tries are cancelled and unfinished runs
	 * stay in the store to be picked up by ReloadRuns.
	 */
	Close(ctx context.Context) error
	/**
	 * caller self invoking RunOnce, FlowOption.AutoStart should be false.
	 */
	RunOnce() error
	/**
	 * ReloadRuns loads the unfinished runs of the registered DAGs from the store.
	 * Runs already loaded are reported with an AlreadyExists error.
	 */
	ReloadRuns(ctx context.Context) (map[string]error, error)
}
