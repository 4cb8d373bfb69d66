package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/dagflow/store"
	"github.com/warriorguo/dagflow/utils"
)

// pausedSyncInterval is how often a running engine picks up pauses made by other processes.
const pausedSyncInterval = 5 * time.Second

type flowExecute struct {
	ctx    context.Context
	cancel context.CancelFunc

	exitCh  chan struct{}
	running atomic.Bool

	store        store.Store
	hostname     string
	pollInterval time.Duration

	batchRunner *batchRunner

	pausedMu sync.RWMutex
	paused   map[string]bool
}

func (fe *flowExecute) asyncRun() {
	fe.exitCh = make(chan struct{})

	go func() {
		defer close(fe.exitCh)

		ticker := time.NewTicker(fe.pollInterval)
		defer ticker.Stop()
		var pausedSynced time.Time
		for {
			if time.Since(pausedSynced) >= pausedSyncInterval {
				if err := fe.syncPaused(fe.ctx); err != nil {
					log.Errorf("sync paused DAGs failed: %v", err)
				} else {
					pausedSynced = time.Now()
				}
			}
			if err := fe.runOnce(); err != nil {
				log.Errorf("run once failed: %v", err)
			}
			select {
			case <-fe.ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (fe *flowExecute) startRun(r *runRunner) error {
	return fe.batchRunner.add(r.key(), r)
}

func (fe *flowExecute) hasRun(dagID, runID string) bool {
	return fe.batchRunner.exists(runKey(dagID, runID))
}

func (fe *flowExecute) getRunner(dagID, runID string) *runRunner {
	return fe.batchRunner.get(runKey(dagID, runID))
}

func (fe *flowExecute) runOnce() error {
	if !fe.running.Load() {
		return errors.MethodNotAllowedf("not running")
	}
	return fe.batchRunner.runOnce(fe.ctx, fe.IsPaused)
}

func (fe *flowExecute) isRunningEmpty() bool {
	return fe.batchRunner.isEmpty()
}

// activeRuns counts the loaded runs of dagID that have not finished.
func (fe *flowExecute) activeRuns(dagID string) int {
	return fe.batchRunner.count(func(r *runRunner) bool {
		return r.run.DAGID == dagID && r.isActive()
	})
}

// setPaused stores the flag first, so it is never visible in memory only.
func (fe *flowExecute) setPaused(ctx context.Context, dagID string, paused bool) error {
	var err error
	if paused {
		var b []byte
		if b, err = utils.Serialize(true); err == nil {
			err = fe.store.Set(ctx, DAGPausedPath, dagID, b)
		}
	} else {
		err = fe.store.Remove(ctx, DAGPausedPath, dagID)
	}
	if err != nil {
		return errors.Annotatef(err, "save paused flag of DAG %s", dagID)
	}

	fe.markPaused(dagID, paused)
	log.Infof("DAG %s paused: %v", dagID, paused)
	return nil
}

func (fe *flowExecute) markPaused(dagID string, paused bool) {
	fe.pausedMu.Lock()
	defer fe.pausedMu.Unlock()

	if paused {
		fe.paused[dagID] = true
	} else {
		delete(fe.paused, dagID)
	}
}

func (fe *flowExecute) loadPaused(ctx context.Context, dagID string) (bool, error) {
	b, err := fe.store.Get(ctx, DAGPausedPath, dagID)
	if err != nil {
		return false, errors.Trace(err)
	}
	return b != nil, nil
}

// syncPaused replaces the in-memory flags with the stored ones.
func (fe *flowExecute) syncPaused(ctx context.Context) error {
	paused := make(map[string]bool)
	err := fe.store.List(ctx, DAGPausedPath, func(dagID string) bool {
		paused[dagID] = true
		return true
	})
	if err != nil {
		return errors.Trace(err)
	}

	fe.pausedMu.Lock()
	defer fe.pausedMu.Unlock()
	fe.paused = paused
	return nil
}

func (fe *flowExecute) IsPaused(dagID string) bool {
	fe.pausedMu.RLock()
	defer fe.pausedMu.RUnlock()
	return fe.paused[dagID]
}
