package runtime

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/dagflow/schedule"
	"github.com/warriorguo/dagflow/types"
)

var (
	_ types.DAG = &dagEntity{}
)

const (
	maxIDLength = 250
)

var (
	idPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	// run IDs also carry the timestamps of generated IDs, like manual__2021-01-01T00:00:00+00:00
	runIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:+-]+$`)
)

func validateID(kind, id string) error {
	if len(id) == 0 || len(id) > maxIDLength {
		return errors.NotValidf("%s %q length", kind, id)
	}
	if !idPattern.MatchString(id) {
		return errors.NotValidf("%s %q, only alphanumeric characters, dashes, dots and underscores are allowed", kind, id)
	}
	return nil
}

func validateRunID(runID string) error {
	if len(runID) > maxIDLength {
		return errors.NotValidf("run id %q length", runID)
	}
	if !runIDPattern.MatchString(runID) {
		return errors.NotValidf("run id %q, only alphanumeric characters and _.:+- are allowed", runID)
	}
	return nil
}

// globalTasks keeps the operators of every registered DAG, since they can not
// be stored along with the plan.
type globalTasks struct {
	mu sync.Mutex

	tasks map[string]*taskRuntime
}

func newGlobalTasks() *globalTasks {
	return &globalTasks{tasks: map[string]*taskRuntime{}}
}

func (gt *globalTasks) formatKey(dagID, taskID string) string {
	return fmt.Sprintf("%s.%s", dagID, taskID)
}

func (gt *globalTasks) register(dagID, taskID string, entity *taskRuntime) error {
	gt.mu.Lock()
	defer gt.mu.Unlock()

	key := gt.formatKey(dagID, taskID)
	if _, exists := gt.tasks[key]; exists {
		return errors.AlreadyExistsf("task %s in DAG %s", taskID, dagID)
	}
	gt.tasks[key] = entity
	return nil
}

func (gt *globalTasks) get(dagID, taskID string) *taskRuntime {
	gt.mu.Lock()
	defer gt.mu.Unlock()

	return gt.tasks[gt.formatKey(dagID, taskID)]
}

func (gt *globalTasks) removeDAG(dagID string, taskIDs []string) {
	gt.mu.Lock()
	defer gt.mu.Unlock()

	for _, taskID := range taskIDs {
		delete(gt.tasks, gt.formatKey(dagID, taskID))
	}
}

type dagEntity struct {
	mu sync.RWMutex
	dagExecutePlan

	args     types.DAGArgs
	schedule schedule.Schedule

	belongFlow *flow
}

func newDAGEntity(dagID string, args types.DAGArgs, sched schedule.Schedule, belongFlow *flow) *dagEntity {
	return &dagEntity{
		dagExecutePlan: newDAGExecutePlan(dagID),
		args:           args,
		schedule:       sched,
		belongFlow:     belongFlow,
	}
}

func (de *dagEntity) ID() string {
	return de.DAGID
}

func (de *dagEntity) Args() types.DAGArgs {
	de.mu.RLock()
	defer de.mu.RUnlock()
	return de.args
}

func (de *dagEntity) Task(taskID string, op types.Operator, options ...types.TaskOption) error {
	if err := validateID("task_id", taskID); err != nil {
		return errors.Trace(err)
	}
	if op == nil {
		return errors.BadRequestf("task %s operator is nil", taskID)
	}

	taskOptions := &types.TaskOptions{}
	for _, opt := range options {
		opt(taskOptions)
	}
	args := taskOptions.Resolve(de.args.DefaultArgs)
	if !args.TriggerRule.Valid() {
		return errors.NotValidf("task %s trigger rule %q", taskID, args.TriggerRule)
	}
	if args.Retries < 0 {
		return errors.NotValidf("task %s retries %d", taskID, args.Retries)
	}

	if err := de.belongFlow.gt.register(de.DAGID, taskID, newTaskRuntime(taskID, op)); err != nil {
		return errors.Trace(err)
	}

	de.mu.Lock()
	defer de.mu.Unlock()
	de.Tasks[taskID] = &taskInfo{Args: args}
	return nil
}

func (de *dagEntity) Edge(from, to string) error {
	de.mu.Lock()
	defer de.mu.Unlock()

	if _, exists := de.Tasks[from]; !exists {
		return errors.NotFoundf("from: %v", from)
	}
	if _, exists := de.Tasks[to]; !exists {
		return errors.NotFoundf("to: %v", to)
	}
	if from == to {
		return errors.Forbiddenf("%s can not depend on itself", from)
	}
	if de.hasLink(from, to) {
		log.Warnf("dependency already registered for DAG %s: %s -> %s", de.DAGID, from, to)
		return nil
	}
	if de.hasPath(to, from) {
		return errors.Forbiddenf("%s -> %s would create a cycle", from, to)
	}
	de.addLink(from, to)
	return nil
}

func (de *dagEntity) SetDownstream(from string, to ...string) error {
	for _, t := range to {
		if err := de.Edge(from, t); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (de *dagEntity) SetUpstream(to string, from ...string) error {
	for _, f := range from {
		if err := de.Edge(f, to); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (de *dagEntity) SetDocMD(taskID, doc string) error {
	de.mu.Lock()
	defer de.mu.Unlock()

	info, exists := de.Tasks[taskID]
	if !exists {
		return errors.NotFoundf("task %s", taskID)
	}
	info.Args.DocMD = doc
	return nil
}

func (de *dagEntity) SetDAGDocMD(doc string) {
	de.mu.Lock()
	defer de.mu.Unlock()
	de.args.DocMD = doc
}

func (de *dagEntity) TaskIDs() []string {
	de.mu.RLock()
	defer de.mu.RUnlock()
	return de.taskIDs()
}

func (de *dagEntity) Upstream(taskID string) []string {
	de.mu.RLock()
	defer de.mu.RUnlock()
	return de.upstream(taskID)
}

func (de *dagEntity) Downstream(taskID string) []string {
	de.mu.RLock()
	defer de.mu.RUnlock()
	return de.downstream(taskID)
}

func (de *dagEntity) TaskArgs(taskID string) (types.TaskArgs, bool) {
	de.mu.RLock()
	defer de.mu.RUnlock()

	info, exists := de.Tasks[taskID]
	if !exists {
		return types.TaskArgs{}, false
	}
	return info.Args, true
}

func (de *dagEntity) Operator(taskID string) (types.Operator, bool) {
	entity := de.belongFlow.gt.get(de.DAGID, taskID)
	if entity == nil {
		return nil, false
	}
	return entity.op, true
}

// snapshot copies the plan so a run keeps the structure it was created with.
func (de *dagEntity) snapshot() *dagExecutePlan {
	de.mu.RLock()
	defer de.mu.RUnlock()

	plan := newDAGExecutePlan(de.DAGID)
	for taskID, info := range de.Tasks {
		plan.Tasks[taskID] = &taskInfo{Args: info.Args}
	}
	for from, tos := range de.Links {
		plan.Links[from] = append([]string(nil), tos...)
	}
	return &plan
}
