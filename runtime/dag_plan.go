package runtime

import (
	"sort"

	"github.com/juju/errors"
	"github.com/warriorguo/dagflow/types"
	"github.com/warriorguo/dagflow/utils"
)

const (
	DAGPlanPath = "/dag_plan/"
)

type taskInfo struct {
	Args types.TaskArgs `json:",omitempty"`
}

/**
 * dagExecutePlan structure support storeable and also
 * aims to dynamically generates runtime context.
 */
type dagExecutePlan struct {
	DAGID string `json:",omitempty"`

	Tasks map[string]*taskInfo `json:",omitempty"`
	/**
	 * Links store relationship of each task
	 * if there are links `a -> b` and `a -> c`
	 * then in this map `a` would be Key and `[b c]` would be Value
	 */
	Links map[string][]string `json:",omitempty"`
}

func newDAGExecutePlan(dagID string) dagExecutePlan {
	return dagExecutePlan{
		DAGID: dagID,
		Tasks: make(map[string]*taskInfo),
		Links: make(map[string][]string),
	}
}

func (dt *dagExecutePlan) taskIDs() []string {
	return utils.SortedKeys(dt.Tasks)
}

func (dt *dagExecutePlan) downstream(taskID string) []string {
	return append([]string(nil), dt.Links[taskID]...)
}

func (dt *dagExecutePlan) upstream(taskID string) []string {
	upstream := make([]string, 0)
	for from, tos := range dt.Links {
		for _, to := range tos {
			if to == taskID {
				upstream = append(upstream, from)
			}
		}
	}
	sort.Strings(upstream)
	return upstream
}

func (dt *dagExecutePlan) hasLink(from, to string) bool {
	for _, v := range dt.Links[from] {
		if v == to {
			return true
		}
	}
	return false
}

func (dt *dagExecutePlan) addLink(from, to string) {
	links := append(dt.Links[from], to)
	sort.Strings(links)
	dt.Links[from] = links
}

// hasPath reports whether to is reachable from from.
func (dt *dagExecutePlan) hasPath(from, to string) bool {
	visited := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == to {
			return true
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		stack = append(stack, dt.Links[current]...)
	}
	return false
}

func (dt *dagExecutePlan) roots() []string {
	hasUpstream := make(map[string]bool)
	for _, tos := range dt.Links {
		for _, to := range tos {
			hasUpstream[to] = true
		}
	}
	roots := make([]string, 0)
	for _, taskID := range dt.taskIDs() {
		if !hasUpstream[taskID] {
			roots = append(roots, taskID)
		}
	}
	return roots
}

func (dt *dagExecutePlan) leaves() []string {
	leaves := make([]string, 0)
	for _, taskID := range dt.taskIDs() {
		if len(dt.Links[taskID]) == 0 {
			leaves = append(leaves, taskID)
		}
	}
	return leaves
}

// topoOrder is Kahn's algorithm, ties broken by task ID so the order is stable.
func (dt *dagExecutePlan) topoOrder() ([]string, error) {
	inDegree := make(map[string]int, len(dt.Tasks))
	for taskID := range dt.Tasks {
		inDegree[taskID] = 0
	}
	for from, tos := range dt.Links {
		if _, exists := dt.Tasks[from]; !exists {
			return nil, errors.NotFoundf("task %s", from)
		}
		for _, to := range tos {
			if _, exists := dt.Tasks[to]; !exists {
				return nil, errors.NotFoundf("task %s", to)
			}
			inDegree[to]++
		}
	}

	ready := dt.roots()
	order := make([]string, 0, len(dt.Tasks))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		for _, to := range dt.Links[current] {
			if inDegree[to]--; inDegree[to] == 0 {
				ready = append(ready, to)
				sort.Strings(ready)
			}
		}
	}
	if len(order) != len(dt.Tasks) {
		return nil, errors.Forbiddenf("DAG %s contains a cycle", dt.DAGID)
	}
	return order, nil
}

func (dt *dagExecutePlan) validate() error {
	if len(dt.Tasks) == 0 {
		return errors.NotValidf("DAG %s without tasks", dt.DAGID)
	}
	_, err := dt.topoOrder()
	return errors.Trace(err)
}
