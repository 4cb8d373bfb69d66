package runtime

import (
	"github.com/warriorguo/dagflow/types"
)

/**
 * triggerRuleState decides what happens to a task whose upstream tasks are
 * in the given states.
 * It returns Queued when the task can run, UpstreamFailed or Skipped when the
 * rule can no longer be met, and false when it has to wait.
 */
func triggerRuleState(rule types.TriggerRule, upstream []types.StatusType) (types.StatusType, bool) {
	total := len(upstream)
	if total == 0 {
		return types.Queued, true
	}

	success, skipped, failed, done := 0, 0, 0, 0
	for _, state := range upstream {
		switch state {
		case types.Success:
			success++
		case types.Skipped:
			skipped++
		case types.Failed, types.UpstreamFailed:
			failed++
		default:
			continue
		}
		done++
	}
	allDone := done == total

	switch rule {
	case types.AllSuccess, "":
		if failed > 0 {
			return types.UpstreamFailed, true
		}
		if skipped > 0 {
			return types.Skipped, true
		}
		if success == total {
			return types.Queued, true
		}

	case types.AllFailed:
		if success > 0 || skipped > 0 {
			return types.Skipped, true
		}
		if failed == total {
			return types.Queued, true
		}

	case types.AllDone:
		if allDone {
			return types.Queued, true
		}

	case types.OneSuccess:
		if success > 0 {
			return types.Queued, true
		}
		if allDone {
			if failed > 0 {
				return types.UpstreamFailed, true
			}
			return types.Skipped, true
		}

	case types.OneFailed:
		if failed > 0 {
			return types.Queued, true
		}
		if allDone {
			return types.Skipped, true
		}

	case types.NoneFailed:
		if failed > 0 {
			return types.UpstreamFailed, true
		}
		if allDone {
			return types.Queued, true
		}
	}
	return types.None, false
}

// runState is the state of a run once all of its task instances finished.
func runState(tis map[string]*types.TaskInstance) (types.StatusType, bool) {
	state := types.Success
	for _, ti := range tis {
		if !ti.State.IsFinished() {
			return types.Running, false
		}
		if ti.State == types.Failed || ti.State == types.UpstreamFailed {
			state = types.Failed
		}
	}
	return state, true
}
