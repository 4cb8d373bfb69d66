package runtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warriorguo/dagflow/types"
)

func (f *flow) renderDOT(plan *dagExecutePlan, tis map[string]*types.TaskInstance) (string, error) {
	renderer := newDAGRenderer()
	return renderer.generateDOT(plan, tis)
}

func newDAGRenderer() *dagRenderer {
	return &dagRenderer{nil, &strings.Builder{}}
}

type dagRenderer struct {
	tis map[string]*types.TaskInstance
	sb  *strings.Builder
}

func (d *dagRenderer) setTaskInstances(tis map[string]*types.TaskInstance) {
	if tis == nil {
		tis = make(map[string]*types.TaskInstance)
	}
	d.tis = tis
}

func (d *dagRenderer) generateDOT(plan *dagExecutePlan, tis map[string]*types.TaskInstance) (string, error) {
	d.setTaskInstances(tis)

	d.write("digraph %s {", idString(plan.DAGID))
	d.write("rankdir=LR")
	d.drawDAG(plan)
	d.write("}")
	return d.sb.String(), nil
}

func packToComment(ti *types.TaskInstance) string {
	s, _ := json.Marshal(ti)
	return formatNL(addSlashes(string(s)))
}

var stateColors = map[types.StatusType]string{
	types.None:           "white",
	types.Scheduled:      "tan",
	types.Queued:         "gray",
	types.Running:        "lime",
	types.UpForRetry:     "gold",
	types.Success:        "green",
	types.Failed:         "red",
	types.UpstreamFailed: "orange",
	types.Skipped:        "hotpink",
}

func (d *dagRenderer) calcAttr(taskID string) string {
	ti, exists := d.tis[taskID]
	if !exists {
		return ""
	}

	color, exists := stateColors[ti.State]
	if !exists {
		color = "white"
	}
	return fmt.Sprintf(" style=\"filled,rounded\" fillcolor=\"%s\" xlabel=%s comment=\"%s\"",
		color, quoteString(ti.State.String()), packToComment(ti))
}

func (d *dagRenderer) drawTask(taskID string) {
	attr := d.calcAttr(taskID)
	d.write("%s [label=%s shape=\"box\"%s]", quoteString(taskID), quoteString(taskID), attr)
}

func (d *dagRenderer) drawDAG(plan *dagExecutePlan) {
	for _, taskID := range plan.taskIDs() {
		d.drawTask(taskID)
	}
	d.drawLinks(plan)
	d.write("label=%s", quoteString(plan.DAGID))
}

func (d *dagRenderer) drawLinks(plan *dagExecutePlan) {
	for _, from := range plan.taskIDs() {
		for _, to := range plan.downstream(from) {
			d.write("%s -> %s", quoteString(from), quoteString(to))
		}
	}
}

func (d *dagRenderer) write(format string, s ...any) {
	d.sb.WriteString(fmt.Sprintf(format+"\n", s...))
}

var (
	slashesToken = []string{"\\", "\"", "'", " "}
)

func addSlashes(s string) string {
	for _, token := range slashesToken {
		s = strings.ReplaceAll(s, token, "\\"+token)
	}
	return s
}

func formatNL(s string) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// quoteString makes a DOT string ID, distinct for distinct s
func quoteString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
}

var idleChars = []string{" ", "'", "\"", "(", ")", "*", "&", "^", "%", "$", "#", "@", "!", "?", "<", ">", "[", "]", "{", "}", ".", "-"}

// idString is only used for the graph name, which is never referenced by edges.
func idString(s string) string {
	for _, ch := range idleChars {
		s = strings.ReplaceAll(s, ch, "_")
	}
	return s
}
