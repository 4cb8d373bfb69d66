package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/warriorguo/dagflow/types"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	labelStyle  = lipgloss.NewStyle().Bold(true)
	faintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	stateStyles = map[types.StatusType]lipgloss.Style{
		types.Queued:         lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		types.Running:        lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		types.UpForRetry:     lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		types.Success:        lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		types.Failed:         lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		types.UpstreamFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		types.Skipped:        lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
	}
)

func styleState(state types.StatusType) string {
	style, exists := stateStyles[state]
	if !exists {
		return state.String()
	}
	return style.Render(state.String())
}

// printTable writes rows in left aligned columns, the first row is the header.
func printTable(w io.Writer, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if width := lipgloss.Width(cell); width > widths[i] {
				widths[i] = width
			}
		}
	}

	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			style := lipgloss.NewStyle().Width(widths[i])
			if r == 0 {
				style = style.Inherit(headerStyle)
			}
			cells[i] = style.Render(cell)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

func printField(w io.Writer, name string, value any) {
	fmt.Fprintf(w, "%s %v\n", labelStyle.Render(name+":"), value)
}

func printRunStatus(w io.Writer, dag types.DAG, status *types.RunStatus) {
	printField(w, "run", status.Run.RunID)
	printField(w, "state", styleState(status.Run.State))

	rows := [][]string{{"task_id", "state", "try", "duration", "error"}}
	for _, taskID := range dag.TaskIDs() {
		ti, exists := status.Tasks[taskID]
		if !exists {
			continue
		}
		rows = append(rows, []string{
			taskID,
			styleState(ti.State),
			fmt.Sprintf("%d/%d", ti.TryNumber, ti.MaxTries),
			ti.Duration.String(),
			faintStyle.Render(ti.Error),
		})
	}
	printTable(w, rows)
}
