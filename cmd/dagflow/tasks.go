package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"github.com/warriorguo/dagflow/types"
	"github.com/warriorguo/dagflow/utils"
)

func (a *app) tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and test the tasks of a DAG",
	}
	cmd.AddCommand(a.tasksListCmd(), a.tasksRenderCmd(), a.tasksTestCmd(), a.tasksDocCmd())
	return cmd
}

func (a *app) tasksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <dag_id>",
		Short: "List the tasks of a DAG with their upstream tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(true, func(engine types.FlowEngine) error {
				dag, err := a.lookupDAG(engine, args[0])
				if err != nil {
					return errors.Trace(err)
				}

				rows := [][]string{{"task_id", "upstream", "retries", "trigger_rule"}}
				for _, taskID := range dag.TaskIDs() {
					taskArgs, _ := dag.TaskArgs(taskID)
					rows = append(rows, []string{
						taskID,
						strings.Join(dag.Upstream(taskID), ","),
						fmt.Sprint(taskArgs.Retries),
						string(taskArgs.TriggerRule),
					})
				}
				printTable(cmd.OutOrStdout(), rows)
				return nil
			})
		},
	}
}

func (a *app) tasksRenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render <dag_id> <task_id> [logical_date]",
		Short: "Print the rendered templated fields of a task",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			logicalDate, err := dateArg(args, 2)
			if err != nil {
				return errors.Trace(err)
			}
			return a.withEngine(true, func(engine types.FlowEngine) error {
				fields, err := engine.RenderTask(args[0], args[1], logicalDate)
				if err != nil {
					return errors.Trace(err)
				}
				w := cmd.OutOrStdout()
				for _, name := range utils.SortedKeys(fields) {
					fmt.Fprintf(w, "%s\n%s\n", headerStyle.Render("# "+name), fields[name])
				}
				return nil
			})
		},
	}
}

func (a *app) tasksTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <dag_id> <task_id> [logical_date]",
		Short: "Run a single task ignoring its dependencies, nothing is stored",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			logicalDate, err := dateArg(args, 2)
			if err != nil {
				return errors.Trace(err)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return a.withEngine(true, func(engine types.FlowEngine) error {
				ti, err := engine.TestTask(ctx, args[0], args[1], logicalDate)
				if err != nil {
					return errors.Trace(err)
				}

				w := cmd.OutOrStdout()
				printField(w, "task", ti.TaskID)
				printField(w, "run", ti.RunID)
				printField(w, "state", styleState(ti.State))
				printField(w, "duration", ti.Duration)
				for _, key := range utils.SortedKeys(ti.Output) {
					printField(w, key, ti.Output[key])
				}
				if ti.State != types.Success {
					return errors.Errorf("task %s %v: %s", ti.TaskID, ti.State, ti.Error)
				}
				return nil
			})
		},
	}
}

func (a *app) tasksDocCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doc <dag_id> <task_id>",
		Short: "Print the documentation of a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(true, func(engine types.FlowEngine) error {
				dag, err := a.lookupDAG(engine, args[0])
				if err != nil {
					return errors.Trace(err)
				}
				taskArgs, exists := dag.TaskArgs(args[1])
				if !exists {
					return errors.NotFoundf("task %s in DAG %s", args[1], args[0])
				}
				fmt.Fprint(cmd.OutOrStdout(), taskArgs.DocMD)
				return nil
			})
		},
	}
}
