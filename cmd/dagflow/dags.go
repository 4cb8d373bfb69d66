package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"github.com/warriorguo/dagflow/schedule"
	"github.com/warriorguo/dagflow/types"
	"github.com/warriorguo/dagflow/utils"
)

func (a *app) dagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dags",
		Short: "Manage DAGs",
	}
	cmd.AddCommand(
		a.dagsListCmd(),
		a.dagsShowCmd(),
		a.dagsDetailsCmd(),
		a.dagsTestCmd(),
		a.dagsTriggerCmd(),
		a.dagsPauseCmd("pause", true),
		a.dagsPauseCmd("unpause", false),
	)
	return cmd
}

func scheduleString(args types.DAGArgs) string {
	sched, err := schedule.Resolve(args)
	if err != nil {
		return "invalid"
	}
	return sched.String()
}

func (a *app) dagsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the registered DAGs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(true, func(engine types.FlowEngine) error {
				dagIDs, err := engine.ListDAGNames()
				if err != nil {
					return errors.Trace(err)
				}

				rows := [][]string{{"dag_id", "schedule", "owner", "tags", "paused"}}
				for _, dagID := range dagIDs {
					dag, err := a.lookupDAG(engine, dagID)
					if err != nil {
						return errors.Trace(err)
					}
					dagArgs := dag.Args()
					rows = append(rows, []string{
						dagID,
						scheduleString(dagArgs),
						dagArgs.DefaultArgs.Owner,
						strings.Join(dagArgs.Tags, ","),
						fmt.Sprint(engine.IsPaused(dagID)),
					})
				}
				printTable(cmd.OutOrStdout(), rows)
				return nil
			})
		},
	}
}

func (a *app) dagsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <dag_id>",
		Short: "Print the DOT graph of a DAG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(true, func(engine types.FlowEngine) error {
				dot, err := engine.RenderDAG(args[0])
				if err != nil {
					return errors.Trace(err)
				}
				fmt.Fprint(cmd.OutOrStdout(), dot)
				return nil
			})
		},
	}
}

func (a *app) dagsDetailsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "details <dag_id>",
		Short: "Print the arguments and documentation of a DAG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(true, func(engine types.FlowEngine) error {
				dag, err := a.lookupDAG(engine, args[0])
				if err != nil {
					return errors.Trace(err)
				}

				w := cmd.OutOrStdout()
				dagArgs := dag.Args()
				printField(w, "dag_id", dag.ID())
				printField(w, "description", dagArgs.Description)
				printField(w, "schedule", scheduleString(dagArgs))
				printField(w, "start_date", dagArgs.StartDate.Format("2006-01-02T15:04:05Z07:00"))
				printField(w, "catchup", dagArgs.Catchup)
				printField(w, "max_active_runs", dagArgs.MaxActiveRuns)
				printField(w, "tags", strings.Join(dagArgs.Tags, ","))
				printField(w, "owner", dagArgs.DefaultArgs.Owner)
				printField(w, "retries", dagArgs.DefaultArgs.Retries)
				printField(w, "retry_delay", dagArgs.DefaultArgs.RetryDelay)
				printField(w, "tasks", strings.Join(dag.TaskIDs(), ","))
				if dagArgs.DocMD != "" {
					fmt.Fprintf(w, "\n%s", dagArgs.DocMD)
				}
				return nil
			})
		},
	}
}

// runAndWait queues a manual run and blocks until it finishes.
func (a *app) runAndWait(cmd *cobra.Command, engine types.FlowEngine, dagID string, args []string, conf types.Data) error {
	dag, err := a.lookupDAG(engine, dagID)
	if err != nil {
		return errors.Trace(err)
	}
	logicalDate, err := dateArg(args, 1)
	if err != nil {
		return errors.Trace(err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	runID, err := engine.TriggerDAG(ctx, dagID, logicalDate, conf)
	if err != nil {
		return errors.Trace(err)
	}
	status, err := engine.WaitRun(ctx, dagID, runID)
	if err != nil {
		return errors.Trace(err)
	}

	printRunStatus(cmd.OutOrStdout(), dag, status)
	if status.Run.State != types.Success {
		return errors.Errorf("run %s %v", runID, status.Run.State)
	}
	return nil
}

func (a *app) dagsTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <dag_id> [logical_date]",
		Short: "Run a DAG once in memory and wait for it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(true, func(engine types.FlowEngine) error {
				return a.runAndWait(cmd, engine, args[0], args, nil)
			})
		},
	}
}

func (a *app) dagsTriggerCmd() *cobra.Command {
	var confJSON string
	cmd := &cobra.Command{
		Use:   "trigger <dag_id> [logical_date]",
		Short: "Queue a manual run on the configured store and wait for it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var conf types.Data
			if confJSON != "" {
				if err := utils.Unserialize([]byte(confJSON), &conf); err != nil {
					return errors.NotValidf("conf %q", confJSON)
				}
			}
			return a.withEngine(false, func(engine types.FlowEngine) error {
				return a.runAndWait(cmd, engine, args[0], args, conf)
			})
		},
	}
	cmd.Flags().StringVar(&confJSON, "conf", "", "JSON object exposed to templates as conf")
	return cmd
}

func (a *app) dagsPauseCmd(use string, paused bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <dag_id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a DAG, every engine on the configured store follows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(false, func(engine types.FlowEngine) error {
				var err error
				if paused {
					err = engine.PauseDAG(args[0])
				} else {
					err = engine.UnpauseDAG(args[0])
				}
				if err != nil {
					return errors.Trace(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "DAG %s paused: %v\n", args[0], engine.IsPaused(args[0]))
				return nil
			})
		},
	}
}
