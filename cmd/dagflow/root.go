package main

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/warriorguo/dagflow"
	"github.com/warriorguo/dagflow/config"
	"github.com/warriorguo/dagflow/dags/tutorial"
	"github.com/warriorguo/dagflow/types"
)

// registry holds the DAGs every command loads.
var registry = []func(engine types.FlowEngine) error{
	tutorial.Register,
}

type app struct {
	configPath string
	envFiles   []string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "dagflow",
		Short:         "Run and inspect DAG workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path of the YAML config file")
	cmd.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", []string{".env"}, ".env files loaded before the config")

	cmd.AddCommand(a.dagsCmd(), a.tasksCmd(), a.schedulerCmd())
	return cmd
}

func (a *app) load() error {
	if err := config.LoadEnvFiles(a.envFiles...); err != nil {
		return errors.Trace(err)
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return errors.Trace(err)
	}
	if err := cfg.Log.ApplyLogging(); err != nil {
		return errors.Trace(err)
	}
	a.cfg = cfg
	return nil
}

/**
 * newEngine builds an engine holding every registered DAG.
 * Local engines keep their state in memory, whatever store is configured.
 */
func (a *app) newEngine(local bool) (types.FlowEngine, error) {
	cfg := *a.cfg
	if local {
		cfg.Store.Type = config.StoreMemory
	}

	engine, err := dagflow.NewFlowEngine(cfg.ToFlowOptions()...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for _, register := range registry {
		if err := register(engine); err != nil {
			engine.Close(context.Background())
			return nil, errors.Trace(err)
		}
	}
	return engine, nil
}

func (a *app) withEngine(local bool, fn func(engine types.FlowEngine) error) error {
	engine, err := a.newEngine(local)
	if err != nil {
		return errors.Trace(err)
	}
	defer engine.Close(context.Background())
	return errors.Trace(fn(engine))
}

func (a *app) lookupDAG(engine types.FlowEngine, dagID string) (types.DAG, error) {
	dag, exists := engine.GetDAG(dagID)
	if !exists {
		return nil, errors.NotFoundf("DAG: %s", dagID)
	}
	return dag, nil
}

// parseDate accepts dates like 2021-01-01 and RFC 3339 timestamps, UTC when no zone is given.
func parseDate(s string) (time.Time, error) {
	t, err := cast.ToTimeInDefaultLocationE(s, time.UTC)
	if err != nil {
		return time.Time{}, errors.NotValidf("date %q", s)
	}
	return t.UTC(), nil
}

func dateArg(args []string, i int) (time.Time, error) {
	if len(args) <= i {
		return time.Now().UTC(), nil
	}
	return parseDate(args[i])
}
