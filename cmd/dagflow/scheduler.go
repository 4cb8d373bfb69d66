package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/warriorguo/dagflow/scheduler"
)

func (a *app) schedulerCmd() *cobra.Command {
	var paused []string
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Schedule and execute DAG runs until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.newEngine(false)
			if err != nil {
				return errors.Trace(err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := engine.Close(ctx); err != nil {
					log.Errorf("close engine failed: %v", err)
				}
			}()

			for _, dagID := range paused {
				if err := engine.PauseDAG(dagID); err != nil {
					return errors.Trace(err)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errs, err := engine.ReloadRuns(ctx)
			if err != nil {
				return errors.Annotatef(err, "reload runs")
			}
			for key, err := range errs {
				log.Warnf("run %s not reloaded: %v", key, err)
			}

			s := scheduler.NewScheduler(engine, scheduler.WithSyncInterval(a.cfg.Scheduler.SyncInterval))
			if err := s.Start(ctx); err != nil {
				return errors.Trace(err)
			}

			<-ctx.Done()
			log.Infof("shutting down")
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return errors.Trace(s.Stop(stopCtx))
		},
	}
	cmd.Flags().StringSliceVar(&paused, "paused", nil, "DAGs kept paused from the start")
	return cmd
}
