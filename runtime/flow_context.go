package runtime

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/dagflow/templating"
	"github.com/warriorguo/dagflow/types"
)

var (
	_ types.Context = &flowContext{}
)

// flowContext is what an operator sees during a single try.
type flowContext struct {
	context.Context

	ti              types.TaskInstance
	logicalDate     time.Time
	templateContext types.Data
	logger          *log.Entry
}

func newFlowContext(ctx context.Context, run *types.DagRun, ti *types.TaskInstance, args types.TaskArgs, params types.Data) *flowContext {
	return &flowContext{
		Context:     ctx,
		ti:          *ti,
		logicalDate: run.LogicalDate,
		templateContext: templating.NewContext(templating.Values{
			DAGID:       run.DAGID,
			TaskID:      ti.TaskID,
			RunID:       run.RunID,
			Owner:       args.Owner,
			TryNumber:   ti.TryNumber,
			LogicalDate: run.LogicalDate,
			Interval:    run.DataInterval,
			Params:      params,
			Conf:        run.Conf,
		}),
		logger: log.WithFields(log.Fields{
			"dag_id":     run.DAGID,
			"task_id":    ti.TaskID,
			"run_id":     run.RunID,
			"try_number": ti.TryNumber,
		}),
	}
}

func (f *flowContext) GetRunID() string {
	return f.ti.RunID
}

func (f *flowContext) GetDAGID() string {
	return f.ti.DAGID
}

func (f *flowContext) GetTaskID() string {
	return f.ti.TaskID
}

func (f *flowContext) GetTryNumber() int {
	return f.ti.TryNumber
}

func (f *flowContext) GetLogicalDate() time.Time {
	return f.logicalDate
}

func (f *flowContext) GetTemplateContext() types.Data {
	return f.templateContext
}

func (f *flowContext) Logger() *log.Entry {
	return f.logger
}
