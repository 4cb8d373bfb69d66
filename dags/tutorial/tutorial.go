// Package tutorial declares the tutorial DAG: print the date, then sleep
// and run a templated command in parallel.
package tutorial

import (
	"time"

	"github.com/juju/errors"
	"github.com/warriorguo/dagflow/operators"
	"github.com/warriorguo/dagflow/templating"
	"github.com/warriorguo/dagflow/types"
)

const DAGID = "tutorial"

var (
	templatedCommand = templating.Dedent(`
        {% for i in range(5) %}
            echo "Loop {{ i + 1 }}: Execution date is {{ ds }}"
            echo "       Date +7 days: {{ macros.ds_add(ds, 7) }}"
        {% endfor %}
        `)

	printDateDoc = templating.Dedent(`
        #### Task Documentation
        This task prints the current system date using the ` + "`date`" + ` command.
    `)

	sleepDoc = templating.Dedent(`
        #### Task Documentation
        This task sleeps for 5 seconds to simulate work.
        It will retry up to 3 times if interrupted.
    `)

	templatedDoc = templating.Dedent(`
        #### Task Documentation
        This task uses **Jinja templating** to:
        - Loop 5 times
        - Print the **execution date** (` + "`{{ ds }}`" + `)
        - Print the date **7 days in the future** using ` + "`macros.ds_add(ds, 7)`" + `
    `)

	dagDoc = templating.Dedent(`
        ### Tutorial DAG Documentation
        This DAG demonstrates:
        - A simple sequential task (` + "`t1`" + `)
        - Two parallel tasks (` + "`t2`, `t3`" + `) triggered after ` + "`t1`" + `
        - Jinja templating in BashOperator
        - Markdown documentation for tasks and DAG
    `)
)

// Args are the DAG level arguments of the tutorial.
func Args() types.DAGArgs {
	return types.DAGArgs{
		Description:      "A simple tutorial DAG",
		ScheduleInterval: 24 * time.Hour,
		StartDate:        time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		Catchup:          false,
		Tags:             []string{"example"},
		DefaultArgs: types.DefaultArgs{
			Owner:      "airflow",
			Retries:    1,
			RetryDelay: 5 * time.Minute,
		},
	}
}

// Define declares the tasks and edges of the tutorial on dag.
func Define(dag types.DAG) error {
	printDate, err := operators.NewBashOperator("date")
	if err != nil {
		return errors.Trace(err)
	}
	sleep, err := operators.NewBashOperator("sleep 5")
	if err != nil {
		return errors.Trace(err)
	}
	templated, err := operators.NewBashOperator(templatedCommand)
	if err != nil {
		return errors.Trace(err)
	}

	if err := dag.Task("print_date", printDate, types.WithDocMD(printDateDoc)); err != nil {
		return errors.Trace(err)
	}
	if err := dag.Task("sleep", sleep,
		types.WithDependsOnPast(false),
		types.WithRetries(3),
		types.WithDocMD(sleepDoc),
	); err != nil {
		return errors.Trace(err)
	}
	if err := dag.Task("templated", templated,
		types.WithDependsOnPast(false),
		types.WithDocMD(templatedDoc),
	); err != nil {
		return errors.Trace(err)
	}

	if err := dag.SetDownstream("print_date", "sleep", "templated"); err != nil {
		return errors.Trace(err)
	}
	dag.SetDAGDocMD(dagDoc)
	return nil
}

// Register hands the tutorial to engine.
func Register(engine types.FlowEngine) error {
	return errors.Trace(engine.RegisterDAG(DAGID, Args(), Define))
}
