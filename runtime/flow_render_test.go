package runtime

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warriorguo/dagflow/operators"
	"github.com/warriorguo/dagflow/store/mem"
	"github.com/warriorguo/dagflow/types"
)

func fatalTask(ctx types.Context) (types.Data, error) {
	return nil, types.NewFatalErrorf("fatal error")
}

func drawDAG(dag types.DAG) error {
	if err := dag.Task("print_date", types.OperatorFunc(dumbTask)); err != nil {
		return err
	}
	if err := dag.Task("sleep", types.OperatorFunc(fatalTask)); err != nil {
		return err
	}
	if err := dag.Task("templated", types.OperatorFunc(dumbTask)); err != nil {
		return err
	}
	if err := dag.Task("report", types.OperatorFunc(dumbTask)); err != nil {
		return err
	}
	if err := dag.SetDownstream("print_date", "sleep", "templated"); err != nil {
		return err
	}
	return dag.SetUpstream("report", "sleep", "templated")
}

func TestRendering(t *testing.T) {
	flow := newFlow(mem.NewMemStore(), newOptions())
	defer flow.Close(context.Background())

	assert.Nil(t, flow.RegisterDAG("draw-test", types.DAGArgs{}, drawDAG))

	dot, err := flow.RenderDAG("draw-test")
	assert.Nil(t, err)
	fmt.Printf("draw dag DOT: %+v\n", dot)
	assert.Contains(t, dot, "digraph draw_test {")
	assert.Contains(t, dot, `"print_date" -> "sleep"`+"\n")
	assert.Contains(t, dot, `"print_date" -> "templated"`+"\n")
	assert.Contains(t, dot, `"sleep" -> "report"`+"\n")
	assert.Contains(t, dot, `"templated" -> "report"`+"\n")
	assert.Contains(t, dot, `label="draw-test"`)
	assert.NotContains(t, dot, "fillcolor")

	_, err = flow.RenderDAG("unknown")
	assert.NotNil(t, err)

	runID, err := flow.TriggerDAG(context.Background(), "draw-test", testLogicalDate, nil)
	require.Nil(t, err)
	for i := 0; i < 4; i++ {
		assert.Nil(t, flow.runOnce())
	}

	dot, err = flow.RenderRun(context.Background(), "draw-test", runID)
	assert.Nil(t, err)
	fmt.Printf("draw dag with status DOT: %+v\n", dot)
	assert.Contains(t, dot, `"print_date" [label="print_date" shape="box" style="filled,rounded" fillcolor="green" xlabel="success"`)
	assert.Contains(t, dot, `fillcolor="red" xlabel="failed"`)
	assert.Contains(t, dot, `fillcolor="orange" xlabel="upstream_failed"`)

	_, err = flow.RenderRun(context.Background(), "draw-test", "unknown")
	assert.NotNil(t, err)
}

func TestRenderingDistinctIDs(t *testing.T) {
	flow := newFlow(mem.NewMemStore(), newOptions())
	defer flow.Close(context.Background())

	assert.Nil(t, flow.RegisterDAG("ids", types.DAGArgs{}, func(dag types.DAG) error {
		for _, taskID := range []string{"a-b", "a_b", "a.b", "c"} {
			if err := dag.Task(taskID, types.OperatorFunc(dumbTask)); err != nil {
				return err
			}
		}
		return dag.SetDownstream("a-b", "c")
	}))

	dot, err := flow.RenderDAG("ids")
	require.Nil(t, err)
	assert.Contains(t, dot, `"a-b" [label="a-b" shape="box"]`)
	assert.Contains(t, dot, `"a_b" [label="a_b" shape="box"]`)
	assert.Contains(t, dot, `"a.b" [label="a.b" shape="box"]`)
	assert.Contains(t, dot, `"a-b" -> "c"`+"\n")
	assert.NotContains(t, dot, `"a_b" -> "c"`)
	assert.Equal(t, 1, strings.Count(dot, " -> "))
}

func TestRenderTask(t *testing.T) {
	flow := newFlow(mem.NewMemStore(), newOptions())
	defer flow.Close(context.Background())

	assert.Nil(t, flow.RegisterDAG("test", types.DAGArgs{Params: types.Data{"name": "dagflow"}}, func(dag types.DAG) error {
		return dag.Task("templated", operators.MustBashOperator(`echo "{{ ds }} {{ macros.ds_add(ds, 7) }} {{ params.name }} {{ task.owner }}"`))
	}))

	fields, err := flow.RenderTask("test", "templated", testLogicalDate)
	require.Nil(t, err)
	assert.Equal(t, `echo "2021-01-01 2021-01-08 dagflow airflow"`, fields["bash_command"])

	_, err = flow.RenderTask("test", "unknown", testLogicalDate)
	assert.NotNil(t, err)
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "a_b_c", idString("a.b-c"))
	assert.Equal(t, `"say \"hi\""`, quoteString(`say "hi"`))
	assert.NotEqual(t, quoteString("a-b"), quoteString("a_b"))
	assert.Equal(t, `"a\\"`, quoteString(`a\`))
	assert.Equal(t, `\"a\\b\ c\"\n`, formatNL(addSlashes("\"a\\b c\"\n")))
}
