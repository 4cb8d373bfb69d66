package dagflow

import (
	"context"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warriorguo/dagflow/operators"
	"github.com/warriorguo/dagflow/types"
)

func TestNewFlowEngine(t *testing.T) {
	engine, err := NewFlowEngine(types.EnableMemStore(), types.DisableAutoStart(), types.DisableTaskRunAsync())
	require.Nil(t, err)
	defer engine.Close(context.Background())

	require.Nil(t, engine.RegisterDAG("hello", types.DAGArgs{}, func(dag types.DAG) error {
		return dag.Task("say", operators.MustBashOperator("echo hello"))
	}))
	runID, err := engine.TriggerDAG(context.Background(), "hello", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	require.Nil(t, err)
	assert.Nil(t, engine.RunOnce())

	status, err := engine.GetRunStatus(context.Background(), "hello", runID)
	require.Nil(t, err)
	assert.Equal(t, types.Success, status.Run.State)
	assert.Equal(t, "hello", status.Tasks["say"].Output["return_value"])
}

func TestNewStoreInvalidConfig(t *testing.T) {
	_, err := NewFlowEngine(types.WithRedisConfig(&types.RedisConfig{}))
	assert.NotNil(t, err)

	_, err = NewFlowEngine(types.WithPostgresConfig(&types.PostgresConfig{}))
	assert.NotNil(t, err)
}

func TestNewStoreMemory(t *testing.T) {
	_, err := NewStore(types.NewFlowOptions())
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = NewFlowEngine()
	assert.NotNil(t, err)

	opts := types.NewFlowOptions()
	types.EnableMemStore()(opts)
	s, err := NewStore(opts)
	require.Nil(t, err)
	defer s.Close()
	assert.Nil(t, s.Set(context.Background(), "/test/", "key", []byte("value")))
}
