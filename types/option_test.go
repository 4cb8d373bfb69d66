package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFlowOptionsDefaults(t *testing.T) {
	opts := NewFlowOptions()

	assert.Equal(t, 16, opts.MaxActiveTasks)
	assert.True(t, opts.AutoStart)
	assert.True(t, opts.TaskRunAsync)
	assert.Equal(t, 200*time.Millisecond, opts.PollInterval)
	assert.Equal(t, "bash", opts.Shell)
	assert.False(t, opts.MemStore)
	assert.NotNil(t, opts.Ctx)
}

func TestMultipleOptions(t *testing.T) {
	opts := NewFlowOptions()

	WithPostgresConfig(&PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "user",
		Password: "pass",
		Database: "db",
		SSLMode:  "disable",
	})(opts)
	WithRedisConfig(&RedisConfig{Addr: "localhost:6379"})(opts)
	SetMaxActiveTasks(4)(opts)
	SetShell("sh")(opts)
	DisableAutoStart()(opts)
	DisableTaskRunAsync()(opts)

	assert.Equal(t, "localhost", opts.PostgresConfig.Host)
	assert.Equal(t, "localhost:6379", opts.RedisConfig.Addr)
	assert.Equal(t, 4, opts.MaxActiveTasks)
	assert.Equal(t, "sh", opts.Shell)
	assert.False(t, opts.AutoStart)
	assert.False(t, opts.TaskRunAsync)
}

func TestDAGArgsDefaults(t *testing.T) {
	args := NewDAGArgs(DAGArgs{
		DefaultArgs: DefaultArgs{Retries: 1},
	})

	assert.Equal(t, 16, args.MaxActiveRuns)
	assert.Equal(t, "airflow", args.DefaultArgs.Owner)
	assert.Equal(t, 1, args.DefaultArgs.Retries)
	assert.Equal(t, 5*time.Minute, args.DefaultArgs.RetryDelay)
	assert.Equal(t, AllSuccess, args.DefaultArgs.TriggerRule)
}

func TestTaskOptionsResolve(t *testing.T) {
	def := NewDAGArgs(DAGArgs{DefaultArgs: DefaultArgs{Retries: 1}}).DefaultArgs

	plain := &TaskOptions{}
	args := plain.Resolve(def)
	assert.Equal(t, 1, args.Retries)
	assert.Equal(t, 5*time.Minute, args.RetryDelay)
	assert.False(t, args.DependsOnPast)

	overridden := &TaskOptions{}
	for _, opt := range []TaskOption{
		WithRetries(3),
		WithDependsOnPast(true),
		WithTriggerRule(AllDone),
		WithDocMD("doc"),
	} {
		opt(overridden)
	}
	args = overridden.Resolve(def)
	assert.Equal(t, 3, args.Retries)
	assert.True(t, args.DependsOnPast)
	assert.Equal(t, AllDone, args.TriggerRule)
	assert.Equal(t, "doc", args.DocMD)
	assert.Equal(t, "airflow", args.Owner)

	// an explicit zero override is not the same as unset
	zero := &TaskOptions{}
	WithRetries(0)(zero)
	assert.Equal(t, 0, zero.Resolve(def).Retries)
}

func TestRetryDelayFor(t *testing.T) {
	args := TaskArgs{RetryDelay: time.Minute}
	assert.Equal(t, time.Minute, args.RetryDelayFor(1))
	assert.Equal(t, time.Minute, args.RetryDelayFor(3))

	args.RetryExponentialBackoff = true
	assert.Equal(t, time.Minute, args.RetryDelayFor(1))
	assert.Equal(t, 2*time.Minute, args.RetryDelayFor(2))
	assert.Equal(t, 4*time.Minute, args.RetryDelayFor(3))

	args.MaxRetryDelay = 3 * time.Minute
	assert.Equal(t, 3*time.Minute, args.RetryDelayFor(3))
}
