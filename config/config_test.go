package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warriorguo/dagflow/store/redis"
	"github.com/warriorguo/dagflow/types"
)

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.Nil(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "text", c.Log.Format)
	assert.Equal(t, 16, c.Engine.MaxActiveTasks)
	assert.Equal(t, 200*time.Millisecond, c.Engine.PollInterval)
	assert.Equal(t, "bash", c.Engine.Shell)
	assert.Equal(t, StoreMemory, c.Store.Type)
	assert.Equal(t, 5432, c.Store.Postgres.Port)
	assert.Equal(t, "localhost:6379", c.Store.Redis.Addr)
	assert.Equal(t, 30*time.Second, c.Scheduler.SyncInterval)
	assert.Nil(t, c.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "dagflow.yaml", `
log:
  level: debug
  format: json
engine:
  max_active_tasks: 4
  poll_interval: 1s
store:
  type: postgres
  postgres:
    host: db
    user: airflow
    database: airflow
scheduler:
  sync_interval: 1m
`)

	c, err := Load(path)
	require.Nil(t, err)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, 4, c.Engine.MaxActiveTasks)
	assert.Equal(t, time.Second, c.Engine.PollInterval)
	assert.Equal(t, "bash", c.Engine.Shell)
	assert.Equal(t, StorePostgres, c.Store.Type)
	assert.Equal(t, "db", c.Store.Postgres.Host)
	assert.Equal(t, 5432, c.Store.Postgres.Port)
	assert.Equal(t, "airflow", c.Store.Postgres.Database)
	assert.Equal(t, "disable", c.Store.Postgres.SSLMode)
	assert.Equal(t, time.Minute, c.Scheduler.SyncInterval)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NotNil(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "log: [unclosed"))
	assert.NotNil(t, err)

	_, err = Load(writeFile(t, "invalid.yaml", "store:\n  type: etcd\n"))
	assert.NotNil(t, err)
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"DAGFLOW_LOG_LEVEL":               "warn",
		"DAGFLOW_MAX_ACTIVE_TASKS":        "8",
		"DAGFLOW_POLL_INTERVAL":           "50ms",
		"DAGFLOW_STORE_TYPE":              "redis",
		"DAGFLOW_REDIS_ADDR":              "cache:6379",
		"DAGFLOW_REDIS_DB":                "2",
		"DAGFLOW_SCHEDULER_SYNC_INTERVAL": "",
	}
	lookup := func(name string) (string, bool) {
		v, exists := env[name]
		return v, exists
	}

	c := &Config{Engine: EngineConfig{MaxActiveTasks: 2}}
	require.Nil(t, c.applyEnv(lookup))
	assert.Equal(t, "warn", c.Log.Level)
	assert.Equal(t, 8, c.Engine.MaxActiveTasks)
	assert.Equal(t, 50*time.Millisecond, c.Engine.PollInterval)
	assert.Equal(t, StoreRedis, c.Store.Type)
	assert.Equal(t, "cache:6379", c.Store.Redis.Addr)
	assert.Equal(t, 2, c.Store.Redis.DB)
	assert.Equal(t, time.Duration(0), c.Scheduler.SyncInterval)

	env["DAGFLOW_REDIS_DB"] = "two"
	assert.NotNil(t, c.applyEnv(lookup))
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("DAGFLOW_SHELL", "sh")
	t.Setenv("DAGFLOW_LOG_FORMAT", "json")

	c, err := Load(writeFile(t, "dagflow.yaml", "engine:\n  shell: zsh\n"))
	require.Nil(t, err)
	assert.Equal(t, "sh", c.Engine.Shell)
	assert.Equal(t, "json", c.Log.Format)
}

func TestLoadEnvFiles(t *testing.T) {
	const name = "DAGFLOW_ENV_FILE_TEST"
	t.Cleanup(func() { os.Unsetenv(name) })

	path := writeFile(t, ".env", name+"=from-file\n")
	require.Nil(t, LoadEnvFiles(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv(name))
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Log.Level = "loud"
	assert.NotNil(t, c.Validate())

	c = Default()
	c.Log.Format = "xml"
	assert.NotNil(t, c.Validate())

	c = Default()
	c.Engine.MaxActiveTasks = -1
	assert.NotNil(t, c.Validate())
}

func TestToFlowOptions(t *testing.T) {
	apply := func(c *Config) *types.FlowOptions {
		opts := types.NewFlowOptions()
		for _, opt := range c.ToFlowOptions() {
			opt(opts)
		}
		return opts
	}

	c := Default()
	c.Engine.MaxActiveTasks = 3
	c.Engine.Shell = "sh"
	opts := apply(c)
	assert.Equal(t, 3, opts.MaxActiveTasks)
	assert.Equal(t, "sh", opts.Shell)
	assert.True(t, opts.MemStore)
	assert.Nil(t, opts.PostgresConfig)
	assert.Nil(t, opts.RedisConfig)

	c.Store.Type = StorePostgres
	opts = apply(c)
	require.NotNil(t, opts.PostgresConfig)
	assert.Equal(t, "localhost", opts.PostgresConfig.Host)
	assert.Equal(t, "dagflow", opts.PostgresConfig.Database)

	c.Store.Type = StoreRedis
	opts = apply(c)
	require.NotNil(t, opts.RedisConfig)
	assert.Equal(t, redis.DefaultKeyPrefix, opts.RedisConfig.KeyPrefix)
	assert.Equal(t, redis.DefaultConfig().KeyPrefix, opts.RedisConfig.KeyPrefix)
	assert.Nil(t, opts.PostgresConfig)
}

func TestApplyLogging(t *testing.T) {
	assert.Nil(t, LogConfig{Level: "debug", Format: "json"}.ApplyLogging())
	assert.Nil(t, LogConfig{Level: "info", Format: "text"}.ApplyLogging())
	assert.NotNil(t, LogConfig{Level: "loud"}.ApplyLogging())
}
