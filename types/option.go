package types

import (
	"context"
	"time"

	"github.com/mcuadros/go-defaults"
)

func NewFlowOptions() *FlowOptions {
	opts := &FlowOptions{Ctx: context.Background()}
	defaults.SetDefaults(opts)
	return opts
}

type FlowOptions struct {
	Ctx context.Context
	/**
	 * default: 16
	 * the engine runs at most this many task tries at the same time,
	 * across all DAG runs.
	 */
	MaxActiveTasks int `default:"16"`
	/**
	 * default: true, can set it to false and *important*
	 * caller should call FlowEngine.RunOnce() looply.
	 */
	AutoStart bool `default:"true"`
	/**
	 * default: true, only set it to false when doing debugging or testing.
	 * If TaskRunAsync is true, runnable task instances are submitted to the
	 * worker pool and RunOnce returns before they finish. Otherwise they
	 * run one by one inside RunOnce.
	 */
	TaskRunAsync bool `default:"true"`
	/**
	 * default: 200ms, how often the auto-started loop evaluates runs.
	 */
	PollInterval time.Duration `default:"200ms"`
	/**
	 * default: bash, the shell used by BashOperator when the operator
	 * does not set one.
	 */
	Shell string `default:"bash"`

	// MemStore keeps the state in memory, one of the three stores must be set.
	MemStore bool `default:"false"`
	// PostgresConfig takes precedence over RedisConfig, which takes precedence over MemStore
	PostgresConfig *PostgresConfig
	RedisConfig    *RedisConfig
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // disable, require, verify-ca, verify-full
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type FlowOption func(*FlowOptions)

func WithContext(ctx context.Context) FlowOption {
	return func(opts *FlowOptions) {
		opts.Ctx = ctx
	}
}

func SetMaxActiveTasks(n int) FlowOption {
	return func(opts *FlowOptions) {
		opts.MaxActiveTasks = n
	}
}

func SetPollInterval(d time.Duration) FlowOption {
	return func(opts *FlowOptions) {
		opts.PollInterval = d
	}
}

func SetShell(shell string) FlowOption {
	return func(opts *FlowOptions) {
		opts.Shell = shell
	}
}

func DisableAutoStart() FlowOption {
	return func(opts *FlowOptions) {
		opts.AutoStart = false
	}
}

func DisableTaskRunAsync() FlowOption {
	return func(opts *FlowOptions) {
		opts.TaskRunAsync = false
	}
}

func EnableMemStore() FlowOption {
	return func(opts *FlowOptions) {
		opts.MemStore = true
	}
}

func WithPostgresConfig(config *PostgresConfig) FlowOption {
	return func(opts *FlowOptions) {
		opts.PostgresConfig = config
	}
}

func WithRedisConfig(config *RedisConfig) FlowOption {
	return func(opts *FlowOptions) {
		opts.RedisConfig = config
	}
}
