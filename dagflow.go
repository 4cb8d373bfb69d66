package dagflow

import (
	"github.com/juju/errors"
	"github.com/warriorguo/dagflow/runtime"
	"github.com/warriorguo/dagflow/store"
	"github.com/warriorguo/dagflow/store/mem"
	"github.com/warriorguo/dagflow/store/postgres"
	"github.com/warriorguo/dagflow/store/redis"
	"github.com/warriorguo/dagflow/types"
)

// NewFlowEngine creates a new flow engine with the given options
func NewFlowEngine(opts ...types.FlowOption) (types.FlowEngine, error) {
	options := types.NewFlowOptions()
	for _, opt := range opts {
		opt(options)
	}

	s, err := NewStore(options)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return runtime.NewFlowEngine(s, options), nil
}

// NewStore picks the store configured in options, PostgreSQL first, then
// Redis, then memory. Memory must be asked for, since its state is lost on exit.
func NewStore(options *types.FlowOptions) (store.Store, error) {
	if options.PostgresConfig != nil {
		pgConfig := &postgres.Config{
			Host:     options.PostgresConfig.Host,
			Port:     options.PostgresConfig.Port,
			User:     options.PostgresConfig.User,
			Password: options.PostgresConfig.Password,
			Database: options.PostgresConfig.Database,
			SSLMode:  options.PostgresConfig.SSLMode,
		}

		s, err := postgres.NewPostgresStore(pgConfig)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to create PostgreSQL store")
		}
		return s, nil
	}

	if options.RedisConfig != nil {
		s, err := redis.NewRedisStore(&redis.Config{
			Addr:      options.RedisConfig.Addr,
			Password:  options.RedisConfig.Password,
			DB:        options.RedisConfig.DB,
			KeyPrefix: options.RedisConfig.KeyPrefix,
		})
		if err != nil {
			return nil, errors.Annotatef(err, "failed to create Redis store")
		}
		return s, nil
	}

	if options.MemStore {
		return mem.NewMemStore(), nil
	}
	return nil, errors.NotValidf("no store configured")
}
