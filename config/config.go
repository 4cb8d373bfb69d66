// Package config loads the settings of the dagflow command from a YAML file,
// .env files and DAGFLOW_* environment variables, in increasing precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/juju/errors"
	"github.com/mcuadros/go-defaults"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/warriorguo/dagflow/types"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "DAGFLOW_"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Engine    EngineConfig    `yaml:"engine"`
	Store     StoreConfig     `yaml:"store"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"text"` // text, json
}

type EngineConfig struct {
	MaxActiveTasks int           `yaml:"max_active_tasks" default:"16"`
	PollInterval   time.Duration `yaml:"poll_interval" default:"200ms"`
	Shell          string        `yaml:"shell" default:"bash"`
}

type StoreConfig struct {
	Type     string         `yaml:"type" default:"memory"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
}

type PostgresConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"5432"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	Database string `yaml:"database" default:"dagflow"`
	SSLMode  string `yaml:"sslmode" default:"disable"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" default:"localhost:6379"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	// same as redis.DefaultKeyPrefix
	KeyPrefix string `yaml:"key_prefix" default:"dagflow:"`
}

type SchedulerConfig struct {
	SyncInterval time.Duration `yaml:"sync_interval" default:"30s"`
}

// Default returns the configuration used without any file or environment.
func Default() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	return c
}

// LoadEnvFiles loads .env style files into the process environment,
// variables already set win. Missing files are ignored.
func LoadEnvFiles(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return errors.Annotatef(err, "load env file %s", file)
		}
	}
	return nil
}

// Load reads the YAML file at path (skipped when empty), applies the
// DAGFLOW_* environment and fills the remaining defaults.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Annotatef(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, errors.Annotatef(err, "parse config %s", path)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, errors.Trace(err)
	}
	defaults.SetDefaults(c)

	if err := c.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return c, nil
}

type envBinding struct {
	name string
	set  func(c *Config, value string) error
}

func stringEnv(name string, field func(c *Config) *string) envBinding {
	return envBinding{name, func(c *Config, value string) error {
		*field(c) = value
		return nil
	}}
}

func intEnv(name string, field func(c *Config) *int) envBinding {
	return envBinding{name, func(c *Config, value string) error {
		v, err := cast.ToIntE(value)
		if err != nil {
			return errors.Trace(err)
		}
		*field(c) = v
		return nil
	}}
}

func durationEnv(name string, field func(c *Config) *time.Duration) envBinding {
	return envBinding{name, func(c *Config, value string) error {
		v, err := cast.ToDurationE(value)
		if err != nil {
			return errors.Trace(err)
		}
		*field(c) = v
		return nil
	}}
}

var envBindings = []envBinding{
	stringEnv("LOG_LEVEL", func(c *Config) *string { return &c.Log.Level }),
	stringEnv("LOG_FORMAT", func(c *Config) *string { return &c.Log.Format }),
	intEnv("MAX_ACTIVE_TASKS", func(c *Config) *int { return &c.Engine.MaxActiveTasks }),
	durationEnv("POLL_INTERVAL", func(c *Config) *time.Duration { return &c.Engine.PollInterval }),
	stringEnv("SHELL", func(c *Config) *string { return &c.Engine.Shell }),
	stringEnv("STORE_TYPE", func(c *Config) *string { return &c.Store.Type }),
	stringEnv("POSTGRES_HOST", func(c *Config) *string { return &c.Store.Postgres.Host }),
	intEnv("POSTGRES_PORT", func(c *Config) *int { return &c.Store.Postgres.Port }),
	stringEnv("POSTGRES_USER", func(c *Config) *string { return &c.Store.Postgres.User }),
	stringEnv("POSTGRES_PASSWORD", func(c *Config) *string { return &c.Store.Postgres.Password }),
	stringEnv("POSTGRES_DATABASE", func(c *Config) *string { return &c.Store.Postgres.Database }),
	stringEnv("POSTGRES_SSLMODE", func(c *Config) *string { return &c.Store.Postgres.SSLMode }),
	stringEnv("REDIS_ADDR", func(c *Config) *string { return &c.Store.Redis.Addr }),
	stringEnv("REDIS_PASSWORD", func(c *Config) *string { return &c.Store.Redis.Password }),
	intEnv("REDIS_DB", func(c *Config) *int { return &c.Store.Redis.DB }),
	stringEnv("REDIS_KEY_PREFIX", func(c *Config) *string { return &c.Store.Redis.KeyPrefix }),
	durationEnv("SCHEDULER_SYNC_INTERVAL", func(c *Config) *time.Duration { return &c.Scheduler.SyncInterval }),
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		value, exists := lookup(EnvPrefix + b.name)
		if !exists || value == "" {
			continue
		}
		if err := b.set(c, value); err != nil {
			return errors.Annotatef(err, "env %s%s", EnvPrefix, b.name)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.NotValidf("log level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return errors.NotValidf("log format %q", c.Log.Format)
	}
	if c.Engine.MaxActiveTasks <= 0 {
		return errors.NotValidf("max_active_tasks %d", c.Engine.MaxActiveTasks)
	}
	switch c.Store.Type {
	case StoreMemory, StorePostgres, StoreRedis:
	default:
		return errors.NotValidf("store type %q", c.Store.Type)
	}
	return nil
}

// ApplyLogging sets the level and format of the standard logrus logger.
func (c LogConfig) ApplyLogging() error {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return errors.Trace(err)
	}
	log.SetLevel(level)
	if strings.ToLower(c.Format) == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// ToFlowOptions maps the engine and store sections to engine options.
func (c *Config) ToFlowOptions() []types.FlowOption {
	opts := []types.FlowOption{
		types.SetMaxActiveTasks(c.Engine.MaxActiveTasks),
		types.SetPollInterval(c.Engine.PollInterval),
		types.SetShell(c.Engine.Shell),
	}

	switch c.Store.Type {
	case StorePostgres:
		pg := c.Store.Postgres
		opts = append(opts, types.WithPostgresConfig(&types.PostgresConfig{
			Host:     pg.Host,
			Port:     pg.Port,
			User:     pg.User,
			Password: pg.Password,
			Database: pg.Database,
			SSLMode:  pg.SSLMode,
		}))
	case StoreRedis:
		r := c.Store.Redis
		opts = append(opts, types.WithRedisConfig(&types.RedisConfig{
			Addr:      r.Addr,
			Password:  r.Password,
			DB:        r.DB,
			KeyPrefix: r.KeyPrefix,
		}))
	default:
		opts = append(opts, types.EnableMemStore())
	}
	return opts
}
