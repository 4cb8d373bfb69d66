package redis

import (
	"context"
	"sort"

	goredis "github.com/go-redis/redis/v8"
	"github.com/juju/errors"
	"github.com/warriorguo/dagflow/store"
)

var (
	_ store.Store = &redisStore{}
)

type Config struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces the hashes, one hash per store prefix.
	KeyPrefix string
}

// DefaultKeyPrefix is also the default of the dagflow command configuration.
const DefaultKeyPrefix = "dagflow:"

func DefaultConfig() *Config {
	return &Config{
		Addr:      "localhost:6379",
		KeyPrefix: DefaultKeyPrefix,
	}
}

type redisStore struct {
	client    *goredis.Client
	keyPrefix string
}

func NewRedisStore(config *Config) (store.Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Addr == "" {
		return nil, errors.NotValidf("empty redis addr")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, errors.Annotatef(err, "failed to ping redis %s", config.Addr)
	}
	return &redisStore{client: client, keyPrefix: config.KeyPrefix}, nil
}

// NewRedisStoreWithClient wraps an existing client, which the store then owns.
func NewRedisStoreWithClient(client *goredis.Client, keyPrefix string) (store.Store, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	return &redisStore{client: client, keyPrefix: keyPrefix}, nil
}

func (r *redisStore) hashKey(prefix string) string {
	return r.keyPrefix + prefix
}

func (r *redisStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	value, err := r.client.HGet(ctx, r.hashKey(prefix), key).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "failed to get value for prefix=%s, key=%s", prefix, key)
	}
	return value, nil
}

func (r *redisStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	if err := r.client.HSet(ctx, r.hashKey(prefix), key, value).Err(); err != nil {
		return errors.Annotatef(err, "failed to set value for prefix=%s, key=%s", prefix, key)
	}
	return nil
}

func (r *redisStore) Remove(ctx context.Context, prefix, key string) error {
	if err := r.client.HDel(ctx, r.hashKey(prefix), key).Err(); err != nil {
		return errors.Annotatef(err, "failed to remove value for prefix=%s, key=%s", prefix, key)
	}
	return nil
}

func (r *redisStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	keys, err := r.client.HKeys(ctx, r.hashKey(prefix)).Result()
	if err != nil {
		return errors.Annotatef(err, "failed to list keys for prefix=%s", prefix)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !iterator(key) {
			break
		}
	}
	return nil
}

func (r *redisStore) Close() error {
	return r.client.Close()
}
