package redis

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warriorguo/dagflow/store"
)

// skipIfNoRedis skips the test unless REDIS_ADDR points at a reachable server.
func skipIfNoRedis(t *testing.T) store.Store {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	config := DefaultConfig()
	config.Addr = addr
	config.KeyPrefix = "dagflow-test:" + t.Name() + ":"

	s, err := NewRedisStore(config)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisStore(t *testing.T) {
	s := skipIfNoRedis(t)
	ctx := context.Background()

	value, err := s.Get(ctx, "/dag_run/tutorial/", "missing")
	assert.Nil(t, err)
	assert.Nil(t, value)

	require.Nil(t, s.Set(ctx, "/dag_run/tutorial/", "b", []byte("2")))
	require.Nil(t, s.Set(ctx, "/dag_run/tutorial/", "a", []byte("1")))

	value, err = s.Get(ctx, "/dag_run/tutorial/", "a")
	assert.Nil(t, err)
	assert.Equal(t, []byte("1"), value)

	keys := []string{}
	assert.Nil(t, s.List(ctx, "/dag_run/tutorial/", func(key string) bool {
		keys = append(keys, key)
		return true
	}))
	assert.Equal(t, []string{"a", "b"}, keys)

	assert.Nil(t, s.Remove(ctx, "/dag_run/tutorial/", "a"))
	assert.Nil(t, s.Remove(ctx, "/dag_run/tutorial/", "b"))
	assert.Nil(t, s.Remove(ctx, "/dag_run/tutorial/", "b"))
}

func TestNewRedisStoreRejectsEmptyAddr(t *testing.T) {
	_, err := NewRedisStore(&Config{})
	assert.NotNil(t, err)

	_, err = NewRedisStoreWithClient(nil, "")
	assert.NotNil(t, err)
}
