package mem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/warriorguo/dagflow/store"
)

var (
	_ store.Store = &memStore{}
)

func NewMemStore() store.Store {
	return &memStore{
		m: make(map[string][]byte),
		// setup no error as default
		mockErrHandler: defaultNoErr,
	}
}

// NewMemStoreWithErrHandler returns a store whose every call reports errHandler's result.
func NewMemStoreWithErrHandler(errHandler func() error) store.Store {
	return &memStore{
		m:              make(map[string][]byte),
		mockErrHandler: errHandler,
	}
}

func defaultNoErr() error {
	return nil
}

/**
 * memStore keeps everything in process memory, it aims to serve tests and
 * one-shot CLI runs. State is lost when the process exits.
 */
type memStore struct {
	mu sync.Mutex

	mockErrHandler func() error

	m map[string][]byte
}

func formatKey(prefix, key string) string {
	return prefix + "|" + key
}

func (m *memStore) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.m))
	for key := range m.m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("\n----------\n")
	for _, key := range keys {
		sb.WriteString(fmt.Sprintf("%s: %s\n", key, string(m.m[key])))
	}
	sb.WriteString("----------\n")
	return sb.String()
}

func (m *memStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.mockErrHandler(); err != nil {
		return nil, err
	}
	return m.m[formatKey(prefix, key)], nil
}

func (m *memStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.mockErrHandler(); err != nil {
		return err
	}
	m.m[formatKey(prefix, key)] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Remove(ctx context.Context, prefix, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.mockErrHandler(); err != nil {
		return err
	}
	delete(m.m, formatKey(prefix, key))
	return nil
}

func (m *memStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	m.mu.Lock()
	if err := m.mockErrHandler(); err != nil {
		m.mu.Unlock()
		return err
	}

	prefix += "|"
	matchedKeys := make([]string, 0)
	for key := range m.m {
		if rest, found := strings.CutPrefix(key, prefix); found {
			matchedKeys = append(matchedKeys, rest)
		}
	}
	m.mu.Unlock()

	sort.Strings(matchedKeys)
	for _, key := range matchedKeys {
		if !iterator(key) {
			break
		}
	}
	return nil
}

func (m *memStore) Close() error {
	return nil
}
