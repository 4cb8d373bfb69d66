package store

import "context"

// Store persists runs, task instances and plans as opaque values grouped by prefix.
type Store interface {
	/**
	 * Get returns nil without error for an unknown prefix + key
	 */
	Get(ctx context.Context, prefix, key string) ([]byte, error)
	Set(ctx context.Context, prefix, key string, value []byte) error
	/**
	 * Remove a prefix and key
	 * remove an unexists prefix + key would NOT return error
	 */
	Remove(ctx context.Context, prefix, key string) error

	/**
	 * List walks the keys under prefix in ascending order until iterator
	 * returns false.
	 */
	List(ctx context.Context, prefix string, iterator func(key string) bool) error

	Close() error
}
