// Package driven defines secondary port interfaces for external adapters.
package driven

import "context"

// Storage keys. The config key carries a format version so a layout change
// never collides with data written by an older release.
const (
	KeyConfigStorageKey = "keyquota_config_v2"
	HistoryStorageKey   = "keyquota_query_history"
)

// KVStore defines the driven port for the local key-value store that holds
// the encrypted key blob and the query history log. Values are always
// written whole; there are no partial or append writes.
type KVStore interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores or replaces the value under key.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
