// Package localstore provides durable key-value persistence for the cached
// entity collections and the pending-operation queue.
package localstore

// Keys under which the session collections and the sync queue are persisted.
// All values are JSON documents.
const (
	KeyProducts     = "tillsync_products"
	KeySales        = "tillsync_sales"
	KeyDeletedSales = "tillsync_deleted_sales"
	KeyUsers        = "tillsync_users"
	KeySettings     = "tillsync_settings"
	KeyCurrentUser  = "tillsync_current_user"
	KeySyncQueue    = "tillsync_sync_queue"
)

// Store is the durable key-value persistence layer. Implementations must make
// a completed Set visible to a subsequent Get even across process restarts.
type Store interface {
	// Get returns the value for key and whether the key exists.
	Get(key string) (string, bool, error)

	// Set stores value under key, replacing any existing value.
	Set(key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error

	// Close releases the underlying resources.
	Close() error
}
