// Package remote consumes the remote object-relational store over its HTTP
// API. The backend itself is an external collaborator; this package only
// defines the operations the sync core needs and classifies its failures.
package remote

import "context"

// Table names in the remote store.
const (
	TableProducts     = "products"
	TableSales        = "sales"
	TableDeletedSales = "deleted_sales"
	TableUsers        = "users"
)

// Filters restricts an operation to rows whose columns equal the given values.
type Filters map[string]string

// Store is the remote object-relational store. Rows travel as generic JSON
// records so callers stay decoupled from the backend's column set.
type Store interface {
	// Select returns the rows of table matching filters.
	Select(ctx context.Context, table string, filters Filters) ([]map[string]any, error)

	// Insert adds a record to table and returns the inserted rows, including
	// server-assigned columns such as the permanent id.
	Insert(ctx context.Context, table string, record map[string]any) ([]map[string]any, error)

	// Update patches the rows of table matching filters.
	Update(ctx context.Context, table string, filters Filters, patch map[string]any) error

	// Delete removes the rows of table matching filters.
	Delete(ctx context.Context, table string, filters Filters) error

	// Ping performs a lightweight read to verify the store is reachable.
	Ping(ctx context.Context) error
}
