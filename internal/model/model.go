// Package model defines the entities managed by the POS terminal: products,
// sales, deleted sales, users and store settings. Timestamps are carried as
// RFC 3339 strings because the types mirror the remote store's JSON rows.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SentinelUserID is the reserved cashier id recorded when identity resolution
// fails. Sales attributed to it are kept for later manual reconciliation
// instead of being rejected.
const SentinelUserID = "00000000-0000-0000-0000-000000000000"

const tempIDPrefix = "temp_"

// SyncState tracks whether an entity has been confirmed by the remote store.
type SyncState string

const (
	// SyncStateLocalOnly marks an entity created while offline and not yet queued.
	SyncStateLocalOnly SyncState = "local_only"
	// SyncStatePending marks an entity queued for replay against the remote store.
	SyncStatePending SyncState = "pending"
	// SyncStateSynced marks an entity confirmed by the remote store.
	SyncStateSynced SyncState = "synced"
)

// Product is an inventory item. Its ID is remote-assigned, or a locally
// generated temporary id until the remote insert returns a permanent one.
type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	Price      float64   `json:"price"`
	Stock      int       `json:"stock"`
	ExpiryDate string    `json:"expiryDate,omitempty"`
	Barcode    string    `json:"barcode,omitempty"`
	Deleted    bool      `json:"deleted,omitempty"`
	DeletedAt  string    `json:"deletedAt,omitempty"`
	CreatedAt  string    `json:"created_at,omitempty"`
	UpdatedAt  string    `json:"updated_at,omitempty"`
	SyncState  SyncState `json:"syncState,omitempty"`
}

// ModifiedAt returns the product's last modification instant, falling back to
// the creation instant. A record with neither is treated as epoch-old.
func (p Product) ModifiedAt() time.Time {
	return parseInstant(p.UpdatedAt, p.CreatedAt)
}

// SaleItem is a single line of a sale.
type SaleItem struct {
	ProductID string  `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Subtotal returns the line total for the item.
func (i SaleItem) Subtotal() float64 {
	return i.Price * float64(i.Quantity)
}

// Sale is a completed transaction. The receipt number is the stable business
// key: local temporary ids differ from remote-assigned ids, so receipt
// numbers are what deduplicates a sale across both sides.
type Sale struct {
	ID            string     `json:"id"`
	ReceiptNumber string     `json:"receiptNumber"`
	ClientSaleID  string     `json:"clientSaleId,omitempty"`
	Items         []SaleItem `json:"items"`
	Total         float64    `json:"total"`
	CreatedAt     string     `json:"created_at"`
	UpdatedAt     string     `json:"updated_at,omitempty"`
	Cashier       string     `json:"cashier,omitempty"`
	CashierID     string     `json:"cashierId"`
	Deleted       bool       `json:"deleted,omitempty"`
	SyncState     SyncState  `json:"syncState,omitempty"`
}

// ModifiedAt returns the sale's last modification instant, falling back to
// the creation instant.
func (s Sale) ModifiedAt() time.Time {
	return parseInstant(s.UpdatedAt, s.CreatedAt)
}

// CreatedInstant returns the sale's creation instant, or the zero time when
// the timestamp is missing or malformed.
func (s Sale) CreatedInstant() time.Time {
	return parseInstant(s.CreatedAt)
}

// DeletedSale is a sale moved to the append-only audit trail.
type DeletedSale struct {
	Sale
	DeletedAt string `json:"deletedAt"`
}

// User is a cashier or admin account known to the remote users table.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at,omitempty"`
	LastLogin string `json:"last_login,omitempty"`
}

// Settings holds the store-level display settings.
type Settings struct {
	StoreName         string `json:"storeName"`
	StoreAddress      string `json:"storeAddress"`
	StorePhone        string `json:"storePhone"`
	LowStockThreshold int    `json:"lowStockThreshold"`
	ExpiryWarningDays int    `json:"expiryWarningDays"`
}

// DefaultSettings returns the settings used before any are persisted.
func DefaultSettings() Settings {
	return Settings{
		LowStockThreshold: 10,
		ExpiryWarningDays: 90,
	}
}

// NewTempID generates a temporary local identifier, replaced by the
// remote-assigned id once the insert syncs.
func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id is a locally generated temporary identifier.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// Now formats the current instant the way the remote store stores timestamps.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// parseInstant parses the first non-empty RFC 3339 timestamp, returning the
// zero time when none parses.
func parseInstant(candidates ...string) time.Time {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, c); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, c); err == nil {
			return t
		}
	}
	return time.Time{}
}
