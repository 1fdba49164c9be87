// Package session owns the process-wide mutable state of the terminal: the
// cached entity collections, the store settings, and the signed-in user.
// Every mutation is written through to the local store from the same critical
// section, so the durable cache never trails the in-memory snapshot across
// suspension points.
package session

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/tillsync/tillsync/internal/localstore"
	"github.com/tillsync/tillsync/internal/model"
	"github.com/tillsync/tillsync/internal/notify"
)

// Store is the single owner of the terminal's collections. All access goes
// through its methods; the mutex serializes mutation-affecting work.
type Store struct {
	local    localstore.Store
	logger   *slog.Logger
	notifier notify.Notifier

	mu           sync.Mutex
	products     []model.Product
	sales        []model.Sale
	deletedSales []model.DeletedSale
	users        []model.User
	settings     model.Settings
	currentUser  *model.User
}

// New creates an empty session store backed by local.
func New(local localstore.Store, logger *slog.Logger, notifier notify.Notifier) *Store {
	return &Store{
		local:    local,
		logger:   logger.With("component", "session"),
		notifier: notifier,
		settings: model.DefaultSettings(),
	}
}

// Load reads every collection from the local store. A value that fails to
// deserialize resets the affected collection to its default and continues;
// a corrupt cache must never prevent startup. Duplicate sales (same receipt
// number) are dropped, keeping the first occurrence.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loadJSON(s, localstore.KeyProducts, &s.products)
	loadJSON(s, localstore.KeySales, &s.sales)
	loadJSON(s, localstore.KeyDeletedSales, &s.deletedSales)
	loadJSON(s, localstore.KeyUsers, &s.users)

	settings := model.DefaultSettings()
	loadJSON(s, localstore.KeySettings, &settings)
	s.settings = settings

	var user model.User
	if loadJSON(s, localstore.KeyCurrentUser, &user) && user.ID != "" {
		s.currentUser = &user
	}

	if removed := s.dedupeSalesLocked(); removed > 0 {
		s.logger.Warn("Removed duplicate sales from local cache", "count", removed)
		s.persistSalesLocked()
	}

	s.logger.Info("Session loaded from local store",
		"products", len(s.products),
		"sales", len(s.sales),
		"deleted_sales", len(s.deletedSales),
		"users", len(s.users),
		"has_current_user", s.currentUser != nil,
	)
	return nil
}

// loadJSON reads key into dst, resetting dst's pointee untouched and
// reporting false when the key is absent or corrupt.
func loadJSON(s *Store, key string, dst any) bool {
	raw, ok, err := s.local.Get(key)
	if err != nil {
		s.logger.Warn("Failed to read local store key", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.logger.Warn("Resetting corrupt local store value", "key", key, "error", err)
		return false
	}
	return true
}

// Products returns a copy of the product collection.
func (s *Store) Products() []model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Product(nil), s.products...)
}

// Sales returns a copy of the sales collection.
func (s *Store) Sales() []model.Sale {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Sale(nil), s.sales...)
}

// DeletedSales returns a copy of the deleted-sales audit trail.
func (s *Store) DeletedSales() []model.DeletedSale {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.DeletedSale(nil), s.deletedSales...)
}

// Users returns a copy of the cached users collection.
func (s *Store) Users() []model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.User(nil), s.users...)
}

// Settings returns the store settings.
func (s *Store) Settings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// CurrentUser returns the signed-in user, if any.
func (s *Store) CurrentUser() (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentUser == nil {
		return model.User{}, false
	}
	return *s.currentUser, true
}

// SetCurrentUser records the signed-in user and persists it.
func (s *Store) SetCurrentUser(user model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentUser = &user
	s.persist(localstore.KeyCurrentUser, user)
}

// FindProduct returns the product with the given id.
func (s *Store) FindProduct(id string) (model.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.ID == id {
			return p, true
		}
	}
	return model.Product{}, false
}

// ApplyProduct inserts or replaces the product with the same id.
func (s *Store) ApplyProduct(product model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.products {
		if p.ID == product.ID {
			s.products[i] = product
			s.persistProductsLocked()
			return
		}
	}
	s.products = append(s.products, product)
	s.persistProductsLocked()
}

// RemoveProduct drops the product from the local cache (hard delete).
func (s *Store) RemoveProduct(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.products {
		if p.ID == id {
			s.products = append(s.products[:i], s.products[i+1:]...)
			s.persistProductsLocked()
			return true
		}
	}
	return false
}

// MarkProductDeleted soft-deletes the product: the record is retained with
// the deleted flag and deletion timestamp set.
func (s *Store) MarkProductDeleted(id, deletedAt string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == id {
			s.products[i].Deleted = true
			s.products[i].DeletedAt = deletedAt
			s.persistProductsLocked()
			return true
		}
	}
	return false
}

// AdoptProductID replaces a temporary product id with the remote-assigned one
// and marks the product synced.
func (s *Store) AdoptProductID(tempID, remoteID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == tempID {
			s.products[i].ID = remoteID
			s.products[i].SyncState = model.SyncStateSynced
			s.persistProductsLocked()
			return true
		}
	}
	return false
}

// SetStock updates a product's stock level.
func (s *Store) SetStock(id string, stock int) (model.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == id {
			s.products[i].Stock = stock
			s.products[i].UpdatedAt = model.Now()
			s.persistProductsLocked()
			return s.products[i], true
		}
	}
	return model.Product{}, false
}

// MarkProductSynced flips the product's sync state after a confirmed remote
// apply.
func (s *Store) MarkProductSynced(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == id {
			s.products[i].SyncState = model.SyncStateSynced
			s.persistProductsLocked()
			return
		}
	}
}

// FindSaleByID returns the sale with the given id.
func (s *Store) FindSaleByID(id string) (model.Sale, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sale := range s.sales {
		if sale.ID == id {
			return sale, true
		}
	}
	return model.Sale{}, false
}

// FindSaleByReceipt returns the sale with the given receipt number.
func (s *Store) FindSaleByReceipt(receiptNumber string) (model.Sale, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sale := range s.sales {
		if sale.ReceiptNumber == receiptNumber {
			return sale, true
		}
	}
	return model.Sale{}, false
}

// AppendSale adds a completed sale. If a sale with the same receipt number
// already exists the existing record is returned unchanged; receipt numbers
// are never duplicated locally.
func (s *Store) AppendSale(sale model.Sale) model.Sale {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sales {
		if existing.ReceiptNumber == sale.ReceiptNumber {
			return existing
		}
	}
	s.sales = append(s.sales, sale)
	s.persistSalesLocked()
	return sale
}

// AdoptSaleIdentity patches the local sale matching receiptNumber with the
// remote-assigned id and the resolved cashier id, marking it synced.
func (s *Store) AdoptSaleIdentity(receiptNumber, remoteID, cashierID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sales {
		if s.sales[i].ReceiptNumber == receiptNumber {
			if remoteID != "" {
				s.sales[i].ID = remoteID
			}
			if cashierID != "" {
				s.sales[i].CashierID = cashierID
			}
			s.sales[i].SyncState = model.SyncStateSynced
			s.persistSalesLocked()
			return true
		}
	}
	return false
}

// MoveSaleToDeleted moves the sale into the append-only deleted-sales trail.
// The sale is never physically discarded locally.
func (s *Store) MoveSaleToDeleted(id, deletedAt string) (model.DeletedSale, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sale := range s.sales {
		if sale.ID == id {
			sale.Deleted = true
			deleted := model.DeletedSale{Sale: sale, DeletedAt: deletedAt}
			s.sales = append(s.sales[:i], s.sales[i+1:]...)
			s.deletedSales = append(s.deletedSales, deleted)
			s.persistSalesLocked()
			s.persist(localstore.KeyDeletedSales, s.deletedSales)
			return deleted, true
		}
	}
	return model.DeletedSale{}, false
}

// ReplaceProducts swaps in a freshly merged product collection.
func (s *Store) ReplaceProducts(products []model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = products
	s.persistProductsLocked()
}

// ReplaceSales swaps in a freshly merged sales collection.
func (s *Store) ReplaceSales(sales []model.Sale) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = sales
	s.persistSalesLocked()
}

// ReplaceDeletedSales swaps in a freshly fetched deleted-sales collection.
func (s *Store) ReplaceDeletedSales(deleted []model.DeletedSale) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletedSales = deleted
	s.persist(localstore.KeyDeletedSales, s.deletedSales)
}

// ReplaceUsers swaps in a freshly fetched users collection.
func (s *Store) ReplaceUsers(users []model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users
	s.persist(localstore.KeyUsers, s.users)
}

// dedupeSalesLocked drops sales whose receipt number was already seen,
// returning the number removed. Caller holds the lock.
func (s *Store) dedupeSalesLocked() int {
	seen := make(map[string]bool, len(s.sales))
	unique := s.sales[:0]
	removed := 0
	for _, sale := range s.sales {
		if sale.ReceiptNumber != "" && seen[sale.ReceiptNumber] {
			removed++
			continue
		}
		seen[sale.ReceiptNumber] = true
		unique = append(unique, sale)
	}
	s.sales = unique
	return removed
}

func (s *Store) persistProductsLocked() {
	s.persist(localstore.KeyProducts, s.products)
}

// persistSalesLocked writes the sales ordered newest first by creation
// instant, the order every sales listing serves.
func (s *Store) persistSalesLocked() {
	sort.SliceStable(s.sales, func(i, j int) bool {
		return s.sales[i].CreatedInstant().After(s.sales[j].CreatedInstant())
	})
	s.persist(localstore.KeySales, s.sales)
}

// persist writes value under key. A persistence failure is surfaced as a
// warning; the in-memory state remains the source of truth for the session.
func (s *Store) persist(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("Failed to encode local store value", "key", key, "error", err)
		s.notifier.Toast(notify.SeverityWarning, "Error saving data locally. Some changes may be lost.")
		return
	}
	if err := s.local.Set(key, string(raw)); err != nil {
		s.logger.Error("Failed to write local store value", "key", key, "error", err)
		s.notifier.Toast(notify.SeverityWarning, "Error saving data locally. Some changes may be lost.")
	}
}
