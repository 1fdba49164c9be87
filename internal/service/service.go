// Package service provides the implementation of point-of-sale business
// logic: catalog maintenance, sale completion and the offline-first write
// path. Every mutation applies optimistically to the session, is queued for
// replay, and kicks the sync processor when the terminal is online.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tillsync/tillsync/internal/model"
	"github.com/tillsync/tillsync/internal/monitor"
	"github.com/tillsync/tillsync/internal/notify"
	"github.com/tillsync/tillsync/internal/processor"
	"github.com/tillsync/tillsync/internal/queue"
	"github.com/tillsync/tillsync/internal/reconcile"
	"github.com/tillsync/tillsync/internal/session"
)

// PosService defines the methods for operating the terminal.
// It abstracts the underlying session state and sync machinery.
type PosService interface {
	// ListProducts returns the cached product catalog, excluding soft-deleted entries.
	ListProducts(ctx context.Context) []model.Product

	// FindProduct retrieves a single product by its identifier.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindProduct(ctx context.Context, id string) (*model.Product, error)

	// SaveProduct creates or updates a product.
	// Returns ErrProductNotFound when updating a product that does not exist.
	SaveProduct(ctx context.Context, dto ProductSaveDto) (*model.Product, error)

	// UpdateStock sets a product's stock level.
	UpdateStock(ctx context.Context, id string, stock int) (*model.Product, error)

	// DeleteProduct soft-deletes the product locally and queues the remote delete.
	DeleteProduct(ctx context.Context, id string) error

	// ListSales returns the cached sales, newest first.
	ListSales(ctx context.Context) []model.Sale

	// ListDeletedSales returns the deleted-sales audit trail.
	ListDeletedSales(ctx context.Context) []model.DeletedSale

	// CompleteSale records a finished transaction, decrements stock and
	// queues everything for sync.
	CompleteSale(ctx context.Context, dto SaleCreateDto) (*model.Sale, error)

	// DeleteSale moves the sale into the audit trail and queues the remote delete.
	// Returns ErrSaleNotFound if no sale exists with the given ID.
	DeleteSale(ctx context.Context, id string) error

	// Sync checks connectivity and, when online, drains the queue and
	// refreshes every collection. Returns the remaining pending count.
	Sync(ctx context.Context) (StatusDto, error)

	// Status reports the connectivity and sync state of the terminal.
	Status(ctx context.Context) StatusDto
}

// Service implements PosService over the session state and sync machinery.
type Service struct {
	session   *session.Store
	queue     *queue.Queue
	processor *processor.Processor
	monitor   *monitor.Monitor
	fetcher   *reconcile.Fetcher
	hub       *notify.Hub
	logger    *slog.Logger
}

// NewService creates a new instance of PosService with the provided collaborators.
func NewService(s *session.Store, q *queue.Queue, p *processor.Processor, m *monitor.Monitor, f *reconcile.Fetcher, hub *notify.Hub, logger *slog.Logger) *Service {
	return &Service{
		session:   s,
		queue:     q,
		processor: p,
		monitor:   m,
		fetcher:   f,
		hub:       hub,
		logger:    logger.With("component", "service"),
	}
}

// ProductSaveDto represents the data transfer object for creating or updating
// a product. An empty ID means create.
type ProductSaveDto struct {
	ID         string  `json:"id"`
	Name       string  `json:"name" validate:"required"`
	Category   string  `json:"category" validate:"required"`
	Price      float64 `json:"price" validate:"required,gt=0"`
	Stock      int     `json:"stock" validate:"min=0"`
	ExpiryDate string  `json:"expiryDate,omitempty"`
	Barcode    string  `json:"barcode,omitempty"`
}

// SaleItemDto represents one line of a sale being completed.
type SaleItemDto struct {
	ProductID string `json:"id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// SaleCreateDto represents the data transfer object for completing a sale.
// Prices and names are resolved from the catalog, not trusted from the caller.
type SaleCreateDto struct {
	Items     []SaleItemDto `json:"items" validate:"required,gt=0,dive"`
	CashierID string        `json:"cashierId,omitempty"`
	Cashier   string        `json:"cashier,omitempty"`
}

// StatusDto reports the terminal's connectivity and sync state.
type StatusDto struct {
	Connection        notify.ConnectionState `json:"connection"`
	ConnectionMessage string                 `json:"connectionMessage"`
	SyncPhase         notify.SyncPhase       `json:"syncPhase"`
	Pending           int                    `json:"pending"`
	Toasts            []notify.Toast         `json:"toasts,omitempty"`
}

// ListProducts returns the catalog without soft-deleted entries.
func (s *Service) ListProducts(_ context.Context) []model.Product {
	all := s.session.Products()
	active := all[:0]
	for _, p := range all {
		if !p.Deleted {
			active = append(active, p)
		}
	}
	return active
}

// FindProduct retrieves a product by ID.
func (s *Service) FindProduct(_ context.Context, id string) (*model.Product, error) {
	product, ok := s.session.FindProduct(id)
	if !ok || product.Deleted {
		return nil, ErrProductNotFound
	}
	return &product, nil
}

// SaveProduct creates or updates a product. New products receive a temporary
// id resolved to a permanent one when the insert syncs.
func (s *Service) SaveProduct(ctx context.Context, dto ProductSaveDto) (*model.Product, error) {
	now := model.Now()

	var product model.Product
	if dto.ID == "" {
		product = model.Product{
			ID:        model.NewTempID(),
			CreatedAt: now,
			SyncState: model.SyncStatePending,
		}
	} else {
		existing, ok := s.session.FindProduct(dto.ID)
		if !ok {
			return nil, ErrProductNotFound
		}
		if existing.Deleted {
			return nil, ErrProductDeleted
		}
		product = existing
		product.SyncState = model.SyncStatePending
	}

	product.Name = dto.Name
	product.Category = dto.Category
	product.Price = dto.Price
	product.Stock = dto.Stock
	product.ExpiryDate = dto.ExpiryDate
	product.Barcode = dto.Barcode
	product.UpdatedAt = now

	s.session.ApplyProduct(product)
	s.queue.SaveProduct(product)
	s.logger.Info("Product saved", "product_id", product.ID, "name", product.Name)

	s.kick(ctx)
	return &product, nil
}

// UpdateStock sets the product's stock level and queues a stock-only patch.
func (s *Service) UpdateStock(ctx context.Context, id string, stock int) (*model.Product, error) {
	if stock < 0 {
		return nil, fmt.Errorf("stock must not be negative: %d", stock)
	}
	product, ok := s.session.SetStock(id, stock)
	if !ok {
		return nil, ErrProductNotFound
	}

	s.queue.SaveProduct(model.Product{ID: id, Stock: stock})
	s.kick(ctx)
	return &product, nil
}

// DeleteProduct soft-deletes the product locally. The local record is removed
// outright only once the remote delete has been confirmed.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if !s.session.MarkProductDeleted(id, model.Now()) {
		return ErrProductNotFound
	}
	s.queue.DeleteProduct(id)
	s.logger.Info("Product deleted", "product_id", id)

	s.kick(ctx)
	return nil
}

// ListSales returns the cached sales.
func (s *Service) ListSales(_ context.Context) []model.Sale {
	return s.session.Sales()
}

// ListDeletedSales returns the deleted-sales audit trail.
func (s *Service) ListDeletedSales(_ context.Context) []model.DeletedSale {
	return s.session.DeletedSales()
}

// CompleteSale records a finished transaction. The sale applies locally
// first, with a temporary id and a fresh receipt number, then the sale and
// the stock decrements are queued. A sale is never blocked by connectivity.
func (s *Service) CompleteSale(ctx context.Context, dto SaleCreateDto) (*model.Sale, error) {
	if len(dto.Items) == 0 {
		return nil, ErrEmptySale
	}

	// Duplicate lines for the same product are folded together so stock is
	// validated against the cart's full requested quantity.
	requested := make(map[string]int, len(dto.Items))
	order := make([]string, 0, len(dto.Items))
	for _, line := range dto.Items {
		if _, seen := requested[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		requested[line.ProductID] += line.Quantity
	}

	items := make([]model.SaleItem, 0, len(order))
	stocks := make(map[string]int, len(order))
	var total float64
	for _, id := range order {
		product, ok := s.session.FindProduct(id)
		if !ok || product.Deleted {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		quantity := requested[id]
		if product.Stock < quantity {
			return nil, fmt.Errorf("%w: product %s has %d, requested %d",
				ErrInsufficientStock, product.ID, product.Stock, quantity)
		}
		item := model.SaleItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  quantity,
		}
		items = append(items, item)
		stocks[product.ID] = product.Stock - quantity
		total += item.Subtotal()
	}

	cashierID := dto.CashierID
	cashier := dto.Cashier
	if user, ok := s.session.CurrentUser(); ok {
		if cashierID == "" {
			cashierID = user.ID
		}
		if cashier == "" {
			cashier = user.Name
		}
	}

	sale := model.Sale{
		ID:            model.NewTempID(),
		ReceiptNumber: s.nextReceiptNumber(),
		Items:         items,
		Total:         total,
		CreatedAt:     model.Now(),
		Cashier:       cashier,
		CashierID:     cashierID,
		SyncState:     model.SyncStatePending,
	}
	sale = s.session.AppendSale(sale)

	for id, stock := range stocks {
		s.session.SetStock(id, stock)
		s.queue.SaveProduct(model.Product{ID: id, Stock: stock})
	}
	s.queue.SaveSale(sale)
	s.logger.Info("Sale completed",
		"receipt_number", sale.ReceiptNumber, "items", len(sale.Items), "total", sale.Total)

	s.kick(ctx)
	return &sale, nil
}

// DeleteSale moves the sale into the audit trail and queues the remote side
// of the move. The sale record is never discarded locally.
func (s *Service) DeleteSale(ctx context.Context, id string) error {
	if _, ok := s.session.MoveSaleToDeleted(id, model.Now()); !ok {
		return ErrSaleNotFound
	}
	s.queue.DeleteSale(id)
	s.logger.Info("Sale deleted", "sale_id", id)

	s.kick(ctx)
	return nil
}

// Sync runs a full manual sync: connectivity check, queue drain, refresh.
func (s *Service) Sync(ctx context.Context) (StatusDto, error) {
	hadPending := s.queue.Len() > 0
	wasOnline := s.monitor.IsOnline()
	if !s.monitor.Check(ctx) {
		return s.Status(ctx), nil
	}
	if err := s.processor.Process(ctx); err != nil {
		return s.Status(ctx), err
	}
	if wasOnline && !hadPending {
		// A successful check refreshes on a reconnect or after a drain, but
		// not on a re-check while online with nothing queued.
		if err := s.fetcher.RefreshAll(ctx); err != nil {
			return s.Status(ctx), err
		}
	}
	return s.Status(ctx), nil
}

// Status reports the terminal's current connectivity and sync state.
func (s *Service) Status(_ context.Context) StatusDto {
	state, message := s.hub.Connection()
	sync := s.hub.Sync()
	return StatusDto{
		Connection:        state,
		ConnectionMessage: message,
		SyncPhase:         sync.Phase,
		Pending:           s.queue.Len(),
		Toasts:            s.hub.RecentToasts(),
	}
}

// kick starts a background sync pass when the terminal is online. The pass
// runs detached from the request so a slow remote store never delays the
// till.
func (s *Service) kick(ctx context.Context) {
	if !s.monitor.IsOnline() {
		s.hub.Toast(notify.SeverityInfo, "Saved locally. Changes will sync when the connection returns.")
		return
	}
	go func() {
		if err := s.processor.Process(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Background sync pass interrupted", "error", err)
		}
	}()
}

// nextReceiptNumber generates a receipt number of the form R<yymmdd><seq>,
// unique across the locally known sales.
func (s *Service) nextReceiptNumber() string {
	day := time.Now().UTC().Format("060102")
	seq := 1
	for _, sale := range s.session.Sales() {
		if len(sale.ReceiptNumber) >= 7 && sale.ReceiptNumber[1:7] == day {
			seq++
		}
	}
	for {
		receipt := fmt.Sprintf("R%s%03d", day, seq)
		if _, exists := s.session.FindSaleByReceipt(receipt); !exists {
			return receipt
		}
		seq++
	}
}
