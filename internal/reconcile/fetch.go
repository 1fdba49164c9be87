package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tillsync/tillsync/internal/model"
	"github.com/tillsync/tillsync/internal/notify"
	"github.com/tillsync/tillsync/internal/remote"
	"github.com/tillsync/tillsync/internal/session"
)

// Fetcher pulls collections from the remote store and folds them into the
// session. Every fetch degrades to the cached local collection on failure;
// remote trouble must never clear data the terminal already holds.
type Fetcher struct {
	remote   remote.Store
	session  *session.Store
	notifier notify.Notifier
	logger   *slog.Logger

	warnedPolicy     atomic.Bool
	warnedPermission atomic.Bool
}

// NewFetcher creates a fetcher over the given remote store and session.
func NewFetcher(r remote.Store, s *session.Store, notifier notify.Notifier, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		remote:   r,
		session:  s,
		notifier: notifier,
		logger:   logger.With("component", "reconcile"),
	}
}

// FetchProducts fetches the remote product collection and merges it into the
// session. Soft-deleted rows are dropped from the merge input. On any remote
// failure the cached collection is returned unchanged.
func (f *Fetcher) FetchProducts(ctx context.Context) []model.Product {
	local := f.session.Products()

	rows, err := f.remote.Select(ctx, remote.TableProducts, nil)
	if err != nil {
		f.degrade("products", err)
		return local
	}

	server := remote.FromRecords[model.Product](normalizeProductRows(rows))
	active := server[:0]
	for _, p := range server {
		if !p.Deleted {
			active = append(active, p)
		}
	}

	merged := MergeProducts(local, active)
	f.session.ReplaceProducts(merged)
	return merged
}

// FetchSales fetches the remote sales collection and merges it into the
// session, keyed by receipt number.
func (f *Fetcher) FetchSales(ctx context.Context) []model.Sale {
	local := f.session.Sales()

	rows, err := f.remote.Select(ctx, remote.TableSales, nil)
	if err != nil {
		f.degrade("sales", err)
		return local
	}

	server := f.normalizeSales(remote.FromRecords[model.Sale](rows))
	merged := MergeSales(local, server)
	f.session.ReplaceSales(merged)
	return merged
}

// FetchDeletedSales fetches the remote deleted-sales audit trail. The trail
// is remote-authoritative, so the fetched rows replace the cached copy.
func (f *Fetcher) FetchDeletedSales(ctx context.Context) []model.DeletedSale {
	local := f.session.DeletedSales()

	rows, err := f.remote.Select(ctx, remote.TableDeletedSales, nil)
	if err != nil {
		f.degrade("deleted sales", err)
		return local
	}

	deleted := remote.FromRecords[model.DeletedSale](rows)
	f.session.ReplaceDeletedSales(deleted)
	return deleted
}

// FetchUsers refreshes the cached users collection used for cashier
// resolution and display.
func (f *Fetcher) FetchUsers(ctx context.Context) []model.User {
	local := f.session.Users()

	rows, err := f.remote.Select(ctx, remote.TableUsers, nil)
	if err != nil {
		f.degrade("users", err)
		return local
	}

	users := remote.FromRecords[model.User](rows)
	f.session.ReplaceUsers(users)
	return users
}

// RefreshAll re-fetches every collection. Individual fetches degrade
// internally, so a refresh never fails hard; the context error is returned
// only when the run was cancelled outright.
func (f *Fetcher) RefreshAll(ctx context.Context) error {
	f.logger.Info("Refreshing all collections from remote store")
	f.FetchUsers(ctx)
	f.FetchProducts(ctx)
	f.FetchSales(ctx)
	f.FetchDeletedSales(ctx)
	return ctx.Err()
}

// degrade reports a failed fetch. Policy and permission failures are surfaced
// to the user once per class; transient failures only log, since the monitor
// already reports connectivity.
func (f *Fetcher) degrade(what string, err error) {
	switch {
	case remote.IsPolicyRecursion(err):
		f.logger.Error("Backend policy misconfiguration, serving cached data", "collection", what, "error", err)
		if f.warnedPolicy.CompareAndSwap(false, true) {
			f.notifier.Toast(notify.SeverityError,
				fmt.Sprintf("Server configuration problem loading %s. Showing locally saved data.", what))
		}
	case remote.IsPermissionDenied(err):
		f.logger.Error("Permission denied, serving cached data", "collection", what, "error", err)
		if f.warnedPermission.CompareAndSwap(false, true) {
			f.notifier.Toast(notify.SeverityWarning,
				fmt.Sprintf("Not allowed to load %s from the server. Showing locally saved data.", what))
		}
	default:
		f.logger.Warn("Fetch failed, serving cached data", "collection", what, "error", err)
	}
}

// normalizeSales repairs incomplete sale rows so the merge and the listings
// can rely on every field being present. Repairs are logged; a row that needs
// one usually points at a writer bypassing the terminal.
func (f *Fetcher) normalizeSales(sales []model.Sale) []model.Sale {
	for i := range sales {
		s := &sales[i]
		if s.ReceiptNumber == "" {
			s.ReceiptNumber = s.ID
			f.logger.Warn("Sale row missing receipt number, falling back to id", "id", s.ID)
		}
		if s.Items == nil {
			s.Items = []model.SaleItem{}
			f.logger.Warn("Sale row missing items", "id", s.ID)
		}
		if s.Total == 0 && len(s.Items) > 0 {
			for _, item := range s.Items {
				s.Total += item.Subtotal()
			}
			f.logger.Warn("Sale row missing total, recomputed from items", "id", s.ID, "total", s.Total)
		}
		if s.CreatedAt == "" {
			if s.CreatedAt = s.UpdatedAt; s.CreatedAt == "" {
				s.CreatedAt = model.Now()
			}
			f.logger.Warn("Sale row missing created_at, repaired", "id", s.ID)
		}
	}
	return sales
}

// normalizeProductRows repairs column-name drift between the remote schema
// and the local model, such as the lowercase expirydate column.
func normalizeProductRows(rows []map[string]any) []map[string]any {
	for _, row := range rows {
		if v, ok := row["expirydate"]; ok {
			if _, exists := row["expiryDate"]; !exists {
				row["expiryDate"] = v
			}
			delete(row, "expirydate")
		}
	}
	return rows
}
