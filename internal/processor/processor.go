// Package processor drains the sync queue against the remote store. Replay is
// strictly sequential: later operations may depend on identifiers assigned by
// earlier ones, such as a stock patch following the insert that resolved the
// product's temporary id.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tillsync/tillsync/internal/model"
	"github.com/tillsync/tillsync/internal/notify"
	"github.com/tillsync/tillsync/internal/queue"
	"github.com/tillsync/tillsync/internal/remote"
	"github.com/tillsync/tillsync/internal/session"
)

// ErrUnknownOperation is reported when a queued entry carries a kind no
// handler covers.
var ErrUnknownOperation = errors.New("unknown queued operation kind")

// Refresher re-fetches every collection from the remote store and merges it
// into the session. The processor triggers it after a fully drained run.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

// Processor replays queued operations against the remote store.
type Processor struct {
	queue     *queue.Queue
	session   *session.Store
	remote    remote.Store
	refresher Refresher
	notifier  notify.Notifier
	logger    *slog.Logger
	opDelay   time.Duration

	running atomic.Bool
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a processor. opDelay is the pause inserted between consecutive
// replayed operations to throttle the remote call rate.
func New(q *queue.Queue, s *session.Store, r remote.Store, refresher Refresher, notifier notify.Notifier, opDelay time.Duration, logger *slog.Logger) *Processor {
	return &Processor{
		queue:     q,
		session:   s,
		remote:    r,
		refresher: refresher,
		notifier:  notifier,
		logger:    logger.With("component", "processor"),
		opDelay:   opDelay,
		sleep:     sleepCtx,
	}
}

// Process replays every pending operation in timestamp order. An operation
// that fails stays queued for the next run; the loop continues with the rest.
// Concurrent calls collapse into the already running pass. Returns the
// context error if the run was cut short, nil otherwise.
func (p *Processor) Process(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		p.logger.Debug("Sync already in progress, skipping")
		return nil
	}
	defer p.running.Store(false)

	pending := p.queue.Pending()
	if len(pending) == 0 {
		return nil
	}

	p.logger.Info("Processing sync queue", "pending", len(pending))
	p.notifier.SyncStatus(notify.SyncStatus{Phase: notify.SyncSyncing, Pending: len(pending)})

	for i, op := range pending {
		if err := ctx.Err(); err != nil {
			p.finish(ctx, false)
			return err
		}
		if p.apply(ctx, op) {
			p.queue.MarkSynced(op.ID)
		}
		if i < len(pending)-1 && p.opDelay > 0 {
			if err := p.sleep(ctx, p.opDelay); err != nil {
				p.finish(ctx, false)
				return err
			}
		}
	}

	p.queue.Compact()
	p.finish(ctx, true)
	return nil
}

// finish reports the terminal sync status and, when the queue fully drained,
// triggers a complete refresh so local state converges on remote truth.
func (p *Processor) finish(ctx context.Context, completed bool) {
	remaining := p.queue.Len()
	if remaining > 0 {
		p.logger.Warn("Sync pass finished with operations still pending", "pending", remaining)
		p.notifier.SyncStatus(notify.SyncStatus{Phase: notify.SyncError, Pending: remaining})
		return
	}

	p.notifier.SyncStatus(notify.SyncStatus{Phase: notify.SyncDone})
	if completed && p.refresher != nil {
		if err := p.refresher.RefreshAll(ctx); err != nil {
			p.logger.Warn("Post-sync refresh failed", "error", err)
		}
	}
	p.notifier.Toast(notify.SeveritySuccess, "All data synced")
}

// apply dispatches one operation to its handler. A handler panic is contained
// here and counted as a failure so one corrupt entry cannot abort the pass.
func (p *Processor) apply(ctx context.Context, op queue.Operation) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Handler panicked", "operation", op.Kind, "entity_id", op.EntityID(), "panic", r)
			ok = false
		}
	}()

	var err error
	switch op.Kind {
	case queue.KindSaveSale:
		err = p.syncSale(ctx, op)
	case queue.KindSaveProduct:
		err = p.syncProduct(ctx, op)
	case queue.KindDeleteProduct:
		err = p.syncDeleteProduct(ctx, op)
	case queue.KindDeleteSale:
		err = p.syncDeleteSale(ctx, op)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownOperation, op.Kind)
	}
	if err != nil {
		p.logger.Warn("Operation failed, will retry on next pass",
			"operation", op.Kind, "entity_id", op.EntityID(), "error", err)
		return false
	}
	return true
}

// syncSale pushes a completed sale. The receipt number deduplicates across
// local and remote: if a remote row already carries it, its identity is
// adopted locally and the insert is skipped.
func (p *Processor) syncSale(ctx context.Context, op queue.Operation) error {
	if op.Sale == nil {
		return errors.New("sale operation without payload")
	}
	sale := *op.Sale

	cashierID := p.ensureValidUserID(ctx, sale.CashierID)

	existing, err := p.remote.Select(ctx, remote.TableSales, remote.Filters{"receiptNumber": sale.ReceiptNumber})
	if err != nil {
		return fmt.Errorf("check existing sale: %w", err)
	}
	if len(existing) > 0 {
		remoteID, _ := existing[0]["id"].(string)
		p.session.AdoptSaleIdentity(sale.ReceiptNumber, remoteID, cashierID)
		p.logger.Info("Sale already present remotely, adopted remote id",
			"receipt_number", sale.ReceiptNumber, "remote_id", remoteID)
		return nil
	}

	sale.CashierID = cashierID
	record, err := remote.ToRecord(sale)
	if err != nil {
		return fmt.Errorf("encode sale: %w", err)
	}
	stripLocalFields(record, model.IsTempID(sale.ID))

	rows, err := p.remote.Insert(ctx, remote.TableSales, record)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	remoteID := ""
	if len(rows) > 0 {
		remoteID, _ = rows[0]["id"].(string)
	}
	p.session.AdoptSaleIdentity(sale.ReceiptNumber, remoteID, cashierID)
	return nil
}

// syncProduct pushes a product mutation: a stock-only patch, an insert that
// resolves a temporary id, or a full update.
func (p *Processor) syncProduct(ctx context.Context, op queue.Operation) error {
	if op.Product == nil {
		return errors.New("product operation without payload")
	}
	product := *op.Product

	if op.IsStockOnly() {
		patch := map[string]any{
			"stock":      product.Stock,
			"updated_at": model.Now(),
		}
		if err := p.remote.Update(ctx, remote.TableProducts, remote.Filters{"id": product.ID}, patch); err != nil {
			return fmt.Errorf("patch stock: %w", err)
		}
		p.session.MarkProductSynced(product.ID)
		return nil
	}

	if model.IsTempID(product.ID) {
		record, err := remote.ToRecord(product)
		if err != nil {
			return fmt.Errorf("encode product: %w", err)
		}
		stripLocalFields(record, true)

		rows, err := p.remote.Insert(ctx, remote.TableProducts, record)
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		if len(rows) > 0 {
			if remoteID, _ := rows[0]["id"].(string); remoteID != "" {
				p.session.AdoptProductID(product.ID, remoteID)
				p.logger.Info("Product id resolved", "temp_id", product.ID, "remote_id", remoteID)
			}
		}
		return nil
	}

	record, err := remote.ToRecord(product)
	if err != nil {
		return fmt.Errorf("encode product: %w", err)
	}
	stripLocalFields(record, true)
	if err := p.remote.Update(ctx, remote.TableProducts, remote.Filters{"id": product.ID}, record); err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	p.session.MarkProductSynced(product.ID)
	return nil
}

// syncDeleteProduct marks the product deleted remotely, keeping its row for
// historical sales. Backends without the deleted column get a hard delete
// instead. Either way, the local copy is dropped once the remote confirms.
func (p *Processor) syncDeleteProduct(ctx context.Context, op queue.Operation) error {
	if op.TargetID == "" {
		return errors.New("delete product operation without target id")
	}
	patch := map[string]any{
		"deleted":    true,
		"deletedAt":  model.Now(),
		"updated_at": model.Now(),
	}
	if err := p.remote.Update(ctx, remote.TableProducts, remote.Filters{"id": op.TargetID}, patch); err != nil {
		p.logger.Warn("Soft delete rejected, falling back to hard delete", "product_id", op.TargetID, "error", err)
		if err := p.remote.Delete(ctx, remote.TableProducts, remote.Filters{"id": op.TargetID}); err != nil {
			return fmt.Errorf("delete product: %w", err)
		}
	}
	p.session.RemoveProduct(op.TargetID)
	return nil
}

// syncDeleteSale moves the remote sale into the deleted-sales audit table:
// fetch, copy with the deletion stamp, then delete the original row. A sale
// missing remotely counts as already deleted.
func (p *Processor) syncDeleteSale(ctx context.Context, op queue.Operation) error {
	if op.TargetID == "" {
		return errors.New("delete sale operation without target id")
	}

	rows, err := p.remote.Select(ctx, remote.TableSales, remote.Filters{"id": op.TargetID})
	if err != nil {
		return fmt.Errorf("fetch sale for deletion: %w", err)
	}
	if len(rows) == 0 {
		p.logger.Info("Sale already absent remotely, treating delete as done", "sale_id", op.TargetID)
		return nil
	}

	record := rows[0]
	record["deleted"] = true
	record["deletedAt"] = model.Now()
	if _, err := p.remote.Insert(ctx, remote.TableDeletedSales, record); err != nil {
		return fmt.Errorf("archive deleted sale: %w", err)
	}
	if err := p.remote.Delete(ctx, remote.TableSales, remote.Filters{"id": op.TargetID}); err != nil {
		return fmt.Errorf("delete sale: %w", err)
	}
	return nil
}

// ensureValidUserID resolves the cashier id a sale will be attributed to.
// The candidate must be a well-formed UUID present in the remote users table;
// failing that, the signed-in account's email is looked up; failing that, the
// sale is attributed to the sentinel user rather than rejected. The sentinel
// path is a logged degraded mode kept for manual reconciliation.
func (p *Processor) ensureValidUserID(ctx context.Context, candidate string) string {
	if candidate != "" && candidate != model.SentinelUserID {
		if _, err := uuid.Parse(candidate); err == nil {
			rows, err := p.remote.Select(ctx, remote.TableUsers, remote.Filters{"id": candidate})
			if err == nil && len(rows) > 0 {
				return candidate
			}
		}
	}

	if user, ok := p.session.CurrentUser(); ok && user.Email != "" {
		rows, err := p.remote.Select(ctx, remote.TableUsers, remote.Filters{"email": user.Email})
		if err == nil && len(rows) > 0 {
			if id, _ := rows[0]["id"].(string); id != "" {
				p.logger.Info("Cashier id resolved via account email", "email", user.Email, "user_id", id)
				return id
			}
		}
	}

	p.logger.Warn("Cashier identity unresolvable, attributing sale to sentinel user", "candidate", candidate)
	return model.SentinelUserID
}

// stripLocalFields removes columns the remote store does not carry. The id is
// dropped when temporary so the backend assigns a permanent one.
func stripLocalFields(record map[string]any, dropID bool) {
	delete(record, "syncState")
	if dropID {
		delete(record, "id")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
