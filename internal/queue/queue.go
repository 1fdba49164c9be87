// Package queue implements the durable sync queue: offline mutations are
// recorded as operations and replayed against the remote store in creation
// order once connectivity returns. Equivalent operations are coalesced on
// enqueue so the queue carries intent, not history.
package queue

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tillsync/tillsync/internal/localstore"
	"github.com/tillsync/tillsync/internal/model"
)

// Kind identifies the mutation an operation replays.
type Kind string

const (
	KindSaveProduct   Kind = "saveProduct"
	KindSaveSale      Kind = "saveSale"
	KindDeleteProduct Kind = "deleteProduct"
	KindDeleteSale    Kind = "deleteSale"
)

// Operation is one queued mutation. Exactly one of Product, Sale or TargetID
// is populated depending on Kind.
type Operation struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"type"`
	Product   *model.Product `json:"product,omitempty"`
	Sale      *model.Sale    `json:"sale,omitempty"`
	TargetID  string         `json:"targetId,omitempty"`
	Timestamp string         `json:"timestamp"`
	Synced    bool           `json:"synced"`
	SyncedAt  string         `json:"syncedAt,omitempty"`
}

// EntityID returns the identifier of the entity the operation touches.
func (o Operation) EntityID() string {
	switch {
	case o.Product != nil:
		return o.Product.ID
	case o.Sale != nil:
		return o.Sale.ID
	default:
		return o.TargetID
	}
}

// IsStockOnly reports whether the operation is a stock-level patch for an
// existing product: a product save that carries no name. Such operations may
// target a product by id without replaying the full record.
func (o Operation) IsStockOnly() bool {
	return o.Kind == KindSaveProduct && o.Product != nil && o.Product.Name == ""
}

// CreatedAt returns the operation's enqueue instant.
func (o Operation) CreatedAt() time.Time {
	if t, err := time.Parse(time.RFC3339Nano, o.Timestamp); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, o.Timestamp); err == nil {
		return t
	}
	return time.Time{}
}

// Queue is the durable pending-operation list. It is persisted to the local
// store after every mutation.
type Queue struct {
	local  localstore.Store
	logger *slog.Logger
	maxAge time.Duration

	mu  sync.Mutex
	ops []Operation
}

// New creates an empty queue backed by local. Entries older than maxAge are
// evicted on Load.
func New(local localstore.Store, maxAge time.Duration, logger *slog.Logger) *Queue {
	return &Queue{
		local:  local,
		logger: logger.With("component", "queue"),
		maxAge: maxAge,
	}
}

// Load restores the queue from the local store. Unparseable state resets the
// queue rather than blocking startup. Entries older than the configured
// maximum age are evicted; they are presumed permanently unreplayable.
func (q *Queue) Load() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	raw, ok, err := q.local.Get(localstore.KeySyncQueue)
	if err != nil {
		q.logger.Warn("Failed to read sync queue from local store", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var ops []Operation
	if err := json.Unmarshal([]byte(raw), &ops); err != nil {
		q.logger.Warn("Resetting corrupt sync queue", "error", err)
		q.ops = nil
		q.persistLocked()
		return nil
	}
	q.ops = ops

	if evicted := q.evictStaleLocked(time.Now()); evicted > 0 {
		q.logger.Warn("Evicted stale sync queue entries", "count", evicted, "max_age", q.maxAge)
		q.persistLocked()
	}
	return nil
}

// SaveProduct enqueues a product save. A full save replaces any pending save
// for the same product; a stock-only save replaces only a pending stock-only
// save for the same product and otherwise coexists with a pending full save.
func (q *Queue) SaveProduct(product model.Product) Operation {
	p := product
	return q.add(Operation{Kind: KindSaveProduct, Product: &p})
}

// SaveSale enqueues a sale save. At most one pending save exists per receipt
// number; a new save for the same receipt replaces the old one.
func (q *Queue) SaveSale(sale model.Sale) Operation {
	s := sale
	return q.add(Operation{Kind: KindSaveSale, Sale: &s})
}

// DeleteProduct enqueues a product deletion, replacing any pending deletion
// of the same product.
func (q *Queue) DeleteProduct(id string) Operation {
	return q.add(Operation{Kind: KindDeleteProduct, TargetID: id})
}

// DeleteSale enqueues a sale deletion, replacing any pending deletion of the
// same sale.
func (q *Queue) DeleteSale(id string) Operation {
	return q.add(Operation{Kind: KindDeleteSale, TargetID: id})
}

func (q *Queue) add(op Operation) Operation {
	op.ID = uuid.NewString()
	op.Timestamp = model.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.findReplaceableLocked(op); i >= 0 {
		q.ops[i] = op
	} else {
		q.ops = append(q.ops, op)
	}
	q.persistLocked()
	return op
}

// findReplaceableLocked returns the index of the pending operation the new
// one supersedes, or -1. The newer operation carries the complete intended
// state, so replacing is lossless.
func (q *Queue) findReplaceableLocked(op Operation) int {
	for i, existing := range q.ops {
		if existing.Synced || existing.Kind != op.Kind {
			continue
		}
		switch op.Kind {
		case KindSaveSale:
			if existing.Sale != nil && op.Sale != nil &&
				existing.Sale.ReceiptNumber == op.Sale.ReceiptNumber {
				return i
			}
		case KindSaveProduct:
			if existing.Product == nil || op.Product == nil ||
				existing.Product.ID != op.Product.ID {
				continue
			}
			// A stock patch only replaces another stock patch; a full save
			// replaces any pending save for the product.
			if op.IsStockOnly() && !existing.IsStockOnly() {
				continue
			}
			return i
		default:
			if existing.TargetID == op.TargetID {
				return i
			}
		}
	}
	return -1
}

// Pending returns the unsynced operations ordered oldest first.
func (q *Queue) Pending() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	var pending []Operation
	for _, op := range q.ops {
		if !op.Synced {
			pending = append(pending, op)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt().Before(pending[j].CreatedAt())
	})
	return pending
}

// Len returns the number of unsynced operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, op := range q.ops {
		if !op.Synced {
			n++
		}
	}
	return n
}

// MarkSynced flags the operation as replayed. The entry is retained until
// Compact so an interrupted run never loses track of what already applied.
func (q *Queue) MarkSynced(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.ops {
		if q.ops[i].ID == id {
			q.ops[i].Synced = true
			q.ops[i].SyncedAt = model.Now()
			q.persistLocked()
			return
		}
	}
}

// Compact drops synced entries, keeping only operations still awaiting
// replay.
func (q *Queue) Compact() {
	q.mu.Lock()
	defer q.mu.Unlock()

	remaining := q.ops[:0]
	for _, op := range q.ops {
		if !op.Synced {
			remaining = append(remaining, op)
		}
	}
	q.ops = remaining
	q.persistLocked()
}

func (q *Queue) evictStaleLocked(now time.Time) int {
	if q.maxAge <= 0 {
		return 0
	}
	cutoff := now.Add(-q.maxAge)
	kept := q.ops[:0]
	evicted := 0
	for _, op := range q.ops {
		created := op.CreatedAt()
		if !created.IsZero() && created.Before(cutoff) {
			evicted++
			continue
		}
		kept = append(kept, op)
	}
	q.ops = kept
	return evicted
}

func (q *Queue) persistLocked() {
	ops := q.ops
	if ops == nil {
		ops = []Operation{}
	}
	raw, err := json.Marshal(ops)
	if err != nil {
		q.logger.Error("Failed to encode sync queue", "error", err)
		return
	}
	if err := q.local.Set(localstore.KeySyncQueue, string(raw)); err != nil {
		q.logger.Error("Failed to persist sync queue", "error", err)
	}
}
