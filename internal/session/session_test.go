package session

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillsync/tillsync/internal/localstore"
	"github.com/tillsync/tillsync/internal/model"
	"github.com/tillsync/tillsync/internal/notify"
)

func newTestStore(t *testing.T) (*Store, *localstore.MemoryStore) {
	t.Helper()
	local := localstore.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(local, logger, notify.NewLogNotifier(logger)), local
}

func seed(t *testing.T, local *localstore.MemoryStore, key string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, local.Set(key, string(raw)))
}

func Test_Session_Load(t *testing.T) {
	// given
	s, local := newTestStore(t)
	seed(t, local, localstore.KeyProducts, []model.Product{{ID: "p1", Name: "Milk"}})
	seed(t, local, localstore.KeySales, []model.Sale{{ID: "s1", ReceiptNumber: "R1"}})
	seed(t, local, localstore.KeyCurrentUser, model.User{ID: "u1", Email: "till@example.com"})

	// when
	require.NoError(t, s.Load())

	// then
	assert.Len(t, s.Products(), 1)
	assert.Len(t, s.Sales(), 1)
	user, ok := s.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "till@example.com", user.Email)
}

func Test_Session_Load_ResetsCorruptValue(t *testing.T) {
	// given: a corrupt product cache next to a healthy sales cache
	s, local := newTestStore(t)
	require.NoError(t, local.Set(localstore.KeyProducts, "{corrupt"))
	seed(t, local, localstore.KeySales, []model.Sale{{ID: "s1", ReceiptNumber: "R1"}})

	// when
	require.NoError(t, s.Load())

	// then
	assert.Empty(t, s.Products())
	assert.Len(t, s.Sales(), 1)
}

func Test_Session_Load_DropsDuplicateSales(t *testing.T) {
	// given: the same receipt twice in the cache
	s, local := newTestStore(t)
	seed(t, local, localstore.KeySales, []model.Sale{
		{ID: "s1", ReceiptNumber: "R1", Total: 10},
		{ID: "s2", ReceiptNumber: "R1", Total: 10},
		{ID: "s3", ReceiptNumber: "R2", Total: 5},
	})

	// when
	require.NoError(t, s.Load())

	// then: first occurrence wins
	sales := s.Sales()
	require.Len(t, sales, 2)
}

func Test_Session_SalesOrderedByCreationInstant(t *testing.T) {
	// given: an older sale that was modified after a newer one was created
	s, _ := newTestStore(t)
	s.AppendSale(model.Sale{
		ID:            "s1",
		ReceiptNumber: "R1",
		CreatedAt:     "2025-01-01T00:00:00Z",
		UpdatedAt:     "2025-01-05T00:00:00Z",
	})
	s.AppendSale(model.Sale{
		ID:            "s2",
		ReceiptNumber: "R2",
		CreatedAt:     "2025-01-03T00:00:00Z",
	})

	// when
	sales := s.Sales()

	// then: newest creation first, regardless of later modifications
	require.Len(t, sales, 2)
	assert.Equal(t, "s2", sales[0].ID)
	assert.Equal(t, "s1", sales[1].ID)
}

func Test_Session_ApplyProduct_WritesThrough(t *testing.T) {
	// given
	s, local := newTestStore(t)

	// when
	s.ApplyProduct(model.Product{ID: "p1", Name: "Milk", Stock: 5})

	// then: the local store reflects the mutation immediately
	raw, ok, err := local.Get(localstore.KeyProducts)
	require.NoError(t, err)
	require.True(t, ok)
	var persisted []model.Product
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	require.Len(t, persisted, 1)
	assert.Equal(t, "Milk", persisted[0].Name)
}

func Test_Session_AdoptProductID(t *testing.T) {
	// given
	s, _ := newTestStore(t)
	s.ApplyProduct(model.Product{ID: "temp_1", Name: "Milk", SyncState: model.SyncStatePending})

	// when
	ok := s.AdoptProductID("temp_1", "p-42")

	// then
	assert.True(t, ok)
	_, stillThere := s.FindProduct("temp_1")
	assert.False(t, stillThere)
	adopted, found := s.FindProduct("p-42")
	require.True(t, found)
	assert.Equal(t, model.SyncStateSynced, adopted.SyncState)
}

func Test_Session_MarkProductDeleted(t *testing.T) {
	// given
	s, _ := newTestStore(t)
	s.ApplyProduct(model.Product{ID: "p1", Name: "Milk"})

	// when
	ok := s.MarkProductDeleted("p1", "2025-01-01T00:00:00Z")

	// then: the record survives with the deletion flag set
	assert.True(t, ok)
	p, found := s.FindProduct("p1")
	require.True(t, found)
	assert.True(t, p.Deleted)
	assert.Equal(t, "2025-01-01T00:00:00Z", p.DeletedAt)
}

func Test_Session_AppendSale_RejectsDuplicateReceipt(t *testing.T) {
	// given
	s, _ := newTestStore(t)
	first := s.AppendSale(model.Sale{ID: "temp_1", ReceiptNumber: "R1", Total: 10})

	// when
	second := s.AppendSale(model.Sale{ID: "temp_2", ReceiptNumber: "R1", Total: 99})

	// then
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, s.Sales(), 1)
}

func Test_Session_MoveSaleToDeleted(t *testing.T) {
	// given
	s, _ := newTestStore(t)
	s.AppendSale(model.Sale{ID: "s1", ReceiptNumber: "R1", Total: 10})

	// when
	deleted, ok := s.MoveSaleToDeleted("s1", "2025-01-02T00:00:00Z")

	// then: the sale leaves the active list but stays in the audit trail
	require.True(t, ok)
	assert.Equal(t, "R1", deleted.ReceiptNumber)
	assert.Equal(t, "2025-01-02T00:00:00Z", deleted.DeletedAt)
	assert.Empty(t, s.Sales())
	require.Len(t, s.DeletedSales(), 1)
	assert.True(t, s.DeletedSales()[0].Deleted)
}

func Test_Session_MoveSaleToDeleted_NotFound(t *testing.T) {
	// given
	s, _ := newTestStore(t)

	// when
	_, ok := s.MoveSaleToDeleted("missing", "2025-01-02T00:00:00Z")

	// then
	assert.False(t, ok)
}

func Test_Session_SetStock(t *testing.T) {
	// given
	s, _ := newTestStore(t)
	s.ApplyProduct(model.Product{ID: "p1", Name: "Milk", Stock: 10})

	// when
	updated, ok := s.SetStock("p1", 4)

	// then
	require.True(t, ok)
	assert.Equal(t, 4, updated.Stock)
	assert.NotEmpty(t, updated.UpdatedAt)
}
