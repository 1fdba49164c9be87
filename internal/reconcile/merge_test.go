package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillsync/tillsync/internal/model"
)

func Test_MergeProducts_LastWriteWins(t *testing.T) {
	testCases := []struct {
		name          string
		local         model.Product
		server        model.Product
		expectedStock int
	}{
		{
			name:          "server newer - server wins",
			local:         model.Product{ID: "x", Stock: 10, UpdatedAt: "2025-01-01T00:00:00Z"},
			server:        model.Product{ID: "x", Stock: 7, UpdatedAt: "2025-01-02T00:00:00Z"},
			expectedStock: 7,
		},
		{
			name:          "local newer - local wins",
			local:         model.Product{ID: "x", Stock: 10, UpdatedAt: "2025-01-02T00:00:00Z"},
			server:        model.Product{ID: "x", Stock: 7, UpdatedAt: "2025-01-01T00:00:00Z"},
			expectedStock: 10,
		},
		{
			name:          "equal timestamps - server wins",
			local:         model.Product{ID: "x", Stock: 10, UpdatedAt: "2025-01-01T00:00:00Z"},
			server:        model.Product{ID: "x", Stock: 7, UpdatedAt: "2025-01-01T00:00:00Z"},
			expectedStock: 7,
		},
		{
			name:          "missing local timestamp treated as oldest",
			local:         model.Product{ID: "x", Stock: 10},
			server:        model.Product{ID: "x", Stock: 7, UpdatedAt: "2025-01-01T00:00:00Z"},
			expectedStock: 7,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			merged := MergeProducts([]model.Product{tc.local}, []model.Product{tc.server})
			// then
			require.Len(t, merged, 1)
			assert.Equal(t, tc.expectedStock, merged[0].Stock)
		})
	}
}

func Test_MergeProducts_RetainsLocalOnly(t *testing.T) {
	// given: a local-only product (not yet synced) and a server-only one
	local := []model.Product{{ID: "temp_abc", Name: "New local", UpdatedAt: "2025-01-01T00:00:00Z"}}
	server := []model.Product{{ID: "p9", Name: "Server only", UpdatedAt: "2025-01-01T00:00:00Z"}}

	// when
	merged := MergeProducts(local, server)

	// then: both survive, absence on one side never drops a record
	require.Len(t, merged, 2)
	ids := []string{merged[0].ID, merged[1].ID}
	assert.Contains(t, ids, "temp_abc")
	assert.Contains(t, ids, "p9")
}

func Test_MergeSales_KeyedByReceiptNumber(t *testing.T) {
	// given: the same sale under a temporary local id and a remote id
	local := []model.Sale{{ID: "temp_1", ReceiptNumber: "R250101001", Total: 10, CreatedAt: "2025-01-01T10:00:00Z"}}
	server := []model.Sale{{ID: "s-77", ReceiptNumber: "R250101001", Total: 10, CreatedAt: "2025-01-01T10:00:00Z", UpdatedAt: "2025-01-01T11:00:00Z"}}

	// when
	merged := MergeSales(local, server)

	// then: deduplicated on receipt, the newer server copy wins
	require.Len(t, merged, 1)
	assert.Equal(t, "s-77", merged[0].ID)
}

func Test_MergeSales_SortedNewestFirst(t *testing.T) {
	// given
	local := []model.Sale{
		{ID: "a", ReceiptNumber: "R1", CreatedAt: "2025-01-01T08:00:00Z"},
		{ID: "b", ReceiptNumber: "R2", CreatedAt: "2025-01-03T08:00:00Z"},
	}
	server := []model.Sale{
		{ID: "c", ReceiptNumber: "R3", CreatedAt: "2025-01-02T08:00:00Z"},
	}

	// when
	merged := MergeSales(local, server)

	// then
	require.Len(t, merged, 3)
	assert.Equal(t, "b", merged[0].ID)
	assert.Equal(t, "c", merged[1].ID)
	assert.Equal(t, "a", merged[2].ID)
}

func Test_MergeSales_RetainsUnsyncedLocal(t *testing.T) {
	// given: a local sale the server has never seen
	local := []model.Sale{{ID: "temp_1", ReceiptNumber: "R250101009", CreatedAt: "2025-01-01T08:00:00Z"}}

	// when
	merged := MergeSales(local, nil)

	// then
	require.Len(t, merged, 1)
	assert.Equal(t, "temp_1", merged[0].ID)
}
