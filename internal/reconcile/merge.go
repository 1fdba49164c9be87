// Package reconcile merges locally cached collections with freshly fetched
// remote ones. Conflicts resolve last-write-wins on the modification
// timestamp; a missing timestamp counts as epoch-old. Local records without a
// remote counterpart are retained unchanged, since absence may mean
// not-yet-synced rather than deleted. Deletions travel through their own
// queued operations, never through absence inference.
package reconcile

import (
	"sort"

	"github.com/tillsync/tillsync/internal/model"
)

// MergeProducts combines the local and server product collections, keyed by
// id. For each key present on both sides the strictly newer record wins; the
// server record wins ties.
func MergeProducts(local, server []model.Product) []model.Product {
	byID := make(map[string]int, len(local))
	merged := append([]model.Product(nil), local...)
	for i, p := range merged {
		byID[p.ID] = i
	}

	for _, remote := range server {
		i, ok := byID[remote.ID]
		if !ok {
			byID[remote.ID] = len(merged)
			merged = append(merged, remote)
			continue
		}
		if !merged[i].ModifiedAt().After(remote.ModifiedAt()) {
			merged[i] = remote
		}
	}
	return merged
}

// MergeSales combines the local and server sales collections, keyed by
// receipt number because local temporary ids differ from remote-assigned
// ones. The result is sorted newest first.
func MergeSales(local, server []model.Sale) []model.Sale {
	byReceipt := make(map[string]int, len(local))
	merged := append([]model.Sale(nil), local...)
	for i, s := range merged {
		byReceipt[s.ReceiptNumber] = i
	}

	for _, remote := range server {
		i, ok := byReceipt[remote.ReceiptNumber]
		if !ok {
			byReceipt[remote.ReceiptNumber] = len(merged)
			merged = append(merged, remote)
			continue
		}
		if !merged[i].ModifiedAt().After(remote.ModifiedAt()) {
			merged[i] = remote
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedInstant().After(merged[j].CreatedInstant())
	})
	return merged
}
