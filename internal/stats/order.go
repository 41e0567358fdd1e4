package stats

import (
	"sort"

	"cardhub/internal/domain"
)

// sortByDateDesc orders newest first; equal dates fall back to higher ID
// first so the order is deterministic.
func sortByDateDesc(txns []domain.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		a, b := txns[i].TransactionDate, txns[j].TransactionDate
		if !a.Equal(b) {
			return a.After(b)
		}
		return txns[i].ID > txns[j].ID
	})
}
