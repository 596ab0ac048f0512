package lifecycle

import (
	"sort"

	"pawcare/internal/models"
)

// UniqueStatusHistory keeps the earliest entry of every status and returns
// them in ascending timestamp order. Statuses compare after Normalize, so
// "shipped" and "Dispatched" collapse. Applying it twice changes nothing.
func UniqueStatusHistory(entries []models.StatusHistoryEntry) []models.StatusHistoryEntry {
	if len(entries) == 0 {
		return nil
	}

	sorted := append([]models.StatusHistoryEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	seen := make(map[string]bool, len(sorted))
	out := make([]models.StatusHistoryEntry, 0, len(sorted))
	for _, e := range sorted {
		key := Normalize(e.Status)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
