package workitem

import "sort"

// SortByUrgency orders items most urgent first: priority descending, then
// due date ascending. Creation time and ID break the remaining ties so
// the order is total and the allocator stays deterministic.
func SortByUrgency(items []WorkItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := &items[i], &items[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
