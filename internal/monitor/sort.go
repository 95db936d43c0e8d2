package monitor

import "sort"

func sortedItems[T any](in []indexed[T]) []T {
	cp := make([]indexed[T], len(in))
	copy(cp, in)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].index < cp[j].index })
	out := make([]T, 0, len(cp))
	for _, it := range cp {
		out = append(out, it.item)
	}
	return out
}
