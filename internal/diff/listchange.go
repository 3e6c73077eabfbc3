package diff

import (
	"maps"
	"slices"
)

// ListChange is the result of differencing two name-keyed collections.
//
// A name appears in at most one of Added, Removed and Modified, and Modified
// never holds an empty diff list. Three empty maps mean no differences.
type ListChange[R, L any] struct {
	Added    map[string]L      // only local
	Removed  map[string]R      // only remote
	Modified map[string][]Diff // both, with at least one nested difference
}

// ElementDiffFunc compares the remote and local values stored under the same name.
type ElementDiffFunc[R, L any] func(remote R, local L) []Diff

// Compare partitions remote and local by name. When fn is nil, names present
// on both sides contribute nothing; callers relying on that are expected to
// key their collections so that equal names imply equal values.
func Compare[R, L any](remote map[string]R, local map[string]L, fn ElementDiffFunc[R, L]) ListChange[R, L] {
	lc := ListChange[R, L]{
		Added:    make(map[string]L),
		Removed:  make(map[string]R),
		Modified: make(map[string][]Diff),
	}

	for name, l := range local {
		r, ok := remote[name]
		if !ok {
			lc.Added[name] = l
			continue
		}
		if fn == nil {
			continue
		}
		if diffs := fn(r, l); len(diffs) > 0 {
			lc.Modified[name] = diffs
		}
	}

	for name, r := range remote {
		if _, ok := local[name]; !ok {
			lc.Removed[name] = r
		}
	}

	return lc
}

// Empty reports whether no differences were found.
func (lc ListChange[R, L]) Empty() bool {
	return len(lc.Added) == 0 && len(lc.Removed) == 0 && len(lc.Modified) == 0
}

// AddedNames returns the added names in sorted order.
func (lc ListChange[R, L]) AddedNames() []string {
	return SortedKeys(lc.Added)
}

// RemovedNames returns the removed names in sorted order.
func (lc ListChange[R, L]) RemovedNames() []string {
	return SortedKeys(lc.Removed)
}

// ModifiedNames returns the modified names in sorted order.
func (lc ListChange[R, L]) ModifiedNames() []string {
	return SortedKeys(lc.Modified)
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// Keyed indexes items by the name key returns for each.
func Keyed[T any](items []T, key func(T) string) map[string]T {
	m := make(map[string]T, len(items))
	for _, it := range items {
		m[key(it)] = it
	}
	return m
}
