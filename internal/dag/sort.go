package dag

import (
	"errors"
	"fmt"
	"slices"
)

// CycleError is returned when items cannot be ordered. Remaining holds
// every item that was still waiting on a dependency, in input order.
type CycleError[T comparable] struct {
	Remaining []T
}

func (e *CycleError[T]) Error() string {
	return fmt.Sprintf("dependency cycle among %v", e.Remaining)
}

// AsCycleError returns err as a *CycleError[T], or nil.
func AsCycleError[T comparable](err error) *CycleError[T] {
	var cerr *CycleError[T]
	if errors.As(err, &cerr) {
		return cerr
	}
	return nil
}

// TopologicalSort orders items so that every item comes after all of its
// dependencies. Dependencies that are not in items are ignored. Items with no
// ordering constraint between them keep their relative input order, so
// sorting the same input twice yields the same result.
func TopologicalSort[T comparable](items []T, deps func(T) []T) ([]T, error) {
	pos := make(map[T]int, len(items))
	for i, it := range items {
		if _, dup := pos[it]; !dup {
			pos[it] = i
		}
	}

	// pending[i] counts unresolved dependencies; -1 marks a duplicate entry.
	pending := make([]int, len(items))
	dependents := make([][]int, len(items))
	for i, it := range items {
		if pos[it] != i {
			pending[i] = -1
			continue
		}
		seen := make(map[int]struct{})
		for _, d := range deps(it) {
			j, ok := pos[d]
			if !ok {
				continue
			}
			if _, dup := seen[j]; dup {
				continue
			}
			seen[j] = struct{}{}
			pending[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var ready []int
	for i, p := range pending {
		if p == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]T, 0, len(pos))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		out = append(out, items[i])
		for _, k := range dependents[i] {
			pending[k]--
			if pending[k] == 0 {
				at, _ := slices.BinarySearch(ready, k)
				ready = slices.Insert(ready, at, k)
			}
		}
	}

	if len(out) < len(pos) {
		var remaining []T
		for i, p := range pending {
			if p > 0 {
				remaining = append(remaining, items[i])
			}
		}
		return nil, &CycleError[T]{Remaining: remaining}
	}
	return out, nil
}
