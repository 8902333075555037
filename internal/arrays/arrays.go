// Package arrays holds small type-parametric helpers over slices:
// comparator sort, binary search, linear find/remove and shuffle.
package arrays

import (
	"math/rand/v2"
	"slices"
)

// Sort orders s in place by cmp (negative when a < b).
func Sort[T any](s []T, cmp func(a, b T) int) {
	if len(s) > 1 {
		slices.SortFunc(s, cmp)
	}
}

// BSearch looks key up in s, which must be sorted by cmp. It reports the
// index of a match, or false when key is absent.
func BSearch[T any](s []T, key T, cmp func(a, b T) int) (int, bool) {
	if len(s) == 0 {
		return 0, false
	}
	return slices.BinarySearchFunc(s, key, cmp)
}

// Contains is BSearch without the index.
func Contains[T any](s []T, key T, cmp func(a, b T) int) bool {
	_, ok := BSearch(s, key, cmp)
	return ok
}

// LFind returns the index of the first element equal to key.
func LFind[T any](s []T, key T, eq func(a, b T) bool) (int, bool) {
	for i := range s {
		if eq(s[i], key) {
			return i, true
		}
	}
	return -1, false
}

// LRemove deletes the first element equal to key, preserving order.
func LRemove[T any](s []T, key T, eq func(a, b T) bool) ([]T, bool) {
	i, ok := LFind(s, key, eq)
	if !ok {
		return s, false
	}
	return slices.Delete(s, i, i+1), true
}

// Shuffle permutes s in place (Fisher-Yates). A nil rng uses the global source.
func Shuffle[T any](s []T, rng *rand.Rand) {
	for i := len(s) - 1; i > 0; i-- {
		var j int
		if rng != nil {
			j = rng.IntN(i + 1)
		} else {
			j = rand.IntN(i + 1)
		}
		s[i], s[j] = s[j], s[i]
	}
}

// CompareInt is the natural order for ints.
func CompareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
