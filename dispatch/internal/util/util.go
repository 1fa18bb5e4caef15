// Package util provides generic utility functions shared across dispatch sub-packages.
package util

// Chunks partitions items into consecutive slices of at most size elements.
// The final chunk may be shorter. Returns nil for an empty input. Panics if
// size <= 0. Chunks share backing storage with items; callers must not
// mutate the input afterwards.
func Chunks[T any](items []T, size int) [][]T {
	if size <= 0 {
		panic("util.Chunks: size must be > 0")
	}
	if len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
