package rframe

import (
	"slices"
)

// parallelStableSort sorts s stably. Large inputs are cut into one chunk per
// worker, the chunks are sorted concurrently and then merged pairwise; the
// result is identical to a sequential stable sort whatever the worker count.
func parallelStableSort[T any](s []T, cmp func(a, b T) int) {
	cfg := GetParallelConfig()
	workers := cfg.numWorkers()
	if !ShouldParallelizeOp(OpSort, len(s)) || workers < 2 {
		slices.SortStableFunc(s, cmp)
		return
	}

	chunk := (len(s) + workers - 1) / workers
	var bounds []span
	for start := 0; start < len(s); start += chunk {
		bounds = append(bounds, span{start: start, n: min(chunk, len(s)-start)})
	}
	forEachTask(len(bounds), func(i int) {
		b := bounds[i]
		slices.SortStableFunc(s[b.start:b.start+b.n], cmp)
	})

	buf := make([]T, len(s))
	src, dst := s, buf
	for len(bounds) > 1 {
		next := make([]span, (len(bounds)+1)/2)
		forEachTask(len(next), func(i int) {
			a := bounds[2*i]
			if 2*i+1 == len(bounds) {
				copy(dst[a.start:a.start+a.n], src[a.start:a.start+a.n])
				next[i] = a
				return
			}
			b := bounds[2*i+1]
			mergeRuns(dst[a.start:b.start+b.n], src[a.start:a.start+a.n], src[b.start:b.start+b.n], cmp)
			next[i] = span{start: a.start, n: a.n + b.n}
		})
		bounds = next
		src, dst = dst, src
	}
	if &src[0] != &s[0] {
		copy(s, src)
	}
}

// mergeRuns merges two sorted runs into dst, taking from a on ties.
func mergeRuns[T any](dst, a, b []T, cmp func(a, b T) int) {
	i, j, k := 0, 0, 0
	for i < len(a) && j < len(b) {
		if cmp(b[j], a[i]) < 0 {
			dst[k] = b[j]
			j++
		} else {
			dst[k] = a[i]
			i++
		}
		k++
	}
	k += copy(dst[k:], a[i:])
	copy(dst[k:], b[j:])
}

// forEachTask runs fn(0..n-1) across the worker pool.
func forEachTask(n int, fn func(i int)) {
	cfg := GetParallelConfig()
	if n <= 1 || !cfg.Enabled {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	iter := NewMorselIterator(n, 1)
	runWorkers(cfg, min(n, cfg.numWorkers()), func() {
		for m := iter.Next(); m != nil; m = iter.Next() {
			fn(m.Start)
		}
	})
}
