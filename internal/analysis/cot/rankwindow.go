package cot

import "sort"

// rankWindow maintains a fixed-size sliding window over one column and
// answers trailing percentile-rank queries in O(log n) per step, instead
// of re-sorting the window at every index. Values are coordinate-
// compressed over the full column up front; the window itself is a
// Fenwick tree of counts per compressed rank.
type rankWindow struct {
	size int
	tree []int // 1-indexed Fenwick tree over compressed ranks
}

func newRankWindow(size, distinct int) *rankWindow {
	return &rankWindow{size: size, tree: make([]int, distinct+1)}
}

func (w *rankWindow) add(rank int)    { w.update(rank, 1) }
func (w *rankWindow) remove(rank int) { w.update(rank, -1) }

func (w *rankWindow) update(rank, delta int) {
	for i := rank; i < len(w.tree); i += i & -i {
		w.tree[i] += delta
	}
}

// prefix returns the number of window values with compressed rank <= r.
func (w *rankWindow) prefix(r int) int {
	n := 0
	for i := r; i > 0; i -= i & -i {
		n += w.tree[i]
	}
	return n
}

// pct returns the average-rank percentile (0-100) of the value with
// compressed rank r among the window's values: values strictly below
// count fully, ties count at their average rank. This matches the
// average-rank tie convention; nearest-rank and ordinal alternatives
// give different results on duplicates.
func (w *rankWindow) pct(r int) float64 {
	below := w.prefix(r - 1)
	equal := w.prefix(r) - below
	avgRank := float64(below) + (float64(equal)+1)/2
	return avgRank / float64(w.size) * 100
}

// compressRanks maps each present value to its 1-based rank among the
// column's distinct present values, returning the rank slice and the
// distinct count. Absent indices get rank 0.
func compressRanks(values []float64, present []bool) ([]int, int) {
	uniq := make([]float64, 0, len(values))
	for i, v := range values {
		if present[i] {
			uniq = append(uniq, v)
		}
	}
	sort.Float64s(uniq)
	uniq = dedupFloats(uniq)

	ranks := make([]int, len(values))
	for i, v := range values {
		if present[i] {
			ranks[i] = sort.SearchFloat64s(uniq, v) + 1
		}
	}
	return ranks, len(uniq)
}

func dedupFloats(sorted []float64) []float64 {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// rollingRank computes the trailing percentile rank of each index over
// the previous `window` records (inclusive). A rank is defined only when
// the full window of values is present; indices before the window fills,
// or windows touching a missing value, stay undefined rather than being
// extrapolated.
func rollingRank(values []float64, present []bool, window int) ([]float64, []bool) {
	n := len(values)
	out := make([]float64, n)
	ok := make([]bool, n)
	if window <= 0 || n < window {
		return out, ok
	}

	ranks, distinct := compressRanks(values, present)
	w := newRankWindow(window, distinct)
	inWindow := 0

	for i := 0; i < n; i++ {
		if present[i] {
			w.add(ranks[i])
			inWindow++
		}
		if j := i - window; j >= 0 && present[j] {
			w.remove(ranks[j])
			inWindow--
		}
		if i >= window-1 && inWindow == window {
			out[i] = w.pct(ranks[i])
			ok[i] = true
		}
	}
	return out, ok
}
