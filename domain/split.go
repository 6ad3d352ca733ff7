// Package domain turns a summarized top tree into a rank assignment: the
// Splitter slices the leaf sequence into contiguous segments balanced by
// work (falling back to a balance by particle count if that would breach
// the memory ceiling), and the Assigner folds those segments down onto
// the available ranks by repeatedly pairing the lightest bucket with the
// heaviest (spec §4.5).
package domain

import "gonum.org/v1/gonum/floats"

// Segment is one contiguous run of top-tree leaves, [StartLeaf, EndLeaf),
// carrying the total work and particle count accumulated over that range.
type Segment struct {
	StartLeaf, EndLeaf int
	Work               float64
	Count              int64
}

// WorkBalancedSplit walks the leaves in key order, closing a segment once
// its accumulated work would exceed the global per-segment average,
// subject to leaving enough leaves for the remaining segments. The final
// segment absorbs whatever is left over.
func WorkBalancedSplit(work []float64, count []int64, ncpu int) []Segment {
	return splitByMetric(work, count, work, ncpu)
}

// LoadBalancedSplit is WorkBalancedSplit's fallback: identical algorithm,
// but driven by particle count instead of work, for use only when the
// work-balanced split would put more particles on one rank than MaxPart
// allows.
func LoadBalancedSplit(work []float64, count []int64, ncpu int) []Segment {
	metric := make([]float64, len(count))
	for i, c := range count {
		metric[i] = float64(c)
	}
	return splitByMetric(work, count, metric, ncpu)
}

func splitByMetric(work []float64, count []int64, metric []float64, ncpu int) []Segment {
	n := len(metric)
	if ncpu < 1 {
		ncpu = 1
	}
	total := floats.Sum(metric)
	if total <= 0 {
		// No usable signal on this metric (e.g. a freshly built population
		// before any cost has accrued) — divide the leaf range evenly by
		// count instead of stalling on an all-zero target.
		return evenSplit(work, count, ncpu)
	}
	avg := total / float64(ncpu)

	segments := make([]Segment, 0, ncpu)
	start := 0
	var committed float64 // metric total already folded into closed segments, plus the segment in progress
	for i := 0; i < ncpu-1 && start < n; i++ {
		target := avg * float64(i+1)
		end := start
		for end < n {
			remainingSegments := ncpu - 1 - i
			if committed+metric[end] > target && (n-end) >= remainingSegments {
				break
			}
			committed += metric[end]
			end++
		}
		if end == start {
			end = start + 1
			committed += metric[start]
		}
		segments = append(segments, makeSegment(work, count, start, end))
		start = end
	}
	segments = append(segments, makeSegment(work, count, start, n))
	return segments
}

// evenSplit divides n leaves into ncpu contiguous, as-equal-as-possible
// ranges by leaf count alone.
func evenSplit(work []float64, count []int64, ncpu int) []Segment {
	n := len(count)
	segments := make([]Segment, 0, ncpu)
	start := 0
	for i := 0; i < ncpu; i++ {
		remaining := ncpu - i
		size := (n - start) / remaining
		if size == 0 && start < n {
			size = 1
		}
		end := start + size
		if i == ncpu-1 {
			end = n
		}
		segments = append(segments, makeSegment(work, count, start, end))
		start = end
	}
	return segments
}

func makeSegment(work []float64, count []int64, start, end int) Segment {
	var w float64
	var c int64
	for i := start; i < end; i++ {
		w += work[i]
		c += count[i]
	}
	return Segment{StartLeaf: start, EndLeaf: end, Work: w, Count: c}
}
