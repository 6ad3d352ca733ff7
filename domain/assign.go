package domain

import "sort"

// Assign implements the pair-down assigner (spec §4.5): starting from
// len(segments) buckets (one per segment), while there are more buckets
// than ranks, it sorts the current buckets by load ascending and pairs the
// lightest with the heaviest, folding both into a single new bucket; the
// bucket count halves each round until it equals ntask. It returns, for
// each segment, the rank it was finally folded into.
//
// loadOf is evaluated once per segment up front and used as the pairing
// metric; pass segment work for the primary (work-balanced) split and
// segment count for the load-balanced fallback, so the assigner keeps
// bounding whichever axis the active split is trying to balance.
//
// This assumes len(segments) is ntask times a power of two (OverDecomp is
// always chosen that way — spec §4.5 calls 1, 2 and 4 "typical"), so
// repeated halving lands exactly on ntask.
func Assign(segments []Segment, loadOf func(Segment) float64, ntask int) []int {
	ndomain := len(segments)
	bucketOf := make([]int, ndomain)
	load := make([]float64, ndomain)
	for i, seg := range segments {
		bucketOf[i] = i
		load[i] = loadOf(seg)
	}

	for ndomain > ntask {
		order := make([]int, ndomain)
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool { return load[order[a]] < load[order[b]] })

		half := ndomain / 2
		newLoad := make([]float64, half)
		remap := make([]int, ndomain)
		for i := 0; i < half; i++ {
			lo := order[i]
			hi := order[ndomain-1-i]
			remap[lo] = i
			remap[hi] = i
			newLoad[i] = load[lo] + load[hi]
		}

		for s := range bucketOf {
			bucketOf[s] = remap[bucketOf[s]]
		}
		load = newLoad
		ndomain = half
	}

	return bucketOf
}

// SegmentsByRank returns segment indices grouped by their assigned rank,
// each group's relative leaf order preserved (spec §4.5's "segments are
// then re-sorted by target rank").
func SegmentsByRank(assignment []int, ntask int) [][]int {
	byRank := make([][]int, ntask)
	for segIdx, rank := range assignment {
		byRank[rank] = append(byRank[rank], segIdx)
	}
	return byRank
}
