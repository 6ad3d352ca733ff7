package domain

import "fmt"

// ErrMemoryCeiling is spec §7 error kind 2: a split's projected per-rank
// particle count exceeds MaxPart. Recoverable by falling back from a
// work-balanced to a load-balanced split; fatal if the fallback also
// violates it.
var ErrMemoryCeiling = fmt.Errorf("domain: memory ceiling exceeded")

// PerRankCount sums each segment's particle count onto its assigned rank.
func PerRankCount(segments []Segment, assignment []int, ntask int) []int64 {
	perRank := make([]int64, ntask)
	for i, seg := range segments {
		perRank[assignment[i]] += seg.Count
	}
	return perRank
}

// CheckMemory reports whether the projected per-rank particle count stays
// within maxPart, returning the per-rank counts either way so callers can
// log the violation.
func CheckMemory(segments []Segment, assignment []int, ntask int, maxPart int64) ([]int64, error) {
	perRank := PerRankCount(segments, assignment, ntask)
	for rank, n := range perRank {
		if n > maxPart {
			return perRank, fmt.Errorf("%w: rank %d projected %d particles, limit %d", ErrMemoryCeiling, rank, n, maxPart)
		}
	}
	return perRank, nil
}

// Plan is the full output of the splitter+assigner pipeline: the segments,
// which rank owns each one, and whether the load-balanced fallback had to
// be used.
type Plan struct {
	Segments     []Segment
	Assignment   []int
	PerRankCount []int64
	UsedFallback bool
}

// Split runs the work-balanced split first; if its projected per-rank
// particle count would exceed maxPart, it retries with the load-balanced
// split. If that also violates the ceiling, it returns ErrMemoryCeiling —
// fatal, per spec §7 error kind 2.
func Split(work []float64, count []int64, ncpu, ntask int, maxPart int64) (Plan, error) {
	segments := WorkBalancedSplit(work, count, ncpu)
	assignment := Assign(segments, func(s Segment) float64 { return s.Work }, ntask)
	perRank, err := CheckMemory(segments, assignment, ntask, maxPart)
	if err == nil {
		return Plan{Segments: segments, Assignment: assignment, PerRankCount: perRank}, nil
	}

	segments = LoadBalancedSplit(work, count, ncpu)
	assignment = Assign(segments, func(s Segment) float64 { return float64(s.Count) }, ntask)
	perRank, err = CheckMemory(segments, assignment, ntask, maxPart)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Segments: segments, Assignment: assignment, PerRankCount: perRank, UsedFallback: true}, nil
}
