package exchange

// projectedAfter computes, for every rank, its live count after the
// pending transfer matrix is applied: current count minus everything it
// sends out, plus everything it receives.
func projectedAfter(ntask int, matrix [][]int, pre []int) []int {
	after := make([]int, ntask)
	copy(after, pre)
	for s := 0; s < ntask; s++ {
		for t := 0; t < ntask; t++ {
			if s == t {
				continue
			}
			after[s] -= matrix[s][t]
			after[t] += matrix[s][t]
		}
	}
	return after
}

// shedOneRoundRobin removes one unit from an inbound sender feeding rank
// r, scanning senders starting from cursor[r] and wrapping around, so
// repeated calls spread the shedding across senders instead of always
// draining the same one first (spec §4.6 step 4: "round-robin across
// ranks"). Reports whether anything was shed.
func shedOneRoundRobin(matrix [][]int, r int, cursor []int) bool {
	n := len(matrix)
	start := cursor[r]
	for k := 0; k < n; k++ {
		s := (start + k) % n
		if s == r {
			continue
		}
		if matrix[s][r] > 0 {
			matrix[s][r]--
			cursor[r] = (s + 1) % n
			return true
		}
	}
	return false
}

// shedOverflow is spec §4.6 step 4's receive-side safety loop: while any
// rank's projected base or black-hole count would exceed its ceiling,
// shed one inbound unit at a time round-robin across its senders, then
// recompute. toGo and toGoBh are mutated in place to their final, safe
// values. Every rank runs this over the identical gathered matrices and
// so arrives at the identical result without further communication.
func shedOverflow(ntask int, toGo, toGoBh [][]int, preBase, preBh []int, maxPart, maxPartBh int) (int, error) {
	sheds := 0
	baseCursor := make([]int, ntask)
	bhCursor := make([]int, ntask)
	for iter := 0; iter < 100; iter++ {
		changed := false

		afterBase := projectedAfter(ntask, toGo, preBase)
		for r := 0; r < ntask; r++ {
			if afterBase[r] <= maxPart {
				continue
			}
			if shedOneRoundRobin(toGo, r, baseCursor) {
				sheds++
				changed = true
			}
		}

		afterBh := projectedAfter(ntask, toGoBh, preBh)
		for r := 0; r < ntask; r++ {
			if afterBh[r] <= maxPartBh {
				continue
			}
			if shedOneRoundRobin(toGoBh, r, bhCursor) {
				sheds++
				changed = true
			}
		}

		if !changed {
			return sheds, nil
		}
	}
	return sheds, ErrOverflowRoundLimit
}
