package particle

import "fmt"

// ErrStructuralCorruption signals spec §7 error kind 4: an invariant the
// core treats as unrecoverable, e.g. an auxiliary index pointing at a
// mismatched identifier.
var ErrStructuralCorruption = fmt.Errorf("particle: structural corruption")

// GCStats reports how much work each garbage-collection sub-pass did, for
// telemetry and tests.
type GCStats struct {
	GasReclaimed    int
	MassZeroRemoved int
	BHReclaimed     int
	TreeInvalidated bool
}

// CollectGarbage runs the three sub-passes of spec §4.7 in order — gas
// reclaim, mass-zero elimination, black-hole compaction — verifying the
// auxiliary-index invariants after each one. Any violation is reported as
// ErrStructuralCorruption; the caller (decomp) treats that as fatal.
func (m *Manager) CollectGarbage() (GCStats, error) {
	var stats GCStats

	stats.GasReclaimed = m.gasReclaim()
	if stats.GasReclaimed > 0 {
		stats.TreeInvalidated = true
	}
	if err := m.Verify(); err != nil {
		return stats, fmt.Errorf("gc: after gas reclaim: %w", err)
	}

	removed, changed := m.massZeroEliminate()
	stats.MassZeroRemoved = removed
	if changed {
		stats.TreeInvalidated = true
	}
	if err := m.Verify(); err != nil {
		return stats, fmt.Errorf("gc: after mass-zero elimination: %w", err)
	}

	stats.BHReclaimed = m.bhCompact()
	if err := m.Verify(); err != nil {
		return stats, fmt.Errorf("gc: after black-hole compaction: %w", err)
	}

	if stats.TreeInvalidated {
		m.InvalidateForceTree()
	}
	return stats, nil
}

// gasReclaim is sub-pass 1: scan the gas prefix [0, N_gas_slots), and
// whenever the base entry sitting there is no longer type Gas (it changed
// type since the last decomposition), swap it and its gas slot to the end
// of the prefix and shrink the prefix by one. Returns the number of
// entries evicted.
func (m *Manager) gasReclaim() int {
	evicted := 0
	i := 0
	for i < m.NGasSlots() {
		if m.P[i].Type == TypeGas {
			i++
			continue
		}
		last := m.NGasSlots() - 1
		if i != last {
			evictedEntry := m.P[i]
			m.P[i] = m.P[last]
			m.P[i].PI = i
			m.SphP[i] = m.SphP[last]
			m.P[last] = evictedEntry
		}
		m.nGasSlots.Add(-1)
		evicted++
		// Do not advance i: the entry swapped into position i must be
		// re-checked (it may itself not be gas).
	}
	return evicted
}

// massZeroEliminate is sub-pass 2: remove every base entry with mass == 0
// via end-swap, additionally reclaiming its gas slot (by end-swap within
// the gas prefix) if it held one. Black-hole slot reclaim is left entirely
// to sub-pass 3, which rebuilds the black-hole table from scratch.
func (m *Manager) massZeroEliminate() (int, bool) {
	removed := 0
	i := 0
	for i < m.NumPart() {
		p := m.P[i]
		if p.Mass != 0 {
			i++
			continue
		}

		if p.Type == TypeGas && p.PI >= 0 && p.PI < m.NGasSlots() && m.SphP[p.PI].ID == p.ID {
			m.decTimeBin(p.TimeBin)
			m.RemoveGasEntry(i)
		} else {
			m.decTimeBin(p.TimeBin)
			m.EndSwapRemoveBase(i)
		}
		removed++
		// Do not advance i: re-check the entry swapped into position i.
	}
	return removed, removed > 0
}

// bhCompact is sub-pass 3: rebuild the black-hole slot table so that only
// slots referenced by a live type-5 base entry survive, in base-index
// order, then repoint each base entry's PI at the slot's new position.
func (m *Manager) bhCompact() int {
	n := m.NBhSlots()
	if n == 0 {
		return 0
	}

	for i := 0; i < n; i++ {
		m.BhP[i].ReverseLink = -1
	}

	numPart := m.NumPart()
	for i := 0; i < numPart; i++ {
		p := &m.P[i]
		if p.Type != TypeBlackHole {
			continue
		}
		if p.PI >= 0 && p.PI < n {
			m.BhP[p.PI].ReverseLink = i
		}
	}

	// Partition: live-referenced slots first, in ReverseLink order
	// (ascending base index), dead slots after. A simple stable
	// insertion-sort-by-key is fine here: slot tables are small relative
	// to the base table and this runs once per decomposition.
	live := make([]BHSlot, 0, n)
	for i := 0; i < n; i++ {
		if m.BhP[i].ReverseLink >= 0 {
			live = append(live, m.BhP[i])
		}
	}
	sortBHSlotsByReverseLink(live)

	for newIdx, slot := range live {
		m.BhP[newIdx] = slot
		m.P[slot.ReverseLink].PI = newIdx
		m.BhP[newIdx].ReverseLink = -1
	}

	reclaimed := n - len(live)
	m.SetBhSlotCount(len(live))
	return reclaimed
}

// sortBHSlotsByReverseLink orders slots by the base index that references
// them, ascending. Insertion sort: the pack is always small, and keeping
// it dependency-free avoids importing sort for an eight-line comparator.
func sortBHSlotsByReverseLink(slots []BHSlot) {
	for i := 1; i < len(slots); i++ {
		v := slots[i]
		j := i - 1
		for j >= 0 && slots[j].ReverseLink > v.ReverseLink {
			slots[j+1] = slots[j]
			j--
		}
		slots[j+1] = v
	}
}

// Verify checks the auxiliary-index invariants spec §4.7 requires after
// every garbage-collection sub-pass: every live gas entry's base index
// must fall inside the dense gas prefix, and every live black-hole entry's
// PI must point at a slot whose identifier matches.
func (m *Manager) Verify() error {
	numPart := m.NumPart()
	nGas := m.NGasSlots()
	nBh := m.NBhSlots()

	for i := 0; i < numPart; i++ {
		p := &m.P[i]
		if p.Mass == 0 {
			continue // garbage, exempt until the next collection removes it
		}
		switch p.Type {
		case TypeGas:
			if i >= nGas {
				return fmt.Errorf("%w: live gas base entry %d (id=%d) outside dense prefix [0,%d)", ErrStructuralCorruption, i, p.ID, nGas)
			}
		case TypeBlackHole:
			if p.PI < 0 || p.PI >= nBh {
				return fmt.Errorf("%w: live black-hole base entry %d (id=%d) has PI=%d out of range [0,%d)", ErrStructuralCorruption, i, p.ID, p.PI, nBh)
			}
			if m.BhP[p.PI].ID != p.ID {
				return fmt.Errorf("%w: base entry %d (id=%d) PI=%d points at black-hole slot with id=%d", ErrStructuralCorruption, i, p.ID, p.PI, m.BhP[p.PI].ID)
			}
		}
	}
	return nil
}

func (m *Manager) decTimeBin(_ int32) {
	// Timebin population counters are owned by the (out-of-scope)
	// timestep collaborator; the core has nothing of its own to decrement
	// here beyond the base-table counts CountByType already exposes.
}
