package particle

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Manager owns the base particle table and the two auxiliary slot tables,
// exclusively (spec §3 Ownership): no collaborator reads or writes these
// slices concurrently with a decomposition. The three slices are
// preallocated to their configured ceilings so Fork can reserve a slot with
// a single atomic increment, mirroring the original's fixed-size MaxPart /
// MaxPartBh arrays (spec §5: "Atomic fetch-and-add is used only for
// particle forking outside decomposition").
type Manager struct {
	P    []Particle
	SphP []GasSlot
	BhP  []BHSlot

	numPart   atomic.Int64
	nGasSlots atomic.Int64
	nBhSlots  atomic.Int64

	maxPart   int
	maxPartBh int

	forkMu sync.Mutex

	forceTreeValid atomic.Bool
}

// NewManager allocates a Manager whose base table can hold up to maxPart
// particles (which also bounds the gas table, per spec §4.2's
// `N_gas <= MaxPart`) and whose black-hole table can hold up to maxPartBh
// entries.
func NewManager(maxPart, maxPartBh int) *Manager {
	m := &Manager{
		P:         make([]Particle, maxPart),
		SphP:      make([]GasSlot, maxPart),
		BhP:       make([]BHSlot, maxPartBh),
		maxPart:   maxPart,
		maxPartBh: maxPartBh,
	}
	m.forceTreeValid.Store(true)
	return m
}

// MaxPart and MaxPartBh are the configured table ceilings.
func (m *Manager) MaxPart() int   { return m.maxPart }
func (m *Manager) MaxPartBh() int { return m.maxPartBh }

// NumPart, NGasSlots, NBhSlots return the current live lengths of the three
// tables. Only indices below these counts are valid.
func (m *Manager) NumPart() int   { return int(m.numPart.Load()) }
func (m *Manager) NGasSlots() int { return int(m.nGasSlots.Load()) }
func (m *Manager) NBhSlots() int  { return int(m.nBhSlots.Load()) }

// ForceTreeValid reports whether the cached force tree (owned by an
// out-of-scope collaborator) is still consistent with the particle tables.
// InvalidateForceTree must be called by anything that reorders or moves
// particles; the collaborator observes this flag rather than holding a
// direct link into the particle tables (spec §9 Design Notes).
func (m *Manager) ForceTreeValid() bool { return m.forceTreeValid.Load() }

// InvalidateForceTree marks the cached force tree stale.
func (m *Manager) InvalidateForceTree() { m.forceTreeValid.Store(false) }

// MarkForceTreeValid clears the invalidation flag once a collaborator has
// rebuilt its tree.
func (m *Manager) MarkForceTreeValid() { m.forceTreeValid.Store(true) }

// ErrParticleOverflow is returned when a table insertion would exceed its
// configured ceiling (spec §7 error kind 5: fatal).
var ErrParticleOverflow = fmt.Errorf("particle: table overflow")

// reserveSlot atomically reserves the next base-table index, failing if
// that would exceed maxPart.
func (m *Manager) reserveSlot() (int, error) {
	idx := int(m.numPart.Add(1)) - 1
	if idx >= m.maxPart {
		return -1, fmt.Errorf("%w: NumPart would exceed MaxPart=%d", ErrParticleOverflow, m.maxPart)
	}
	return idx, nil
}

func (m *Manager) reserveGasSlot() (int, error) {
	idx := int(m.nGasSlots.Add(1)) - 1
	if idx >= m.maxPart {
		return -1, fmt.Errorf("%w: N_gas would exceed MaxPart=%d", ErrParticleOverflow, m.maxPart)
	}
	return idx, nil
}

func (m *Manager) reserveBhSlot() (int, error) {
	idx := int(m.nBhSlots.Add(1)) - 1
	if idx >= m.maxPartBh {
		return -1, fmt.Errorf("%w: N_bh would exceed MaxPartBh=%d", ErrParticleOverflow, m.maxPartBh)
	}
	return idx, nil
}

// Append inserts p as a new live base entry, returning its index. If p's
// type owns an auxiliary slot, the caller is responsible for allocating
// that slot separately (AppendGas / AppendBH) and setting p.PI before
// calling Append, since the two tables must stay in lockstep.
func (m *Manager) Append(p Particle) (int, error) {
	idx, err := m.reserveSlot()
	if err != nil {
		return -1, err
	}
	m.P[idx] = p
	return idx, nil
}

// AppendGas inserts a gas slot, returning its index.
func (m *Manager) AppendGas(s GasSlot) (int, error) {
	idx, err := m.reserveGasSlot()
	if err != nil {
		return -1, err
	}
	m.SphP[idx] = s
	return idx, nil
}

// AppendBH inserts a black-hole slot, returning its index.
func (m *Manager) AppendBH(s BHSlot) (int, error) {
	idx, err := m.reserveBhSlot()
	if err != nil {
		return -1, err
	}
	m.BhP[idx] = s
	return idx, nil
}

// Fork atomically appends a copy of the parent particle as a new, massless
// child (spec §4.2). The child's identifier stamps the high 8 bits with a
// fresh generation counter derived from the parent's, so identifiers stay
// unique across up to 256 forks of the same original particle. The
// parent's own generation counter is bumped in the same critical section,
// so two concurrent forks of the same parent can never hand out the same
// child generation.
func (m *Manager) Fork(parentIdx int) (int, error) {
	m.forkMu.Lock()
	parent := &m.P[parentIdx]
	if parent.Generation >= 255 {
		m.forkMu.Unlock()
		return -1, fmt.Errorf("particle: generation exhausted for id %d", parent.ID)
	}
	parent.Generation++
	gen := parent.Generation
	snapshot := *parent
	m.forkMu.Unlock()

	idx, err := m.reserveSlot()
	if err != nil {
		return -1, err
	}

	childID := (snapshot.ID & 0x00FF_FFFF_FFFF_FFFF) | (uint64(gen) << 56)
	m.P[idx] = Particle{
		Position:   snapshot.Position,
		Velocity:   snapshot.Velocity,
		Mass:       0,
		Type:       snapshot.Type,
		ID:         childID,
		Generation: gen,
		TimeBin:    snapshot.TimeBin,
		Key:        snapshot.Key,
		PI:         -1,
	}
	m.InvalidateForceTree()
	return idx, nil
}

// CountByType tallies the six per-type population counts over the live
// base table.
func (m *Manager) CountByType() [NumTypes]int64 {
	var counts [NumTypes]int64
	n := m.NumPart()
	for i := 0; i < n; i++ {
		counts[m.P[i].Type]++
	}
	return counts
}

// EndSwapRemoveBase removes the base entry at index i by moving the
// current last live entry into its place and shrinking NumPart by one.
// Returns the index that the moved entry used to occupy (equal to the new
// NumPart), or -1 if i was already the last entry (nothing moved).
func (m *Manager) EndSwapRemoveBase(i int) int {
	last := m.NumPart() - 1
	if i < 0 || i > last {
		panic(fmt.Sprintf("particle: EndSwapRemoveBase index %d out of range [0,%d]", i, last))
	}
	if i != last {
		m.P[i] = m.P[last]
	}
	m.numPart.Add(-1)
	m.InvalidateForceTree()
	if i == last {
		return -1
	}
	return last
}

// EndSwapRemoveGasSlot removes the gas slot at index i the same way,
// within [0, NGasSlots). This alone does not keep a live gas base entry's
// PI pointed at a valid slot if i wasn't already that entry's own index;
// callers removing a live gas base entry entirely should use
// RemoveGasEntry instead, which keeps the base table's dense gas prefix
// and the slot table in lockstep.
func (m *Manager) EndSwapRemoveGasSlot(i int) int {
	last := m.NGasSlots() - 1
	if i < 0 || i > last {
		panic(fmt.Sprintf("particle: EndSwapRemoveGasSlot index %d out of range [0,%d]", i, last))
	}
	if i != last {
		m.SphP[i] = m.SphP[last]
	}
	m.nGasSlots.Add(-1)
	if i == last {
		return -1
	}
	return last
}

// RemoveGasEntry removes the live gas base entry at position i (which
// must lie within the dense gas prefix [0, NGasSlots), the convention
// every live gas entry's PI == i maintains) from both the base table and
// the gas slot table. The last gas entry and its slot move into position
// i together (its PI rewritten to i), so the prefix stays dense and
// PI == base index keeps holding; the prefix then shrinks by one, and the
// vacated position at the old end of the prefix is end-swap-removed from
// the whole base table so NumPart shrinks too.
func (m *Manager) RemoveGasEntry(i int) {
	last := m.NGasSlots() - 1
	if i < 0 || i > last {
		panic(fmt.Sprintf("particle: RemoveGasEntry index %d out of range [0,%d]", i, last))
	}
	if i != last {
		m.P[i] = m.P[last]
		m.P[i].PI = i
		m.SphP[i] = m.SphP[last]
	}
	m.nGasSlots.Add(-1)
	m.EndSwapRemoveBase(last)
}

// EndSwapRemoveBHSlot removes the black-hole slot at index i the same way,
// within [0, NBhSlots).
func (m *Manager) EndSwapRemoveBHSlot(i int) int {
	last := m.NBhSlots() - 1
	if i < 0 || i > last {
		panic(fmt.Sprintf("particle: EndSwapRemoveBHSlot index %d out of range [0,%d]", i, last))
	}
	if i != last {
		m.BhP[i] = m.BhP[last]
	}
	m.nBhSlots.Add(-1)
	if i == last {
		return -1
	}
	return last
}

// SetGasSlotCount force-sets the live gas slot count; used by the garbage
// collector and the exchange engine after bulk table surgery where
// incremental EndSwap bookkeeping would be wasted work.
func (m *Manager) SetGasSlotCount(n int) { m.nGasSlots.Store(int64(n)) }

// SetBhSlotCount is the black-hole analogue of SetGasSlotCount.
func (m *Manager) SetBhSlotCount(n int) { m.nBhSlots.Store(int64(n)) }

// SetNumPart force-sets the live base-table count.
func (m *Manager) SetNumPart(n int) { m.numPart.Store(int64(n)) }

// CheckBounds verifies the three live counts against their ceilings,
// returning a fatal error (spec §7 error kind 5) on breach.
func (m *Manager) CheckBounds() error {
	if n := m.NumPart(); n > m.maxPart {
		return fmt.Errorf("%w: NumPart=%d > MaxPart=%d", ErrParticleOverflow, n, m.maxPart)
	}
	if n := m.NGasSlots(); n > m.maxPart {
		return fmt.Errorf("%w: N_gas=%d > MaxPart=%d", ErrParticleOverflow, n, m.maxPart)
	}
	if n := m.NBhSlots(); n > m.maxPartBh {
		return fmt.Errorf("%w: N_bh=%d > MaxPartBh=%d", ErrParticleOverflow, n, m.maxPartBh)
	}
	return nil
}
