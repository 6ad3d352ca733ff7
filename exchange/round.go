package exchange

import (
	"fmt"

	"github.com/cosmosim/decomp/cluster"
	"github.com/cosmosim/decomp/particle"
	"github.com/cosmosim/decomp/toptree"
)

// RoundStats reports what one call to Round actually moved, for telemetry
// and tests.
type RoundStats struct {
	Exported int
	Imported int
	Sheds    int
	More     bool // true if any rank had candidates this round, so another round must check for leftovers
}

// Round runs one iteration of the exchange protocol (spec §4.6 steps 1-9).
// Callers loop Round until it reports More == false (spec §4.6
// "Termination").
func Round(c *cluster.Comm, tree *toptree.Tree, owner []int, m *particle.Manager, cfg Config) (RoundStats, error) {
	ntask := c.Size()
	me := c.Rank()

	// Step 1: mark every local particle whose owning leaf moved away.
	type candidate struct {
		idx    int
		target int
	}
	var candidates []candidate
	numPart := m.NumPart()
	for i := 0; i < numPart; i++ {
		p := &m.P[i]
		target := OwnerOf(tree, owner, p.Key)
		if target == me {
			p.OnAnotherDomain = false
			p.WillExport = false
			continue
		}
		p.OnAnotherDomain = true
		p.WillExport = false
		candidates = append(candidates, candidate{idx: i, target: target})
	}

	localHasCandidates := int64(0)
	if len(candidates) > 0 {
		localHasCandidates = 1
	}
	globalHasCandidates := cluster.AllreduceSumInt64(c, cluster.TagExchangeCandidateFlag, []int64{localHasCandidates})[0]
	if globalHasCandidates == 0 {
		return RoundStats{}, nil
	}

	// Step 2: accept candidates into this round's batch up to the byte
	// budget; always accept at least one so every round makes progress.
	budget := cfg.perRoundBudget(ntask)
	var used int64
	toGo := make([]int, ntask)
	toGoBh := make([]int, ntask)
	accepted := 0
	for _, cd := range candidates {
		p := &m.P[cd.idx]
		cost := particleBytes(p)
		if used+cost > budget && accepted > 0 {
			break
		}
		used += cost
		p.WillExport = true
		toGo[cd.target]++
		if p.Type == particle.TypeBlackHole {
			toGoBh[cd.target]++
		}
		accepted++
	}

	// Steps 3-4: every rank learns the full transfer matrix and the
	// pre-round per-rank counts, then sheds overflow deterministically.
	toGoMatrix := cluster.AllgatherInt(c, cluster.TagExchangeSafetyToGo, toGo)
	toGoBhMatrix := cluster.AllgatherInt(c, cluster.TagExchangeSafetyBh, toGoBh)
	preCounts := cluster.AllgatherInt(c, cluster.TagExchangeSafetyPre, []int{m.NumPart()})
	preBhCounts := cluster.AllgatherInt(c, cluster.TagExchangeSafetyPre+1, []int{m.NBhSlots()})

	preBase := make([]int, ntask)
	preBh := make([]int, ntask)
	for r := 0; r < ntask; r++ {
		preBase[r] = preCounts[r][0]
		preBh[r] = preBhCounts[r][0]
	}

	sheds, err := shedOverflow(ntask, toGoMatrix, toGoBhMatrix, preBase, preBh, cfg.MaxPart, cfg.MaxPartBh)
	if err != nil {
		return RoundStats{}, err
	}

	finalToGo := toGoMatrix[me]
	finalToGoBh := toGoBhMatrix[me]
	for t := range toGo {
		if finalToGo[t] < 0 {
			finalToGo[t] = 0
		}
	}

	// Unmark any accepted candidate beyond what survived shedding,
	// preferring to keep black-hole and then earlier-accepted particles:
	// pass 0 settles the black holes, pass 1 everything else.
	remainingTotal := append([]int(nil), finalToGo...)
	remainingBh := append([]int(nil), finalToGoBh...)
	for pass := 0; pass < 2; pass++ {
		for _, cd := range candidates {
			p := &m.P[cd.idx]
			isBh := p.Type == particle.TypeBlackHole
			if !p.WillExport || isBh != (pass == 0) {
				continue
			}
			t := cd.target
			if isBh {
				if remainingBh[t] > 0 && remainingTotal[t] > 0 {
					remainingBh[t]--
					remainingTotal[t]--
					continue
				}
				p.WillExport = false
				continue
			}
			if remainingTotal[t] > 0 {
				remainingTotal[t]--
				continue
			}
			p.WillExport = false
		}
	}

	// Steps 5-6: pack and compact in one walk, grouping the base table
	// into a gas phase and a non-gas phase per target (spec §4.6 step 8:
	// "Base particles are sent in two phases").
	sendBaseGas := make([][]particle.Particle, ntask)
	sendBaseOther := make([][]particle.Particle, ntask)
	sendGasSlots := make([][]particle.GasSlot, ntask)
	sendBhSlots := make([][]particle.BHSlot, ntask)

	i := 0
	exported := 0
	for i < m.NumPart() {
		if !m.P[i].WillExport {
			i++
			continue
		}
		p := m.P[i]
		target := OwnerOf(tree, owner, p.Key)
		p.OnAnotherDomain = false
		p.WillExport = false
		switch p.Type {
		case particle.TypeGas:
			gasSlot := m.SphP[p.PI]
			p.PI = len(sendGasSlots[target])
			sendGasSlots[target] = append(sendGasSlots[target], gasSlot)
			sendBaseGas[target] = append(sendBaseGas[target], p)
			// RemoveGasEntry handles both the gas-prefix swap and the
			// whole-table removal in one coupled step.
			m.RemoveGasEntry(i)
		case particle.TypeBlackHole:
			// The black-hole slot's PI is a free index, not tied to base
			// position (unlike gas), so it is left in place as orphaned
			// garbage rather than end-swapped here: the garbage
			// collector's black-hole compaction pass already rebuilds the
			// slot table from scratch via ReverseLink and will reclaim it.
			bhSlot := m.BhP[p.PI]
			p.PI = len(sendBhSlots[target])
			sendBhSlots[target] = append(sendBhSlots[target], bhSlot)
			sendBaseOther[target] = append(sendBaseOther[target], p)
			m.EndSwapRemoveBase(i)
		default:
			sendBaseOther[target] = append(sendBaseOther[target], p)
			m.EndSwapRemoveBase(i)
		}
		exported++
		// Do not advance i: the entry end-swapped into position i must be
		// re-checked.
	}

	toGoGasBase := make([]int, ntask)
	toGoOtherBase := make([]int, ntask)
	for t := 0; t < ntask; t++ {
		toGoGasBase[t] = len(sendBaseGas[t])
		toGoOtherBase[t] = len(sendBaseOther[t])
	}

	// Step 3/8 counts: trade the final per-phase volumes.
	recvGasBaseCount := cluster.ExchangeCounts(c, cluster.TagExchangeCountsGasBase, toGoGasBase)
	recvOtherBaseCount := cluster.ExchangeCounts(c, cluster.TagExchangeCountsOtherBase, toGoOtherBase)
	recvBhCount := cluster.ExchangeCounts(c, cluster.TagExchangeCountsBh, finalToGoBh)

	// Step 8: the three paired Alltoallv exchanges (base split into its
	// gas and non-gas phases, then the gas and black-hole slot tables).
	recvBaseGas := cluster.Alltoallv[particle.Particle](c, cluster.TagExchangeBaseGas, toGoGasBase, recvGasBaseCount, sendBaseGas)
	recvGasSlots := cluster.Alltoallv[particle.GasSlot](c, cluster.TagExchangeGas, toGoGasBase, recvGasBaseCount, sendGasSlots)
	recvBaseOther := cluster.Alltoallv[particle.Particle](c, cluster.TagExchangeBaseOther, toGoOtherBase, recvOtherBaseCount, sendBaseOther)
	recvBhSlots := cluster.Alltoallv[particle.BHSlot](c, cluster.TagExchangeBH, finalToGoBh, recvBhCount, sendBhSlots)

	imported, err := applyIncoming(m, ntask, recvBaseGas, recvGasSlots, recvBaseOther, recvBhSlots)
	if err != nil {
		return RoundStats{}, err
	}
	if err := m.CheckBounds(); err != nil {
		return RoundStats{}, fmt.Errorf("exchange: round violated table bounds after apply: %w", err)
	}
	m.InvalidateForceTree()

	return RoundStats{Exported: exported, Imported: imported, Sheds: sheds, More: true}, nil
}

// applyIncoming is spec §4.6 steps 7 and 9: shift the non-gas portion of
// the base table up to make room for incoming gas at the end of the dense
// gas prefix, then append incoming non-gas entries (reassigning PI for
// any incoming black hole to its position in the freshly received
// black-hole slot table).
func applyIncoming(m *particle.Manager, ntask int, recvBaseGas [][]particle.Particle, recvGasSlots [][]particle.GasSlot, recvBaseOther [][]particle.Particle, recvBhSlots [][]particle.BHSlot) (int, error) {
	var totalGas int
	for _, g := range recvBaseGas {
		totalGas += len(g)
	}

	g := m.NGasSlots()
	n := m.NumPart()
	if totalGas > 0 {
		for i := n - 1; i >= g; i-- {
			m.P[i+totalGas] = m.P[i]
		}
	}

	writeIdx := g
	for src := 0; src < ntask; src++ {
		for k, p := range recvBaseGas[src] {
			p.PI = writeIdx
			m.P[writeIdx] = p
			m.SphP[writeIdx] = recvGasSlots[src][k]
			writeIdx++
		}
	}
	m.SetGasSlotCount(g + totalGas)
	n += totalGas

	imported := totalGas
	for src := 0; src < ntask; src++ {
		bhSlots := recvBhSlots[src]
		bhCursor := 0
		for _, p := range recvBaseOther[src] {
			if p.Type == particle.TypeBlackHole {
				newIdx, err := m.AppendBH(bhSlots[bhCursor])
				if err != nil {
					return 0, fmt.Errorf("exchange: appending incoming black hole: %w", err)
				}
				p.PI = newIdx
				bhCursor++
			}
			m.P[n] = p
			n++
			imported++
		}
	}
	m.SetNumPart(n)
	return imported, nil
}
