package particle

import "testing"

func TestGasReclaimEvictsTypeChangedEntries(t *testing.T) {
	m := newTestManager(8, 2)
	// Three gas entries in the dense prefix, positionally aligned.
	for i := 0; i < 3; i++ {
		id := uint64(i + 1)
		slot, err := m.AppendGas(GasSlot{ID: id})
		if err != nil {
			t.Fatalf("AppendGas: %v", err)
		}
		if _, err := m.Append(Particle{Type: TypeGas, Mass: 1, ID: id, PI: slot}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	// Middle entry converts to star (e.g. star formation collaborator).
	m.P[1].Type = TypeStar

	stats, err := m.CollectGarbage()
	if err != nil {
		t.Fatalf("CollectGarbage: %v", err)
	}
	if stats.GasReclaimed != 1 {
		t.Errorf("GasReclaimed = %d, want 1", stats.GasReclaimed)
	}
	if m.NGasSlots() != 2 {
		t.Errorf("NGasSlots = %d, want 2", m.NGasSlots())
	}
	for i := 0; i < m.NGasSlots(); i++ {
		if m.P[i].Type != TypeGas {
			t.Errorf("P[%d].Type = %v, want TypeGas within dense prefix", i, m.P[i].Type)
		}
		if m.P[i].PI != i {
			t.Errorf("P[%d].PI = %d, want %d (dense convention)", i, m.P[i].PI, i)
		}
	}
}

func TestMassZeroEliminationRemovesGarbage(t *testing.T) {
	m := newTestManager(8, 2)
	for i := 0; i < 3; i++ {
		if _, err := m.Append(Particle{Type: TypeDM, Mass: 1, ID: uint64(i + 1)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	m.P[1].Mass = 0 // simulate a forked, not-yet-matured child

	stats, err := m.CollectGarbage()
	if err != nil {
		t.Fatalf("CollectGarbage: %v", err)
	}
	if stats.MassZeroRemoved != 1 {
		t.Errorf("MassZeroRemoved = %d, want 1", stats.MassZeroRemoved)
	}
	if m.NumPart() != 2 {
		t.Errorf("NumPart = %d, want 2", m.NumPart())
	}
	for i := 0; i < m.NumPart(); i++ {
		if m.P[i].Mass == 0 {
			t.Errorf("P[%d] still has mass 0 after collection", i)
		}
	}
}

func TestBHCompactionReclaimsDeletedBlackHole(t *testing.T) {
	// Spec §8 scenario S3: 2 black holes, delete one, run collection.
	m := newTestManager(8, 4)
	slot0, err := m.AppendBH(BHSlot{ID: 10, ReverseLink: -1})
	if err != nil {
		t.Fatalf("AppendBH: %v", err)
	}
	slot1, err := m.AppendBH(BHSlot{ID: 20, ReverseLink: -1})
	if err != nil {
		t.Fatalf("AppendBH: %v", err)
	}
	idx0, err := m.Append(Particle{Type: TypeBlackHole, Mass: 100, ID: 10, PI: slot0})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	_, err = m.Append(Particle{Type: TypeBlackHole, Mass: 100, ID: 20, PI: slot1})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Delete the first black hole.
	m.P[idx0].Mass = 0

	stats, err := m.CollectGarbage()
	if err != nil {
		t.Fatalf("CollectGarbage: %v", err)
	}
	if stats.BHReclaimed != 1 {
		t.Errorf("BHReclaimed = %d, want 1", stats.BHReclaimed)
	}
	if m.NBhSlots() != 1 {
		t.Fatalf("NBhSlots = %d, want 1", m.NBhSlots())
	}

	// The surviving black hole's PI must still resolve to a slot with a
	// matching identifier.
	for i := 0; i < m.NumPart(); i++ {
		p := &m.P[i]
		if p.Type != TypeBlackHole {
			continue
		}
		if m.BhP[p.PI].ID != p.ID {
			t.Errorf("surviving black hole id=%d has PI=%d pointing at slot id=%d", p.ID, p.PI, m.BhP[p.PI].ID)
		}
	}
}

func TestVerifyCatchesMismatchedBlackHoleIndex(t *testing.T) {
	m := newTestManager(8, 4)
	slot, err := m.AppendBH(BHSlot{ID: 10})
	if err != nil {
		t.Fatalf("AppendBH: %v", err)
	}
	if _, err := m.Append(Particle{Type: TypeBlackHole, Mass: 100, ID: 999, PI: slot}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := m.Verify(); err == nil {
		t.Fatal("Verify: want error for mismatched black-hole ID, got nil")
	}
}

func TestMixedPopulationStartsValid(t *testing.T) {
	m := MixedPopulation(100, 100, 2, 1000, 10, 10.0, 42)
	if err := m.Verify(); err != nil {
		t.Fatalf("Verify on constructed population: %v", err)
	}
	counts := m.CountByType()
	if counts[TypeGas] != 100 || counts[TypeDM] != 100 || counts[TypeBlackHole] != 2 {
		t.Fatalf("counts = %v, want [100 gas, 100 dm, 2 bh]", counts)
	}
}
