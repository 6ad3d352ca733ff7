package particle

import (
	"errors"
	"testing"
)

func newTestManager(maxPart, maxPartBh int) *Manager {
	return NewManager(maxPart, maxPartBh)
}

func TestAppendAndCountByType(t *testing.T) {
	m := newTestManager(16, 4)
	for i := 0; i < 3; i++ {
		if _, err := m.Append(Particle{Type: TypeDM, Mass: 1, ID: uint64(i + 1)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if _, err := m.Append(Particle{Type: TypeStar, Mass: 1, ID: 99}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	counts := m.CountByType()
	if counts[TypeDM] != 3 {
		t.Errorf("DM count = %d, want 3", counts[TypeDM])
	}
	if counts[TypeStar] != 1 {
		t.Errorf("Star count = %d, want 1", counts[TypeStar])
	}
	if m.NumPart() != 4 {
		t.Errorf("NumPart = %d, want 4", m.NumPart())
	}
}

func TestAppendOverflowIsFatal(t *testing.T) {
	m := newTestManager(2, 2)
	if _, err := m.Append(Particle{Type: TypeDM, Mass: 1}); err != nil {
		t.Fatalf("first Append: %v", err)
	}
	if _, err := m.Append(Particle{Type: TypeDM, Mass: 1}); err != nil {
		t.Fatalf("second Append: %v", err)
	}
	if _, err := m.Append(Particle{Type: TypeDM, Mass: 1}); !errors.Is(err, ErrParticleOverflow) {
		t.Fatalf("third Append: want ErrParticleOverflow, got %v", err)
	}
}

func TestForkStampsGenerationIntoID(t *testing.T) {
	m := newTestManager(8, 2)
	parentIdx, err := m.Append(Particle{Type: TypeGas, Mass: 1, ID: 0x00AB, Generation: 0})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	childIdx, err := m.Fork(parentIdx)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}

	child := m.P[childIdx]
	if child.Mass != 0 {
		t.Errorf("forked child mass = %v, want 0", child.Mass)
	}
	if child.Generation != 1 {
		t.Errorf("child generation = %d, want 1", child.Generation)
	}
	wantID := (uint64(0x00AB) & 0x00FF_FFFF_FFFF_FFFF) | (uint64(1) << 56)
	if child.ID != wantID {
		t.Errorf("child ID = %#x, want %#x", child.ID, wantID)
	}
	if m.P[parentIdx].Generation != 1 {
		t.Errorf("parent generation = %d, want 1 after fork", m.P[parentIdx].Generation)
	}
}

func TestForkRespectsMaxPart(t *testing.T) {
	m := newTestManager(1, 1)
	parentIdx, err := m.Append(Particle{Type: TypeDM, Mass: 1, ID: 1})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := m.Fork(parentIdx); !errors.Is(err, ErrParticleOverflow) {
		t.Fatalf("Fork beyond MaxPart: want ErrParticleOverflow, got %v", err)
	}
}

func TestForkThenCollectReturnsToPreForkCounts(t *testing.T) {
	// Spec §8 scenario S5.
	m := newTestManager(8, 2)
	parentIdx, err := m.Append(Particle{Type: TypeGas, Mass: 1, ID: 1})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := m.AppendGas(GasSlot{ID: 1}); err != nil {
		t.Fatalf("AppendGas: %v", err)
	}
	m.P[parentIdx].PI = 0

	preForkNumPart := m.NumPart()
	preForkCounts := m.CountByType()

	if _, err := m.Fork(parentIdx); err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if m.NumPart() != preForkNumPart+1 {
		t.Fatalf("NumPart after fork = %d, want %d", m.NumPart(), preForkNumPart+1)
	}

	if _, err := m.CollectGarbage(); err != nil {
		t.Fatalf("CollectGarbage: %v", err)
	}

	if m.NumPart() != preForkNumPart {
		t.Errorf("NumPart after collection = %d, want %d (pre-fork)", m.NumPart(), preForkNumPart)
	}
	postCounts := m.CountByType()
	if postCounts != preForkCounts {
		t.Errorf("counts after collection = %v, want %v (pre-fork)", postCounts, preForkCounts)
	}
}

func TestEndSwapRemoveBaseKeepsOtherEntries(t *testing.T) {
	m := newTestManager(8, 2)
	ids := []uint64{1, 2, 3}
	for _, id := range ids {
		if _, err := m.Append(Particle{Type: TypeDM, Mass: 1, ID: id}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	m.EndSwapRemoveBase(0) // removes id 1, moves id 3 into slot 0

	remaining := map[uint64]bool{}
	for i := 0; i < m.NumPart(); i++ {
		remaining[m.P[i].ID] = true
	}
	if len(remaining) != 2 || !remaining[2] || !remaining[3] {
		t.Errorf("remaining ids = %v, want {2,3}", remaining)
	}
}

func TestCheckBoundsFatalOnBreach(t *testing.T) {
	m := newTestManager(4, 4)
	m.SetNumPart(5)
	if err := m.CheckBounds(); !errors.Is(err, ErrParticleOverflow) {
		t.Fatalf("CheckBounds: want ErrParticleOverflow, got %v", err)
	}
}
