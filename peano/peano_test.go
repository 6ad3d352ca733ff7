package peano

import "testing"

func TestBitsForGrid(t *testing.T) {
	cases := []struct {
		minCells int
		want     int
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{1024, 10},
		{1 << 20, 20},
		{(1 << 20) + 1, 21},
	}
	for _, c := range cases {
		if got := BitsForGrid(c.minCells); got != c.want {
			t.Errorf("BitsForGrid(%d) = %d, want %d", c.minCells, got, c.want)
		}
	}
}

func TestKeyCellBijection(t *testing.T) {
	n := uint32(1) << Bits
	step := n / 8
	if step == 0 {
		step = 1
	}
	for x := uint32(0); x < n; x += step {
		for y := uint32(0); y < n; y += step {
			for z := uint32(0); z < n; z += step {
				key := keyFromCell(x, y, z)
				if key >= Cells {
					t.Fatalf("key %d out of range [0,%d)", key, Cells)
				}
				got := cellFromKey(key)
				if got != [3]uint32{x, y, z} {
					t.Errorf("round trip (%d,%d,%d) -> key %d -> %v", x, y, z, key, got)
				}
			}
		}
	}
}

func TestKeyOfWithinRange(t *testing.T) {
	boxSize := 1.0
	positions := []Vec3{
		{0, 0, 0},
		{0.999, 0.999, 0.999},
		{0.5, 0.5, 0.5},
		{1.0, 1.0, 1.0}, // exactly on the periodic boundary, wraps to 0
		{-0.001, 0, 0},  // slightly outside the box, must wrap
	}
	for _, p := range positions {
		k := KeyOf(p, boxSize)
		if k >= Cells {
			t.Errorf("KeyOf(%v) = %d, out of range [0,%d)", p, k, Cells)
		}
	}
}

func TestKeyOfPeriodicWrap(t *testing.T) {
	// A position exactly at the box boundary must map to the same cell as
	// the origin: the space is periodic, not clamped.
	boxSize := 2.0
	a := KeyOf(Vec3{0, 0, 0}, boxSize)
	b := KeyOf(Vec3{2.0, 2.0, 2.0}, boxSize)
	if a != b {
		t.Errorf("periodic wrap: KeyOf(0,0,0)=%d != KeyOf(boxSize,boxSize,boxSize)=%d", a, b)
	}
}

func TestDistinctCellsDistinctKeys(t *testing.T) {
	seen := make(map[Key][3]uint32)
	n := uint32(16)
	for x := uint32(0); x < n; x++ {
		for y := uint32(0); y < n; y++ {
			for z := uint32(0); z < n; z++ {
				k := keyFromCell(x, y, z)
				if prev, ok := seen[k]; ok {
					t.Fatalf("collision: cells %v and %v both map to key %d", prev, [3]uint32{x, y, z}, k)
				}
				seen[k] = [3]uint32{x, y, z}
			}
		}
	}
}

func TestCellSize(t *testing.T) {
	if got := CellSize(0); got != 1 {
		t.Errorf("CellSize(0) = %d, want 1", got)
	}
	if got := CellSize(1); got != 8 {
		t.Errorf("CellSize(1) = %d, want 8", got)
	}
	if got := CellSize(Bits); got != Cells {
		t.Errorf("CellSize(Bits) = %d, want %d", got, Cells)
	}
}

func TestSetBitsRejectsOutOfRange(t *testing.T) {
	defer SetBits(Bits)
	if err := SetBits(0); err == nil {
		t.Error("SetBits(0): want error, got nil")
	}
	if err := SetBits(22); err == nil {
		t.Error("SetBits(22): want error, got nil")
	}
}

func TestSetBitsReconfiguresGridAndRoundTrips(t *testing.T) {
	defer SetBits(Bits)
	if err := SetBits(6); err != nil {
		t.Fatalf("SetBits(6): %v", err)
	}
	if Cells != 1<<(3*6) {
		t.Errorf("Cells after SetBits(6) = %d, want %d", Cells, 1<<(3*6))
	}
	k := KeyOf(Vec3{0.5, 0.5, 0.5}, 1.0)
	if k >= Cells {
		t.Errorf("KeyOf after SetBits(6) out of range: %d >= %d", k, Cells)
	}
}
