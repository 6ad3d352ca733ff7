// Package peano maps positions in a periodic simulation box onto a
// Peano-Hilbert space-filling curve, giving every particle a 64-bit key
// that preserves 3D locality and admits a total order.
package peano

import (
	"fmt"
	"math/bits"
)

// Key is an ordinal on the curve, in [0, PeanoCells).
type Key uint64

// Bits is the number of bits per axis used to build the grid: the grid
// has 2^Bits cells per axis, so the total number of curve cells is 8^Bits.
// Set from config.TopTreeConfig.PeanoBits via SetBits; defaults to 10 so
// package tests that never call SetBits keep their existing behavior.
var Bits = 10

// Cells is the total number of cells on the curve: 8^Bits == 2^(3*Bits).
// Kept in lockstep with Bits by SetBits.
var Cells Key = 1 << (3 * 10)

// SetBits reconfigures the grid resolution to 2^bits cells per axis. It
// must be called once at startup, before any rank goroutines that call
// KeyOf/CellOf are spawned — Bits and Cells are plain package variables,
// not atomics, because every caller in this module sets the grid
// resolution once from loaded config and never touches it again once
// ranks are running concurrently.
func SetBits(newBits int) error {
	if newBits < 1 || newBits > 21 {
		return fmt.Errorf("peano: bits must be in [1,21], got %d", newBits)
	}
	Bits = newBits
	Cells = 1 << (3 * Key(newBits))
	return nil
}

// BitsForGrid returns the smallest per-axis bit width whose grid has at
// least minCells cells per axis, i.e. 2^bits >= minCells. Exposed so the
// ">= 2^20 cells" sizing rule of the original design is derivable and
// testable rather than hardcoded.
func BitsForGrid(minCellsPerAxis int) int {
	if minCellsPerAxis <= 1 {
		return 0
	}
	b := bits.Len(uint(minCellsPerAxis - 1))
	return b
}

// Vec3 is a position in the periodic box [0, BoxSize)^3.
type Vec3 struct {
	X, Y, Z float64
}

// gridCoord maps a single periodic coordinate to an integer cell index in
// [0, 2^Bits).
func gridCoord(v, boxSize float64) uint32 {
	if boxSize <= 0 {
		return 0
	}
	n := uint32(1) << uint(Bits)
	f := v / boxSize
	// wrap into [0,1)
	f -= float64(int64(f))
	if f < 0 {
		f += 1
	}
	c := uint32(f * float64(n))
	if c >= n {
		c = n - 1
	}
	return c
}

// KeyOf computes the cached Peano-Hilbert key for a position in the
// periodic box of the given size. Pure function, no error path.
func KeyOf(pos Vec3, boxSize float64) Key {
	x := gridCoord(pos.X, boxSize)
	y := gridCoord(pos.Y, boxSize)
	z := gridCoord(pos.Z, boxSize)
	return keyFromCell(x, y, z)
}

// CellOf inverts KeyOf, returning the integer grid cell a key was derived
// from. Useful for tests and for the demo visualizer's rank-coloring.
func CellOf(k Key) [3]uint32 {
	return cellFromKey(k)
}

// keyFromCell interleaves the per-axis cell coordinates into a Peano-Hilbert
// key using the classic rotation/reflection table walk, most-significant
// bit first, so sibling cells along the curve stay spatially close.
func keyFromCell(x, y, z uint32) Key {
	var key Key
	// state encodes the current rotation (which axis permutation and
	// reflection is active at this recursion level).
	var rotx, roty, rotz uint32
	var sense int32 = 1

	for i := int(Bits) - 1; i >= 0; i-- {
		bitx := (x >> uint(i)) & 1
		bity := (y >> uint(i)) & 1
		bitz := (z >> uint(i)) & 1

		// Apply the current rotation to the raw bits to get the octant
		// index in curve order.
		qx := bitx ^ rotx
		qy := bity ^ roty
		qz := bitz ^ rotz

		octant := quadrantTable[qx<<2|qy<<1|qz]
		if sense < 0 {
			octant = 7 - octant
		}

		key = key<<3 | Key(octant)

		rotx, roty, rotz, sense = nextRotation(rotx, roty, rotz, sense, octant)
	}

	return key
}

// cellFromKey is the inverse walk of keyFromCell.
func cellFromKey(k Key) [3]uint32 {
	var x, y, z uint32
	var rotx, roty, rotz uint32
	var sense int32 = 1

	for i := int(Bits) - 1; i >= 0; i-- {
		shift := uint(i * 3)
		octant := uint32((k >> shift) & 7)
		if sense < 0 {
			octant = 7 - octant
		}

		q := inverseQuadrantTable[octant]
		qx := (q >> 2) & 1
		qy := (q >> 1) & 1
		qz := q & 1

		bitx := qx ^ rotx
		bity := qy ^ roty
		bitz := qz ^ rotz

		x |= bitx << uint(i)
		y |= bity << uint(i)
		z |= bitz << uint(i)

		rotx, roty, rotz, sense = nextRotation(rotx, roty, rotz, sense, octant)
	}

	return [3]uint32{x, y, z}
}

// quadrantTable / inverseQuadrantTable map between raw (x,y,z) bit-triples
// and their position along one level of the curve; kept as a fixed table
// rather than derived so the rotation-update logic below stays simple.
var quadrantTable = [8]uint32{0, 1, 3, 2, 7, 6, 4, 5}
var inverseQuadrantTable = [8]uint32{0, 1, 3, 2, 6, 7, 5, 4}

// nextRotation derives the rotation state for the next (finer) level from
// the octant chosen at this level, following the standard 3D Hilbert curve
// generator rule set (one of four rotation classes depending on which
// corner octant was entered).
func nextRotation(rotx, roty, rotz uint32, sense int32, octant uint32) (uint32, uint32, uint32, int32) {
	switch octant {
	case 0:
		return rotz, rotx, roty, sense
	case 1, 2:
		return rotx, roty, rotz, sense
	case 3:
		return roty, rotz, rotx, -sense
	case 4:
		return roty, rotz, rotx, -sense
	case 5, 6:
		return rotx, roty, rotz, sense
	case 7:
		return rotz, rotx, roty, sense
	}
	return rotx, roty, rotz, sense
}

// CellSize returns the number of curve cells spanned by a node whose side
// is 2^level cells per axis (level==Bits is a single root cell of the
// whole curve; level==0 is one leaf cell).
func CellSize(level int) Key {
	if level <= 0 {
		return 1
	}
	return 1 << (3 * level)
}
