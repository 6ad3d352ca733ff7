// Package particle owns the base particle table and its two typed
// auxiliary tables (gas, black hole), and the primitives — fork, removal,
// counting, garbage collection — that keep the index-based back-links
// between them consistent across domain decomposition.
package particle

import "github.com/cosmosim/decomp/peano"

// Type tags the six particle categories the base table can hold. Only Gas
// and BlackHole carry an auxiliary slot.
type Type uint8

const (
	TypeGas       Type = 0
	TypeDM        Type = 1
	TypeReserved2 Type = 2
	TypeReserved3 Type = 3
	TypeStar      Type = 4
	TypeBlackHole Type = 5

	NumTypes = 6
)

// HasAuxSlot reports whether a base entry of this type owns a slot in one
// of the auxiliary tables.
func (t Type) HasAuxSlot() bool {
	return t == TypeGas || t == TypeBlackHole
}

// Vec3 is a 3D quantity: position, velocity, or any other per-axis triple.
type Vec3 = peano.Vec3

// Particle is a base table entry (spec §3).
type Particle struct {
	Position Vec3
	Velocity Vec3
	Mass     float64
	Type     Type

	ID         uint64
	Generation uint8
	TimeBin    int32
	GravCost   float64

	Key peano.Key

	// PI indexes the typed auxiliary table for this particle's Type. Only
	// meaningful when Type.HasAuxSlot() is true.
	PI int

	// Transient exchange-round flags (spec §4.6). Reset at the start of
	// every decomposition; never persisted.
	OnAnotherDomain bool
	WillExport      bool
}

// IsGarbage reports whether this entry should be removed at the next
// garbage-collection pass (spec §3: mass == 0 means garbage).
func (p *Particle) IsGarbage() bool {
	return p.Mass == 0
}

// GasSlot carries fluid state for a gas (Type == TypeGas) base entry.
type GasSlot struct {
	ID uint64 // must equal the owning base entry's ID (verification invariant)

	Density float64
	Entropy float64
	// InternalEnergy is the specific internal energy used by the
	// hydrodynamics collaborator; the core never reads it, only carries
	// it through exchange intact.
	InternalEnergy float64
}

// BHSlot carries accretion state for a black-hole (Type == TypeBlackHole)
// base entry.
type BHSlot struct {
	ID uint64

	AccretionMass float64
	Mdot          float64

	// ReverseLink is written only by the garbage collector's black-hole
	// compaction sub-pass (spec §4.7 step 3) and is meaningless outside
	// that pass: it holds the owning base index while the slot table is
	// being re-sorted, then is reset to -1.
	ReverseLink int
}
