package particle

import (
	"math"
	"math/rand"

	"github.com/cosmosim/decomp/peano"
)

// UniformPopulation builds a Manager containing n dark-matter particles
// uniformly distributed in [0, boxSize)^3, matching spec §8 scenario S1.
// Positions and keys are computed deterministically from seed so repeated
// calls with the same arguments produce the same multiset of identifiers
// and positions (spec testable property 6, determinism).
func UniformPopulation(n, maxPart, maxPartBh int, boxSize float64, seed int64) *Manager {
	m := NewManager(maxPart, maxPartBh)
	rng := rand.New(rand.NewSource(seed))

	for i := 0; i < n; i++ {
		pos := peano.Vec3{
			X: rng.Float64() * boxSize,
			Y: rng.Float64() * boxSize,
			Z: rng.Float64() * boxSize,
		}
		p := Particle{
			Position:   pos,
			Mass:       1.0,
			Type:       TypeDM,
			ID:         uint64(i + 1),
			Generation: 0,
			TimeBin:    4,
			Key:        peano.KeyOf(pos, boxSize),
			PI:         -1,
		}
		if _, err := m.Append(p); err != nil {
			panic(err) // test/demo data generator: a too-small maxPart is a caller bug
		}
	}
	return m
}

// ClusteredPopulation builds n dark-matter particles concentrated in a
// sphere of the given radius around center, matching spec §8 scenario S2.
// Each point is drawn directly inside the ball, with no rejection step,
// keeping the generator O(n), and then wrapped into the periodic box.
func ClusteredPopulation(n, maxPart, maxPartBh int, boxSize float64, center peano.Vec3, radius float64, seed int64) *Manager {
	m := NewManager(maxPart, maxPartBh)
	rng := rand.New(rand.NewSource(seed))

	for i := 0; i < n; i++ {
		// Uniform point in a ball via rejection-free radial + direction
		// sampling (cube-root radius for uniform volume density).
		r := radius * math.Cbrt(rng.Float64())
		theta := rng.Float64() * 2 * math.Pi
		phi := math.Acos(2*rng.Float64() - 1)

		dx := r * math.Sin(phi) * math.Cos(theta)
		dy := r * math.Sin(phi) * math.Sin(theta)
		dz := r * math.Cos(phi)

		pos := peano.Vec3{
			X: wrapPeriodic(center.X+dx, boxSize),
			Y: wrapPeriodic(center.Y+dy, boxSize),
			Z: wrapPeriodic(center.Z+dz, boxSize),
		}
		p := Particle{
			Position:   pos,
			Mass:       1.0,
			Type:       TypeDM,
			ID:         uint64(i + 1),
			Generation: 0,
			TimeBin:    4,
			Key:        peano.KeyOf(pos, boxSize),
			PI:         -1,
		}
		if _, err := m.Append(p); err != nil {
			panic(err)
		}
	}
	return m
}

// MixedPopulation builds nGas gas particles, nDM dark-matter particles and
// nBH black holes, in that layout order so the gas prefix and black-hole
// slot invariants hold from construction, matching spec §8 scenario S3.
func MixedPopulation(nGas, nDM, nBH, maxPart, maxPartBh int, boxSize float64, seed int64) *Manager {
	m := NewManager(maxPart, maxPartBh)
	rng := rand.New(rand.NewSource(seed))
	var nextID uint64 = 1

	randPos := func() peano.Vec3 {
		pos := peano.Vec3{
			X: rng.Float64() * boxSize,
			Y: rng.Float64() * boxSize,
			Z: rng.Float64() * boxSize,
		}
		return pos
	}

	for i := 0; i < nGas; i++ {
		pos := randPos()
		id := nextID
		nextID++
		slotIdx, err := m.AppendGas(GasSlot{ID: id, Density: 1.0, Entropy: 1.0})
		if err != nil {
			panic(err)
		}
		if _, err := m.Append(Particle{
			Position: pos, Mass: 1.0, Type: TypeGas, ID: id, TimeBin: 4,
			Key: peano.KeyOf(pos, boxSize), PI: slotIdx,
		}); err != nil {
			panic(err)
		}
	}
	for i := 0; i < nDM; i++ {
		pos := randPos()
		id := nextID
		nextID++
		if _, err := m.Append(Particle{
			Position: pos, Mass: 1.0, Type: TypeDM, ID: id, TimeBin: 4,
			Key: peano.KeyOf(pos, boxSize), PI: -1,
		}); err != nil {
			panic(err)
		}
	}
	for i := 0; i < nBH; i++ {
		pos := randPos()
		id := nextID
		nextID++
		slotIdx, err := m.AppendBH(BHSlot{ID: id, AccretionMass: 10.0, ReverseLink: -1})
		if err != nil {
			panic(err)
		}
		if _, err := m.Append(Particle{
			Position: pos, Mass: 100.0, Type: TypeBlackHole, ID: id, TimeBin: 2,
			Key: peano.KeyOf(pos, boxSize), PI: slotIdx,
		}); err != nil {
			panic(err)
		}
	}
	return m
}

func wrapPeriodic(v, boxSize float64) float64 {
	for v < 0 {
		v += boxSize
	}
	for v >= boxSize {
		v -= boxSize
	}
	return v
}
