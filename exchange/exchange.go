// Package exchange moves particles between ranks once the splitter and
// assigner (package domain) have decided which leaf belongs to which rank
// (spec §4.6). Each round: local particles whose owning leaf moved to
// another rank are staged up to a byte budget, every rank learns the full
// transfer matrix, inbound volumes that would breach MaxPart/MaxPartBh are
// shed round-robin, and the three parallel tables — base, gas, black hole —
// are packed, compacted and unpacked while keeping every PI back-link
// intact. Rounds repeat until no rank has anything left to send.
package exchange

import (
	"fmt"
	"unsafe"

	"github.com/cosmosim/decomp/particle"
)

// ErrOverflowRoundLimit is spec §7 error kind 3: the receive-side safety
// loop failed to converge within 100 iterations.
var ErrOverflowRoundLimit = fmt.Errorf("exchange: overflow shedding did not converge after 100 iterations")

// Config holds the exchange engine's resource limits (spec §6).
type Config struct {
	// FreeBytes bounds how much staging memory one round's outgoing
	// batch may occupy before NTask's worth of bookkeeping overhead is
	// reserved out of it.
	FreeBytes int64
	MaxPart   int
	MaxPartBh int
	// NoIsendIrecv mirrors the original's transport-workaround knob.
	// cluster's Send/Recv is a single in-process channel mechanism in
	// this simulation, with no separate async path to disable — kept
	// only so collaborator configuration round-trips unchanged.
	NoIsendIrecv bool
}

var (
	sizeofInt     = int64(unsafe.Sizeof(int32(0)))
	sizeofRequest = int64(16) // nominal MPI_Request footprint; Go has no such handle, so this is a fixed bookkeeping constant rather than a measured size.
)

// perRoundBudget is spec §4.6 step 2's stopping rule: stage outgoing data
// until its cumulative size would exceed FreeBytes minus NTask's worth of
// per-rank bookkeeping (24 ints plus 16 request handles).
func (cfg Config) perRoundBudget(ntask int) int64 {
	reserved := int64(ntask) * (24*sizeofInt + 16*sizeofRequest)
	budget := cfg.FreeBytes - reserved
	if budget < 0 {
		budget = 0
	}
	return budget
}

// particleBytes estimates one particle's staged footprint: the base entry
// plus whichever auxiliary slot its type carries along.
func particleBytes(p *particle.Particle) int64 {
	size := int64(unsafe.Sizeof(particle.Particle{}))
	switch p.Type {
	case particle.TypeGas:
		size += int64(unsafe.Sizeof(particle.GasSlot{}))
	case particle.TypeBlackHole:
		size += int64(unsafe.Sizeof(particle.BHSlot{}))
	}
	return size
}
