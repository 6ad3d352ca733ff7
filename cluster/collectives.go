package cluster

// Tag namespaces a logical phase of the wire protocol (spec §6): each
// phase — top-tree merge counts, top-tree merge payload, the three paired
// exchange transfers, and so on — gets its own tag. Send/Recv, Bcast,
// ExchangeCounts and Alltoallv use the tag itself as the mailbox number;
// AllreduceSum* derive tag*10+{0,1} and AllgatherInt tag*1000+k. These
// derived numbers can coincide with another tag's own number:
// AllreduceSumInt64 under TagMergeCount broadcasts from rank 0 on the same
// mailbox number as TagMergePayload, and the two stay apart only because
// each mailbox is FIFO and every rank receives them in the same order.
type Tag int

const (
	TagMergeCount Tag = iota
	TagMergePayload
	TagSummarizeCount
	TagSummarizeCost
	TagExchangeCandidateFlag
	TagExchangeCountsGasBase
	TagExchangeCountsOtherBase
	TagExchangeCountsBh
	TagExchangeBaseGas
	TagExchangeBaseOther
	TagExchangeGas
	TagExchangeBH
	TagExchangeSafetyToGo
	TagExchangeSafetyBh
	TagExchangeSafetyPre
	TagBuildOverflow
)

// Bcast distributes data from root to every other rank, and returns it
// unchanged on root itself.
func Bcast[T any](c *Comm, root int, tag Tag, data []T) []T {
	if c.rank == root {
		for r := 0; r < c.cluster.size; r++ {
			if r == root {
				continue
			}
			Send(c, r, int(tag), data)
		}
		return data
	}
	return Recv[T](c, root, int(tag))
}

// AllreduceSumFloat64 sums local element-wise across every rank and
// returns the total to all ranks (spec §4.4's MPI_Allreduce(SUM) over
// per-leaf cost; per-leaf counts go through AllreduceSumInt64). Implemented as a
// gather to rank 0 followed by a broadcast, which is correct independent
// of NTask and simple enough to trust without a dedicated reduction tree —
// the pairwise merge in package toptree is where tree-shaped combination
// actually matters.
func AllreduceSumFloat64(c *Comm, tag Tag, local []float64) []float64 {
	const (
		gatherTag = 0
		bcastTag  = 1
	)
	if c.rank == 0 {
		total := make([]float64, len(local))
		copy(total, local)
		for r := 1; r < c.cluster.size; r++ {
			incoming := Recv[float64](c, r, int(tag)*10+gatherTag)
			for i := range total {
				total[i] += incoming[i]
			}
		}
		for r := 1; r < c.cluster.size; r++ {
			Send(c, r, int(tag)*10+bcastTag, total)
		}
		return total
	}
	Send(c, 0, int(tag)*10+gatherTag, local)
	return Recv[float64](c, 0, int(tag)*10+bcastTag)
}

// AllreduceSumInt64 is AllreduceSumFloat64's integer counterpart, used for
// per-leaf particle counts and for OR-reducing overflow flags (a sum > 0
// means at least one rank signalled overflow).
func AllreduceSumInt64(c *Comm, tag Tag, local []int64) []int64 {
	const (
		gatherTag = 0
		bcastTag  = 1
	)
	if c.rank == 0 {
		total := make([]int64, len(local))
		copy(total, local)
		for r := 1; r < c.cluster.size; r++ {
			incoming := Recv[int64](c, r, int(tag)*10+gatherTag)
			for i := range total {
				total[i] += incoming[i]
			}
		}
		for r := 1; r < c.cluster.size; r++ {
			Send(c, r, int(tag)*10+bcastTag, total)
		}
		return total
	}
	Send(c, 0, int(tag)*10+gatherTag, local)
	return Recv[int64](c, 0, int(tag)*10+bcastTag)
}

// ExchangeCounts trades the NTask-length intent vector every rank builds
// before a sparse Alltoallv: sendCounts[j] is how many items this rank
// means to send to rank j, and the returned vector is how many items every
// other rank j means to send here (spec §4.6 step "all-to-all the toGo
// arrays into toGet arrays").
func ExchangeCounts(c *Comm, tag Tag, sendCounts []int) []int {
	recvCounts := make([]int, c.cluster.size)
	for j := 0; j < c.cluster.size; j++ {
		if j == c.rank {
			recvCounts[j] = sendCounts[j]
			continue
		}
		Send(c, j, int(tag), []int{sendCounts[j]})
	}
	for j := 0; j < c.cluster.size; j++ {
		if j == c.rank {
			continue
		}
		recvCounts[j] = Recv[int](c, j, int(tag))[0]
	}
	return recvCounts
}

// AllgatherInt collects every rank's local row into a full NTask-length
// table of rows, identical on every rank. The exchange engine's
// receive-side safety loop (spec §4.6 step 4) uses this to give every rank
// full visibility into the pending transfer volumes, so the round-robin
// shedding decision can be computed locally and deterministically on every
// rank (spec §5's determinism requirement) without a further round trip
// per shed.
func AllgatherInt(c *Comm, tag Tag, local []int) [][]int {
	n := c.cluster.size
	base := int(tag) * 1000
	rows := make([][]int, n)
	if c.rank == 0 {
		rows[0] = append([]int(nil), local...)
		for r := 1; r < n; r++ {
			rows[r] = Recv[int](c, r, base)
		}
		for r := 1; r < n; r++ {
			for row := 0; row < n; row++ {
				Send(c, r, base+1+row, rows[row])
			}
		}
		return rows
	}
	Send(c, 0, base, local)
	for row := 0; row < n; row++ {
		rows[row] = Recv[int](c, 0, base+1+row)
	}
	return rows
}

// Alltoallv performs the sparse personalized all-to-all of spec §4.6 step
// 8: rank-to-rank transfers with a zero count skipped entirely on both the
// send and the receive side, since most rank pairs exchange nothing in a
// well load-balanced run. sendCounts and recvCounts must already be known
// (typically from a prior ExchangeCounts call); recvData[j] is nil when
// recvCounts[j] is 0.
func Alltoallv[T any](c *Comm, tag Tag, sendCounts, recvCounts []int, sendData [][]T) [][]T {
	recvData := make([][]T, c.cluster.size)
	for j := 0; j < c.cluster.size; j++ {
		if j == c.rank {
			if sendCounts[j] > 0 {
				self := make([]T, len(sendData[j]))
				copy(self, sendData[j])
				recvData[j] = self
			}
			continue
		}
		if sendCounts[j] > 0 {
			Send(c, j, int(tag), sendData[j])
		}
	}
	for j := 0; j < c.cluster.size; j++ {
		if j == c.rank {
			continue
		}
		if recvCounts[j] > 0 {
			recvData[j] = Recv[T](c, j, int(tag))
		}
	}
	return recvData
}
