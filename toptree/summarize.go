package toptree

import (
	"runtime"
	"sync"

	"github.com/cosmosim/decomp/cluster"
	"github.com/cosmosim/decomp/peano"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summarize fills in every leaf's Count and Cost from this rank's local
// particles, reduces across all ranks with Allreduce(SUM) (spec §4.4 and
// §4.5), and then rolls the sums up to every ancestor so an internal
// node's Count/Cost always equals the sum over its leaves. keys and costs
// must be parallel slices over the local particle set; costs may be nil,
// in which case every particle counts 1.0 toward Cost (a count-only
// summarization).
//
// The per-rank local reduction is split across GOMAXPROCS workers, each
// accumulating into its own leaf-indexed partial array before the arrays
// are combined — the same chunk-and-reduce shape the teacher uses for its
// per-frame entity passes, generalized from per-entity intents to per-leaf
// totals.
func Summarize(c *cluster.Comm, tree *Tree, keys []peano.Key, costs []float64) {
	tree.AssignLeafOrdinals()
	leaves := tree.Leaves()
	numLeaves := len(leaves)

	leafIndexOf := func(key peano.Key) int {
		return int(tree.Nodes[tree.LeafOf(key)].Leaf)
	}

	n := len(keys)
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > n && n > 0 {
		numWorkers = n
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	chunkSize := (n + numWorkers - 1) / numWorkers

	partialCounts := make([][]int64, numWorkers)
	partialCosts := make([][]float64, numWorkers)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if start >= n {
			partialCounts[w] = make([]int64, numLeaves)
			partialCosts[w] = make([]float64, numLeaves)
			continue
		}
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			cnt := make([]int64, numLeaves)
			cost := make([]float64, numLeaves)
			for i := start; i < end; i++ {
				li := leafIndexOf(keys[i])
				cnt[li]++
				if costs != nil {
					cost[li] += costs[i]
				} else {
					cost[li] += 1.0
				}
			}
			partialCounts[w] = cnt
			partialCosts[w] = cost
		}(w, start, end)
	}
	wg.Wait()

	localCounts := make([]int64, numLeaves)
	localCosts := make([]float64, numLeaves)
	for w := 0; w < numWorkers; w++ {
		for i := 0; i < numLeaves; i++ {
			localCounts[i] += partialCounts[w][i]
		}
		floats.Add(localCosts, partialCosts[w])
	}

	globalCounts := cluster.AllreduceSumInt64(c, cluster.TagSummarizeCount, localCounts)
	globalCosts := cluster.AllreduceSumFloat64(c, cluster.TagSummarizeCost, localCosts)
	for i, nodeIdx := range leaves {
		tree.Nodes[nodeIdx].Count = globalCounts[i]
		tree.Nodes[nodeIdx].Cost = globalCosts[i]
	}

	tree.RollUp()
}

// RollUp recomputes every internal node's Count and Cost as the sum over
// its daughters, bottom-up. Summarize calls this after populating leaves;
// callers that mutate leaf counts directly (e.g. tests) should call it
// too before trusting an ancestor's totals.
func (t *Tree) RollUp() {
	var walk func(idx int32)
	walk = func(idx int32) {
		node := &t.Nodes[idx]
		if node.IsLeaf() {
			return
		}
		var count int64
		var cost float64
		for d := int32(0); d < 8; d++ {
			di := node.FirstDaughter + d
			walk(di)
			count += t.Nodes[di].Count
			cost += t.Nodes[di].Cost
		}
		node.Count = count
		node.Cost = cost
	}
	walk(t.Root())
}

// AverageLeafCost reports the mean cost across all leaves, a cheap
// diagnostic for telemetry's load-balance report.
func (t *Tree) AverageLeafCost() float64 {
	leaves := t.Leaves()
	if len(leaves) == 0 {
		return 0
	}
	costs := make([]float64, len(leaves))
	for i, idx := range leaves {
		costs[i] = t.Nodes[idx].Cost
	}
	return stat.Mean(costs, nil)
}
