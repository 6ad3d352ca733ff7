package toptree

import (
	"sort"

	"github.com/cosmosim/decomp/peano"
)

// BuildLocal constructs one rank's local top tree from its particle keys
// and per-particle costs (spec §4.2). Starting from a single root covering
// the full key range, a node is split into 8 equal daughters whenever its
// local particle count or cost exceeds 80% of its parent's — the root
// itself is always split once, since it has no parent to compare against —
// and splitting stops once a node's key span drops below 8 cells. maxNodes
// bounds the node array; exceeding it returns ErrBudgetOverflow.
func BuildLocal(keys []peano.Key, costs []float64, maxNodes int) (*Tree, error) {
	n := len(keys)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return keys[order[i]] < keys[order[j]] })

	t := newTree(maxNodes)
	rootIdx, err := t.newNode(0, peano.Cells, -1)
	if err != nil {
		return nil, err
	}

	if err := t.refine(rootIdx, 0, n, order, keys, costs, 0, 0, true); err != nil {
		return nil, err
	}
	return t, nil
}

// refine computes nodeIdx's count and cost over particle range [lo,hi) of
// order, then decides whether to split it: isRoot forces the first split
// unconditionally; otherwise the 80%-of-parent threshold (spec §4.2)
// applies, using the parent's own count/cost captured just before this
// call recursed into it.
func (t *Tree) refine(nodeIdx int32, lo, hi int, order []int, keys []peano.Key, costs []float64, parentCount int64, parentCost float64, isRoot bool) error {
	node := &t.Nodes[nodeIdx]
	node.Count = int64(hi - lo)
	var cost float64
	for i := lo; i < hi; i++ {
		cost += costs[order[i]]
	}
	node.Cost = cost

	if node.Size < 8 {
		return nil
	}

	shouldSplit := isRoot
	if !isRoot {
		if float64(node.Count) > 0.8*float64(parentCount) {
			shouldSplit = true
		}
		if node.Cost > 0.8*parentCost {
			shouldSplit = true
		}
	}
	if !shouldSplit {
		return nil
	}

	startKey := node.StartKey
	daughterSize := node.Size / 8
	count, cost2 := node.Count, node.Cost

	first, err := t.newNode(startKey, daughterSize, nodeIdx)
	if err != nil {
		return err
	}
	for d := int32(1); d < 8; d++ {
		if _, err := t.newNode(startKey+peano.Key(d)*daughterSize, daughterSize, nodeIdx); err != nil {
			return err
		}
	}
	t.Nodes[nodeIdx].FirstDaughter = first

	bounds := make([]int, 9)
	bounds[0] = lo
	for d := 1; d < 8; d++ {
		boundary := startKey + peano.Key(d)*daughterSize
		bounds[d] = lo + sort.Search(hi-lo, func(i int) bool { return keys[order[lo+i]] >= boundary })
	}
	bounds[8] = hi

	for d := int32(0); d < 8; d++ {
		daughterIdx := first + d
		if err := t.refine(daughterIdx, bounds[d], bounds[d+1], order, keys, costs, count, cost2, false); err != nil {
			return err
		}
	}
	return nil
}
