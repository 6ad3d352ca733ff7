// Package toptree builds a shallow global octree over Peano-Hilbert key
// space. Every rank refines its own particles locally, the per-rank trees
// are merged pairwise into one global tree, and the result is adapted so
// no leaf concentrates more than its fair share of work or particle count
// (spec §4.3).
package toptree

import (
	"fmt"

	"github.com/cosmosim/decomp/peano"
)

// ErrBudgetOverflow is spec §7 error kind 1: the node array ran out of
// room. Recoverable by growing MaxTopNodes by 30% and restarting the whole
// decomposition (handled by package decomp, not here).
var ErrBudgetOverflow = fmt.Errorf("toptree: node budget exhausted")

// Node is one entry of the global octree (spec §3 Top-Tree node).
type Node struct {
	StartKey peano.Key
	Size     peano.Key // power-of-8 span of curve key-space; daughters are Size/8

	FirstDaughter int32 // -1 if this node is a leaf
	Parent        int32 // -1 for the root
	Leaf          int32 // leaf ordinal, assigned only by AssignLeafOrdinals; -1 until then

	Count int64
	Cost  float64

	// PIndex is set to -1 by newNode and never written or read afterwards:
	// local refinement passes each node's range of the key-sorted particle
	// order as arguments instead of storing it here.
	PIndex int32
}

// IsLeaf reports whether a node has no daughters.
func (n *Node) IsLeaf() bool { return n.FirstDaughter < 0 }

// Tree is a self-contained, index-addressed octree: every Parent and
// FirstDaughter field refers to an index within the same Nodes slice. The
// backing array is preallocated to maxNodes and never reallocated, so
// indices handed out by newNode stay valid for the tree's whole lifetime
// (in particular, across the recursive merge in merge.go).
type Tree struct {
	Nodes    []Node
	maxNodes int32
}

// newTree allocates an empty tree with room for up to maxNodes nodes.
func newTree(maxNodes int) *Tree {
	return &Tree{
		Nodes:    make([]Node, 0, maxNodes),
		maxNodes: int32(maxNodes),
	}
}

// newNode reserves the next node slot, failing with ErrBudgetOverflow if
// the tree is already at capacity.
func (t *Tree) newNode(startKey, size peano.Key, parent int32) (int32, error) {
	idx := int32(len(t.Nodes))
	if idx >= t.maxNodes {
		return -1, ErrBudgetOverflow
	}
	t.Nodes = t.Nodes[:idx+1]
	t.Nodes[idx] = Node{
		StartKey:      startKey,
		Size:          size,
		FirstDaughter: -1,
		Parent:        parent,
		Leaf:          -1,
		PIndex:        -1,
	}
	return idx, nil
}

// NumNodes returns the number of nodes currently in the tree.
func (t *Tree) NumNodes() int { return len(t.Nodes) }

// Root returns the root node index, always 0 for a non-empty tree.
func (t *Tree) Root() int32 { return 0 }

// openNode subdivides a leaf into 8 daughters, distributing the leaf's
// count and cost uniformly across them — 1/8 each, except the first
// daughter absorbs the integer/float remainder, exactly as spec §4.3
// describes for a local-side node opened to receive a finer incoming node
// during merge.
func (t *Tree) openNode(idx int32) error {
	node := t.Nodes[idx]
	if node.Size < 8 {
		return fmt.Errorf("%w: cannot open node of size %d below the 8-cell floor", ErrStructuralCorruption, node.Size)
	}
	daughterSize := node.Size / 8

	baseCount := node.Count / 8
	remCount := node.Count - baseCount*7
	baseCost := node.Cost / 8
	remCost := node.Cost - baseCost*7

	first, err := t.newNode(node.StartKey, daughterSize, idx)
	if err != nil {
		return err
	}
	t.Nodes[first].Count = remCount
	t.Nodes[first].Cost = remCost

	for d := int32(1); d < 8; d++ {
		idx2, err := t.newNode(node.StartKey+peano.Key(d)*daughterSize, daughterSize, idx)
		if err != nil {
			return err
		}
		t.Nodes[idx2].Count = baseCount
		t.Nodes[idx2].Cost = baseCost
	}

	t.Nodes[idx].FirstDaughter = first
	return nil
}

// ErrStructuralCorruption is spec §7 error kind 4, raised when the merge
// of two top trees finds an incoming node strictly larger than its local
// counterpart (the tree would have to shrink, which can never happen).
var ErrStructuralCorruption = fmt.Errorf("toptree: structural corruption")
