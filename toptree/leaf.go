package toptree

import "github.com/cosmosim/decomp/peano"

// AssignLeafOrdinals walks the tree and stamps every leaf's Leaf field
// with a dense 0-based ordinal in key order, returning the leaf count.
// Called once after the merge (and again after any post-merge adaptation
// split changes the leaf set), since everything downstream — the
// summarizer, the splitter, the exchange layout — addresses leaves by this
// ordinal rather than by node index.
func (t *Tree) AssignLeafOrdinals() int {
	next := int32(0)
	var walk func(idx int32)
	walk = func(idx int32) {
		node := &t.Nodes[idx]
		if node.IsLeaf() {
			node.Leaf = next
			next++
			return
		}
		for d := int32(0); d < 8; d++ {
			walk(node.FirstDaughter + d)
		}
	}
	walk(t.Root())
	return int(next)
}

// NumLeaves returns the number of leaves (nodes with no daughters); it
// counts nodes directly and does not depend on AssignLeafOrdinals.
func (t *Tree) NumLeaves() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// LeafOf descends from the root to the leaf containing key, returning its
// node index. The tree's uniform octal branching means the daughter
// containing any key can be computed directly from its offset into the
// node's span, without scanning daughters.
func (t *Tree) LeafOf(key peano.Key) int32 {
	idx := t.Root()
	for {
		node := &t.Nodes[idx]
		if node.IsLeaf() {
			return idx
		}
		daughterSize := node.Size / 8
		offset := (key - node.StartKey) / daughterSize
		idx = node.FirstDaughter + int32(offset)
	}
}

// Leaves returns the node indices of every leaf, in key order.
func (t *Tree) Leaves() []int32 {
	var leaves []int32
	var walk func(idx int32)
	walk = func(idx int32) {
		node := &t.Nodes[idx]
		if node.IsLeaf() {
			leaves = append(leaves, idx)
			return
		}
		for d := int32(0); d < 8; d++ {
			walk(node.FirstDaughter + d)
		}
	}
	walk(t.Root())
	return leaves
}
