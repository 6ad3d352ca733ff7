package exchange

import (
	"github.com/cosmosim/decomp/domain"
	"github.com/cosmosim/decomp/peano"
	"github.com/cosmosim/decomp/toptree"
)

// OwnerTable expands a domain.Plan into a dense leaf-ordinal -> rank table,
// the form the per-particle layout function actually consults (spec §4.6
// "Layout function").
func OwnerTable(plan domain.Plan) []int {
	var numLeaves int
	for _, seg := range plan.Segments {
		if seg.EndLeaf > numLeaves {
			numLeaves = seg.EndLeaf
		}
	}
	owner := make([]int, numLeaves)
	for i, seg := range plan.Segments {
		rank := plan.Assignment[i]
		for leaf := seg.StartLeaf; leaf < seg.EndLeaf; leaf++ {
			owner[leaf] = rank
		}
	}
	return owner
}

// OwnerOf is the layout function: descend the top tree with a particle's
// cached key to find its owning leaf, then look that leaf's rank up in the
// owner table.
func OwnerOf(tree *toptree.Tree, owner []int, key peano.Key) int {
	leafNode := tree.LeafOf(key)
	ord := tree.Nodes[leafNode].Leaf
	return owner[int(ord)]
}
