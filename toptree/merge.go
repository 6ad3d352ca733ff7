package toptree

import (
	"fmt"

	"github.com/cosmosim/decomp/cluster"
)

// Merge combines every rank's local top tree into one global tree, held in
// full on every rank afterward (spec §4.2's pairwise merge). It runs
// ceil(log2(NTask)) rounds of the standard recursive-doubling reduction:
// in round s (step = 2^s), a rank whose id is a multiple of 2*step
// receives from rank+step and merges it into its own tree; a rank whose id
// is step more than a multiple of 2*step sends its whole tree to rank-step
// and drops out of every later round. After the last round the combined
// tree lives on rank 0 and is broadcast to everyone.
//
// A node-budget overflow on any rank during any round is turned into a
// uniform failure on every rank (via an Allreduce-OR of a 0/1 flag) so the
// caller in package decomp can restart the whole decomposition with a
// larger MaxTopNodes rather than leave some ranks holding a partial merge.
func Merge(c *cluster.Comm, local *Tree, maxNodes int) (*Tree, error) {
	tree := local
	ntask := c.Size()
	rank := c.Rank()
	done := false

	for step := 1; step < ntask; step *= 2 {
		var mergeErr error
		if !done {
			group := 2 * step
			if rank%group == 0 {
				partner := rank + step
				if partner < ntask {
					incoming := cluster.Recv[Node](c, partner, int(cluster.TagMergePayload))
					incomingTree := &Tree{Nodes: incoming}
					mergeErr = tree.mergeNode(tree.Root(), incomingTree, incomingTree.Root())
				}
			} else if rank%group == step {
				cluster.Send(c, rank-step, int(cluster.TagMergePayload), tree.Nodes)
				done = true
			}
		}

		overflowed := int64(0)
		if mergeErr != nil {
			overflowed = 1
		}
		totals := cluster.AllreduceSumInt64(c, cluster.TagMergeCount, []int64{overflowed})
		if totals[0] > 0 {
			if mergeErr != nil {
				return nil, mergeErr
			}
			return nil, ErrBudgetOverflow
		}
	}

	nodes := cluster.Bcast(c, 0, cluster.TagMergePayload, tree.Nodes)
	merged := newTree(maxNodes)
	merged.Nodes = append(merged.Nodes, nodes...)
	return merged, nil
}

// mergeNode folds the subtree rooted at incoming (in its own, independent
// node array) into the subtree rooted at localIdx (spec §4.2's merge
// rule):
//
//   - incoming finer than local (smaller Size): local must be opened (if
//     it is still a leaf) to descend one level, then recurse into the
//     local daughter the incoming node's start key falls inside, without
//     moving the incoming pointer.
//   - equal Size: add counts and costs directly; if incoming has
//     daughters, open local (if needed) and recurse into all 8 daughter
//     pairs.
//   - incoming coarser than local (larger Size): impossible by
//     construction — every local tree obeys the same 8-cell floor — and is
//     reported as ErrStructuralCorruption.
func (t *Tree) mergeNode(localIdx int32, incoming *Tree, inIdx int32) error {
	local := &t.Nodes[localIdx]
	in := &incoming.Nodes[inIdx]

	if in.Size > local.Size {
		return fmt.Errorf("%w: incoming node size %d exceeds local counterpart size %d", ErrStructuralCorruption, in.Size, local.Size)
	}

	if in.Size < local.Size {
		if local.FirstDaughter < 0 {
			if err := t.openNode(localIdx); err != nil {
				return err
			}
			local = &t.Nodes[localIdx]
		}
		daughterSize := local.Size / 8
		offset := (in.StartKey - local.StartKey) / daughterSize
		return t.mergeNode(local.FirstDaughter+int32(offset), incoming, inIdx)
	}

	if in.FirstDaughter < 0 {
		local.Count += in.Count
		local.Cost += in.Cost
		return nil
	}

	// local must be opened while it still holds only its own pre-merge
	// Count/Cost, since openNode apportions whatever totals are already
	// on the node across the 8 new daughters. Adding in's contribution
	// first would hand the daughters an even split of the already-merged
	// total, and the recursive daughter merge below would then add in's
	// real daughter counts on top of that — double-counting incoming's
	// share at every level under this node.
	if local.FirstDaughter < 0 {
		if err := t.openNode(localIdx); err != nil {
			return err
		}
		local = &t.Nodes[localIdx]
	}
	local.Count += in.Count
	local.Cost += in.Cost
	for d := int32(0); d < 8; d++ {
		if err := t.mergeNode(local.FirstDaughter+d, incoming, in.FirstDaughter+d); err != nil {
			return err
		}
	}
	return nil
}
