package toptree

import (
	"errors"
	"testing"

	"github.com/cosmosim/decomp/cluster"
	"github.com/cosmosim/decomp/peano"
)

func allKeysAtOrigin(n int) []peano.Key {
	keys := make([]peano.Key, n)
	return keys // all zero, i.e. every particle in cell 0
}

func spreadKeys(n int) []peano.Key {
	keys := make([]peano.Key, n)
	step := peano.Cells / peano.Key(n)
	for i := range keys {
		keys[i] = peano.Key(i) * step
	}
	return keys
}

func uniformCosts(n int) []float64 {
	c := make([]float64, n)
	for i := range c {
		c[i] = 1.0
	}
	return c
}

func TestBuildLocalRootAlwaysSplitsOnce(t *testing.T) {
	n := 100
	keys := spreadKeys(n)
	tree, err := BuildLocal(keys, uniformCosts(n), 1000)
	if err != nil {
		t.Fatalf("BuildLocal: %v", err)
	}
	root := tree.Nodes[tree.Root()]
	if root.IsLeaf() {
		t.Fatal("root should always split at least once")
	}
	if root.Count != int64(n) {
		t.Errorf("root.Count = %d, want %d", root.Count, n)
	}
}

func TestBuildLocalConcentratesRefinementOnHotCell(t *testing.T) {
	n := 800
	keys := make([]peano.Key, n)
	// 90% of particles packed into the first eighth of key space, the rest
	// spread over the remaining seven eighths.
	hot := n * 9 / 10
	for i := 0; i < hot; i++ {
		keys[i] = peano.Key(i % 1000)
	}
	eighthSize := peano.Cells / 8
	for i := hot; i < n; i++ {
		keys[i] = eighthSize + peano.Key(i-hot)*((peano.Cells-eighthSize)/peano.Key(n-hot))
	}
	tree, err := BuildLocal(keys, uniformCosts(n), 5000)
	if err != nil {
		t.Fatalf("BuildLocal: %v", err)
	}
	root := tree.Nodes[tree.Root()]
	hotDaughter := tree.Nodes[root.FirstDaughter]
	if hotDaughter.IsLeaf() {
		t.Error("the hot daughter holding 90% of particles should have been split further")
	}
}

func TestBuildLocalRespectsNodeBudget(t *testing.T) {
	n := 500
	keys := spreadKeys(n)
	_, err := BuildLocal(keys, uniformCosts(n), 2)
	if !errors.Is(err, ErrBudgetOverflow) {
		t.Fatalf("BuildLocal with tiny budget: want ErrBudgetOverflow, got %v", err)
	}
}

func TestLeafOfCoversEveryKeyExactlyOnce(t *testing.T) {
	n := 300
	keys := spreadKeys(n)
	tree, err := BuildLocal(keys, uniformCosts(n), 5000)
	if err != nil {
		t.Fatalf("BuildLocal: %v", err)
	}
	numLeaves := tree.AssignLeafOrdinals()
	if numLeaves != len(tree.Leaves()) {
		t.Fatalf("AssignLeafOrdinals = %d, Leaves() len = %d", numLeaves, len(tree.Leaves()))
	}
	for _, k := range keys {
		leafIdx := tree.LeafOf(k)
		if !tree.Nodes[leafIdx].IsLeaf() {
			t.Fatalf("LeafOf(%d) returned a non-leaf node", k)
		}
		if k < tree.Nodes[leafIdx].StartKey || k >= tree.Nodes[leafIdx].StartKey+tree.Nodes[leafIdx].Size {
			t.Fatalf("key %d outside returned leaf's span [%d,%d)", k, tree.Nodes[leafIdx].StartKey, tree.Nodes[leafIdx].StartKey+tree.Nodes[leafIdx].Size)
		}
	}
}

func TestMergeCombinesCountsAcrossRanks(t *testing.T) {
	const ranksN = 4
	const perRank = 200
	results := make([]*Tree, ranksN)

	errs := cluster.Run(ranksN, func(c *cluster.Comm) error {
		keys := spreadKeys(perRank)
		local, err := BuildLocal(keys, uniformCosts(perRank), 20000)
		if err != nil {
			return err
		}
		merged, err := Merge(c, local, 20000)
		if err != nil {
			return err
		}
		results[c.Rank()] = merged
		return nil
	})
	for i, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", i, err)
		}
	}

	want := int64(ranksN * perRank)
	for r, tr := range results {
		root := tr.Nodes[tr.Root()]
		if root.Count != want {
			t.Errorf("rank %d: merged root count = %d, want %d", r, root.Count, want)
		}
	}
	// Every rank must end up with a structurally identical node count,
	// since the merge is deterministic given the same per-rank inputs.
	for r := 1; r < ranksN; r++ {
		if results[r].NumNodes() != results[0].NumNodes() {
			t.Errorf("rank %d has %d nodes, rank 0 has %d", r, results[r].NumNodes(), results[0].NumNodes())
		}
	}
}

func TestMergeRejectsLargerIncomingNode(t *testing.T) {
	local := newTree(10)
	if _, err := local.newNode(0, 8, -1); err != nil {
		t.Fatal(err)
	}

	incoming := newTree(10)
	if _, err := incoming.newNode(0, 64, -1); err != nil {
		t.Fatal(err)
	}

	err := local.mergeNode(local.Root(), incoming, incoming.Root())
	if !errors.Is(err, ErrStructuralCorruption) {
		t.Fatalf("mergeNode with oversized incoming root: want ErrStructuralCorruption, got %v", err)
	}
}

func TestSummarizeAggregatesCountAndCostAcrossRanks(t *testing.T) {
	const ranksN = 3
	const perRank = 150
	results := make([]*Tree, ranksN)

	errs := cluster.Run(ranksN, func(c *cluster.Comm) error {
		keys := spreadKeys(perRank)
		costs := uniformCosts(perRank)
		local, err := BuildLocal(keys, costs, 20000)
		if err != nil {
			return err
		}
		merged, err := Merge(c, local, 20000)
		if err != nil {
			return err
		}
		Summarize(c, merged, keys, costs)
		results[c.Rank()] = merged
		return nil
	})
	for i, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", i, err)
		}
	}

	wantCount := int64(ranksN * perRank)
	wantCost := float64(wantCount)
	for r, tr := range results {
		root := tr.Nodes[tr.Root()]
		if root.Count != wantCount {
			t.Errorf("rank %d: summarized root count = %d, want %d", r, root.Count, wantCount)
		}
		if root.Cost != wantCost {
			t.Errorf("rank %d: summarized root cost = %v, want %v", r, root.Cost, wantCost)
		}
		// With a uniform per-particle cost of 1, every leaf's cost must
		// equal its count.
		for _, leafIdx := range tr.Leaves() {
			leaf := tr.Nodes[leafIdx]
			if leaf.Cost != float64(leaf.Count) {
				t.Errorf("rank %d leaf %d: cost %v != count %v (uniform per-particle cost)", r, leafIdx, leaf.Cost, leaf.Count)
			}
		}
	}
}

func TestAdaptSplitsLeafOverItsAbsoluteQuota(t *testing.T) {
	tree := newTree(200)
	rootIdx, err := tree.newNode(0, peano.Cells, -1)
	if err != nil {
		t.Fatal(err)
	}
	// Give the root 8 daughters, all leaves, one of which carries 90% of
	// the total count/cost.
	if err := tree.openNode(rootIdx); err != nil {
		t.Fatal(err)
	}
	root := &tree.Nodes[rootIdx]
	root.Count = 1000
	root.Cost = 1000
	tree.Nodes[root.FirstDaughter].Count = 900
	tree.Nodes[root.FirstDaughter].Cost = 900
	for d := int32(1); d < 8; d++ {
		tree.Nodes[root.FirstDaughter+d].Count = 100 / 7
		tree.Nodes[root.FirstDaughter+d].Cost = 100 / 7
	}

	// quota = totNumPart/(topNodeFactor*overDecomp*ntask) = 1000/4 = 250:
	// the 900-count daughter exceeds it, the ~14-count daughters don't.
	if err := tree.Adapt(1000, 1000, 1, 1, 4.0); err != nil {
		t.Fatalf("Adapt: %v", err)
	}

	hot := tree.Nodes[root.FirstDaughter]
	if hot.IsLeaf() {
		t.Error("leaf over its absolute count/cost quota should have been split by Adapt")
	}
	cold := tree.Nodes[root.FirstDaughter+1]
	if !cold.IsLeaf() {
		t.Error("leaf under quota should not have been split by Adapt")
	}
}
