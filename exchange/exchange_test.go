package exchange

import (
	"fmt"
	"testing"

	"github.com/cosmosim/decomp/cluster"
	"github.com/cosmosim/decomp/domain"
	"github.com/cosmosim/decomp/particle"
	"github.com/cosmosim/decomp/peano"
	"github.com/cosmosim/decomp/toptree"
)

// buildLeafTables extracts the per-leaf work/count arrays Split needs,
// once tree has been populated by a prior Summarize call.
func buildLeafTables(tree *toptree.Tree) (work []float64, count []int64) {
	leaves := tree.Leaves()
	work = make([]float64, len(leaves))
	count = make([]int64, len(leaves))
	for i, idx := range leaves {
		work[i] = tree.Nodes[idx].Cost
		count[i] = tree.Nodes[idx].Count
	}
	return work, count
}

func extractKeys(m *particle.Manager) []peano.Key {
	n := m.NumPart()
	keys := make([]peano.Key, n)
	for i := 0; i < n; i++ {
		keys[i] = m.P[i].Key
	}
	return keys
}

// TestRunConvergesEveryParticleOntoItsOwningRank builds a uniform
// population split evenly across ranks, computes a split/assignment plan
// from the merged top tree, and checks that after Run every surviving
// particle sits on the rank its key maps to, with the global particle
// count unchanged.
func TestRunConvergesEveryParticleOntoItsOwningRank(t *testing.T) {
	const ranksN = 4
	const perRank = 200
	const boxSize = 64.0
	const maxPart = perRank * ranksN

	managers := make([]*particle.Manager, ranksN)

	errs := cluster.Run(ranksN, func(c *cluster.Comm) error {
		m := particle.UniformPopulation(perRank, maxPart, maxPart, boxSize, int64(1000+c.Rank()))
		managers[c.Rank()] = m

		ks := extractKeys(m)
		costs := make([]float64, len(ks))
		for i := range costs {
			costs[i] = 1.0
		}

		local, err := toptree.BuildLocal(ks, costs, 20000)
		if err != nil {
			return err
		}
		merged, err := toptree.Merge(c, local, 20000)
		if err != nil {
			return err
		}
		toptree.Summarize(c, merged, ks, costs)
		root := merged.Nodes[merged.Root()]
		if err := merged.Adapt(root.Count, root.Cost, 1, ranksN, 4.0); err != nil {
			return err
		}

		work, count := buildLeafTables(merged)
		plan, err := domain.Split(work, count, ranksN, ranksN, int64(maxPart))
		if err != nil {
			return err
		}
		owner := OwnerTable(plan)

		if _, err := Run(c, merged, owner, m, Config{
			FreeBytes: 1 << 20,
			MaxPart:   maxPart,
			MaxPartBh: maxPart,
		}); err != nil {
			return err
		}

		// Every surviving local particle must now map to this rank.
		for i := 0; i < m.NumPart(); i++ {
			target := OwnerOf(merged, owner, m.P[i].Key)
			if target != c.Rank() {
				return fmt.Errorf("rank %d: particle with key %d maps to rank %d after Run", c.Rank(), m.P[i].Key, target)
			}
		}
		return nil
	})
	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", r, err)
		}
	}

	var total int
	for _, m := range managers {
		total += m.NumPart()
	}
	if total != perRank*ranksN {
		t.Errorf("total particle count after exchange = %d, want %d", total, perRank*ranksN)
	}
}
