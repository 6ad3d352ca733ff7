package exchange

import (
	"fmt"

	"github.com/cosmosim/decomp/cluster"
	"github.com/cosmosim/decomp/particle"
	"github.com/cosmosim/decomp/toptree"
)

// Summary accumulates RoundStats across every round of one Run call.
type Summary struct {
	Rounds   int
	Exported int
	Imported int
	Sheds    int
}

// Run drives the exchange protocol to completion: it loops Round until no
// rank reports any remaining candidates (spec §4.6 "Termination"). Ranks
// that locally finish early keep participating in the collectives inside
// Round (an empty candidate set there still costs one Allreduce) so every
// rank stays in lockstep with the slowest one.
func Run(c *cluster.Comm, tree *toptree.Tree, owner []int, m *particle.Manager, cfg Config) (Summary, error) {
	var summary Summary
	for {
		stats, err := Round(c, tree, owner, m, cfg)
		if err != nil {
			return summary, fmt.Errorf("exchange: round %d: %w", summary.Rounds+1, err)
		}
		summary.Rounds++
		summary.Exported += stats.Exported
		summary.Imported += stats.Imported
		summary.Sheds += stats.Sheds
		if !stats.More {
			return summary, nil
		}
	}
}
