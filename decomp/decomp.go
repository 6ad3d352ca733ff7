// Package decomp drives the top-level control flow of one decomposition
// (spec §2): move particles into the canonical periodic box, free the
// force tree, run the garbage collector, build (and, on budget overflow,
// rebuild with a larger node budget) the top tree, summarize cost/count
// over its leaves, split and assign leaves to ranks, run the exchange
// engine until every rank's residue is drained, and recount per-type
// totals.
package decomp

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cosmosim/decomp/cluster"
	"github.com/cosmosim/decomp/config"
	"github.com/cosmosim/decomp/domain"
	"github.com/cosmosim/decomp/exchange"
	"github.com/cosmosim/decomp/particle"
	"github.com/cosmosim/decomp/peano"
	"github.com/cosmosim/decomp/telemetry"
	"github.com/cosmosim/decomp/toptree"
)

// ErrFatal wraps any error this package treats as unrecoverable: a
// collective termination per spec §7's policy ("recoverable conditions
// retry; unrecoverable conditions call a collective termination that
// prints diagnostic context from all ranks before aborting").
var ErrFatal = errors.New("decomp: fatal")

// Decomposer holds the long-lived state one rank carries across repeated
// decompositions: its communicator, its particle table, and the current
// top-node budget (grown on overflow and kept for the next call, since a
// workload that once needed a bigger budget is unlikely to shrink).
type Decomposer struct {
	Comm *cluster.Comm
	M    *particle.Manager
	Cfg  *config.Config

	topNodeBudget int
	perf          *telemetry.PerfCollector
}

// New creates a Decomposer seeded with the configured initial top-node
// budget (TopNodeAllocFactor * MaxPart, spec §6).
func New(c *cluster.Comm, m *particle.Manager, cfg *config.Config) *Decomposer {
	budget := int(cfg.TopTree.TopNodeAllocFactor * float64(cfg.Memory.MaxPart))
	if budget < 8 {
		budget = 8
	}
	return &Decomposer{
		Comm:          c,
		M:             m,
		Cfg:           cfg,
		topNodeBudget: budget,
		perf:          telemetry.NewPerfCollector(60),
	}
}

// Run executes one full decomposition and returns the diagnostics from it.
// A returned error wrapping ErrFatal means every rank should abort the
// process group; the caller is responsible for collecting and printing
// each rank's diagnostic context before doing so (spec §7).
func (d *Decomposer) Run() (telemetry.DecompStats, error) {
	d.perf.StartRun()
	defer d.perf.EndRun()

	var stats telemetry.DecompStats

	d.perf.StartPhase(telemetry.PhaseBoxWrap)
	wrapIntoBox(d.M, d.Cfg.Box.Size)

	d.perf.StartPhase(telemetry.PhaseGC)
	d.M.InvalidateForceTree()
	if _, err := d.M.CollectGarbage(); err != nil {
		return stats, fmt.Errorf("%w: garbage collection: %v", ErrFatal, err)
	}

	tree, attempts, err := d.buildTopTreeWithRetry()
	stats.BudgetAttempts = attempts
	stats.TopNodeBudget = d.topNodeBudget
	if err != nil {
		return stats, err
	}

	leaves := tree.Leaves()
	stats.NumLeaves = len(leaves)
	stats.AverageLeafCost = tree.AverageLeafCost()

	d.perf.StartPhase(telemetry.PhaseSplit)
	work, count := leafTables(tree)
	ntask := d.Comm.Size()
	ncpu := d.Cfg.Decomp.OverDecomp * ntask
	plan, err := domain.Split(work, count, ncpu, ntask, int64(d.Cfg.Memory.MaxPart))
	if err != nil {
		return stats, fmt.Errorf("%w: split: %v", ErrFatal, err)
	}
	stats.UsedFallbackSplit = plan.UsedFallback
	stats.MaxRankCount, stats.MinRankCount = rankCountSpread(plan.PerRankCount)
	stats.MaxRankWork, stats.WorkBalanceRatio = rankWorkSpread(plan, d.Cfg.Decomp.OverDecomp)

	owner := exchange.OwnerTable(plan)

	d.perf.StartPhase(telemetry.PhaseExchange)
	summary, err := exchange.Run(d.Comm, tree, owner, d.M, exchange.Config{
		FreeBytes: d.Cfg.Exchange.FreeBytes,
		MaxPart:   d.Cfg.Memory.MaxPart,
		MaxPartBh: d.Cfg.Memory.MaxPartBh,
	})
	if err != nil {
		return stats, fmt.Errorf("%w: exchange: %v", ErrFatal, err)
	}
	stats.ExchangeRounds = summary.Rounds
	stats.ParticlesMoved = summary.Exported
	stats.OverflowSheds = summary.Sheds

	d.perf.StartPhase(telemetry.PhaseRecount)
	counts := d.M.CountByType()
	stats.NumGas = counts[particle.TypeGas]
	stats.NumDM = counts[particle.TypeDM]
	stats.NumStar = counts[particle.TypeStar]
	stats.NumBH = counts[particle.TypeBlackHole]

	return stats, nil
}

// buildTopTreeWithRetry is spec §4.3/§4.2/§4.3's budget-overflow restart
// policy (spec §7 error kind 1): build, merge, summarize and adapt the top
// tree; on ErrBudgetOverflow from any step, grow the shared budget by
// RetryConfig.GrowthFactor and restart the whole sequence. Restarting the
// whole sequence rather than just the failed step matters because a
// bigger budget can change how far local refinement goes, which in turn
// changes what the merge and adaptation steps see.
func (d *Decomposer) buildTopTreeWithRetry() (*toptree.Tree, int, error) {
	ks, costs := d.particleKeysAndCosts()

	for attempt := 1; attempt <= d.Cfg.Retry.MaxAttempts; attempt++ {
		d.perf.StartPhase(telemetry.PhaseTopTree)
		local, localErr := toptree.BuildLocal(ks, costs, d.topNodeBudget)

		localOverflow := int64(0)
		if errors.Is(localErr, toptree.ErrBudgetOverflow) {
			localOverflow = 1
		} else if localErr != nil {
			return nil, attempt, fmt.Errorf("%w: top-tree local build: %v", ErrFatal, localErr)
		}
		anyOverflow := cluster.AllreduceSumInt64(d.Comm, cluster.TagBuildOverflow, []int64{localOverflow})[0]
		if anyOverflow > 0 {
			d.growBudget(attempt)
			continue
		}

		merged, err := toptree.Merge(d.Comm, local, d.topNodeBudget)
		if errors.Is(err, toptree.ErrBudgetOverflow) {
			d.growBudget(attempt)
			continue
		}
		if err != nil {
			return nil, attempt, fmt.Errorf("%w: top-tree merge: %v", ErrFatal, err)
		}

		d.perf.StartPhase(telemetry.PhaseSummarize)
		toptree.Summarize(d.Comm, merged, ks, costs)

		root := merged.Nodes[merged.Root()]
		ntask := d.Comm.Size()

		// Adapt's outcome is a pure function of the (now identical, just
		// broadcast) tree state, so — unlike BuildLocal and Merge — no
		// collective vote is needed to agree whether it overflowed: every
		// rank computes the same answer from the same inputs.
		if err := merged.Adapt(root.Count, root.Cost, d.Cfg.Decomp.OverDecomp, ntask, d.Cfg.TopTree.TopNodeFactor); err != nil {
			if errors.Is(err, toptree.ErrBudgetOverflow) {
				d.growBudget(attempt)
				continue
			}
			return nil, attempt, fmt.Errorf("%w: top-tree adapt: %v", ErrFatal, err)
		}

		return merged, attempt, nil
	}

	return nil, d.Cfg.Retry.MaxAttempts, fmt.Errorf("%w: top-node budget still overflowing after %d attempts (budget=%d)", ErrFatal, d.Cfg.Retry.MaxAttempts, d.topNodeBudget)
}

func (d *Decomposer) growBudget(attempt int) {
	newBudget := int(float64(d.topNodeBudget) * d.Cfg.Retry.GrowthFactor)
	if newBudget <= d.topNodeBudget {
		newBudget = d.topNodeBudget + 1
	}
	slog.Warn("top-node budget overflow, retrying with a larger budget",
		"attempt", attempt, "old_budget", d.topNodeBudget, "new_budget", newBudget)
	d.topNodeBudget = newBudget
}

func (d *Decomposer) particleKeysAndCosts() ([]peano.Key, []float64) {
	n := d.M.NumPart()
	keys := make([]peano.Key, n)
	costs := make([]float64, n)
	for i := 0; i < n; i++ {
		keys[i] = d.M.P[i].Key
		costs[i] = d.M.P[i].GravCost
	}
	return keys, costs
}

// wrapIntoBox moves every particle's position into the canonical periodic
// box [0, boxSize)^3 and recomputes its Peano key, since the key encodes
// an absolute cell in that box.
func wrapIntoBox(m *particle.Manager, boxSize float64) {
	n := m.NumPart()
	for i := 0; i < n; i++ {
		p := &m.P[i]
		p.Position.X = wrap(p.Position.X, boxSize)
		p.Position.Y = wrap(p.Position.Y, boxSize)
		p.Position.Z = wrap(p.Position.Z, boxSize)
		p.Key = peano.KeyOf(p.Position, boxSize)
	}
}

func wrap(v, boxSize float64) float64 {
	if boxSize <= 0 {
		return 0
	}
	r := v - boxSize*float64(int64(v/boxSize))
	if r < 0 {
		r += boxSize
	}
	if r >= boxSize {
		r -= boxSize
	}
	return r
}

func leafTables(tree *toptree.Tree) (work []float64, count []int64) {
	leaves := tree.Leaves()
	work = make([]float64, len(leaves))
	count = make([]int64, len(leaves))
	for i, idx := range leaves {
		work[i] = tree.Nodes[idx].Cost
		count[i] = tree.Nodes[idx].Count
	}
	return work, count
}

func rankCountSpread(perRank []int64) (max, min int64) {
	if len(perRank) == 0 {
		return 0, 0
	}
	max, min = perRank[0], perRank[0]
	for _, c := range perRank[1:] {
		if c > max {
			max = c
		}
		if c < min {
			min = c
		}
	}
	return max, min
}

// rankWorkSpread computes the max per-rank work total and the work-balance
// ratio max_rank(work)/avg(work) the testable property in spec §8 bounds
// by 1 + 1/OverDecomp + epsilon on uniform-density inputs.
func rankWorkSpread(plan domain.Plan, overDecomp int) (maxWork, ratio float64) {
	ntask := len(plan.PerRankCount)
	if ntask == 0 || overDecomp < 1 {
		return 0, 0
	}
	perRankWork := make([]float64, ntask)
	var total float64
	for i, seg := range plan.Segments {
		rank := plan.Assignment[i]
		perRankWork[rank] += seg.Work
		total += seg.Work
	}
	for _, w := range perRankWork {
		if w > maxWork {
			maxWork = w
		}
	}
	avg := total / float64(ntask)
	if avg > 0 {
		ratio = maxWork / avg
	}
	return maxWork, ratio
}
