// Command decompose drives repeated domain decompositions over a
// simulated rank group, for exercising and benchmarking package decomp
// outside of its test suite.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/cosmosim/decomp/cluster"
	"github.com/cosmosim/decomp/config"
	"github.com/cosmosim/decomp/decomp"
	"github.com/cosmosim/decomp/particle"
	"github.com/cosmosim/decomp/peano"
	"github.com/cosmosim/decomp/telemetry"
)

var (
	configPath = flag.String("config", "", "Path to a YAML config file (embedded defaults used if empty)")
	ntask      = flag.Int("ntask", 4, "Number of simulated ranks")
	partPerTask = flag.Int("part-per-task", 20000, "Initial particle count seeded on each rank")
	ticks      = flag.Int("ticks", 10, "Number of repeated decompositions to run")
	seed       = flag.Int64("seed", 1, "Base RNG seed; rank r is seeded with seed+r")
	outDir     = flag.String("out", "", "Directory for CSV telemetry output (overrides config telemetry.output_dir if set)")
	logFile    = flag.String("logfile", "", "Write logs to file instead of stderr")
)

func main() {
	flag.Parse()

	if *logFile != "" {
		f, err := os.Create(*logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "decompose: opening logfile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		slog.SetDefault(slog.New(slog.NewTextHandler(f, nil)))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decompose: loading config: %v\n", err)
		os.Exit(1)
	}
	if *outDir != "" {
		cfg.Telemetry.OutputDir = *outDir
	}
	if err := peano.SetBits(cfg.TopTree.PeanoBits); err != nil {
		fmt.Fprintf(os.Stderr, "decompose: %v\n", err)
		os.Exit(1)
	}

	out, err := telemetry.NewOutputManager(cfg.Telemetry.OutputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decompose: opening telemetry output: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()
	if err := out.WriteConfig(cfg); err != nil {
		slog.Warn("writing config snapshot failed", "err", err)
	}

	if *ntask < 1 {
		fmt.Fprintln(os.Stderr, "decompose: -ntask must be >= 1")
		os.Exit(1)
	}

	decomposers := make([]*decomp.Decomposer, *ntask)
	errs := cluster.Run(*ntask, func(c *cluster.Comm) error {
		m := particle.UniformPopulation(*partPerTask, cfg.Memory.MaxPart, cfg.Memory.MaxPartBh, cfg.Box.Size, *seed+int64(c.Rank()))
		decomposers[c.Rank()] = decomp.New(c, m, cfg)
		return nil
	})
	for r, err := range errs {
		if err != nil {
			fmt.Fprintf(os.Stderr, "decompose: seeding rank %d: %v\n", r, err)
			os.Exit(1)
		}
	}

	for tick := 0; tick < *ticks; tick++ {
		tickStats := make([]telemetry.DecompStats, *ntask)
		errs := cluster.Run(*ntask, func(c *cluster.Comm) error {
			stats, err := decomposers[c.Rank()].Run()
			if err != nil {
				return err
			}
			stats.Tick = int32(tick)
			tickStats[c.Rank()] = stats
			return nil
		})
		for r, err := range errs {
			if err != nil {
				fmt.Fprintf(os.Stderr, "decompose: tick %d rank %d: %v\n", tick, r, err)
				os.Exit(1)
			}
		}

		logTick(tick, tickStats)
		for _, stats := range tickStats {
			if err := out.WriteDecompStats(stats); err != nil {
				slog.Warn("writing decomp stats failed", "err", err)
			}
		}
	}
}

// logTick prints one dashboard line per tick, summarizing the spread
// across ranks rather than dumping every rank's full stats.
func logTick(tick int, stats []telemetry.DecompStats) {
	if len(stats) == 0 {
		return
	}
	var maxRounds, maxAttempts, totalMoved, totalSheds int
	var maxLeaves int
	var maxRatio float64
	for _, s := range stats {
		if s.ExchangeRounds > maxRounds {
			maxRounds = s.ExchangeRounds
		}
		if s.BudgetAttempts > maxAttempts {
			maxAttempts = s.BudgetAttempts
		}
		if s.NumLeaves > maxLeaves {
			maxLeaves = s.NumLeaves
		}
		if s.WorkBalanceRatio > maxRatio {
			maxRatio = s.WorkBalanceRatio
		}
		totalMoved += s.ParticlesMoved
		totalSheds += s.OverflowSheds
	}
	slog.Info("decomposition tick complete",
		"tick", tick,
		"max_leaves", maxLeaves,
		"max_budget_attempts", maxAttempts,
		"max_exchange_rounds", maxRounds,
		"max_work_balance_ratio", maxRatio,
		"total_particles_moved", totalMoved,
		"total_overflow_sheds", totalSheds,
	)
}
