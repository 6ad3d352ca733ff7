// Package telemetry provides decomposition health tracking and CSV export.
package telemetry

import "log/slog"

// DecompStats holds the per-decomposition diagnostic record (one row per
// call to the top-level control flow): how many top-node budget retries it
// took, the resulting leaf table and rank load spread, and how many
// exchange rounds it took to drain every rank's residue.
type DecompStats struct {
	Tick int32 `csv:"tick"`

	// Top-tree sizing
	BudgetAttempts int     `csv:"budget_attempts"`
	TopNodeBudget  int     `csv:"top_node_budget"`
	NumLeaves      int     `csv:"num_leaves"`
	AverageLeafCost float64 `csv:"avg_leaf_cost"`

	// Split / assign outcome
	UsedFallbackSplit bool    `csv:"used_fallback_split"`
	MaxRankCount      int64   `csv:"max_rank_count"`
	MinRankCount      int64   `csv:"min_rank_count"`
	MaxRankWork       float64 `csv:"max_rank_work"`
	WorkBalanceRatio  float64 `csv:"work_balance_ratio"` // max_rank(work) / avg(work)

	// Exchange
	ExchangeRounds   int `csv:"exchange_rounds"`
	ParticlesMoved   int `csv:"particles_moved"`
	OverflowSheds    int `csv:"overflow_sheds"`

	// Population after recount
	NumGas   int64 `csv:"num_gas"`
	NumDM    int64 `csv:"num_dm"`
	NumStar  int64 `csv:"num_star"`
	NumBH    int64 `csv:"num_bh"`
}

// LogValue implements slog.LogValuer for structured logging.
func (s DecompStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("tick", int(s.Tick)),
		slog.Int("budget_attempts", s.BudgetAttempts),
		slog.Int("top_node_budget", s.TopNodeBudget),
		slog.Int("num_leaves", s.NumLeaves),
		slog.Float64("avg_leaf_cost", s.AverageLeafCost),
		slog.Bool("used_fallback_split", s.UsedFallbackSplit),
		slog.Int64("max_rank_count", s.MaxRankCount),
		slog.Int64("min_rank_count", s.MinRankCount),
		slog.Float64("max_rank_work", s.MaxRankWork),
		slog.Float64("work_balance_ratio", s.WorkBalanceRatio),
		slog.Int("exchange_rounds", s.ExchangeRounds),
		slog.Int("particles_moved", s.ParticlesMoved),
		slog.Int("overflow_sheds", s.OverflowSheds),
		slog.Int64("num_gas", s.NumGas),
		slog.Int64("num_dm", s.NumDM),
		slog.Int64("num_star", s.NumStar),
		slog.Int64("num_bh", s.NumBH),
	)
}

// LogStats logs the decomposition stats using slog.
func (s DecompStats) LogStats() {
	slog.Info("decomp",
		"tick", s.Tick,
		"budget_attempts", s.BudgetAttempts,
		"num_leaves", s.NumLeaves,
		"used_fallback_split", s.UsedFallbackSplit,
		"max_rank_count", s.MaxRankCount,
		"min_rank_count", s.MinRankCount,
		"work_balance_ratio", s.WorkBalanceRatio,
		"exchange_rounds", s.ExchangeRounds,
		"particles_moved", s.ParticlesMoved,
		"overflow_sheds", s.OverflowSheds,
	)
}
