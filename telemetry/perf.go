package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for one decomposition's step.
const (
	PhaseBoxWrap    = "box_wrap"
	PhaseGC         = "gc"
	PhaseTopTree    = "top_tree"
	PhaseSummarize  = "summarize"
	PhaseSplit      = "split"
	PhaseExchange   = "exchange"
	PhaseRecount    = "recount"
)

// PerfSample holds timing data for a single decomposition.
type PerfSample struct {
	TotalDuration time.Duration
	Phases        map[string]time.Duration
}

// PerfCollector tracks performance metrics over a rolling window of
// decompositions.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	totalStart    time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of decompositions to average over.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartRun begins timing a new decomposition.
func (p *PerfCollector) StartRun() {
	p.totalStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndRun finishes timing the current decomposition and records the sample.
func (p *PerfCollector) EndRun() {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	sample := PerfSample{
		TotalDuration: now.Sub(p.totalStart),
		Phases:        p.currentPhases,
	}

	p.samples[p.writeIndex] = sample
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgDuration time.Duration
	MinDuration time.Duration
	MaxDuration time.Duration
	PhaseAvg    map[string]time.Duration
	PhasePct    map[string]float64
	RunsPerSec  float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var total time.Duration
	var min, max time.Duration
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.TotalDuration
		if i == 0 || s.TotalDuration < min {
			min = s.TotalDuration
		}
		if s.TotalDuration > max {
			max = s.TotalDuration
		}
		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avg := total / time.Duration(p.sampleCount)

	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avg > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avg) * 100
		}
	}

	var perSec float64
	if avg > 0 {
		perSec = float64(time.Second) / float64(avg)
	}

	return PerfStats{
		AvgDuration: avg,
		MinDuration: min,
		MaxDuration: max,
		PhaseAvg:    phaseAvg,
		PhasePct:    phasePct,
		RunsPerSec:  perSec,
	}
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_us", s.AvgDuration.Microseconds(),
		"min_us", s.MinDuration.Microseconds(),
		"max_us", s.MaxDuration.Microseconds(),
		"runs_per_sec", s.RunsPerSec,
	}

	phases := []string{
		PhaseBoxWrap, PhaseGC, PhaseTopTree, PhaseSummarize,
		PhaseSplit, PhaseExchange, PhaseRecount,
	}
	for _, phase := range phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", int(pct*10)/10.0)
		}
	}

	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_us", s.AvgDuration.Microseconds()),
		slog.Int64("min_us", s.MinDuration.Microseconds()),
		slog.Int64("max_us", s.MaxDuration.Microseconds()),
		slog.Float64("runs_per_sec", s.RunsPerSec),
	}
	for phase, pct := range s.PhasePct {
		attrs = append(attrs, slog.Float64(phase+"_pct", pct))
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Tick           int32   `csv:"tick"`
	AvgUS          int64   `csv:"avg_us"`
	MinUS          int64   `csv:"min_us"`
	MaxUS          int64   `csv:"max_us"`
	RunsPerSec     float64 `csv:"runs_per_sec"`
	BoxWrapPct     float64 `csv:"box_wrap_pct"`
	GCPct          float64 `csv:"gc_pct"`
	TopTreePct     float64 `csv:"top_tree_pct"`
	SummarizePct   float64 `csv:"summarize_pct"`
	SplitPct       float64 `csv:"split_pct"`
	ExchangePct    float64 `csv:"exchange_pct"`
	RecountPct     float64 `csv:"recount_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(tick int32) PerfStatsCSV {
	return PerfStatsCSV{
		Tick:         tick,
		AvgUS:        s.AvgDuration.Microseconds(),
		MinUS:        s.MinDuration.Microseconds(),
		MaxUS:        s.MaxDuration.Microseconds(),
		RunsPerSec:   s.RunsPerSec,
		BoxWrapPct:   s.PhasePct[PhaseBoxWrap],
		GCPct:        s.PhasePct[PhaseGC],
		TopTreePct:   s.PhasePct[PhaseTopTree],
		SummarizePct: s.PhasePct[PhaseSummarize],
		SplitPct:     s.PhasePct[PhaseSplit],
		ExchangePct:  s.PhasePct[PhaseExchange],
		RecountPct:   s.PhasePct[PhaseRecount],
	}
}
