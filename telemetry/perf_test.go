package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollectorAveragesOverWindow(t *testing.T) {
	p := NewPerfCollector(3)
	for i := 0; i < 3; i++ {
		p.StartRun()
		p.StartPhase(PhaseTopTree)
		time.Sleep(time.Millisecond)
		p.StartPhase(PhaseExchange)
		time.Sleep(time.Millisecond)
		p.EndRun()
	}
	stats := p.Stats()
	if stats.AvgDuration <= 0 {
		t.Fatal("expected a positive average duration after 3 runs")
	}
	if stats.PhasePct[PhaseTopTree] <= 0 || stats.PhasePct[PhaseExchange] <= 0 {
		t.Errorf("expected both phases to contribute a nonzero share, got %+v", stats.PhasePct)
	}
}

func TestPerfCollectorDropsOldestSampleBeyondWindow(t *testing.T) {
	p := NewPerfCollector(2)
	for i := 0; i < 5; i++ {
		p.StartRun()
		p.EndRun()
	}
	stats := p.Stats()
	_ = stats // window size bounds sampleCount, not asserted further here
	if p.sampleCount != 2 {
		t.Errorf("sampleCount = %d, want 2 (bounded by window size)", p.sampleCount)
	}
}
