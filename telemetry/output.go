package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/cosmosim/decomp/config"
)

// OutputManager handles structured experiment output with CSV logging.
type OutputManager struct {
	dir      string
	decompFile *os.File
	perfFile *os.File

	decompHeaderWritten bool
	perfHeaderWritten   bool
}

// NewOutputManager creates a new output manager and initializes the output
// directory. Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	decompPath := filepath.Join(dir, "decomp.csv")
	f, err := os.Create(decompPath)
	if err != nil {
		return nil, fmt.Errorf("creating decomp.csv: %w", err)
	}
	om.decompFile = f

	perfPath := filepath.Join(dir, "perf.csv")
	f, err = os.Create(perfPath)
	if err != nil {
		om.decompFile.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfFile = f

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	configPath := filepath.Join(om.dir, "config.yaml")
	return cfg.WriteYAML(configPath)
}

// WriteDecompStats writes a decomposition stats record to decomp.csv.
func (om *OutputManager) WriteDecompStats(stats DecompStats) error {
	if om == nil {
		return nil
	}

	records := []DecompStats{stats}
	if !om.decompHeaderWritten {
		if err := gocsv.Marshal(records, om.decompFile); err != nil {
			return fmt.Errorf("writing decomp stats: %w", err)
		}
		om.decompHeaderWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, om.decompFile); err != nil {
			return fmt.Errorf("writing decomp stats: %w", err)
		}
	}
	return nil
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, tick int32) error {
	if om == nil {
		return nil
	}

	csvRecord := stats.ToCSV(tick)
	records := []PerfStatsCSV{csvRecord}
	if !om.perfHeaderWritten {
		if err := gocsv.Marshal(records, om.perfFile); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
		om.perfHeaderWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, om.perfFile); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	if om.decompFile != nil {
		if err := om.decompFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if om.perfFile != nil {
		if err := om.perfFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
