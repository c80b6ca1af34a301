package validator

import (
	"time"
)

// WindowConfig represents walk-forward window generation parameters.
// The embargo is a gap between train and test ranges; it is either a
// fixed day count or a percentage of the total span.
type WindowConfig struct {
	TrainDays   int     `json:"train_days" yaml:"train_days"`
	TestDays    int     `json:"test_days" yaml:"test_days"`
	StepDays    int     `json:"step_days" yaml:"step_days"`
	EmbargoDays int     `json:"embargo_days" yaml:"embargo_days"`
	EmbargoPct  float64 `json:"embargo_pct" yaml:"embargo_pct"`
}

// Span represents one train/test window pair
type Span struct {
	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	TestStart  time.Time `json:"test_start"`
	TestEnd    time.Time `json:"test_end"`
}

// EffectiveEmbargoDays resolves the embargo to a day count for the given
// overall span. A fixed day count takes precedence over the percentage.
func (c WindowConfig) EffectiveEmbargoDays(start, end time.Time) int {
	if c.EmbargoDays > 0 {
		return c.EmbargoDays
	}
	if c.EmbargoPct > 0 {
		totalDays := int(end.Sub(start).Hours() / 24)
		return int(c.EmbargoPct / 100 * float64(totalDays))
	}
	return 0
}

// GenerateWindows emits train/test window pairs in ascending chronological
// order. A span shorter than train+embargo+test yields zero windows; the
// caller treats that as insufficient data, not as an error.
func GenerateWindows(cfg WindowConfig, start, end time.Time) []Span {
	if cfg.TrainDays <= 0 || cfg.TestDays <= 0 || cfg.StepDays <= 0 {
		return nil
	}

	embargo := cfg.EffectiveEmbargoDays(start, end)

	var windows []Span
	trainStart := start
	for {
		trainEnd := trainStart.AddDate(0, 0, cfg.TrainDays)
		testStart := trainEnd.AddDate(0, 0, embargo)
		testEnd := testStart.AddDate(0, 0, cfg.TestDays)
		if testEnd.After(end) {
			break
		}
		windows = append(windows, Span{
			TrainStart: trainStart,
			TrainEnd:   trainEnd,
			TestStart:  testStart,
			TestEnd:    testEnd,
		})
		trainStart = trainStart.AddDate(0, 0, cfg.StepDays)
	}
	return windows
}
