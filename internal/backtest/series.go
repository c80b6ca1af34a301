package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// DailyReturn represents one day of strategy returns
type DailyReturn struct {
	Date   time.Time
	Return float64 // fractional, 0.01 = 1%
}

// SeriesRunner is a deterministic Runner backed by a precomputed daily
// return series. It simulates a strategy by replaying the stored returns
// for the requested range, optionally scaled by a "leverage" parameter.
// It exists for wiring tests and offline evaluation; production callers
// plug in a real backtest engine behind the Runner interface.
type SeriesRunner struct {
	series map[string][]DailyReturn
}

// NewSeriesRunner creates a new series-backed runner
func NewSeriesRunner() *SeriesRunner {
	return &SeriesRunner{
		series: make(map[string][]DailyReturn),
	}
}

// SetSeries registers the return series for a strategy, sorted by date
func (r *SeriesRunner) SetSeries(strategyID string, returns []DailyReturn) {
	sorted := make([]DailyReturn, len(returns))
	copy(sorted, returns)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	r.series[strategyID] = sorted
}

// Run replays the stored returns between start (inclusive) and end
// (exclusive) and computes performance statistics
func (r *SeriesRunner) Run(ctx context.Context, strategyID string, params map[string]float64, start, end time.Time, initialCapital float64) (*PerformanceStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	series, ok := r.series[strategyID]
	if !ok {
		return nil, fmt.Errorf("no return series for strategy: %s", strategyID)
	}

	leverage := 1.0
	if v, ok := params["leverage"]; ok && v > 0 {
		leverage = v
	}

	var returns []float64
	for _, d := range series {
		if d.Date.Before(start) || !d.Date.Before(end) {
			continue
		}
		returns = append(returns, d.Return*leverage)
	}

	if len(returns) == 0 {
		return nil, fmt.Errorf("no data for strategy %s in range %s..%s",
			strategyID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	return CalculatePerformanceStats(returns), nil
}
