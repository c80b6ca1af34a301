package backtest

import (
	"context"
	"time"
)

// PerformanceStats represents the result of one backtest simulation.
// TotalReturn, MaxDrawdown and WinRate are percentages (12.34 means 12.34%),
// MaxDrawdown is reported positive.
type PerformanceStats struct {
	SharpeRatio float64 `json:"sharpe_ratio"`
	TotalReturn float64 `json:"total_return"`
	MaxDrawdown float64 `json:"max_drawdown"`
	WinRate     float64 `json:"win_rate"`
	TradingDays int     `json:"trading_days"`
}

// Runner defines the backtest execution collaborator. Run must be
// idempotent: repeated calls with identical inputs return the same stats.
type Runner interface {
	Run(ctx context.Context, strategyID string, params map[string]float64, start, end time.Time, initialCapital float64) (*PerformanceStats, error)
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context, strategyID string, params map[string]float64, start, end time.Time, initialCapital float64) (*PerformanceStats, error)

// Run calls f
func (f RunnerFunc) Run(ctx context.Context, strategyID string, params map[string]float64, start, end time.Time, initialCapital float64) (*PerformanceStats, error) {
	return f(ctx, strategyID, params, start, end, initialCapital)
}
