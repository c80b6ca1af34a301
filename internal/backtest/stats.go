package backtest

import "math"

// annualization factor for daily returns
const tradingDaysPerYear = 252.0

// CalculatePerformanceStats computes performance statistics from a series
// of daily returns (fractional, 0.01 = 1%)
func CalculatePerformanceStats(returns []float64) *PerformanceStats {
	if len(returns) == 0 {
		return &PerformanceStats{}
	}

	// 计算总收益率（复利）
	cumulative := 1.0
	for _, r := range returns {
		cumulative *= 1 + r
	}
	totalReturn := (cumulative - 1) * 100

	// 计算年化夏普比率
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns))

	sharpe := 0.0
	if variance > 0 {
		sharpe = mean / math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
	}

	// 计算最大回撤
	maxDrawdown := 0.0
	peak := 1.0
	equity := 1.0
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		drawdown := (peak - equity) / peak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}

	// 计算胜率
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	winRate := float64(wins) / float64(len(returns)) * 100

	return &PerformanceStats{
		SharpeRatio: sharpe,
		TotalReturn: totalReturn,
		MaxDrawdown: maxDrawdown * 100,
		WinRate:     winRate,
		TradingDays: len(returns),
	}
}

// AnnualizedVolatility computes annualized volatility in percent from
// daily returns
func AnnualizedVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear) * 100
}
