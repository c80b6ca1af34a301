package validator

import (
	"context"
	"fmt"
	"math"
	"time"

	"quantgate/internal/backtest"
	"quantgate/internal/config"
	"quantgate/internal/logger"
	"quantgate/internal/monitoring"
)

// WalkForwardValidator drives window generation, backtest execution and
// regime classification across all folds and renders a pass/fail verdict
// against the configured thresholds
type WalkForwardValidator struct {
	windows    WindowConfig
	thresholds config.ValidationConfig
	runner     backtest.Runner
	regimes    *RegimeClassifier
	logger     logger.Logger
	metrics    *monitoring.Metrics
}

// NewWalkForwardValidator creates a new validator. regimes and metrics
// may be nil; missing regimes label every window RegimeUnknown.
func NewWalkForwardValidator(windows WindowConfig, thresholds config.ValidationConfig, runner backtest.Runner, regimes *RegimeClassifier, log logger.Logger, metrics *monitoring.Metrics) *WalkForwardValidator {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &WalkForwardValidator{
		windows:    windows,
		thresholds: thresholds,
		runner:     runner,
		regimes:    regimes,
		logger:     log,
		metrics:    metrics,
	}
}

// Evaluate runs the full walk-forward matrix for one parameter set.
// Insufficient data is reported through the result, never as an error;
// the only error returned is context cancellation.
func (v *WalkForwardValidator) Evaluate(ctx context.Context, strategyID string, params map[string]float64, start, end time.Time, initialCapital float64) (*MatrixResults, error) {
	started := time.Now()

	result := &MatrixResults{
		StrategyID:        strategyID,
		EvaluatedAt:       time.Now().UTC(),
		RegimePerformance: make(map[Regime]*RegimeStats),
	}

	spans := GenerateWindows(v.windows, start, end)
	failures := 0

	for i, span := range spans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		window, err := v.evaluateWindow(ctx, strategyID, params, i, span, initialCapital)
		if err != nil {
			// 单窗口失败只跳过该窗口，绝不中断整体评估
			failures++
			v.logger.Warn("window evaluation failed, skipping",
				"strategy", strategyID,
				"window", i,
				"train", fmt.Sprintf("%s..%s", span.TrainStart.Format("2006-01-02"), span.TrainEnd.Format("2006-01-02")),
				"test", fmt.Sprintf("%s..%s", span.TestStart.Format("2006-01-02"), span.TestEnd.Format("2006-01-02")),
				"error", err.Error(),
			)
			continue
		}
		result.Windows = append(result.Windows, *window)
	}

	v.aggregate(result)

	if len(result.Windows) < v.thresholds.MinWindows {
		result.InsufficientData = true
		result.Passed = false
		result.Messages = append(result.Messages,
			fmt.Sprintf("FAIL: insufficient windows: %d < %d", len(result.Windows), v.thresholds.MinWindows))
	} else {
		v.applyThresholds(result)
	}

	v.metrics.RecordEvaluation(strategyID, result.Passed, len(result.Windows), failures, time.Since(started))
	v.logger.Info("walk-forward evaluation completed",
		"strategy", strategyID,
		"windows", len(result.Windows),
		"failures", failures,
		"mean_oos_sharpe", result.MeanOOSSharpe,
		"avg_sharpe_decay", result.AvgSharpeDecay,
		"passed", result.Passed,
	)

	return result, nil
}

// evaluateWindow runs one in-sample and one out-of-sample backtest and
// builds the fold record
func (v *WalkForwardValidator) evaluateWindow(ctx context.Context, strategyID string, params map[string]float64, id int, span Span, initialCapital float64) (*WalkForwardWindow, error) {
	isStats, err := v.runner.Run(ctx, strategyID, params, span.TrainStart, span.TrainEnd, initialCapital)
	if err != nil {
		return nil, fmt.Errorf("in-sample backtest: %w", err)
	}

	oosStats, err := v.runner.Run(ctx, strategyID, params, span.TestStart, span.TestEnd, initialCapital)
	if err != nil {
		return nil, fmt.Errorf("out-of-sample backtest: %w", err)
	}

	regime := RegimeUnknown
	if v.regimes != nil {
		regime = v.regimes.ClassifyRange(ctx, span.TestStart, span.TestEnd)
	}

	paramsCopy := make(map[string]float64, len(params))
	for k, val := range params {
		paramsCopy[k] = val
	}

	return &WalkForwardWindow{
		ID:          id,
		TrainStart:  span.TrainStart,
		TrainEnd:    span.TrainEnd,
		TestStart:   span.TestStart,
		TestEnd:     span.TestEnd,
		TrainDays:   isStats.TradingDays,
		TestDays:    oosStats.TradingDays,
		ISSharpe:    isStats.SharpeRatio,
		ISReturn:    isStats.TotalReturn,
		ISDrawdown:  isStats.MaxDrawdown,
		ISWinRate:   isStats.WinRate,
		OOSSharpe:   oosStats.SharpeRatio,
		OOSReturn:   oosStats.TotalReturn,
		OOSDrawdown: oosStats.MaxDrawdown,
		OOSWinRate:  oosStats.WinRate,
		SharpeDecay: isStats.SharpeRatio - oosStats.SharpeRatio,
		ReturnDecay: isStats.TotalReturn - oosStats.TotalReturn,
		Regime:      regime,
		Params:      paramsCopy,
	}, nil
}

// aggregate computes matrix-level statistics from the completed windows
func (v *WalkForwardValidator) aggregate(result *MatrixResults) {
	n := len(result.Windows)
	if n == 0 {
		return
	}

	var sumSharpe, sumReturn, sumDrawdown, sumWinRate, sumDecay float64
	positiveSharpe, positiveReturn := 0, 0

	for _, w := range result.Windows {
		sumSharpe += w.OOSSharpe
		sumReturn += w.OOSReturn
		sumDrawdown += w.OOSDrawdown
		sumWinRate += w.OOSWinRate
		sumDecay += w.SharpeDecay
		if w.OOSSharpe > 0 {
			positiveSharpe++
		}
		if w.OOSReturn > 0 {
			positiveReturn++
		}
	}

	fn := float64(n)
	result.MeanOOSSharpe = sumSharpe / fn
	result.MeanOOSReturn = sumReturn / fn
	result.MeanOOSDrawdown = sumDrawdown / fn
	result.MeanOOSWinRate = sumWinRate / fn
	result.AvgSharpeDecay = sumDecay / fn
	result.SharpeConsistency = float64(positiveSharpe) / fn
	result.ReturnConsistency = float64(positiveReturn) / fn
	result.OverfittingScore = OverfittingScore(result.AvgSharpeDecay)

	// 标准差至少需要2个窗口
	if n >= 2 {
		variance := 0.0
		for _, w := range result.Windows {
			diff := w.OOSSharpe - result.MeanOOSSharpe
			variance += diff * diff
		}
		result.StdOOSSharpe = math.Sqrt(variance / fn)
	}

	// 按市场状态分组聚合
	for _, w := range result.Windows {
		stats, ok := result.RegimePerformance[w.Regime]
		if !ok {
			stats = &RegimeStats{}
			result.RegimePerformance[w.Regime] = stats
		}
		stats.Windows++
		stats.MeanOOSSharpe += w.OOSSharpe
		stats.MeanOOSReturn += w.OOSReturn
		stats.MeanOOSDrawdown += w.OOSDrawdown
		stats.MeanOOSWinRate += w.OOSWinRate
	}
	for _, stats := range result.RegimePerformance {
		c := float64(stats.Windows)
		stats.MeanOOSSharpe /= c
		stats.MeanOOSReturn /= c
		stats.MeanOOSDrawdown /= c
		stats.MeanOOSWinRate /= c
	}
}

// applyThresholds evaluates every configured check independently; the
// verdict is the AND of all checks and every message is retained
func (v *WalkForwardValidator) applyThresholds(result *MatrixResults) {
	passed := true

	if result.MeanOOSSharpe >= v.thresholds.MinOOSSharpe {
		result.Messages = append(result.Messages,
			fmt.Sprintf("PASS: mean OOS Sharpe %.2f >= %.2f", result.MeanOOSSharpe, v.thresholds.MinOOSSharpe))
	} else {
		passed = false
		result.Messages = append(result.Messages,
			fmt.Sprintf("FAIL: mean OOS Sharpe %.2f < %.2f", result.MeanOOSSharpe, v.thresholds.MinOOSSharpe))
	}

	if result.AvgSharpeDecay <= v.thresholds.MaxAvgSharpeDecay {
		result.Messages = append(result.Messages,
			fmt.Sprintf("PASS: avg Sharpe decay %.2f <= %.2f", result.AvgSharpeDecay, v.thresholds.MaxAvgSharpeDecay))
	} else {
		passed = false
		result.Messages = append(result.Messages,
			fmt.Sprintf("FAIL: avg Sharpe decay %.2f > %.2f", result.AvgSharpeDecay, v.thresholds.MaxAvgSharpeDecay))
	}

	if result.MeanOOSDrawdown <= v.thresholds.MaxOOSDrawdownPct {
		result.Messages = append(result.Messages,
			fmt.Sprintf("PASS: mean OOS drawdown %.2f%% <= %.2f%%", result.MeanOOSDrawdown, v.thresholds.MaxOOSDrawdownPct))
	} else {
		passed = false
		result.Messages = append(result.Messages,
			fmt.Sprintf("FAIL: mean OOS drawdown %.2f%% > %.2f%%", result.MeanOOSDrawdown, v.thresholds.MaxOOSDrawdownPct))
	}

	if result.MeanOOSWinRate >= v.thresholds.MinOOSWinRatePct {
		result.Messages = append(result.Messages,
			fmt.Sprintf("PASS: mean OOS win rate %.2f%% >= %.2f%%", result.MeanOOSWinRate, v.thresholds.MinOOSWinRatePct))
	} else {
		passed = false
		result.Messages = append(result.Messages,
			fmt.Sprintf("FAIL: mean OOS win rate %.2f%% < %.2f%%", result.MeanOOSWinRate, v.thresholds.MinOOSWinRatePct))
	}

	// 一致性不足只告警，不影响验证结论
	if result.SharpeConsistency < v.thresholds.WarnSharpeConsistency {
		result.Messages = append(result.Messages,
			fmt.Sprintf("WARN: sharpe consistency %.2f below %.2f", result.SharpeConsistency, v.thresholds.WarnSharpeConsistency))
	}

	result.Passed = passed
}

// OverfittingScore maps average Sharpe decay to a bounded [0,1] score; a
// decay of 2.0 or more saturates at 1.0
func OverfittingScore(avgSharpeDecay float64) float64 {
	score := avgSharpeDecay / 2
	return math.Max(0, math.Min(1, score))
}
