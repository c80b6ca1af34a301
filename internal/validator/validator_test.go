package validator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"quantgate/internal/backtest"
	"quantgate/internal/config"
	"quantgate/internal/marketdata"
)

// fixedRunner returns isStats for train-length ranges and oosStats for
// test-length ranges
func fixedRunner(isStats, oosStats backtest.PerformanceStats) backtest.Runner {
	return backtest.RunnerFunc(func(ctx context.Context, strategyID string, params map[string]float64, start, end time.Time, initialCapital float64) (*backtest.PerformanceStats, error) {
		days := int(end.Sub(start).Hours() / 24)
		if days >= 60 {
			s := isStats
			return &s, nil
		}
		s := oosStats
		return &s, nil
	})
}

func testThresholds() config.ValidationConfig {
	return config.ValidationConfig{
		MinWindows:            2,
		MinOOSSharpe:          0.8,
		MaxAvgSharpeDecay:     0.5,
		MaxOOSDrawdownPct:     15.0,
		MinOOSWinRatePct:      52.0,
		WarnSharpeConsistency: 0.6,
	}
}

func testWindows() WindowConfig {
	return WindowConfig{TrainDays: 60, TestDays: 20, StepDays: 20}
}

func TestEvaluateDecayIdentity(t *testing.T) {
	runner := fixedRunner(
		backtest.PerformanceStats{SharpeRatio: 1.5, TotalReturn: 10, MaxDrawdown: 5, WinRate: 60, TradingDays: 60},
		backtest.PerformanceStats{SharpeRatio: 1.0, TotalReturn: 5, MaxDrawdown: 8, WinRate: 60, TradingDays: 20},
	)
	v := NewWalkForwardValidator(testWindows(), testThresholds(), runner, nil, nil, nil)

	start := date("2024-01-01")
	result, err := v.Evaluate(context.Background(), "strat", map[string]float64{"x": 1}, start, start.AddDate(0, 0, 150), 100000)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(result.Windows) != 4 {
		t.Fatalf("expected 4 windows, got %d", len(result.Windows))
	}
	for i, w := range result.Windows {
		// 衰减恒等式：decay = is - oos
		if w.SharpeDecay != w.ISSharpe-w.OOSSharpe {
			t.Errorf("window %d: sharpe decay %v != is-oos %v", i, w.SharpeDecay, w.ISSharpe-w.OOSSharpe)
		}
		if w.ReturnDecay != w.ISReturn-w.OOSReturn {
			t.Errorf("window %d: return decay mismatch", i)
		}
		if w.Regime != RegimeUnknown {
			t.Errorf("window %d: expected unknown regime without classifier, got %s", i, w.Regime)
		}
	}

	if result.AvgSharpeDecay != 0.5 {
		t.Errorf("expected avg sharpe decay 0.5, got %v", result.AvgSharpeDecay)
	}
	if result.OverfittingScore != 0.25 {
		t.Errorf("expected overfitting score 0.25, got %v", result.OverfittingScore)
	}
	if result.SharpeConsistency != 1.0 || result.ReturnConsistency != 1.0 {
		t.Errorf("expected full consistency, got %v / %v", result.SharpeConsistency, result.ReturnConsistency)
	}
	if !result.Passed {
		t.Errorf("expected pass, messages: %v", result.Messages)
	}
}

func TestEvaluateVerdictIndependence(t *testing.T) {
	// 每个阈值独立判定：只翻转一项，结论变FAIL且其余仍为PASS
	tests := []struct {
		name   string
		mutate func(*config.ValidationConfig)
		fail   string
	}{
		{"sharpe", func(c *config.ValidationConfig) { c.MinOOSSharpe = 1.2 }, "FAIL: mean OOS Sharpe"},
		{"decay", func(c *config.ValidationConfig) { c.MaxAvgSharpeDecay = 0.4 }, "FAIL: avg Sharpe decay"},
		{"drawdown", func(c *config.ValidationConfig) { c.MaxOOSDrawdownPct = 5 }, "FAIL: mean OOS drawdown"},
		{"win_rate", func(c *config.ValidationConfig) { c.MinOOSWinRatePct = 65 }, "FAIL: mean OOS win rate"},
	}

	runner := fixedRunner(
		backtest.PerformanceStats{SharpeRatio: 1.5, TotalReturn: 10, MaxDrawdown: 5, WinRate: 60, TradingDays: 60},
		backtest.PerformanceStats{SharpeRatio: 1.0, TotalReturn: 5, MaxDrawdown: 8, WinRate: 60, TradingDays: 20},
	)
	start := date("2024-01-01")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thresholds := testThresholds()
			tt.mutate(&thresholds)

			v := NewWalkForwardValidator(testWindows(), thresholds, runner, nil, nil, nil)
			result, err := v.Evaluate(context.Background(), "strat", nil, start, start.AddDate(0, 0, 150), 100000)
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}

			if result.Passed {
				t.Fatal("expected fail verdict")
			}
			failCount, passCount := 0, 0
			for _, msg := range result.Messages {
				if strings.HasPrefix(msg, "FAIL") {
					failCount++
					if !strings.Contains(msg, strings.TrimPrefix(tt.fail, "FAIL: ")) {
						t.Errorf("unexpected fail message: %s", msg)
					}
				}
				if strings.HasPrefix(msg, "PASS") {
					passCount++
				}
			}
			if failCount != 1 || passCount != 3 {
				t.Errorf("expected exactly 1 FAIL and 3 PASS, got %d/%d: %v", failCount, passCount, result.Messages)
			}
		})
	}
}

func TestEvaluateInsufficientWindows(t *testing.T) {
	runner := fixedRunner(
		backtest.PerformanceStats{SharpeRatio: 1.5, TradingDays: 60},
		backtest.PerformanceStats{SharpeRatio: 1.0, TradingDays: 20},
	)
	v := NewWalkForwardValidator(testWindows(), testThresholds(), runner, nil, nil, nil)

	// 跨度只够1个窗口，低于最少2个
	start := date("2024-01-01")
	result, err := v.Evaluate(context.Background(), "strat", nil, start, start.AddDate(0, 0, 85), 100000)
	if err != nil {
		t.Fatalf("insufficient data must not be an error: %v", err)
	}

	if !result.InsufficientData {
		t.Error("expected insufficient data flag")
	}
	if result.Passed {
		t.Error("insufficient data must never pass")
	}
	found := false
	for _, msg := range result.Messages {
		if strings.Contains(msg, "insufficient windows") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected insufficient windows message, got %v", result.Messages)
	}
}

func TestEvaluateWindowFailureSkipped(t *testing.T) {
	start := date("2024-01-01")
	runner := backtest.RunnerFunc(func(ctx context.Context, strategyID string, params map[string]float64, s, e time.Time, capital float64) (*backtest.PerformanceStats, error) {
		// 第一个窗口的训练段失败
		if s.Equal(start) {
			return nil, errors.New("missing data")
		}
		days := int(e.Sub(s).Hours() / 24)
		if days >= 60 {
			return &backtest.PerformanceStats{SharpeRatio: 1.5, TradingDays: 60}, nil
		}
		return &backtest.PerformanceStats{SharpeRatio: 1.0, WinRate: 60, TotalReturn: 5, MaxDrawdown: 8, TradingDays: 20}, nil
	})

	v := NewWalkForwardValidator(testWindows(), testThresholds(), runner, nil, nil, nil)
	result, err := v.Evaluate(context.Background(), "strat", nil, start, start.AddDate(0, 0, 150), 100000)
	if err != nil {
		t.Fatalf("window failure must not abort evaluation: %v", err)
	}
	if len(result.Windows) != 3 {
		t.Fatalf("expected 3 surviving windows, got %d", len(result.Windows))
	}
}

func TestEvaluateCancelled(t *testing.T) {
	runner := fixedRunner(backtest.PerformanceStats{}, backtest.PerformanceStats{})
	v := NewWalkForwardValidator(testWindows(), testThresholds(), runner, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := date("2024-01-01")
	if _, err := v.Evaluate(ctx, "strat", nil, start, start.AddDate(0, 0, 150), 100000); err == nil {
		t.Fatal("expected context cancellation error")
	}
}

func TestOverfittingScore(t *testing.T) {
	tests := []struct {
		decay float64
		want  float64
	}{
		{-1.0, 0},
		{0, 0},
		{0.5, 0.25},
		{1.0, 0.5},
		{2.0, 1.0},
		{4.0, 1.0},
	}
	for _, tt := range tests {
		if got := OverfittingScore(tt.decay); got != tt.want {
			t.Errorf("OverfittingScore(%v) = %v, want %v", tt.decay, got, tt.want)
		}
	}

	// 单调性
	prev := OverfittingScore(0)
	for d := 0.1; d <= 3.0; d += 0.1 {
		got := OverfittingScore(d)
		if got < prev {
			t.Fatalf("score decreased at decay %v", d)
		}
		prev = got
	}
}

// TestEvaluateRegimeShift runs a two-year scenario where the market turns
// from bull to bear halfway, and checks the regime-grouped aggregates
// expose the strategy's bear-market degradation.
func TestEvaluateRegimeShift(t *testing.T) {
	start := date("2023-01-01")
	totalDays := 730
	turn := 365

	series := backtest.NewSeriesRunner()
	provider := marketdata.NewStaticProvider()

	var returns []backtest.DailyReturn
	var closes []marketdata.DatedClose
	price := 100.0
	for d := 0; d < totalDays; d++ {
		day := start.AddDate(0, 0, d)

		if d < turn {
			price *= 1.003
		} else {
			price *= 0.997
		}
		closes = append(closes, marketdata.DatedClose{Date: day, Close: price})

		// 牛市期策略小赚，熊市期对称亏损
		var r float64
		if d < turn {
			if d%2 == 0 {
				r = 0.01
			} else {
				r = -0.002
			}
		} else {
			if d%2 == 0 {
				r = -0.01
			} else {
				r = 0.002
			}
		}
		returns = append(returns, backtest.DailyReturn{Date: day, Return: r})
	}
	series.SetSeries("strat", returns)
	provider.SetCloses("SPY", closes)

	regimes := NewRegimeClassifier(provider, "SPY", 5.0, 100.0, nil)

	thresholds := testThresholds()
	thresholds.MinOOSSharpe = -100
	thresholds.MaxAvgSharpeDecay = 100
	thresholds.MaxOOSDrawdownPct = 100
	thresholds.MinOOSWinRatePct = 0

	v := NewWalkForwardValidator(WindowConfig{TrainDays: 120, TestDays: 60, StepDays: 60}, thresholds, series, regimes, nil, nil)
	result, err := v.Evaluate(context.Background(), "strat", nil, start, start.AddDate(0, 0, totalDays), 100000)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	var bull, bear *RegimeStats
	for regime, stats := range result.RegimePerformance {
		if regime.IsBull() {
			bull = stats
		}
		if regime.IsBear() {
			bear = stats
		}
	}
	if bull == nil || bear == nil {
		t.Fatalf("expected bull and bear regime groups, got %v", result.RegimePerformance)
	}
	if bull.MeanOOSReturn <= 0 {
		t.Errorf("expected positive bull OOS return, got %v", bull.MeanOOSReturn)
	}
	if bear.MeanOOSReturn >= bull.MeanOOSReturn {
		t.Errorf("expected bear return %v below bull return %v", bear.MeanOOSReturn, bull.MeanOOSReturn)
	}
}
