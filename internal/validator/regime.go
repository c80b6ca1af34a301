package validator

import (
	"context"
	"time"

	"quantgate/internal/backtest"
	"quantgate/internal/logger"
	"quantgate/internal/marketdata"
)

// Regime represents a coarse market regime label
type Regime string

const (
	RegimeBullLowVol      Regime = "bull_low_vol"
	RegimeBullHighVol     Regime = "bull_high_vol"
	RegimeBearLowVol      Regime = "bear_low_vol"
	RegimeBearHighVol     Regime = "bear_high_vol"
	RegimeSidewaysHighVol Regime = "sideways_high_vol"
	RegimeSideways        Regime = "sideways"
	RegimeUnknown         Regime = "unknown"
)

// IsBull reports whether the regime is bull-labeled
func (r Regime) IsBull() bool {
	return r == RegimeBullLowVol || r == RegimeBullHighVol
}

// IsBear reports whether the regime is bear-labeled
func (r Regime) IsBear() bool {
	return r == RegimeBearLowVol || r == RegimeBearHighVol
}

// RegimeClassifier labels date ranges with a market regime from a
// benchmark close series
type RegimeClassifier struct {
	provider           marketdata.Provider
	symbol             string
	returnThresholdPct float64
	volThresholdPct    float64
	logger             logger.Logger
}

// NewRegimeClassifier creates a new regime classifier
func NewRegimeClassifier(provider marketdata.Provider, symbol string, returnThresholdPct, volThresholdPct float64, log logger.Logger) *RegimeClassifier {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if returnThresholdPct <= 0 {
		returnThresholdPct = 5.0
	}
	if volThresholdPct <= 0 {
		volThresholdPct = 22.5
	}
	return &RegimeClassifier{
		provider:           provider,
		symbol:             symbol,
		returnThresholdPct: returnThresholdPct,
		volThresholdPct:    volThresholdPct,
		logger:             log,
	}
}

// ClassifyRange fetches benchmark history for the range and classifies
// it. Missing data yields RegimeUnknown, never an error.
func (c *RegimeClassifier) ClassifyRange(ctx context.Context, start, end time.Time) Regime {
	if c.provider == nil {
		return RegimeUnknown
	}

	closes, err := c.provider.History(ctx, c.symbol, start, end)
	if err != nil {
		c.logger.Warn("benchmark history fetch failed",
			"symbol", c.symbol,
			"start", start.Format("2006-01-02"),
			"end", end.Format("2006-01-02"),
			"error", err.Error(),
		)
		return RegimeUnknown
	}
	if len(closes) < 2 {
		return RegimeUnknown
	}

	// 收盘价转日收益率
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}

	return c.Classify(returns)
}

// Classify labels a daily return series. Ambiguous cases fall to the
// sideways default.
func (c *RegimeClassifier) Classify(returns []float64) Regime {
	if len(returns) < 2 {
		return RegimeUnknown
	}

	// 窗口总收益率
	cumulative := 1.0
	for _, r := range returns {
		cumulative *= 1 + r
	}
	totalReturnPct := (cumulative - 1) * 100

	highVol := backtest.AnnualizedVolatility(returns) > c.volThresholdPct

	switch {
	case totalReturnPct > c.returnThresholdPct:
		if highVol {
			return RegimeBullHighVol
		}
		return RegimeBullLowVol
	case totalReturnPct < -c.returnThresholdPct:
		if highVol {
			return RegimeBearHighVol
		}
		return RegimeBearLowVol
	default:
		if highVol {
			return RegimeSidewaysHighVol
		}
		return RegimeSideways
	}
}
