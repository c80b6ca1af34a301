package validator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WalkForwardWindow represents one completed evaluation fold. Immutable
// once produced.
type WalkForwardWindow struct {
	ID         int       `json:"id"`
	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	TestStart  time.Time `json:"test_start"`
	TestEnd    time.Time `json:"test_end"`
	TrainDays  int       `json:"train_days"`
	TestDays   int       `json:"test_days"`

	// In-sample metrics
	ISSharpe   float64 `json:"is_sharpe"`
	ISReturn   float64 `json:"is_return"`
	ISDrawdown float64 `json:"is_drawdown"`
	ISWinRate  float64 `json:"is_win_rate"`

	// Out-of-sample metrics
	OOSSharpe   float64 `json:"oos_sharpe"`
	OOSReturn   float64 `json:"oos_return"`
	OOSDrawdown float64 `json:"oos_drawdown"`
	OOSWinRate  float64 `json:"oos_win_rate"`

	// Decay metrics, in-sample minus out-of-sample
	SharpeDecay float64 `json:"sharpe_decay"`
	ReturnDecay float64 `json:"return_decay"`

	Regime Regime             `json:"regime"`
	Params map[string]float64 `json:"params"`
}

// RegimeStats represents aggregate out-of-sample metrics for the windows
// falling in one regime
type RegimeStats struct {
	Windows         int     `json:"windows"`
	MeanOOSSharpe   float64 `json:"mean_oos_sharpe"`
	MeanOOSReturn   float64 `json:"mean_oos_return"`
	MeanOOSDrawdown float64 `json:"mean_oos_drawdown"`
	MeanOOSWinRate  float64 `json:"mean_oos_win_rate"`
}

// MatrixResults represents the output of one full walk-forward validation
// run across all windows
type MatrixResults struct {
	StrategyID  string              `json:"strategy_id"`
	EvaluatedAt time.Time           `json:"evaluated_at"`
	Windows     []WalkForwardWindow `json:"windows"`

	MeanOOSSharpe   float64 `json:"mean_oos_sharpe"`
	StdOOSSharpe    float64 `json:"std_oos_sharpe"`
	MeanOOSReturn   float64 `json:"mean_oos_return"`
	MeanOOSDrawdown float64 `json:"mean_oos_drawdown"`
	MeanOOSWinRate  float64 `json:"mean_oos_win_rate"`

	SharpeConsistency float64 `json:"sharpe_consistency"`
	ReturnConsistency float64 `json:"return_consistency"`
	AvgSharpeDecay    float64 `json:"avg_sharpe_decay"`
	OverfittingScore  float64 `json:"overfitting_score"`

	RegimePerformance map[Regime]*RegimeStats `json:"regime_performance"`

	Passed           bool     `json:"passed"`
	InsufficientData bool     `json:"insufficient_data"`
	Messages         []string `json:"messages"`
}

// Export serializes the full result, sufficient to reproduce the report
// without re-running the evaluation
func (r *MatrixResults) Export() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to export results: %w", err)
	}
	return data, nil
}

// Report renders a human-readable summary
func (r *MatrixResults) Report() string {
	var b strings.Builder

	verdict := "FAILED"
	if r.Passed {
		verdict = "PASSED"
	}
	fmt.Fprintf(&b, "Walk-forward validation: %s [%s]\n", r.StrategyID, verdict)
	fmt.Fprintf(&b, "Windows: %d  Mean OOS Sharpe: %.2f (std %.2f)  Avg decay: %.2f  Overfitting: %.2f\n",
		len(r.Windows), r.MeanOOSSharpe, r.StdOOSSharpe, r.AvgSharpeDecay, r.OverfittingScore)
	fmt.Fprintf(&b, "Consistency: sharpe %.0f%%, return %.0f%%\n",
		r.SharpeConsistency*100, r.ReturnConsistency*100)

	for _, w := range r.Windows {
		fmt.Fprintf(&b, "  #%d %s..%s OOS sharpe %.2f decay %.2f return %.2f%% regime %s\n",
			w.ID,
			w.TestStart.Format("2006-01-02"), w.TestEnd.Format("2006-01-02"),
			w.OOSSharpe, w.SharpeDecay, w.OOSReturn, w.Regime)
	}
	for _, msg := range r.Messages {
		fmt.Fprintf(&b, "  %s\n", msg)
	}
	return b.String()
}
