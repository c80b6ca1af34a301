package tracker

import (
	"context"
	"fmt"
	"time"
)

// report windows: rolling statistics over the last 10 records, trend
// from the most recent 5 vs the prior 5
const (
	reportWindow = 10
	trendWindow  = 5
)

// Trend represents the direction of recent divergence
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// DivergenceReport represents rolling divergence statistics for one
// strategy
type DivergenceReport struct {
	Strategy    string    `json:"strategy"`
	GeneratedAt time.Time `json:"generated_at"`
	Records     int       `json:"records"`

	MeanSharpeDivergence   float64 `json:"mean_sharpe_divergence"`
	MeanReturnDivergence   float64 `json:"mean_return_divergence"`
	MeanDrawdownDivergence float64 `json:"mean_drawdown_divergence"`
	WarningCount           int     `json:"warning_count"`
	CriticalCount          int     `json:"critical_count"`

	Trend Trend `json:"trend"`
}

// DivergenceReport computes rolling statistics over the most recent
// records plus a trend classification
func (t *Tracker) DivergenceReport(ctx context.Context, strategy string) (*DivergenceReport, error) {
	records, err := t.store.Load(ctx, strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracker records: %w", err)
	}
	if len(records.Live) == 0 {
		return nil, fmt.Errorf("no live records for strategy: %s", strategy)
	}

	recent := records.Live
	if len(recent) > reportWindow {
		recent = recent[len(recent)-reportWindow:]
	}

	report := &DivergenceReport{
		Strategy:    strategy,
		GeneratedAt: time.Now().UTC(),
		Records:     len(recent),
		Trend:       TrendStable,
	}

	for _, r := range recent {
		report.MeanSharpeDivergence += r.SharpeDivergence
		report.MeanReturnDivergence += r.ReturnDivergence
		report.MeanDrawdownDivergence += r.DrawdownDivergence
		switch r.Alert {
		case AlertWarning:
			report.WarningCount++
		case AlertCritical:
			report.CriticalCount++
		}
	}
	n := float64(len(recent))
	report.MeanSharpeDivergence /= n
	report.MeanReturnDivergence /= n
	report.MeanDrawdownDivergence /= n

	// 比较最近5条与之前5条的夏普偏离
	if len(recent) >= 2*trendWindow {
		prior := meanSharpeDivergence(recent[len(recent)-2*trendWindow : len(recent)-trendWindow])
		latest := meanSharpeDivergence(recent[len(recent)-trendWindow:])
		const eps = 0.05
		switch {
		case latest < prior-eps:
			report.Trend = TrendImproving
		case latest > prior+eps:
			report.Trend = TrendDegrading
		}
	}

	return report, nil
}

func meanSharpeDivergence(records []LiveRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range records {
		sum += r.SharpeDivergence
	}
	return sum / float64(len(records))
}
